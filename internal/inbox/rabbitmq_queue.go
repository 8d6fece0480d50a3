package inbox

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"StackSave/internal/chat"
	xerrors "StackSave/internal/errors"
	"StackSave/pkg/logger"

	amqp "github.com/rabbitmq/amqp091-go"
)

// RabbitMQConfig 描述 RabbitMQ 队列的连接参数。
type RabbitMQConfig struct {
	URL        string
	Queue      string
	ReplyQueue string
	Prefetch   int
	Durable    bool
	AutoDelete bool
}

type amqpChannel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error)
	Close() error
}

// RabbitMQQueue 使用 RabbitMQ 承载入站消息，回复写入单独的回复队列。
type RabbitMQQueue struct {
	conn       *amqp.Connection
	ch         amqpChannel
	queue      string
	replyQueue string
	log        *slog.Logger
}

// NewRabbitMQQueue 创建 RabbitMQ 队列实例并声明入站与回复队列。
func NewRabbitMQQueue(cfg RabbitMQConfig) (*RabbitMQQueue, error) {
	if cfg.URL == "" {
		return nil, errors.New("RabbitMQ URL 不能为空")
	}
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeQueueFailure, err, "连接 RabbitMQ 失败")
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, xerrors.Wrap(xerrors.CodeQueueFailure, err, "创建 RabbitMQ channel 失败")
	}
	if cfg.Prefetch > 0 {
		if err := ch.Qos(cfg.Prefetch, 0, false); err != nil {
			ch.Close()
			conn.Close()
			return nil, xerrors.Wrap(xerrors.CodeQueueFailure, err, "设置 RabbitMQ QOS 失败")
		}
	}
	q := newRabbitMQQueue(ch, cfg)
	q.conn = conn
	for _, name := range []string{q.queue, q.replyQueue} {
		if _, err := ch.QueueDeclare(name, cfg.Durable, cfg.AutoDelete, false, false, nil); err != nil {
			ch.Close()
			conn.Close()
			return nil, xerrors.Wrap(xerrors.CodeQueueFailure, err, "声明 RabbitMQ 队列失败",
				xerrors.WithMetadata("queue", name))
		}
	}
	return q, nil
}

func newRabbitMQQueue(ch amqpChannel, cfg RabbitMQConfig) *RabbitMQQueue {
	queue := cfg.Queue
	if queue == "" {
		queue = "stacksave.inbound"
	}
	replyQueue := cfg.ReplyQueue
	if replyQueue == "" {
		replyQueue = "stacksave.outbound"
	}
	return &RabbitMQQueue{
		ch:         ch,
		queue:      queue,
		replyQueue: replyQueue,
		log:        logger.Named("inbox.rabbitmq"),
	}
}

// Publish 将消息投递到入站队列。
func (q *RabbitMQQueue) Publish(ctx context.Context, msg chat.Message) error {
	if q == nil || q.ch == nil {
		return errors.New("RabbitMQ 队列未初始化")
	}
	data, err := encodeMessage(msg)
	if err != nil {
		return err
	}
	return q.publish(ctx, q.queue, msg.ID, data)
}

// Send 将回复发布到回复队列，实现 chat.Sink。
func (q *RabbitMQQueue) Send(ctx context.Context, to, text string) error {
	if q == nil || q.ch == nil {
		return errors.New("RabbitMQ 队列未初始化")
	}
	data, err := encodeReply(to, text)
	if err != nil {
		return err
	}
	return q.publish(ctx, q.replyQueue, "", data)
}

func (q *RabbitMQQueue) publish(ctx context.Context, queue, id string, body []byte) error {
	err := q.ch.PublishWithContext(ctx, "", queue, false, false, amqp.Publishing{
		ContentType: "application/json",
		MessageId:   id,
		Body:        body,
	})
	if err != nil {
		return xerrors.Wrap(xerrors.CodeQueueFailure, err, "发布 RabbitMQ 消息失败",
			xerrors.WithMetadata("queue", queue))
	}
	return nil
}

// Consume 使用手动确认模式消费入站队列，无论处理结果如何都会确认消息。
func (q *RabbitMQQueue) Consume(ctx context.Context, workerCount int, handler Handler) error {
	if q == nil || q.ch == nil {
		return errors.New("RabbitMQ 队列未初始化")
	}
	if workerCount <= 0 {
		workerCount = 1
	}
	msgs, err := q.ch.Consume(q.queue, "", false, false, false, false, nil)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeQueueFailure, err, "订阅 RabbitMQ 队列失败")
	}

	// closed 在 broker 关闭投递通道时触发，通知 Consume 退出。
	closed := make(chan struct{})
	var once sync.Once
	var wg sync.WaitGroup
	for i := 0; i < workerCount; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case delivery, ok := <-msgs:
					if !ok {
						once.Do(func() { close(closed) })
						return
					}
					q.deliver(ctx, delivery, handler)
				}
			}
		}()
	}

	select {
	case <-ctx.Done():
		wg.Wait()
		return ctx.Err()
	case <-closed:
		wg.Wait()
		q.log.Error("RabbitMQ 投递通道已关闭，停止消费")
		return xerrors.New(xerrors.CodeQueueFailure, "RabbitMQ 投递通道已关闭")
	}
}

func (q *RabbitMQQueue) deliver(ctx context.Context, delivery amqp.Delivery, handler Handler) {
	defer func() {
		if err := delivery.Ack(false); err != nil {
			q.log.Warn("确认 RabbitMQ 消息失败", slog.Any("error", err))
		}
	}()
	msg, err := decodeMessage(delivery.Body)
	if err != nil {
		q.log.Warn("丢弃无法解析的消息", slog.Any("error", err))
		return
	}
	if msg.ID == "" {
		msg.ID = delivery.MessageId
	}
	if err := handler(ctx, msg); err != nil {
		q.log.Warn("消息处理失败", slog.String("message_id", msg.ID), slog.Any("error", err))
	}
}

// Close 关闭 RabbitMQ 连接。
func (q *RabbitMQQueue) Close() error {
	if q == nil {
		return nil
	}
	if q.ch != nil {
		_ = q.ch.Close()
	}
	if q.conn != nil {
		return q.conn.Close()
	}
	return nil
}
