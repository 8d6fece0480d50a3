package inbox

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"StackSave/internal/chat"
	xerrors "StackSave/internal/errors"
	"StackSave/pkg/logger"

	"github.com/redis/go-redis/v9"
)

// RedisQueueConfig 描述 Redis 队列的连接参数。
type RedisQueueConfig struct {
	Address   string
	Password  string
	DB        int
	Inbound   string
	Outbound  string
	BlockWait time.Duration
}

type listClient interface {
	LPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
	BRPop(ctx context.Context, timeout time.Duration, keys ...string) *redis.StringSliceCmd
	Close() error
}

// RedisQueue 使用两个 Redis list 分别承载入站消息与出站回复。
type RedisQueue struct {
	client   listClient
	inbound  string
	outbound string
	wait     time.Duration
	log      *slog.Logger
}

// NewRedisQueue 创建 Redis 队列实例。
func NewRedisQueue(ctx context.Context, cfg RedisQueueConfig) (*RedisQueue, error) {
	if cfg.Address == "" {
		return nil, errors.New("Redis address 不能为空")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, xerrors.Wrap(xerrors.CodeQueueFailure, err, "连接 Redis 失败")
	}
	return newRedisQueue(client, cfg), nil
}

func newRedisQueue(client listClient, cfg RedisQueueConfig) *RedisQueue {
	inbound := cfg.Inbound
	if inbound == "" {
		inbound = "stacksave:inbound"
	}
	outbound := cfg.Outbound
	if outbound == "" {
		outbound = "stacksave:outbound"
	}
	wait := cfg.BlockWait
	if wait <= 0 {
		wait = 5 * time.Second
	}
	return &RedisQueue{
		client:   client,
		inbound:  inbound,
		outbound: outbound,
		wait:     wait,
		log:      logger.Named("inbox.redis"),
	}
}

// Publish 将消息投递到入站 list。
func (q *RedisQueue) Publish(ctx context.Context, msg chat.Message) error {
	data, err := encodeMessage(msg)
	if err != nil {
		return err
	}
	if err := q.client.LPush(ctx, q.inbound, data).Err(); err != nil {
		return xerrors.Wrap(xerrors.CodeQueueFailure, err, "Redis 投递消息失败")
	}
	return nil
}

// Send 将回复写入出站 list，实现 chat.Sink。
func (q *RedisQueue) Send(ctx context.Context, to, text string) error {
	data, err := encodeReply(to, text)
	if err != nil {
		return err
	}
	if err := q.client.LPush(ctx, q.outbound, data).Err(); err != nil {
		return xerrors.Wrap(xerrors.CodeQueueFailure, err, "Redis 写入回复失败")
	}
	return nil
}

// Consume 通过 BRPOP 从 Redis 获取消息。处理失败的消息不会重新投递。
func (q *RedisQueue) Consume(ctx context.Context, workerCount int, handler Handler) error {
	if workerCount <= 0 {
		workerCount = 1
	}
	errCh := make(chan error, workerCount)
	for i := 0; i < workerCount; i++ {
		go func() {
			for {
				select {
				case <-ctx.Done():
					errCh <- ctx.Err()
					return
				default:
				}
				values, err := q.client.BRPop(ctx, q.wait, q.inbound).Result()
				if err != nil {
					if errors.Is(err, context.Canceled) || errors.Is(err, redis.ErrClosed) {
						errCh <- err
						return
					}
					if errors.Is(err, redis.Nil) {
						continue
					}
					errCh <- xerrors.Wrap(xerrors.CodeQueueFailure, err, "Redis 取消息失败")
					return
				}
				if len(values) != 2 {
					continue
				}
				msg, err := decodeMessage([]byte(values[1]))
				if err != nil {
					q.log.Warn("丢弃无法解析的消息", slog.Any("error", err))
					continue
				}
				if handlerErr := handler(ctx, msg); handlerErr != nil {
					q.log.Warn("消息处理失败", slog.String("message_id", msg.ID), slog.Any("error", handlerErr))
				}
			}
		}()
	}
	// 等待第一个错误或取消信号。
	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

// Close 关闭 Redis 连接。
func (q *RedisQueue) Close() error {
	if q == nil || q.client == nil {
		return nil
	}
	return q.client.Close()
}
