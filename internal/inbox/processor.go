package inbox

import (
	"context"
	"log/slog"
	"strings"

	"StackSave/internal/chat"
	"StackSave/internal/dedup"
	xerrors "StackSave/internal/errors"
	"StackSave/pkg/logger"
)

// Responder 为一条文本生成回复，由消息管线实现。
type Responder interface {
	Handle(ctx context.Context, text, senderID string) string
}

// Processor 负责从队列消费消息并交给消息管线处理。
type Processor struct {
	responder   Responder
	source      Source
	sink        chat.Sink
	guard       dedup.Guard
	workerCount int
	logger      *slog.Logger
}

// ProcessorOption 定义可选配置。
type ProcessorOption func(*Processor)

// WithProcessorLogger 指定日志输出。
func WithProcessorLogger(l *slog.Logger) ProcessorOption {
	return func(p *Processor) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithWorkerCount 设置消费协程数量。
func WithWorkerCount(workers int) ProcessorOption {
	return func(p *Processor) {
		if workers > 0 {
			p.workerCount = workers
		}
	}
}

// WithGuard 配置重复消息过滤器。
func WithGuard(guard dedup.Guard) ProcessorOption {
	return func(p *Processor) {
		if guard != nil {
			p.guard = guard
		}
	}
}

// NewProcessor 构造 Processor。source 为空时只能通过 Process 直接处理消息。
func NewProcessor(responder Responder, source Source, sink chat.Sink, opts ...ProcessorOption) *Processor {
	p := &Processor{
		responder:   responder,
		source:      source,
		sink:        sink,
		guard:       dedup.Nop{},
		workerCount: 1,
		logger:      logger.Named("inbox"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	return p
}

// Start 启动消费循环，直到 ctx 结束。
func (p *Processor) Start(ctx context.Context) error {
	if p.source == nil {
		return xerrors.New(xerrors.CodeInitializationFailure, "未配置消息来源")
	}
	if p.sink == nil {
		return xerrors.New(xerrors.CodeInitializationFailure, "未配置回复通道")
	}
	return p.source.Consume(ctx, p.workerCount, p.handle)
}

// Process 过滤并处理一条消息。第二个返回值为 false 表示消息被忽略
// （群聊、自己发出、空文本或重复投递）。
func (p *Processor) Process(ctx context.Context, msg chat.Message) (string, bool) {
	if !chat.Accept(msg) {
		p.logger.Debug("忽略消息",
			slog.String("message_id", msg.ID),
			slog.Bool("group", msg.IsGroup),
			slog.Bool("from_self", msg.IsFromSelf))
		return "", false
	}
	if id := strings.TrimSpace(msg.ID); id != "" {
		seen, err := p.guard.Seen(ctx, id)
		if err != nil {
			p.logger.Warn("去重检查失败，继续处理", slog.String("message_id", id), slog.Any("error", err))
		} else if seen {
			p.logger.Info("跳过重复消息", slog.String("message_id", id))
			return "", false
		}
	}
	if p.responder == nil {
		return "", false
	}
	return p.responder.Handle(ctx, msg.Text, msg.SenderID), true
}

func (p *Processor) handle(ctx context.Context, msg chat.Message) error {
	reply, ok := p.Process(ctx, msg)
	if !ok || reply == "" {
		return nil
	}
	if err := p.sink.Send(ctx, msg.SenderID, reply); err != nil {
		wrapped := xerrors.Wrap(xerrors.CodeQueueFailure, err, "发送回复失败",
			xerrors.WithMetadata("message_id", msg.ID))
		p.logger.Error("发送回复失败", slog.Any("error", wrapped), slog.String("sender", msg.SenderID))
		return wrapped
	}
	return nil
}
