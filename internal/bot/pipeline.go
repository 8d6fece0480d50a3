package bot

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"StackSave/internal/chat"
	"StackSave/internal/dispatch"
	xerrors "StackSave/internal/errors"
	"StackSave/internal/intent"
	"StackSave/internal/observability/alerting"
	"StackSave/internal/observability/metrics"
	"StackSave/internal/storage/journal"
	"StackSave/internal/web3"
	"StackSave/pkg/logger"
)

// ApologyText 是处理过程中出现意外错误时唯一的回复。
const ApologyText = "Sorry, I encountered an error processing your request. Please try again later."

// 消息处理结果，用作指标标签。
const (
	resultOK     = "ok"
	resultFailed = "failed"
	resultError  = "error"
)

// Dispatcher 定义了管线所需的调度能力。
type Dispatcher interface {
	Dispatch(ctx context.Context, phone string, result intent.Result) (dispatch.Reply, error)
}

// Option 自定义 Pipeline。
type Option func(*Pipeline)

// WithJournal 配置交互日志。
func WithJournal(repo journal.InteractionRepository) Option {
	return func(p *Pipeline) {
		p.journal = repo
	}
}

// WithAlerter 配置告警派发器。
func WithAlerter(d alerting.Dispatcher) Option {
	return func(p *Pipeline) {
		p.alerter = d
	}
}

// WithReplyStrategy 记录回复策略名称，写入交互日志。
func WithReplyStrategy(name string) Option {
	return func(p *Pipeline) {
		p.replyStrategy = strings.TrimSpace(name)
	}
}

// WithLogger 替换默认日志记录器。
func WithLogger(l *slog.Logger) Option {
	return func(p *Pipeline) {
		if l != nil {
			p.log = l
		}
	}
}

// Pipeline 处理单条消息：分类、调度、回复，并记录日志、指标与告警。
type Pipeline struct {
	classifier    intent.Classifier
	dispatcher    Dispatcher
	journal       journal.InteractionRepository
	alerter       alerting.Dispatcher
	replyStrategy string
	log           *slog.Logger
}

// New 创建消息管线。
func New(classifier intent.Classifier, dispatcher Dispatcher, opts ...Option) *Pipeline {
	p := &Pipeline{
		classifier: classifier,
		dispatcher: dispatcher,
		log:        logger.Named("bot"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	return p
}

// Handle 为一条消息生成回复文本。任何意外（包括 panic）都只会得到道歉回复。
func (p *Pipeline) Handle(ctx context.Context, text, senderID string) (replyText string) {
	start := time.Now()
	phone := chat.PhoneNumber(senderID)
	text = strings.TrimSpace(text)

	var (
		result  intent.Result
		rep     dispatch.Reply
		failure error
	)
	defer func() {
		if r := recover(); r != nil {
			failure = xerrors.New(xerrors.CodeUnknown, fmt.Sprintf("处理消息时发生 panic: %v", r))
			replyText = ApologyText
		}
		if failure != nil {
			p.log.Error("消息处理失败", slog.String("sender", phone), slog.Any("error", failure))
		}
		p.observe(ctx, phone, result, rep, replyText, failure, time.Since(start))
	}()

	if p.classifier == nil || p.dispatcher == nil {
		failure = xerrors.New(xerrors.CodeInitializationFailure, "消息管线未初始化")
		return ApologyText
	}

	result = p.classifier.Classify(ctx, text)
	p.log.Debug("消息已分类",
		slog.String("sender", phone),
		slog.String("intent", result.Intent.String()),
		slog.Float64("confidence", result.Confidence))

	var err error
	rep, err = p.dispatcher.Dispatch(ctx, phone, result)
	if err != nil {
		failure = err
		return ApologyText
	}
	return rep.Text
}

func (p *Pipeline) observe(ctx context.Context, phone string, result intent.Result, rep dispatch.Reply, text string, failure error, elapsed time.Duration) {
	label := resultOK
	switch {
	case failure != nil:
		label = resultError
	case rep.Outcome != nil && !rep.Outcome.Success:
		label = resultFailed
	}
	name := result.Intent.String()
	if name == "" {
		name = intent.Unknown.String()
	}
	metrics.ObserveMessage(name, label, elapsed)

	p.record(ctx, phone, name, result, rep, text, failure)
	p.alert(ctx, phone, name, rep.Outcome, failure)
}

func (p *Pipeline) record(ctx context.Context, phone, name string, result intent.Result, rep dispatch.Reply, text string, failure error) {
	if p.journal == nil {
		return
	}
	entry := &journal.InteractionRecord{
		Sender:     phone,
		Intent:     name,
		Confidence: result.Confidence,
		Coin:       result.Coin,
		Success:    failure == nil,
		Reply:      text,
		Strategy:   p.strategy(),
	}
	if result.HasAmount() {
		entry.Amount = web3.FormatAmount(*result.Amount)
	}
	if out := rep.Outcome; out != nil {
		entry.Success = out.Success
		entry.TxHash = out.TxHash
		entry.Error = out.Error
	}
	if failure != nil {
		entry.Error = failure.Error()
	}
	if err := p.journal.Save(ctx, entry); err != nil {
		p.log.Warn("写入交互日志失败", slog.String("sender", phone), slog.Any("error", err))
	}
}

func (p *Pipeline) alert(ctx context.Context, phone, name string, out *web3.Outcome, failure error) {
	if p.alerter == nil {
		return
	}
	var event alerting.Event
	switch {
	case failure != nil && xerrors.ShouldAlert(failure):
		code := xerrors.CodeOf(failure)
		event = alerting.Event{Code: code, Message: failure.Error(), Severity: xerrors.SeverityOf(failure)}
	case out != nil && !out.Success:
		attrs := xerrors.AttributesOf(out.Code)
		if !attrs.Alert {
			return
		}
		event = alerting.Event{
			Code:     out.Code,
			Message:  out.Error,
			Severity: attrs.Severity,
			Metadata: map[string]string{"amount": out.Amount},
		}
	default:
		return
	}
	event.Sender = phone
	event.Intent = name
	event.OccurredAt = time.Now()
	if err := p.alerter.Notify(ctx, event); err != nil {
		p.log.Error("告警通知失败", slog.String("code", string(event.Code)), slog.Any("error", err))
	}
}

func (p *Pipeline) strategy() string {
	if p.classifier == nil {
		return p.replyStrategy
	}
	if p.replyStrategy == "" {
		return p.classifier.Name()
	}
	return p.classifier.Name() + "+" + p.replyStrategy
}
