package alerting

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"StackSave/internal/chat"
	xerrors "StackSave/internal/errors"
	"StackSave/pkg/logger"
)

// Channel 表示通知渠道。
type Channel string

// 支持的通知渠道
const (
	ChannelAdminChat Channel = "admin_chat"
	ChannelAudit     Channel = "audit"
)

// Event 描述一次需要告警的事件。
type Event struct {
	Code       xerrors.Code
	Message    string
	Severity   xerrors.Severity
	Sender     string
	Intent     string
	Metadata   map[string]string
	OccurredAt time.Time
}

// Notifier 负责将事件发送到指定渠道。
type Notifier interface {
	Channel() Channel
	Notify(ctx context.Context, event Event) error
}

// Dispatcher 将事件广播给多个通知器。
type Dispatcher interface {
	Notify(ctx context.Context, event Event) error
}

// FanoutDispatcher 实现将事件投递到多个通知器的逻辑。
type FanoutDispatcher struct {
	notifiers map[Channel]Notifier
}

// NewFanout 创建一个新的 FanoutDispatcher。
func NewFanout(notifiers ...Notifier) *FanoutDispatcher {
	set := make(map[Channel]Notifier, len(notifiers))
	for _, n := range notifiers {
		if n == nil {
			continue
		}
		set[n.Channel()] = n
	}
	return &FanoutDispatcher{notifiers: set}
}

// Notify 将事件广播至所有注册渠道。
func (d *FanoutDispatcher) Notify(ctx context.Context, event Event) error {
	if d == nil {
		return nil
	}
	var errs []error
	for _, notifier := range d.notifiers {
		if err := notifier.Notify(ctx, event); err != nil {
			errs = append(errs, fmt.Errorf("channel %s: %w", notifier.Channel(), err))
		}
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// AdminNotifier 通过聊天渠道把告警发给管理员号码。
type AdminNotifier struct {
	Sink   chat.Sink
	Admins []string
}

// Channel 返回管理员聊天渠道。
func (n *AdminNotifier) Channel() Channel { return ChannelAdminChat }

// Notify 向每个管理员发送一条消息。
func (n *AdminNotifier) Notify(ctx context.Context, event Event) error {
	if n == nil || n.Sink == nil || len(n.Admins) == 0 {
		logger.L().Debug("AdminNotifier 未配置管理员，跳过发送", slog.String("code", string(event.Code)))
		return nil
	}
	content := Format(event)
	var errs []error
	for _, admin := range n.Admins {
		if strings.TrimSpace(admin) == "" {
			continue
		}
		if err := n.Sink.Send(ctx, chat.Address(admin), content); err != nil {
			errs = append(errs, fmt.Errorf("admin %s: %w", admin, err))
		}
	}
	return errors.Join(errs...)
}

// AuditNotifier 将告警写入审计日志。
type AuditNotifier struct{}

// Channel 返回审计渠道。
func (AuditNotifier) Channel() Channel { return ChannelAudit }

// Notify 写入一条审计日志。
func (AuditNotifier) Notify(_ context.Context, event Event) error {
	attrs := []any{
		slog.String("code", string(event.Code)),
		slog.String("severity", string(event.Severity)),
		slog.String("sender", event.Sender),
		slog.String("intent", event.Intent),
		slog.String("message", event.Message),
	}
	for _, k := range sortedKeys(event.Metadata) {
		attrs = append(attrs, slog.String("meta_"+k, event.Metadata[k]))
	}
	logger.Audit().Warn("alert", attrs...)
	return nil
}

// Format 生成发送给管理员的告警文本。
func Format(event Event) string {
	var b strings.Builder
	fmt.Fprintf(&b, "⚠️ [%s] %s\n", event.Severity, event.Code)
	if !event.OccurredAt.IsZero() {
		fmt.Fprintf(&b, "Time: %s\n", event.OccurredAt.UTC().Format(time.RFC3339))
	}
	if event.Sender != "" {
		fmt.Fprintf(&b, "User: %s\n", event.Sender)
	}
	if event.Intent != "" {
		fmt.Fprintf(&b, "Intent: %s\n", event.Intent)
	}
	fmt.Fprintf(&b, "Detail: %s", event.Message)
	for _, k := range sortedKeys(event.Metadata) {
		fmt.Fprintf(&b, "\n- %s: %s", k, event.Metadata[k])
	}
	return b.String()
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
