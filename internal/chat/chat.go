// Package chat defines the transport-neutral message shape exchanged with the
// messaging network, plus the outbound sink contract.
package chat

import (
	"context"
	"strings"
	"time"
)

// senderSuffix is appended by the WhatsApp transport to user ids.
const senderSuffix = "@c.us"

// Message 是一条入站聊天消息。
type Message struct {
	ID         string    `json:"id"`
	Text       string    `json:"text"`
	SenderID   string    `json:"sender_id"`
	IsGroup    bool      `json:"is_group"`
	IsFromSelf bool      `json:"is_from_self"`
	ReceivedAt time.Time `json:"received_at"`
}

// Sink 负责把回复发送回聊天网络。
type Sink interface {
	Send(ctx context.Context, to, text string) error
}

// SinkFunc 将普通函数适配为 Sink。
type SinkFunc func(ctx context.Context, to, text string) error

// Send 实现 Sink。
func (f SinkFunc) Send(ctx context.Context, to, text string) error { return f(ctx, to, text) }

// Accept 判断消息是否需要处理：群聊消息与机器人自己发出的消息都会被忽略。
func Accept(msg Message) bool {
	return !msg.IsGroup && !msg.IsFromSelf && strings.TrimSpace(msg.Text) != ""
}

// PhoneNumber 去掉传输层附加的后缀，得到发送者号码。
func PhoneNumber(senderID string) string {
	return strings.TrimSuffix(strings.TrimSpace(senderID), senderSuffix)
}

// Address 为号码补上传输层后缀，用于主动发送。
func Address(phone string) string {
	phone = strings.TrimSpace(phone)
	if phone == "" || strings.Contains(phone, "@") {
		return phone
	}
	return phone + senderSuffix
}
