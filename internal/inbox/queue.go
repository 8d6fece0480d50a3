package inbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"StackSave/internal/chat"
)

// Handler 处理一条来自传输层的入站消息。
type Handler func(ctx context.Context, msg chat.Message) error

// Publisher 负责向入站队列投递消息，网关进程与测试使用。
type Publisher interface {
	Publish(ctx context.Context, msg chat.Message) error
	Close() error
}

// Source 负责从入站队列消费消息。
type Source interface {
	Consume(ctx context.Context, workerCount int, handler Handler) error
	Close() error
}

// Queue 同时具备投递、消费与回复能力。
type Queue interface {
	Publisher
	Source
	chat.Sink
}

// outbound 是写入回复队列的消息格式，由聊天网关读取并发送。
type outbound struct {
	To   string `json:"to"`
	Text string `json:"text"`
}

func encodeMessage(msg chat.Message) ([]byte, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("编码入站消息失败: %w", err)
	}
	return data, nil
}

func decodeMessage(data []byte) (chat.Message, error) {
	var msg chat.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return chat.Message{}, fmt.Errorf("解析入站消息失败: %w", err)
	}
	return msg, nil
}

func encodeReply(to, text string) ([]byte, error) {
	to = strings.TrimSpace(to)
	if to == "" {
		return nil, errors.New("回复缺少接收方")
	}
	data, err := json.Marshal(outbound{To: to, Text: text})
	if err != nil {
		return nil, fmt.Errorf("编码回复失败: %w", err)
	}
	return data, nil
}
