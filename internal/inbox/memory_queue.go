package inbox

import (
	"context"
	"errors"
	"sync"

	"StackSave/internal/chat"
)

// Reply 记录一次发往聊天网络的回复。
type Reply struct {
	To   string
	Text string
}

// MemoryQueue 使用 channel 模拟消息队列，用于本地运行与测试。
type MemoryQueue struct {
	ch chan chat.Message
	// closeMu 保证发送期间 channel 不会被关闭。
	closeMu sync.RWMutex
	closed  bool

	mu      sync.Mutex
	replies []Reply
}

// NewMemoryQueue 创建一个内存队列。
func NewMemoryQueue(size int) *MemoryQueue {
	if size <= 0 {
		size = 64
	}
	return &MemoryQueue{ch: make(chan chat.Message, size)}
}

// Publish 将消息投递到队列。
func (q *MemoryQueue) Publish(ctx context.Context, msg chat.Message) error {
	q.closeMu.RLock()
	defer q.closeMu.RUnlock()
	if q.closed {
		return errors.New("队列已关闭")
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case q.ch <- msg:
		return nil
	}
}

// Consume 启动指定数量的工作协程消费队列中的消息。
func (q *MemoryQueue) Consume(ctx context.Context, workerCount int, handler Handler) error {
	if workerCount <= 0 {
		workerCount = 1
	}
	var wg sync.WaitGroup
	for i := 0; i < workerCount; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case msg, ok := <-q.ch:
					if !ok {
						return
					}
					_ = handler(ctx, msg)
				}
			}
		}()
	}
	<-ctx.Done()
	wg.Wait()
	return ctx.Err()
}

// Send 记录回复，实现 chat.Sink。
func (q *MemoryQueue) Send(_ context.Context, to, text string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.replies = append(q.replies, Reply{To: to, Text: text})
	return nil
}

// Replies 返回已发送回复的副本。
func (q *MemoryQueue) Replies() []Reply {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]Reply, len(q.replies))
	copy(out, q.replies)
	return out
}

// Close 关闭内存队列。
func (q *MemoryQueue) Close() error {
	q.closeMu.Lock()
	if !q.closed {
		close(q.ch)
		q.closed = true
	}
	q.closeMu.Unlock()
	return nil
}
