package inbox

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"StackSave/internal/chat"

	"github.com/redis/go-redis/v9"
)

type stubList struct {
	mu     sync.Mutex
	lists  map[string][]string
	closed bool
}

func newStubList() *stubList { return &stubList{lists: make(map[string][]string)} }

func (s *stubList) LPush(_ context.Context, key string, values ...interface{}) *redis.IntCmd {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, v := range values {
		var item string
		switch val := v.(type) {
		case []byte:
			item = string(val)
		case string:
			item = val
		}
		s.lists[key] = append([]string{item}, s.lists[key]...)
	}
	return redis.NewIntResult(int64(len(s.lists[key])), nil)
}

func (s *stubList) BRPop(ctx context.Context, _ time.Duration, keys ...string) *redis.StringSliceCmd {
	s.mu.Lock()
	for _, key := range keys {
		if items := s.lists[key]; len(items) > 0 {
			last := items[len(items)-1]
			s.lists[key] = items[:len(items)-1]
			s.mu.Unlock()
			return redis.NewStringSliceResult([]string{key, last}, nil)
		}
	}
	s.mu.Unlock()
	select {
	case <-ctx.Done():
		return redis.NewStringSliceResult(nil, ctx.Err())
	case <-time.After(time.Millisecond):
		return redis.NewStringSliceResult(nil, redis.Nil)
	}
}

func (s *stubList) Close() error {
	s.closed = true
	return nil
}

func (s *stubList) items(key string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.lists[key]...)
}

func TestRedisQueueRoundTrip(t *testing.T) {
	store := newStubList()
	queue := newRedisQueue(store, RedisQueueConfig{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	want := chat.Message{ID: "wamid-9", Text: "Check balance", SenderID: "628999@c.us"}
	if err := queue.Publish(ctx, want); err != nil {
		t.Fatalf("publish: %v", err)
	}
	store.LPush(ctx, "stacksave:inbound", "not json")

	received := make(chan chat.Message, 2)
	done := make(chan error, 1)
	go func() {
		done <- queue.Consume(ctx, 2, func(_ context.Context, msg chat.Message) error {
			received <- msg
			return errors.New("handler failure is not re-queued")
		})
	}()

	select {
	case got := <-received:
		if got.ID != want.ID || got.Text != want.Text || got.SenderID != want.SenderID {
			t.Fatalf("unexpected message: %+v", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("message not consumed")
	}

	time.Sleep(20 * time.Millisecond)
	if n := len(store.items("stacksave:inbound")); n != 0 {
		t.Fatalf("expected inbound list drained, %d left", n)
	}
	select {
	case extra := <-received:
		t.Fatalf("unexpected redelivery: %+v", extra)
	default:
	}

	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("unexpected consume error: %v", err)
	}
}

func TestRedisQueueSendWritesOutbound(t *testing.T) {
	store := newStubList()
	queue := newRedisQueue(store, RedisQueueConfig{Outbound: "replies"})

	if err := queue.Send(context.Background(), "628999@c.us", "✅ Deposit successful!"); err != nil {
		t.Fatalf("send: %v", err)
	}
	items := store.items("replies")
	if len(items) != 1 {
		t.Fatalf("expected one reply, got %d", len(items))
	}
	var out outbound
	if err := json.Unmarshal([]byte(items[0]), &out); err != nil {
		t.Fatalf("decode reply: %v", err)
	}
	if out.To != "628999@c.us" || out.Text != "✅ Deposit successful!" {
		t.Fatalf("unexpected reply: %+v", out)
	}
	if err := queue.Send(context.Background(), " ", "x"); err == nil {
		t.Fatal("expected error for empty recipient")
	}
	if err := queue.Close(); err != nil || !store.closed {
		t.Fatalf("expected client closed")
	}
}
