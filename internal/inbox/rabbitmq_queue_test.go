package inbox

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"StackSave/internal/chat"
	xerrors "StackSave/internal/errors"

	amqp "github.com/rabbitmq/amqp091-go"
)

type published struct {
	queue string
	msg   amqp.Publishing
}

type fakeChannel struct {
	mu         sync.Mutex
	published  []published
	deliveries chan amqp.Delivery
}

func (f *fakeChannel) PublishWithContext(_ context.Context, _, key string, _, _ bool, msg amqp.Publishing) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, published{queue: key, msg: msg})
	return nil
}

func (f *fakeChannel) Consume(string, string, bool, bool, bool, bool, amqp.Table) (<-chan amqp.Delivery, error) {
	return f.deliveries, nil
}

func (f *fakeChannel) Close() error { return nil }

type fakeAcker struct {
	mu   sync.Mutex
	acks []uint64
}

func (a *fakeAcker) Ack(tag uint64, _ bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.acks = append(a.acks, tag)
	return nil
}

func (a *fakeAcker) Nack(uint64, bool, bool) error { return errors.New("unexpected nack") }

func (a *fakeAcker) Reject(uint64, bool) error { return errors.New("unexpected reject") }

func (a *fakeAcker) count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.acks)
}

func TestRabbitMQQueueAcksEveryDelivery(t *testing.T) {
	ch := &fakeChannel{deliveries: make(chan amqp.Delivery, 4)}
	acker := &fakeAcker{}
	queue := newRabbitMQQueue(ch, RabbitMQConfig{})

	body, _ := json.Marshal(chat.Message{Text: "Stake 10 USDC", SenderID: "628777@c.us"})
	ch.deliveries <- amqp.Delivery{Acknowledger: acker, DeliveryTag: 1, MessageId: "amqp-1", Body: body}
	ch.deliveries <- amqp.Delivery{Acknowledger: acker, DeliveryTag: 2, Body: []byte("{broken")}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	var handled []chat.Message
	done := make(chan error, 1)
	go func() {
		done <- queue.Consume(ctx, 1, func(_ context.Context, msg chat.Message) error {
			mu.Lock()
			handled = append(handled, msg)
			mu.Unlock()
			return errors.New("failure still acks")
		})
	}()

	deadline := time.After(2 * time.Second)
	for acker.count() < 2 {
		select {
		case <-deadline:
			t.Fatalf("expected 2 acks, got %d", acker.count())
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()
	<-done

	mu.Lock()
	defer mu.Unlock()
	if len(handled) != 1 {
		t.Fatalf("expected one handled message, got %d", len(handled))
	}
	if handled[0].ID != "amqp-1" || handled[0].Text != "Stake 10 USDC" {
		t.Fatalf("unexpected message: %+v", handled[0])
	}
}

func TestRabbitMQQueuePublishAndSend(t *testing.T) {
	ch := &fakeChannel{}
	queue := newRabbitMQQueue(ch, RabbitMQConfig{ReplyQueue: "wa.replies"})

	if err := queue.Publish(context.Background(), chat.Message{ID: "m1", Text: "help", SenderID: "1"}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if err := queue.Send(context.Background(), "1@c.us", "hello"); err != nil {
		t.Fatalf("send: %v", err)
	}
	if len(ch.published) != 2 {
		t.Fatalf("expected 2 publishes, got %d", len(ch.published))
	}
	if ch.published[0].queue != "stacksave.inbound" || ch.published[0].msg.MessageId != "m1" {
		t.Fatalf("unexpected inbound publish: %+v", ch.published[0])
	}
	var out outbound
	if err := json.Unmarshal(ch.published[1].msg.Body, &out); err != nil {
		t.Fatalf("decode reply: %v", err)
	}
	if ch.published[1].queue != "wa.replies" || out.To != "1@c.us" || out.Text != "hello" {
		t.Fatalf("unexpected reply publish: %+v %+v", ch.published[1], out)
	}
}

func TestRabbitMQQueueReportsClosedDeliveryChannel(t *testing.T) {
	ch := &fakeChannel{deliveries: make(chan amqp.Delivery)}
	queue := newRabbitMQQueue(ch, RabbitMQConfig{})

	done := make(chan error, 1)
	go func() {
		done <- queue.Consume(context.Background(), 3, func(context.Context, chat.Message) error { return nil })
	}()
	close(ch.deliveries)

	select {
	case err := <-done:
		if !errors.Is(err, xerrors.New(xerrors.CodeQueueFailure, "")) {
			t.Fatalf("expected queue failure, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Consume must return once the broker closes the delivery channel")
	}
}
