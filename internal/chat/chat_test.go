package chat

import (
	"context"
	"testing"
)

func TestAccept(t *testing.T) {
	cases := []struct {
		msg  Message
		want bool
	}{
		{Message{Text: "hi", SenderID: "1@c.us"}, true},
		{Message{Text: "hi", IsGroup: true}, false},
		{Message{Text: "hi", IsFromSelf: true}, false},
		{Message{Text: "   "}, false},
	}
	for _, tc := range cases {
		if got := Accept(tc.msg); got != tc.want {
			t.Fatalf("Accept(%+v) = %v, want %v", tc.msg, got, tc.want)
		}
	}
}

func TestPhoneNumberAndAddress(t *testing.T) {
	if got := PhoneNumber(" 628123@c.us "); got != "628123" {
		t.Fatalf("unexpected phone %q", got)
	}
	if got := PhoneNumber("628123"); got != "628123" {
		t.Fatalf("unexpected phone %q", got)
	}
	if got := Address("628123"); got != "628123@c.us" {
		t.Fatalf("unexpected address %q", got)
	}
	if got := Address("123@g.us"); got != "123@g.us" {
		t.Fatalf("address with suffix must be kept, got %q", got)
	}
}

func TestSinkFunc(t *testing.T) {
	var got string
	sink := SinkFunc(func(_ context.Context, to, text string) error {
		got = to + ":" + text
		return nil
	})
	if err := sink.Send(context.Background(), "a", "b"); err != nil || got != "a:b" {
		t.Fatalf("unexpected sink result %q %v", got, err)
	}
}
