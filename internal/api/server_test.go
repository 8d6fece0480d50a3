package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"StackSave/internal/chat"
	"StackSave/internal/storage/journal"
)

type stubProcessor struct {
	last chat.Message
}

func (s *stubProcessor) Process(_ context.Context, msg chat.Message) (string, bool) {
	s.last = msg
	if !chat.Accept(msg) {
		return "", false
	}
	return "reply to " + msg.Text, true
}

type stubJournal struct {
	records []journal.InteractionRecord
	err     error
	limit   int
}

func (s *stubJournal) Save(context.Context, *journal.InteractionRecord) error { return nil }

func (s *stubJournal) ListLatest(_ context.Context, limit int) ([]journal.InteractionRecord, error) {
	s.limit = limit
	return s.records, s.err
}

func TestHandleMessages(t *testing.T) {
	processor := &stubProcessor{}
	handler := NewServer(":0", processor).Handler()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/messages",
		strings.NewReader(`{"text":"Deposit 100 USDC","sender_id":"628123@c.us"}`))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status: got %d want %d", rec.Code, http.StatusOK)
	}
	var got messageResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if got.Reply != "reply to Deposit 100 USDC" {
		t.Fatalf("unexpected reply: %q", got.Reply)
	}
	if got.ID == "" || got.ID != processor.last.ID {
		t.Fatalf("expected generated id to be propagated, got %q and %q", got.ID, processor.last.ID)
	}
	if processor.last.SenderID != "628123@c.us" || processor.last.ReceivedAt.IsZero() {
		t.Fatalf("unexpected message: %+v", processor.last)
	}
}

func TestHandleMessagesErrors(t *testing.T) {
	handler := NewServer(":0", &stubProcessor{}).Handler()

	cases := []struct {
		name   string
		method string
		body   string
		want   int
	}{
		{"filtered group message", http.MethodPost, `{"text":"hi","sender_id":"1","is_group":true}`, http.StatusNoContent},
		{"own message", http.MethodPost, `{"text":"hi","sender_id":"1","is_from_self":true}`, http.StatusNoContent},
		{"invalid json", http.MethodPost, `{"text":`, http.StatusBadRequest},
		{"missing sender", http.MethodPost, `{"text":"hi"}`, http.StatusBadRequest},
		{"invalid method", http.MethodGet, ``, http.StatusMethodNotAllowed},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(tc.method, "/api/v1/messages", strings.NewReader(tc.body))
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			if rec.Code != tc.want {
				t.Fatalf("expected status %d, got %d", tc.want, rec.Code)
			}
		})
	}

	rec := httptest.NewRecorder()
	NewServer(":0", nil).Handler().ServeHTTP(rec,
		httptest.NewRequest(http.MethodPost, "/api/v1/messages", strings.NewReader(`{"text":"hi","sender_id":"1"}`)))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 without processor, got %d", rec.Code)
	}
}

func TestTokenRequired(t *testing.T) {
	handler := NewServer(":0", &stubProcessor{}, WithToken("s3cret")).Handler()
	body := `{"text":"help","sender_id":"1"}`

	for _, header := range []string{"", "Bearer wrong", "s3cret"} {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/messages", strings.NewReader(body))
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("header %q: expected 401, got %d", header, rec.Code)
		}
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/messages", strings.NewReader(body))
	req.Header.Set("Authorization", "Bearer s3cret")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 with token, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("health check must not require token, got %d", rec.Code)
	}
}

func TestHandleInteractions(t *testing.T) {
	repo := &stubJournal{records: []journal.InteractionRecord{{ID: "r1", Intent: "DEPOSIT", Success: true}}}
	handler := NewServer(":0", &stubProcessor{}, WithJournal(repo)).Handler()

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/interactions?limit=5", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
	var got []journal.InteractionRecord
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(got) != 1 || got[0].ID != "r1" || repo.limit != 5 {
		t.Fatalf("unexpected records %+v (limit %d)", got, repo.limit)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/interactions?limit=abc", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for invalid limit, got %d", rec.Code)
	}

	repo.err = errors.New("db down")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/interactions", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 on journal error, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	NewServer(":0", nil).Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/interactions", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 without journal, got %d", rec.Code)
	}
}

func TestWithContextRejectsAfterShutdown(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	rec := httptest.NewRecorder()
	withContext(ctx, http.NotFoundHandler()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
}
