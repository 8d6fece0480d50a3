package custom

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"StackSave/internal/llm"
)

func TestGenerateReadsResponseThenContent(t *testing.T) {
	cases := []struct {
		body string
		want string
	}{
		{body: `{"response":"from response","content":"ignored"}`, want: "from response"},
		{body: `{"content":"from content"}`, want: "from content"},
	}

	for _, tc := range cases {
		var got request
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_ = json.NewDecoder(r.Body).Decode(&got)
			_, _ = w.Write([]byte(tc.body))
		}))

		client, err := NewClient(srv.URL, 0)
		if err != nil {
			srv.Close()
			t.Fatalf("unexpected error: %v", err)
		}
		resp, err := client.Generate(context.Background(), llm.Request{System: "sys", Prompt: "hi"})
		srv.Close()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if resp.Content != tc.want {
			t.Fatalf("expected %q, got %q", tc.want, resp.Content)
		}
		if got.System != "sys" || got.Message != "hi" {
			t.Fatalf("unexpected request: %+v", got)
		}
	}
}

func TestGenerateEmptyBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	client, _ := NewClient(srv.URL, 0)
	if _, err := client.Generate(context.Background(), llm.Request{Prompt: "hi"}); err == nil {
		t.Fatalf("expected error for empty body")
	}
}
