package generator

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestHTTPGenerator_Submit(t *testing.T) {
	var got Request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/generate" {
			t.Errorf("request = %s %s", r.Method, r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"post_id":"post_123"}`))
	}))
	defer srv.Close()

	g := NewHTTPGenerator(srv.URL+"/", time.Second, discardLogger())
	postID, err := g.Submit(context.Background(), Request{
		Prompt:   "write a tip",
		Metadata: map[string]string{"template_id": "tpl_a"},
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if postID != "post_123" {
		t.Errorf("post id = %q, want post_123", postID)
	}
	if got.Prompt != "write a tip" || got.Metadata["template_id"] != "tpl_a" {
		t.Errorf("server received %+v", got)
	}
}

func TestHTTPGenerator_Errors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantMsg string
	}{
		{"server error", http.StatusBadGateway, "upstream down", "HTTP 502"},
		{"empty post id", http.StatusOK, `{"post_id":""}`, "no post_id"},
		{"bad json", http.StatusOK, `not json`, "decode"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := NewHTTPGenerator(srv.URL, time.Second, discardLogger()).Submit(context.Background(), Request{Prompt: "x"})
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("error %q does not mention %q", err, tt.wantMsg)
			}
		})
	}
}

func TestLocalGenerator(t *testing.T) {
	g := NewLocalGenerator(discardLogger())
	a, err := g.Submit(context.Background(), Request{Prompt: "one"})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	b, _ := g.Submit(context.Background(), Request{Prompt: "two"})
	if a == b || !strings.HasPrefix(a, "local_") {
		t.Errorf("post ids %q, %q", a, b)
	}
	if n := len(g.Requests()); n != 2 {
		t.Errorf("requests = %d, want 2", n)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := g.Submit(ctx, Request{}); err == nil {
		t.Error("expected error for cancelled context")
	}
}
