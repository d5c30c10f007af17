package telegram

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"MarketScanner/internal/domain"
)

func TestSendPostsMessage(t *testing.T) {
	t.Parallel()

	var gotPath, gotChat, gotText string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_ = r.ParseForm()
		gotChat = r.PostForm.Get("chat_id")
		gotText = r.PostForm.Get("text")
		_, _ = w.Write([]byte(`{"ok": true}`))
	}))
	defer server.Close()

	n := NewNotifier("bot-token", "42")
	n.apiBase = server.URL
	n.client = server.Client()

	err := n.Send(context.Background(), domain.Message{
		ListingKey: "ebay-uk:12345",
		Text:       "*Honda CBR125R* £1200",
	})
	if err != nil {
		t.Fatalf("Send error: %v", err)
	}

	if gotPath != "/botbot-token/sendMessage" {
		t.Fatalf("unexpected path: %s", gotPath)
	}
	if gotChat != "42" {
		t.Fatalf("unexpected chat id: %s", gotChat)
	}
	if gotText != "*Honda CBR125R* £1200" {
		t.Fatalf("unexpected text: %s", gotText)
	}
}

func TestSendNonOKStatus(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "too many requests", http.StatusTooManyRequests)
	}))
	defer server.Close()

	n := NewNotifier("bot-token", "42")
	n.apiBase = server.URL
	n.client = server.Client()

	err := n.Send(context.Background(), domain.Message{Text: "hello"})
	if err == nil {
		t.Fatal("expected error for 429 response")
	}

	var sendErr *domain.SendError
	if !errors.As(err, &sendErr) {
		t.Fatalf("expected SendError, got %T", err)
	}
}

func TestSendMisconfigured(t *testing.T) {
	t.Parallel()

	n := NewNotifier("", "")

	err := n.Send(context.Background(), domain.Message{Text: "hello"})
	if err == nil || !strings.Contains(err.Error(), "misconfigured") {
		t.Fatalf("expected misconfigured error, got %v", err)
	}
}
