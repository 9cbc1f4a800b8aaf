package dialog

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func testClient(t *testing.T, baseURL string) *Client {
	t.Helper()
	c, err := NewClient(Options{
		BaseURL:    baseURL,
		APIKey:     "test-key",
		RetryBase:  time.Millisecond,
		MaxRetries: 2,
	})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return c
}

func TestSendMessageRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/conversations/messages" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"conversationId":"conv-1"}`))
	}))
	defer srv.Close()

	c := testClient(t, srv.URL)
	resp, err := c.SendMessage(context.Background(), SendMessageRequest{UserMessage: "hello"})
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if resp.ConversationID != "conv-1" {
		t.Fatalf("ConversationID = %q", resp.ConversationID)
	}
	if got := calls.Load(); got != 3 {
		t.Fatalf("expected 3 attempts, got %d", got)
	}
}

func TestSendMessageDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"error":"bad message"}`))
	}))
	defer srv.Close()

	c := testClient(t, srv.URL)
	_, err := c.SendMessage(context.Background(), SendMessageRequest{UserMessage: "hello"})
	if err == nil {
		t.Fatal("expected error")
	}
	var statusErr *StatusError
	if !errors.As(err, &statusErr) || statusErr.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := calls.Load(); got != 1 {
		t.Fatalf("expected exactly 1 attempt, got %d", got)
	}
}

func TestUploadResource(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/resources" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse multipart: %v", err)
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			t.Fatalf("form file: %v", err)
		}
		defer file.Close()
		if header.Filename != "contract.txt" {
			t.Errorf("filename = %q", header.Filename)
		}
		payload, _ := io.ReadAll(file)
		if string(payload) != "the signed contract" {
			t.Errorf("payload = %q", payload)
		}
		_, _ = w.Write([]byte(`{"resourceId":"res-42"}`))
	}))
	defer srv.Close()

	c := testClient(t, srv.URL)
	id, err := c.UploadResource(context.Background(), []byte("the signed contract"), "contract.txt")
	if err != nil {
		t.Fatalf("UploadResource: %v", err)
	}
	if id != "res-42" {
		t.Fatalf("resource id = %q", id)
	}
}

func TestStreamExecutionRequiresExactlyOneInitiator(t *testing.T) {
	c := testClient(t, "http://dialog.invalid")

	if _, err := c.StreamExecution(context.Background(), StreamRequest{}); err == nil {
		t.Fatal("expected error for empty request")
	}
	if _, err := c.StreamExecution(context.Background(), StreamRequest{
		ExecutionID:    "exec-1",
		FlowID:         "flow-1",
		ConversationID: "conv-1",
	}); err == nil {
		t.Fatal("expected error when both initiators are set")
	}
}

func TestStreamExecutionConsumesEvents(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Accept") != "text/event-stream" {
			t.Errorf("missing event-stream accept header")
		}
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = w.Write([]byte("event: message\ndata: {\"text\":\"order\"}\n\nevent: done\ndata: {}\n\n"))
	}))
	defer srv.Close()

	c := testClient(t, srv.URL)
	src, err := c.StreamExecution(context.Background(), StreamRequest{FlowID: "flow-1", ConversationID: "conv-1"})
	if err != nil {
		t.Fatalf("StreamExecution: %v", err)
	}
	defer src.Close()

	ev, err := src.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if msg, ok := ev.(MessageEvent); !ok || msg.Text != "order" {
		t.Fatalf("unexpected event %#v", ev)
	}
}

func TestCatalogFallbacksWhenProviderUnreachable(t *testing.T) {
	c := testClient(t, "http://dialog.invalid")
	ctx, cancel := context.WithTimeout(context.Background(), 250*time.Millisecond)
	defer cancel()

	if got := c.Jurisdictions(ctx); len(got) == 0 {
		t.Fatal("expected static jurisdiction fallback")
	}
	if got := c.LegalAreas(ctx, "us"); len(got) == 0 {
		t.Fatal("expected static legal area fallback")
	}
	if got := c.SearchArticles(ctx, "us", "criminal law", ""); len(got) != 1 {
		t.Fatalf("expected placeholder article, got %d", len(got))
	}
	if got := c.SearchCaseLaw(ctx, "us", "theft", 5); got != nil {
		t.Fatalf("expected nil case law on failure, got %#v", got)
	}
}
