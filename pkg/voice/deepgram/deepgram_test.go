package deepgram

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestTranscribe(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/listen" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Token dg-key" {
			t.Errorf("authorization = %q", got)
		}
		q := r.URL.Query()
		if q.Get("model") != "nova-2" || q.Get("smart_format") != "true" || q.Get("language") != "en-US" {
			t.Errorf("query = %v", q)
		}
		body, _ := io.ReadAll(r.Body)
		if string(body) != "raw-audio" {
			t.Errorf("body = %q", body)
		}
		_, _ = w.Write([]byte(`{"results":{"channels":[{"alternatives":[{"transcript":"the defendant was elsewhere"}]}]}}`))
	}))
	defer srv.Close()

	c := NewWithBaseURL("dg-key", srv.URL, nil)
	got, err := c.Transcribe(context.Background(), []byte("raw-audio"))
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if got != "the defendant was elsewhere" {
		t.Fatalf("transcript = %q", got)
	}
}

func TestTranscribeEmptyResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"results":{"channels":[]}}`))
	}))
	defer srv.Close()

	c := NewWithBaseURL("dg-key", srv.URL, nil)
	if _, err := c.Transcribe(context.Background(), []byte("raw-audio")); err == nil {
		t.Fatal("expected error for a transcript-free response")
	}
}

func TestSynthesize(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/speak" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("model"); got != "aura-athena-en" {
			t.Errorf("model = %q", got)
		}
		var payload struct {
			Text string `json:"text"`
		}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil || payload.Text != "Order in the court." {
			t.Errorf("payload = %#v (%v)", payload, err)
		}
		_, _ = w.Write([]byte("mp3-bytes"))
	}))
	defer srv.Close()

	c := NewWithBaseURL("dg-key", srv.URL, nil)
	audio, err := c.Synthesize(context.Background(), "Order in the court.", "aura-athena-en")
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if string(audio) != "mp3-bytes" {
		t.Fatalf("audio = %q", audio)
	}
}

func TestSynthesizeDefaultsVoice(t *testing.T) {
	var model string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		model = r.URL.Query().Get("model")
		_, _ = w.Write([]byte("audio"))
	}))
	defer srv.Close()

	c := NewWithBaseURL("dg-key", srv.URL, nil)
	if _, err := c.Synthesize(context.Background(), "hello", "  "); err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if model != "aura-asteria-en" {
		t.Fatalf("model = %q", model)
	}
}

func TestErrorResponsesIncludeStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte("bad key"))
	}))
	defer srv.Close()

	c := NewWithBaseURL("dg-key", srv.URL, nil)
	if _, err := c.Transcribe(context.Background(), nil); err == nil || !strings.Contains(err.Error(), "401") {
		t.Fatalf("listen error = %v", err)
	}
	if _, err := c.Synthesize(context.Background(), "hello", ""); err == nil || !strings.Contains(err.Error(), "401") {
		t.Fatalf("speak error = %v", err)
	}
}
