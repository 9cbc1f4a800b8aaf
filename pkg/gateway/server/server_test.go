package server

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/spbui00/mockr/pkg/dialog"
	"github.com/spbui00/mockr/pkg/gateway/config"
)

func testServer(t *testing.T) *Server {
	t.Helper()
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	t.Cleanup(backend.Close)

	client, err := dialog.NewClient(dialog.Options{
		BaseURL: backend.URL,
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	cfg := config.Config{
		DialogAPIURL:      backend.URL,
		DialogFlowID:      "flow-1",
		WSPingInterval:    20 * time.Second,
		WSWriteTimeout:    5 * time.Second,
		WSMaxMessageBytes: 1 << 20,
		MaxSessions:       4,
		MaxUploadBytes:    1 << 20,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(cfg, logger, Dependencies{Dialog: client})
}

func TestServerRoutes(t *testing.T) {
	h := testServer(t).Handler()

	tests := []struct {
		name   string
		method string
		path   string
		want   int
	}{
		{"health", http.MethodGet, "/healthz", http.StatusOK},
		{"ready", http.MethodGet, "/readyz", http.StatusOK},
		{"metrics", http.MethodGet, "/metrics", http.StatusOK},
		{"jurisdictions", http.MethodGet, "/api/configuration/jurisdictions", http.StatusOK},
		{"legal areas", http.MethodGet, "/api/configuration/legal-areas/us", http.StatusOK},
		{"unknown trial session", http.MethodGet, "/api/trial/ghost", http.StatusNotFound},
		{"unknown path", http.MethodGet, "/nope", http.StatusNotFound},
		{"create requires post", http.MethodGet, "/api/trial/create", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(tt.method, tt.path, nil))
			if rec.Code != tt.want {
				t.Fatalf("%s %s = %d, want %d: %s", tt.method, tt.path, rec.Code, tt.want, rec.Body.String())
			}
		})
	}
}

func TestServerAttachesRequestID(t *testing.T) {
	h := testServer(t).Handler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rec.Header().Get("X-Request-ID") == "" {
		t.Fatal("X-Request-ID header missing")
	}
}
