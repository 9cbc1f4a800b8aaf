package handlers

import (
	"net/http"
	"strings"

	"github.com/spbui00/mockr/pkg/gateway/config"
)

type HealthHandler struct{}

func (h HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok\n"))
}

type ReadyHandler struct {
	Config config.Config
}

func (h ReadyHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	type readyResp struct {
		OK             bool     `json:"ok"`
		SpeechEnabled  bool     `json:"speech_enabled"`
		ArchiveEnabled bool     `json:"archive_enabled"`
		Issues         []string `json:"issues,omitempty"`
	}

	issues := make([]string, 0, 4)

	if strings.TrimSpace(h.Config.DialogAPIURL) == "" {
		issues = append(issues, "dialog api url not configured")
	}
	if h.Config.WSPingInterval <= 0 || h.Config.WSWriteTimeout <= 0 {
		issues = append(issues, "websocket timeouts must be > 0")
	}
	if h.Config.ReadHeaderTimeout <= 0 || h.Config.ReadTimeout <= 0 {
		issues = append(issues, "timeouts must be > 0")
	}
	if h.Config.MaxSessions <= 0 {
		issues = append(issues, "max sessions must be > 0")
	}

	ok := len(issues) == 0
	status := http.StatusOK
	if !ok {
		status = http.StatusInternalServerError
	}

	writeJSON(w, status, readyResp{
		OK:             ok,
		SpeechEnabled:  strings.TrimSpace(h.Config.DeepgramAPIKey) != "",
		ArchiveEnabled: strings.TrimSpace(h.Config.ArchiveDSN) != "",
		Issues:         issues,
	})
}
