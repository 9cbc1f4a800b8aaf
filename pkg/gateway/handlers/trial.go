package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/spbui00/mockr/pkg/dialog"
	"github.com/spbui00/mockr/pkg/gateway/config"
	"github.com/spbui00/mockr/pkg/gateway/live/sessions"
	"github.com/spbui00/mockr/pkg/gateway/metrics"
	"github.com/spbui00/mockr/pkg/store"
	"github.com/spbui00/mockr/pkg/trial"
)

// TrialHandler serves the REST lifecycle of trial sessions: creation,
// inspection, context upload, and termination.
type TrialHandler struct {
	Config  config.Config
	Logger  *slog.Logger
	Dialog  *dialog.Client
	Tracker *sessions.Tracker
	Archive store.Archive
	Metrics *metrics.Metrics
}

type roleConfigReq struct {
	Role    string `json:"role"`
	Enabled bool   `json:"enabled"`
}

type legalPropertiesReq struct {
	Jurisdiction string   `json:"jurisdiction"`
	LegalAreas   []string `json:"legal_areas"`
}

type caseContextReq struct {
	Description string `json:"description"`
}

type createTrialRequest struct {
	Roles           []roleConfigReq    `json:"roles"`
	LegalProperties legalPropertiesReq `json:"legal_properties"`
	CaseContext     caseContextReq     `json:"case_context"`
}

type agentView struct {
	Role   string   `json:"role"`
	Name   string   `json:"name"`
	Traits []string `json:"traits"`
}

// Create builds a new trial session: retrieves legal context, renders one
// agent per enabled role, and registers the session for the WebSocket relay.
func (h *TrialHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createTrialRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.LegalProperties.Jurisdiction) == "" {
		writeError(w, r, http.StatusBadRequest, "jurisdiction is required")
		return
	}

	var roles []trial.Role
	for _, rc := range req.Roles {
		if !rc.Enabled {
			continue
		}
		role, err := trial.ParseRole(rc.Role)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		roles = append(roles, role)
	}
	if len(roles) == 0 {
		writeError(w, r, http.StatusBadRequest, "at least one role must be enabled")
		return
	}
	if h.Tracker.Count() >= h.Config.MaxSessions {
		writeError(w, r, http.StatusServiceUnavailable, "session limit reached")
		return
	}

	retrieved := h.Dialog.LegalContext(r.Context(), req.LegalProperties.Jurisdiction, req.LegalProperties.LegalAreas, req.CaseContext.Description)
	legal := trial.LegalContext{
		Jurisdiction: retrieved.Jurisdiction,
		LegalAreas:   retrieved.LegalAreas,
	}

	sessionID := uuid.NewString()
	sess := trial.NewSession(sessionID, h.Config.DialogFlowID)
	sess.SetContext(legal, req.CaseContext.Description)

	configs := make([]trial.AgentConfig, 0, len(roles))
	for _, role := range roles {
		cfg, err := trial.NewAgentConfig(role, legal, req.CaseContext.Description)
		if err != nil {
			writeError(w, r, http.StatusInternalServerError, fmt.Sprintf("render agent for %s: %v", role, err))
			return
		}
		configs = append(configs, cfg)
	}
	sess.ConfigureAgents(configs)

	h.Tracker.Put(sess, sessions.Handle{})
	h.Logger.Info("trial created", "session_id", sessionID, "roles", len(configs), "jurisdiction", legal.Jurisdiction)

	writeJSON(w, http.StatusOK, map[string]any{
		"session_id": sessionID,
		"status":     string(sess.Status()),
		"agents":     agentViews(sess),
	})
}

// Get returns the session's status, agents, and transcript.
func (h *TrialHandler) Get(w http.ResponseWriter, r *http.Request) {
	sess := h.Tracker.Get(r.PathValue("session_id"))
	if sess == nil {
		writeError(w, r, http.StatusNotFound, "Session not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"session_id": sess.ID(),
		"status":     string(sess.Status()),
		"agents":     agentViews(sess),
		"messages":   sess.Transcript(),
	})
}

// UploadContext attaches additional case material to the session. Only plain
// text documents are accepted; extraction of other formats is out of scope.
func (h *TrialHandler) UploadContext(w http.ResponseWriter, r *http.Request) {
	sess := h.Tracker.Get(r.PathValue("session_id"))
	if sess == nil {
		writeError(w, r, http.StatusNotFound, "Session not found")
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, h.Config.MaxUploadBytes+1))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "failed to read document")
		return
	}
	if int64(len(body)) > h.Config.MaxUploadBytes {
		writeError(w, r, http.StatusRequestEntityTooLarge, fmt.Sprintf("document exceeds the %d byte limit", h.Config.MaxUploadBytes))
		return
	}
	text := strings.ToValidUTF8(string(body), "")
	if strings.TrimSpace(text) == "" {
		writeError(w, r, http.StatusBadRequest, "document is empty")
		return
	}

	filename := strings.TrimSpace(r.URL.Query().Get("filename"))
	if filename == "" {
		filename = "document.txt"
	}

	legal, caseContext := sess.Context()
	sess.SetContext(legal, fmt.Sprintf("%s\n\n[%s]\n%s", caseContext, filename, text))

	writeJSON(w, http.StatusOK, map[string]any{
		"filename":              filename,
		"extracted_text_length": len(text),
		"status":                "processed",
	})
}

// Delete ends the trial, archives its transcript, and removes it from the
// registry.
func (h *TrialHandler) Delete(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("session_id")
	sess := h.Tracker.Get(sessionID)
	if sess == nil {
		writeError(w, r, http.StatusNotFound, "Session not found")
		return
	}

	if err := sess.End(); err != nil {
		h.Logger.Warn("end trial", "session_id", sessionID, "error", err)
	}
	archiveSession(r.Context(), h.Archive, h.Logger, sess)
	h.Tracker.Remove(sessionID)

	writeJSON(w, http.StatusOK, map[string]any{
		"status":     "ended",
		"session_id": sessionID,
	})
}

// Transcript serves the archived transcript of an ended session.
func (h *TrialHandler) Transcript(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("session_id")
	entries, err := h.Archive.Transcript(r.Context(), sessionID)
	if err != nil {
		if err == store.ErrNotFound {
			writeError(w, r, http.StatusNotFound, "Session not found")
			return
		}
		writeError(w, r, http.StatusInternalServerError, "archive lookup failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"session_id": sessionID,
		"messages":   entries,
	})
}

func agentViews(sess *trial.Session) []agentView {
	agents := sess.Agents()
	out := make([]agentView, 0, len(agents))
	for _, a := range agents {
		out = append(out, agentView{Role: string(a.Role), Name: a.DisplayName, Traits: a.Traits})
	}
	return out
}

// archiveSession persists a snapshot; archive failures are logged, never
// surfaced to the client.
func archiveSession(ctx context.Context, archive store.Archive, logger *slog.Logger, sess *trial.Session) {
	if archive == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := archive.Save(ctx, store.TakeSnapshot(sess)); err != nil && logger != nil {
		logger.Error("archive session", "session_id", sess.ID(), "error", err)
	}
}
