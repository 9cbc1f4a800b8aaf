package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/spbui00/mockr/pkg/dialog"
	"github.com/spbui00/mockr/pkg/gateway/config"
	"github.com/spbui00/mockr/pkg/gateway/live/protocol"
	"github.com/spbui00/mockr/pkg/gateway/live/session"
	"github.com/spbui00/mockr/pkg/gateway/live/sessions"
	"github.com/spbui00/mockr/pkg/gateway/metrics"
	"github.com/spbui00/mockr/pkg/store"
	"github.com/spbui00/mockr/pkg/trial"
	"github.com/spbui00/mockr/pkg/voice"
)

// WSHandler upgrades and runs the two live endpoints. A trial connection
// attaches to a previously created session; a fact-gathering connection
// creates its session on the spot and discards it on disconnect.
type WSHandler struct {
	Config      config.Config
	Logger      *slog.Logger
	Dialog      *dialog.Client
	Transcriber voice.Transcriber
	Synthesizer voice.Synthesizer
	Tracker     *sessions.Tracker
	Archive     store.Archive
	Metrics     *metrics.Metrics
}

func (h *WSHandler) upgrader() websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			if len(h.Config.CORSAllowedOrigins) == 0 {
				return true
			}
			origin := strings.TrimSpace(r.Header.Get("Origin"))
			if origin == "" {
				return true
			}
			_, ok := h.Config.CORSAllowedOrigins[origin]
			return ok
		},
	}
}

func (h *WSHandler) relayConfig() session.Config {
	return session.Config{
		PingInterval:    h.Config.WSPingInterval,
		WriteTimeout:    h.Config.WSWriteTimeout,
		ReadTimeout:     h.Config.WSReadTimeout,
		MaxMessageBytes: h.Config.WSMaxMessageBytes,
		TurnTimeout:     h.Config.TurnTimeout,
		MaxUploadBytes:  h.Config.MaxUploadBytes,
	}
}

func (h *WSHandler) relayDeps() session.Dependencies {
	return session.Dependencies{
		Logger:      h.Logger,
		Dialog:      h.Dialog,
		Transcriber: h.Transcriber,
		Synthesizer: h.Synthesizer,
		Metrics:     h.Metrics,
	}
}

// Trial attaches a client to an existing trial session. An unknown session id
// is fatal for this connection attempt only.
func (h *WSHandler) Trial(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("session_id")
	sess := h.Tracker.Get(sessionID)

	up := h.upgrader()
	ws, err := up.Upgrade(w, r, nil)
	if err != nil {
		h.Logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	if sess == nil {
		h.Metrics.ErrorSeen("unknown_session")
		h.closeWithError(ws, "Session not found")
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	relay := session.NewRelay(sess, h.relayConfig(), h.relayDeps())
	unregister := h.Tracker.Put(sess, sessions.Handle{Cancel: cancel})

	h.Metrics.SessionOpened()
	err = relay.RunTrial(ctx, ws)
	h.Metrics.SessionClosed()
	if err != nil && err != context.Canceled {
		h.Logger.Warn("trial relay ended", "session_id", sessionID, "error", err)
	}

	// Ended trials are archived and dropped; paused ones stay registered for
	// reconnection.
	if sess.Status() == trial.StatusEnded {
		archiveSession(context.Background(), h.Archive, h.Logger, sess)
		unregister()
	} else {
		h.Tracker.Put(sess, sessions.Handle{})
	}
}

// FactGathering runs the intake endpoint. The session lives only as long as
// the connection.
func (h *WSHandler) FactGathering(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("session_id")

	up := h.upgrader()
	ws, err := up.Upgrade(w, r, nil)
	if err != nil {
		h.Logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	if h.Tracker.Count() >= h.Config.MaxSessions {
		h.closeWithError(ws, "Session limit reached")
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sess := trial.NewSession(sessionID, h.Config.DialogFlowID)
	relay := session.NewRelay(sess, h.relayConfig(), h.relayDeps())
	unregister := h.Tracker.Put(sess, sessions.Handle{Cancel: cancel})
	defer unregister()

	h.Metrics.SessionOpened()
	err = relay.RunFactGathering(ctx, ws)
	h.Metrics.SessionClosed()
	if err != nil && err != context.Canceled {
		h.Logger.Warn("fact gathering relay ended", "session_id", sessionID, "error", err)
	}
}

func (h *WSHandler) closeWithError(ws *websocket.Conn, message string) {
	deadline := time.Now().Add(h.Config.WSWriteTimeout)
	_ = ws.SetWriteDeadline(deadline)
	_ = ws.WriteJSON(protocol.Error(message))
	_ = ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, message), deadline)
	_ = ws.Close()
}
