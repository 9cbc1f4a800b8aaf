package server

import (
	"log/slog"
	"net/http"

	"github.com/spbui00/mockr/pkg/dialog"
	"github.com/spbui00/mockr/pkg/gateway/config"
	"github.com/spbui00/mockr/pkg/gateway/handlers"
	"github.com/spbui00/mockr/pkg/gateway/live/sessions"
	"github.com/spbui00/mockr/pkg/gateway/metrics"
	"github.com/spbui00/mockr/pkg/gateway/mw"
	"github.com/spbui00/mockr/pkg/store"
	"github.com/spbui00/mockr/pkg/voice"
)

type Server struct {
	cfg    config.Config
	logger *slog.Logger
	mux    *http.ServeMux

	dialog      *dialog.Client
	transcriber voice.Transcriber
	synthesizer voice.Synthesizer
	archive     store.Archive
	tracker     *sessions.Tracker
	metrics     *metrics.Metrics
}

// Dependencies are the external collaborators the server wires into its
// handlers. Nil Transcriber/Synthesizer disable speech; a nil Archive keeps
// transcripts in memory for the process lifetime.
type Dependencies struct {
	Dialog      *dialog.Client
	Transcriber voice.Transcriber
	Synthesizer voice.Synthesizer
	Archive     store.Archive
	Metrics     *metrics.Metrics
}

func New(cfg config.Config, logger *slog.Logger, deps Dependencies) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if deps.Archive == nil {
		deps.Archive = store.NewMemoryArchive()
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.New()
	}

	s := &Server{
		cfg:         cfg,
		logger:      logger,
		mux:         http.NewServeMux(),
		dialog:      deps.Dialog,
		transcriber: deps.Transcriber,
		synthesizer: deps.Synthesizer,
		archive:     deps.Archive,
		tracker:     sessions.NewTracker(),
		metrics:     deps.Metrics,
	}

	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.Handle("/healthz", handlers.HealthHandler{})
	s.mux.Handle("/readyz", handlers.ReadyHandler{Config: s.cfg})
	s.mux.Handle("/metrics", s.metrics.Handler())

	trialHandler := &handlers.TrialHandler{
		Config:  s.cfg,
		Logger:  s.logger,
		Dialog:  s.dialog,
		Tracker: s.tracker,
		Archive: s.archive,
		Metrics: s.metrics,
	}
	s.mux.HandleFunc("POST /api/trial/create", trialHandler.Create)
	s.mux.HandleFunc("GET /api/trial/{session_id}", trialHandler.Get)
	s.mux.HandleFunc("POST /api/trial/{session_id}/context", trialHandler.UploadContext)
	s.mux.HandleFunc("GET /api/trial/{session_id}/transcript", trialHandler.Transcript)
	s.mux.HandleFunc("DELETE /api/trial/{session_id}", trialHandler.Delete)

	configHandler := &handlers.ConfigurationHandler{Dialog: s.dialog}
	s.mux.HandleFunc("GET /api/configuration/jurisdictions", configHandler.Jurisdictions)
	s.mux.HandleFunc("GET /api/configuration/legal-areas/{jurisdiction}", configHandler.LegalAreas)
	s.mux.HandleFunc("GET /api/configuration/articles", configHandler.Articles)

	wsHandler := &handlers.WSHandler{
		Config:      s.cfg,
		Logger:      s.logger,
		Dialog:      s.dialog,
		Transcriber: s.transcriber,
		Synthesizer: s.synthesizer,
		Tracker:     s.tracker,
		Archive:     s.archive,
		Metrics:     s.metrics,
	}
	s.mux.HandleFunc("GET /ws/trial/{session_id}", wsHandler.Trial)
	s.mux.HandleFunc("GET /ws/fact-gathering/{session_id}", wsHandler.FactGathering)

	s.mux.Handle("/", handlers.NotFoundHandler{})
}

func (s *Server) Handler() http.Handler {
	var h http.Handler = s.mux
	h = mw.CORS(s.cfg, h)
	h = mw.Recover(s.logger, h)
	h = mw.AccessLog(s.logger, h)
	h = mw.RequestID(h)
	return h
}

// Tracker exposes the live session registry for shutdown coordination.
func (s *Server) Tracker() *sessions.Tracker {
	return s.tracker
}
