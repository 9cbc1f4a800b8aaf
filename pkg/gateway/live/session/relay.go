// Package session runs the per-connection relay loops for the trial and
// fact-gathering WebSocket endpoints. Each connection gets one reader, one
// sequential control loop, and one writer; no two turns for the same session
// ever run concurrently.
package session

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/spbui00/mockr/pkg/dialog"
	"github.com/spbui00/mockr/pkg/gateway/live/protocol"
	"github.com/spbui00/mockr/pkg/gateway/metrics"
	"github.com/spbui00/mockr/pkg/trial"
	"github.com/spbui00/mockr/pkg/voice"
)

type Config struct {
	PingInterval    time.Duration
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	MaxMessageBytes int64
	TurnTimeout     time.Duration
	MaxUploadBytes  int64
}

type Dependencies struct {
	Logger      *slog.Logger
	Dialog      *dialog.Client
	Transcriber voice.Transcriber
	Synthesizer voice.Synthesizer
	Metrics     *metrics.Metrics
}

// Relay drives one client connection for one session.
type Relay struct {
	cfg     Config
	deps    Dependencies
	session *trial.Session
	flowID  string
}

func NewRelay(sess *trial.Session, cfg Config, deps Dependencies) *Relay {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Relay{
		cfg:     cfg,
		deps:    deps,
		session: sess,
		flowID:  sess.FlowID(),
	}
}

// outbound marshals frames onto the writer channels. Sends are dropped when
// the connection context is gone; the relay loop notices via ctx itself.
type outbound struct {
	ctx      context.Context
	priority chan outboundFrame
	normal   chan outboundFrame
	logger   *slog.Logger
}

func newOutbound(ctx context.Context, logger *slog.Logger) *outbound {
	return &outbound{
		ctx:      ctx,
		priority: make(chan outboundFrame, 16),
		normal:   make(chan outboundFrame, 256),
		logger:   logger,
	}
}

func (o *outbound) send(v any) bool         { return o.enqueue(o.normal, v) }
func (o *outbound) sendPriority(v any) bool { return o.enqueue(o.priority, v) }

func (o *outbound) enqueue(ch chan outboundFrame, v any) bool {
	payload, err := json.Marshal(v)
	if err != nil {
		o.logger.Error("marshal outbound frame", "error", err)
		return false
	}
	select {
	case ch <- outboundFrame{payload: payload}:
		return true
	case <-o.ctx.Done():
		return false
	}
}

func (o *outbound) close() {
	close(o.priority)
	close(o.normal)
}

// readLoop feeds raw inbound frames to the control loop. It closes the
// channel on any read error, which the loops treat as a disconnect.
func readLoop(ctx context.Context, ws *websocket.Conn, cfg Config, inbound chan<- []byte) {
	defer close(inbound)
	if cfg.MaxMessageBytes > 0 {
		ws.SetReadLimit(cfg.MaxMessageBytes)
	}
	for {
		if cfg.ReadTimeout > 0 {
			_ = ws.SetReadDeadline(time.Now().Add(cfg.ReadTimeout))
		}
		_, data, err := ws.ReadMessage()
		if err != nil {
			return
		}
		select {
		case inbound <- data:
		case <-ctx.Done():
			return
		}
	}
}

// RunTrial executes the courtroom relay loop until the client ends the trial
// or disconnects. A disconnect pauses the session; ending it is terminal.
func (r *Relay) RunTrial(ctx context.Context, ws *websocket.Conn) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := r.session.Activate(); err != nil {
		return err
	}

	out := newOutbound(ctx, r.deps.Logger)
	inbound := make(chan []byte, 16)
	writerDone := make(chan error, 1)

	writer := &outboundWriter{ws: ws, ctx: ctx, cfg: r.cfg, priority: out.priority, normal: out.normal}
	go func() {
		// A dead writer means nothing drains the outbound channels; cancel so
		// in-flight turns stop enqueuing instead of blocking forever.
		writerDone <- writer.Run()
		cancel()
	}()
	go readLoop(ctx, ws, r.cfg, inbound)

	out.sendPriority(protocol.Connected(r.session.ID(), "Trial session connected"))

	defer func() {
		cancel()
		<-writerDone
	}()

	for {
		select {
		case <-ctx.Done():
			r.pauseIfLive()
			return ctx.Err()
		case data, ok := <-inbound:
			if !ok {
				r.pauseIfLive()
				return nil
			}
			msg, err := protocol.DecodeClientMessage(data)
			if err != nil {
				r.deps.Metrics.ErrorSeen("decode")
				out.sendPriority(protocol.Error(err.Error()))
				continue
			}
			switch msg := msg.(type) {
			case protocol.ClientText:
				r.runTrialTurn(ctx, out, msg.Text)
			case protocol.ClientAudio:
				r.handleTrialAudio(ctx, out, msg)
			case protocol.ClientEndTrial:
				out.sendPriority(protocol.TrialEnded("The trial session has ended. Thank you."))
				if err := r.session.End(); err != nil {
					r.deps.Logger.Warn("end trial", "session_id", r.session.ID(), "error", err)
				}
				return nil
			default:
				out.sendPriority(protocol.Error(fmt.Sprintf("Message type %q is not supported during a trial", frameType(data))))
			}
		}
	}
}

func (r *Relay) pauseIfLive() {
	if r.session.Status() == trial.StatusEnded {
		return
	}
	if err := r.session.Pause(); err != nil {
		r.deps.Logger.Warn("pause session", "session_id", r.session.ID(), "error", err)
	}
}

func (r *Relay) handleTrialAudio(ctx context.Context, out *outbound, msg protocol.ClientAudio) {
	audio, err := base64.StdEncoding.DecodeString(msg.AudioB64)
	if err != nil {
		r.deps.Metrics.ErrorSeen("decode")
		out.sendPriority(protocol.Error("Audio payload is not valid base64"))
		return
	}

	out.send(protocol.Processing("Transcribing audio..."))

	text := voice.TranscriptionPlaceholder
	if r.deps.Transcriber != nil {
		transcript, err := r.deps.Transcriber.Transcribe(ctx, audio)
		if err != nil || strings.TrimSpace(transcript) == "" {
			r.deps.Logger.Warn("transcription failed", "session_id", r.session.ID(), "error", err)
			r.deps.Metrics.ErrorSeen("transcribe")
		} else {
			text = transcript
		}
	}
	out.send(protocol.Transcription(text))

	r.runTrialTurn(ctx, out, text)
}

// runTrialTurn executes the full user-input pipeline: echo, role selection,
// upstream turn, transcript update, response delivery, speech synthesis.
func (r *Relay) runTrialTurn(ctx context.Context, out *outbound, text string) {
	entry := r.session.AppendUser(text)
	out.send(protocol.UserMessage(entry.Content, entry.Timestamp.Format(time.RFC3339)))

	role := r.session.Selector().Select(text, r.session.LastSpeaker())
	display := string(role)
	if cfg, ok := r.session.Agent(role); ok {
		display = cfg.DisplayName
	}
	out.send(protocol.AgentThinking(fmt.Sprintf("%s is considering the statement...", display)))

	entries, err := r.streamTurn(ctx, out, "trial", text, role, trial.DebatePrompt(role))
	if err != nil {
		r.deps.Logger.Warn("upstream turn failed", "session_id", r.session.ID(), "role", role, "error", err)
		r.deps.Metrics.TurnDone("trial", "fallback")
		reply := fallbackReply(text)
		fallback := r.session.AppendAssistant(role, reply)
		entries = []trial.Entry{fallback}
	}

	for _, e := range entries {
		out.send(protocol.AgentResponse(string(e.Role), e.Content, e.Timestamp.Format(time.RFC3339)))
	}
	if len(entries) == 0 {
		return
	}

	r.speak(ctx, out, role, entries[len(entries)-1].Content)
}

func (r *Relay) speak(ctx context.Context, out *outbound, role trial.Role, text string) {
	if r.deps.Synthesizer == nil {
		return
	}
	out.send(protocol.Synthesizing("Generating speech..."))

	audio, err := r.deps.Synthesizer.Synthesize(ctx, text, role.Voice())
	if err != nil {
		r.deps.Logger.Warn("synthesis failed", "session_id", r.session.ID(), "role", role, "error", err)
		r.deps.Metrics.ErrorSeen("synthesize")
		audio = nil
	}
	out.send(protocol.AgentAudio(string(role), base64.StdEncoding.EncodeToString(audio), text))
}

// streamTurn delivers the user message upstream and assembles the response
// stream. Pending uploads force a fresh execution, discarding any resumable
// handle; otherwise a held handle resumes the prior execution.
func (r *Relay) streamTurn(ctx context.Context, out *outbound, mode, text string, role trial.Role, systemPrompt string) ([]trial.Entry, error) {
	if r.cfg.TurnTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.cfg.TurnTimeout)
		defer cancel()
	}

	resources := r.session.TakePendingResources()
	if len(resources) > 0 {
		r.session.ClearExecutionID()
	}
	resourceIDs := make([]string, 0, len(resources))
	for _, res := range resources {
		resourceIDs = append(resourceIDs, res.ResourceID)
	}

	req := dialog.SendMessageRequest{
		UserMessage:  text,
		SystemPrompt: systemPrompt,
		ResourceIDs:  resourceIDs,
	}
	if convID := r.session.ConversationID(); convID != "" {
		req.ConversationID = &convID
	} else {
		req.Title = "New Case"
	}

	resp, err := r.deps.Dialog.SendMessage(ctx, req)
	if err != nil {
		return nil, err
	}
	if r.session.ConversationID() == "" {
		if err := r.session.SetConversationID(resp.ConversationID); err != nil {
			return nil, err
		}
		out.send(protocol.ConversationCreated(resp.ConversationID))
	}

	streamReq := dialog.StreamRequest{}
	if execID := r.session.ExecutionID(); execID != "" {
		streamReq.ExecutionID = execID
		r.session.ClearExecutionID()
	} else {
		streamReq.FlowID = r.flowID
		streamReq.ConversationID = r.session.ConversationID()
	}

	source, err := r.deps.Dialog.StreamExecution(ctx, streamReq)
	if err != nil {
		return nil, err
	}
	defer source.Close()

	out.send(protocol.StreamingStart())
	assembler := &turnAssembler{source: source, session: r.session, role: role, out: out}
	res := assembler.run()
	out.send(protocol.StreamingEnd())

	if res.err != nil {
		if len(res.entries) > 0 {
			// Partial progress was already finalized; do not replace it with
			// a fallback reply.
			r.deps.Metrics.TurnDone(mode, "error")
			return res.entries, nil
		}
		return nil, res.err
	}
	r.deps.Metrics.TurnDone(mode, outcomeLabel(res.state))
	return res.entries, nil
}

func outcomeLabel(state turnState) string {
	switch state {
	case turnCompleted:
		return "completed"
	case turnSuspended:
		return "suspended"
	case turnStreamEnded:
		return "stream_ended"
	default:
		return "open"
	}
}

// fallbackReply stands in for the selected role when the upstream provider is
// unavailable, acknowledging the user's statement.
func fallbackReply(text string) string {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return "I understand. Please continue."
	}
	runes := []rune(trimmed)
	if len(runes) > 100 {
		trimmed = string(runes[:100])
	}
	return fmt.Sprintf("I acknowledge your statement regarding: %s...", trimmed)
}

func frameType(data []byte) string {
	var envelope struct {
		Type string `json:"type"`
	}
	_ = json.Unmarshal(data, &envelope)
	return envelope.Type
}
