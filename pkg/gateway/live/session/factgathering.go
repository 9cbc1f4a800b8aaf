package session

import (
	"context"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/gorilla/websocket"

	"github.com/spbui00/mockr/pkg/gateway/live/protocol"
	"github.com/spbui00/mockr/pkg/trial"
)

// factGatheringPrompt steers the assistant while it collects case details
// before a trial is created.
const factGatheringPrompt = `You are an AI legal assistant helping to gather case facts for a mock trial simulation.
Your role is to ask relevant questions about the case, understand the context, gather important details,
and prepare comprehensive case information that will be used in the trial. Be thorough, professional,
and guide the user through providing all necessary details about their case.`

// factGatheringGreeting opens the conversation on behalf of the user.
const factGatheringGreeting = "Hello, I need help with my case."

// RunFactGathering executes the intake relay loop. Unlike a trial, the
// session does not survive a disconnect; the caller removes it from the
// registry when this returns.
func (r *Relay) RunFactGathering(ctx context.Context, ws *websocket.Conn) error {
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

	out.sendPriority(protocol.Connected(r.session.ID(), ""))

	defer func() {
		cancel()
		<-writerDone
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case data, ok := <-inbound:
			if !ok {
				return nil
			}
			msg, err := protocol.DecodeClientMessage(data)
			if err != nil {
				r.deps.Metrics.ErrorSeen("decode")
				out.sendPriority(protocol.Error(err.Error()))
				continue
			}
			switch msg := msg.(type) {
			case protocol.ClientInitialize:
				r.handleInitialize(ctx, out, msg)
			case protocol.ClientMessage:
				r.handleFactMessage(ctx, out, msg)
			case protocol.ClientUpload:
				r.handleUpload(ctx, out, msg)
			default:
				out.sendPriority(protocol.Error(fmt.Sprintf("Unknown message type: %s", frameType(data))))
			}
		}
	}
}

// handleInitialize opens the upstream conversation with a canned greeting and
// runs the flow's first turn.
func (r *Relay) handleInitialize(ctx context.Context, out *outbound, msg protocol.ClientInitialize) {
	r.flowID = msg.FlowID

	if _, err := r.streamTurn(ctx, out, "fact_gathering", factGatheringGreeting, "", factGatheringPrompt); err != nil {
		r.deps.Logger.Warn("initialize failed", "session_id", r.session.ID(), "error", err)
		r.deps.Metrics.ErrorSeen("initialize")
		out.sendPriority(protocol.Error(fmt.Sprintf("Initialization failed: %v", err)))
	}
}

func (r *Relay) handleFactMessage(ctx context.Context, out *outbound, msg protocol.ClientMessage) {
	if r.session.ConversationID() == "" {
		out.sendPriority(protocol.Error("No active conversation. Initialize first."))
		return
	}

	entry := r.session.AppendUser(msg.Text)
	out.send(protocol.UserMessage(entry.Content, entry.Timestamp.Format(time.RFC3339)))
	out.send(protocol.Processing("Processing your message..."))

	if _, err := r.streamTurn(ctx, out, "fact_gathering", msg.Text, "", ""); err != nil {
		r.deps.Logger.Warn("fact message failed", "session_id", r.session.ID(), "error", err)
		r.deps.Metrics.ErrorSeen("stream")
		out.sendPriority(protocol.Error(fmt.Sprintf("Message handling failed: %v", err)))
	}
}

// handleUpload pushes a case document to the dialog provider and stages its
// resource handle for the next outbound user message.
func (r *Relay) handleUpload(ctx context.Context, out *outbound, msg protocol.ClientUpload) {
	data, err := base64.StdEncoding.DecodeString(msg.FileB64)
	if err != nil {
		r.deps.Metrics.ErrorSeen("decode")
		out.sendPriority(protocol.Error("File payload is not valid base64"))
		return
	}
	if r.cfg.MaxUploadBytes > 0 && int64(len(data)) > r.cfg.MaxUploadBytes {
		out.sendPriority(protocol.Error(fmt.Sprintf("File exceeds the %d byte upload limit", r.cfg.MaxUploadBytes)))
		return
	}

	resourceID, err := r.deps.Dialog.UploadResource(ctx, data, msg.Filename)
	if err != nil {
		r.deps.Logger.Warn("upload failed", "session_id", r.session.ID(), "filename", msg.Filename, "error", err)
		r.deps.Metrics.ErrorSeen("upload")
		out.sendPriority(protocol.Error(fmt.Sprintf("File upload failed: %v", err)))
		return
	}

	r.session.StageResource(trial.ResourceRef{ResourceID: resourceID, Name: msg.Filename})
	r.deps.Metrics.UploadDone()
	out.send(protocol.FileUploaded(msg.Filename, resourceID, len(data)))
}
