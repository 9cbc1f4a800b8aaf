// Package dialog is the client for the upstream dialog-flow provider: it
// sends conversation messages, uploads resources, and consumes the typed
// server-sent event stream of a dialog execution.
package dialog

import (
	"encoding/json"
	"strings"
)

// Event is one typed event from a dialog execution stream.
type Event interface {
	Kind() string
}

// MessageEvent carries an incremental assistant text fragment.
type MessageEvent struct {
	Text string `json:"text"`
}

func (MessageEvent) Kind() string { return "message" }

// NodeResultEvent reports progress of a flow node.
type NodeResultEvent struct {
	NodeType    string          `json:"nodeType"`
	Status      string          `json:"status"`
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Data        json.RawMessage `json:"data,omitempty"`
}

func (NodeResultEvent) Kind() string { return "node-result" }

// AwaitingInputEvent suspends the execution until the user replies; the
// handle resumes the same logical execution.
type AwaitingInputEvent struct {
	ExecutionID string `json:"executionId"`
}

func (AwaitingInputEvent) Kind() string { return "awaiting-user-input" }

// DoneEvent marks the flow as complete.
type DoneEvent struct{}

func (DoneEvent) Kind() string { return "done" }

// StreamCompleteEvent marks the end of the transport stream itself.
type StreamCompleteEvent struct{}

func (StreamCompleteEvent) Kind() string { return "stream-complete" }

// ErrorEvent surfaces an upstream failure mid-stream.
type ErrorEvent struct {
	Text    string `json:"text"`
	Message string `json:"message"`
}

func (ErrorEvent) Kind() string { return "error" }

// Err returns whichever error field the provider populated.
func (e ErrorEvent) Err() string {
	if strings.TrimSpace(e.Text) != "" {
		return e.Text
	}
	return e.Message
}

// recoverableErrorMarkers identify upstream failures after which the file was
// in fact processed; partial output can be kept as a successful turn.
var recoverableErrorMarkers = []string{
	"file was processed",
	"failed to parse tool response",
}

// Recoverable reports whether the error text matches a known upstream defect
// where accumulated output is still valid.
func (e ErrorEvent) Recoverable() bool {
	lowered := strings.ToLower(e.Err())
	for _, marker := range recoverableErrorMarkers {
		if strings.Contains(lowered, marker) {
			return true
		}
	}
	return false
}

// decodeEvent maps an SSE event name and payload onto a typed Event. Unknown
// names return nil. Undecodable payloads degrade to raw text rather than
// failing the stream.
func decodeEvent(name string, data []byte) Event {
	switch name {
	case "message":
		var ev MessageEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			return MessageEvent{Text: string(data)}
		}
		return ev
	case "node-result":
		var ev NodeResultEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			return MessageEvent{Text: string(data)}
		}
		return ev
	case "awaiting-user-input":
		var ev AwaitingInputEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			return MessageEvent{Text: string(data)}
		}
		return ev
	case "done":
		return DoneEvent{}
	case "stream-complete":
		return StreamCompleteEvent{}
	case "error":
		var ev ErrorEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			return ErrorEvent{Message: string(data)}
		}
		return ev
	default:
		return nil
	}
}
