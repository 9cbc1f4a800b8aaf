// Package protocol defines the typed frames exchanged with clients over the
// trial and fact-gathering WebSocket endpoints, and the strict decode of
// inbound frames.
package protocol

import (
	"encoding/json"
	"fmt"
	"strings"
)

// DecodeError reports a malformed or unsupported inbound frame. It is
// client-visible and non-fatal: the relay reports it and keeps reading.
type DecodeError struct {
	Code    string
	Message string
	Param   string
}

func (e *DecodeError) Error() string {
	if e == nil {
		return ""
	}
	if strings.TrimSpace(e.Param) == "" {
		return e.Message
	}
	return fmt.Sprintf("%s (%s)", e.Message, e.Param)
}

func badRequest(message, param string) *DecodeError {
	return &DecodeError{Code: "bad_request", Message: message, Param: param}
}

func unsupported(message, param string) *DecodeError {
	return &DecodeError{Code: "unsupported", Message: message, Param: param}
}

// Inbound client frames.

// ClientInitialize starts a fact-gathering conversation against a dialog
// flow.
type ClientInitialize struct {
	Type   string `json:"type"`
	FlowID string `json:"flowId"`
}

// ClientMessage carries a typed user message on the fact-gathering endpoint.
type ClientMessage struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// ClientUpload carries a base64-encoded case document.
type ClientUpload struct {
	Type     string `json:"type"`
	FileB64  string `json:"file"`
	Filename string `json:"filename"`
}

// ClientAudio carries a base64-encoded recorded utterance on the trial
// endpoint.
type ClientAudio struct {
	Type     string `json:"type"`
	AudioB64 string `json:"audio"`
}

// ClientText carries a typed user utterance on the trial endpoint.
type ClientText struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// ClientEndTrial requests an orderly end of the trial session.
type ClientEndTrial struct {
	Type string `json:"type"`
}

// DecodeClientMessage parses one inbound JSON frame into its typed form.
// Unknown types and frames missing required fields come back as *DecodeError.
func DecodeClientMessage(data []byte) (any, error) {
	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, badRequest("invalid json frame", "")
	}
	typ := strings.TrimSpace(envelope.Type)
	if typ == "" {
		return nil, badRequest("missing type", "type")
	}

	switch typ {
	case "initialize":
		var msg ClientInitialize
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badRequest("invalid initialize frame", "")
		}
		if strings.TrimSpace(msg.FlowID) == "" {
			return nil, badRequest("Flow ID is required", "flowId")
		}
		return msg, nil
	case "message":
		var msg ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badRequest("invalid message frame", "")
		}
		if strings.TrimSpace(msg.Text) == "" {
			return nil, badRequest("Message text is required", "text")
		}
		return msg, nil
	case "upload":
		var msg ClientUpload
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badRequest("invalid upload frame", "")
		}
		if strings.TrimSpace(msg.Filename) == "" {
			return nil, badRequest("Filename is required", "filename")
		}
		if strings.TrimSpace(msg.FileB64) == "" {
			return nil, badRequest("File data is required", "file")
		}
		return msg, nil
	case "audio":
		var msg ClientAudio
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badRequest("invalid audio frame", "")
		}
		if strings.TrimSpace(msg.AudioB64) == "" {
			return nil, badRequest("Audio data is required", "audio")
		}
		return msg, nil
	case "text":
		var msg ClientText
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badRequest("invalid text frame", "")
		}
		if strings.TrimSpace(msg.Text) == "" {
			return nil, badRequest("Message text is required", "text")
		}
		return msg, nil
	case "end_trial":
		return ClientEndTrial{Type: typ}, nil
	default:
		return nil, unsupported(fmt.Sprintf("Unknown message type: %s", typ), "type")
	}
}

// Outbound server frames.

type ServerConnected struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
	Message   string `json:"message,omitempty"`
}

type ServerUserMessage struct {
	Type      string `json:"type"`
	Content   string `json:"content"`
	Timestamp string `json:"timestamp"`
}

type ServerAgentThinking struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// ServerAIMessage is an incremental assistant fragment. IsComplete stays
// false on every mid-turn fragment; the finalized turn arrives separately.
type ServerAIMessage struct {
	Type       string `json:"type"`
	Text       string `json:"text"`
	IsComplete bool   `json:"isComplete"`
}

type ServerAgentResponse struct {
	Type      string `json:"type"`
	Role      string `json:"role"`
	Content   string `json:"content"`
	Timestamp string `json:"timestamp"`
}

type ServerSynthesizing struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type ServerAgentAudio struct {
	Type     string `json:"type"`
	Role     string `json:"role"`
	AudioB64 string `json:"audio"`
	Text     string `json:"text"`
}

type ServerTranscription struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type ServerProcessing struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type ServerConversationCreated struct {
	Type           string `json:"type"`
	ConversationID string `json:"conversationId"`
}

type ServerStreamingStart struct {
	Type string `json:"type"`
}

type ServerStreamingEnd struct {
	Type string `json:"type"`
}

type ServerAwaitingInput struct {
	Type        string `json:"type"`
	ExecutionID string `json:"executionId"`
}

type ServerFlowComplete struct {
	Type string `json:"type"`
}

type ServerTrialEnded struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type ServerFileUploaded struct {
	Type       string `json:"type"`
	Filename   string `json:"filename"`
	ResourceID string `json:"resourceId"`
	Size       int    `json:"size"`
}

type ServerError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// Frame constructors keep type tags in one place.

func Connected(sessionID, message string) ServerConnected {
	return ServerConnected{Type: "connected", SessionID: sessionID, Message: message}
}

func UserMessage(content, timestamp string) ServerUserMessage {
	return ServerUserMessage{Type: "user_message", Content: content, Timestamp: timestamp}
}

func AgentThinking(message string) ServerAgentThinking {
	return ServerAgentThinking{Type: "agent_thinking", Message: message}
}

func AIMessage(text string) ServerAIMessage {
	return ServerAIMessage{Type: "ai_message", Text: text, IsComplete: false}
}

func AgentResponse(role, content, timestamp string) ServerAgentResponse {
	return ServerAgentResponse{Type: "agent_response", Role: role, Content: content, Timestamp: timestamp}
}

func Synthesizing(message string) ServerSynthesizing {
	return ServerSynthesizing{Type: "synthesizing", Message: message}
}

func AgentAudio(role, audioB64, text string) ServerAgentAudio {
	return ServerAgentAudio{Type: "agent_audio", Role: role, AudioB64: audioB64, Text: text}
}

func Transcription(text string) ServerTranscription {
	return ServerTranscription{Type: "transcription", Text: text}
}

func Processing(message string) ServerProcessing {
	return ServerProcessing{Type: "processing", Message: message}
}

func ConversationCreated(conversationID string) ServerConversationCreated {
	return ServerConversationCreated{Type: "conversation_created", ConversationID: conversationID}
}

func StreamingStart() ServerStreamingStart { return ServerStreamingStart{Type: "streaming_start"} }

func StreamingEnd() ServerStreamingEnd { return ServerStreamingEnd{Type: "streaming_end"} }

func AwaitingInput(executionID string) ServerAwaitingInput {
	return ServerAwaitingInput{Type: "awaiting_input", ExecutionID: executionID}
}

func FlowComplete() ServerFlowComplete { return ServerFlowComplete{Type: "flow_complete"} }

func TrialEnded(message string) ServerTrialEnded {
	return ServerTrialEnded{Type: "trial_ended", Message: message}
}

func FileUploaded(filename, resourceID string, size int) ServerFileUploaded {
	return ServerFileUploaded{Type: "file_uploaded", Filename: filename, ResourceID: resourceID, Size: size}
}

func Error(message string) ServerError {
	return ServerError{Type: "error", Message: message}
}
