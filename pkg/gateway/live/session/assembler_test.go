package session

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/spbui00/mockr/pkg/dialog"
	"github.com/spbui00/mockr/pkg/trial"
)

type scriptedSource struct {
	events []dialog.Event
	err    error
	closed bool
}

func (s *scriptedSource) Next() (dialog.Event, error) {
	if len(s.events) == 0 {
		if s.err != nil {
			return nil, s.err
		}
		return nil, io.EOF
	}
	ev := s.events[0]
	s.events = s.events[1:]
	return ev, nil
}

func (s *scriptedSource) Close() error {
	s.closed = true
	return nil
}

type frame struct {
	Type           string `json:"type"`
	Text           string `json:"text"`
	Message        string `json:"message"`
	Content        string `json:"content"`
	Role           string `json:"role"`
	Audio          string `json:"audio"`
	ExecutionID    string `json:"executionId"`
	ConversationID string `json:"conversationId"`
	ResourceID     string `json:"resourceId"`
	Filename       string `json:"filename"`
}

func runAssembler(t *testing.T, sess *trial.Session, role trial.Role, events []dialog.Event, streamErr error) (turnResult, []frame) {
	t.Helper()
	out := newOutbound(context.Background(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	a := &turnAssembler{
		source:  &scriptedSource{events: events, err: streamErr},
		session: sess,
		role:    role,
		out:     out,
	}
	res := a.run()
	out.close()

	var frames []frame
	for f := range out.priority {
		var decoded frame
		if err := json.Unmarshal(f.payload, &decoded); err != nil {
			t.Fatalf("decode frame: %v", err)
		}
		frames = append(frames, decoded)
	}
	for f := range out.normal {
		var decoded frame
		if err := json.Unmarshal(f.payload, &decoded); err != nil {
			t.Fatalf("decode frame: %v", err)
		}
		frames = append(frames, decoded)
	}
	return res, frames
}

func frameTypes(frames []frame) []string {
	out := make([]string, len(frames))
	for i, f := range frames {
		out[i] = f.Type
	}
	return out
}

func TestAssemblerFragmentsConcatenateIntoFinalEntry(t *testing.T) {
	sess := trial.NewSession("s1", "f1")
	events := []dialog.Event{
		dialog.MessageEvent{Text: "The court "},
		dialog.MessageEvent{Text: "will come "},
		dialog.MessageEvent{Text: "to order.\n"},
		dialog.DoneEvent{},
	}

	res, frames := runAssembler(t, sess, trial.RoleJudge, events, nil)

	if res.state != turnCompleted {
		t.Fatalf("state = %v, want completed", res.state)
	}
	if len(res.entries) != 1 {
		t.Fatalf("expected 1 finalized entry, got %d", len(res.entries))
	}

	// Byte-for-byte: whitespace inside and around fragments survives into the
	// finalized entry.
	var forwarded strings.Builder
	for _, f := range frames {
		if f.Type == "ai_message" {
			forwarded.WriteString(f.Text)
		}
	}
	if got, want := res.entries[0].Content, forwarded.String(); got != want {
		t.Fatalf("finalized entry %q != forwarded fragments %q", got, want)
	}
	if res.entries[0].Role != trial.RoleJudge {
		t.Fatalf("entry role = %q", res.entries[0].Role)
	}
}

func TestAssemblerSuspensionSuppressesLaterDone(t *testing.T) {
	sess := trial.NewSession("s1", "f1")
	events := []dialog.Event{
		dialog.MessageEvent{Text: "What happened next?"},
		dialog.AwaitingInputEvent{ExecutionID: "exec-5"},
		dialog.DoneEvent{},
	}

	res, frames := runAssembler(t, sess, "", events, nil)

	if res.state != turnSuspended {
		t.Fatalf("state = %v, want suspended", res.state)
	}
	if sess.ExecutionID() != "exec-5" {
		t.Fatalf("execution id = %q", sess.ExecutionID())
	}

	var awaiting, complete int
	for _, f := range frames {
		switch f.Type {
		case "awaiting_input":
			awaiting++
			if f.ExecutionID != "exec-5" {
				t.Fatalf("awaiting_input execution id = %q", f.ExecutionID)
			}
		case "flow_complete":
			complete++
		}
	}
	if awaiting != 1 {
		t.Fatalf("awaiting_input sent %d times", awaiting)
	}
	if complete != 0 {
		t.Fatalf("flow_complete must not follow suspension, sent %d times: %v", complete, frameTypes(frames))
	}
}

func TestAssemblerNodeProgressLines(t *testing.T) {
	sess := trial.NewSession("s1", "f1")
	events := []dialog.Event{
		dialog.NodeResultEvent{NodeType: "search", Status: "running", Title: "Gathering facts", Description: "reviewing the complaint"},
		dialog.NodeResultEvent{NodeType: "fact", Status: "completed", Title: "Incident timeline"},
		dialog.NodeResultEvent{NodeType: "search", Status: "completed", Title: "ignored"},
		dialog.DoneEvent{},
	}

	res, _ := runAssembler(t, sess, "", events, nil)

	if len(res.entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(res.entries))
	}
	content := res.entries[0].Content
	if !strings.Contains(content, "Gathering facts: reviewing the complaint...") {
		t.Fatalf("running line missing from %q", content)
	}
	if !strings.Contains(content, "✓ Incident timeline gathered") {
		t.Fatalf("fact confirmation missing from %q", content)
	}
	if strings.Contains(content, "ignored") {
		t.Fatalf("non-fact completion leaked into %q", content)
	}
}

func TestAssemblerErrorFlushesPartialFirst(t *testing.T) {
	sess := trial.NewSession("s1", "f1")
	events := []dialog.Event{
		dialog.MessageEvent{Text: "partial narration"},
		dialog.ErrorEvent{Message: "upstream exploded"},
	}

	res, frames := runAssembler(t, sess, "", events, nil)

	if res.err == nil {
		t.Fatal("expected error result")
	}
	if len(res.entries) != 1 || res.entries[0].Content != "partial narration" {
		t.Fatalf("partial content not flushed: %#v", res.entries)
	}
	types := frameTypes(frames)
	found := false
	for _, typ := range types {
		if typ == "error" {
			found = true
		}
	}
	if !found {
		t.Fatalf("error frame missing: %v", types)
	}
}

func TestAssemblerRecoverableErrorBecomesCompletion(t *testing.T) {
	sess := trial.NewSession("s1", "f1")
	long := strings.Repeat("The document describes the events of the evening. ", 3)
	events := []dialog.Event{
		dialog.MessageEvent{Text: long},
		dialog.ErrorEvent{Message: "the file was processed but a later step failed"},
	}

	res, frames := runAssembler(t, sess, "", events, nil)

	if res.err != nil {
		t.Fatalf("recoverable error should not fail the turn: %v", res.err)
	}
	if res.state != turnCompleted {
		t.Fatalf("state = %v, want completed", res.state)
	}
	for _, f := range frames {
		if f.Type == "error" {
			t.Fatalf("error frame sent for recovered turn: %v", frameTypes(frames))
		}
	}
}

func TestAssemblerRecoverableErrorWithoutContentStillFails(t *testing.T) {
	sess := trial.NewSession("s1", "f1")
	events := []dialog.Event{
		dialog.MessageEvent{Text: "ok"},
		dialog.ErrorEvent{Message: "the file was processed but a later step failed"},
	}

	res, _ := runAssembler(t, sess, "", events, nil)
	if res.err == nil {
		t.Fatal("short partial content must not count as a completed turn")
	}
}

func TestAssemblerInfersAwaitingInputAfterStreamEnd(t *testing.T) {
	sess := trial.NewSession("s1", "f1")
	sess.SetExecutionID("exec-7")
	events := []dialog.Event{
		dialog.MessageEvent{Text: "Please provide more detail."},
	}

	res, frames := runAssembler(t, sess, "", events, nil)

	if res.state != turnSuspended {
		t.Fatalf("state = %v, want suspended", res.state)
	}
	var sawAwaiting bool
	for _, f := range frames {
		if f.Type == "awaiting_input" && f.ExecutionID == "exec-7" {
			sawAwaiting = true
		}
	}
	if !sawAwaiting {
		t.Fatalf("expected inferred awaiting_input frame: %v", frameTypes(frames))
	}
	if len(res.entries) != 1 {
		t.Fatalf("remaining buffer not flushed: %#v", res.entries)
	}
}

func TestAssemblerStreamEndWithoutHandle(t *testing.T) {
	sess := trial.NewSession("s1", "f1")
	events := []dialog.Event{
		dialog.MessageEvent{Text: "trailing text"},
	}

	res, _ := runAssembler(t, sess, "", events, nil)
	if res.state != turnStreamEnded {
		t.Fatalf("state = %v, want stream ended", res.state)
	}
	if len(res.entries) != 1 {
		t.Fatalf("trailing buffer not flushed: %#v", res.entries)
	}
}

func TestAssemblerStreamCompleteStopsReading(t *testing.T) {
	sess := trial.NewSession("s1", "f1")
	src := &scriptedSource{events: []dialog.Event{
		dialog.MessageEvent{Text: "first"},
		dialog.StreamCompleteEvent{},
		dialog.MessageEvent{Text: "never read"},
	}}
	out := newOutbound(context.Background(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	a := &turnAssembler{source: src, session: sess, out: out}

	res := a.run()
	out.close()

	if res.state != turnStreamEnded {
		t.Fatalf("state = %v, want stream ended", res.state)
	}
	if len(src.events) != 1 {
		t.Fatalf("events after stream-complete must not be consumed, %d left", len(src.events))
	}
	if len(res.entries) != 1 || res.entries[0].Content != "first" {
		t.Fatalf("unexpected entries %#v", res.entries)
	}
}

func TestAssemblerTransportErrorKeepsPartialWork(t *testing.T) {
	sess := trial.NewSession("s1", "f1")
	res, _ := runAssembler(t, sess, "", []dialog.Event{
		dialog.MessageEvent{Text: "halfway through"},
	}, io.ErrUnexpectedEOF)

	if res.err == nil {
		t.Fatal("expected transport error")
	}
	if len(res.entries) != 1 || res.entries[0].Content != "halfway through" {
		t.Fatalf("partial work dropped: %#v", res.entries)
	}
}
