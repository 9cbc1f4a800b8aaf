package session

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spbui00/mockr/pkg/dialog"
	"github.com/spbui00/mockr/pkg/gateway/live/protocol"
	"github.com/spbui00/mockr/pkg/trial"
)

// turnState classifies how one upstream turn ended.
type turnState int

const (
	// turnOpen means no terminal or suspension marker arrived yet.
	turnOpen turnState = iota
	// turnCompleted means the flow signaled done (or a recoverable error was
	// promoted to completion).
	turnCompleted
	// turnSuspended means upstream is awaiting further user input; the
	// execution handle on the session resumes the same turn later.
	turnSuspended
	// turnStreamEnded means the transport stream closed without a flow
	// terminal marker and no resumable handle was held.
	turnStreamEnded
)

// meaningfulTurnBytes is the minimum flushed-content length for a recoverable
// upstream error to count as a successful completion.
const meaningfulTurnBytes = 50

// turnResult is what one assembled turn produced.
type turnResult struct {
	state   turnState
	entries []trial.Entry
	err     error
}

// turnAssembler consumes the event stream of exactly one upstream execution
// attempt, forwarding incremental fragments to the client and finalizing
// buffered text into assistant transcript entries. It is single-use.
type turnAssembler struct {
	source  dialog.EventSource
	session *trial.Session
	role    trial.Role // empty in fact-gathering mode
	out     *outbound

	buf strings.Builder
}

// run drains the source. Finalization happens only at suspension, completion,
// or stream end; fragments and progress lines are forwarded in arrival order.
func (a *turnAssembler) run() turnResult {
	var res turnResult

	for {
		ev, err := a.source.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return a.finishAfterStream(res)
			}
			// Transport failure mid-turn. Keep whatever was assembled.
			a.flush(&res)
			res.err = err
			return res
		}

		switch ev := ev.(type) {
		case dialog.MessageEvent:
			a.buf.WriteString(ev.Text)
			a.out.send(protocol.AIMessage(ev.Text))

		case dialog.NodeResultEvent:
			line := a.progressLine(ev)
			if line == "" {
				continue
			}
			a.buf.WriteString(line)
			a.out.send(protocol.AIMessage(line))

		case dialog.AwaitingInputEvent:
			a.session.SetExecutionID(ev.ExecutionID)
			a.flush(&res)
			res.state = turnSuspended
			a.out.send(protocol.AwaitingInput(ev.ExecutionID))

		case dialog.DoneEvent:
			// Suspension takes precedence: a done after awaiting-user-input
			// must not signal completion twice.
			if res.state == turnSuspended {
				continue
			}
			a.flush(&res)
			res.state = turnCompleted
			a.out.send(protocol.FlowComplete())

		case dialog.StreamCompleteEvent:
			a.flush(&res)
			if res.state == turnOpen {
				res.state = turnStreamEnded
			}
			return res

		case dialog.ErrorEvent:
			return a.finishOnError(res, ev)
		}
	}
}

// finishAfterStream applies the post-stream inference: a turn that never saw
// an explicit terminal or suspension marker but holds a resumable handle is
// awaiting input, and the client must hear so.
func (a *turnAssembler) finishAfterStream(res turnResult) turnResult {
	a.flush(&res)
	if res.state != turnOpen {
		return res
	}
	if execID := a.session.ExecutionID(); execID != "" {
		res.state = turnSuspended
		a.out.send(protocol.AwaitingInput(execID))
		return res
	}
	res.state = turnStreamEnded
	return res
}

// finishOnError flushes partial progress before surfacing the error. Known
// recoverable upstream defects with enough assembled content are promoted to
// a successful completion instead.
func (a *turnAssembler) finishOnError(res turnResult, ev dialog.ErrorEvent) turnResult {
	flushed := a.buf.Len()
	a.flush(&res)

	if ev.Recoverable() && flushed >= meaningfulTurnBytes && res.state == turnOpen {
		res.state = turnCompleted
		a.out.send(protocol.FlowComplete())
		return res
	}

	res.err = fmt.Errorf("dialog stream error: %s", ev.Err())
	a.out.sendPriority(protocol.Error(ev.Err()))
	return res
}

// flush finalizes the buffer as one assistant transcript entry. The content is
// kept byte-for-byte equal to the forwarded fragments; only all-whitespace
// buffers are skipped.
func (a *turnAssembler) flush(res *turnResult) {
	content := a.buf.String()
	a.buf.Reset()
	if strings.TrimSpace(content) == "" {
		return
	}
	entry := a.session.AppendAssistant(a.role, content)
	res.entries = append(res.entries, entry)
}

// progressLine renders a node-result event as assistant narration.
func (a *turnAssembler) progressLine(ev dialog.NodeResultEvent) string {
	switch ev.Status {
	case "running":
		return fmt.Sprintf("%s: %s...\n", ev.Title, ev.Description)
	case "completed":
		if ev.NodeType == "fact" {
			return fmt.Sprintf("\n✓ %s gathered\n", ev.Title)
		}
	}
	return ""
}
