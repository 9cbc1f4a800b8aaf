package dialog

import (
	"bufio"
	"bytes"
	"io"
	"strings"
)

// EventSource yields dialog events in arrival order. Next returns io.EOF
// when the stream is exhausted. A source corresponds to exactly one upstream
// execution attempt and is not restartable.
type EventSource interface {
	Next() (Event, error)
	Close() error
}

// eventStream decodes server-sent events from an HTTP response body.
type eventStream struct {
	reader *bufio.Reader
	body   io.Closer
	err    error
}

func newEventStream(body io.ReadCloser) *eventStream {
	return &eventStream{
		reader: bufio.NewReader(body),
		body:   body,
	}
}

func (s *eventStream) Next() (Event, error) {
	if s.err != nil {
		return nil, s.err
	}

	var eventName string
	var data bytes.Buffer

	for {
		line, err := s.reader.ReadString('\n')
		if err != nil && err != io.EOF {
			s.err = err
			return nil, err
		}

		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			if data.Len() > 0 {
				if ev := s.dispatch(eventName, data.Bytes()); ev != nil {
					return ev, nil
				}
				eventName = ""
				data.Reset()
			}
			if err == io.EOF {
				s.err = io.EOF
				return nil, io.EOF
			}
			continue
		}

		if strings.HasPrefix(line, "event:") {
			eventName = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		} else if strings.HasPrefix(line, "data:") {
			chunk := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			if data.Len() > 0 {
				data.WriteByte('\n')
			}
			data.WriteString(chunk)
		}

		if err == io.EOF {
			if data.Len() > 0 {
				if ev := s.dispatch(eventName, data.Bytes()); ev != nil {
					s.err = io.EOF
					return ev, nil
				}
			}
			s.err = io.EOF
			return nil, io.EOF
		}
	}
}

func (s *eventStream) dispatch(name string, payload []byte) Event {
	if strings.TrimSpace(string(payload)) == "[DONE]" {
		return StreamCompleteEvent{}
	}
	return decodeEvent(name, payload)
}

func (s *eventStream) Close() error {
	if s.body != nil {
		return s.body.Close()
	}
	return nil
}
