// Package sessions tracks live trial sessions so HTTP handlers, WebSocket
// relays, and shutdown can find and stop them.
package sessions

import (
	"context"
	"sync"

	"github.com/spbui00/mockr/pkg/trial"
)

// Handle lets the tracker interrupt a session's relay loop.
type Handle struct {
	Cancel func()
}

type Tracker struct {
	mu       sync.Mutex
	sessions map[string]*trackedSession
	wg       sync.WaitGroup
}

type trackedSession struct {
	session *trial.Session
	handle  Handle
	once    sync.Once
}

func NewTracker() *Tracker {
	return &Tracker{
		sessions: make(map[string]*trackedSession),
	}
}

// Put registers a session. Registering the same id twice replaces the old
// entry and releases it.
func (t *Tracker) Put(s *trial.Session, h Handle) (unregister func()) {
	if t == nil || s == nil {
		return func() {}
	}

	entry := &trackedSession{session: s, handle: h}

	t.mu.Lock()
	if t.sessions == nil {
		t.sessions = make(map[string]*trackedSession)
	}
	old := t.sessions[s.ID()]
	t.sessions[s.ID()] = entry
	t.wg.Add(1)
	t.mu.Unlock()

	if old != nil {
		t.unregister(s.ID(), old)
	}

	return func() { t.unregister(s.ID(), entry) }
}

func (t *Tracker) unregister(sessionID string, entry *trackedSession) {
	if t == nil || entry == nil {
		return
	}
	entry.once.Do(func() {
		t.mu.Lock()
		if t.sessions != nil && t.sessions[sessionID] == entry {
			delete(t.sessions, sessionID)
		}
		t.mu.Unlock()
		t.wg.Done()
	})
}

// Get returns the live session for id, or nil.
func (t *Tracker) Get(sessionID string) *trial.Session {
	if t == nil {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	entry := t.sessions[sessionID]
	if entry == nil {
		return nil
	}
	return entry.session
}

// Remove drops and cancels the session for id. It reports whether a session
// was registered under that id.
func (t *Tracker) Remove(sessionID string) bool {
	if t == nil {
		return false
	}
	t.mu.Lock()
	entry := t.sessions[sessionID]
	t.mu.Unlock()
	if entry == nil {
		return false
	}
	if entry.handle.Cancel != nil {
		entry.handle.Cancel()
	}
	t.unregister(sessionID, entry)
	return true
}

// List returns the registered sessions in no particular order.
func (t *Tracker) List() []*trial.Session {
	if t == nil {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]*trial.Session, 0, len(t.sessions))
	for _, entry := range t.sessions {
		if entry == nil || entry.session == nil {
			continue
		}
		out = append(out, entry.session)
	}
	return out
}

func (t *Tracker) Count() int {
	if t == nil {
		return 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.sessions)
}

func (t *Tracker) CancelAll() (canceled int) {
	if t == nil {
		return 0
	}

	var cancels []func()
	t.mu.Lock()
	for _, entry := range t.sessions {
		if entry == nil || entry.handle.Cancel == nil {
			continue
		}
		cancels = append(cancels, entry.handle.Cancel)
	}
	t.mu.Unlock()

	for _, cancel := range cancels {
		cancel()
		canceled++
	}
	return canceled
}

// Wait blocks until every registered session unregisters, or ctx ends.
func (t *Tracker) Wait(ctx context.Context) bool {
	if t == nil {
		return true
	}
	if ctx == nil {
		t.wg.Wait()
		return true
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		t.wg.Wait()
	}()

	select {
	case <-done:
		return true
	case <-ctx.Done():
		return false
	}
}
