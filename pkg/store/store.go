// Package store persists finished trial transcripts. The relay archives a
// session snapshot when a trial ends; the in-memory implementation backs
// tests and the SQLite implementation backs deployments.
package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/spbui00/mockr/pkg/trial"
)

// ErrNotFound reports a missing archived session.
var ErrNotFound = fmt.Errorf("session not found in archive")

// Snapshot is an immutable copy of a session at archive time.
type Snapshot struct {
	SessionID    string
	Status       trial.Status
	Jurisdiction string
	LegalAreas   []string
	CaseContext  string
	CreatedAt    time.Time
	ArchivedAt   time.Time
	Entries      []trial.Entry
}

// TakeSnapshot copies the archivable state out of a live session.
func TakeSnapshot(s *trial.Session) Snapshot {
	legal, caseContext := s.Context()
	return Snapshot{
		SessionID:    s.ID(),
		Status:       s.Status(),
		Jurisdiction: legal.Jurisdiction,
		LegalAreas:   legal.LegalAreas,
		CaseContext:  caseContext,
		CreatedAt:    s.CreatedAt(),
		ArchivedAt:   time.Now(),
		Entries:      s.Transcript(),
	}
}

// Archive stores transcripts of completed sessions.
type Archive interface {
	Save(ctx context.Context, snap Snapshot) error
	Transcript(ctx context.Context, sessionID string) ([]trial.Entry, error)
	Close() error
}

// MemoryArchive is a concurrency-safe in-memory Archive.
type MemoryArchive struct {
	mu    sync.Mutex
	snaps map[string]Snapshot
}

func NewMemoryArchive() *MemoryArchive {
	return &MemoryArchive{snaps: make(map[string]Snapshot)}
}

func (a *MemoryArchive) Save(_ context.Context, snap Snapshot) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.snaps[snap.SessionID] = snap
	return nil
}

func (a *MemoryArchive) Transcript(_ context.Context, sessionID string) ([]trial.Entry, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	snap, ok := a.snaps[sessionID]
	if !ok {
		return nil, ErrNotFound
	}
	out := make([]trial.Entry, len(snap.Entries))
	copy(out, snap.Entries)
	return out, nil
}

func (a *MemoryArchive) Close() error { return nil }
