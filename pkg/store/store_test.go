package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spbui00/mockr/pkg/trial"
)

func sampleSession(t *testing.T) *trial.Session {
	t.Helper()
	s := trial.NewSession("sess-1", "flow-1")
	s.SetContext(trial.LegalContext{Jurisdiction: "us", LegalAreas: []string{"criminal"}}, "a theft case")
	s.AppendUser("I want to present my case")
	s.AppendAssistant(trial.RoleJudge, "The court will hear it")
	s.AppendAssistant(trial.RoleDefense, "My client is ready")
	require.NoError(t, s.End())
	return s
}

func TestTakeSnapshot(t *testing.T) {
	snap := TakeSnapshot(sampleSession(t))

	assert.Equal(t, "sess-1", snap.SessionID)
	assert.Equal(t, trial.StatusEnded, snap.Status)
	assert.Equal(t, "us", snap.Jurisdiction)
	assert.Equal(t, "a theft case", snap.CaseContext)
	assert.Len(t, snap.Entries, 3)
	assert.False(t, snap.ArchivedAt.IsZero())
}

func TestMemoryArchiveRoundTrip(t *testing.T) {
	a := NewMemoryArchive()
	ctx := context.Background()

	_, err := a.Transcript(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, a.Save(ctx, TakeSnapshot(sampleSession(t))))

	entries, err := a.Transcript(ctx, "sess-1")
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "msg_0", entries[0].ID)
	assert.Equal(t, trial.SpeakerUser, entries[0].Kind)
}

func TestSQLiteArchiveRoundTrip(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "archive.db")
	a, err := NewSQLiteArchive(dsn)
	require.NoError(t, err)
	defer a.Close()

	ctx := context.Background()

	_, err = a.Transcript(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	snap := TakeSnapshot(sampleSession(t))
	require.NoError(t, a.Save(ctx, snap))

	entries, err := a.Transcript(ctx, "sess-1")
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "The court will hear it", entries[1].Content)
	assert.Equal(t, trial.RoleJudge, entries[1].Role)
}

func TestSQLiteArchiveSaveReplacesTranscript(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "archive.db")
	a, err := NewSQLiteArchive(dsn)
	require.NoError(t, err)
	defer a.Close()

	ctx := context.Background()
	sess := sampleSession(t)
	require.NoError(t, a.Save(ctx, TakeSnapshot(sess)))

	// A second save of a grown transcript replaces the archived copy.
	sess2 := trial.NewSession("sess-1", "flow-1")
	for i := 0; i < 12; i++ {
		sess2.AppendUser("turn")
	}
	require.NoError(t, a.Save(ctx, TakeSnapshot(sess2)))

	entries, err := a.Transcript(ctx, "sess-1")
	require.NoError(t, err)
	require.Len(t, entries, 12)
	// Append order survives double-digit ids.
	assert.Equal(t, "msg_10", entries[10].ID)
}
