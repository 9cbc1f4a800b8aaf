package trial

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTranscriptIDsAreMonotonic(t *testing.T) {
	s := NewSession("sess-1", "flow-1")

	s.AppendUser("first")
	s.AppendAssistant(RoleJudge, "second")
	s.AppendSystem("third")
	s.AppendUser("fourth")

	entries := s.Transcript()
	require.Len(t, entries, 4)
	for i, e := range entries {
		assert.Equal(t, fmt.Sprintf("msg_%d", i), e.ID)
	}
}

func TestConversationIDAssignedAtMostOnce(t *testing.T) {
	s := NewSession("sess-1", "flow-1")

	require.NoError(t, s.SetConversationID("conv-a"))
	assert.Equal(t, "conv-a", s.ConversationID())

	// Re-assigning the same value is a no-op.
	require.NoError(t, s.SetConversationID("conv-a"))

	err := s.SetConversationID("conv-b")
	require.Error(t, err)
	assert.Equal(t, "conv-a", s.ConversationID())
}

func TestPendingResourcesAttachAtMostOnce(t *testing.T) {
	s := NewSession("sess-1", "flow-1")

	s.StageResource(ResourceRef{ResourceID: "res-1", Name: "contract.pdf"})
	s.StageResource(ResourceRef{ResourceID: "res-2", Name: "photo.png"})

	taken := s.TakePendingResources()
	require.Len(t, taken, 2)
	assert.Equal(t, "res-1", taken[0].ResourceID)

	// Second take is empty; the upload history is permanent.
	assert.Empty(t, s.TakePendingResources())
	assert.Len(t, s.UploadedResources(), 2)
}

func TestStatusTransitions(t *testing.T) {
	s := NewSession("sess-1", "flow-1")
	assert.Equal(t, StatusCreated, s.Status())

	require.NoError(t, s.Activate())
	assert.Equal(t, StatusActive, s.Status())

	require.NoError(t, s.Pause())
	assert.Equal(t, StatusPaused, s.Status())

	require.NoError(t, s.Activate())
	require.NoError(t, s.End())
	assert.Equal(t, StatusEnded, s.Status())

	// Ended is terminal.
	assert.Error(t, s.Activate())
	assert.Error(t, s.Pause())
	assert.Error(t, s.End())
	assert.Equal(t, StatusEnded, s.Status())
}

func TestExecutionIDReplaceAndClear(t *testing.T) {
	s := NewSession("sess-1", "flow-1")
	assert.Empty(t, s.ExecutionID())

	s.SetExecutionID("exec-1")
	s.SetExecutionID("exec-2")
	assert.Equal(t, "exec-2", s.ExecutionID())

	s.ClearExecutionID()
	assert.Empty(t, s.ExecutionID())
}

func TestLastSpeakerSkipsNonAssistantEntries(t *testing.T) {
	s := NewSession("sess-1", "flow-1")
	assert.Equal(t, Role(""), s.LastSpeaker())

	s.AppendUser("hello")
	s.AppendAssistant(RoleProsecutor, "the state will show")
	s.AppendSystem("note")
	s.AppendUser("go on")

	assert.Equal(t, RoleProsecutor, s.LastSpeaker())
}

func TestConfigureAgentsRebuildsSelector(t *testing.T) {
	s := NewSession("sess-1", "flow-1")
	legal := LegalContext{Jurisdiction: "us", LegalAreas: []string{"criminal"}}

	judge, err := NewAgentConfig(RoleJudge, legal, "a theft case")
	require.NoError(t, err)
	defense, err := NewAgentConfig(RoleDefense, legal, "a theft case")
	require.NoError(t, err)

	s.ConfigureAgents([]AgentConfig{defense, judge, defense})

	agents := s.Agents()
	require.Len(t, agents, 2)
	assert.Equal(t, RoleDefense, agents[0].Role)
	assert.Equal(t, RoleJudge, agents[1].Role)

	// Prosecutor was never enabled: keyword hit clamps to first registered.
	assert.Equal(t, RoleDefense, s.Selector().Select("the prosecution rests", ""))
}
