package trial

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAgentConfigRendersContext(t *testing.T) {
	legal := LegalContext{Jurisdiction: "Canada", LegalAreas: []string{"Criminal Law", "Constitutional Law"}}

	cfg, err := NewAgentConfig(RoleJudge, legal, "a contested search of a vehicle")
	require.NoError(t, err)

	assert.Equal(t, RoleJudge, cfg.Role)
	assert.Equal(t, "Judge Anderson", cfg.DisplayName)
	assert.Equal(t, "aura-athena-en", cfg.VoiceID)
	assert.Contains(t, cfg.SystemPrompt, "Judge Anderson")
	assert.Contains(t, cfg.SystemPrompt, "Canada")
	assert.Contains(t, cfg.SystemPrompt, "Criminal Law, Constitutional Law")
	assert.Contains(t, cfg.SystemPrompt, "a contested search of a vehicle")
}

func TestNewAgentConfigDefaultsJurisdiction(t *testing.T) {
	cfg, err := NewAgentConfig(RoleDefense, LegalContext{}, "")
	require.NoError(t, err)
	assert.Contains(t, cfg.SystemPrompt, "United States")
}

func TestNewAgentConfigRejectsUnknownRole(t *testing.T) {
	_, err := NewAgentConfig(Role("bailiff"), LegalContext{}, "")
	assert.Error(t, err)
}

func TestDebatePromptsNameTheirRole(t *testing.T) {
	assert.Contains(t, DebatePrompt(RoleJudge), "Judge Anderson")
	assert.Contains(t, DebatePrompt(RoleProsecutor), "District Attorney Martinez")
	assert.Contains(t, DebatePrompt(RoleDefense), "Defense Attorney Chen")
	assert.NotEmpty(t, DebatePrompt(Role("bailiff")))
}

func TestRoleParsingAndVoices(t *testing.T) {
	role, err := ParseRole("prosecutor")
	require.NoError(t, err)
	assert.Equal(t, RoleProsecutor, role)

	_, err = ParseRole("witness")
	assert.Error(t, err)

	assert.Equal(t, "aura-athena-en", RoleJudge.Voice())
	assert.Equal(t, "aura-arcas-en", RoleProsecutor.Voice())
	assert.Equal(t, "aura-angus-en", RoleDefense.Voice())
}
