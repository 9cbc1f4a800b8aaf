package trial

import "strings"

var (
	judgeCues      = []string{"your honor", "judge", "ruling", "objection"}
	prosecutorCues = []string{"prosecution", "prosecutor", "state's case", "evidence against"}
	defenseCues    = []string{"defense", "defendant", "my client", "not guilty"}
)

// Selector picks which enabled role answers a user utterance when no upstream
// dialog engine owns turn-taking. Selection is deterministic: keyword cues
// first, then alternation against the last speaking role, then the judge.
type Selector struct {
	enabled map[Role]struct{}
	order   []Role
}

// NewSelector builds a selector over the enabled roles, preserving
// registration order for the arbitrary-fallback case.
func NewSelector(roles ...Role) *Selector {
	s := &Selector{enabled: make(map[Role]struct{}, len(roles))}
	for _, r := range roles {
		if !r.Valid() {
			continue
		}
		if _, ok := s.enabled[r]; ok {
			continue
		}
		s.enabled[r] = struct{}{}
		s.order = append(s.order, r)
	}
	return s
}

func (s *Selector) Enabled(r Role) bool {
	_, ok := s.enabled[r]
	return ok
}

// Select returns the responding role for the utterance. lastSpeaker is the
// role of the most recent assistant entry in the transcript, or empty when
// the user speaks first.
func (s *Selector) Select(utterance string, lastSpeaker Role) Role {
	return s.clamp(s.preferred(utterance, lastSpeaker))
}

func (s *Selector) preferred(utterance string, lastSpeaker Role) Role {
	lowered := strings.ToLower(utterance)
	if containsAny(lowered, judgeCues) {
		return RoleJudge
	}
	if containsAny(lowered, prosecutorCues) {
		return RoleProsecutor
	}
	if containsAny(lowered, defenseCues) {
		return RoleDefense
	}

	switch lastSpeaker {
	case RoleJudge:
		if s.Enabled(RoleProsecutor) {
			return RoleProsecutor
		}
		return RoleDefense
	case RoleProsecutor:
		if s.Enabled(RoleDefense) {
			return RoleDefense
		}
		return RoleJudge
	case RoleDefense:
		if s.Enabled(RoleProsecutor) {
			return RoleProsecutor
		}
		return RoleJudge
	}

	return RoleJudge
}

// clamp falls back to the first registered role when the preferred one was
// never enabled for this session.
func (s *Selector) clamp(r Role) Role {
	if s.Enabled(r) {
		return r
	}
	if len(s.order) > 0 {
		return s.order[0]
	}
	return RoleJudge
}

func containsAny(lowered string, cues []string) bool {
	for _, cue := range cues {
		if strings.Contains(lowered, cue) {
			return true
		}
	}
	return false
}
