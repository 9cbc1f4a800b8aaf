// Package trial holds the courtroom domain model: the closed set of simulated
// roles, the responder selection logic, agent configuration, and per-session
// conversational state.
package trial

import (
	"fmt"
	"strings"
)

// Role identifies one of the simulated courtroom participants.
type Role string

const (
	RoleJudge      Role = "judge"
	RoleProsecutor Role = "prosecutor"
	RoleDefense    Role = "defense"
)

// Roles lists every role in a stable order.
func Roles() []Role {
	return []Role{RoleJudge, RoleProsecutor, RoleDefense}
}

// ParseRole converts a wire string into a Role.
func ParseRole(s string) (Role, error) {
	switch Role(strings.ToLower(strings.TrimSpace(s))) {
	case RoleJudge:
		return RoleJudge, nil
	case RoleProsecutor:
		return RoleProsecutor, nil
	case RoleDefense:
		return RoleDefense, nil
	default:
		return "", fmt.Errorf("unknown role %q", s)
	}
}

func (r Role) Valid() bool {
	switch r {
	case RoleJudge, RoleProsecutor, RoleDefense:
		return true
	default:
		return false
	}
}

func (r Role) String() string { return string(r) }

// Voice returns the synthesis voice for the role.
func (r Role) Voice() string {
	switch r {
	case RoleJudge:
		return "aura-athena-en"
	case RoleProsecutor:
		return "aura-arcas-en"
	case RoleDefense:
		return "aura-angus-en"
	default:
		return "aura-asteria-en"
	}
}
