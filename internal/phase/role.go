package phase

// Role is a chat participant role. Roles form an ordered hierarchy so
// permission checks reduce to a single level comparison.
type Role string

const (
	RoleGuest   Role = "guest"
	RoleAngler  Role = "angler"
	RoleGuide   Role = "guide"
	RoleCaptain Role = "captain"
	RoleAdmin   Role = "admin"
)

var roleLevels = map[Role]int{
	RoleGuest:   0,
	RoleAngler:  1,
	RoleGuide:   2,
	RoleCaptain: 3,
	RoleAdmin:   4,
}

// Level returns the numeric rank of the role. Unknown roles rank below guest.
func (r Role) Level() int {
	if lvl, ok := roleLevels[r]; ok {
		return lvl
	}
	return -1
}

// HasMinimumRole reports whether r ranks at or above min.
func HasMinimumRole(r, min Role) bool {
	return r.Level() >= min.Level()
}

// Permissions are the per-role capability flags consulted before honoring
// manual triggers. CanEditHistory is carried for configuration compatibility
// but no core operation mutates history retroactively.
type Permissions struct {
	CanTriggerManual     bool    `json:"can_trigger_manual" yaml:"can_trigger_manual"`
	CanOverrideRules     bool    `json:"can_override_rules" yaml:"can_override_rules"`
	CanCancelTransitions bool    `json:"can_cancel_transitions" yaml:"can_cancel_transitions"`
	CanEditHistory       bool    `json:"can_edit_history" yaml:"can_edit_history"`
	AllowedPhases        []Phase `json:"allowed_phases,omitempty" yaml:"allowed_phases,omitempty"`
}

// Allows reports whether the permission set covers entering the given phase.
// An empty AllowedPhases list means no phase restriction.
func (p Permissions) Allows(target Phase) bool {
	if len(p.AllowedPhases) == 0 {
		return true
	}
	for _, ph := range p.AllowedPhases {
		if ph == target {
			return true
		}
	}
	return false
}
