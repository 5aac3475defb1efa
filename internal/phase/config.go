package phase

import "time"

// DefaultCheckInterval is the auto-transition polling cadence when the
// config does not override it.
const DefaultCheckInterval = 30 * time.Second

// PhaseSettings gate manual entry/exit per phase and name the automatic
// transition targets the scheduler re-evaluates while the phase is active.
type PhaseSettings struct {
	AllowManualEntry bool    `json:"allow_manual_entry"`
	AllowManualExit  bool    `json:"allow_manual_exit"`
	AutoTransitions  []Phase `json:"auto_transitions,omitempty"`
}

// Config is the runtime configuration of a transition manager.
type Config struct {
	AutoTransitions bool                    `json:"auto_transitions"`
	DataMigration   bool                    `json:"data_migration"`
	CheckInterval   time.Duration           `json:"check_interval"`
	Phases          map[Phase]PhaseSettings `json:"phases"`
}

// DefaultConfig enables migration and auto-monitoring with the standard
// lifecycle loop: preparation auto-advances to live, live to debrief.
func DefaultConfig() Config {
	return Config{
		AutoTransitions: true,
		DataMigration:   true,
		CheckInterval:   DefaultCheckInterval,
		Phases: map[Phase]PhaseSettings{
			Preparation: {AllowManualEntry: true, AllowManualExit: true, AutoTransitions: []Phase{Live}},
			Live:        {AllowManualEntry: true, AllowManualExit: true, AutoTransitions: []Phase{Debrief}},
			Debrief:     {AllowManualEntry: true, AllowManualExit: true},
		},
	}
}

// ConfigPatch carries partial config updates; nil fields are left unchanged.
type ConfigPatch struct {
	AutoTransitions *bool          `json:"auto_transitions,omitempty"`
	DataMigration   *bool          `json:"data_migration,omitempty"`
	CheckInterval   *time.Duration `json:"check_interval,omitempty"`
}

func (c Config) apply(p ConfigPatch) Config {
	if p.AutoTransitions != nil {
		c.AutoTransitions = *p.AutoTransitions
	}
	if p.DataMigration != nil {
		c.DataMigration = *p.DataMigration
	}
	if p.CheckInterval != nil && *p.CheckInterval > 0 {
		c.CheckInterval = *p.CheckInterval
	}
	return c
}

// DefaultPermissions maps roles to their transition capabilities. Captain
// and admin additionally bypass the manual-trigger check by rank.
func DefaultPermissions() map[Role]Permissions {
	return map[Role]Permissions{
		RoleAngler: {},
		RoleGuide:  {CanTriggerManual: true, AllowedPhases: []Phase{Live, Debrief}},
		RoleCaptain: {
			CanTriggerManual:     true,
			CanOverrideRules:     true,
			CanCancelTransitions: true,
		},
		RoleAdmin: {
			CanTriggerManual:     true,
			CanOverrideRules:     true,
			CanCancelTransitions: true,
			CanEditHistory:       true,
		},
	}
}
