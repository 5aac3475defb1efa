// Package migration holds the declarative per-transition field mappings that
// transform one phase's data shape into the next phase's shape. Rules run
// strictly in registration order; transformer and validator failures are
// contained per rule and only escalate when the rule is required.
package migration

import (
	"context"

	"tideline/internal/phase"
)

// Transform converts an extracted source value into the target value.
type Transform func(ctx context.Context, value any, tc *phase.Context) (any, error)

// Validate accepts or rejects a transformed value.
type Validate func(value any) bool

// Rule maps a dot-path in the source data to a dot-path in the output.
type Rule struct {
	ID          string
	Description string
	SourceKey   string
	TargetKey   string
	Transform   Transform
	Validate    Validate
	Required    bool
}

// Migration is the ordered rule list for one (from, to) phase pair.
type Migration struct {
	From  phase.Phase
	To    phase.Phase
	Rules []Rule
}

// Result is the outcome of one migration execution.
type Result struct {
	ID       string         `json:"id"`
	From     phase.Phase    `json:"from_phase"`
	To       phase.Phase    `json:"to_phase"`
	Success  bool           `json:"success"`
	Data     map[string]any `json:"migrated_data"`
	Applied  []string       `json:"applied_rules,omitempty"`
	Errors   []string       `json:"errors,omitempty"`
	Warnings []string       `json:"warnings,omitempty"`
}
