// Package phase implements the trip chat lifecycle: a small state machine
// that moves a trip through preparation, live and debrief, validates
// transition eligibility against declarative rules, migrates phase data and
// keeps an append-only history of phase durations.
package phase

import "fmt"

// Phase is one of the fixed ordered states of a trip's chat lifecycle.
type Phase string

const (
	Preparation Phase = "preparation"
	Live        Phase = "live"
	Debrief     Phase = "debrief"
)

// Phases lists all phases in lifecycle order.
func Phases() []Phase {
	return []Phase{Preparation, Live, Debrief}
}

// Valid reports whether p is a known phase.
func (p Phase) Valid() bool {
	switch p {
	case Preparation, Live, Debrief:
		return true
	}
	return false
}

// Parse converts a string into a Phase.
func Parse(s string) (Phase, error) {
	p := Phase(s)
	if !p.Valid() {
		return "", fmt.Errorf("unknown phase %q", s)
	}
	return p, nil
}

// Next returns the phase that follows p in the lifecycle cycle
// (debrief wraps back to preparation for the next trip).
func (p Phase) Next() Phase {
	switch p {
	case Preparation:
		return Live
	case Live:
		return Debrief
	default:
		return Preparation
	}
}

// Trigger distinguishes manual requests from scheduler-driven ones.
type Trigger string

const (
	TriggerManual    Trigger = "manual"
	TriggerAutomatic Trigger = "automatic"
)
