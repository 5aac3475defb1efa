package phase

import (
	"context"
	"fmt"
)

// ValidationResult accumulates the outcome of an eligibility check.
// Warnings never block: cooldown pressure informs automatic scheduling
// cadence, it is not a hard gate on manual requests.
type ValidationResult struct {
	Valid    bool     `json:"is_valid"`
	Errors   []string `json:"errors,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

func (v *ValidationResult) errorf(format string, args ...any) {
	v.Errors = append(v.Errors, fmt.Sprintf(format, args...))
}

func (v *ValidationResult) warnf(format string, args ...any) {
	v.Warnings = append(v.Warnings, fmt.Sprintf(format, args...))
}

// Validate checks whether the requested transition is currently eligible.
// Condition failures and condition panics surface as errors carrying the
// condition's message; an elapsed time under the rule cooldown is advisory
// and only produces a warning.
func (m *Manager) Validate(ctx context.Context, from, to Phase, tc *Context) ValidationResult {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.validateLocked(ctx, from, to, tc)
}

func (m *Manager) validateLocked(ctx context.Context, from, to Phase, tc *Context) ValidationResult {
	var res ValidationResult

	if from == to {
		res.errorf("cannot transition to the same phase %s", from)
		return res
	}

	rule := m.rules.Find(from, to)
	if rule == nil {
		res.errorf("no transition rule from %s to %s", from, to)
		return res
	}
	if !rule.Enabled() {
		res.errorf("transition rule %s is disabled", rule.Name)
		return res
	}

	for _, cond := range rule.Conditions {
		ok, err := checkCondition(ctx, cond, tc)
		if err != nil {
			res.errorf("condition %s: %v", cond.Type, err)
			continue
		}
		if !ok {
			msg := cond.Message
			if msg == "" {
				msg = fmt.Sprintf("condition %s failed", cond.Type)
			}
			res.Errors = append(res.Errors, msg)
		}
	}

	if rule.Cooldown > 0 {
		if last := m.history.Last(); last != nil {
			if elapsed := m.now().Sub(last.EnteredAt); elapsed < rule.Cooldown {
				res.warnf("cooldown active: %s elapsed of %s since entering %s", elapsed.Round(timePrecision), rule.Cooldown, last.Phase)
			}
		}
	}

	if m.current != nil {
		res.errorf("transition %s already in progress", m.current.ID)
	}

	res.Valid = len(res.Errors) == 0
	return res
}

func checkCondition(ctx context.Context, cond Condition, tc *Context) (ok bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	if cond.Check == nil {
		return true, nil
	}
	return cond.Check(ctx, tc)
}
