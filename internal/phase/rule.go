package phase

import (
	"context"
	"sort"
	"time"
)

// Condition is a named asynchronous eligibility predicate attached to a
// transition rule. Check errors are captured by the validator and reported
// with Message, never propagated.
type Condition struct {
	Type    string
	Message string
	Check   func(ctx context.Context, tc *Context) (bool, error)
}

// TransitionRule declares a legal phase-to-phase transition, its
// preconditions, priority among automatic candidates, and an advisory
// cooldown since the last phase entry.
type TransitionRule struct {
	From       Phase
	To         Phase
	Name       string
	Conditions []Condition
	Priority   int
	Cooldown   time.Duration
	disabled   bool
}

// Enabled reports whether the rule is consulted at all.
func (r *TransitionRule) Enabled() bool { return r != nil && !r.disabled }

type ruleKey struct {
	from Phase
	to   Phase
}

// RuleSet holds transition rules keyed by (from, to). A missing rule means
// the transition is categorically illegal. Registering the same pair twice
// overwrites: last registered wins.
type RuleSet struct {
	rules map[ruleKey]*TransitionRule
	order []ruleKey
}

func NewRuleSet() *RuleSet {
	return &RuleSet{rules: map[ruleKey]*TransitionRule{}}
}

func (s *RuleSet) Register(r *TransitionRule) {
	key := ruleKey{from: r.From, to: r.To}
	if _, exists := s.rules[key]; !exists {
		s.order = append(s.order, key)
	}
	s.rules[key] = r
}

func (s *RuleSet) Find(from, to Phase) *TransitionRule {
	return s.rules[ruleKey{from: from, to: to}]
}

// SetEnabled toggles a rule in place. Rules are never deleted at runtime.
func (s *RuleSet) SetEnabled(from, to Phase, enabled bool) bool {
	r := s.Find(from, to)
	if r == nil {
		return false
	}
	r.disabled = !enabled
	return true
}

// CandidatesFrom returns enabled rules leaving the given phase, ordered by
// priority (highest first) then registration order. The auto scheduler
// walks this list and triggers the first valid candidate.
func (s *RuleSet) CandidatesFrom(from Phase) []*TransitionRule {
	var out []*TransitionRule
	for _, key := range s.order {
		if key.from != from {
			continue
		}
		if r := s.rules[key]; r.Enabled() {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Priority > out[j].Priority })
	return out
}
