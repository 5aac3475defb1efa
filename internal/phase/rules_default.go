package phase

import (
	"context"
	"time"
)

// goLiveLeadTime is how long before the trip date the chat may switch to the
// live phase.
const goLiveLeadTime = 2 * time.Hour

// DefaultRules registers the standard lifecycle rules. The clock is
// injectable so tests can pin condition evaluation.
func DefaultRules(now func() time.Time) *RuleSet {
	if now == nil {
		now = time.Now
	}
	s := NewRuleSet()

	s.Register(&TransitionRule{
		From:     Preparation,
		To:       Live,
		Name:     "go-live",
		Priority: 10,
		Conditions: []Condition{{
			Type:    "time-based",
			Message: "trip has not reached its departure window yet",
			Check: func(_ context.Context, tc *Context) (bool, error) {
				if tc == nil || tc.TripDate.IsZero() {
					return false, nil
				}
				return !now().Before(tc.TripDate.Add(-goLiveLeadTime)), nil
			},
		}},
	})

	s.Register(&TransitionRule{
		From:     Live,
		To:       Debrief,
		Name:     "wrap-up",
		Priority: 10,
		Conditions: []Condition{{
			Type:    "time-based",
			Message: "trip is still underway",
			Check: func(_ context.Context, tc *Context) (bool, error) {
				if tc == nil || tc.TripDate.IsZero() {
					return false, nil
				}
				return now().After(tc.TripDate), nil
			},
		}},
	})

	s.Register(&TransitionRule{
		From:     Debrief,
		To:       Preparation,
		Name:     "next-trip",
		Priority: 5,
		Cooldown: 30 * time.Minute,
		Conditions: []Condition{{
			Type:    "data-based",
			Message: "no next trip scheduled",
			Check: func(_ context.Context, tc *Context) (bool, error) {
				v, ok := tc.Value("nextTripScheduled")
				if !ok {
					return false, nil
				}
				scheduled, _ := v.(bool)
				return scheduled, nil
			},
		}},
	})

	return s
}
