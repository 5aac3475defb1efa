package phase

import "time"

// HistoryEntry records one stay in a phase. ExitedAt stays nil until the
// next successful transition back-fills it.
type HistoryEntry struct {
	Phase     Phase         `json:"phase"`
	EnteredAt time.Time     `json:"entered_at"`
	ExitedAt  *time.Time    `json:"exited_at,omitempty"`
	Duration  time.Duration `json:"duration"`
	Trigger   Trigger       `json:"trigger"`
}

// History is the append-only ledger of phase stays for one trip. The
// executor is its sole mutator and only touches it on full success.
type History struct {
	TripID          string        `json:"trip_id"`
	Entries         []HistoryEntry `json:"entries"`
	TotalDuration   time.Duration `json:"total_duration"`
	TransitionCount int           `json:"transition_count"`
	LastUpdated     time.Time     `json:"last_updated"`
}

// Last returns the most recent entry, or nil if the ledger is empty.
func (h *History) Last() *HistoryEntry {
	if h == nil || len(h.Entries) == 0 {
		return nil
	}
	return &h.Entries[len(h.Entries)-1]
}

// append closes the previous entry at the completion instant and opens a new
// entry for the entered phase.
func (h *History) append(t *Transition, now time.Time) {
	if prev := h.Last(); prev != nil && prev.ExitedAt == nil {
		exited := now
		prev.ExitedAt = &exited
		prev.Duration = exited.Sub(prev.EnteredAt)
		h.TotalDuration += prev.Duration
	}
	h.Entries = append(h.Entries, HistoryEntry{
		Phase:     t.To,
		EnteredAt: now,
		Trigger:   t.Trigger,
	})
	h.TransitionCount++
	h.LastUpdated = now
}
