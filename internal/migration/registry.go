package migration

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"tideline/internal/dotpath"
	"tideline/internal/phase"
)

// historyCap bounds the in-memory execution ledger.
const historyCap = 100

// HistoryEntry records one past migration execution.
type HistoryEntry struct {
	ID        string      `json:"id"`
	From      phase.Phase `json:"from_phase"`
	To        phase.Phase `json:"to_phase"`
	Timestamp time.Time   `json:"timestamp"`
	Success   bool        `json:"success"`
	Applied   []string    `json:"applied_rules,omitempty"`
	Errors    []string    `json:"errors,omitempty"`
	Warnings  []string    `json:"warnings,omitempty"`
	DataSize  int         `json:"data_size"`
}

type migrationKey struct {
	from phase.Phase
	to   phase.Phase
}

// Registry stores migrations keyed by phase pair and keeps a capped ledger
// of executions. Registering the same pair twice overwrites.
type Registry struct {
	mu         sync.Mutex
	migrations map[migrationKey]*Migration
	history    []HistoryEntry
	Now        func() time.Time
}

func NewRegistry() *Registry {
	return &Registry{migrations: map[migrationKey]*Migration{}}
}

func (r *Registry) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

func (r *Registry) Register(m *Migration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.migrations[migrationKey{from: m.From, to: m.To}] = m
}

func (r *Registry) Find(from, to phase.Phase) *Migration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.migrations[migrationKey{from: from, to: to}]
}

// Execute runs the migration registered for (from, to) against sourceData.
// With no migration registered the data passes through unchanged; phases may
// deliberately share a shape. Required rule failures fail the whole
// migration, optional failures degrade to warnings and leave the target key
// absent.
func (r *Registry) Execute(ctx context.Context, from, to phase.Phase, sourceData map[string]any, tc *phase.Context) Result {
	res := Result{
		ID:   uuid.New().String(),
		From: from,
		To:   to,
	}

	m := r.Find(from, to)
	if m == nil {
		res.Success = true
		res.Data = sourceData
		res.Warnings = append(res.Warnings, fmt.Sprintf("no data migration defined for %s -> %s; data passed through", from, to))
		r.record(res)
		return res
	}

	out := map[string]any{}
	for _, rule := range m.Rules {
		if err := applyRule(ctx, rule, sourceData, out, tc); err != nil {
			msg := fmt.Sprintf("rule %s: %v", rule.ID, err)
			if rule.Required {
				res.Errors = append(res.Errors, msg)
			} else {
				res.Warnings = append(res.Warnings, msg)
			}
			continue
		}
		res.Applied = append(res.Applied, rule.ID)
	}

	res.Success = len(res.Errors) == 0
	res.Data = out
	r.record(res)
	return res
}

func applyRule(ctx context.Context, rule Rule, source, out map[string]any, tc *phase.Context) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("transformer panic: %v", rec)
		}
	}()

	value, ok := dotpath.Get(source, rule.SourceKey)
	if !ok {
		return fmt.Errorf("source key %s absent", rule.SourceKey)
	}
	if rule.Transform != nil {
		value, err = rule.Transform(ctx, value, tc)
		if err != nil {
			return fmt.Errorf("transform: %w", err)
		}
	}
	if rule.Validate != nil && !rule.Validate(value) {
		return fmt.Errorf("validation rejected value for %s", rule.TargetKey)
	}
	dotpath.Set(out, rule.TargetKey, value)
	return nil
}

func (r *Registry) record(res Result) {
	size := 0
	if b, err := json.Marshal(res.Data); err == nil {
		size = len(b)
	}
	entry := HistoryEntry{
		ID:        res.ID,
		From:      res.From,
		To:        res.To,
		Timestamp: r.now(),
		Success:   res.Success,
		Applied:   res.Applied,
		Errors:    res.Errors,
		Warnings:  res.Warnings,
		DataSize:  size,
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.history = append(r.history, entry)
	if len(r.history) > historyCap {
		r.history = r.history[len(r.history)-historyCap:]
	}
}

// History returns a copy of the execution ledger, oldest first.
func (r *Registry) History() []HistoryEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]HistoryEntry(nil), r.history...)
}

// Migrate adapts Execute to the manager's Migrator seam: a failed migration
// collapses into a single error carrying every required-rule failure.
func (r *Registry) Migrate(ctx context.Context, from, to phase.Phase, source map[string]any, tc *phase.Context) (map[string]any, []string, error) {
	res := r.Execute(ctx, from, to, source, tc)
	if !res.Success {
		return nil, res.Warnings, fmt.Errorf("migration %s -> %s failed: %s", from, to, strings.Join(res.Errors, "; "))
	}
	return res.Data, res.Warnings, nil
}
