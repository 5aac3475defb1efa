package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"tideline/internal/config"
	"tideline/internal/domain"
	"tideline/internal/events"
	"tideline/internal/migration"
	"tideline/internal/phase"
	"tideline/internal/repo"
)

// App wires the repository, event log and runtime config into per-trip
// transition managers. One manager exists per trip; it is built lazily on
// first access and survives until Close or config replacement.
type App struct {
	Repo   repo.Repo
	Events events.Writer
	Cfg    *config.Config
	Log    zerolog.Logger
	Now    func() time.Time

	mu         sync.Mutex
	managers   map[string]*phase.Manager
	migrations map[string]*migration.Registry
}

func New(r repo.Repo, ev events.Writer, cfg *config.Config, log zerolog.Logger) *App {
	if cfg == nil {
		cfg = config.Default("")
	}
	return &App{
		Repo:       r,
		Events:     ev,
		Cfg:        cfg,
		Log:        log,
		Now:        time.Now,
		managers:   map[string]*phase.Manager{},
		migrations: map[string]*migration.Registry{},
	}
}

func (a *App) now() time.Time {
	if a.Now != nil {
		return a.Now()
	}
	return time.Now()
}

// ManagerFor returns the transition manager for a trip, constructing and
// initializing it from the persisted trip row on first use.
func (a *App) ManagerFor(ctx context.Context, tripID string) (*phase.Manager, error) {
	a.mu.Lock()
	if m, ok := a.managers[tripID]; ok {
		a.mu.Unlock()
		return m, nil
	}
	a.mu.Unlock()

	trip, err := a.Repo.GetTrip(ctx, tripID)
	if err != nil {
		return nil, err
	}
	current, err := phase.Parse(trip.Phase)
	if err != nil {
		return nil, fmt.Errorf("trip %s: %w", tripID, err)
	}

	rules := phase.DefaultRules(a.now)
	a.Cfg.ApplyRules(rules)

	reg := migration.Defaults()
	reg.Now = a.now

	m := phase.NewManager(phase.Options{
		Config:      a.Cfg.ManagerConfig(),
		Rules:       rules,
		Migrator:    reg,
		Permissions: a.Cfg.RolePermissions(),
		Hooks: phase.Hooks{
			OnTransitionComplete: a.persistTransition(tripID),
			OnTransitionError:    a.recordFailedTransition(tripID),
			OnDataMigrate:        a.persistMigration(tripID),
		},
		LoadHistory: a.loadHistory,
		ContextFunc: func(ctx context.Context, tripID string) (*phase.Context, error) {
			return a.TransitionContext(ctx, tripID, phase.RoleCaptain, nil)
		},
		Logger: a.Log,
		Now:    a.Now,
	})
	if err := m.Initialize(ctx, tripID, current); err != nil {
		return nil, err
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if existing, ok := a.managers[tripID]; ok {
		// Lost the construction race; keep the first one.
		m.Destroy()
		return existing, nil
	}
	a.managers[tripID] = m
	a.migrations[tripID] = reg
	return m, nil
}

// MigrationHistory returns the data-migration execution ledger for a trip.
func (a *App) MigrationHistory(ctx context.Context, tripID string) ([]migration.HistoryEntry, error) {
	if _, err := a.ManagerFor(ctx, tripID); err != nil {
		return nil, err
	}
	a.mu.Lock()
	reg := a.migrations[tripID]
	a.mu.Unlock()
	if reg == nil {
		return nil, nil
	}
	return reg.History(), nil
}

// Close destroys every live manager, stopping their auto-transition timers.
func (a *App) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()
	for id, m := range a.managers {
		m.Destroy()
		delete(a.managers, id)
		delete(a.migrations, id)
	}
}

// TransitionContext assembles the data bag rules and migrations evaluate
// against: the trip's checklist, catches, reviews, route, weather and roster,
// plus any caller-supplied overrides layered on top.
func (a *App) TransitionContext(ctx context.Context, tripID string, role phase.Role, overlay map[string]any) (*phase.Context, error) {
	trip, err := a.Repo.GetTrip(ctx, tripID)
	if err != nil {
		return nil, err
	}
	tripDate, err := time.Parse(time.RFC3339, trip.TripDate)
	if err != nil {
		return nil, fmt.Errorf("trip %s has invalid trip_date: %w", tripID, err)
	}

	checklist, err := a.Repo.ListChecklist(ctx, tripID)
	if err != nil {
		return nil, fmt.Errorf("load checklist: %w", err)
	}
	catches, err := a.Repo.ListCatches(ctx, tripID)
	if err != nil {
		return nil, fmt.Errorf("load catches: %w", err)
	}
	reviews, err := a.Repo.ListReviews(ctx, tripID)
	if err != nil {
		return nil, fmt.Errorf("load reviews: %w", err)
	}
	locations, err := a.Repo.ListLocations(ctx, tripID)
	if err != nil {
		return nil, fmt.Errorf("load locations: %w", err)
	}
	weatherLog, err := a.Repo.ListWeather(ctx, tripID)
	if err != nil {
		return nil, fmt.Errorf("load weather log: %w", err)
	}

	data := map[string]any{
		"checklist":       checklist,
		"catches":         catches,
		"reviews":         reviews,
		"locationHistory": locations,
		"weatherLog":      weatherLog,
		"participants":    []map[string]any{{"id": trip.CaptainID, "role": "captain"}},
	}
	if latest, err := a.Repo.LatestWeather(ctx, tripID); err == nil {
		data["weather"] = latest
	} else if !errors.Is(err, repo.ErrNotFound) {
		return nil, fmt.Errorf("load weather: %w", err)
	}
	for k, v := range overlay {
		data[k] = v
	}

	return &phase.Context{
		TripID:   tripID,
		TripDate: tripDate,
		Role:     role,
		Data:     data,
	}, nil
}

func (a *App) loadHistory(ctx context.Context, tripID string) (*phase.History, error) {
	rows, err := a.Repo.ListPhaseHistory(ctx, tripID)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return historyFromRows(tripID, rows)
}

// persistTransition commits a completed transition: trip phase, full history
// snapshot, the transition record and an audit event in one tx.
func (a *App) persistTransition(tripID string) func(ctx context.Context, t *phase.Transition, h *phase.History) error {
	return func(ctx context.Context, t *phase.Transition, h *phase.History) error {
		now := a.now().UTC().Format(time.RFC3339)
		tx, err := a.Repo.DB.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer tx.Rollback()

		if err := a.Repo.UpdateTripPhaseTx(ctx, tx, tripID, string(t.To), now); err != nil {
			return fmt.Errorf("update trip phase: %w", err)
		}
		if err := a.Repo.ReplacePhaseHistoryTx(ctx, tx, tripID, historyRows(tripID, h)); err != nil {
			return err
		}
		if err := a.Repo.InsertTransitionTx(ctx, tx, transitionRow(tripID, t)); err != nil {
			return fmt.Errorf("insert transition: %w", err)
		}
		if err := a.Events.Append(ctx, tx, "phase.transition.completed", tripID, "transition", t.ID, "system", events.EventPayload{
			"from":    string(t.From),
			"to":      string(t.To),
			"trigger": string(t.Trigger),
		}); err != nil {
			return fmt.Errorf("append event: %w", err)
		}
		return tx.Commit()
	}
}

// persistMigration journals the migrated data snapshot so readiness scores,
// trip summaries and suggestions survive the transition that computed them.
func (a *App) persistMigration(tripID string) func(ctx context.Context, from, to phase.Phase, data map[string]any, warnings []string) error {
	return func(ctx context.Context, from, to phase.Phase, data map[string]any, warnings []string) error {
		tx, err := a.Repo.DB.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("migration snapshot: %w", err)
		}
		defer tx.Rollback()
		payload := events.EventPayload{
			"from": string(from),
			"to":   string(to),
			"data": data,
		}
		if len(warnings) > 0 {
			payload["warnings"] = warnings
		}
		if err := a.Events.Append(ctx, tx, "phase.data.migrated", tripID, "phase", string(to), "system", payload); err != nil {
			return fmt.Errorf("migration snapshot: %w", err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("migration snapshot: %w", err)
		}
		return nil
	}
}

// recordFailedTransition keeps an audit trail of failures without blocking
// the caller; persistence errors here are only logged.
func (a *App) recordFailedTransition(tripID string) func(ctx context.Context, t *phase.Transition, terr error) {
	return func(ctx context.Context, t *phase.Transition, terr error) {
		tx, err := a.Repo.DB.BeginTx(ctx, nil)
		if err != nil {
			a.Log.Error().Err(err).Str("trip_id", tripID).Msg("record failed transition")
			return
		}
		defer tx.Rollback()
		if err := a.Repo.InsertTransitionTx(ctx, tx, transitionRow(tripID, t)); err != nil {
			a.Log.Error().Err(err).Str("trip_id", tripID).Msg("record failed transition")
			return
		}
		if err := a.Events.Append(ctx, tx, "phase.transition.failed", tripID, "transition", t.ID, "system", events.EventPayload{
			"from":  string(t.From),
			"to":    string(t.To),
			"error": terr.Error(),
		}); err != nil {
			a.Log.Error().Err(err).Str("trip_id", tripID).Msg("record failed transition")
			return
		}
		if err := tx.Commit(); err != nil {
			a.Log.Error().Err(err).Str("trip_id", tripID).Msg("record failed transition")
		}
	}
}

func transitionRow(tripID string, t *phase.Transition) domain.TransitionRecord {
	rec := domain.TransitionRecord{
		ID:          t.ID,
		TripID:      tripID,
		FromPhase:   string(t.From),
		ToPhase:     string(t.To),
		Trigger:     string(t.Trigger),
		Status:      string(t.Status),
		TriggeredAt: t.TriggeredAt.UTC().Format(time.RFC3339Nano),
		DurationMS:  t.Duration.Milliseconds(),
		Error:       joinErrors(t.Errors),
	}
	if t.CompletedAt != nil {
		completed := t.CompletedAt.UTC().Format(time.RFC3339Nano)
		rec.CompletedAt = &completed
	}
	return rec
}

func joinErrors(errs []string) string {
	if len(errs) == 0 {
		return ""
	}
	out := errs[0]
	for _, e := range errs[1:] {
		out += "; " + e
	}
	return out
}

func historyRows(tripID string, h *phase.History) []domain.PhaseHistoryEntry {
	rows := make([]domain.PhaseHistoryEntry, 0, len(h.Entries))
	for _, e := range h.Entries {
		row := domain.PhaseHistoryEntry{
			TripID:     tripID,
			Phase:      string(e.Phase),
			EnteredAt:  e.EnteredAt.UTC().Format(time.RFC3339Nano),
			DurationMS: e.Duration.Milliseconds(),
			Trigger:    string(e.Trigger),
		}
		if e.ExitedAt != nil {
			exited := e.ExitedAt.UTC().Format(time.RFC3339Nano)
			row.ExitedAt = &exited
		}
		rows = append(rows, row)
	}
	return rows
}

func historyFromRows(tripID string, rows []domain.PhaseHistoryEntry) (*phase.History, error) {
	h := &phase.History{TripID: tripID}
	for _, row := range rows {
		p, err := phase.Parse(row.Phase)
		if err != nil {
			return nil, fmt.Errorf("history row %d: %w", row.ID, err)
		}
		entered, err := time.Parse(time.RFC3339Nano, row.EnteredAt)
		if err != nil {
			return nil, fmt.Errorf("history row %d entered_at: %w", row.ID, err)
		}
		entry := phase.HistoryEntry{
			Phase:     p,
			EnteredAt: entered,
			Duration:  time.Duration(row.DurationMS) * time.Millisecond,
			Trigger:   phase.Trigger(row.Trigger),
		}
		if row.ExitedAt != nil {
			exited, err := time.Parse(time.RFC3339Nano, *row.ExitedAt)
			if err != nil {
				return nil, fmt.Errorf("history row %d exited_at: %w", row.ID, err)
			}
			entry.ExitedAt = &exited
			h.TotalDuration += entry.Duration
		}
		h.Entries = append(h.Entries, entry)
		if entry.EnteredAt.After(h.LastUpdated) {
			h.LastUpdated = entry.EnteredAt
		}
	}
	h.TransitionCount = len(h.Entries) - 1
	return h, nil
}
