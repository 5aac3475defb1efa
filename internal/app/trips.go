package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"tideline/internal/domain"
	"tideline/internal/events"
	"tideline/internal/phase"
	"tideline/internal/repo"
)

// CreateTrip inserts a trip in the preparation phase, seeds its first
// history row and records the creation event in one tx.
func (a *App) CreateTrip(ctx context.Context, name, captainID string, tripDate time.Time, actorID string) (domain.Trip, error) {
	now := a.now().UTC()
	trip := domain.Trip{
		ID:        uuid.New().String(),
		Name:      name,
		CaptainID: captainID,
		TripDate:  tripDate.UTC().Format(time.RFC3339),
		Phase:     string(phase.Preparation),
		CreatedAt: now.Format(time.RFC3339),
		UpdatedAt: now.Format(time.RFC3339),
	}
	if actorID == "" {
		actorID = captainID
	}

	tx, err := a.Repo.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Trip{}, err
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx, `INSERT INTO trips(id,name,captain_id,trip_date,phase,created_at,updated_at) VALUES (?,?,?,?,?,?,?)`,
		trip.ID, trip.Name, trip.CaptainID, trip.TripDate, trip.Phase, trip.CreatedAt, trip.UpdatedAt); err != nil {
		return domain.Trip{}, fmt.Errorf("insert trip: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO phase_history(trip_id,phase,entered_at,exited_at,duration_ms,trigger) VALUES (?,?,?,NULL,0,?)`,
		trip.ID, trip.Phase, now.Format(time.RFC3339Nano), string(phase.TriggerManual)); err != nil {
		return domain.Trip{}, fmt.Errorf("seed phase history: %w", err)
	}
	if err := a.Events.Append(ctx, tx, "trip.created", trip.ID, "trip", trip.ID, actorID, events.EventPayload{
		"name":      trip.Name,
		"trip_date": trip.TripDate,
	}); err != nil {
		return domain.Trip{}, fmt.Errorf("append event: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return domain.Trip{}, err
	}
	return trip, nil
}

// ResolveTrip returns the trip for an explicit ID, or the only trip in the
// workspace when the ID is omitted.
func (a *App) ResolveTrip(ctx context.Context, tripID string) (domain.Trip, error) {
	if tripID != "" {
		return a.Repo.GetTrip(ctx, tripID)
	}
	trips, err := a.Repo.ListTrips(ctx)
	if err != nil {
		return domain.Trip{}, err
	}
	switch len(trips) {
	case 0:
		return domain.Trip{}, repo.ErrNotFound
	case 1:
		return trips[0], nil
	default:
		return domain.Trip{}, errors.New("trip not specified; use --trip")
	}
}
