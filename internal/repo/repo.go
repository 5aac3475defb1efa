package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"tideline/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

func scanTrip(row *sql.Row) (domain.Trip, error) {
	var t domain.Trip
	err := row.Scan(&t.ID, &t.Name, &t.CaptainID, &t.TripDate, &t.Phase, &t.CreatedAt, &t.UpdatedAt)
	if err == sql.ErrNoRows {
		return t, ErrNotFound
	}
	return t, err
}

func (r Repo) InsertTrip(ctx context.Context, t domain.Trip) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO trips(id,name,captain_id,trip_date,phase,created_at,updated_at) VALUES (?,?,?,?,?,?,?)`,
		t.ID, t.Name, t.CaptainID, t.TripDate, t.Phase, t.CreatedAt, t.UpdatedAt)
	return err
}

func (r Repo) GetTrip(ctx context.Context, id string) (domain.Trip, error) {
	return scanTrip(r.DB.QueryRowContext(ctx, `SELECT id,name,captain_id,trip_date,phase,created_at,updated_at FROM trips WHERE id=?`, id))
}

func (r Repo) ListTrips(ctx context.Context) ([]domain.Trip, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,name,captain_id,trip_date,phase,created_at,updated_at FROM trips ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Trip
	for rows.Next() {
		var t domain.Trip
		if err := rows.Scan(&t.ID, &t.Name, &t.CaptainID, &t.TripDate, &t.Phase, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, rows.Err()
}

func (r Repo) UpdateTripPhaseTx(ctx context.Context, tx *sql.Tx, id, phase, updatedAt string) error {
	res, err := tx.ExecContext(ctx, `UPDATE trips SET phase=?, updated_at=? WHERE id=?`, phase, updatedAt, id)
	if err != nil {
		return err
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) DeleteTrip(ctx context.Context, id string) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM trips WHERE id=?`, id)
	if err != nil {
		return err
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// ListPhaseHistory returns the ordered phase ledger rows for a trip.
func (r Repo) ListPhaseHistory(ctx context.Context, tripID string) ([]domain.PhaseHistoryEntry, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,trip_id,phase,entered_at,exited_at,duration_ms,trigger FROM phase_history WHERE trip_id=? ORDER BY id`, tripID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.PhaseHistoryEntry
	for rows.Next() {
		var e domain.PhaseHistoryEntry
		var exited sql.NullString
		if err := rows.Scan(&e.ID, &e.TripID, &e.Phase, &e.EnteredAt, &exited, &e.DurationMS, &e.Trigger); err != nil {
			return nil, err
		}
		if exited.Valid {
			e.ExitedAt = &exited.String
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

// ReplacePhaseHistoryTx persists a full ledger snapshot for a trip. The
// ledger is one row per phase stay, so delete-and-insert keeps the stored
// shape exactly in sync with the manager's in-memory ledger.
func (r Repo) ReplacePhaseHistoryTx(ctx context.Context, tx *sql.Tx, tripID string, entries []domain.PhaseHistoryEntry) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM phase_history WHERE trip_id=?`, tripID); err != nil {
		return fmt.Errorf("clear phase history: %w", err)
	}
	for _, e := range entries {
		var exited any
		if e.ExitedAt != nil {
			exited = *e.ExitedAt
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO phase_history(trip_id,phase,entered_at,exited_at,duration_ms,trigger) VALUES (?,?,?,?,?,?)`,
			tripID, e.Phase, e.EnteredAt, exited, e.DurationMS, e.Trigger); err != nil {
			return fmt.Errorf("insert phase history: %w", err)
		}
	}
	return nil
}

func (r Repo) InsertTransitionTx(ctx context.Context, tx *sql.Tx, t domain.TransitionRecord) error {
	var completed any
	if t.CompletedAt != nil {
		completed = *t.CompletedAt
	}
	_, err := tx.ExecContext(ctx, `INSERT INTO transitions(id,trip_id,from_phase,to_phase,trigger,status,triggered_at,completed_at,duration_ms,error) VALUES (?,?,?,?,?,?,?,?,?,?)`,
		t.ID, t.TripID, t.FromPhase, t.ToPhase, t.Trigger, t.Status, t.TriggeredAt, completed, t.DurationMS, nullable(t.Error))
	return err
}

func (r Repo) ListTransitions(ctx context.Context, tripID string, limit int) ([]domain.TransitionRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.DB.QueryContext(ctx, `SELECT id,trip_id,from_phase,to_phase,trigger,status,triggered_at,completed_at,duration_ms,COALESCE(error,'') FROM transitions WHERE trip_id=? ORDER BY triggered_at DESC, id DESC LIMIT ?`, tripID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.TransitionRecord
	for rows.Next() {
		var t domain.TransitionRecord
		var completed sql.NullString
		if err := rows.Scan(&t.ID, &t.TripID, &t.FromPhase, &t.ToPhase, &t.Trigger, &t.Status, &t.TriggeredAt, &completed, &t.DurationMS, &t.Error); err != nil {
			return nil, err
		}
		if completed.Valid {
			t.CompletedAt = &completed.String
		}
		res = append(res, t)
	}
	return res, rows.Err()
}

func (r Repo) ListEvents(ctx context.Context, tripID string, limit int) ([]domain.Event, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.DB.QueryContext(ctx, `SELECT id,ts,type,COALESCE(trip_id,''),entity_kind,COALESCE(entity_id,''),actor_id,payload_json FROM events WHERE trip_id=? ORDER BY id DESC LIMIT ?`, tripID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Event
	for rows.Next() {
		var e domain.Event
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &e.TripID, &e.EntityKind, &e.EntityID, &e.ActorID, &e.Payload); err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
