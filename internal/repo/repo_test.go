package repo_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"tideline/internal/db"
	"tideline/internal/domain"
	"tideline/internal/migrate"
	"tideline/internal/repo"
)

func newRepo(t *testing.T) repo.Repo {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return repo.Repo{DB: conn}
}

func seedTrip(t *testing.T, r repo.Repo) domain.Trip {
	t.Helper()
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC).Format(time.RFC3339)
	trip := domain.Trip{
		ID:        uuid.New().String(),
		Name:      "Reef run",
		CaptainID: "capt-1",
		TripDate:  now,
		Phase:     "preparation",
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := r.InsertTrip(context.Background(), trip); err != nil {
		t.Fatalf("insert trip: %v", err)
	}
	return trip
}

func TestGetTripNotFound(t *testing.T) {
	r := newRepo(t)
	if _, err := r.GetTrip(context.Background(), "nope"); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if err := r.DeleteTrip(context.Background(), "nope"); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected not found on delete, got %v", err)
	}
}

func TestChecklistRoundTrip(t *testing.T) {
	r := newRepo(t)
	trip := seedTrip(t, r)
	ctx := context.Background()

	item := domain.ChecklistItem{
		ID:        uuid.New().String(),
		TripID:    trip.ID,
		Title:     "Check flares",
		Category:  "safety",
		CreatedAt: trip.CreatedAt,
	}
	if err := r.InsertChecklistItem(ctx, item); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := r.SetChecklistItemDone(ctx, trip.ID, item.ID, true); err != nil {
		t.Fatalf("set done: %v", err)
	}
	if err := r.SetChecklistItemDone(ctx, trip.ID, "nope", true); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected not found for unknown item, got %v", err)
	}
	// item ids are scoped to their trip
	if err := r.SetChecklistItemDone(ctx, "other-trip", item.ID, true); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected not found for wrong trip, got %v", err)
	}

	items, err := r.ListChecklist(ctx, trip.ID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(items) != 1 || !items[0].IsCompleted {
		t.Fatalf("unexpected items: %+v", items)
	}
}

func TestCatchNullableCoordinates(t *testing.T) {
	r := newRepo(t)
	trip := seedTrip(t, r)
	ctx := context.Background()

	lat, lng := -33.85, 151.21
	with := domain.CatchRecord{ID: uuid.New().String(), TripID: trip.ID, Species: "tuna", Weight: 12, Spot: "reef", Lat: &lat, Lng: &lng, CaughtAt: trip.CreatedAt}
	without := domain.CatchRecord{ID: uuid.New().String(), TripID: trip.ID, Species: "snapper", Weight: 3, CaughtAt: trip.CreatedAt}
	if err := r.InsertCatch(ctx, with); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := r.InsertCatch(ctx, without); err != nil {
		t.Fatalf("insert: %v", err)
	}

	catches, err := r.ListCatches(ctx, trip.ID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(catches) != 2 {
		t.Fatalf("expected 2 catches, got %d", len(catches))
	}
	var located, bare *domain.CatchRecord
	for i := range catches {
		if catches[i].ID == with.ID {
			located = &catches[i]
		} else {
			bare = &catches[i]
		}
	}
	if located == nil || located.Lat == nil || *located.Lat != lat {
		t.Fatalf("coordinates lost: %+v", located)
	}
	if bare == nil || bare.Lat != nil || bare.Lng != nil {
		t.Fatalf("expected nil coordinates: %+v", bare)
	}
}

func TestTransitionsLimitAndOrder(t *testing.T) {
	r := newRepo(t)
	trip := seedTrip(t, r)
	ctx := context.Background()

	base := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		tx, err := r.DB.BeginTx(ctx, nil)
		if err != nil {
			t.Fatalf("begin: %v", err)
		}
		rec := domain.TransitionRecord{
			ID:          uuid.New().String(),
			TripID:      trip.ID,
			FromPhase:   "preparation",
			ToPhase:     "live",
			Trigger:     "manual",
			Status:      "completed",
			TriggeredAt: base.Add(time.Duration(i) * time.Minute).Format(time.RFC3339Nano),
		}
		if err := r.InsertTransitionTx(ctx, tx, rec); err != nil {
			t.Fatalf("insert: %v", err)
		}
		if err := tx.Commit(); err != nil {
			t.Fatalf("commit: %v", err)
		}
	}

	records, err := r.ListTransitions(ctx, trip.ID, 2)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("limit ignored: %d", len(records))
	}
	if records[0].TriggeredAt < records[1].TriggeredAt {
		t.Fatalf("expected newest first: %+v", records)
	}
}

func TestLatestWeather(t *testing.T) {
	r := newRepo(t)
	trip := seedTrip(t, r)
	ctx := context.Background()

	if _, err := r.LatestWeather(ctx, trip.ID); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	for i, temp := range []float64{18, 22} {
		w := domain.WeatherSnapshot{TripID: trip.ID, Temperature: temp, WindSpeed: float64(10 + i), RecordedAt: trip.CreatedAt}
		if err := r.InsertWeather(ctx, w); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}
	latest, err := r.LatestWeather(ctx, trip.ID)
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if latest.Temperature != 22 {
		t.Fatalf("expected newest snapshot, got %+v", latest)
	}
}
