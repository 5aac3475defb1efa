package app

import (
	"context"
	"time"

	"github.com/google/uuid"

	"tideline/internal/domain"
)

// Feed writes: the checklist, catch, review, location and weather entries
// that later feed the transition context. Each verifies the trip exists so
// callers get a clean not-found instead of a dangling foreign key error.

func (a *App) AddChecklistItem(ctx context.Context, tripID, title, category string) (domain.ChecklistItem, error) {
	if _, err := a.Repo.GetTrip(ctx, tripID); err != nil {
		return domain.ChecklistItem{}, err
	}
	if category == "" {
		category = "optional"
	}
	item := domain.ChecklistItem{
		ID:        uuid.New().String(),
		TripID:    tripID,
		Title:     title,
		Category:  category,
		CreatedAt: a.now().UTC().Format(time.RFC3339),
	}
	if err := a.Repo.InsertChecklistItem(ctx, item); err != nil {
		return domain.ChecklistItem{}, err
	}
	return item, nil
}

func (a *App) AddCatch(ctx context.Context, tripID, species string, weight float64, spot string, lat, lng *float64, caughtAt string) (domain.CatchRecord, error) {
	if _, err := a.Repo.GetTrip(ctx, tripID); err != nil {
		return domain.CatchRecord{}, err
	}
	if caughtAt == "" {
		caughtAt = a.now().UTC().Format(time.RFC3339)
	}
	c := domain.CatchRecord{
		ID:       uuid.New().String(),
		TripID:   tripID,
		Species:  species,
		Weight:   weight,
		Spot:     spot,
		Lat:      lat,
		Lng:      lng,
		CaughtAt: caughtAt,
	}
	if err := a.Repo.InsertCatch(ctx, c); err != nil {
		return domain.CatchRecord{}, err
	}
	return c, nil
}

func (a *App) AddReview(ctx context.Context, tripID, authorID string, rating int, comment string) (domain.Review, error) {
	if _, err := a.Repo.GetTrip(ctx, tripID); err != nil {
		return domain.Review{}, err
	}
	rv := domain.Review{
		ID:        uuid.New().String(),
		TripID:    tripID,
		AuthorID:  authorID,
		Rating:    rating,
		Comment:   comment,
		CreatedAt: a.now().UTC().Format(time.RFC3339),
	}
	if err := a.Repo.InsertReview(ctx, rv); err != nil {
		return domain.Review{}, err
	}
	return rv, nil
}

func (a *App) AddLocation(ctx context.Context, tripID string, lat, lng float64) (domain.LocationPoint, error) {
	if _, err := a.Repo.GetTrip(ctx, tripID); err != nil {
		return domain.LocationPoint{}, err
	}
	p := domain.LocationPoint{
		TripID:     tripID,
		Lat:        lat,
		Lng:        lng,
		RecordedAt: a.now().UTC().Format(time.RFC3339),
	}
	if err := a.Repo.InsertLocation(ctx, p); err != nil {
		return domain.LocationPoint{}, err
	}
	return p, nil
}

func (a *App) AddWeather(ctx context.Context, tripID string, temperature, windSpeed float64, conditions string) (domain.WeatherSnapshot, error) {
	if _, err := a.Repo.GetTrip(ctx, tripID); err != nil {
		return domain.WeatherSnapshot{}, err
	}
	w := domain.WeatherSnapshot{
		TripID:      tripID,
		Temperature: temperature,
		WindSpeed:   windSpeed,
		Conditions:  conditions,
		RecordedAt:  a.now().UTC().Format(time.RFC3339),
	}
	if err := a.Repo.InsertWeather(ctx, w); err != nil {
		return domain.WeatherSnapshot{}, err
	}
	return w, nil
}
