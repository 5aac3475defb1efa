package repo

import (
	"context"
	"database/sql"

	"tideline/internal/domain"
)

// Feature tables feeding the transition context data bag: checklist items,
// catch records, reviews, location history and weather snapshots.

func (r Repo) InsertChecklistItem(ctx context.Context, item domain.ChecklistItem) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO checklist_items(id,trip_id,title,category,is_completed,created_at) VALUES (?,?,?,?,?,?)`,
		item.ID, item.TripID, item.Title, item.Category, boolInt(item.IsCompleted), item.CreatedAt)
	return err
}

func (r Repo) SetChecklistItemDone(ctx context.Context, tripID, itemID string, done bool) error {
	res, err := r.DB.ExecContext(ctx, `UPDATE checklist_items SET is_completed=? WHERE id=? AND trip_id=?`, boolInt(done), itemID, tripID)
	if err != nil {
		return err
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) ListChecklist(ctx context.Context, tripID string) ([]domain.ChecklistItem, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,trip_id,title,category,is_completed,created_at FROM checklist_items WHERE trip_id=? ORDER BY created_at, id`, tripID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.ChecklistItem
	for rows.Next() {
		var item domain.ChecklistItem
		var done int
		if err := rows.Scan(&item.ID, &item.TripID, &item.Title, &item.Category, &done, &item.CreatedAt); err != nil {
			return nil, err
		}
		item.IsCompleted = done != 0
		res = append(res, item)
	}
	return res, rows.Err()
}

func (r Repo) InsertCatch(ctx context.Context, c domain.CatchRecord) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO catches(id,trip_id,species,weight,spot,lat,lng,caught_at) VALUES (?,?,?,?,?,?,?,?)`,
		c.ID, c.TripID, c.Species, c.Weight, nullable(c.Spot), c.Lat, c.Lng, c.CaughtAt)
	return err
}

func (r Repo) ListCatches(ctx context.Context, tripID string) ([]domain.CatchRecord, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,trip_id,species,weight,COALESCE(spot,''),lat,lng,caught_at FROM catches WHERE trip_id=? ORDER BY caught_at, id`, tripID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.CatchRecord
	for rows.Next() {
		var c domain.CatchRecord
		var lat, lng sql.NullFloat64
		if err := rows.Scan(&c.ID, &c.TripID, &c.Species, &c.Weight, &c.Spot, &lat, &lng, &c.CaughtAt); err != nil {
			return nil, err
		}
		if lat.Valid {
			c.Lat = &lat.Float64
		}
		if lng.Valid {
			c.Lng = &lng.Float64
		}
		res = append(res, c)
	}
	return res, rows.Err()
}

func (r Repo) InsertReview(ctx context.Context, rv domain.Review) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO reviews(id,trip_id,author_id,rating,comment,created_at) VALUES (?,?,?,?,?,?)`,
		rv.ID, rv.TripID, rv.AuthorID, rv.Rating, nullable(rv.Comment), rv.CreatedAt)
	return err
}

func (r Repo) ListReviews(ctx context.Context, tripID string) ([]domain.Review, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,trip_id,author_id,rating,COALESCE(comment,''),created_at FROM reviews WHERE trip_id=? ORDER BY created_at, id`, tripID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Review
	for rows.Next() {
		var rv domain.Review
		if err := rows.Scan(&rv.ID, &rv.TripID, &rv.AuthorID, &rv.Rating, &rv.Comment, &rv.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, rv)
	}
	return res, rows.Err()
}

func (r Repo) InsertLocation(ctx context.Context, p domain.LocationPoint) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO locations(trip_id,lat,lng,recorded_at) VALUES (?,?,?,?)`,
		p.TripID, p.Lat, p.Lng, p.RecordedAt)
	return err
}

func (r Repo) ListLocations(ctx context.Context, tripID string) ([]domain.LocationPoint, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT trip_id,lat,lng,recorded_at FROM locations WHERE trip_id=? ORDER BY id`, tripID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.LocationPoint
	for rows.Next() {
		var p domain.LocationPoint
		if err := rows.Scan(&p.TripID, &p.Lat, &p.Lng, &p.RecordedAt); err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, rows.Err()
}

func (r Repo) InsertWeather(ctx context.Context, w domain.WeatherSnapshot) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO weather_log(trip_id,temperature,wind_speed,conditions,recorded_at) VALUES (?,?,?,?,?)`,
		w.TripID, w.Temperature, w.WindSpeed, nullable(w.Conditions), w.RecordedAt)
	return err
}

func (r Repo) ListWeather(ctx context.Context, tripID string) ([]domain.WeatherSnapshot, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT trip_id,temperature,wind_speed,COALESCE(conditions,''),recorded_at FROM weather_log WHERE trip_id=? ORDER BY id`, tripID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.WeatherSnapshot
	for rows.Next() {
		var w domain.WeatherSnapshot
		if err := rows.Scan(&w.TripID, &w.Temperature, &w.WindSpeed, &w.Conditions, &w.RecordedAt); err != nil {
			return nil, err
		}
		res = append(res, w)
	}
	return res, rows.Err()
}

// LatestWeather returns the most recent snapshot or ErrNotFound.
func (r Repo) LatestWeather(ctx context.Context, tripID string) (domain.WeatherSnapshot, error) {
	var w domain.WeatherSnapshot
	err := r.DB.QueryRowContext(ctx, `SELECT trip_id,temperature,wind_speed,COALESCE(conditions,''),recorded_at FROM weather_log WHERE trip_id=? ORDER BY id DESC LIMIT 1`, tripID).
		Scan(&w.TripID, &w.Temperature, &w.WindSpeed, &w.Conditions, &w.RecordedAt)
	if err == sql.ErrNoRows {
		return w, ErrNotFound
	}
	return w, err
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
