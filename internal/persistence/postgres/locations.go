package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/mayowaagbi/CampusHealthSystem-sub000/internal/domain"
	"github.com/mayowaagbi/CampusHealthSystem-sub000/internal/geo"
)

// MostRecentSample implements domain.LocationStore.
func (r *Repository) MostRecentSample(ctx context.Context, userID string) (*domain.LocationSample, error) {
	const query = `SELECT sample_id, user_id, latitude, longitude, captured_at
        FROM location_samples
        WHERE user_id = $1
        ORDER BY captured_at DESC, sample_id DESC
        LIMIT 1`

	var s domain.LocationSample
	err := r.pool.QueryRow(ctx, query, userID).Scan(&s.ID, &s.UserID, &s.Latitude, &s.Longitude, &s.CapturedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &s, nil
}

// AppendSample implements domain.LocationStore.
func (r *Repository) AppendSample(ctx context.Context, userID string, point geo.Point, capturedAt time.Time) (domain.LocationSample, error) {
	const stmt = `INSERT INTO location_samples (user_id, latitude, longitude, captured_at)
        VALUES ($1,$2,$3,$4)
        RETURNING sample_id`

	s := domain.LocationSample{
		UserID:     userID,
		Latitude:   point.Lat,
		Longitude:  point.Lng,
		CapturedAt: capturedAt.UTC(),
	}
	if err := r.pool.QueryRow(ctx, stmt, s.UserID, s.Latitude, s.Longitude, s.CapturedAt).Scan(&s.ID); err != nil {
		return domain.LocationSample{}, err
	}
	return s, nil
}
