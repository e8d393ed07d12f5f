package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/mayowaagbi/CampusHealthSystem-sub000/internal/domain"
)

// IncrementToday adds delta to the caller's row for the current UTC day in a
// single statement, so concurrent reports never lose an update.
func (r *Repository) IncrementToday(ctx context.Context, userID string, delta int) (domain.StepLedgerEntry, error) {
	if delta < 0 {
		return domain.StepLedgerEntry{}, domain.ErrNegativeDelta
	}

	const stmt = `INSERT INTO step_ledger (user_id, day, steps, source, updated_at)
        VALUES ($1,$2,$3,$4,$5)
        ON CONFLICT (user_id, day) DO UPDATE
            SET steps = step_ledger.steps + EXCLUDED.steps,
                updated_at = EXCLUDED.updated_at
        RETURNING user_id, day, steps, source, updated_at`

	now := r.now().UTC()
	var e domain.StepLedgerEntry
	err := r.pool.QueryRow(ctx, stmt, userID, domain.StartOfDay(now), delta, domain.LedgerSourceGPS, now).
		Scan(&e.UserID, &e.Date, &e.Steps, &e.Source, &e.UpdatedAt)
	if err != nil {
		return domain.StepLedgerEntry{}, err
	}
	return e, nil
}

// GetToday implements domain.StepLedger.
func (r *Repository) GetToday(ctx context.Context, userID string) (*domain.StepLedgerEntry, error) {
	const query = `SELECT user_id, day, steps, source, updated_at
        FROM step_ledger
        WHERE user_id = $1 AND day = $2`

	var e domain.StepLedgerEntry
	err := r.pool.QueryRow(ctx, query, userID, domain.StartOfDay(r.now())).
		Scan(&e.UserID, &e.Date, &e.Steps, &e.Source, &e.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &e, nil
}
