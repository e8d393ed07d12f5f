package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/mayowaagbi/CampusHealthSystem-sub000/internal/domain"
)

// Profile roles stored in user_profiles.role.
const (
	RoleStudent  = "student"
	RoleProvider = "provider"
	RoleAdmin    = "admin"
)

// GetProfile implements domain.ProfileStore.
func (r *Repository) GetProfile(ctx context.Context, userID string) (*domain.Profile, error) {
	const query = `SELECT user_id, COALESCE(phone, ''), COALESCE(daily_step_goal, 0)
        FROM user_profiles WHERE user_id = $1`

	var p domain.Profile
	if err := r.pool.QueryRow(ctx, query, userID).Scan(&p.UserID, &p.Phone, &p.DailyStepGoal); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &p, nil
}

// ListStudentIDs implements domain.RecipientDirectory.
func (r *Repository) ListStudentIDs(ctx context.Context) ([]string, error) {
	rows, err := r.pool.Query(ctx, `SELECT user_id FROM user_profiles WHERE role = $1 ORDER BY user_id`, RoleStudent)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

// SaveProfile upserts a profile with the given role.
func (r *Repository) SaveProfile(ctx context.Context, p domain.Profile, role string) error {
	const stmt = `INSERT INTO user_profiles (user_id, role, phone, daily_step_goal)
        VALUES ($1,$2,$3,$4)
        ON CONFLICT (user_id) DO UPDATE
            SET role = EXCLUDED.role,
                phone = EXCLUDED.phone,
                daily_step_goal = EXCLUDED.daily_step_goal`

	_, err := r.pool.Exec(ctx, stmt, p.UserID, role, nullIfEmpty(p.Phone), nullIfZero(p.DailyStepGoal))
	return err
}

func nullIfEmpty(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullIfZero(value int) any {
	if value <= 0 {
		return nil
	}
	return value
}
