package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/mayowaagbi/CampusHealthSystem-sub000/internal/domain"
	"github.com/mayowaagbi/CampusHealthSystem-sub000/internal/events"
)

const alertColumns = `a.alert_id::text, a.title, a.message, a.priority, a.created_by_id, a.start_time, a.end_time, a.status, a.created_at, a.updated_at`

// Create persists the alert with its frozen recipient set and records an
// alert.created outbox event inside a single transaction.
func (r *Repository) Create(ctx context.Context, alert domain.Alert) (err error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	const insertAlert = `INSERT INTO alerts (alert_id, title, message, priority, created_by_id, start_time, end_time, status, created_at, updated_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`

	if _, err = tx.Exec(ctx, insertAlert,
		alert.ID,
		alert.Title,
		alert.Message,
		string(alert.Priority),
		alert.CreatedByID,
		alert.StartTime,
		alert.EndTime,
		string(alert.Status),
		alert.CreatedAt,
		alert.UpdatedAt,
	); err != nil {
		return err
	}

	if len(alert.Recipients) > 0 {
		if _, err = tx.Exec(ctx,
			`INSERT INTO alert_recipients (alert_id, recipient_id)
             SELECT $1, recipient FROM unnest($2::text[]) AS recipient
             ON CONFLICT DO NOTHING`,
			alert.ID, alert.Recipients,
		); err != nil {
			return err
		}
	}

	if err = r.recordAlertLifecycle(ctx, tx, events.TypeAlertCreated, alert, alert.CreatedAt); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// SetStatus updates the stored status and records an alert.published event.
// It returns nil when the alert does not exist.
func (r *Repository) SetStatus(ctx context.Context, id string, status domain.AlertStatus, updatedAt time.Time) (result *domain.Alert, err error) {
	if _, parseErr := uuid.Parse(id); parseErr != nil {
		return nil, nil
	}

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	row := tx.QueryRow(ctx,
		`UPDATE alerts AS a SET status = $2, updated_at = $3
         WHERE a.alert_id = $1
         RETURNING `+alertColumns,
		id, string(status), updatedAt,
	)
	alert, err := scanAlert(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, tx.Commit(ctx)
		}
		return nil, err
	}

	if alert.Recipients, err = loadRecipients(ctx, tx, id); err != nil {
		return nil, err
	}

	if status == domain.AlertStatusActive {
		if err = r.recordAlertLifecycle(ctx, tx, events.TypeAlertPublished, alert, updatedAt); err != nil {
			return nil, err
		}
	}

	if err = tx.Commit(ctx); err != nil {
		return nil, err
	}
	return &alert, nil
}

// Get retrieves an alert with its recipients, or nil when it does not exist.
func (r *Repository) Get(ctx context.Context, id string) (*domain.Alert, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, nil
	}

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{AccessMode: pgx.ReadOnly})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	alert, err := scanAlert(tx.QueryRow(ctx, `SELECT `+alertColumns+` FROM alerts a WHERE a.alert_id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if alert.Recipients, err = loadRecipients(ctx, tx, id); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return &alert, nil
}

// Delete removes the alert and, by cascade, its recipient rows. An
// alert.deleted event is recorded when a row was removed.
func (r *Repository) Delete(ctx context.Context, id string) (deleted bool, err error) {
	if _, parseErr := uuid.Parse(id); parseErr != nil {
		return false, nil
	}

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return false, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	tag, err := tx.Exec(ctx, `DELETE FROM alerts WHERE alert_id = $1`, id)
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() == 0 {
		return false, tx.Commit(ctx)
	}

	now := r.now().UTC()
	if err = r.insertOutbox(ctx, tx, outboxRecord{
		aggregateType: "alert",
		aggregateID:   id,
		eventType:     events.TypeAlertDeleted,
		partitionKey:  id,
		occurredAt:    now,
		payload:       events.AlertDeleted{AlertID: id, DeletedAt: now},
	}); err != nil {
		return false, err
	}

	if err = tx.Commit(ctx); err != nil {
		return false, err
	}
	return true, nil
}

// ListForRecipient returns alerts addressed to recipientID ordered newest first.
// Recipient sets are not loaded for listings.
func (r *Repository) ListForRecipient(ctx context.Context, recipientID string, cursor *domain.Cursor, limit int) ([]domain.Alert, *domain.Cursor, error) {
	// One extra row tells whether another page exists.
	args := []any{recipientID, limit + 1}
	query := `SELECT ` + alertColumns + `
        FROM alerts a
        JOIN alert_recipients ar ON ar.alert_id = a.alert_id
        WHERE ar.recipient_id = $1`

	if cursor != nil {
		query += ` AND (a.created_at, a.alert_id::text) < ($3, $4)`
		args = append(args, cursor.CreatedAt, cursor.ID)
	}

	query += ` ORDER BY a.created_at DESC, a.alert_id::text DESC LIMIT $2`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	results := make([]domain.Alert, 0, limit+1)
	for rows.Next() {
		alert, err := scanAlert(rows)
		if err != nil {
			return nil, nil, err
		}
		results = append(results, alert)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}

	var nextCursor *domain.Cursor
	if limit > 0 && len(results) > limit {
		results = results[:limit]
		last := results[len(results)-1]
		nextCursor = &domain.Cursor{CreatedAt: last.CreatedAt, ID: last.ID}
	}
	return results, nextCursor, nil
}

func (r *Repository) recordAlertLifecycle(ctx context.Context, tx pgx.Tx, eventType string, alert domain.Alert, occurredAt time.Time) error {
	return r.insertOutbox(ctx, tx, outboxRecord{
		aggregateType: "alert",
		aggregateID:   alert.ID,
		eventType:     eventType,
		partitionKey:  alert.ID,
		occurredAt:    occurredAt,
		payload: events.AlertLifecycle{
			Alert:          domain.AlertEvent(alert, occurredAt),
			RecipientCount: len(alert.Recipients),
			OccurredAt:     occurredAt,
		},
	})
}

func loadRecipients(ctx context.Context, tx pgx.Tx, alertID string) ([]string, error) {
	rows, err := tx.Query(ctx, `SELECT recipient_id FROM alert_recipients WHERE alert_id = $1 ORDER BY recipient_id`, alertID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

func scanAlert(row pgx.Row) (domain.Alert, error) {
	var (
		a        domain.Alert
		priority string
		status   string
	)
	if err := row.Scan(&a.ID, &a.Title, &a.Message, &priority, &a.CreatedByID, &a.StartTime, &a.EndTime, &status, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return domain.Alert{}, err
	}
	a.Priority = domain.AlertPriority(priority)
	a.Status = domain.AlertStatus(status)
	return a, nil
}
