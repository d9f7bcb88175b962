package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/gatherly-live/server/internal/domain/registrations"
	"github.com/gatherly-live/server/internal/storage"
)

var _ storage.RegistrationRepository = (*RegistrationRepository)(nil)

// TryRegister applies one registration atomically. The event row is locked
// FOR UPDATE for the duration of the transaction, so the capacity check, the
// duplicate check and the counter increment cannot interleave with a
// concurrent attempt on the same event. The guarded UPDATE re-checks
// capacity as a second line of defense; the not_oversold table constraint is
// the last one.
func (r *RegistrationRepository) TryRegister(ctx context.Context, eventULID, userID, idempotencyKey string) (registrations.Commit, error) {
	if r.tx != nil {
		return r.tryRegisterTx(ctx, r.tx, eventULID, userID, idempotencyKey)
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return registrations.Commit{}, fmt.Errorf("%w: begin: %v", registrations.ErrTransient, err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	commit, err := r.tryRegisterTx(ctx, tx, eventULID, userID, idempotencyKey)
	if err != nil {
		return registrations.Commit{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return registrations.Commit{}, fmt.Errorf("%w: commit: %v", registrations.ErrTransient, err)
	}
	return commit, nil
}

func (r *RegistrationRepository) tryRegisterTx(ctx context.Context, tx pgx.Tx, eventULID, userID, idempotencyKey string) (registrations.Commit, error) {
	var event struct {
		ID           string
		Capacity     int
		CurrentCount int
		Status       string
		ScheduledAt  pgtype.Timestamptz
	}
	err := tx.QueryRow(ctx, `
SELECT id, capacity, current_count, status, scheduled_at
  FROM events
 WHERE ulid = $1
   FOR UPDATE
`, eventULID).Scan(&event.ID, &event.Capacity, &event.CurrentCount, &event.Status, &event.ScheduledAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return registrations.Commit{}, registrations.ErrEventNotFound
		}
		return registrations.Commit{}, fmt.Errorf("%w: lock event: %v", registrations.ErrTransient, err)
	}

	if idempotencyKey != "" {
		var replay struct {
			RegistrationID string
			CountAfter     int
			Capacity       int
		}
		err := tx.QueryRow(ctx, `
SELECT registration_id, count_after, capacity
  FROM registration_idempotency
 WHERE idempotency_key = $1 AND user_id = $2 AND event_id = $3
`, idempotencyKey, userID, event.ID).Scan(&replay.RegistrationID, &replay.CountAfter, &replay.Capacity)
		if err == nil {
			return registrations.Commit{
				RegistrationID: replay.RegistrationID,
				NewCount:       replay.CountAfter,
				Capacity:       replay.Capacity,
				Replayed:       true,
			}, nil
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return registrations.Commit{}, fmt.Errorf("%w: idempotency lookup: %v", registrations.ErrTransient, err)
		}
	}

	if event.Status != "published" {
		return registrations.Commit{}, registrations.ErrNotPublished
	}
	if !event.ScheduledAt.Time.After(time.Now()) {
		return registrations.Commit{}, registrations.ErrEventPast
	}

	var alreadyRegistered bool
	err = tx.QueryRow(ctx, `
SELECT EXISTS (SELECT 1 FROM registrations WHERE event_id = $1 AND user_id = $2)
`, event.ID, userID).Scan(&alreadyRegistered)
	if err != nil {
		return registrations.Commit{}, fmt.Errorf("%w: membership check: %v", registrations.ErrTransient, err)
	}
	if alreadyRegistered {
		return registrations.Commit{}, registrations.ErrAlreadyRegistered
	}

	if event.CurrentCount >= event.Capacity {
		return registrations.Commit{}, registrations.ErrEventFull
	}

	var newCount int
	err = tx.QueryRow(ctx, `
UPDATE events
   SET current_count = current_count + 1,
       updated_at    = now()
 WHERE id = $1 AND current_count < capacity
RETURNING current_count
`, event.ID).Scan(&newCount)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return registrations.Commit{}, registrations.ErrEventFull
		}
		return registrations.Commit{}, fmt.Errorf("%w: increment count: %v", registrations.ErrTransient, err)
	}

	var registrationID string
	err = tx.QueryRow(ctx, `
INSERT INTO registrations (event_id, user_id)
VALUES ($1, $2)
RETURNING id
`, event.ID, userID).Scan(&registrationID)
	if err != nil {
		return registrations.Commit{}, fmt.Errorf("%w: insert registration: %v", registrations.ErrTransient, err)
	}

	if idempotencyKey != "" {
		_, err = tx.Exec(ctx, `
INSERT INTO registration_idempotency (idempotency_key, user_id, event_id, registration_id, count_after, capacity)
VALUES ($1, $2, $3, $4, $5, $6)
`, idempotencyKey, userID, event.ID, registrationID, newCount, event.Capacity)
		if err != nil {
			return registrations.Commit{}, fmt.Errorf("%w: record idempotency key: %v", registrations.ErrTransient, err)
		}
	}

	return registrations.Commit{
		RegistrationID: registrationID,
		NewCount:       newCount,
		Capacity:       event.Capacity,
	}, nil
}

func (r *RegistrationRepository) Snapshot(ctx context.Context, eventULID, userID string) (registrations.Snapshot, error) {
	queryer := r.registrationQueryer()

	var snapshot registrations.Snapshot
	var eventID string
	err := queryer.QueryRow(ctx, `
SELECT id, current_count, capacity
  FROM events
 WHERE ulid = $1
`, eventULID).Scan(&eventID, &snapshot.CurrentCount, &snapshot.Capacity)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return registrations.Snapshot{}, registrations.ErrEventNotFound
		}
		return registrations.Snapshot{}, fmt.Errorf("snapshot event: %w", err)
	}

	if userID != "" {
		err = queryer.QueryRow(ctx, `
SELECT EXISTS (SELECT 1 FROM registrations WHERE event_id = $1 AND user_id = $2)
`, eventID, userID).Scan(&snapshot.Registered)
		if err != nil {
			return registrations.Snapshot{}, fmt.Errorf("snapshot membership: %w", err)
		}
	}
	return snapshot, nil
}

func (r *RegistrationRepository) ListByEvent(ctx context.Context, eventULID string) ([]registrations.Record, error) {
	queryer := r.registrationQueryer()

	rows, err := queryer.Query(ctx, `
SELECT r.id, e.ulid, r.user_id, r.registered_at
  FROM registrations r
  JOIN events e ON e.id = r.event_id
 WHERE e.ulid = $1
 ORDER BY r.registered_at ASC, r.id ASC
`, eventULID)
	if err != nil {
		return nil, fmt.Errorf("list registrations: %w", err)
	}
	defer rows.Close()

	var records []registrations.Record
	for rows.Next() {
		var record registrations.Record
		var registeredAt pgtype.Timestamptz
		if err := rows.Scan(&record.ID, &record.EventULID, &record.UserID, &registeredAt); err != nil {
			return nil, fmt.Errorf("scan registration: %w", err)
		}
		record.RegisteredAt = registeredAt.Time
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list registrations: %w", err)
	}
	return records, nil
}

type registrationQueryer interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func (r *RegistrationRepository) registrationQueryer() registrationQueryer {
	if r.tx != nil {
		return r.tx
	}
	return r.pool
}
