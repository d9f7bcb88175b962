package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/gatherly-live/server/internal/domain/events"
)

var _ events.Repository = (*EventRepository)(nil)

type eventRow struct {
	ID           string
	ULID         string
	Title        string
	Description  string
	Location     string
	ScheduledAt  pgtype.Timestamptz
	Capacity     int
	CurrentCount int
	Status       string
	OrganizerID  string
	CreatedAt    pgtype.Timestamptz
	UpdatedAt    pgtype.Timestamptz
}

const eventColumns = `id, ulid, title, description, location, scheduled_at,
       capacity, current_count, status, organizer_id, created_at, updated_at`

func (row eventRow) toDomain() *events.Event {
	return &events.Event{
		ID:           row.ID,
		ULID:         row.ULID,
		Title:        row.Title,
		Description:  row.Description,
		Location:     row.Location,
		ScheduledAt:  row.ScheduledAt.Time,
		Capacity:     row.Capacity,
		CurrentCount: row.CurrentCount,
		Status:       events.Status(row.Status),
		OrganizerID:  row.OrganizerID,
		CreatedAt:    row.CreatedAt.Time,
		UpdatedAt:    row.UpdatedAt.Time,
	}
}

func scanEventRow(row pgx.Row) (*events.Event, error) {
	var data eventRow
	err := row.Scan(
		&data.ID,
		&data.ULID,
		&data.Title,
		&data.Description,
		&data.Location,
		&data.ScheduledAt,
		&data.Capacity,
		&data.CurrentCount,
		&data.Status,
		&data.OrganizerID,
		&data.CreatedAt,
		&data.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return data.toDomain(), nil
}

func (r *EventRepository) Create(ctx context.Context, params events.CreateParams) (*events.Event, error) {
	queryer := r.queryer()
	row := queryer.QueryRow(ctx, `
INSERT INTO events (ulid, title, description, location, scheduled_at, capacity, status, organizer_id)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
RETURNING `+eventColumns,
		params.ULID,
		params.Title,
		params.Description,
		params.Location,
		params.ScheduledAt,
		params.Capacity,
		string(params.Status),
		params.OrganizerID,
	)

	event, err := scanEventRow(row)
	if err != nil {
		return nil, fmt.Errorf("create event: %w", err)
	}
	return event, nil
}

func (r *EventRepository) GetByULID(ctx context.Context, ulid string) (*events.Event, error) {
	queryer := r.queryer()
	row := queryer.QueryRow(ctx, `
SELECT `+eventColumns+`
  FROM events
 WHERE ulid = $1
`, ulid)

	event, err := scanEventRow(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, events.ErrNotFound
		}
		return nil, fmt.Errorf("get event: %w", err)
	}
	return event, nil
}

func (r *EventRepository) List(ctx context.Context, filters events.Filters, pagination events.Pagination) (events.ListResult, error) {
	queryer := r.queryer()

	limit := pagination.Limit
	if limit <= 0 {
		limit = 10
	}
	page := pagination.Page
	if page <= 0 {
		page = 1
	}
	offset := (page - 1) * limit

	rows, err := queryer.Query(ctx, `
SELECT `+eventColumns+`, count(*) OVER () AS total
  FROM events
 WHERE ($1 = '' OR status = $1)
   AND ($2 = '' OR title ILIKE '%' || $2 || '%' OR description ILIKE '%' || $2 || '%' OR location ILIKE '%' || $2 || '%')
 ORDER BY scheduled_at ASC, ulid ASC
 LIMIT $3 OFFSET $4
`,
		string(filters.Status),
		filters.Query,
		limit,
		offset,
	)
	if err != nil {
		return events.ListResult{}, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	result := events.ListResult{Events: make([]events.Event, 0, limit)}
	for rows.Next() {
		var data eventRow
		var total int
		if err := rows.Scan(
			&data.ID,
			&data.ULID,
			&data.Title,
			&data.Description,
			&data.Location,
			&data.ScheduledAt,
			&data.Capacity,
			&data.CurrentCount,
			&data.Status,
			&data.OrganizerID,
			&data.CreatedAt,
			&data.UpdatedAt,
			&total,
		); err != nil {
			return events.ListResult{}, fmt.Errorf("scan event: %w", err)
		}
		result.Events = append(result.Events, *data.toDomain())
		result.Total = total
	}
	if err := rows.Err(); err != nil {
		return events.ListResult{}, fmt.Errorf("list events: %w", err)
	}
	return result, nil
}

func (r *EventRepository) Update(ctx context.Context, ulid string, params events.UpdateParams) (*events.Event, error) {
	queryer := r.queryer()

	var status *string
	if params.Status != nil {
		value := string(*params.Status)
		status = &value
	}

	row := queryer.QueryRow(ctx, `
UPDATE events
   SET title        = COALESCE($2, title),
       description  = COALESCE($3, description),
       location     = COALESCE($4, location),
       scheduled_at = COALESCE($5, scheduled_at),
       status       = COALESCE($6, status),
       updated_at   = now()
 WHERE ulid = $1
RETURNING `+eventColumns,
		ulid,
		params.Title,
		params.Description,
		params.Location,
		params.ScheduledAt,
		status,
	)

	event, err := scanEventRow(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, events.ErrNotFound
		}
		return nil, fmt.Errorf("update event: %w", err)
	}
	return event, nil
}

func (r *EventRepository) Delete(ctx context.Context, ulid string) error {
	queryer := r.queryer()
	tag, err := queryer.Exec(ctx, `DELETE FROM events WHERE ulid = $1`, ulid)
	if err != nil {
		return fmt.Errorf("delete event: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return events.ErrNotFound
	}
	return nil
}

func (r *EventRepository) OrganizerStats(ctx context.Context, organizerID string) (events.OrganizerStats, error) {
	queryer := r.queryer()

	var stats events.OrganizerStats
	row := queryer.QueryRow(ctx, `
SELECT count(*),
       count(*) FILTER (WHERE status = 'published' AND scheduled_at > now()),
       COALESCE(sum(current_count), 0),
       COALESCE(sum(capacity), 0)
  FROM events
 WHERE organizer_id = $1
`, organizerID)
	if err := row.Scan(&stats.TotalEvents, &stats.ActiveEvents, &stats.TotalAttendees, &stats.TotalCapacity); err != nil {
		return events.OrganizerStats{}, fmt.Errorf("organizer stats: %w", err)
	}
	if stats.TotalCapacity > 0 {
		stats.RegistrationRate = stats.TotalAttendees * 100 / stats.TotalCapacity
	}

	rows, err := queryer.Query(ctx, `
SELECT `+eventColumns+`
  FROM events
 WHERE organizer_id = $1
 ORDER BY created_at DESC
 LIMIT 5
`, organizerID)
	if err != nil {
		return events.OrganizerStats{}, fmt.Errorf("organizer recent events: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var data eventRow
		if err := rows.Scan(
			&data.ID,
			&data.ULID,
			&data.Title,
			&data.Description,
			&data.Location,
			&data.ScheduledAt,
			&data.Capacity,
			&data.CurrentCount,
			&data.Status,
			&data.OrganizerID,
			&data.CreatedAt,
			&data.UpdatedAt,
		); err != nil {
			return events.OrganizerStats{}, fmt.Errorf("scan recent event: %w", err)
		}
		stats.RecentEvents = append(stats.RecentEvents, *data.toDomain())
	}
	if err := rows.Err(); err != nil {
		return events.OrganizerStats{}, fmt.Errorf("organizer recent events: %w", err)
	}
	return stats, nil
}

type eventQueryer interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func (r *EventRepository) queryer() eventQueryer {
	if r.tx != nil {
		return r.tx
	}
	return r.pool
}
