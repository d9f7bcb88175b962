package events

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/gatherly-live/server/internal/domain/ids"
)

type Service struct {
	repo      Repository
	logger    zerolog.Logger
	validator *validator.Validate
}

func NewService(repo Repository, logger zerolog.Logger) *Service {
	return &Service{
		repo:      repo,
		logger:    logger.With().Str("component", "events").Logger(),
		validator: validator.New(),
	}
}

// CreateInput is the organizer-facing payload for publishing a new event.
type CreateInput struct {
	Title       string    `json:"title" validate:"required,min=3,max=200"`
	Description string    `json:"description" validate:"required,min=10,max=5000"`
	Location    string    `json:"location" validate:"required,min=3,max=200"`
	ScheduledAt time.Time `json:"scheduled_at" validate:"required"`
	Capacity    int       `json:"capacity" validate:"required,min=1,max=1000"`
	Status      Status    `json:"status"`
}

type UpdateInput struct {
	Title       *string    `json:"title" validate:"omitempty,min=3,max=200"`
	Description *string    `json:"description" validate:"omitempty,min=10,max=5000"`
	Location    *string    `json:"location" validate:"omitempty,min=3,max=200"`
	ScheduledAt *time.Time `json:"scheduled_at"`
	Status      *Status    `json:"status"`
}

type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

func (s *Service) Create(ctx context.Context, organizerID string, input CreateInput) (*Event, error) {
	if err := s.validator.Struct(input); err != nil {
		return nil, validationError(err)
	}
	if !input.ScheduledAt.After(time.Now()) {
		return nil, ValidationError{Field: "scheduled_at", Message: "must be in the future"}
	}

	status := input.Status
	if status == "" {
		status = StatusPublished
	}
	if status != StatusDraft && status != StatusPublished {
		return nil, ValidationError{Field: "status", Message: "must be draft or published"}
	}

	ulid, err := ids.NewULID()
	if err != nil {
		return nil, fmt.Errorf("mint event ulid: %w", err)
	}

	event, err := s.repo.Create(ctx, CreateParams{
		ULID:        ulid,
		Title:       strings.TrimSpace(input.Title),
		Description: strings.TrimSpace(input.Description),
		Location:    strings.TrimSpace(input.Location),
		ScheduledAt: input.ScheduledAt.UTC(),
		Capacity:    input.Capacity,
		Status:      status,
		OrganizerID: organizerID,
	})
	if err != nil {
		return nil, fmt.Errorf("create event: %w", err)
	}

	s.logger.Info().
		Str("event", event.ULID).
		Str("organizer", organizerID).
		Int("capacity", event.Capacity).
		Msg("event created")
	return event, nil
}

func (s *Service) GetByULID(ctx context.Context, ulid string) (*Event, error) {
	return s.repo.GetByULID(ctx, ulid)
}

func (s *Service) List(ctx context.Context, filters Filters, pagination Pagination) (ListResult, error) {
	return s.repo.List(ctx, filters, pagination)
}

// Update applies organizer edits to descriptive fields. Only the owning
// organizer may update; attendance counters are not editable here.
func (s *Service) Update(ctx context.Context, callerID, ulid string, input UpdateInput) (*Event, error) {
	if err := s.validator.Struct(input); err != nil {
		return nil, validationError(err)
	}
	if input.Status != nil && !input.Status.Valid() {
		return nil, ValidationError{Field: "status", Message: "must be draft, published or cancelled"}
	}
	if input.ScheduledAt != nil && !input.ScheduledAt.After(time.Now()) {
		return nil, ValidationError{Field: "scheduled_at", Message: "must be in the future"}
	}

	existing, err := s.repo.GetByULID(ctx, ulid)
	if err != nil {
		return nil, err
	}
	if existing.OrganizerID != callerID {
		return nil, ErrNotOrganizer
	}

	params := UpdateParams{
		Title:       trimmed(input.Title),
		Description: trimmed(input.Description),
		Location:    trimmed(input.Location),
		ScheduledAt: input.ScheduledAt,
		Status:      input.Status,
	}

	updated, err := s.repo.Update(ctx, ulid, params)
	if err != nil {
		return nil, fmt.Errorf("update event: %w", err)
	}
	return updated, nil
}

func (s *Service) Delete(ctx context.Context, callerID, ulid string) error {
	existing, err := s.repo.GetByULID(ctx, ulid)
	if err != nil {
		return err
	}
	if existing.OrganizerID != callerID {
		return ErrNotOrganizer
	}
	if err := s.repo.Delete(ctx, ulid); err != nil {
		return fmt.Errorf("delete event: %w", err)
	}
	s.logger.Info().Str("event", ulid).Msg("event deleted")
	return nil
}

func (s *Service) OrganizerStats(ctx context.Context, organizerID string) (OrganizerStats, error) {
	return s.repo.OrganizerStats(ctx, organizerID)
}

// ParseListQuery maps the public listing query string onto filters and
// pagination. Unknown statuses are rejected rather than silently ignored.
func ParseListQuery(values url.Values) (Filters, Pagination, error) {
	filters := Filters{Status: StatusPublished}
	pagination := Pagination{Page: 1, Limit: 10}

	filters.Query = strings.TrimSpace(values.Get("search"))

	if raw := strings.TrimSpace(values.Get("status")); raw != "" {
		status := Status(raw)
		if !status.Valid() {
			return filters, pagination, ValidationError{Field: "status", Message: "must be draft, published or cancelled"}
		}
		filters.Status = status
	}

	if raw := strings.TrimSpace(values.Get("page")); raw != "" {
		page, err := strconv.Atoi(raw)
		if err != nil || page < 1 {
			return filters, pagination, ValidationError{Field: "page", Message: "must be a positive integer"}
		}
		pagination.Page = page
	}

	if raw := strings.TrimSpace(values.Get("limit")); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 {
			return filters, pagination, ValidationError{Field: "limit", Message: "must be a positive integer"}
		}
		if limit > 100 {
			limit = 100
		}
		pagination.Limit = limit
	}

	return filters, pagination, nil
}

func validationError(err error) error {
	var fieldErrors validator.ValidationErrors
	if ok := errors.As(err, &fieldErrors); ok && len(fieldErrors) > 0 {
		first := fieldErrors[0]
		return ValidationError{
			Field:   strings.ToLower(first.Field()),
			Message: fmt.Sprintf("failed %s constraint", first.Tag()),
		}
	}
	return ValidationError{Message: err.Error()}
}

func trimmed(value *string) *string {
	if value == nil {
		return nil
	}
	t := strings.TrimSpace(*value)
	return &t
}
