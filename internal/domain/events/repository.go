package events

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("event not found")

// ErrNotOrganizer is returned when a caller tries to mutate an event they
// do not own.
var ErrNotOrganizer = errors.New("caller is not the event organizer")

type Status string

const (
	StatusDraft     Status = "draft"
	StatusPublished Status = "published"
	StatusCancelled Status = "cancelled"
)

func (s Status) Valid() bool {
	switch s {
	case StatusDraft, StatusPublished, StatusCancelled:
		return true
	}
	return false
}

// Event is the descriptive record plus the attendance counters. CurrentCount
// and the attendee set are only ever mutated through the registration
// coordinator's commit path; organizer updates never touch them.
type Event struct {
	ID           string
	ULID         string
	Title        string
	Description  string
	Location     string
	ScheduledAt  time.Time
	Capacity     int
	CurrentCount int
	Status       Status
	OrganizerID  string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type CreateParams struct {
	ULID        string
	Title       string
	Description string
	Location    string
	ScheduledAt time.Time
	Capacity    int
	Status      Status
	OrganizerID string
}

// UpdateParams carries organizer-editable fields. Nil means "leave unchanged".
// Capacity and attendance counters are deliberately absent.
type UpdateParams struct {
	Title       *string
	Description *string
	Location    *string
	ScheduledAt *time.Time
	Status      *Status
}

type Filters struct {
	Query  string
	Status Status
}

type Pagination struct {
	Page  int
	Limit int
}

type ListResult struct {
	Events []Event
	Total  int
}

// OrganizerStats is the dashboard projection for one organizer's events.
type OrganizerStats struct {
	TotalEvents      int
	ActiveEvents     int
	TotalAttendees   int
	TotalCapacity    int
	RegistrationRate int
	RecentEvents     []Event
}

type Repository interface {
	Create(ctx context.Context, params CreateParams) (*Event, error)
	GetByULID(ctx context.Context, ulid string) (*Event, error)
	List(ctx context.Context, filters Filters, pagination Pagination) (ListResult, error)
	Update(ctx context.Context, ulid string, params UpdateParams) (*Event, error)
	Delete(ctx context.Context, ulid string) error
	OrganizerStats(ctx context.Context, organizerID string) (OrganizerStats, error)
}
