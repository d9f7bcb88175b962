// Package registrations implements the capacity-bounded registration core:
// the ledger contract that serializes check-and-increment per event, and the
// coordinator that validates commands, commits them and fans the resulting
// state changes out to live subscribers.
package registrations

import (
	"context"
	"errors"
	"time"
)

// Rejection reasons, in the priority order the ledger checks them.
var (
	ErrEventNotFound     = errors.New("event not found")
	ErrNotPublished      = errors.New("event is not published")
	ErrEventPast         = errors.New("event has already started")
	ErrAlreadyRegistered = errors.New("user is already registered")
	ErrEventFull         = errors.New("event is full")

	// ErrTransient wraps storage hiccups that left no partial state behind.
	// Callers may retry; every retry re-reads the current ledger state.
	ErrTransient = errors.New("transient storage failure")
)

// Command is a registration attempt against one event. IdempotencyKey is
// optional; when present, a retried command with the same key replays the
// original outcome instead of committing twice.
type Command struct {
	EventULID      string
	UserID         string
	IdempotencyKey string
}

// Outcome is what the registering client sees for its own request.
type Outcome struct {
	RegistrationID string
	EventULID      string
	CurrentCount   int
	Capacity       int
	Replayed       bool
}

// Commit is a successful, durable application of a registration to the
// ledger. NewCount is the count immediately after this commit.
type Commit struct {
	RegistrationID string
	NewCount       int
	Capacity       int
	Replayed       bool
}

// Snapshot is a read-only view of one event's attendance state. Registered
// reports membership for the user the snapshot was taken for.
type Snapshot struct {
	CurrentCount int
	Capacity     int
	Registered   bool
}

// Ledger is the authoritative counter and membership state. TryRegister is
// the single mutating entry point: the check-and-increment must be atomic
// per event, so two concurrent calls can never both observe room available
// and both commit. Failures leave state unchanged.
type Ledger interface {
	TryRegister(ctx context.Context, eventULID, userID, idempotencyKey string) (Commit, error)
	Snapshot(ctx context.Context, eventULID, userID string) (Snapshot, error)
}

// Record is one immutable registration row.
type Record struct {
	ID           string
	EventULID    string
	UserID       string
	RegisteredAt time.Time
}

type UpdateType string

const (
	UpdateAttendeeRegistered UpdateType = "attendee-registered"
	UpdateEventFull          UpdateType = "event-full"
)

// Update is the delta pushed to every connection watching an event room.
type Update struct {
	Type         UpdateType `json:"type"`
	EventULID    string     `json:"event_id"`
	CurrentCount int        `json:"current_count"`
	Capacity     int        `json:"capacity"`
}

// Notifier delivers committed updates to the event's room. Delivery is
// best-effort per subscriber and must never fail the committing caller.
type Notifier interface {
	Publish(eventULID string, update Update)
}

// NopNotifier discards updates. Used where no realtime channel is wired.
type NopNotifier struct{}

func (NopNotifier) Publish(string, Update) {}

// IsRejection reports whether err is a terminal business-rule rejection that
// must not be retried.
func IsRejection(err error) bool {
	return errors.Is(err, ErrEventNotFound) ||
		errors.Is(err, ErrNotPublished) ||
		errors.Is(err, ErrEventPast) ||
		errors.Is(err, ErrAlreadyRegistered) ||
		errors.Is(err, ErrEventFull)
}
