package registrations

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gatherly-live/server/internal/domain/events"
	"github.com/gatherly-live/server/internal/domain/ids"
)

// MemoryLedger is an in-process Ledger. It backs the coordinator and
// realtime tests and is usable as a storage-free deployment mode; the
// postgres ledger is the durable implementation.
type MemoryLedger struct {
	mu       sync.Mutex
	events   map[string]*memoryEvent
	failures int
	now      func() time.Time
}

type memoryEvent struct {
	capacity    int
	status      events.Status
	scheduledAt time.Time
	members     map[string]struct{}
	records     []Record
	idempotency map[string]Commit
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{
		events: make(map[string]*memoryEvent),
		now:    time.Now,
	}
}

// AddEvent seeds an event into the ledger.
func (l *MemoryLedger) AddEvent(ulid string, capacity int, status events.Status, scheduledAt time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events[ulid] = &memoryEvent{
		capacity:    capacity,
		status:      status,
		scheduledAt: scheduledAt,
		members:     make(map[string]struct{}),
		idempotency: make(map[string]Commit),
	}
}

// SetStatus transitions an event's publication state. The transition shares
// the ledger lock with TryRegister, so a cancellation can never interleave
// with a commit for the same event.
func (l *MemoryLedger) SetStatus(ulid string, status events.Status) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if ev, ok := l.events[ulid]; ok {
		ev.status = status
	}
}

// FailNext makes the next n TryRegister calls fail with ErrTransient
// before touching any state. Test hook for the coordinator's retry path.
func (l *MemoryLedger) FailNext(n int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.failures = n
}

func (l *MemoryLedger) TryRegister(ctx context.Context, eventULID, userID, idempotencyKey string) (Commit, error) {
	if err := ctx.Err(); err != nil {
		return Commit{}, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.failures > 0 {
		l.failures--
		return Commit{}, fmt.Errorf("%w: injected failure", ErrTransient)
	}

	ev, ok := l.events[eventULID]
	if !ok {
		return Commit{}, ErrEventNotFound
	}

	if idempotencyKey != "" {
		// Replay is scoped to the requesting user, like the durable
		// ledger's (key, user, event) lookup. Another user reusing the
		// key gets a fresh attempt, not this user's commit.
		if previous, ok := ev.idempotency[idempotencyScope(idempotencyKey, userID)]; ok {
			previous.Replayed = true
			return previous, nil
		}
	}

	if ev.status != events.StatusPublished {
		return Commit{}, ErrNotPublished
	}
	if !ev.scheduledAt.After(l.now()) {
		return Commit{}, ErrEventPast
	}
	if _, member := ev.members[userID]; member {
		return Commit{}, ErrAlreadyRegistered
	}
	if len(ev.members) >= ev.capacity {
		return Commit{}, ErrEventFull
	}

	record := Record{
		ID:           ids.NewUUID(),
		EventULID:    eventULID,
		UserID:       userID,
		RegisteredAt: l.now().UTC(),
	}
	ev.members[userID] = struct{}{}
	ev.records = append(ev.records, record)

	commit := Commit{
		RegistrationID: record.ID,
		NewCount:       len(ev.members),
		Capacity:       ev.capacity,
	}
	if idempotencyKey != "" {
		ev.idempotency[idempotencyScope(idempotencyKey, userID)] = commit
	}
	return commit, nil
}

func idempotencyScope(key, userID string) string {
	return key + "\x00" + userID
}

func (l *MemoryLedger) Snapshot(ctx context.Context, eventULID, userID string) (Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return Snapshot{}, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	ev, ok := l.events[eventULID]
	if !ok {
		return Snapshot{}, ErrEventNotFound
	}
	_, member := ev.members[userID]
	return Snapshot{
		CurrentCount: len(ev.members),
		Capacity:     ev.capacity,
		Registered:   member,
	}, nil
}

// Records returns the registration records for an event in commit order.
func (l *MemoryLedger) Records(eventULID string) []Record {
	l.mu.Lock()
	defer l.mu.Unlock()
	ev, ok := l.events[eventULID]
	if !ok {
		return nil
	}
	out := make([]Record, len(ev.records))
	copy(out, ev.records)
	return out
}
