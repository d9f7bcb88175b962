package registrations

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/gatherly-live/server/internal/domain/events"
)

type recordingNotifier struct {
	mu      sync.Mutex
	updates []Update
}

func (n *recordingNotifier) Publish(_ string, update Update) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.updates = append(n.updates, update)
}

func (n *recordingNotifier) all() []Update {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]Update, len(n.updates))
	copy(out, n.updates)
	return out
}

func newTestCoordinator(t *testing.T) (*Coordinator, *MemoryLedger, *recordingNotifier) {
	t.Helper()
	ledger := NewMemoryLedger()
	notifier := &recordingNotifier{}
	coordinator := NewCoordinator(ledger, notifier, zerolog.Nop())
	return coordinator, ledger, notifier
}

func futureTime() time.Time {
	return time.Now().Add(24 * time.Hour)
}

func TestRegisterCommitsAndNotifies(t *testing.T) {
	coordinator, ledger, notifier := newTestCoordinator(t)
	ledger.AddEvent("EV1", 3, events.StatusPublished, futureTime())

	outcome, err := coordinator.Register(context.Background(), Command{EventULID: "EV1", UserID: "u1"})

	require.NoError(t, err)
	require.Equal(t, 1, outcome.CurrentCount)
	require.Equal(t, 3, outcome.Capacity)
	require.NotEmpty(t, outcome.RegistrationID)

	updates := notifier.all()
	require.Len(t, updates, 1)
	require.Equal(t, UpdateAttendeeRegistered, updates[0].Type)
	require.Equal(t, "EV1", updates[0].EventULID)
	require.Equal(t, 1, updates[0].CurrentCount)
}

func TestNoOversellUnderConcurrency(t *testing.T) {
	const capacity = 5
	const attempts = 50

	coordinator, ledger, _ := newTestCoordinator(t)
	ledger.AddEvent("EV1", capacity, events.StatusPublished, futureTime())

	var wg sync.WaitGroup
	errs := make([]error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = coordinator.Register(context.Background(), Command{
				EventULID: "EV1",
				UserID:    fmt.Sprintf("user-%d", i),
			})
		}(i)
	}
	wg.Wait()

	committed := 0
	rejected := 0
	for _, err := range errs {
		switch {
		case err == nil:
			committed++
		case errors.Is(err, ErrEventFull):
			rejected++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	require.Equal(t, capacity, committed)
	require.Equal(t, attempts-capacity, rejected)

	snapshot, err := coordinator.Snapshot(context.Background(), "EV1", "")
	require.NoError(t, err)
	require.Equal(t, capacity, snapshot.CurrentCount)
}

func TestCapacityOneBroadcastsFullExactlyOnce(t *testing.T) {
	coordinator, ledger, notifier := newTestCoordinator(t)
	ledger.AddEvent("EV1", 1, events.StatusPublished, futureTime())

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = coordinator.Register(context.Background(), Command{
				EventULID: "EV1",
				UserID:    fmt.Sprintf("user-%d", i),
			})
		}(i)
	}
	wg.Wait()

	committed := 0
	for _, err := range errs {
		if err == nil {
			committed++
		} else {
			require.ErrorIs(t, err, ErrEventFull)
		}
	}
	require.Equal(t, 1, committed)

	updates := notifier.all()
	require.Len(t, updates, 2)
	require.Equal(t, UpdateAttendeeRegistered, updates[0].Type)
	require.Equal(t, UpdateEventFull, updates[1].Type)
}

func TestDraftEventRejectedWithoutSideEffects(t *testing.T) {
	coordinator, ledger, notifier := newTestCoordinator(t)
	ledger.AddEvent("EV1", 10, events.StatusDraft, futureTime())

	_, err := coordinator.Register(context.Background(), Command{EventULID: "EV1", UserID: "u1"})

	require.ErrorIs(t, err, ErrNotPublished)
	require.Empty(t, notifier.all())

	snapshot, err := coordinator.Snapshot(context.Background(), "EV1", "u1")
	require.NoError(t, err)
	require.Equal(t, 0, snapshot.CurrentCount)
	require.False(t, snapshot.Registered)
}

func TestCancelledEventRejected(t *testing.T) {
	coordinator, ledger, notifier := newTestCoordinator(t)
	ledger.AddEvent("EV1", 10, events.StatusPublished, futureTime())
	ledger.SetStatus("EV1", events.StatusCancelled)

	_, err := coordinator.Register(context.Background(), Command{EventULID: "EV1", UserID: "u1"})

	require.ErrorIs(t, err, ErrNotPublished)
	require.Empty(t, notifier.all())
}

func TestPastEventRejected(t *testing.T) {
	coordinator, ledger, _ := newTestCoordinator(t)
	ledger.AddEvent("EV1", 10, events.StatusPublished, time.Now().Add(-time.Hour))

	_, err := coordinator.Register(context.Background(), Command{EventULID: "EV1", UserID: "u1"})

	require.ErrorIs(t, err, ErrEventPast)
}

func TestUnknownEventRejected(t *testing.T) {
	coordinator, _, _ := newTestCoordinator(t)

	_, err := coordinator.Register(context.Background(), Command{EventULID: "MISSING", UserID: "u1"})

	require.ErrorIs(t, err, ErrEventNotFound)
}

func TestDuplicateRegistrationConflict(t *testing.T) {
	coordinator, ledger, notifier := newTestCoordinator(t)
	ledger.AddEvent("EV1", 10, events.StatusPublished, futureTime())

	first, err := coordinator.Register(context.Background(), Command{EventULID: "EV1", UserID: "u1"})
	require.NoError(t, err)
	require.Equal(t, 1, first.CurrentCount)

	_, err = coordinator.Register(context.Background(), Command{EventULID: "EV1", UserID: "u1"})
	require.ErrorIs(t, err, ErrAlreadyRegistered)

	snapshot, err := coordinator.Snapshot(context.Background(), "EV1", "u1")
	require.NoError(t, err)
	require.Equal(t, 1, snapshot.CurrentCount)
	require.True(t, snapshot.Registered)
	require.Len(t, notifier.all(), 1)
}

func TestNotificationOrderMatchesCommitOrder(t *testing.T) {
	const capacity = 20

	coordinator, ledger, notifier := newTestCoordinator(t)
	ledger.AddEvent("EV1", capacity, events.StatusPublished, futureTime())

	var wg sync.WaitGroup
	for i := 0; i < capacity; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := coordinator.Register(context.Background(), Command{
				EventULID: "EV1",
				UserID:    fmt.Sprintf("user-%d", i),
			})
			require.NoError(t, err)
		}(i)
	}
	wg.Wait()

	updates := notifier.all()
	require.Len(t, updates, capacity+1) // one per commit plus the trailing event-full

	for i := 0; i < capacity; i++ {
		require.Equal(t, UpdateAttendeeRegistered, updates[i].Type)
		require.Equal(t, i+1, updates[i].CurrentCount, "counts must be observed in commit order")
	}
	require.Equal(t, UpdateEventFull, updates[capacity].Type)
}

func TestTransientFailureRetried(t *testing.T) {
	coordinator, ledger, _ := newTestCoordinator(t)
	ledger.AddEvent("EV1", 5, events.StatusPublished, futureTime())

	ledger.FailNext(2)
	outcome, err := coordinator.Register(context.Background(), Command{EventULID: "EV1", UserID: "u1"})
	require.NoError(t, err)
	require.Equal(t, 1, outcome.CurrentCount)

	ledger.FailNext(3)
	_, err = coordinator.Register(context.Background(), Command{EventULID: "EV1", UserID: "u2"})
	require.ErrorIs(t, err, ErrTransient)

	// The failed command left no partial state behind.
	snapshot, err := coordinator.Snapshot(context.Background(), "EV1", "u2")
	require.NoError(t, err)
	require.Equal(t, 1, snapshot.CurrentCount)
	require.False(t, snapshot.Registered)
}

func TestIdempotencyKeyReplaysOutcome(t *testing.T) {
	coordinator, ledger, notifier := newTestCoordinator(t)
	ledger.AddEvent("EV1", 5, events.StatusPublished, futureTime())

	first, err := coordinator.Register(context.Background(), Command{
		EventULID:      "EV1",
		UserID:         "u1",
		IdempotencyKey: "retry-123",
	})
	require.NoError(t, err)
	require.False(t, first.Replayed)

	second, err := coordinator.Register(context.Background(), Command{
		EventULID:      "EV1",
		UserID:         "u1",
		IdempotencyKey: "retry-123",
	})
	require.NoError(t, err)
	require.True(t, second.Replayed)
	require.Equal(t, first.RegistrationID, second.RegistrationID)
	require.Equal(t, first.CurrentCount, second.CurrentCount)

	// Replays neither re-increment nor re-broadcast.
	snapshot, err := coordinator.Snapshot(context.Background(), "EV1", "u1")
	require.NoError(t, err)
	require.Equal(t, 1, snapshot.CurrentCount)
	require.Len(t, notifier.all(), 1)
}

func TestIdempotencyKeyScopedToUser(t *testing.T) {
	coordinator, ledger, _ := newTestCoordinator(t)
	ledger.AddEvent("EV1", 5, events.StatusPublished, futureTime())

	first, err := coordinator.Register(context.Background(), Command{
		EventULID:      "EV1",
		UserID:         "u1",
		IdempotencyKey: "retry-123",
	})
	require.NoError(t, err)

	// A different user reusing the key gets their own commit, never a
	// replay of u1's.
	second, err := coordinator.Register(context.Background(), Command{
		EventULID:      "EV1",
		UserID:         "u2",
		IdempotencyKey: "retry-123",
	})
	require.NoError(t, err)
	require.False(t, second.Replayed)
	require.NotEqual(t, first.RegistrationID, second.RegistrationID)
	require.Equal(t, 2, second.CurrentCount)
}

func TestRegisterRequiresEventAndUser(t *testing.T) {
	coordinator, _, _ := newTestCoordinator(t)

	_, err := coordinator.Register(context.Background(), Command{UserID: "u1"})
	require.Error(t, err)

	_, err = coordinator.Register(context.Background(), Command{EventULID: "EV1"})
	require.Error(t, err)
}
