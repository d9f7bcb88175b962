package registrations

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
)

// transientRetries bounds how many times a commit is re-attempted after a
// transient storage failure. Each attempt re-reads ledger state inside
// TryRegister, so the retry is idempotent.
const transientRetries = 2

// Coordinator validates registration commands and commits them to the
// ledger. It owns the only write path to attendance state. The per-event
// lock is held across commit and publish so subscribers observe
// notifications in exactly the order commits happened for that event.
type Coordinator struct {
	ledger   Ledger
	notifier Notifier
	logger   zerolog.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewCoordinator(ledger Ledger, notifier Notifier, logger zerolog.Logger) *Coordinator {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &Coordinator{
		ledger:   ledger,
		notifier: notifier,
		logger:   logger.With().Str("component", "registrations").Logger(),
		locks:    make(map[string]*sync.Mutex),
	}
}

// Register attempts to commit cmd. On success the attendee-registered
// update is published, followed by event-full when this commit consumed the
// last seat. Rejections return a sentinel error and publish nothing.
func (c *Coordinator) Register(ctx context.Context, cmd Command) (Outcome, error) {
	if cmd.EventULID == "" || cmd.UserID == "" {
		return Outcome{}, fmt.Errorf("register: event and user are required")
	}

	lock := c.eventLock(cmd.EventULID)
	lock.Lock()
	defer lock.Unlock()

	var commit Commit
	var err error
	for attempt := 0; ; attempt++ {
		commit, err = c.ledger.TryRegister(ctx, cmd.EventULID, cmd.UserID, cmd.IdempotencyKey)
		if err == nil || !errors.Is(err, ErrTransient) || attempt >= transientRetries {
			break
		}
		c.logger.Warn().
			Err(err).
			Str("event", cmd.EventULID).
			Int("attempt", attempt+1).
			Msg("transient ledger failure, retrying")
	}
	if err != nil {
		return Outcome{}, err
	}

	outcome := Outcome{
		RegistrationID: commit.RegistrationID,
		EventULID:      cmd.EventULID,
		CurrentCount:   commit.NewCount,
		Capacity:       commit.Capacity,
		Replayed:       commit.Replayed,
	}

	if commit.Replayed {
		// The original commit already broadcast its updates.
		return outcome, nil
	}

	c.logger.Info().
		Str("event", cmd.EventULID).
		Str("user", cmd.UserID).
		Int("count", commit.NewCount).
		Int("capacity", commit.Capacity).
		Msg("registration committed")

	c.notifier.Publish(cmd.EventULID, Update{
		Type:         UpdateAttendeeRegistered,
		EventULID:    cmd.EventULID,
		CurrentCount: commit.NewCount,
		Capacity:     commit.Capacity,
	})
	if commit.NewCount == commit.Capacity {
		c.notifier.Publish(cmd.EventULID, Update{
			Type:         UpdateEventFull,
			EventULID:    cmd.EventULID,
			CurrentCount: commit.NewCount,
			Capacity:     commit.Capacity,
		})
	}

	return outcome, nil
}

// Snapshot exposes the ledger's read path to the transport layer.
func (c *Coordinator) Snapshot(ctx context.Context, eventULID, userID string) (Snapshot, error) {
	return c.ledger.Snapshot(ctx, eventULID, userID)
}

// eventLock returns the mutex serializing commits for one event. Entries
// live for the process lifetime; the map grows with distinct events, not
// with request volume.
func (c *Coordinator) eventLock(eventULID string) *sync.Mutex {
	c.mu.Lock()
	defer c.mu.Unlock()
	lock, ok := c.locks[eventULID]
	if !ok {
		lock = &sync.Mutex{}
		c.locks[eventULID] = lock
	}
	return lock
}
