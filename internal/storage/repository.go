package storage

import (
	"context"

	"github.com/gatherly-live/server/internal/domain/events"
	"github.com/gatherly-live/server/internal/domain/registrations"
	"github.com/gatherly-live/server/internal/domain/users"
)

// Repository groups data access by domain.
type Repository interface {
	Events() events.Repository
	Users() users.Repository
	Registrations() RegistrationRepository

	WithTx(ctx context.Context, fn func(context.Context, Repository) error) error
}

// RegistrationRepository is the durable registration ledger plus the read
// paths built on its records.
type RegistrationRepository interface {
	registrations.Ledger

	ListByEvent(ctx context.Context, eventULID string) ([]registrations.Record, error)
}
