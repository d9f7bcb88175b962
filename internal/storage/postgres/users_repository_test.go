package postgres

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gatherly-live/server/internal/domain/users"
)

func TestUserCreateAndLookup(t *testing.T) {
	ctx := context.Background()
	pool := setupPostgres(t, ctx)
	repo := &UserRepository{pool: pool}

	created, err := repo.Create(ctx, users.CreateParams{
		Name:         "Ada",
		Email:        "ada@example.com",
		PasswordHash: "hash",
		Role:         users.RoleUser,
	})
	require.NoError(t, err)
	require.NotEmpty(t, created.ID)

	byEmail, err := repo.GetByEmail(ctx, "ada@example.com")
	require.NoError(t, err)
	require.Equal(t, created.ID, byEmail.ID)

	byID, err := repo.GetByID(ctx, created.ID)
	require.NoError(t, err)
	require.Equal(t, "Ada", byID.Name)
}

func TestUserCreateDuplicateEmail(t *testing.T) {
	ctx := context.Background()
	pool := setupPostgres(t, ctx)
	repo := &UserRepository{pool: pool}

	_, err := repo.Create(ctx, users.CreateParams{
		Name: "Ada", Email: "ada@example.com", PasswordHash: "hash", Role: users.RoleUser,
	})
	require.NoError(t, err)

	_, err = repo.Create(ctx, users.CreateParams{
		Name: "Adb", Email: "ada@example.com", PasswordHash: "hash", Role: users.RoleUser,
	})
	require.ErrorIs(t, err, users.ErrEmailTaken)
}

func TestUserLookupMisses(t *testing.T) {
	ctx := context.Background()
	pool := setupPostgres(t, ctx)
	repo := &UserRepository{pool: pool}

	_, err := repo.GetByEmail(ctx, "nobody@example.com")
	require.ErrorIs(t, err, users.ErrNotFound)
}
