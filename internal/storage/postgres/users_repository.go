package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/gatherly-live/server/internal/domain/users"
)

var _ users.Repository = (*UserRepository)(nil)

const uniqueViolationCode = "23505"

func (r *UserRepository) Create(ctx context.Context, params users.CreateParams) (*users.User, error) {
	queryer := r.userQueryer()
	row := queryer.QueryRow(ctx, `
INSERT INTO users (name, email, password_hash, role)
VALUES ($1, $2, $3, $4)
RETURNING id, name, email, password_hash, role, created_at
`,
		params.Name,
		params.Email,
		params.PasswordHash,
		params.Role,
	)

	user, err := scanUserRow(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode {
			return nil, users.ErrEmailTaken
		}
		return nil, fmt.Errorf("create user: %w", err)
	}
	return user, nil
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*users.User, error) {
	queryer := r.userQueryer()
	row := queryer.QueryRow(ctx, `
SELECT id, name, email, password_hash, role, created_at
  FROM users
 WHERE email = $1
`, email)

	user, err := scanUserRow(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, users.ErrNotFound
		}
		return nil, fmt.Errorf("get user by email: %w", err)
	}
	return user, nil
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (*users.User, error) {
	queryer := r.userQueryer()
	row := queryer.QueryRow(ctx, `
SELECT id, name, email, password_hash, role, created_at
  FROM users
 WHERE id = $1
`, id)

	user, err := scanUserRow(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, users.ErrNotFound
		}
		return nil, fmt.Errorf("get user by id: %w", err)
	}
	return user, nil
}

func scanUserRow(row pgx.Row) (*users.User, error) {
	var data struct {
		ID           string
		Name         string
		Email        string
		PasswordHash string
		Role         string
		CreatedAt    pgtype.Timestamptz
	}
	if err := row.Scan(
		&data.ID,
		&data.Name,
		&data.Email,
		&data.PasswordHash,
		&data.Role,
		&data.CreatedAt,
	); err != nil {
		return nil, err
	}
	return &users.User{
		ID:           data.ID,
		Name:         data.Name,
		Email:        data.Email,
		PasswordHash: data.PasswordHash,
		Role:         data.Role,
		CreatedAt:    data.CreatedAt.Time,
	}, nil
}

type userQueryer interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func (r *UserRepository) userQueryer() userQueryer {
	if r.tx != nil {
		return r.tx
	}
	return r.pool
}
