package adapter

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	repository "messenger/internal/repository/port"
)

// ErrUserNotFound reports an unknown user id.
var ErrUserNotFound = errors.New("user repository: user not found")

type PgUserRepository struct {
	pool *pgxpool.Pool
}

func NewPgUserRepository(pool *pgxpool.Pool) *PgUserRepository {
	return &PgUserRepository{pool: pool}
}

var _ repository.UserRepository = (*PgUserRepository)(nil)

func (r *PgUserRepository) FindByID(ctx context.Context, id string) (*repository.User, error) {
	if r == nil || r.pool == nil {
		return nil, errors.New("PgUserRepository: nil pool")
	}
	var u repository.User
	err := r.pool.QueryRow(ctx,
		"SELECT id, username, status FROM users WHERE id = $1", id,
	).Scan(&u.ID, &u.Username, &u.Status)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *PgUserRepository) UpdateStatus(ctx context.Context, id string, status string) error {
	if r == nil || r.pool == nil {
		return errors.New("PgUserRepository: nil pool")
	}
	_, err := r.pool.Exec(ctx,
		"UPDATE users SET status = $1 WHERE id = $2", status, id)
	return err
}
