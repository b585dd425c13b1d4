package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/melkiimultic/primitiveBank/internal/core/domain"
)

type UserStore struct {
	db *pgxpool.Pool
}

func NewUserStore(db *pgxpool.Pool) *UserStore {
	return &UserStore{db: db}
}

const userColumns = `id, username, password_hash, first_name, last_name, created_at`

func scanUser(row pgx.Row) (*domain.User, error) {
	var u domain.User
	err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &u.FirstName, &u.LastName, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: user", domain.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *UserStore) Create(ctx context.Context, u *domain.User) (*domain.User, error) {
	row := s.db.QueryRow(ctx, `
		INSERT INTO users (username, password_hash, first_name, last_name)
		VALUES ($1, $2, $3, $4)
		RETURNING `+userColumns,
		u.Username, u.PasswordHash, u.FirstName, u.LastName)
	created, err := scanUser(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return nil, fmt.Errorf("%w: user %q", domain.ErrAlreadyExists, u.Username)
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	return created, nil
}

func (s *UserStore) GetByID(ctx context.Context, id int64) (*domain.User, error) {
	row := s.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	return scanUser(row)
}

func (s *UserStore) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	row := s.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE username = $1`, username)
	return scanUser(row)
}

func (s *UserStore) UpdateInfo(ctx context.Context, id int64, firstName, lastName string) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE users SET first_name = $1, last_name = $2 WHERE id = $3`, firstName, lastName, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: user %d", domain.ErrNotFound, id)
	}
	return nil
}

func (s *UserStore) Delete(ctx context.Context, id int64) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: user %d", domain.ErrNotFound, id)
	}
	return nil
}
