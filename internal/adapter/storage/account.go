package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/melkiimultic/primitiveBank/internal/core/domain"
	"github.com/melkiimultic/primitiveBank/internal/core/service"
)

// Postgres error codes we translate into the domain taxonomy.
const (
	pgLockNotAvailable = "55P03"
	pgCheckViolation   = "23514"
	pgUniqueViolation  = "23505"
)

// AccountStore is the Postgres-backed account persistence. Exclusive holds
// come from transaction-scoped row locks (SELECT ... FOR UPDATE) bounded by
// a local lock_timeout.
type AccountStore struct {
	db         *pgxpool.Pool
	webhookURL string
}

func NewAccountStore(db *pgxpool.Pool, webhookURL string) *AccountStore {
	return &AccountStore{db: db, webhookURL: webhookURL}
}

const accountColumns = `id, owner_id, balance, created_at`

func scanAccount(row pgx.Row) (*domain.Account, error) {
	var acc domain.Account
	err := row.Scan(&acc.ID, &acc.OwnerID, &acc.Balance, &acc.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: account", domain.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &acc, nil
}

func (s *AccountStore) Get(ctx context.Context, id int64) (*domain.Account, error) {
	row := s.db.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id)
	return scanAccount(row)
}

func (s *AccountStore) ExistsByID(ctx context.Context, id int64) (bool, error) {
	var exists bool
	err := s.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM accounts WHERE id = $1)`, id).Scan(&exists)
	if err != nil {
		return false, err
	}
	return exists, nil
}

func (s *AccountStore) FindByOwner(ctx context.Context, ownerID int64) ([]domain.Account, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE owner_id = $1 ORDER BY id`, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var accounts []domain.Account
	for rows.Next() {
		var acc domain.Account
		if err := rows.Scan(&acc.ID, &acc.OwnerID, &acc.Balance, &acc.CreatedAt); err != nil {
			return nil, err
		}
		accounts = append(accounts, acc)
	}
	return accounts, rows.Err()
}

func (s *AccountStore) Create(ctx context.Context, acc *domain.Account) (*domain.Account, error) {
	row := s.db.QueryRow(ctx, `
		INSERT INTO accounts (owner_id, balance)
		VALUES ($1, $2)
		RETURNING `+accountColumns, acc.OwnerID, acc.Balance)
	created, err := scanAccount(row)
	if err != nil {
		return nil, fmt.Errorf("failed to create account: %w", err)
	}
	return created, nil
}

func (s *AccountStore) Delete(ctx context.Context, id int64) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM accounts WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: account %d", domain.ErrNotFound, id)
	}
	return nil
}

func (s *AccountStore) History(ctx context.Context, accountID int64, limit int) ([]domain.Entry, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, account_id, direction, amount, created_at
		FROM entries
		WHERE account_id = $1
		ORDER BY created_at DESC
		LIMIT $2`, accountID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []domain.Entry
	for rows.Next() {
		var e domain.Entry
		if err := rows.Scan(&e.ID, &e.AccountID, &e.Direction, &e.Amount, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Atomically runs fn inside one Postgres transaction. Row locks taken via
// LockedGet live until commit or rollback.
func (s *AccountStore) Atomically(ctx context.Context, fn func(tx service.AccountTx) error) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := fn(&accountTx{tx: tx, webhookURL: s.webhookURL}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

type accountTx struct {
	tx         pgx.Tx
	webhookURL string
}

func (a *accountTx) LockedGet(ctx context.Context, id int64, timeout time.Duration) (*domain.Account, error) {
	// lock_timeout is transaction-local, so it cannot leak into other
	// statements on the pooled connection.
	ms := timeout.Milliseconds()
	if _, err := a.tx.Exec(ctx, fmt.Sprintf(`SET LOCAL lock_timeout = '%dms'`, ms)); err != nil {
		return nil, err
	}

	row := a.tx.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1 FOR UPDATE`, id)
	acc, err := scanAccount(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgLockNotAvailable {
			return nil, fmt.Errorf("%w: account %d", domain.ErrLockTimeout, id)
		}
		return nil, err
	}
	return acc, nil
}

func (a *accountTx) Save(ctx context.Context, acc *domain.Account) (*domain.Account, error) {
	row := a.tx.QueryRow(ctx, `
		UPDATE accounts SET balance = $1 WHERE id = $2
		RETURNING `+accountColumns, acc.Balance, acc.ID)
	saved, err := scanAccount(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgCheckViolation {
			return nil, fmt.Errorf("%w: balance of account %d would become negative", domain.ErrForbiddenOperation, acc.ID)
		}
		return nil, err
	}
	return saved, nil
}

// Journal writes the double-entry rows and, for transfers, enqueues the
// webhook outbox job in the same transaction as the balance mutation.
func (a *accountTx) Journal(ctx context.Context, entries ...domain.Entry) error {
	for _, e := range entries {
		_, err := a.tx.Exec(ctx, `
			INSERT INTO entries (id, account_id, direction, amount)
			VALUES ($1, $2, $3, $4)`, e.ID, e.AccountID, string(e.Direction), e.Amount)
		if err != nil {
			return err
		}
	}
	if a.webhookURL == "" || len(entries) < 2 {
		return nil
	}

	payload, err := json.Marshal(transferEvent(entries))
	if err != nil {
		return err
	}
	_, err = a.tx.Exec(ctx, `
		INSERT INTO webhook_jobs (id, url, payload)
		VALUES ($1, $2, $3)`, uuid.New(), a.webhookURL, payload)
	return err
}

func transferEvent(entries []domain.Entry) map[string]any {
	event := map[string]any{"event": "transfer.completed"}
	for _, e := range entries {
		switch e.Direction {
		case domain.Debit:
			event["from_account_id"] = e.AccountID
		case domain.Credit:
			event["to_account_id"] = e.AccountID
		}
		event["amount"] = e.Amount.String()
	}
	return event
}
