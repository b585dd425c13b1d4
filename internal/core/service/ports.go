package service

import (
	"context"
	"time"

	"github.com/melkiimultic/primitiveBank/internal/core/domain"
)

// AccountStore is the persistence boundary for accounts. Plain reads may be
// slightly stale; authoritative reads happen inside Atomically via LockedGet.
type AccountStore interface {
	Get(ctx context.Context, id int64) (*domain.Account, error)
	ExistsByID(ctx context.Context, id int64) (bool, error)
	FindByOwner(ctx context.Context, ownerID int64) ([]domain.Account, error)
	Create(ctx context.Context, acc *domain.Account) (*domain.Account, error)
	Delete(ctx context.Context, id int64) error
	History(ctx context.Context, accountID int64, limit int) ([]domain.Entry, error)

	// Atomically runs fn inside a single transaction. If fn returns an
	// error every mutation performed through the AccountTx is rolled back
	// and all locks are released.
	Atomically(ctx context.Context, fn func(tx AccountTx) error) error
}

// AccountTx is the transaction-scoped view handed to Atomically callbacks.
type AccountTx interface {
	// LockedGet fetches the account holding an exclusive lock on it for the
	// remainder of the transaction. It fails with domain.ErrLockTimeout if
	// the lock is not acquired within timeout.
	LockedGet(ctx context.Context, id int64, timeout time.Duration) (*domain.Account, error)
	Save(ctx context.Context, acc *domain.Account) (*domain.Account, error)
	Journal(ctx context.Context, entries ...domain.Entry) error
}

// UserStore persists principals. The ledger core only reads through it;
// mutation is the user service's business.
type UserStore interface {
	Create(ctx context.Context, u *domain.User) (*domain.User, error)
	GetByID(ctx context.Context, id int64) (*domain.User, error)
	GetByUsername(ctx context.Context, username string) (*domain.User, error)
	UpdateInfo(ctx context.Context, id int64, firstName, lastName string) error
	Delete(ctx context.Context, id int64) error
}
