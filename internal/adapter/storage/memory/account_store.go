package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/melkiimultic/primitiveBank/internal/core/domain"
	"github.com/melkiimultic/primitiveBank/internal/core/service"
)

// AccountStore is a process-local store implementing the same contract as the
// Postgres adapter: per-account exclusive locks with a bounded wait, and
// all-or-nothing transactions. It backs the test suite and DATABASE_URL-less
// development runs.
type AccountStore struct {
	mu         sync.RWMutex
	accounts   map[int64]*domain.Account
	ownerIndex map[int64][]int64
	entries    map[int64][]domain.Entry
	locks      map[int64]chan struct{}
	nextID     int64
	deleteWait time.Duration
}

// deleteLockWait bounds how long Delete waits for the account's exclusive
// lock, mirroring the row-lock wait of the Postgres DELETE.
const deleteLockWait = 3000 * time.Millisecond

func NewAccountStore() *AccountStore {
	return &AccountStore{
		accounts:   make(map[int64]*domain.Account),
		ownerIndex: make(map[int64][]int64),
		entries:    make(map[int64][]domain.Entry),
		locks:      make(map[int64]chan struct{}),
		deleteWait: deleteLockWait,
	}
}

func (s *AccountStore) Get(ctx context.Context, id int64) (*domain.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	acc, ok := s.accounts[id]
	if !ok {
		return nil, fmt.Errorf("%w: account %d", domain.ErrNotFound, id)
	}
	cp := *acc
	return &cp, nil
}

func (s *AccountStore) ExistsByID(ctx context.Context, id int64) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.accounts[id]
	return ok, nil
}

func (s *AccountStore) FindByOwner(ctx context.Context, ownerID int64) ([]domain.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.ownerIndex[ownerID]
	result := make([]domain.Account, 0, len(ids))
	for _, id := range ids {
		if acc, ok := s.accounts[id]; ok {
			result = append(result, *acc)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (s *AccountStore) Create(ctx context.Context, acc *domain.Account) (*domain.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	cp := *acc
	cp.ID = s.nextID
	cp.CreatedAt = time.Now()
	s.accounts[cp.ID] = &cp
	s.ownerIndex[cp.OwnerID] = append(s.ownerIndex[cp.OwnerID], cp.ID)

	out := cp
	return &out, nil
}

func (s *AccountStore) Delete(ctx context.Context, id int64) error {
	// Take the account's exclusive lock first so a row held by a live
	// transaction cannot be deleted out from under it, exactly as a
	// Postgres DELETE would block on the FOR UPDATE holder.
	lock := s.lockFor(id)
	timer := time.NewTimer(s.deleteWait)
	defer timer.Stop()

	select {
	case lock <- struct{}{}:
	case <-timer.C:
		return fmt.Errorf("%w: account %d", domain.ErrLockTimeout, id)
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-lock }()

	s.mu.Lock()
	defer s.mu.Unlock()

	acc, ok := s.accounts[id]
	if !ok {
		return fmt.Errorf("%w: account %d", domain.ErrNotFound, id)
	}
	delete(s.accounts, id)
	delete(s.entries, id)

	ids := s.ownerIndex[acc.OwnerID]
	for i, ownedID := range ids {
		if ownedID == id {
			s.ownerIndex[acc.OwnerID] = append(ids[:i], ids[i+1:]...)
			break
		}
	}
	return nil
}

func (s *AccountStore) History(ctx context.Context, accountID int64, limit int) ([]domain.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := s.entries[accountID]
	// Newest first.
	result := make([]domain.Entry, 0, limit)
	for i := len(entries) - 1; i >= 0 && len(result) < limit; i-- {
		result = append(result, entries[i])
	}
	return result, nil
}

// Atomically runs fn against a buffered transaction. Writes become visible
// only on commit; any error from fn discards them and releases every lock fn
// acquired.
func (s *AccountStore) Atomically(ctx context.Context, fn func(tx service.AccountTx) error) error {
	tx := &accountTx{
		store:   s,
		held:    make(map[int64]chan struct{}),
		pending: make(map[int64]*domain.Account),
	}
	defer tx.releaseLocks()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.commit()
}

// lockFor returns the lock channel for an account, creating it on first use.
func (s *AccountStore) lockFor(id int64) chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()

	lock, ok := s.locks[id]
	if !ok {
		lock = make(chan struct{}, 1)
		s.locks[id] = lock
	}
	return lock
}

type accountTx struct {
	store   *AccountStore
	held    map[int64]chan struct{}
	pending map[int64]*domain.Account
	journal []domain.Entry
}

func (tx *accountTx) LockedGet(ctx context.Context, id int64, timeout time.Duration) (*domain.Account, error) {
	if _, ok := tx.held[id]; !ok {
		lock := tx.store.lockFor(id)
		timer := time.NewTimer(timeout)
		defer timer.Stop()

		select {
		case lock <- struct{}{}:
			tx.held[id] = lock
		case <-timer.C:
			return nil, fmt.Errorf("%w: account %d", domain.ErrLockTimeout, id)
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if acc, ok := tx.pending[id]; ok {
		cp := *acc
		return &cp, nil
	}
	return tx.store.Get(ctx, id)
}

func (tx *accountTx) Save(ctx context.Context, acc *domain.Account) (*domain.Account, error) {
	if acc.Balance.IsNegative() {
		// Backstop mirroring the Postgres CHECK constraint; the pipeline
		// should have rejected this long before.
		return nil, fmt.Errorf("%w: balance of account %d would become negative", domain.ErrForbiddenOperation, acc.ID)
	}
	if _, ok := tx.held[acc.ID]; !ok {
		return nil, fmt.Errorf("save of account %d without holding its lock", acc.ID)
	}
	cp := *acc
	tx.pending[acc.ID] = &cp

	out := cp
	return &out, nil
}

func (tx *accountTx) Journal(ctx context.Context, entries ...domain.Entry) error {
	tx.journal = append(tx.journal, entries...)
	return nil
}

func (tx *accountTx) commit() error {
	tx.store.mu.Lock()
	defer tx.store.mu.Unlock()

	// Validate every pending row before touching any of them, so a commit
	// either applies all of its writes or none.
	for id := range tx.pending {
		if _, ok := tx.store.accounts[id]; !ok {
			return fmt.Errorf("%w: account %d vanished mid-transaction", domain.ErrNotFound, id)
		}
	}
	for id, acc := range tx.pending {
		cp := *acc
		tx.store.accounts[id] = &cp
	}
	now := time.Now()
	for _, entry := range tx.journal {
		if entry.CreatedAt.IsZero() {
			entry.CreatedAt = now
		}
		tx.store.entries[entry.AccountID] = append(tx.store.entries[entry.AccountID], entry)
	}
	return nil
}

func (tx *accountTx) releaseLocks() {
	for _, lock := range tx.held {
		<-lock
	}
	tx.held = make(map[int64]chan struct{})
}
