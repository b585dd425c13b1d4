package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/melkiimultic/primitiveBank/internal/core/domain"
	"github.com/melkiimultic/primitiveBank/internal/core/metrics"
)

// DefaultLockTimeout bounds how long a mutation waits for an exclusive
// account lock before failing with domain.ErrLockTimeout.
const DefaultLockTimeout = 3000 * time.Millisecond

// AccountService owns every balance mutation in the system. All validation
// runs before any store write; all writes happen inside a single store
// transaction per public operation.
type AccountService struct {
	store       AccountStore
	lockTimeout time.Duration
	collector   *metrics.Collector
	logger      *slog.Logger
}

func NewAccountService(store AccountStore, lockTimeout time.Duration, collector *metrics.Collector, logger *slog.Logger) *AccountService {
	if lockTimeout <= 0 {
		lockTimeout = DefaultLockTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &AccountService{
		store:       store,
		lockTimeout: lockTimeout,
		collector:   collector,
		logger:      logger,
	}
}

// CreateAccount opens a new account with balance 0.00 owned by actor and
// returns its id.
func (s *AccountService) CreateAccount(ctx context.Context, actor *domain.User) (int64, error) {
	id, err := s.createAccount(ctx, actor)
	s.record("create_account", err)
	return id, err
}

func (s *AccountService) createAccount(ctx context.Context, actor *domain.User) (int64, error) {
	if actor == nil {
		return 0, domain.ErrUnauthenticated
	}
	acc, err := s.store.Create(ctx, &domain.Account{
		OwnerID: actor.ID,
		Balance: decimal.Zero,
	})
	if err != nil {
		return 0, fmt.Errorf("create account: %w", err)
	}
	s.logger.Info("account created", "account_id", acc.ID, "owner_id", actor.ID)
	return acc.ID, nil
}

// Fund deposits req.Amount into the resolved destination account and returns
// its id. It is deliberately not idempotent: every call adds. Callers that
// need dedup must key their requests (the HTTP layer offers Idempotency-Key).
func (s *AccountService) Fund(ctx context.Context, actor *domain.User, req *domain.FundRequest) (int64, error) {
	id, err := s.fund(ctx, actor, req)
	s.record("fund", err)
	return id, err
}

func (s *AccountService) fund(ctx context.Context, actor *domain.User, req *domain.FundRequest) (int64, error) {
	if actor == nil {
		return 0, domain.ErrUnauthenticated
	}
	if req == nil {
		return 0, fmt.Errorf("%w: empty request body", domain.ErrBadRequest)
	}
	if err := domain.CheckAmount(req.Amount); err != nil {
		return 0, err
	}
	toID, err := s.resolveOwnedAccount(ctx, actor, req.ToID)
	if err != nil {
		return 0, err
	}

	err = s.store.Atomically(ctx, func(tx AccountTx) error {
		acc, err := tx.LockedGet(ctx, toID, s.lockTimeout)
		if err != nil {
			return err
		}
		acc.Balance = acc.Balance.Add(*req.Amount)
		if _, err := tx.Save(ctx, acc); err != nil {
			return err
		}
		return tx.Journal(ctx, domain.Entry{
			ID:        uuid.New(),
			AccountID: toID,
			Direction: domain.Credit,
			Amount:    *req.Amount,
		})
	})
	if err != nil {
		return 0, fmt.Errorf("fund account %d: %w", toID, err)
	}
	s.logger.Info("account funded", "account_id", toID, "amount", req.Amount.String())
	return toID, nil
}

// Transfer moves req.Amount between two accounts atomically. Both rows are
// locked in ascending id order before any mutation, which rules out deadlock
// between opposing concurrent transfers, and balances are re-read under lock
// so the sufficiency check never trusts a stale snapshot.
func (s *AccountService) Transfer(ctx context.Context, actor *domain.User, req *domain.TransferRequest) error {
	err := s.transfer(ctx, actor, req)
	s.record("transfer", err)
	return err
}

func (s *AccountService) transfer(ctx context.Context, actor *domain.User, req *domain.TransferRequest) error {
	if actor == nil {
		return domain.ErrUnauthenticated
	}
	if req == nil {
		return fmt.Errorf("%w: empty request body", domain.ErrBadRequest)
	}

	fromID, err := s.resolveSource(ctx, actor, req.FromID)
	if err != nil {
		return err
	}
	if err := s.checkDestination(ctx, req.ToID); err != nil {
		return err
	}
	toID := *req.ToID
	if err := domain.CheckAmount(req.Amount); err != nil {
		return err
	}
	if err := s.checkSufficiency(ctx, fromID, *req.Amount); err != nil {
		return err
	}

	amount := *req.Amount
	err = s.store.Atomically(ctx, func(tx AccountTx) error {
		from, to, err := s.lockPair(ctx, tx, fromID, toID)
		if err != nil {
			return err
		}
		if from.Balance.LessThan(amount) {
			return fmt.Errorf("%w: not enough money for this operation", domain.ErrForbiddenOperation)
		}
		from.Balance = from.Balance.Sub(amount)
		to.Balance = to.Balance.Add(amount)
		if _, err := tx.Save(ctx, from); err != nil {
			return err
		}
		if _, err := tx.Save(ctx, to); err != nil {
			return err
		}
		return tx.Journal(ctx,
			domain.Entry{ID: uuid.New(), AccountID: fromID, Direction: domain.Debit, Amount: amount},
			domain.Entry{ID: uuid.New(), AccountID: toID, Direction: domain.Credit, Amount: amount},
		)
	})
	if err != nil {
		return fmt.Errorf("transfer %s from %d to %d: %w", amount.String(), fromID, toID, err)
	}
	s.logger.Info("transfer completed", "from_id", fromID, "to_id", toID, "amount", amount.String())
	return nil
}

// lockPair acquires exclusive locks on both accounts in ascending id order.
// A self-transfer locks the row once and mutates the same struct twice.
func (s *AccountService) lockPair(ctx context.Context, tx AccountTx, fromID, toID int64) (from, to *domain.Account, err error) {
	if fromID == toID {
		acc, err := tx.LockedGet(ctx, fromID, s.lockTimeout)
		if err != nil {
			return nil, nil, err
		}
		return acc, acc, nil
	}

	firstID, secondID := fromID, toID
	if secondID < firstID {
		firstID, secondID = secondID, firstID
	}
	first, err := tx.LockedGet(ctx, firstID, s.lockTimeout)
	if err != nil {
		return nil, nil, err
	}
	second, err := tx.LockedGet(ctx, secondID, s.lockTimeout)
	if err != nil {
		return nil, nil, err
	}
	if firstID == fromID {
		return first, second, nil
	}
	return second, first, nil
}

// CloseAccount deletes an account the actor owns, provided its balance is
// exactly zero.
func (s *AccountService) CloseAccount(ctx context.Context, actor *domain.User, id int64) error {
	err := s.closeAccount(ctx, actor, id)
	s.record("close_account", err)
	return err
}

func (s *AccountService) closeAccount(ctx context.Context, actor *domain.User, id int64) error {
	if actor == nil {
		return domain.ErrUnauthenticated
	}
	if id <= 0 {
		return fmt.Errorf("%w: wrong id, no such account in the system", domain.ErrBadRequest)
	}
	owned, err := s.ownsAccount(ctx, actor, id)
	if err != nil {
		return err
	}
	if !owned {
		return fmt.Errorf("%w: current user has not such an account", domain.ErrForbiddenOperation)
	}
	acc, err := s.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if acc.Balance.IsPositive() {
		return fmt.Errorf("%w: this account has positive balance", domain.ErrForbiddenOperation)
	}
	if err := s.store.Delete(ctx, id); err != nil {
		return fmt.Errorf("close account %d: %w", id, err)
	}
	s.logger.Info("account closed", "account_id", id, "owner_id", actor.ID)
	return nil
}

// AccountsOf lists the actor's accounts with current balances.
func (s *AccountService) AccountsOf(ctx context.Context, actor *domain.User) ([]domain.Account, error) {
	if actor == nil {
		return nil, domain.ErrUnauthenticated
	}
	return s.store.FindByOwner(ctx, actor.ID)
}

// History returns recent journal entries for an account the actor owns.
func (s *AccountService) History(ctx context.Context, actor *domain.User, accountID int64, limit int) ([]domain.Entry, error) {
	if actor == nil {
		return nil, domain.ErrUnauthenticated
	}
	owned, err := s.ownsAccount(ctx, actor, accountID)
	if err != nil {
		return nil, err
	}
	if !owned {
		return nil, fmt.Errorf("%w: current user has not such an account", domain.ErrForbiddenOperation)
	}
	return s.store.History(ctx, accountID, limit)
}

// resolveSource yields the debit side of a transfer. With no explicit id the
// actor must own exactly one account; picking an arbitrary account for an
// ambiguous caller is never acceptable when money leaves it.
func (s *AccountService) resolveSource(ctx context.Context, actor *domain.User, fromID *int64) (int64, error) {
	return s.resolveOwnedAccount(ctx, actor, fromID)
}

func (s *AccountService) resolveOwnedAccount(ctx context.Context, actor *domain.User, id *int64) (int64, error) {
	accounts, err := s.store.FindByOwner(ctx, actor.ID)
	if err != nil {
		return 0, err
	}
	if id == nil {
		if len(accounts) != 1 {
			return 0, fmt.Errorf("%w: user has no or more than 1 account", domain.ErrUncertainAccount)
		}
		return accounts[0].ID, nil
	}
	for _, acc := range accounts {
		if acc.ID == *id {
			return *id, nil
		}
	}
	return 0, fmt.Errorf("%w: forbidden, current user has not such an account", domain.ErrUncertainAccount)
}

func (s *AccountService) checkDestination(ctx context.Context, toID *int64) error {
	if toID == nil {
		return fmt.Errorf("%w: account for transfer hasn't been defined", domain.ErrUncertainAccount)
	}
	exists, err := s.store.ExistsByID(ctx, *toID)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("%w: such an account for transfer doesn't exist", domain.ErrUncertainAccount)
	}
	return nil
}

func (s *AccountService) checkSufficiency(ctx context.Context, fromID int64, amount decimal.Decimal) error {
	acc, err := s.store.Get(ctx, fromID)
	if err != nil {
		return err
	}
	if acc.Balance.LessThan(amount) {
		return fmt.Errorf("%w: not enough money for this operation", domain.ErrForbiddenOperation)
	}
	return nil
}

func (s *AccountService) ownsAccount(ctx context.Context, actor *domain.User, id int64) (bool, error) {
	accounts, err := s.store.FindByOwner(ctx, actor.ID)
	if err != nil {
		return false, err
	}
	for _, acc := range accounts {
		if acc.ID == id {
			return true, nil
		}
	}
	return false, nil
}

func (s *AccountService) record(operation string, err error) {
	if s.collector != nil {
		s.collector.RecordOperation(operation, err)
	}
}
