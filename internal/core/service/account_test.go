package service_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/melkiimultic/primitiveBank/internal/adapter/storage/memory"
	"github.com/melkiimultic/primitiveBank/internal/core/domain"
	"github.com/melkiimultic/primitiveBank/internal/core/service"
)

func newTestService(t *testing.T) (*service.AccountService, *memory.AccountStore) {
	t.Helper()
	store := memory.NewAccountStore()
	svc := service.NewAccountService(store, service.DefaultLockTimeout, nil, nil)
	return svc, store
}

func newAccount(t *testing.T, store *memory.AccountStore, ownerID int64, balance string) int64 {
	t.Helper()
	acc, err := store.Create(context.Background(), &domain.Account{
		OwnerID: ownerID,
		Balance: domain.MustMoney(balance),
	})
	if err != nil {
		t.Fatalf("create account: %v", err)
	}
	return acc.ID
}

func balanceOf(t *testing.T, store *memory.AccountStore, id int64) decimal.Decimal {
	t.Helper()
	acc, err := store.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("get account %d: %v", id, err)
	}
	return acc.Balance
}

func money(s string) *decimal.Decimal {
	d := domain.MustMoney(s)
	return &d
}

func TestCreateAccount_StartsAtZero(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(t)
	actor := &domain.User{ID: 1}

	id, err := svc.CreateAccount(ctx, actor)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id <= 0 {
		t.Fatalf("expected positive id, got %d", id)
	}

	acc, err := store.Get(ctx, id)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !acc.Balance.IsZero() {
		t.Errorf("expected zero balance, got %s", acc.Balance)
	}
	if acc.OwnerID != actor.ID {
		t.Errorf("expected owner %d, got %d", actor.ID, acc.OwnerID)
	}
}

func TestTransfer_MovesMoneyAndConserves(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(t)
	actor := &domain.User{ID: 1}

	a := newAccount(t, store, actor.ID, "20.00")
	b := newAccount(t, store, 2, "5.00")

	err := svc.Transfer(ctx, actor, &domain.TransferRequest{FromID: &a, ToID: &b, Amount: money("10.00")})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := balanceOf(t, store, a); !got.Equal(domain.MustMoney("10.00")) {
		t.Errorf("expected source balance 10.00, got %s", got)
	}
	if got := balanceOf(t, store, b); !got.Equal(domain.MustMoney("15.00")) {
		t.Errorf("expected destination balance 15.00, got %s", got)
	}
}

func TestTransfer_JournalsDebitAndCredit(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(t)
	actor := &domain.User{ID: 1}

	a := newAccount(t, store, actor.ID, "20.00")
	b := newAccount(t, store, actor.ID, "0.00")

	if err := svc.Transfer(ctx, actor, &domain.TransferRequest{FromID: &a, ToID: &b, Amount: money("7.50")}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	debits, err := store.History(ctx, a, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	credits, err := store.History(ctx, b, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(debits) != 1 || debits[0].Direction != domain.Debit || !debits[0].Amount.Equal(domain.MustMoney("7.50")) {
		t.Errorf("expected one DEBIT of 7.50 on source, got %+v", debits)
	}
	if len(credits) != 1 || credits[0].Direction != domain.Credit || !credits[0].Amount.Equal(domain.MustMoney("7.50")) {
		t.Errorf("expected one CREDIT of 7.50 on destination, got %+v", credits)
	}
}

func TestTransfer_ImplicitSource(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(t)
	actor := &domain.User{ID: 1}

	a := newAccount(t, store, actor.ID, "20.00")
	b := newAccount(t, store, 2, "0.00")

	err := svc.Transfer(ctx, actor, &domain.TransferRequest{ToID: &b, Amount: money("5.00")})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := balanceOf(t, store, a); !got.Equal(domain.MustMoney("15.00")) {
		t.Errorf("expected 15.00 after implicit-source transfer, got %s", got)
	}
}

func TestTransfer_ImplicitSourceAmbiguous(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(t)
	actor := &domain.User{ID: 1}
	dest := newAccount(t, store, 2, "0.00")

	// Zero owned accounts.
	err := svc.Transfer(ctx, actor, &domain.TransferRequest{ToID: &dest, Amount: money("1.00")})
	if !errors.Is(err, domain.ErrUncertainAccount) {
		t.Fatalf("expected ErrUncertainAccount with zero accounts, got %v", err)
	}

	// More than one owned account: the service must refuse to guess.
	newAccount(t, store, actor.ID, "10.00")
	newAccount(t, store, actor.ID, "10.00")
	err = svc.Transfer(ctx, actor, &domain.TransferRequest{ToID: &dest, Amount: money("1.00")})
	if !errors.Is(err, domain.ErrUncertainAccount) {
		t.Fatalf("expected ErrUncertainAccount with two accounts, got %v", err)
	}
	if got := balanceOf(t, store, dest); !got.IsZero() {
		t.Errorf("destination balance changed on failed transfer: %s", got)
	}
}

func TestTransfer_SourceNotOwned(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(t)
	actor := &domain.User{ID: 1}

	other := newAccount(t, store, 2, "50.00")
	dest := newAccount(t, store, 2, "0.00")

	err := svc.Transfer(ctx, actor, &domain.TransferRequest{FromID: &other, ToID: &dest, Amount: money("5.00")})
	if !errors.Is(err, domain.ErrUncertainAccount) {
		t.Fatalf("expected ErrUncertainAccount, got %v", err)
	}
	if got := balanceOf(t, store, other); !got.Equal(domain.MustMoney("50.00")) {
		t.Errorf("foreign account balance changed: %s", got)
	}
}

func TestTransfer_DestinationMissing(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(t)
	actor := &domain.User{ID: 1}

	a := newAccount(t, store, actor.ID, "20.00")
	ghost := int64(999)

	err := svc.Transfer(ctx, actor, &domain.TransferRequest{FromID: &a, ToID: &ghost, Amount: money("5.00")})
	if !errors.Is(err, domain.ErrUncertainAccount) {
		t.Fatalf("expected ErrUncertainAccount, got %v", err)
	}
	if got := balanceOf(t, store, a); !got.Equal(domain.MustMoney("20.00")) {
		t.Errorf("source balance changed on failed transfer: %s", got)
	}

	err = svc.Transfer(ctx, actor, &domain.TransferRequest{FromID: &a, Amount: money("5.00")})
	if !errors.Is(err, domain.ErrUncertainAccount) {
		t.Fatalf("expected ErrUncertainAccount for nil destination, got %v", err)
	}
}

func TestTransfer_AmountRules(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(t)
	actor := &domain.User{ID: 1}

	a := newAccount(t, store, actor.ID, "20.00")
	b := newAccount(t, store, 2, "0.00")

	err := svc.Transfer(ctx, actor, &domain.TransferRequest{FromID: &a, ToID: &b, Amount: money("-1.00")})
	if !errors.Is(err, domain.ErrForbiddenOperation) {
		t.Fatalf("expected ErrForbiddenOperation for negative amount, got %v", err)
	}

	err = svc.Transfer(ctx, actor, &domain.TransferRequest{FromID: &a, ToID: &b})
	if !errors.Is(err, domain.ErrForbiddenOperation) {
		t.Fatalf("expected ErrForbiddenOperation for absent amount, got %v", err)
	}

	err = svc.Transfer(ctx, actor, &domain.TransferRequest{FromID: &a, ToID: &b, Amount: money("1.005")})
	if !errors.Is(err, domain.ErrBadRequest) {
		t.Fatalf("expected ErrBadRequest for sub-cent amount, got %v", err)
	}

	// Zero is allowed.
	if err := svc.Transfer(ctx, actor, &domain.TransferRequest{FromID: &a, ToID: &b, Amount: money("0.00")}); err != nil {
		t.Fatalf("zero-amount transfer should succeed, got %v", err)
	}

	if got := balanceOf(t, store, a); !got.Equal(domain.MustMoney("20.00")) {
		t.Errorf("source balance changed: %s", got)
	}
}

func TestTransfer_InsufficientFunds(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(t)
	actor := &domain.User{ID: 1}

	a := newAccount(t, store, actor.ID, "4.99")
	b := newAccount(t, store, 2, "0.00")

	err := svc.Transfer(ctx, actor, &domain.TransferRequest{FromID: &a, ToID: &b, Amount: money("5.00")})
	if !errors.Is(err, domain.ErrForbiddenOperation) {
		t.Fatalf("expected ErrForbiddenOperation, got %v", err)
	}
	if got := balanceOf(t, store, a); !got.Equal(domain.MustMoney("4.99")) {
		t.Errorf("source balance changed on failed transfer: %s", got)
	}
}

func TestTransfer_NilRequest(t *testing.T) {
	svc, _ := newTestService(t)
	err := svc.Transfer(context.Background(), &domain.User{ID: 1}, nil)
	if !errors.Is(err, domain.ErrBadRequest) {
		t.Fatalf("expected ErrBadRequest, got %v", err)
	}
}

// A destination that vanishes between validation and lock acquisition must
// abort the whole transfer with the source untouched.
func TestTransfer_AtomicityWhenDestinationVanishes(t *testing.T) {
	ctx := context.Background()
	store := memory.NewAccountStore()
	actor := &domain.User{ID: 1}

	a := newAccount(t, store, actor.ID, "20.00")
	b := newAccount(t, store, 2, "0.00")

	sab := &sabotageStore{AccountStore: store, before: func() {
		if err := store.Delete(ctx, b); err != nil {
			t.Errorf("sabotage delete: %v", err)
		}
	}}
	svc := service.NewAccountService(sab, service.DefaultLockTimeout, nil, nil)

	err := svc.Transfer(ctx, actor, &domain.TransferRequest{FromID: &a, ToID: &b, Amount: money("5.00")})
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if got := balanceOf(t, store, a); !got.Equal(domain.MustMoney("20.00")) {
		t.Errorf("source balance changed after aborted transfer: %s", got)
	}
}

// sabotageStore runs a hook right before the transaction starts, after
// validation has already passed.
type sabotageStore struct {
	*memory.AccountStore
	before func()
}

func (s *sabotageStore) Atomically(ctx context.Context, fn func(tx service.AccountTx) error) error {
	if s.before != nil {
		s.before()
	}
	return s.AccountStore.Atomically(ctx, fn)
}

func TestFund_ExplicitAccount(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(t)
	actor := &domain.User{ID: 1}

	a := newAccount(t, store, actor.ID, "1.00")

	id, err := svc.Fund(ctx, actor, &domain.FundRequest{ToID: &a, Amount: money("2.50")})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id != a {
		t.Errorf("expected funded id %d, got %d", a, id)
	}
	if got := balanceOf(t, store, a); !got.Equal(domain.MustMoney("3.50")) {
		t.Errorf("expected 3.50, got %s", got)
	}
}

func TestFund_ImplicitAccount(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(t)
	actor := &domain.User{ID: 1}

	a := newAccount(t, store, actor.ID, "10.00")

	id, err := svc.Fund(ctx, actor, &domain.FundRequest{Amount: money("15.00")})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id != a {
		t.Errorf("expected funded id %d, got %d", a, id)
	}
	if got := balanceOf(t, store, a); !got.Equal(domain.MustMoney("25.00")) {
		t.Errorf("expected 25.00, got %s", got)
	}
}

func TestFund_ImplicitAmbiguous(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(t)
	actor := &domain.User{ID: 1}

	newAccount(t, store, actor.ID, "1.00")
	newAccount(t, store, actor.ID, "1.00")

	_, err := svc.Fund(ctx, actor, &domain.FundRequest{Amount: money("5.00")})
	if !errors.Is(err, domain.ErrUncertainAccount) {
		t.Fatalf("expected ErrUncertainAccount, got %v", err)
	}
}

func TestFund_NegativeAmount(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(t)
	actor := &domain.User{ID: 1}

	a := newAccount(t, store, actor.ID, "10.00")

	_, err := svc.Fund(ctx, actor, &domain.FundRequest{ToID: &a, Amount: money("-15.00")})
	if !errors.Is(err, domain.ErrForbiddenOperation) {
		t.Fatalf("expected ErrForbiddenOperation, got %v", err)
	}
	if got := balanceOf(t, store, a); !got.Equal(domain.MustMoney("10.00")) {
		t.Errorf("balance changed on rejected fund: %s", got)
	}
}

func TestFund_NotOwnedDestination(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(t)
	actor := &domain.User{ID: 1}

	foreign := newAccount(t, store, 2, "0.00")

	_, err := svc.Fund(ctx, actor, &domain.FundRequest{ToID: &foreign, Amount: money("5.00")})
	if !errors.Is(err, domain.ErrUncertainAccount) {
		t.Fatalf("expected ErrUncertainAccount, got %v", err)
	}
}

func TestFund_NotIdempotent(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(t)
	actor := &domain.User{ID: 1}

	a := newAccount(t, store, actor.ID, "0.00")
	req := &domain.FundRequest{ToID: &a, Amount: money("5.00")}

	for i := 0; i < 3; i++ {
		if _, err := svc.Fund(ctx, actor, req); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if got := balanceOf(t, store, a); !got.Equal(domain.MustMoney("15.00")) {
		t.Errorf("expected repeated funds to add up to 15.00, got %s", got)
	}
}

func TestCloseAccount(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(t)
	actor := &domain.User{ID: 1}

	funded := newAccount(t, store, actor.ID, "10.00")
	empty := newAccount(t, store, actor.ID, "0.00")
	foreign := newAccount(t, store, 2, "0.00")

	if err := svc.CloseAccount(ctx, actor, -1); !errors.Is(err, domain.ErrBadRequest) {
		t.Errorf("expected ErrBadRequest for negative id, got %v", err)
	}

	if err := svc.CloseAccount(ctx, actor, foreign); !errors.Is(err, domain.ErrForbiddenOperation) {
		t.Errorf("expected ErrForbiddenOperation for foreign account, got %v", err)
	}
	if exists, _ := store.ExistsByID(ctx, foreign); !exists {
		t.Error("foreign account disappeared")
	}

	if err := svc.CloseAccount(ctx, actor, funded); !errors.Is(err, domain.ErrForbiddenOperation) {
		t.Errorf("expected ErrForbiddenOperation for funded account, got %v", err)
	}
	if exists, _ := store.ExistsByID(ctx, funded); !exists {
		t.Error("funded account disappeared")
	}

	if err := svc.CloseAccount(ctx, actor, empty); err != nil {
		t.Fatalf("unexpected error closing empty account: %v", err)
	}
	if exists, _ := store.ExistsByID(ctx, empty); exists {
		t.Error("closed account still exists")
	}
}

func TestHistory_RequiresOwnership(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(t)
	actor := &domain.User{ID: 1}

	foreign := newAccount(t, store, 2, "0.00")

	_, err := svc.History(ctx, actor, foreign, 10)
	if !errors.Is(err, domain.ErrForbiddenOperation) {
		t.Fatalf("expected ErrForbiddenOperation, got %v", err)
	}
}

// Opposing concurrent transfers must never deadlock, and the final balances
// must account for every completed transfer exactly.
func TestTransfer_DeadlockFreedom(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(t)
	alice := &domain.User{ID: 1}
	bob := &domain.User{ID: 2}

	a := newAccount(t, store, alice.ID, "1000.00")
	b := newAccount(t, store, bob.ID, "1000.00")

	const rounds = 50
	var wg sync.WaitGroup
	errs := make(chan error, rounds*2)

	for i := 0; i < rounds; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			errs <- svc.Transfer(ctx, alice, &domain.TransferRequest{FromID: &a, ToID: &b, Amount: money("1.00")})
		}()
		go func() {
			defer wg.Done()
			errs <- svc.Transfer(ctx, bob, &domain.TransferRequest{FromID: &b, ToID: &a, Amount: money("1.00")})
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Fatalf("concurrent transfer failed: %v", err)
		}
	}

	balA := balanceOf(t, store, a)
	balB := balanceOf(t, store, b)
	// Equal numbers of opposing transfers: both balances must be back at
	// the starting point, and the total is conserved either way.
	if !balA.Add(balB).Equal(domain.MustMoney("2000.00")) {
		t.Fatalf("total balance not conserved: %s + %s", balA, balB)
	}
	if !balA.Equal(domain.MustMoney("1000.00")) || !balB.Equal(domain.MustMoney("1000.00")) {
		t.Errorf("expected both balances at 1000.00, got %s and %s", balA, balB)
	}
}

// Many concurrent funds against the same account must serialize, not lose
// updates.
func TestFund_ConcurrentDepositsSerialize(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(t)
	actor := &domain.User{ID: 1}

	a := newAccount(t, store, actor.ID, "0.00")

	const workers = 20
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.Fund(ctx, actor, &domain.FundRequest{ToID: &a, Amount: money("1.00")}); err != nil {
				t.Errorf("concurrent fund failed: %v", err)
			}
		}()
	}
	wg.Wait()

	if got := balanceOf(t, store, a); !got.Equal(domain.MustMoney("20.00")) {
		t.Errorf("expected 20.00 after %d deposits, got %s", workers, got)
	}
}

func TestUnauthenticatedActor(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)

	if _, err := svc.CreateAccount(ctx, nil); !errors.Is(err, domain.ErrUnauthenticated) {
		t.Errorf("CreateAccount: expected ErrUnauthenticated, got %v", err)
	}
	if _, err := svc.Fund(ctx, nil, &domain.FundRequest{Amount: money("1.00")}); !errors.Is(err, domain.ErrUnauthenticated) {
		t.Errorf("Fund: expected ErrUnauthenticated, got %v", err)
	}
	if err := svc.Transfer(ctx, nil, &domain.TransferRequest{Amount: money("1.00")}); !errors.Is(err, domain.ErrUnauthenticated) {
		t.Errorf("Transfer: expected ErrUnauthenticated, got %v", err)
	}
	if err := svc.CloseAccount(ctx, nil, 1); !errors.Is(err, domain.ErrUnauthenticated) {
		t.Errorf("CloseAccount: expected ErrUnauthenticated, got %v", err)
	}
}

func TestTransfer_LockTimeoutSurfaced(t *testing.T) {
	ctx := context.Background()
	store := memory.NewAccountStore()
	actor := &domain.User{ID: 1}

	a := newAccount(t, store, actor.ID, "100.00")
	b := newAccount(t, store, 2, "0.00")

	svc := service.NewAccountService(store, 50*time.Millisecond, nil, nil)

	// Hold b's lock in a parked transaction while the transfer tries to
	// acquire it.
	release := make(chan struct{})
	parked := make(chan struct{})
	go func() {
		_ = store.Atomically(ctx, func(tx service.AccountTx) error {
			if _, err := tx.LockedGet(ctx, b, time.Second); err != nil {
				return err
			}
			close(parked)
			<-release
			return nil
		})
	}()
	<-parked
	defer close(release)

	err := svc.Transfer(ctx, actor, &domain.TransferRequest{FromID: &a, ToID: &b, Amount: money("1.00")})
	if !errors.Is(err, domain.ErrLockTimeout) {
		t.Fatalf("expected ErrLockTimeout, got %v", err)
	}
	if got := balanceOf(t, store, a); !got.Equal(domain.MustMoney("100.00")) {
		t.Errorf("source balance changed on timed-out transfer: %s", got)
	}
}
