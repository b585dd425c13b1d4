package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Account is a single ledger account. Balance is a scale-2 decimal and is
// never negative at any observable point.
type Account struct {
	ID        int64
	OwnerID   int64
	Balance   decimal.Decimal
	CreatedAt time.Time
}

// User is the authenticated principal owning zero or more accounts.
// The ledger core reads users, it never mutates them.
type User struct {
	ID           int64
	Username     string
	PasswordHash string
	FirstName    string
	LastName     string
	CreatedAt    time.Time
}

type EntryDirection string

const (
	Debit  EntryDirection = "DEBIT"
	Credit EntryDirection = "CREDIT"
)

// Entry is one side of a journal record. A transfer produces a DEBIT and a
// CREDIT with the same Amount in the same transaction; a deposit produces a
// single CREDIT.
type Entry struct {
	ID        uuid.UUID
	AccountID int64
	Direction EntryDirection
	Amount    decimal.Decimal
	CreatedAt time.Time
}

// TransferRequest moves Amount from FromID to ToID. FromID may be nil, in
// which case the caller's single owned account is used.
type TransferRequest struct {
	FromID *int64           `json:"from_id"`
	ToID   *int64           `json:"to_id"`
	Amount *decimal.Decimal `json:"amount"`
}

// FundRequest deposits Amount into ToID, or into the caller's single owned
// account when ToID is nil.
type FundRequest struct {
	ToID   *int64           `json:"to_id"`
	Amount *decimal.Decimal `json:"amount"`
}
