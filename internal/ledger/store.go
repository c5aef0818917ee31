// Package ledger persists holder balances, withdrawal rows and their audit
// trail behind a transactional Store.
package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrAccountNotFound     = errors.New("account not found")
	ErrWithdrawalNotFound  = errors.New("withdrawal not found")
	ErrDuplicateWithdrawal = errors.New("withdrawal id already exists")
	ErrDuplicateAccount    = errors.New("account already exists")
)

// Store is the ledger. Everything done through one Tx commits together or
// not at all.
type Store interface {
	// InTx runs fn in a transaction. A non-nil error from fn rolls back.
	InTx(ctx context.Context, fn func(tx Tx) error) error

	Account(ctx context.Context, holderID string) (*Account, error)
	// PutAccount replaces the whole row. Read-modify-write of an existing
	// account belongs in a Tx under LockAccount.
	PutAccount(ctx context.Context, a *Account) error
	Withdrawal(ctx context.Context, id string) (*Withdrawal, error)
	Audit(ctx context.Context, withdrawalID string) ([]AuditEntry, error)
}

// Tx is the view of the ledger inside a transaction. Lock* methods hold the
// row until the transaction ends.
type Tx interface {
	LockAccount(holderID string) (*Account, error)
	CreateAccount(a *Account) error
	LockWithdrawal(id string) (*Withdrawal, error)
	// PendingTotal sums the amounts of the holder's PENDING withdrawals.
	PendingTotal(holderID string) (decimal.Decimal, error)
	CreateWithdrawal(w *Withdrawal) error
	SaveWithdrawal(w *Withdrawal) error
	SaveAccount(a *Account) error
	AppendAudit(e *AuditEntry) error
	// ExpiredPending locks up to limit PENDING rows with ExpiryMs < beforeMs.
	ExpiredPending(beforeMs int64, limit int) ([]Withdrawal, error)
}

// Available is the balance minus everything held by PENDING withdrawals.
func Available(balance, pending decimal.Decimal) decimal.Decimal {
	return balance.Sub(pending)
}

func touch(t *time.Time, now time.Time) {
	if t.IsZero() {
		*t = now
	}
}
