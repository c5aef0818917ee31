package withdrawal

import (
	"errors"
	"fmt"

	"github.com/Mohsinsiddi/auctionbridge/internal/ledger"
)

var (
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrWalletNotConnected  = errors.New("holder has no connected wallet")
	ErrAmountMismatch      = errors.New("amount does not match authorization")

	// ErrWithdrawalNotFound is also matched by *TerminalStateError so callers
	// treating "no confirmable withdrawal" uniformly need one check.
	ErrWithdrawalNotFound = ledger.ErrWithdrawalNotFound

	ErrAuthorizationExpired = errors.New("authorization expired")
	ErrUntrustedSigner      = errors.New("authorization not signed by trusted key")
)

// ValidationError rejects a request before anything is written.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// TerminalStateError is returned when a withdrawal has already left PENDING.
type TerminalStateError struct {
	ID     string
	Status ledger.Status
}

func (e *TerminalStateError) Error() string {
	return fmt.Sprintf("withdrawal %s is already %s", e.ID, e.Status)
}

// Is lets errors.Is(err, ErrWithdrawalNotFound) hold for terminal records.
func (e *TerminalStateError) Is(target error) bool {
	return target == ErrWithdrawalNotFound
}
