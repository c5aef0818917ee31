package withdrawal

import (
	"context"
	"errors"

	"github.com/Mohsinsiddi/auctionbridge/internal/ledger"
	"github.com/shopspring/decimal"
)

// UpdateAccount applies edit to the holder's account under its row lock and
// returns the resulting position. A missing account is created with a zero
// balance before edit runs. Confirmations on the same holder serialize
// against the update, so a debit is never overwritten by a stale balance.
func UpdateAccount(ctx context.Context, store ledger.Store, holderID string, edit func(a *ledger.Account) error) (*Balance, error) {
	if holderID == "" {
		return nil, &ValidationError{Field: "holder_id", Reason: "required"}
	}
	var out *Balance
	err := store.InTx(ctx, func(tx ledger.Tx) error {
		acct, err := tx.LockAccount(holderID)
		created := errors.Is(err, ledger.ErrAccountNotFound)
		switch {
		case created:
			acct = &ledger.Account{HolderID: holderID, Balance: decimal.Zero}
		case err != nil:
			return err
		}

		if err := edit(acct); err != nil {
			return err
		}
		if acct.Balance.IsNegative() {
			return &ValidationError{Field: "balance", Reason: "must not be negative"}
		}

		if created {
			err = tx.CreateAccount(acct)
		} else {
			err = tx.SaveAccount(acct)
		}
		if err != nil {
			return err
		}

		held, err := tx.PendingTotal(holderID)
		if err != nil {
			return err
		}
		out = &Balance{
			HolderID:  acct.HolderID,
			Address:   acct.Address,
			Balance:   acct.Balance,
			Held:      held,
			Available: ledger.Available(acct.Balance, held),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
