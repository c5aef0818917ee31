package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/Mohsinsiddi/auctionbridge/internal/auction"
	"github.com/Mohsinsiddi/auctionbridge/internal/ledger"
	"github.com/Mohsinsiddi/auctionbridge/internal/ui"
	"github.com/Mohsinsiddi/auctionbridge/internal/withdrawal"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

var (
	accountAddress string
	accountBalance string
)

var accountCmd = &cobra.Command{
	Use:   "account",
	Short: "Manage off-chain ledger accounts",
}

var accountSetCmd = &cobra.Command{
	Use:   "set <holder-id>",
	Short: "Create or update a holder's ledger account",
	Long: `Create or update a holder's off-chain account.

--address connects the holder's on-chain address (required before any
withdrawal). --balance overwrites the ledger balance.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if accountAddress == "" && accountBalance == "" {
			return errors.New("nothing to set: pass --address and/or --balance")
		}
		ctx, cancel := queryContext(cmd)
		defer cancel()

		store, err := openLedger(ctx)
		if err != nil {
			return err
		}
		defer store.Close() //nolint:errcheck

		b, err := withdrawal.UpdateAccount(ctx, store, args[0], applyAccountFlags)
		if err != nil {
			return err
		}
		return showBalance(b)
	},
}

var accountShowCmd = &cobra.Command{
	Use:   "show <holder-id>",
	Short: "Show a holder's balance and pending holds",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := queryContext(cmd)
		defer cancel()

		store, err := openLedger(ctx)
		if err != nil {
			return err
		}
		defer store.Close() //nolint:errcheck
		return printAccount(ctx, store, args[0])
	},
}

func applyAccountFlags(acct *ledger.Account) error {
	if accountAddress != "" {
		addr, err := auction.ParseAddress(accountAddress)
		if err != nil {
			return fmt.Errorf("--address: %w", err)
		}
		acct.Address = addr.Hex()
	}
	if accountBalance != "" {
		bal, err := decimal.NewFromString(accountBalance)
		if err != nil {
			return fmt.Errorf("--balance: %w", err)
		}
		if bal.IsNegative() {
			return errors.New("--balance must not be negative")
		}
		acct.Balance = bal
	}
	return nil
}

func printAccount(ctx context.Context, store ledger.Store, holderID string) error {
	b, err := withdrawal.LookupBalance(ctx, store, holderID)
	if err != nil {
		return err
	}
	return showBalance(b)
}

func showBalance(b *withdrawal.Balance) error {
	if jsonOut {
		return printJSON(b)
	}
	fmt.Println(ui.BalanceBlock(b))
	return nil
}

func init() {
	accountSetCmd.Flags().StringVar(&accountAddress, "address", "", "connected on-chain address (32-byte hex)")
	accountSetCmd.Flags().StringVar(&accountBalance, "balance", "", "ledger balance in tokens")

	accountCmd.AddCommand(accountSetCmd, accountShowCmd)
}
