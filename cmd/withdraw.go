package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/Mohsinsiddi/auctionbridge/internal/auction"
	"github.com/Mohsinsiddi/auctionbridge/internal/ledger"
	"github.com/Mohsinsiddi/auctionbridge/internal/ui"
	"github.com/Mohsinsiddi/auctionbridge/internal/withdrawal"
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

var (
	withdrawHistory bool
	withdrawYes     bool
	verifySigner    string
)

var withdrawCmd = &cobra.Command{
	Use:     "withdraw",
	Aliases: []string{"w"},
	Short:   "Issue and settle withdrawal authorizations",
}

var withdrawRequestCmd = &cobra.Command{
	Use:   "request <holder-id> <amount>",
	Short: "Reserve balance and mint a signed withdrawal authorization",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		amount, err := decimal.NewFromString(args[1])
		if err != nil {
			return fmt.Errorf("invalid amount %q: %w", args[1], err)
		}
		ctx, cancel := queryContext(cmd)
		defer cancel()

		return withWithdrawals(ctx, func(svc *withdrawal.Service) error {
			auth, err := svc.Request(ctx, args[0], amount)
			if err != nil {
				return err
			}
			if jsonOut {
				return printJSON(auth)
			}
			fmt.Println(ui.AuthorizationBlock(auth))
			fmt.Println(ui.Hint("Submit it on-chain, then: auctionbridge withdraw confirm " + auth.ID() + " <tx-hash> " + args[1]))
			return nil
		})
	},
}

var withdrawConfirmCmd = &cobra.Command{
	Use:   "confirm <withdrawal-id> <tx-hash> <amount>",
	Short: "Settle a withdrawal after its on-chain transfer",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		amount, err := decimal.NewFromString(args[2])
		if err != nil {
			return fmt.Errorf("invalid amount %q: %w", args[2], err)
		}
		ctx, cancel := queryContext(cmd)
		defer cancel()

		return withWithdrawals(ctx, func(svc *withdrawal.Service) error {
			c, err := svc.Confirm(ctx, args[0], args[1], amount)
			if err != nil {
				return err
			}
			if jsonOut {
				return printJSON(map[string]string{
					"withdrawal_id": c.WithdrawalID,
					"tx_hash":       c.TxHash,
					"amount":        c.Amount.String(),
					"new_balance":   c.NewBalance.String(),
				})
			}
			fmt.Println(ui.Success(fmt.Sprintf("Withdrawal %s confirmed. New balance: %s", ui.TruncateAddr(c.WithdrawalID), c.NewBalance)))
			return nil
		})
	},
}

var withdrawCancelCmd = &cobra.Command{
	Use:   "cancel <withdrawal-id>",
	Short: "Abandon a pending withdrawal and release its hold",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if !withdrawYes && !ui.ConfirmDanger(fmt.Sprintf("Cancel withdrawal %s? Its authorization stays valid on-chain until expiry.", ui.TruncateAddr(args[0]))) {
			fmt.Println(ui.Meta("Cancelled."))
			return nil
		}
		ctx, cancel := queryContext(cmd)
		defer cancel()

		return withWithdrawals(ctx, func(svc *withdrawal.Service) error {
			if err := svc.Cancel(ctx, args[0]); err != nil {
				return err
			}
			fmt.Println(ui.Success("Withdrawal " + ui.TruncateAddr(args[0]) + " cancelled."))
			return nil
		})
	},
}

var withdrawStatusCmd = &cobra.Command{
	Use:   "status <withdrawal-id>",
	Short: "Show a withdrawal and optionally its audit trail",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		raw, err := withdrawal.ParseID(args[0])
		if err != nil {
			return err
		}
		id := withdrawal.FormatID(raw)
		ctx, cancel := queryContext(cmd)
		defer cancel()

		store, err := openLedger(ctx)
		if err != nil {
			return err
		}
		defer store.Close() //nolint:errcheck

		w, err := store.Withdrawal(ctx, id)
		if err != nil {
			return fmt.Errorf("%w: %s", err, id)
		}
		var history []ledger.AuditEntry
		if withdrawHistory {
			if history, err = store.Audit(ctx, w.ID); err != nil {
				return err
			}
		}
		if jsonOut {
			return printJSON(map[string]any{"withdrawal": w, "history": history})
		}
		fmt.Println(ui.WithdrawalBlock(w))
		if withdrawHistory {
			fmt.Println(ui.AuditTable(history))
		}
		return nil
	},
}

var withdrawSweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Fail pending withdrawals whose authorization has expired",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := queryContext(cmd)
		defer cancel()

		return withWithdrawals(ctx, func(svc *withdrawal.Service) error {
			n, err := svc.Sweep(ctx)
			if err != nil {
				return err
			}
			if jsonOut {
				return printJSON(map[string]int{"swept": n})
			}
			fmt.Println(ui.Success(fmt.Sprintf("%d expired withdrawal(s) failed.", n)))
			return nil
		})
	},
}

var withdrawVerifyCmd = &cobra.Command{
	Use:   "verify <authorization.json | ->",
	Short: "Check an authorization's signature and expiry offline",
	Long: `Verify an authorization the way the withdraw contract would: the
signature must recover to the trusted signer and the expiry must not have
passed. Whether the id was already consumed can only be checked on-chain.

The trusted signer defaults to the configured signing key.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var r io.Reader = os.Stdin
		if args[0] != "-" {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			r = f
		}
		var auth withdrawal.Authorization
		if err := json.NewDecoder(r).Decode(&auth); err != nil {
			return fmt.Errorf("reading authorization: %w", err)
		}

		trusted, err := trustedSigner()
		if err != nil {
			return err
		}
		if err := auth.Verify(trusted, time.Now()); err != nil {
			return err
		}
		fmt.Println(ui.Success(fmt.Sprintf("Authorization %s is valid until %s", ui.TruncateAddr(auth.ID()), auth.ExpiresAt().UTC().Format(time.RFC3339))))
		if expected := cfg.WithdrawContract; expected != "" {
			if c, err := auction.ParseAddress(expected); err == nil && c != auth.ContractAddress {
				fmt.Println(ui.Warn("Authorization targets " + auth.ContractAddress.Hex() + ", not the configured withdraw contract."))
			}
		}
		return nil
	},
}

func trustedSigner() (common.Address, error) {
	if verifySigner != "" {
		if !common.IsHexAddress(verifySigner) {
			return common.Address{}, fmt.Errorf("invalid signer address %q", verifySigner)
		}
		return common.HexToAddress(verifySigner), nil
	}
	s, err := loadSigner()
	if err != nil {
		return common.Address{}, err
	}
	return s.Address(), nil
}

func init() {
	withdrawStatusCmd.Flags().BoolVar(&withdrawHistory, "history", false, "include the audit trail")
	withdrawCancelCmd.Flags().BoolVarP(&withdrawYes, "yes", "y", false, "skip the confirmation prompt")
	withdrawVerifyCmd.Flags().StringVar(&verifySigner, "signer", "", "trusted signer address (default: configured key)")

	withdrawCmd.AddCommand(
		withdrawRequestCmd,
		withdrawConfirmCmd,
		withdrawCancelCmd,
		withdrawStatusCmd,
		withdrawSweepCmd,
		withdrawVerifyCmd,
	)
}
