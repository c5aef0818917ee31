package cmd

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/Mohsinsiddi/auctionbridge/internal/auction"
	"github.com/Mohsinsiddi/auctionbridge/internal/contract"
	"github.com/Mohsinsiddi/auctionbridge/internal/ui"
	"github.com/Mohsinsiddi/auctionbridge/internal/withdrawal"
	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

var (
	minBidBidder string
	minBidAmount string
)

var auctionsCmd = &cobra.Command{
	Use:     "auctions",
	Aliases: []string{"auction", "a"},
	Short:   "Query marketplace auctions",
}

var auctionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List open auctions",
	RunE: func(cmd *cobra.Command, args []string) error {
		engine, err := newEngine(cmd.Context())
		if err != nil {
			return err
		}
		ctx, cancel := queryContext(cmd)
		defer cancel()

		listings, err := spin("Fetching auctions...", func() ([]auction.Listing, error) {
			return engine.OpenListings(ctx)
		})
		if err != nil {
			return err
		}
		if jsonOut {
			return printJSON(listings)
		}
		if len(listings) == 0 {
			fmt.Println(ui.Info("No open auctions."))
			return nil
		}
		fmt.Println(ui.AuctionTable(listings, cfg.TokenDecimals))
		fmt.Println(ui.Meta(fmt.Sprintf("%d open auction(s) on %s", len(listings), ui.TruncateAddr(cfg.Marketplace))))
		return nil
	},
}

var auctionsGetCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "Show one auction, settled or not",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseAuctionID(args[0])
		if err != nil {
			return err
		}
		engine, err := newEngine(cmd.Context())
		if err != nil {
			return err
		}
		ctx, cancel := queryContext(cmd)
		defer cancel()

		rec, err := spin(fmt.Sprintf("Fetching auction #%d...", id), func() (*auction.Record, error) {
			return engine.GetAuction(ctx, id)
		})
		if err != nil {
			return err
		}
		if rec == nil {
			return fmt.Errorf("auction #%d does not exist", id)
		}
		return showAuction(*rec)
	},
}

var auctionsPickCmd = &cobra.Command{
	Use:   "pick",
	Short: "Browse open auctions interactively",
	RunE: func(cmd *cobra.Command, args []string) error {
		engine, err := newEngine(cmd.Context())
		if err != nil {
			return err
		}
		ctx, cancel := queryContext(cmd)
		defer cancel()

		listings, err := spin("Fetching auctions...", func() ([]auction.Listing, error) {
			return engine.OpenListings(ctx)
		})
		if err != nil {
			return err
		}
		if len(listings) == 0 {
			fmt.Println(ui.Info("No open auctions."))
			return nil
		}
		picked, err := ui.PickItem("Open auctions", ui.AuctionItems(listings, cfg.TokenDecimals))
		if err != nil || picked == "" {
			return err
		}
		for _, l := range listings {
			if strconv.FormatUint(l.AuctionID, 10) == picked {
				fmt.Println(ui.AuctionBlock(l, cfg.TokenDecimals))
				fmt.Println(ui.Hint("Plan a bid with: auctionbridge auctions min-bid " + picked + " --bidder <address> --bid <amount>"))
			}
		}
		return nil
	},
}

var auctionsRefundCmd = &cobra.Command{
	Use:   "refund [address]",
	Short: "Show the refund owed to an outbid bidder",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return showOwed(cmd, args, "Pending refund", func(e *contract.Engine) owedQuery { return e.PendingRefund })
	},
}

var auctionsPayoutCmd = &cobra.Command{
	Use:   "payout [address]",
	Short: "Show the proceeds owed to a seller",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return showOwed(cmd, args, "Pending payout", func(e *contract.Engine) owedQuery { return e.PendingPayout })
	},
}

var auctionsMinBidCmd = &cobra.Command{
	Use:   "min-bid <id>",
	Short: "Show the minimum next bid, or plan a bid with --bidder",
	Long: `Show the minimum acceptable next bid for an auction.

With --bidder the payment token allowance and balance are read as well and
the command prints what a bid of --bid (default: the minimum) would need:
an approve step, the bid itself, or the reason it would be rejected.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseAuctionID(args[0])
		if err != nil {
			return err
		}
		engine, err := newEngine(cmd.Context())
		if err != nil {
			return err
		}
		ctx, cancel := queryContext(cmd)
		defer cancel()

		rec, err := spin(fmt.Sprintf("Fetching auction #%d...", id), func() (*auction.Record, error) {
			return engine.GetAuction(ctx, id)
		})
		if err != nil {
			return err
		}
		if rec == nil {
			return fmt.Errorf("auction #%d does not exist", id)
		}
		minimum, err := auction.MinimumNextBid(rec)
		if err != nil {
			return err
		}

		if minBidBidder == "" {
			if jsonOut {
				return printJSON(map[string]string{"auction_id": args[0], "minimum_bid": minimum.Dec()})
			}
			fmt.Println(ui.KeyValueBlock(fmt.Sprintf("Auction #%d", id), [][2]string{
				{"Minimum next bid", ui.FormatAmount(minimum, cfg.TokenDecimals)},
				{"Time left", ui.FormatRemaining(auction.TimeRemaining(rec.EndTimeMs, time.Now()))},
			}))
			return nil
		}

		if cfg.PaymentToken == "" {
			return fmt.Errorf("no payment token configured\n  Set one with: auctionbridge config set-contract token <address>")
		}
		token, err := auction.ParseAddress(cfg.PaymentToken)
		if err != nil {
			return fmt.Errorf("payment token: %w", err)
		}
		bidder, err := auction.ParseAddress(minBidBidder)
		if err != nil {
			return fmt.Errorf("bidder: %w", err)
		}
		bid := minimum
		if minBidAmount != "" {
			if bid, err = parseTokenAmount(minBidAmount, cfg.TokenDecimals); err != nil {
				return err
			}
		}

		type funds struct{ allowance, balance *uint256.Int }
		f, err := spin("Checking allowance and balance...", func() (funds, error) {
			allowance, err := engine.Allowance(ctx, token, bidder, engine.Marketplace())
			if err != nil {
				return funds{}, err
			}
			balance, err := engine.BalanceOf(ctx, token, bidder)
			return funds{allowance, balance}, err
		})
		if err != nil {
			return err
		}

		plan, err := auction.PlanBid(rec, bidder, bid, f.allowance, f.balance, time.Now())
		if err != nil {
			return err
		}
		if jsonOut {
			steps := make([]string, 0, len(plan.Steps))
			for _, s := range plan.Steps {
				steps = append(steps, s.String())
			}
			return printJSON(map[string]any{
				"auction_id":  id,
				"bid":         bid.Dec(),
				"minimum_bid": plan.MinimumBid.Dec(),
				"allowance":   f.allowance.Dec(),
				"balance":     f.balance.Dec(),
				"steps":       steps,
				"blocker":     plan.Blocker.String(),
			})
		}
		fmt.Println(ui.BidPlanBlock(id, bid, plan, cfg.TokenDecimals))
		return nil
	},
}

func init() {
	auctionsMinBidCmd.Flags().StringVar(&minBidBidder, "bidder", "", "bidder address to plan a bid for")
	auctionsMinBidCmd.Flags().StringVar(&minBidAmount, "bid", "", "bid amount in tokens (default: the minimum)")

	auctionsCmd.AddCommand(
		auctionsListCmd,
		auctionsGetCmd,
		auctionsPickCmd,
		auctionsRefundCmd,
		auctionsPayoutCmd,
		auctionsMinBidCmd,
	)
}

func showAuction(rec auction.Record) error {
	l, err := auction.Describe(rec, time.Now())
	if err != nil {
		return err
	}
	if jsonOut {
		return printJSON(&l)
	}
	fmt.Println(ui.AuctionBlock(l, cfg.TokenDecimals))
	return nil
}

// showOwed prints what the marketplace owes an address.
func showOwed(cmd *cobra.Command, args []string, title string, query func(*contract.Engine) owedQuery) error {
	addr, err := addressArg(args, 0)
	if err != nil {
		return err
	}
	engine, err := newEngine(cmd.Context())
	if err != nil {
		return err
	}
	ctx, cancel := queryContext(cmd)
	defer cancel()

	amount, err := spin("Querying marketplace...", func() (*uint256.Int, error) {
		return query(engine)(ctx, addr)
	})
	if err != nil {
		return err
	}
	if jsonOut {
		return printJSON(map[string]string{"address": addr.Hex(), "amount": amount.Dec()})
	}
	fmt.Println(ui.KeyValueBlock(title, [][2]string{
		{"Address", addr.Hex()},
		{"Amount", ui.FormatAmount(amount, cfg.TokenDecimals)},
	}))
	if !amount.IsZero() {
		fmt.Println(ui.Hint("Claim it by calling the marketplace withdraw message from this address."))
	}
	return nil
}

type owedQuery func(ctx context.Context, addr auction.Address) (*uint256.Int, error)

func parseAuctionID(s string) (uint64, error) {
	id, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid auction id %q: must be an unsigned integer", s)
	}
	return id, nil
}

// parseTokenAmount converts a human token amount to base units.
func parseTokenAmount(s string, decimals int32) (*uint256.Int, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	return withdrawal.ToBaseUnits(d, decimals)
}
