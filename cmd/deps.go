package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/Mohsinsiddi/auctionbridge/internal/auction"
	"github.com/Mohsinsiddi/auctionbridge/internal/chain"
	"github.com/Mohsinsiddi/auctionbridge/internal/config"
	"github.com/Mohsinsiddi/auctionbridge/internal/contract"
	"github.com/Mohsinsiddi/auctionbridge/internal/ledger"
	"github.com/Mohsinsiddi/auctionbridge/internal/rpc"
	"github.com/Mohsinsiddi/auctionbridge/internal/signer"
	"github.com/Mohsinsiddi/auctionbridge/internal/ui"
	"github.com/Mohsinsiddi/auctionbridge/internal/withdrawal"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var errNoMarketplace = errors.New("no marketplace contract configured\n  Set one with: auctionbridge config set-contract marketplace <address>")

// newEngine builds a query engine over the configured endpoints. With the
// fastest strategy the endpoints are probed and reordered first.
func newEngine(ctx context.Context) (*contract.Engine, error) {
	if cfg.Marketplace == "" {
		return nil, errNoMarketplace
	}
	market, err := auction.ParseAddress(cfg.Marketplace)
	if err != nil {
		return nil, fmt.Errorf("marketplace contract: %w", err)
	}
	dialer, err := chain.NewDialer(cfg.RPCURLs, chain.WithLogger(logger))
	if err != nil {
		return nil, err
	}
	if rpc.Strategy(cfg.RPCStrategy) == rpc.StrategyFastest && len(cfg.RPCURLs) > 1 {
		ordered := rpc.Order(ctx, dialer, cfg.RPCURLs, rpc.StrategyFastest)
		logger.Debug("ranked endpoints", zap.Strings("order", ordered))
		if dialer, err = chain.NewDialer(ordered, chain.WithLogger(logger)); err != nil {
			return nil, err
		}
	}
	opts := []contract.Option{
		contract.WithLogger(logger),
		contract.WithCacheTTL(cfg.CacheTTLDuration()),
	}
	if cfg.DefaultAccount != "" {
		origin, err := auction.ParseAddress(cfg.DefaultAccount)
		if err != nil {
			return nil, fmt.Errorf("default account: %w", err)
		}
		opts = append(opts, contract.WithOrigin(origin))
	}
	return contract.NewEngine(dialer, market, opts...), nil
}

// openLedger opens the configured ledger database.
func openLedger(ctx context.Context) (*ledger.GormStore, error) {
	return ledger.Open(ctx, cfg.DB.Driver, cfg.LedgerDSN(), logger)
}

func keystore() *signer.Keystore {
	return signer.DefaultKeystore(cfg.Dir())
}

// loadSigner loads the withdrawal signing key once. Missing keys are fatal
// for every withdrawal command.
func loadSigner() (*signer.Signer, error) {
	s, err := signer.Load(keystore(), signer.Ref(cfg.SigningKey))
	if err != nil {
		return nil, fmt.Errorf("%w\n  Import one with: auctionbridge key import %s --key <hex>", err, cfg.SigningKey)
	}
	return s, nil
}

// withdrawalConfig maps the file config onto the service config.
func withdrawalConfig() (withdrawal.Config, error) {
	if cfg.WithdrawContract == "" {
		return withdrawal.Config{}, errors.New("no withdraw contract configured\n  Set one with: auctionbridge config set-contract withdraw <address>")
	}
	contractAddr, err := auction.ParseAddress(cfg.WithdrawContract)
	if err != nil {
		return withdrawal.Config{}, fmt.Errorf("withdraw contract: %w", err)
	}
	wc := withdrawal.DefaultConfig(contractAddr)
	wc.DomainTag = cfg.DomainTag
	wc.Decimals = cfg.TokenDecimals
	wc.TTL = cfg.WithdrawTTLDuration()
	wc.SweepGrace = cfg.SweepGraceDuration()
	return wc, nil
}

// withWithdrawals opens the ledger, loads the key and runs fn with a
// ready service. The ledger is closed afterwards.
func withWithdrawals(ctx context.Context, fn func(svc *withdrawal.Service) error) error {
	wc, err := withdrawalConfig()
	if err != nil {
		return err
	}
	sig, err := loadSigner()
	if err != nil {
		return err
	}
	store, err := openLedger(ctx)
	if err != nil {
		return err
	}
	defer store.Close() //nolint:errcheck

	svc, err := withdrawal.New(store, sig, wc, withdrawal.WithLogger(logger))
	if err != nil {
		return err
	}
	return fn(svc)
}

// queryContext bounds one CLI operation.
func queryContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return context.WithTimeout(cmd.Context(), config.QueryTimeout)
}

// spin runs fn behind a spinner unless --json is set.
func spin[T any](msg string, fn func() (T, error)) (T, error) {
	if jsonOut {
		return fn()
	}
	s := ui.NewSpinner(msg)
	s.Start()
	defer s.Stop()
	return fn()
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// addressArg returns args[i] or, when absent, the configured default account.
func addressArg(args []string, i int) (auction.Address, error) {
	if i < len(args) {
		return auction.ParseAddress(args[i])
	}
	if cfg.DefaultAccount == "" {
		return auction.Address{}, errors.New("address required (or set one with: auctionbridge config set-contract account <address>)")
	}
	return auction.ParseAddress(cfg.DefaultAccount)
}
