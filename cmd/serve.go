package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/Mohsinsiddi/auctionbridge/internal/api"
	"github.com/Mohsinsiddi/auctionbridge/internal/ui"
	"github.com/Mohsinsiddi/auctionbridge/internal/withdrawal"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and the expiry sweeper",
	Long: `Serve the auction queries and the withdrawal flow over HTTP.

The signing key and the ledger are loaded once at startup; the service
refuses to start without them. Pending withdrawals past their expiry are
failed by a background sweeper.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		addr := cfg.ListenAddr
		if serveAddr != "" {
			addr = serveAddr
		}

		engine, err := newEngine(ctx)
		if err != nil {
			return err
		}
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

		fmt.Fprint(os.Stderr, ui.Banner())
		fmt.Fprintf(os.Stderr, "  listening on %s  signer %s\n\n", ui.Val(addr), ui.Addr(sig.Address().Hex()))

		router := api.NewRouter(api.Deps{
			Auctions:       engine,
			Withdrawals:    svc,
			Log:            logger,
			AllowedOrigins: cfg.AllowedOrigins,
		})

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			return api.Serve(gctx, addr, router, logger)
		})
		g.Go(func() error {
			err := withdrawal.NewSweeper(svc, cfg.SweepIntervalDuration()).Run(gctx)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})

		err = g.Wait()
		logger.Info("stopped", zap.Error(err))
		return err
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "listen", "", "listen address (default from config)")
}
