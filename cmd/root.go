package cmd

import (
	"fmt"
	"os"

	"github.com/Mohsinsiddi/auctionbridge/internal/config"
	"github.com/Mohsinsiddi/auctionbridge/internal/logging"
	"github.com/Mohsinsiddi/auctionbridge/internal/ui"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// Version is the current release. Overridable via build ldflags:
//
//	go build -ldflags "-X github.com/Mohsinsiddi/auctionbridge/cmd.Version=1.2.3" .
var Version = ui.Version

var (
	cfgDir  string
	cfg     *config.Config
	logger  = zap.NewNop()
	verbose bool
	jsonOut bool
)

// rootCmd is the top-level command.
var rootCmd = &cobra.Command{
	Use:   "auctionbridge",
	Short: "Query on-chain auctions and authorize off-chain withdrawals",
	Long: `auctionbridge reads NFT auctions from a marketplace contract and issues
signed, single-use withdrawal authorizations against an off-chain ledger.

Configuration lives in ~/.auctionbridge/config.json. Override the directory
with --config or AUCTIONBRIDGE_CONFIG_DIR.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Load config (skip for commands that don't need it).
		if cmd.Name() == "help" || cmd.Name() == "completion" {
			return nil
		}
		var err error
		cfg, err = config.Load(cfgDir)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		logger, err = logging.New(cfg.LogLevel, verbose)
		if err != nil {
			return err
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logger.Sync() //nolint:errcheck
	},
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, ui.Err(err.Error()))
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgDir, "config", "", "config directory (default: ~/.auctionbridge)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging to stderr")
	rootCmd.PersistentFlags().BoolVar(&jsonOut, "json", false, "print machine-readable JSON")

	rootCmd.AddCommand(
		auctionsCmd,
		withdrawCmd,
		accountCmd,
		keyCmd,
		configCmd,
		serveCmd,
	)
}
