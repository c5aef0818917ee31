package cmd

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/Mohsinsiddi/auctionbridge/internal/auction"
	"github.com/Mohsinsiddi/auctionbridge/internal/chain"
	"github.com/Mohsinsiddi/auctionbridge/internal/rpc"
	"github.com/Mohsinsiddi/auctionbridge/internal/ui"
	"github.com/spf13/cobra"
)

var rpcAppend bool

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configShowCmd = &cobra.Command{
	Use:     "show",
	Aliases: []string{"list"},
	Short:   "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := json.MarshalIndent(cfg, "", "  ")
		if err != nil {
			return err
		}
		if jsonOut {
			fmt.Println(string(data))
			return nil
		}
		fmt.Printf("%s\n\n", ui.StyleTitle.Render("Current Configuration"))
		fmt.Println(string(data))
		fmt.Println(ui.Meta("Config directory: " + cfg.Dir()))
		return nil
	},
}

var configSetRPCCmd = &cobra.Command{
	Use:   "set-rpc <url>...",
	Short: "Set the RPC endpoints, tried in order (http, https, ws, wss)",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if !rpcAppend {
			cfg.RPCURLs = nil
		}
		for _, url := range args {
			if err := cfg.AddRPC(url); err != nil {
				// Already configured, not fatal.
				fmt.Println(ui.Warn(err.Error()))
			}
		}
		if err := cfg.Save(); err != nil {
			return err
		}
		fmt.Println(ui.Success("RPC endpoints: " + strings.Join(cfg.RPCURLs, ", ")))
		return nil
	},
}

// contractTargets maps set-contract names onto config fields.
var contractTargets = map[string]func(string){
	"marketplace": func(a string) { cfg.Marketplace = a },
	"token":       func(a string) { cfg.PaymentToken = a },
	"withdraw":    func(a string) { cfg.WithdrawContract = a },
	"account":     func(a string) { cfg.DefaultAccount = a },
}

var configSetContractCmd = &cobra.Command{
	Use:   "set-contract <marketplace|token|withdraw|account> <address>",
	Short: "Set a contract or default account address",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		set, ok := contractTargets[args[0]]
		if !ok {
			return fmt.Errorf("unknown target %q: want marketplace, token, withdraw or account", args[0])
		}
		addr, err := auction.ParseAddress(args[1])
		if err != nil {
			return err
		}
		set(addr.Hex())
		if err := cfg.Save(); err != nil {
			return err
		}
		fmt.Println(ui.Success(fmt.Sprintf("%s set to %s", args[0], ui.Addr(addr.Hex()))))
		return nil
	},
}

var configSetDBCmd = &cobra.Command{
	Use:   "set-db <sqlite|postgres> [dsn]",
	Short: "Select the ledger database",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg.DB.Driver = args[0]
		cfg.DB.DSN = ""
		if len(args) == 2 {
			cfg.DB.DSN = args[1]
		}
		if err := cfg.Save(); err != nil {
			return err
		}
		fmt.Println(ui.Success("Ledger database set to " + cfg.DB.Driver))
		return nil
	},
}

var configTestRPCCmd = &cobra.Command{
	Use:   "test-rpc",
	Short: "Probe every configured endpoint and show the dial order",
	RunE: func(cmd *cobra.Command, args []string) error {
		dialer, err := chain.NewDialer(cfg.RPCURLs, chain.WithLogger(logger))
		if err != nil {
			return err
		}
		ctx, cancel := queryContext(cmd)
		defer cancel()

		results, _ := spin("Probing endpoints...", func() ([]rpc.Endpoint, error) {
			return rpc.Benchmark(ctx, dialer, cfg.RPCURLs), nil
		})
		ranked := rpc.Rank(results, rpc.Strategy(cfg.RPCStrategy))
		if jsonOut {
			return printJSON(endpointsJSON(ranked))
		}

		best := rpc.BestBlock(ranked)
		t := ui.NewTable([]ui.Column{
			{Title: "#", Width: 3},
			{Title: "Endpoint", Width: 44},
			{Title: "Latency", Width: 10, Right: true},
			{Title: "Block", Width: 12, Right: true},
			{Title: "Status", Width: 24},
		})
		for i, e := range ranked {
			status := "ok"
			switch {
			case !e.Healthy():
				status = "down: " + e.Err.Error()
			case e.Stale(best):
				status = fmt.Sprintf("stale (%d behind)", best-e.BlockNumber)
			}
			latency, block := "-", "-"
			if e.Healthy() {
				latency = e.Latency.Round(time.Millisecond).String()
				block = strconv.FormatUint(e.BlockNumber, 10)
			}
			t.AddRow(ui.Row{strconv.Itoa(i + 1), e.URL, latency, block, status})
		}
		fmt.Println(t.Render())
		fmt.Println(ui.Meta("Strategy: " + cfg.RPCStrategy))
		return nil
	},
}

var configSetStrategyCmd = &cobra.Command{
	Use:       "set-strategy <failover|fastest>",
	Short:     "Choose how endpoints are ordered before dialing",
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{string(rpc.StrategyFailover), string(rpc.StrategyFastest)},
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg.RPCStrategy = args[0]
		if err := cfg.Save(); err != nil {
			return err
		}
		fmt.Println(ui.Success("RPC strategy set to " + args[0]))
		return nil
	},
}

type endpointJSON struct {
	URL         string `json:"url"`
	LatencyMs   int64  `json:"latency_ms,omitempty"`
	BlockNumber uint64 `json:"block_number,omitempty"`
	Error       string `json:"error,omitempty"`
}

func endpointsJSON(eps []rpc.Endpoint) []endpointJSON {
	out := make([]endpointJSON, len(eps))
	for i, e := range eps {
		out[i] = endpointJSON{URL: e.URL, LatencyMs: e.Latency.Milliseconds(), BlockNumber: e.BlockNumber}
		if e.Err != nil {
			out[i].Error = e.Err.Error()
		}
	}
	return out
}

func init() {
	configSetRPCCmd.Flags().BoolVar(&rpcAppend, "append", false, "add to the existing endpoints instead of replacing them")
	configCmd.AddCommand(configShowCmd, configSetRPCCmd, configTestRPCCmd, configSetStrategyCmd, configSetContractCmd, configSetDBCmd)
}
