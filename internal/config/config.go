package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/go-playground/validator/v10"
)

const (
	defaultRPC           = "http://127.0.0.1:9944"
	defaultRPCStrategy   = "failover"
	defaultCacheTTL      = 15
	defaultDecimals      = 18
	defaultDomainTag     = "AUCTIONBRIDGE_WITHDRAW_V1"
	defaultSigningKey    = "withdraw"
	defaultWithdrawTTL   = 600
	defaultSweepInterval = 60
	defaultListenAddr    = "127.0.0.1:8080"
	defaultLogLevel      = "info"
	defaultDriver        = "sqlite"

	configFile = "config.json"
	ledgerFile = "ledger.db"
)

var validate = validator.New()

// Load reads config from dir (or creates defaults), applies environment
// overrides and validates the result. dir defaults to $AUCTIONBRIDGE_CONFIG_DIR,
// then ~/.auctionbridge.
func Load(dir string) (*Config, error) {
	if dir == "" {
		dir = os.Getenv(EnvConfigDir)
	}
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("could not determine home dir: %w", err)
		}
		dir = filepath.Join(home, ".auctionbridge")
	}

	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("could not create config dir: %w", err)
	}

	cfg := defaults(dir)
	data, err := os.ReadFile(filepath.Join(dir, configFile))
	switch {
	case os.IsNotExist(err):
	case err != nil:
		return nil, fmt.Errorf("reading config: %w", err)
	default:
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config: %w", err)
		}
	}
	cfg.configDir = dir

	cfg.applyEnv(os.Getenv)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks every field against its constraints.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.DB.Driver == "postgres" && c.DB.DSN == "" {
		return fmt.Errorf("invalid config: db.dsn is required for postgres")
	}
	return nil
}

// Save writes the config to disk.
func (c *Config) Save() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if err := os.MkdirAll(c.configDir, 0o700); err != nil {
		return err
	}
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(c.configDir, configFile), data, 0o600)
}

// AddRPC appends an endpoint to the failover list.
func (c *Config) AddRPC(url string) error {
	if slices.Contains(c.RPCURLs, url) {
		return fmt.Errorf("RPC %s already configured", url)
	}
	c.RPCURLs = append(c.RPCURLs, url)
	return nil
}

// RemoveRPC removes an endpoint. The last one cannot be removed.
func (c *Config) RemoveRPC(url string) error {
	idx := slices.Index(c.RPCURLs, url)
	if idx == -1 {
		return fmt.Errorf("RPC %s not configured", url)
	}
	if len(c.RPCURLs) == 1 {
		return fmt.Errorf("cannot remove the only RPC endpoint")
	}
	c.RPCURLs = slices.Delete(c.RPCURLs, idx, idx+1)
	return nil
}

// LedgerDSN returns the configured DSN, defaulting sqlite to a file in the
// config dir.
func (c *Config) LedgerDSN() string {
	if c.DB.DSN != "" || c.DB.Driver != defaultDriver {
		return c.DB.DSN
	}
	return "file:" + filepath.Join(c.configDir, ledgerFile) + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
}

// Dir returns the config directory.
func (c *Config) Dir() string {
	return c.configDir
}

// --- helpers ---

func defaults(dir string) *Config {
	return &Config{
		RPCURLs:       []string{defaultRPC},
		RPCStrategy:   defaultRPCStrategy,
		CacheTTL:      defaultCacheTTL,
		TokenDecimals: defaultDecimals,
		DomainTag:     defaultDomainTag,
		SigningKey:    defaultSigningKey,
		WithdrawTTL:   defaultWithdrawTTL,
		SweepInterval: defaultSweepInterval,
		DB:            DBConfig{Driver: defaultDriver},
		ListenAddr:    defaultListenAddr,
		LogLevel:      defaultLogLevel,
		configDir:     dir,
	}
}

func (c *Config) applyEnv(getenv func(string) string) {
	if v := getenv(EnvRPCURLs); v != "" {
		var urls []string
		for _, u := range strings.Split(v, ",") {
			if u = strings.TrimSpace(u); u != "" {
				urls = append(urls, u)
			}
		}
		c.RPCURLs = urls
	}
	if v := getenv(EnvDBDriver); v != "" {
		c.DB.Driver = v
	}
	if v := getenv(EnvDBDSN); v != "" {
		c.DB.DSN = v
	}
	if v := getenv(EnvListenAddr); v != "" {
		c.ListenAddr = v
	}
	if v := getenv(EnvLogLevel); v != "" {
		c.LogLevel = strings.ToLower(v)
	}
}
