package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Mohsinsiddi/auctionbridge/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const addr = "0x" + "ab" + "00000000000000000000000000000000000000000000000000000000000000"

func TestLoadDefaultConfig(t *testing.T) {
	dir := t.TempDir()
	cfg, err := config.Load(dir)
	require.NoError(t, err)

	assert.Equal(t, []string{"http://127.0.0.1:9944"}, cfg.RPCURLs)
	assert.Equal(t, "failover", cfg.RPCStrategy)
	assert.Equal(t, 15*time.Second, cfg.CacheTTLDuration())
	assert.Equal(t, 10*time.Minute, cfg.WithdrawTTLDuration())
	assert.Equal(t, time.Minute, cfg.SweepIntervalDuration())
	assert.Zero(t, cfg.SweepGraceDuration())
	assert.Equal(t, int32(18), cfg.TokenDecimals)
	assert.Equal(t, "sqlite", cfg.DB.Driver)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestSaveAndReloadConfig(t *testing.T) {
	dir := t.TempDir()
	cfg, err := config.Load(dir)
	require.NoError(t, err)

	cfg.Marketplace = addr
	cfg.RPCURLs = []string{"wss://node.example:443"}
	cfg.WithdrawTTL = 300
	require.NoError(t, cfg.Save())

	reloaded, err := config.Load(dir)
	require.NoError(t, err)
	assert.Equal(t, addr, reloaded.Marketplace)
	assert.Equal(t, []string{"wss://node.example:443"}, reloaded.RPCURLs)
	assert.Equal(t, 5*time.Minute, reloaded.WithdrawTTLDuration())
}

func TestConfigFileCreatedOnSave(t *testing.T) {
	dir := t.TempDir()
	cfg, err := config.Load(dir)
	require.NoError(t, err)
	require.NoError(t, cfg.Save())

	_, err = os.Stat(filepath.Join(dir, "config.json"))
	assert.NoError(t, err, "config.json should be created on save")
}

func TestLoadFromNonExistentDir(t *testing.T) {
	dir := t.TempDir() + "/subdir"
	cfg, err := config.Load(dir)
	require.NoError(t, err)
	assert.Equal(t, dir, cfg.Dir())
}

func TestLoadUsesEnvDir(t *testing.T) {
	dir := t.TempDir()
	t.Setenv(config.EnvConfigDir, dir)
	cfg, err := config.Load("")
	require.NoError(t, err)
	assert.Equal(t, dir, cfg.Dir())
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv(config.EnvRPCURLs, " http://a:1 , ws://b:2 ,")
	t.Setenv(config.EnvDBDriver, "postgres")
	t.Setenv(config.EnvDBDSN, "postgres://u:p@localhost/ledger")
	t.Setenv(config.EnvListenAddr, ":9090")
	t.Setenv(config.EnvLogLevel, "DEBUG")

	cfg, err := config.Load(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, []string{"http://a:1", "ws://b:2"}, cfg.RPCURLs)
	assert.Equal(t, "postgres", cfg.DB.Driver)
	assert.Equal(t, "postgres://u:p@localhost/ledger", cfg.LedgerDSN())
	assert.Equal(t, ":9090", cfg.ListenAddr)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestPostgresRequiresDSN(t *testing.T) {
	t.Setenv(config.EnvDBDriver, "postgres")
	_, err := config.Load(t.TempDir())
	assert.Error(t, err)
}

func TestInvalidFileRejected(t *testing.T) {
	cases := map[string]string{
		"bad json":         `{`,
		"ttl over an hour": `{"withdraw_ttl": 7200}`,
		"bad address":      `{"marketplace_contract": "0x1234"}`,
		"bad level":        `{"log_level": "loud"}`,
		"no endpoints":     `{"rpc_urls": []}`,
		"bad strategy":     `{"rpc_strategy": "random"}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			dir := t.TempDir()
			require.NoError(t, os.WriteFile(filepath.Join(dir, "config.json"), []byte(body), 0o600))
			_, err := config.Load(dir)
			assert.Error(t, err)
		})
	}
}

func TestDefaultLedgerDSN(t *testing.T) {
	dir := t.TempDir()
	cfg, err := config.Load(dir)
	require.NoError(t, err)
	dsn := cfg.LedgerDSN()
	assert.True(t, strings.HasPrefix(dsn, "file:"+filepath.Join(dir, "ledger.db")))
}

func TestAddAndRemoveRPC(t *testing.T) {
	cfg, err := config.Load(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, cfg.AddRPC("http://backup:9944"))
	assert.Error(t, cfg.AddRPC("http://backup:9944"))
	assert.Len(t, cfg.RPCURLs, 2)

	require.NoError(t, cfg.RemoveRPC("http://127.0.0.1:9944"))
	assert.Equal(t, []string{"http://backup:9944"}, cfg.RPCURLs)

	assert.Error(t, cfg.RemoveRPC("http://backup:9944"), "last endpoint must stay")
	assert.Error(t, cfg.RemoveRPC("http://nope"))
}
