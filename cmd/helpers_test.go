package cmd

import (
	"context"
	"strings"
	"testing"

	"github.com/Mohsinsiddi/auctionbridge/internal/config"
	"github.com/Mohsinsiddi/auctionbridge/internal/ledger"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const holderAddr = "0x" + "d43593c715fdd31c61141abd04a99fd6822c8558854ccde39a5684e7a56da27d"

// withFlags resets the package-level flag vars after a test.
func withFlags(t *testing.T) {
	t.Helper()
	t.Cleanup(func() {
		accountAddress, accountBalance = "", ""
		verifySigner = ""
		cfg = nil
	})
}

// ---------------------------------------------------------------------------
// parseAuctionID
// ---------------------------------------------------------------------------

func TestParseAuctionID_Valid(t *testing.T) {
	id, err := parseAuctionID("42")
	require.NoError(t, err)
	assert.Equal(t, uint64(42), id)
}

func TestParseAuctionID_MaxU64(t *testing.T) {
	id, err := parseAuctionID("18446744073709551615")
	require.NoError(t, err)
	assert.Equal(t, ^uint64(0), id)
}

func TestParseAuctionID_Rejects(t *testing.T) {
	for _, s := range []string{"", "-1", "abc", "1.5", "18446744073709551616"} {
		_, err := parseAuctionID(s)
		assert.Error(t, err, "input %q", s)
	}
}

// ---------------------------------------------------------------------------
// parseTokenAmount
// ---------------------------------------------------------------------------

func TestParseTokenAmount_Scales(t *testing.T) {
	v, err := parseTokenAmount("1.5", 18)
	require.NoError(t, err)
	assert.Equal(t, "1500000000000000000", v.Dec())
}

func TestParseTokenAmount_ZeroDecimals(t *testing.T) {
	v, err := parseTokenAmount("250", 0)
	require.NoError(t, err)
	assert.Equal(t, "250", v.Dec())
}

func TestParseTokenAmount_NotANumber(t *testing.T) {
	_, err := parseTokenAmount("lots", 18)
	assert.Error(t, err)
}

func TestParseTokenAmount_TooPrecise(t *testing.T) {
	_, err := parseTokenAmount("0.001", 2)
	assert.Error(t, err)
}

func TestParseTokenAmount_Negative(t *testing.T) {
	_, err := parseTokenAmount("-1", 18)
	assert.Error(t, err)
}

// ---------------------------------------------------------------------------
// applyAccountFlags
// ---------------------------------------------------------------------------

func TestApplyAccountFlags_AddressAndBalance(t *testing.T) {
	withFlags(t)
	accountAddress = strings.ToUpper(holderAddr[2:])
	accountBalance = "12.5"

	acct := &ledger.Account{HolderID: "alice", Balance: decimal.Zero}
	require.NoError(t, applyAccountFlags(acct))
	assert.Equal(t, holderAddr, acct.Address)
	assert.True(t, decimal.RequireFromString("12.5").Equal(acct.Balance))
}

func TestApplyAccountFlags_BalanceOnlyKeepsAddress(t *testing.T) {
	withFlags(t)
	accountBalance = "3"

	acct := &ledger.Account{HolderID: "alice", Address: holderAddr, Balance: decimal.NewFromInt(9)}
	require.NoError(t, applyAccountFlags(acct))
	assert.Equal(t, holderAddr, acct.Address)
	assert.True(t, decimal.NewFromInt(3).Equal(acct.Balance))
}

func TestApplyAccountFlags_NegativeBalance(t *testing.T) {
	withFlags(t)
	accountBalance = "-1"
	err := applyAccountFlags(&ledger.Account{HolderID: "alice"})
	assert.ErrorContains(t, err, "negative")
}

func TestApplyAccountFlags_BadAddress(t *testing.T) {
	withFlags(t)
	accountAddress = "0x1234"
	err := applyAccountFlags(&ledger.Account{HolderID: "alice"})
	assert.ErrorContains(t, err, "--address")
}

// ---------------------------------------------------------------------------
// addressArg
// ---------------------------------------------------------------------------

func TestAddressArg_FromArgs(t *testing.T) {
	withFlags(t)
	cfg = &config.Config{}
	a, err := addressArg([]string{holderAddr}, 0)
	require.NoError(t, err)
	assert.Equal(t, holderAddr, a.Hex())
}

func TestAddressArg_FallsBackToDefaultAccount(t *testing.T) {
	withFlags(t)
	cfg = &config.Config{DefaultAccount: holderAddr}
	a, err := addressArg(nil, 0)
	require.NoError(t, err)
	assert.Equal(t, holderAddr, a.Hex())
}

func TestAddressArg_NoneConfigured(t *testing.T) {
	withFlags(t)
	cfg = &config.Config{}
	_, err := addressArg(nil, 0)
	assert.ErrorContains(t, err, "address required")
}

// ---------------------------------------------------------------------------
// trustedSigner / keyName
// ---------------------------------------------------------------------------

func TestTrustedSigner_FromFlag(t *testing.T) {
	withFlags(t)
	verifySigner = "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"
	a, err := trustedSigner()
	require.NoError(t, err)
	assert.Equal(t, verifySigner, a.Hex())
}

func TestTrustedSigner_InvalidFlag(t *testing.T) {
	withFlags(t)
	verifySigner = "not-an-address"
	_, err := trustedSigner()
	assert.Error(t, err)
}

func TestKeyName_DefaultsToConfiguredKey(t *testing.T) {
	withFlags(t)
	cfg = &config.Config{SigningKey: "withdraw"}
	assert.Equal(t, "withdraw", keyName(nil))
	assert.Equal(t, "ops", keyName([]string{"ops"}))
}

// ---------------------------------------------------------------------------
// withdrawalConfig / newEngine
// ---------------------------------------------------------------------------

func TestWithdrawalConfig_RequiresContract(t *testing.T) {
	withFlags(t)
	cfg = &config.Config{}
	_, err := withdrawalConfig()
	assert.ErrorContains(t, err, "no withdraw contract")
}

func TestWithdrawalConfig_MapsFields(t *testing.T) {
	withFlags(t)
	cfg = &config.Config{
		WithdrawContract: holderAddr,
		DomainTag:        "TAG_V2",
		TokenDecimals:    6,
		WithdrawTTL:      120,
		SweepGrace:       30,
	}
	wc, err := withdrawalConfig()
	require.NoError(t, err)
	assert.Equal(t, holderAddr, wc.Contract.Hex())
	assert.Equal(t, "TAG_V2", wc.DomainTag)
	assert.Equal(t, int32(6), wc.Decimals)
	assert.Equal(t, "2m0s", wc.TTL.String())
	assert.Equal(t, "30s", wc.SweepGrace.String())
}

func TestNewEngine_RequiresMarketplace(t *testing.T) {
	withFlags(t)
	cfg = &config.Config{RPCURLs: []string{"http://127.0.0.1:9944"}}
	_, err := newEngine(context.Background())
	assert.ErrorIs(t, err, errNoMarketplace)
}

// ---------------------------------------------------------------------------
// command tree
// ---------------------------------------------------------------------------

func TestRootCommand_RegistersSubcommands(t *testing.T) {
	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"auctions", "withdraw", "account", "key", "config", "serve"} {
		assert.True(t, names[want], "missing %q", want)
	}
}

func TestContractTargets_Known(t *testing.T) {
	for _, k := range []string{"marketplace", "token", "withdraw", "account"} {
		_, ok := contractTargets[k]
		assert.True(t, ok, k)
	}
}
