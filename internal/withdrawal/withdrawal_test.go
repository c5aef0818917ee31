package withdrawal

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/Mohsinsiddi/auctionbridge/internal/auction"
	"github.com/Mohsinsiddi/auctionbridge/internal/ledger"
	"github.com/Mohsinsiddi/auctionbridge/internal/signer"
	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKey = "0xac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

var (
	t0       = time.UnixMilli(1_700_000_000_000)
	contract = auction.Address{0xcc, 0x01}
	holderA  = auction.Address{0xaa, 0x02}
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func stores(t *testing.T) map[string]ledger.Store {
	t.Helper()
	dsn := "file:" + filepath.Join(t.TempDir(), "ledger.db") + "?_pragma=busy_timeout(5000)"
	gs, err := ledger.Open(context.Background(), ledger.DriverSQLite, dsn, nil)
	require.NoError(t, err)
	t.Cleanup(func() { gs.Close() }) //nolint:errcheck
	return map[string]ledger.Store{
		"memory": ledger.NewMemoryStore(),
		"sqlite": gs,
	}
}

type fixture struct {
	svc   *Service
	store ledger.Store
	sig   *signer.Signer
	now   time.Time
}

func (f *fixture) clock() time.Time { return f.now }

func newFixture(t *testing.T, store ledger.Store, opts ...Option) *fixture {
	t.Helper()
	sig, err := signer.FromHex(testKey)
	require.NoError(t, err)
	f := &fixture{store: store, sig: sig, now: t0}
	opts = append([]Option{WithClock(f.clock)}, opts...)
	f.svc, err = New(store, sig, DefaultConfig(contract), opts...)
	require.NoError(t, err)
	return f
}

func (f *fixture) seed(t *testing.T, holder, address, balance string) {
	t.Helper()
	require.NoError(t, f.store.PutAccount(context.Background(), &ledger.Account{
		HolderID: holder,
		Address:  address,
		Balance:  dec(balance),
	}))
}

func (f *fixture) balance(t *testing.T, holder string) decimal.Decimal {
	t.Helper()
	a, err := f.store.Account(context.Background(), holder)
	require.NoError(t, err)
	return a.Balance
}

func forEachStore(t *testing.T, fn func(t *testing.T, f *fixture)) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t, s)
			f.seed(t, "alice", holderA.Hex(), "1000")
			fn(t, f)
		})
	}
}

// ---------------------------------------------------------------------------
// construction
// ---------------------------------------------------------------------------

func TestNewRejectsNilSigner(t *testing.T) {
	_, err := New(ledger.NewMemoryStore(), nil, DefaultConfig(contract))
	assert.ErrorIs(t, err, signer.ErrKeyUnavailable)
}

func TestNewValidatesConfig(t *testing.T) {
	sig, err := signer.FromHex(testKey)
	require.NoError(t, err)

	cases := map[string]func(*Config){
		"ttl too long":  func(c *Config) { c.TTL = 2 * time.Hour },
		"ttl too short": func(c *Config) { c.TTL = time.Millisecond },
		"no domain tag": func(c *Config) { c.DomainTag = "" },
		"decimals":      func(c *Config) { c.Decimals = 40 },
		"no contract":   func(c *Config) { c.Contract = auction.Address{} },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := DefaultConfig(contract)
			mutate(&cfg)
			_, err := New(ledger.NewMemoryStore(), sig, cfg)
			assert.Error(t, err)
		})
	}
}

// ---------------------------------------------------------------------------
// amounts and payload
// ---------------------------------------------------------------------------

func TestBaseUnitsRoundTrip(t *testing.T) {
	for _, s := range []string{"1", "300", "0.000000000000000001", "1234.5678", "99999999999.999999999999999999"} {
		t.Run(s, func(t *testing.T) {
			raw, err := ToBaseUnits(dec(s), 18)
			require.NoError(t, err)
			assert.True(t, dec(s).Equal(FromBaseUnits(raw, 18)))
		})
	}
}

func TestToBaseUnitsScales(t *testing.T) {
	raw, err := ToBaseUnits(dec("1.5"), 6)
	require.NoError(t, err)
	assert.Equal(t, uint64(1_500_000), raw.Uint64())
}

func TestToBaseUnitsRejectsExcessPrecision(t *testing.T) {
	_, err := ToBaseUnits(dec("0.0000001"), 6)
	assert.Error(t, err)
}

func TestToBaseUnitsRejectsNegative(t *testing.T) {
	_, err := ToBaseUnits(dec("-1"), 6)
	assert.Error(t, err)
}

func TestBuildPayloadLayout(t *testing.T) {
	var id [IDLen]byte
	for i := range id {
		id[i] = byte(i)
	}
	p := BuildPayload("TAG", holderA, uint256.NewInt(0x0102), id, 0x0A0B)

	require.Len(t, p, 3+32+32+32+8)
	assert.Equal(t, []byte("TAG"), p[:3])
	assert.Equal(t, holderA[:], p[3:35])
	amount := p[35:67]
	assert.Equal(t, make([]byte, 30), amount[:30])
	assert.Equal(t, []byte{0x01, 0x02}, amount[30:])
	assert.Equal(t, id[:], p[67:99])
	assert.Equal(t, []byte{0, 0, 0, 0, 0, 0, 0x0A, 0x0B}, p[99:])
}

func TestDigestIsKeccak(t *testing.T) {
	assert.Equal(t,
		"c5d2460186f7233c927e7db2dcc703c0e500b653ca82273b7bfad8045d85a470",
		hex.EncodeToString(Digest(nil)))
}

func TestParseID(t *testing.T) {
	id, err := ParseID("  0X" + hex.EncodeToString(bytes.Repeat([]byte{0xAB}, 32)) + " ")
	require.NoError(t, err)
	assert.Equal(t, byte(0xab), id[31])

	_, err = ParseID("0x1234")
	assert.Error(t, err)
	_, err = ParseID("zz")
	assert.Error(t, err)
}

// ---------------------------------------------------------------------------
// request
// ---------------------------------------------------------------------------

func TestRequestIssuesSignedAuthorization(t *testing.T) {
	forEachStore(t, func(t *testing.T, f *fixture) {
		auth, err := f.svc.Request(context.Background(), "alice", dec("300"))
		require.NoError(t, err)

		assert.Equal(t, holderA, auth.Holder)
		assert.Equal(t, contract, auth.ContractAddress)
		assert.Equal(t, f.sig.Address(), auth.Signer)
		assert.Equal(t, uint64(t0.Add(DefaultTTL).UnixMilli()), auth.Expiry)
		assert.True(t, dec("300").Equal(FromBaseUnits(auth.AmountRaw, DefaultDecimals)))
		require.NoError(t, auth.Verify(f.sig.Address(), t0))

		w, err := f.svc.Get(context.Background(), auth.ID())
		require.NoError(t, err)
		assert.Equal(t, ledger.StatusPending, w.Status)
		assert.True(t, dec("300").Equal(w.Amount))
		assert.True(t, dec("1000").Equal(f.balance(t, "alice")))

		hist, err := f.svc.History(context.Background(), auth.ID())
		require.NoError(t, err)
		require.Len(t, hist, 1)
		assert.Equal(t, ledger.ActionRequested, hist[0].Action)
	})
}

func TestRequestValidation(t *testing.T) {
	forEachStore(t, func(t *testing.T, f *fixture) {
		f.seed(t, "bob", "", "50")
		ctx := context.Background()

		var verr *ValidationError
		_, err := f.svc.Request(ctx, "alice", dec("0"))
		assert.ErrorAs(t, err, &verr)
		_, err = f.svc.Request(ctx, "alice", dec("-5"))
		assert.ErrorAs(t, err, &verr)
		_, err = f.svc.Request(ctx, "alice", dec("0.0000000000000000001"))
		assert.ErrorAs(t, err, &verr)
		_, err = f.svc.Request(ctx, "nobody", dec("1"))
		assert.ErrorAs(t, err, &verr)
		_, err = f.svc.Request(ctx, "", dec("1"))
		assert.ErrorAs(t, err, &verr)

		_, err = f.svc.Request(ctx, "bob", dec("1"))
		assert.ErrorIs(t, err, ErrWalletNotConnected)

		_, err = f.svc.Request(ctx, "alice", dec("1000.01"))
		assert.ErrorIs(t, err, ErrInsufficientBalance)
	})
}

func TestRequestCountsPendingHolds(t *testing.T) {
	forEachStore(t, func(t *testing.T, f *fixture) {
		ctx := context.Background()
		_, err := f.svc.Request(ctx, "alice", dec("600"))
		require.NoError(t, err)
		_, err = f.svc.Request(ctx, "alice", dec("500"))
		assert.ErrorIs(t, err, ErrInsufficientBalance)
		_, err = f.svc.Request(ctx, "alice", dec("400"))
		assert.NoError(t, err)

		b, err := f.svc.Balance(ctx, "alice")
		require.NoError(t, err)
		assert.True(t, dec("1000").Equal(b.Balance))
		assert.True(t, dec("1000").Equal(b.Held))
		assert.True(t, b.Available.IsZero())
	})
}

func TestRequestRetriesIDCollision(t *testing.T) {
	store := ledger.NewMemoryStore()
	first := bytes.Repeat([]byte{0x11}, 32)
	second := bytes.Repeat([]byte{0x22}, 32)
	f := newFixture(t, store, WithRandom(bytes.NewReader(append(append(first, first...), second...))))
	f.seed(t, "alice", holderA.Hex(), "1000")

	a1, err := f.svc.Request(context.Background(), "alice", dec("1"))
	require.NoError(t, err)
	a2, err := f.svc.Request(context.Background(), "alice", dec("1"))
	require.NoError(t, err)

	assert.Equal(t, "0x"+hex.EncodeToString(first), a1.ID())
	assert.Equal(t, "0x"+hex.EncodeToString(second), a2.ID())
}

func TestRequestWritesNothingWhenIDSourceFails(t *testing.T) {
	store := ledger.NewMemoryStore()
	f := newFixture(t, store, WithRandom(bytes.NewReader(nil)))
	f.seed(t, "alice", holderA.Hex(), "1000")

	_, err := f.svc.Request(context.Background(), "alice", dec("1"))
	require.Error(t, err)

	b, err := f.svc.Balance(context.Background(), "alice")
	require.NoError(t, err)
	assert.True(t, b.Held.IsZero())
}

// ---------------------------------------------------------------------------
// confirm
// ---------------------------------------------------------------------------

func TestConfirmScenario(t *testing.T) {
	forEachStore(t, func(t *testing.T, f *fixture) {
		ctx := context.Background()
		auth, err := f.svc.Request(ctx, "alice", dec("300"))
		require.NoError(t, err)
		assert.True(t, dec("1000").Equal(f.balance(t, "alice")))

		c, err := f.svc.Confirm(ctx, auth.ID(), "0xfeed", dec("300"))
		require.NoError(t, err)
		assert.True(t, dec("700").Equal(c.NewBalance))
		assert.True(t, dec("700").Equal(f.balance(t, "alice")))

		w, err := f.svc.Get(ctx, auth.ID())
		require.NoError(t, err)
		assert.Equal(t, ledger.StatusConfirmed, w.Status)
		assert.Equal(t, "0xfeed", w.TxHash)
		require.NotNil(t, w.ConfirmedAt)

		_, err = f.svc.Confirm(ctx, auth.ID(), "0xfeed", dec("300"))
		var terr *TerminalStateError
		require.ErrorAs(t, err, &terr)
		assert.Equal(t, ledger.StatusConfirmed, terr.Status)
		assert.ErrorIs(t, err, ErrWithdrawalNotFound)
		assert.True(t, dec("700").Equal(f.balance(t, "alice")))
	})
}

func TestConfirmUnknownID(t *testing.T) {
	forEachStore(t, func(t *testing.T, f *fixture) {
		_, err := f.svc.Confirm(context.Background(), FormatID([IDLen]byte{9}), "0xfeed", dec("1"))
		assert.ErrorIs(t, err, ErrWithdrawalNotFound)
		var terr *TerminalStateError
		assert.False(t, errors.As(err, &terr))
		assert.True(t, dec("1000").Equal(f.balance(t, "alice")))
	})
}

func TestConfirmRequiresTxHash(t *testing.T) {
	forEachStore(t, func(t *testing.T, f *fixture) {
		auth, err := f.svc.Request(context.Background(), "alice", dec("1"))
		require.NoError(t, err)
		_, err = f.svc.Confirm(context.Background(), auth.ID(), "  ", dec("1"))
		var verr *ValidationError
		assert.ErrorAs(t, err, &verr)
	})
}

func TestConfirmAmountMismatchFails(t *testing.T) {
	forEachStore(t, func(t *testing.T, f *fixture) {
		ctx := context.Background()
		auth, err := f.svc.Request(ctx, "alice", dec("300"))
		require.NoError(t, err)

		_, err = f.svc.Confirm(ctx, auth.ID(), "0xfeed", dec("301"))
		assert.ErrorIs(t, err, ErrAmountMismatch)

		w, err := f.svc.Get(ctx, auth.ID())
		require.NoError(t, err)
		assert.Equal(t, ledger.StatusFailed, w.Status)
		assert.Equal(t, ReasonAmountMismatch, w.FailureReason)
		assert.Empty(t, w.TxHash)
		assert.True(t, dec("1000").Equal(f.balance(t, "alice")))

		_, err = f.svc.Confirm(ctx, auth.ID(), "0xfeed", dec("300"))
		assert.ErrorIs(t, err, ErrWithdrawalNotFound)
	})
}

func TestConfirmRechecksBalance(t *testing.T) {
	forEachStore(t, func(t *testing.T, f *fixture) {
		ctx := context.Background()
		auth, err := f.svc.Request(ctx, "alice", dec("300"))
		require.NoError(t, err)
		f.seed(t, "alice", holderA.Hex(), "100")

		_, err = f.svc.Confirm(ctx, auth.ID(), "0xfeed", dec("300"))
		assert.ErrorIs(t, err, ErrInsufficientBalance)

		w, err := f.svc.Get(ctx, auth.ID())
		require.NoError(t, err)
		assert.Equal(t, ledger.StatusFailed, w.Status)
		assert.True(t, dec("100").Equal(f.balance(t, "alice")))
	})
}

func TestConcurrentConfirmDebitsOnce(t *testing.T) {
	forEachStore(t, func(t *testing.T, f *fixture) {
		ctx := context.Background()
		auth, err := f.svc.Request(ctx, "alice", dec("300"))
		require.NoError(t, err)

		const callers = 8
		var (
			wg   sync.WaitGroup
			mu   sync.Mutex
			oks  int
			errs []error
		)
		for n := 0; n < callers; n++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := f.svc.Confirm(ctx, auth.ID(), "0xfeed", dec("300"))
				mu.Lock()
				defer mu.Unlock()
				if err == nil {
					oks++
				} else {
					errs = append(errs, err)
				}
			}()
		}
		wg.Wait()

		assert.Equal(t, 1, oks)
		for _, err := range errs {
			assert.ErrorIs(t, err, ErrWithdrawalNotFound)
		}
		assert.True(t, dec("700").Equal(f.balance(t, "alice")))

		hist, err := f.svc.History(ctx, auth.ID())
		require.NoError(t, err)
		confirmed := 0
		for _, e := range hist {
			if e.Action == ledger.ActionConfirmed {
				confirmed++
			}
		}
		assert.Equal(t, 1, confirmed)
	})
}

// ---------------------------------------------------------------------------
// account updates
// ---------------------------------------------------------------------------

func setAddress(addr string) func(*ledger.Account) error {
	return func(a *ledger.Account) error {
		a.Address = addr
		return nil
	}
}

func TestUpdateAccountKeepsDebitOfConcurrentConfirm(t *testing.T) {
	forEachStore(t, func(t *testing.T, f *fixture) {
		ctx := context.Background()
		auth, err := f.svc.Request(ctx, "alice", dec("300"))
		require.NoError(t, err)

		other := auction.Address{0xbb, 0x03}.Hex()
		confirmed := make(chan error, 1)
		b, err := UpdateAccount(ctx, f.store, "alice", func(a *ledger.Account) error {
			// The confirm starts after the row was read and must wait for
			// this update to commit before it can debit.
			go func() {
				_, err := f.svc.Confirm(ctx, auth.ID(), "0xfeed", dec("300"))
				confirmed <- err
			}()
			time.Sleep(50 * time.Millisecond)
			a.Address = other
			return nil
		})
		require.NoError(t, err)
		assert.True(t, dec("1000").Equal(b.Balance))
		require.NoError(t, <-confirmed)

		a, err := f.store.Account(ctx, "alice")
		require.NoError(t, err)
		assert.Equal(t, other, a.Address)
		assert.True(t, dec("700").Equal(a.Balance), "balance %s", a.Balance)
	})
}

func TestUpdateAccountAfterConfirmKeepsBalance(t *testing.T) {
	forEachStore(t, func(t *testing.T, f *fixture) {
		ctx := context.Background()
		auth, err := f.svc.Request(ctx, "alice", dec("300"))
		require.NoError(t, err)
		_, err = f.svc.Confirm(ctx, auth.ID(), "0xfeed", dec("300"))
		require.NoError(t, err)

		b, err := UpdateAccount(ctx, f.store, "alice", setAddress(holderA.Hex()))
		require.NoError(t, err)
		assert.True(t, dec("700").Equal(b.Balance))
		assert.True(t, dec("700").Equal(f.balance(t, "alice")))
	})
}

func TestUpdateAccountReportsHolds(t *testing.T) {
	forEachStore(t, func(t *testing.T, f *fixture) {
		ctx := context.Background()
		_, err := f.svc.Request(ctx, "alice", dec("250"))
		require.NoError(t, err)

		b, err := UpdateAccount(ctx, f.store, "alice", setAddress(holderA.Hex()))
		require.NoError(t, err)
		assert.True(t, dec("250").Equal(b.Held))
		assert.True(t, dec("750").Equal(b.Available))
	})
}

func TestUpdateAccountCreatesMissing(t *testing.T) {
	forEachStore(t, func(t *testing.T, f *fixture) {
		ctx := context.Background()
		b, err := UpdateAccount(ctx, f.store, "bob", func(a *ledger.Account) error {
			assert.True(t, a.Balance.IsZero())
			a.Balance = dec("42")
			return nil
		})
		require.NoError(t, err)
		assert.True(t, dec("42").Equal(b.Balance))
		assert.True(t, dec("42").Equal(f.balance(t, "bob")))
	})
}

func TestUpdateAccountRollsBack(t *testing.T) {
	forEachStore(t, func(t *testing.T, f *fixture) {
		ctx := context.Background()
		boom := errors.New("boom")
		_, err := UpdateAccount(ctx, f.store, "alice", func(a *ledger.Account) error {
			a.Balance = dec("1")
			return boom
		})
		assert.ErrorIs(t, err, boom)

		_, err = UpdateAccount(ctx, f.store, "alice", func(a *ledger.Account) error {
			a.Balance = dec("-1")
			return nil
		})
		var verr *ValidationError
		assert.ErrorAs(t, err, &verr)
		assert.True(t, dec("1000").Equal(f.balance(t, "alice")))
	})
}

// ---------------------------------------------------------------------------
// cancel and sweep
// ---------------------------------------------------------------------------

func TestCancelThenConfirmRejected(t *testing.T) {
	forEachStore(t, func(t *testing.T, f *fixture) {
		ctx := context.Background()
		auth, err := f.svc.Request(ctx, "alice", dec("300"))
		require.NoError(t, err)

		require.NoError(t, f.svc.Cancel(ctx, auth.ID()))

		_, err = f.svc.Confirm(ctx, auth.ID(), "0xfeed", dec("300"))
		var terr *TerminalStateError
		require.ErrorAs(t, err, &terr)
		assert.Equal(t, ledger.StatusCancelled, terr.Status)
		assert.True(t, dec("1000").Equal(f.balance(t, "alice")))

		assert.ErrorIs(t, f.svc.Cancel(ctx, auth.ID()), ErrWithdrawalNotFound)
	})
}

func TestCancelReleasesHold(t *testing.T) {
	forEachStore(t, func(t *testing.T, f *fixture) {
		ctx := context.Background()
		auth, err := f.svc.Request(ctx, "alice", dec("1000"))
		require.NoError(t, err)
		require.NoError(t, f.svc.Cancel(ctx, auth.ID()))

		_, err = f.svc.Request(ctx, "alice", dec("1000"))
		assert.NoError(t, err)
	})
}

func TestCancelUnknown(t *testing.T) {
	forEachStore(t, func(t *testing.T, f *fixture) {
		assert.ErrorIs(t, f.svc.Cancel(context.Background(), FormatID([IDLen]byte{1})), ErrWithdrawalNotFound)
	})
}

func TestSweepFailsExpired(t *testing.T) {
	forEachStore(t, func(t *testing.T, f *fixture) {
		ctx := context.Background()
		old, err := f.svc.Request(ctx, "alice", dec("100"))
		require.NoError(t, err)
		f.now = t0.Add(5 * time.Minute)
		fresh, err := f.svc.Request(ctx, "alice", dec("100"))
		require.NoError(t, err)

		f.now = t0.Add(DefaultTTL + time.Second)
		n, err := f.svc.Sweep(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		w, err := f.svc.Get(ctx, old.ID())
		require.NoError(t, err)
		assert.Equal(t, ledger.StatusFailed, w.Status)
		assert.Equal(t, ReasonExpired, w.FailureReason)

		w, err = f.svc.Get(ctx, fresh.ID())
		require.NoError(t, err)
		assert.Equal(t, ledger.StatusPending, w.Status)

		n, err = f.svc.Sweep(ctx)
		require.NoError(t, err)
		assert.Zero(t, n)
		assert.True(t, dec("1000").Equal(f.balance(t, "alice")))
	})
}

func TestSweeperStopsOnCancel(t *testing.T) {
	f := newFixture(t, ledger.NewMemoryStore())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- NewSweeper(f.svc, time.Millisecond).Run(ctx) }()
	time.Sleep(5 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}

// ---------------------------------------------------------------------------
// verification
// ---------------------------------------------------------------------------

func TestAuthorizationVerify(t *testing.T) {
	f := newFixture(t, ledger.NewMemoryStore())
	f.seed(t, "alice", holderA.Hex(), "1000")
	auth, err := f.svc.Request(context.Background(), "alice", dec("5"))
	require.NoError(t, err)

	require.NoError(t, auth.Verify(f.sig.Address(), t0))
	assert.ErrorIs(t, auth.Verify(f.sig.Address(), auth.ExpiresAt()), ErrAuthorizationExpired)

	other, err := signer.FromHex("0x59c6995e998f97a5a0044966f0945389dc9e86dae88c7a8412f4603b6b78690d")
	require.NoError(t, err)
	assert.ErrorIs(t, auth.Verify(other.Address(), t0), ErrUntrustedSigner)

	tampered := *auth
	tampered.AmountRaw = new(uint256.Int).AddUint64(auth.AmountRaw, 1)
	assert.ErrorIs(t, tampered.Verify(f.sig.Address(), t0), ErrUntrustedSigner)
}

func TestAuthorizationJSONRoundTrip(t *testing.T) {
	f := newFixture(t, ledger.NewMemoryStore())
	f.seed(t, "alice", holderA.Hex(), "1000")
	auth, err := f.svc.Request(context.Background(), "alice", dec("12.5"))
	require.NoError(t, err)

	data, err := json.Marshal(auth)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"amount_raw":"12500000000000000000"`)

	var back Authorization
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, auth.Payload(), back.Payload())
	assert.Equal(t, auth.Signature, back.Signature)
	require.NoError(t, back.Verify(f.sig.Address(), t0))
}
