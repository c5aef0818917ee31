package contract

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Mohsinsiddi/auctionbridge/internal/auction"
	"github.com/Mohsinsiddi/auctionbridge/internal/chain"
	"github.com/Mohsinsiddi/auctionbridge/internal/scale"
	"github.com/holiman/uint256"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const (
	// DefaultCacheTTL is how long an open-auction listing is reused.
	DefaultCacheTTL = 15 * time.Second
	// FetchTimeout bounds a shared listing fetch. The fetch outlives any
	// single caller, so it does not inherit a caller's cancellation.
	FetchTimeout = 30 * time.Second
)

// Engine runs read-only queries against the marketplace contract. Every
// call acquires its own connection and releases it before returning.
type Engine struct {
	dialer      chain.Dialer
	marketplace auction.Address
	origin      auction.Address
	log         *zap.Logger
	now         func() time.Time
	cache       *listingCache
	group       singleflight.Group
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger used for skipped records and connection errors.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}

// WithClock overrides the wall clock.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithCacheTTL sets the listing cache TTL. Zero disables the cache.
func WithCacheTTL(ttl time.Duration) Option {
	return func(e *Engine) { e.cache = newListingCache(ttl) }
}

// WithOrigin sets the account the dry-run calls are made from.
func WithOrigin(a auction.Address) Option {
	return func(e *Engine) { e.origin = a }
}

// NewEngine creates a query engine for the marketplace at address marketplace.
func NewEngine(dialer chain.Dialer, marketplace auction.Address, opts ...Option) *Engine {
	e := &Engine{
		dialer:      dialer,
		marketplace: marketplace,
		log:         zap.NewNop(),
		now:         time.Now,
		cache:       newListingCache(DefaultCacheTTL),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Marketplace returns the contract address queried.
func (e *Engine) Marketplace() auction.Address { return e.marketplace }

// InvalidateListings drops the cached listing so the next read goes to chain.
func (e *Engine) InvalidateListings() { e.cache.invalidate() }

// AuctionCount returns the number of auction ids ever assigned. Valid ids
// are [0, count).
func (e *Engine) AuctionCount(ctx context.Context) (uint64, error) {
	var count uint64
	err := e.withConn(ctx, func(conn chain.Conn) error {
		var err error
		count, err = e.auctionCount(ctx, conn)
		return err
	})
	return count, err
}

// GetAuction fetches one auction. A nil record with a nil error means no
// auction exists at id. Decode failures are returned, not skipped.
func (e *Engine) GetAuction(ctx context.Context, id uint64) (*auction.Record, error) {
	var rec *auction.Record
	err := e.withConn(ctx, func(conn chain.Conn) error {
		reply, err := e.query(ctx, conn, e.marketplace, MsgGetAuction, scale.AppendU64(nil, id))
		if err != nil {
			return fmt.Errorf("querying auction %d: %w", id, err)
		}
		rec, err = scale.DecodeAuctionReply(reply)
		if err != nil {
			return fmt.Errorf("auction %d: %w", id, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// ListOpenAuctions returns every unsettled auction in id order. A record
// that fails to decode is logged and skipped; transport failures abort.
// Concurrent callers share one fetch; a caller that gives up returns its
// own context error without failing the others.
func (e *Engine) ListOpenAuctions(ctx context.Context) ([]auction.Record, error) {
	if recs, ok := e.cache.get(e.now()); ok {
		return recs, nil
	}

	gen := e.cache.begin()
	ch := e.group.DoChan("open", func() (interface{}, error) {
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), FetchTimeout)
		defer cancel()
		recs, err := e.fetchOpen(fetchCtx)
		if err != nil {
			return nil, err
		}
		e.cache.put(gen, recs, e.now())
		return recs, nil
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return cloneRecords(res.Val.([]auction.Record)), nil
	}
}

// OpenListings is ListOpenAuctions with minimum bid and time remaining
// derived at the current instant.
func (e *Engine) OpenListings(ctx context.Context) ([]auction.Listing, error) {
	recs, err := e.ListOpenAuctions(ctx)
	if err != nil {
		return nil, err
	}
	now := e.now()
	out := make([]auction.Listing, 0, len(recs))
	for _, r := range recs {
		l, err := auction.Describe(r, now)
		if err != nil {
			e.log.Warn("skipping auction", zap.Uint64("auction_id", r.AuctionID), zap.Error(err))
			continue
		}
		out = append(out, l)
	}
	return out, nil
}

// PendingRefund returns what the marketplace owes addr for outbid bids.
func (e *Engine) PendingRefund(ctx context.Context, addr auction.Address) (*uint256.Int, error) {
	return e.u256Query(ctx, e.marketplace, MsgPendingRefund, scale.AppendAddress(nil, addr))
}

// PendingPayout returns what the marketplace owes addr from settled sales.
func (e *Engine) PendingPayout(ctx context.Context, addr auction.Address) (*uint256.Int, error) {
	return e.u256Query(ctx, e.marketplace, MsgPendingPayout, scale.AppendAddress(nil, addr))
}

// Allowance returns how much spender may move from owner's balance of token.
func (e *Engine) Allowance(ctx context.Context, token, owner, spender auction.Address) (*uint256.Int, error) {
	return e.u256Query(ctx, token, MsgAllowance, scale.AppendAddress(nil, owner), scale.AppendAddress(nil, spender))
}

// BalanceOf returns owner's balance of token.
func (e *Engine) BalanceOf(ctx context.Context, token, owner auction.Address) (*uint256.Int, error) {
	return e.u256Query(ctx, token, MsgBalanceOf, scale.AppendAddress(nil, owner))
}

// --- internal ---

func (e *Engine) fetchOpen(ctx context.Context) ([]auction.Record, error) {
	var open []auction.Record
	err := e.withConn(ctx, func(conn chain.Conn) error {
		count, err := e.auctionCount(ctx, conn)
		if err != nil {
			return err
		}
		for id := uint64(0); id < count; id++ {
			if err := ctx.Err(); err != nil {
				return err
			}
			reply, err := e.query(ctx, conn, e.marketplace, MsgGetAuction, scale.AppendU64(nil, id))
			if errors.Is(err, chain.ErrReverted) {
				e.log.Warn("skipping auction", zap.Uint64("auction_id", id), zap.Error(err))
				continue
			}
			if err != nil {
				return fmt.Errorf("querying auction %d: %w", id, err)
			}
			rec, err := scale.DecodeAuctionReply(reply)
			if err != nil {
				e.log.Warn("skipping undecodable auction", zap.Uint64("auction_id", id), zap.Error(err))
				continue
			}
			if rec == nil || rec.Settled {
				continue
			}
			open = append(open, *rec)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.log.Debug("listed open auctions", zap.Int("open", len(open)))
	return open, nil
}

func (e *Engine) auctionCount(ctx context.Context, conn chain.Conn) (uint64, error) {
	reply, err := e.query(ctx, conn, e.marketplace, MsgAuctionCount)
	if err != nil {
		return 0, fmt.Errorf("querying auction count: %w", err)
	}
	count, err := scale.DecodeU64Reply(reply)
	if err != nil {
		return 0, fmt.Errorf("auction count: %w", err)
	}
	return count, nil
}

func (e *Engine) u256Query(ctx context.Context, dest auction.Address, msg Message, args ...[]byte) (*uint256.Int, error) {
	var v *uint256.Int
	err := e.withConn(ctx, func(conn chain.Conn) error {
		reply, err := e.query(ctx, conn, dest, msg, args...)
		if err != nil {
			return fmt.Errorf("querying %s: %w", msg.Name, err)
		}
		v, err = scale.DecodeU256Reply(reply)
		if err != nil {
			return fmt.Errorf("%s: %w", msg.Name, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return v, nil
}

func (e *Engine) query(ctx context.Context, conn chain.Conn, dest auction.Address, msg Message, args ...[]byte) ([]byte, error) {
	return conn.Call(ctx, chain.CallRequest{
		Origin: e.origin,
		Dest:   dest,
		Input:  msg.Encode(args...),
	})
}

// withConn acquires a connection, runs fn and always releases it.
func (e *Engine) withConn(ctx context.Context, fn func(conn chain.Conn) error) error {
	conn, err := e.dialer.Dial(ctx)
	if err != nil {
		return fmt.Errorf("acquiring chain connection: %w", err)
	}
	defer func() {
		if cerr := conn.Close(); cerr != nil {
			e.log.Debug("closing chain connection", zap.Error(cerr))
		}
	}()
	return fn(conn)
}
