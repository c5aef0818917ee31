// Package api exposes auction queries and the withdrawal flow over HTTP.
package api

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/Mohsinsiddi/auctionbridge/internal/auction"
	"github.com/Mohsinsiddi/auctionbridge/internal/config"
	"github.com/Mohsinsiddi/auctionbridge/internal/ledger"
	"github.com/Mohsinsiddi/auctionbridge/internal/withdrawal"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const requestTimeout = 30 * time.Second

// Auctions is the read side served under /auctions and /accounts.
type Auctions interface {
	OpenListings(ctx context.Context) ([]auction.Listing, error)
	InvalidateListings()
	GetAuction(ctx context.Context, id uint64) (*auction.Record, error)
	PendingRefund(ctx context.Context, addr auction.Address) (*uint256.Int, error)
	PendingPayout(ctx context.Context, addr auction.Address) (*uint256.Int, error)
}

// Withdrawals is the withdrawal service served under /withdrawals.
type Withdrawals interface {
	Request(ctx context.Context, holderID string, amount decimal.Decimal) (*withdrawal.Authorization, error)
	Confirm(ctx context.Context, id, txHash string, amount decimal.Decimal) (*withdrawal.Confirmation, error)
	Cancel(ctx context.Context, id string) error
	Get(ctx context.Context, id string) (*ledger.Withdrawal, error)
}

// Deps wires the router.
type Deps struct {
	Auctions       Auctions
	Withdrawals    Withdrawals
	Log            *zap.Logger
	Now            func() time.Time
	AllowedOrigins []string
}

// NewRouter builds the HTTP handler.
func NewRouter(d Deps) http.Handler {
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	if d.Now == nil {
		d.Now = time.Now
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(d.Log))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(requestTimeout))
	if len(d.AllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: d.AllowedOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Accept", "Content-Type"},
			MaxAge:         300,
		}))
	}

	r.Get("/healthz", Health())

	r.Route("/auctions", func(r chi.Router) {
		r.Get("/", ListAuctions(d.Auctions, d.Log))
		r.Get("/{id}", GetAuction(d.Auctions, d.Now, d.Log))
	})
	r.Route("/accounts/{address}", func(r chi.Router) {
		r.Get("/refund", PendingRefund(d.Auctions, d.Log))
		r.Get("/payout", PendingPayout(d.Auctions, d.Log))
	})
	r.Route("/withdrawals", func(r chi.Router) {
		r.Post("/", RequestWithdrawal(d.Withdrawals, d.Log))
		r.Get("/{id}", GetWithdrawal(d.Withdrawals, d.Log))
		r.Post("/{id}/confirm", ConfirmWithdrawal(d.Withdrawals, d.Log))
		r.Post("/{id}/cancel", CancelWithdrawal(d.Withdrawals, d.Log))
	})
	return r
}

// Serve runs h on addr until ctx is done, then shuts down gracefully.
func Serve(ctx context.Context, addr string, h http.Handler, log *zap.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: config.ReadHeaderTimeout,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	log.Info("api listening", zap.String("addr", addr))

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), config.ShutdownTimeout)
	defer cancel()
	log.Info("api shutting down")
	return srv.Shutdown(shutdownCtx)
}

func requestLogger(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			defer func() {
				log.Debug("request",
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.Int("status", ww.Status()),
					zap.Duration("took", time.Since(start)),
					zap.String("request_id", middleware.GetReqID(r.Context())),
				)
			}()
			next.ServeHTTP(ww, r)
		})
	}
}
