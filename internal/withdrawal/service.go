// Package withdrawal issues signed withdrawal authorizations against the
// off-chain ledger and settles them once the on-chain transfer is reported.
package withdrawal

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/Mohsinsiddi/auctionbridge/internal/auction"
	"github.com/Mohsinsiddi/auctionbridge/internal/ledger"
	"github.com/Mohsinsiddi/auctionbridge/internal/signer"
	"github.com/ethereum/go-ethereum/common"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	DefaultTTL      = 10 * time.Minute
	DefaultDecimals = 18

	// idAttempts bounds retries on a (practically impossible) id collision.
	idAttempts = 3
	sweepBatch = 500
)

// Failure reasons stored on FAILED rows.
const (
	ReasonAmountMismatch      = "amount mismatch"
	ReasonInsufficientBalance = "insufficient balance at confirmation"
	ReasonExpired             = "expired"
	ReasonCancelled           = "cancelled by holder"
)

// Signer is the key the contract trusts.
type Signer interface {
	Address() common.Address
	SignDigest(digest []byte) ([]byte, error)
}

// Config fixes the parameters baked into every authorization.
type Config struct {
	Contract   auction.Address
	DomainTag  string        `validate:"required,printascii,max=64"`
	Decimals   int32         `validate:"gte=0,lte=36"`
	TTL        time.Duration `validate:"gte=1s,lte=1h"`
	SweepGrace time.Duration `validate:"gte=0"`
}

// DefaultConfig returns a Config for the given withdrawal contract.
func DefaultConfig(contract auction.Address) Config {
	return Config{
		Contract:  contract,
		DomainTag: DefaultDomainTag,
		Decimals:  DefaultDecimals,
		TTL:       DefaultTTL,
	}
}

// Service is safe for concurrent use. All mutual exclusion lives in the
// ledger's row locks, so several instances may share one database.
type Service struct {
	store  ledger.Store
	signer Signer
	cfg    Config
	now    func() time.Time
	random io.Reader
	log    *zap.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithRandom overrides the id source.
func WithRandom(r io.Reader) Option {
	return func(s *Service) { s.random = r }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.log = l
		}
	}
}

// New validates cfg and builds a Service. It refuses to start without a
// signing key.
func New(store ledger.Store, sig Signer, cfg Config, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.New("withdrawal: nil ledger store")
	}
	if sig == nil {
		return nil, fmt.Errorf("withdrawal: %w", signer.ErrKeyUnavailable)
	}
	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("withdrawal: invalid config: %w", err)
	}
	if cfg.Contract.IsZero() {
		return nil, errors.New("withdrawal: contract address required")
	}
	s := &Service{
		store:  store,
		signer: sig,
		cfg:    cfg,
		now:    time.Now,
		random: rand.Reader,
		log:    zap.NewNop(),
	}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// SignerAddress is the address the contract must be configured to trust.
func (s *Service) SignerAddress() common.Address { return s.signer.Address() }

// Config returns the service configuration.
func (s *Service) Config() Config { return s.cfg }

// Request reserves amount from the holder's available balance, records a
// PENDING withdrawal and returns the signed authorization. Nothing is
// returned unless the row was committed.
func (s *Service) Request(ctx context.Context, holderID string, amount decimal.Decimal) (*Authorization, error) {
	holderID = strings.TrimSpace(holderID)
	if holderID == "" {
		return nil, &ValidationError{Field: "holder_id", Reason: "required"}
	}
	if !amount.IsPositive() {
		return nil, &ValidationError{Field: "amount", Reason: "must be greater than zero"}
	}
	raw, err := ToBaseUnits(amount, s.cfg.Decimals)
	if err != nil {
		return nil, &ValidationError{Field: "amount", Reason: err.Error()}
	}

	var auth *Authorization
	err = s.store.InTx(ctx, func(tx ledger.Tx) error {
		acct, err := tx.LockAccount(holderID)
		if errors.Is(err, ledger.ErrAccountNotFound) {
			return &ValidationError{Field: "holder_id", Reason: "unknown holder " + holderID}
		}
		if err != nil {
			return err
		}
		if acct.Address == "" {
			return fmt.Errorf("%w: %s", ErrWalletNotConnected, holderID)
		}
		holder, err := auction.ParseAddress(acct.Address)
		if err != nil {
			return fmt.Errorf("%w: stored address for %s: %v", ErrWalletNotConnected, holderID, err)
		}

		held, err := tx.PendingTotal(holderID)
		if err != nil {
			return err
		}
		available := ledger.Available(acct.Balance, held)
		if amount.GreaterThan(available) {
			return fmt.Errorf("%w: requested %s, available %s", ErrInsufficientBalance, amount, available)
		}

		expiry := s.now().Add(s.cfg.TTL).UnixMilli()
		w := &ledger.Withdrawal{
			WalletID:  holderID,
			Holder:    holder.Hex(),
			Amount:    amount,
			AmountRaw: raw.Dec(),
			Status:    ledger.StatusPending,
			ExpiryMs:  expiry,
		}
		var id [IDLen]byte
		for attempt := 1; ; attempt++ {
			if id, err = s.newID(); err != nil {
				return err
			}
			w.ID = FormatID(id)
			err = tx.CreateWithdrawal(w)
			if errors.Is(err, ledger.ErrDuplicateWithdrawal) && attempt < idAttempts {
				continue
			}
			if err != nil {
				return err
			}
			break
		}
		if err := s.audit(tx, w, ledger.ActionRequested, acct.Balance); err != nil {
			return err
		}

		a := &Authorization{
			WithdrawalID:    id,
			Holder:          holder,
			AmountHuman:     amount,
			AmountRaw:       raw,
			Expiry:          uint64(expiry),
			ContractAddress: s.cfg.Contract,
			Signer:          s.signer.Address(),
			DomainTag:       s.cfg.DomainTag,
		}
		sig, err := s.signer.SignDigest(Digest(a.Payload()))
		if err != nil {
			return fmt.Errorf("signing withdrawal: %w", err)
		}
		a.Signature = sig
		auth = a
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("withdrawal authorized",
		zap.String("withdrawal_id", auth.ID()),
		zap.String("holder_id", holderID),
		zap.String("amount", amount.String()),
		zap.Uint64("expiry", auth.Expiry),
	)
	return auth, nil
}

// Confirmation is the result of a successful Confirm.
type Confirmation struct {
	WithdrawalID string
	TxHash       string
	Amount       decimal.Decimal
	NewBalance   decimal.Decimal
}

// Confirm settles a PENDING withdrawal after the on-chain transfer. A
// mismatched amount or a balance that no longer covers it marks the row
// FAILED without debiting. Only the first confirmation of an id can
// succeed; later ones get a *TerminalStateError.
func (s *Service) Confirm(ctx context.Context, withdrawalID, txHash string, amount decimal.Decimal) (*Confirmation, error) {
	id := normalizeID(withdrawalID)
	txHash = strings.TrimSpace(txHash)
	if txHash == "" {
		return nil, &ValidationError{Field: "tx_hash", Reason: "required"}
	}

	var (
		result  *Confirmation
		outcome error
	)
	err := s.store.InTx(ctx, func(tx ledger.Tx) error {
		w, err := s.lockPending(tx, id)
		if err != nil {
			return err
		}
		acct, err := tx.LockAccount(w.WalletID)
		if err != nil {
			return err
		}

		if !amount.Equal(w.Amount) {
			outcome = fmt.Errorf("%w: authorized %s, reported %s", ErrAmountMismatch, w.Amount, amount)
			return s.fail(tx, w, ReasonAmountMismatch, ledger.ActionFailed, acct.Balance)
		}
		if acct.Balance.LessThan(w.Amount) {
			outcome = fmt.Errorf("%w: balance %s, withdrawal %s", ErrInsufficientBalance, acct.Balance, w.Amount)
			return s.fail(tx, w, ReasonInsufficientBalance, ledger.ActionFailed, acct.Balance)
		}

		acct.Balance = acct.Balance.Sub(w.Amount)
		if err := tx.SaveAccount(acct); err != nil {
			return err
		}
		now := s.now().UTC()
		w.Status = ledger.StatusConfirmed
		w.TxHash = txHash
		w.ConfirmedAt = &now
		if err := tx.SaveWithdrawal(w); err != nil {
			return err
		}
		if err := s.audit(tx, w, ledger.ActionConfirmed, acct.Balance); err != nil {
			return err
		}
		result = &Confirmation{WithdrawalID: id, TxHash: txHash, Amount: w.Amount, NewBalance: acct.Balance}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if outcome != nil {
		s.log.Warn("withdrawal failed", zap.String("withdrawal_id", id), zap.Error(outcome))
		return nil, outcome
	}

	s.log.Info("withdrawal confirmed",
		zap.String("withdrawal_id", id),
		zap.String("tx_hash", txHash),
		zap.String("balance", result.NewBalance.String()),
	)
	return result, nil
}

// Cancel releases a PENDING withdrawal's hold without touching the balance.
// The signed authorization stays valid on-chain until it expires.
func (s *Service) Cancel(ctx context.Context, withdrawalID string) error {
	id := normalizeID(withdrawalID)
	err := s.store.InTx(ctx, func(tx ledger.Tx) error {
		w, err := s.lockPending(tx, id)
		if err != nil {
			return err
		}
		acct, err := tx.LockAccount(w.WalletID)
		if err != nil {
			return err
		}
		w.Status = ledger.StatusCancelled
		w.FailureReason = ReasonCancelled
		if err := tx.SaveWithdrawal(w); err != nil {
			return err
		}
		return s.audit(tx, w, ledger.ActionCancelled, acct.Balance)
	})
	if err != nil {
		return err
	}
	s.log.Info("withdrawal cancelled", zap.String("withdrawal_id", id))
	return nil
}

// Get returns the ledger row for a withdrawal.
func (s *Service) Get(ctx context.Context, withdrawalID string) (*ledger.Withdrawal, error) {
	id := normalizeID(withdrawalID)
	w, err := s.store.Withdrawal(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", err, id)
	}
	return w, nil
}

// History returns a withdrawal's audit trail, oldest first.
func (s *Service) History(ctx context.Context, withdrawalID string) ([]ledger.AuditEntry, error) {
	return s.store.Audit(ctx, normalizeID(withdrawalID))
}

// Balance is a holder's ledger position.
type Balance struct {
	HolderID  string
	Address   string
	Balance   decimal.Decimal
	Held      decimal.Decimal
	Available decimal.Decimal
}

// Balance reports the holder's balance and how much is held by PENDING
// withdrawals.
func (s *Service) Balance(ctx context.Context, holderID string) (*Balance, error) {
	return LookupBalance(ctx, s.store, holderID)
}

// LookupBalance reads a holder's position without needing a signer.
func LookupBalance(ctx context.Context, store ledger.Store, holderID string) (*Balance, error) {
	var out *Balance
	err := store.InTx(ctx, func(tx ledger.Tx) error {
		acct, err := tx.LockAccount(holderID)
		if err != nil {
			return err
		}
		held, err := tx.PendingTotal(holderID)
		if err != nil {
			return err
		}
		out = &Balance{
			HolderID:  acct.HolderID,
			Address:   acct.Address,
			Balance:   acct.Balance,
			Held:      held,
			Available: ledger.Available(acct.Balance, held),
		}
		return nil
	})
	return out, err
}

// Sweep marks PENDING withdrawals whose expiry passed more than the
// configured grace ago as FAILED, releasing their holds. It returns how
// many rows it moved.
func (s *Service) Sweep(ctx context.Context) (int, error) {
	cutoff := s.now().Add(-s.cfg.SweepGrace).UnixMilli()
	total := 0
	for {
		n, err := s.sweepBatch(ctx, cutoff)
		total += n
		if err != nil {
			return total, err
		}
		if n < sweepBatch {
			break
		}
	}
	if total > 0 {
		s.log.Info("expired withdrawals swept", zap.Int("count", total))
	}
	return total, nil
}

func (s *Service) sweepBatch(ctx context.Context, cutoff int64) (int, error) {
	n := 0
	err := s.store.InTx(ctx, func(tx ledger.Tx) error {
		n = 0
		rows, err := tx.ExpiredPending(cutoff, sweepBatch)
		if err != nil {
			return err
		}
		for i := range rows {
			w := &rows[i]
			balance := decimal.Zero
			if acct, err := tx.LockAccount(w.WalletID); err == nil {
				balance = acct.Balance
			} else if !errors.Is(err, ledger.ErrAccountNotFound) {
				return err
			}
			if err := s.fail(tx, w, ReasonExpired, ledger.ActionExpired, balance); err != nil {
				return err
			}
			n++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return n, nil
}

func (s *Service) lockPending(tx ledger.Tx, id string) (*ledger.Withdrawal, error) {
	w, err := tx.LockWithdrawal(id)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", err, id)
	}
	if w.Status.IsTerminal() {
		return nil, &TerminalStateError{ID: id, Status: w.Status}
	}
	return w, nil
}

func (s *Service) fail(tx ledger.Tx, w *ledger.Withdrawal, reason, action string, balance decimal.Decimal) error {
	w.Status = ledger.StatusFailed
	w.FailureReason = reason
	if err := tx.SaveWithdrawal(w); err != nil {
		return err
	}
	return s.audit(tx, w, action, balance)
}

func (s *Service) audit(tx ledger.Tx, w *ledger.Withdrawal, action string, balance decimal.Decimal) error {
	return tx.AppendAudit(&ledger.AuditEntry{
		ID:           uuid.New(),
		WithdrawalID: w.ID,
		HolderID:     w.WalletID,
		Action:       action,
		Amount:       w.Amount,
		BalanceAfter: balance,
		CreatedAt:    s.now().UTC(),
	})
}

func (s *Service) newID() ([IDLen]byte, error) {
	var id [IDLen]byte
	if _, err := io.ReadFull(s.random, id[:]); err != nil {
		return id, fmt.Errorf("generating withdrawal id: %w", err)
	}
	return id, nil
}
