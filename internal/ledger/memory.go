package ledger

import (
	"context"
	"maps"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// MemoryStore is an in-process ledger. Transactions run one at a time
// against a staged copy that replaces the live state on commit.
type MemoryStore struct {
	mu          sync.Mutex
	accounts    map[string]Account
	withdrawals map[string]Withdrawal
	audit       []AuditEntry
	now         func() time.Time
}

// NewMemoryStore creates an empty ledger.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		accounts:    make(map[string]Account),
		withdrawals: make(map[string]Withdrawal),
		now:         time.Now,
	}
}

func (s *MemoryStore) InTx(ctx context.Context, fn func(tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memTx{
		accounts:    maps.Clone(s.accounts),
		withdrawals: maps.Clone(s.withdrawals),
		now:         s.now,
	}
	if err := fn(tx); err != nil {
		return err
	}
	s.accounts = tx.accounts
	s.withdrawals = tx.withdrawals
	s.audit = append(s.audit, tx.audit...)
	return nil
}

func (s *MemoryStore) Account(ctx context.Context, holderID string) (*Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[holderID]
	if !ok {
		return nil, ErrAccountNotFound
	}
	return &a, nil
}

func (s *MemoryStore) PutAccount(ctx context.Context, a *Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	if prev, ok := s.accounts[a.HolderID]; ok {
		a.CreatedAt = prev.CreatedAt
	}
	touch(&a.CreatedAt, now)
	a.UpdatedAt = now
	s.accounts[a.HolderID] = *a
	return nil
}

func (s *MemoryStore) Withdrawal(ctx context.Context, id string) (*Withdrawal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.withdrawals[id]
	if !ok {
		return nil, ErrWithdrawalNotFound
	}
	return &w, nil
}

func (s *MemoryStore) Audit(ctx context.Context, withdrawalID string) ([]AuditEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []AuditEntry
	for _, e := range s.audit {
		if e.WithdrawalID == withdrawalID {
			out = append(out, e)
		}
	}
	return out, nil
}

type memTx struct {
	accounts    map[string]Account
	withdrawals map[string]Withdrawal
	audit       []AuditEntry
	now         func() time.Time
}

// The store mutex is held for the whole transaction, so locking is implicit.

func (t *memTx) LockAccount(holderID string) (*Account, error) {
	a, ok := t.accounts[holderID]
	if !ok {
		return nil, ErrAccountNotFound
	}
	return &a, nil
}

func (t *memTx) CreateAccount(a *Account) error {
	if _, ok := t.accounts[a.HolderID]; ok {
		return ErrDuplicateAccount
	}
	now := t.now()
	touch(&a.CreatedAt, now)
	a.UpdatedAt = now
	t.accounts[a.HolderID] = *a
	return nil
}

func (t *memTx) LockWithdrawal(id string) (*Withdrawal, error) {
	w, ok := t.withdrawals[id]
	if !ok {
		return nil, ErrWithdrawalNotFound
	}
	return &w, nil
}

func (t *memTx) PendingTotal(holderID string) (decimal.Decimal, error) {
	total := decimal.Zero
	for _, w := range t.withdrawals {
		if w.WalletID == holderID && w.Status == StatusPending {
			total = total.Add(w.Amount)
		}
	}
	return total, nil
}

func (t *memTx) CreateWithdrawal(w *Withdrawal) error {
	if _, ok := t.withdrawals[w.ID]; ok {
		return ErrDuplicateWithdrawal
	}
	now := t.now()
	touch(&w.CreatedAt, now)
	w.UpdatedAt = now
	t.withdrawals[w.ID] = *w
	return nil
}

func (t *memTx) SaveWithdrawal(w *Withdrawal) error {
	if _, ok := t.withdrawals[w.ID]; !ok {
		return ErrWithdrawalNotFound
	}
	w.UpdatedAt = t.now()
	t.withdrawals[w.ID] = *w
	return nil
}

func (t *memTx) SaveAccount(a *Account) error {
	if _, ok := t.accounts[a.HolderID]; !ok {
		return ErrAccountNotFound
	}
	a.UpdatedAt = t.now()
	t.accounts[a.HolderID] = *a
	return nil
}

func (t *memTx) AppendAudit(e *AuditEntry) error {
	touch(&e.CreatedAt, t.now())
	t.audit = append(t.audit, *e)
	return nil
}

func (t *memTx) ExpiredPending(beforeMs int64, limit int) ([]Withdrawal, error) {
	var out []Withdrawal
	for _, w := range t.withdrawals {
		if w.Status == StatusPending && w.ExpiryMs < beforeMs {
			out = append(out, w)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ExpiryMs != out[j].ExpiryMs {
			return out[i].ExpiryMs < out[j].ExpiryMs
		}
		return out[i].ID < out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
