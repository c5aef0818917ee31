package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
)

// Supported database drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// GormStore is the ledger on a SQL database.
type GormStore struct {
	db *gorm.DB
}

// Open connects to the database, migrates the schema and returns the store.
// SQLite is limited to one connection so transactions serialize.
func Open(ctx context.Context, driver, dsn string, log *zap.Logger) (*GormStore, error) {
	var dialector gorm.Dialector
	switch driver {
	case DriverPostgres:
		dialector = postgres.Open(dsn)
	case DriverSQLite:
		dialector = sqlite.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported ledger driver %q", driver)
	}

	if log == nil {
		log = zap.NewNop()
	}
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.New(zap.NewStdLog(log.Named("gorm")), gormlogger.Config{
			SlowThreshold:             500 * time.Millisecond,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
		}),
	})
	if err != nil {
		return nil, fmt.Errorf("opening %s ledger: %w", driver, err)
	}

	if driver == DriverSQLite {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("sqlite handle: %w", err)
		}
		sqlDB.SetMaxOpenConns(1)
	}

	s := NewGormStore(db)
	if err := s.Migrate(ctx); err != nil {
		s.Close() //nolint:errcheck
		return nil, err
	}
	return s, nil
}

// NewGormStore wraps an open gorm handle.
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// Migrate creates or updates the ledger tables.
func (s *GormStore) Migrate(ctx context.Context) error {
	if err := s.db.WithContext(ctx).AutoMigrate(&Account{}, &Withdrawal{}, &AuditEntry{}); err != nil {
		return fmt.Errorf("migrating ledger: %w", err)
	}
	return nil
}

// Close closes the underlying connection pool.
func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *GormStore) InTx(ctx context.Context, fn func(tx Tx) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormTx{db: tx})
	})
}

func (s *GormStore) Account(ctx context.Context, holderID string) (*Account, error) {
	var a Account
	err := s.db.WithContext(ctx).Where("holder_id = ?", holderID).First(&a).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading account %s: %w", holderID, err)
	}
	return &a, nil
}

// PutAccount creates the account or overwrites its address and balance.
func (s *GormStore) PutAccount(ctx context.Context, a *Account) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing Account
		err := tx.Where("holder_id = ?", a.HolderID).First(&existing).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return tx.Create(a).Error
		}
		if err != nil {
			return err
		}
		a.CreatedAt = existing.CreatedAt
		return tx.Save(a).Error
	})
	if err != nil {
		return fmt.Errorf("saving account %s: %w", a.HolderID, err)
	}
	return nil
}

func (s *GormStore) Withdrawal(ctx context.Context, id string) (*Withdrawal, error) {
	var w Withdrawal
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&w).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrWithdrawalNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading withdrawal %s: %w", id, err)
	}
	return &w, nil
}

func (s *GormStore) Audit(ctx context.Context, withdrawalID string) ([]AuditEntry, error) {
	var out []AuditEntry
	err := s.db.WithContext(ctx).
		Where("withdrawal_id = ?", withdrawalID).
		Order("created_at, id").
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("loading audit for %s: %w", withdrawalID, err)
	}
	return out, nil
}

type gormTx struct {
	db *gorm.DB
}

// forUpdate adds SELECT ... FOR UPDATE where the database has row locks.
// SQLite has none; its single connection already serializes writers.
func (t *gormTx) forUpdate() *gorm.DB {
	if t.db.Dialector.Name() == DriverSQLite {
		return t.db
	}
	return t.db.Clauses(clause.Locking{Strength: "UPDATE"})
}

func (t *gormTx) LockAccount(holderID string) (*Account, error) {
	var a Account
	err := t.forUpdate().Where("holder_id = ?", holderID).First(&a).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("locking account %s: %w", holderID, err)
	}
	return &a, nil
}

func (t *gormTx) CreateAccount(a *Account) error {
	var n int64
	if err := t.db.Model(&Account{}).Where("holder_id = ?", a.HolderID).Count(&n).Error; err != nil {
		return fmt.Errorf("checking account %s: %w", a.HolderID, err)
	}
	if n > 0 {
		return ErrDuplicateAccount
	}
	if err := t.db.Create(a).Error; err != nil {
		return fmt.Errorf("creating account %s: %w", a.HolderID, err)
	}
	return nil
}

func (t *gormTx) LockWithdrawal(id string) (*Withdrawal, error) {
	var w Withdrawal
	err := t.forUpdate().Where("id = ?", id).First(&w).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrWithdrawalNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("locking withdrawal %s: %w", id, err)
	}
	return &w, nil
}

func (t *gormTx) PendingTotal(holderID string) (decimal.Decimal, error) {
	var rows []Withdrawal
	err := t.db.Select("amount").
		Where("wallet_id = ? AND status = ?", holderID, StatusPending).
		Find(&rows).Error
	if err != nil {
		return decimal.Zero, fmt.Errorf("summing pending for %s: %w", holderID, err)
	}
	total := decimal.Zero
	for _, w := range rows {
		total = total.Add(w.Amount)
	}
	return total, nil
}

func (t *gormTx) CreateWithdrawal(w *Withdrawal) error {
	var n int64
	if err := t.db.Model(&Withdrawal{}).Where("id = ?", w.ID).Count(&n).Error; err != nil {
		return fmt.Errorf("checking withdrawal %s: %w", w.ID, err)
	}
	if n > 0 {
		return ErrDuplicateWithdrawal
	}
	if err := t.db.Create(w).Error; err != nil {
		return fmt.Errorf("creating withdrawal %s: %w", w.ID, err)
	}
	return nil
}

func (t *gormTx) SaveWithdrawal(w *Withdrawal) error {
	res := t.db.Model(&Withdrawal{}).Where("id = ?", w.ID).Select("*").Omit("created_at").Updates(w)
	if res.Error != nil {
		return fmt.Errorf("saving withdrawal %s: %w", w.ID, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrWithdrawalNotFound
	}
	return nil
}

func (t *gormTx) SaveAccount(a *Account) error {
	res := t.db.Model(&Account{}).Where("holder_id = ?", a.HolderID).Select("*").Omit("created_at").Updates(a)
	if res.Error != nil {
		return fmt.Errorf("saving account %s: %w", a.HolderID, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrAccountNotFound
	}
	return nil
}

func (t *gormTx) AppendAudit(e *AuditEntry) error {
	if err := t.db.Create(e).Error; err != nil {
		return fmt.Errorf("appending audit for %s: %w", e.WithdrawalID, err)
	}
	return nil
}

func (t *gormTx) ExpiredPending(beforeMs int64, limit int) ([]Withdrawal, error) {
	q := t.forUpdate().
		Where("status = ? AND expiry_ms < ?", StatusPending, beforeMs).
		Order("expiry_ms, id")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var out []Withdrawal
	if err := q.Find(&out).Error; err != nil {
		return nil, fmt.Errorf("finding expired withdrawals: %w", err)
	}
	return out, nil
}
