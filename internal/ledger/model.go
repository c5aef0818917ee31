package ledger

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Status is the lifecycle state of a withdrawal.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusConfirmed Status = "CONFIRMED"
	StatusFailed    Status = "FAILED"
	StatusCancelled Status = "CANCELLED"
)

// IsTerminal reports whether no further transition is allowed.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusConfirmed, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// Audit actions.
const (
	ActionRequested = "requested"
	ActionConfirmed = "confirmed"
	ActionFailed    = "failed"
	ActionCancelled = "cancelled"
	ActionExpired   = "expired"
)

// Account is a holder's off-chain balance. Amounts are stored as decimal
// strings so no backend rounds them.
type Account struct {
	HolderID  string          `gorm:"primaryKey;size:64"`
	Address   string          `gorm:"size:66"` // connected on-chain address, empty if none
	Balance   decimal.Decimal `gorm:"type:varchar(80);not null"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Withdrawal is the ledger row backing one issued authorization.
type Withdrawal struct {
	ID            string          `gorm:"primaryKey;size:66"`
	WalletID      string          `gorm:"index;size:64;not null"`
	Holder        string          `gorm:"size:66;not null"`
	Amount        decimal.Decimal `gorm:"type:varchar(80);not null"`
	AmountRaw     string          `gorm:"size:80;not null"`
	Status        Status          `gorm:"index;size:16;not null"`
	TxHash        string          `gorm:"size:130"`
	FailureReason string          `gorm:"size:255"`
	ExpiryMs      int64           `gorm:"index;not null"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
	ConfirmedAt   *time.Time
}

// AuditEntry records one state transition.
type AuditEntry struct {
	ID           uuid.UUID       `gorm:"type:varchar(36);primaryKey"`
	WithdrawalID string          `gorm:"index;size:66;not null"`
	HolderID     string          `gorm:"size:64;not null"`
	Action       string          `gorm:"size:16;not null"`
	Amount       decimal.Decimal `gorm:"type:varchar(80);not null"`
	BalanceAfter decimal.Decimal `gorm:"type:varchar(80);not null"`
	CreatedAt    time.Time
}
