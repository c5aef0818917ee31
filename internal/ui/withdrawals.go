package ui

import (
	"strconv"
	"time"

	"github.com/Mohsinsiddi/auctionbridge/internal/ledger"
	"github.com/Mohsinsiddi/auctionbridge/internal/withdrawal"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// AuthorizationBlock renders a freshly minted authorization.
func AuthorizationBlock(a *withdrawal.Authorization) string {
	return KeyValueBlock("Withdrawal authorized", [][2]string{
		{"Withdrawal ID", a.ID()},
		{"Holder", a.Holder.Hex()},
		{"Amount", a.AmountHuman.String()},
		{"Amount (raw)", a.AmountRaw.Dec()},
		{"Contract", a.ContractAddress.Hex()},
		{"Expires", a.ExpiresAt().UTC().Format(time.RFC3339)},
		{"Signer", a.Signer.Hex()},
		{"Signature", hexutil.Encode(a.Signature)},
	})
}

// WithdrawalBlock renders a ledger row.
func WithdrawalBlock(w *ledger.Withdrawal) string {
	pairs := [][2]string{
		{"Withdrawal ID", w.ID},
		{"Holder ID", w.WalletID},
		{"Holder", w.Holder},
		{"Amount", w.Amount.String()},
		{"Status", Status(w.Status)},
		{"Expires", time.UnixMilli(w.ExpiryMs).UTC().Format(time.RFC3339)},
		{"Created", w.CreatedAt.UTC().Format(time.RFC3339)},
	}
	if w.TxHash != "" {
		pairs = append(pairs, [2]string{"Tx hash", w.TxHash})
	}
	if w.ConfirmedAt != nil {
		pairs = append(pairs, [2]string{"Confirmed", w.ConfirmedAt.UTC().Format(time.RFC3339)})
	}
	if w.FailureReason != "" {
		pairs = append(pairs, [2]string{"Reason", w.FailureReason})
	}
	return KeyValueBlock("Withdrawal", pairs)
}

// AuditTable renders a withdrawal's history.
func AuditTable(entries []ledger.AuditEntry) string {
	t := NewTable([]Column{
		{Title: "When", Width: 20},
		{Title: "Action", Width: 10},
		{Title: "Amount", Width: 18, Right: true},
		{Title: "Balance after", Width: 18, Right: true},
	})
	for _, e := range entries {
		t.AddRow(Row{
			e.CreatedAt.UTC().Format(time.RFC3339),
			e.Action,
			e.Amount.String(),
			e.BalanceAfter.String(),
		})
	}
	return t.Render()
}

// BalanceBlock renders a holder's ledger position.
func BalanceBlock(b *withdrawal.Balance) string {
	return KeyValueBlock("Account "+strconv.Quote(b.HolderID), [][2]string{
		{"Address", b.Address},
		{"Balance", b.Balance.String()},
		{"Held (pending)", b.Held.String()},
		{"Available", b.Available.String()},
	})
}
