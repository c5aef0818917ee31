package api

import (
	"time"

	"github.com/Mohsinsiddi/auctionbridge/internal/auction"
	"github.com/Mohsinsiddi/auctionbridge/internal/ledger"
	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
)

// u256 values are sent as decimal strings; JSON numbers lose precision.
type auctionJSON struct {
	AuctionID         uint64           `json:"auction_id"`
	CollectionID      auction.Address  `json:"collection_id"`
	TokenID           uint64           `json:"token_id"`
	Seller            auction.Address  `json:"seller"`
	StartPrice        string           `json:"start_price"`
	MinBidIncrement   string           `json:"min_bid_increment"`
	HighestBid        string           `json:"highest_bid"`
	HighestBidder     *auction.Address `json:"highest_bidder"`
	EndTimeMs         uint64           `json:"end_time_ms"`
	ExtensionWindowMs uint64           `json:"extension_window_ms"`
	Settled           bool             `json:"settled"`
	MinimumBid        string           `json:"minimum_bid"`
	RemainingMs       int64            `json:"remaining_ms"`
	Ended             bool             `json:"ended"`
}

func toAuctionJSON(l auction.Listing) auctionJSON {
	return auctionJSON{
		AuctionID:         l.AuctionID,
		CollectionID:      l.CollectionID,
		TokenID:           l.TokenID,
		Seller:            l.Seller,
		StartPrice:        l.StartPrice.Dec(),
		MinBidIncrement:   l.MinBidIncrement.Dec(),
		HighestBid:        l.HighestBid.Dec(),
		HighestBidder:     l.HighestBidder,
		EndTimeMs:         l.EndTimeMs,
		ExtensionWindowMs: l.ExtensionWindowMs,
		Settled:           l.Settled,
		MinimumBid:        l.MinimumBid.Dec(),
		RemainingMs:       l.Remaining.Milliseconds(),
		Ended:             l.Ended,
	}
}

type balanceJSON struct {
	Address auction.Address `json:"address"`
	Amount  string          `json:"amount"`
}

func toBalanceJSON(addr auction.Address, v *uint256.Int) balanceJSON {
	return balanceJSON{Address: addr, Amount: v.Dec()}
}

type withdrawalRequest struct {
	HolderID string          `json:"holder_id"`
	Amount   decimal.Decimal `json:"amount"`
}

type confirmRequest struct {
	TxHash string          `json:"tx_hash"`
	Amount decimal.Decimal `json:"amount"`
}

type confirmationJSON struct {
	WithdrawalID string `json:"withdrawal_id"`
	TxHash       string `json:"tx_hash"`
	Amount       string `json:"amount"`
	NewBalance   string `json:"new_balance"`
}

type withdrawalJSON struct {
	ID            string        `json:"withdrawal_id"`
	WalletID      string        `json:"wallet_id"`
	Holder        string        `json:"holder"`
	Amount        string        `json:"amount"`
	AmountRaw     string        `json:"amount_raw"`
	Status        ledger.Status `json:"status"`
	TxHash        string        `json:"tx_hash,omitempty"`
	FailureReason string        `json:"failure_reason,omitempty"`
	Expiry        int64         `json:"expiry"`
	CreatedAt     time.Time     `json:"created_at"`
	ConfirmedAt   *time.Time    `json:"confirmed_at,omitempty"`
}

func toWithdrawalJSON(w *ledger.Withdrawal) withdrawalJSON {
	return withdrawalJSON{
		ID:            w.ID,
		WalletID:      w.WalletID,
		Holder:        w.Holder,
		Amount:        w.Amount.String(),
		AmountRaw:     w.AmountRaw,
		Status:        w.Status,
		TxHash:        w.TxHash,
		FailureReason: w.FailureReason,
		Expiry:        w.ExpiryMs,
		CreatedAt:     w.CreatedAt,
		ConfirmedAt:   w.ConfirmedAt,
	}
}
