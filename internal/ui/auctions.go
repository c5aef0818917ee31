package ui

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/Mohsinsiddi/auctionbridge/internal/auction"
	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
)

// FormatAmount renders base units as a decimal token amount.
func FormatAmount(v *uint256.Int, decimals int32) string {
	if v == nil {
		return "-"
	}
	return decimal.NewFromBigInt(v.ToBig(), -decimals).String()
}

// FormatRemaining renders a countdown: "ended", "45s", "12m05s", "3h07m", "2d04h".
func FormatRemaining(d time.Duration) string {
	if d <= 0 {
		return "ended"
	}
	d = d.Truncate(time.Second)
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm%02ds", int(d.Minutes()), int(d.Seconds())%60)
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh%02dm", int(d.Hours()), int(d.Minutes())%60)
	}
	days := int(d.Hours()) / 24
	return fmt.Sprintf("%dd%02dh", days, int(d.Hours())%24)
}

func bidderLabel(r *auction.Record) string {
	if r.HighestBidder == nil {
		return "no bids"
	}
	return TruncateAddr(r.HighestBidder.Hex())
}

// AuctionTable renders open listings.
func AuctionTable(listings []auction.Listing, decimals int32) string {
	t := NewTable([]Column{
		{Title: "ID", Width: 6, Right: true},
		{Title: "Token", Width: 8, Right: true},
		{Title: "Seller", Width: 13},
		{Title: "Highest bid", Width: 16, Right: true},
		{Title: "Bidder", Width: 13},
		{Title: "Min bid", Width: 16, Right: true},
		{Title: "Ends in", Width: 8},
	})
	for _, l := range listings {
		t.AddRow(Row{
			strconv.FormatUint(l.AuctionID, 10),
			strconv.FormatUint(l.TokenID, 10),
			TruncateAddr(l.Seller.Hex()),
			FormatAmount(&l.HighestBid, decimals),
			bidderLabel(&l.Record),
			FormatAmount(l.MinimumBid, decimals),
			FormatRemaining(l.Remaining),
		})
	}
	return t.Render()
}

// AuctionItems turns listings into picker entries whose Value is the id.
func AuctionItems(listings []auction.Listing, decimals int32) []PickerItem {
	items := make([]PickerItem, 0, len(listings))
	for _, l := range listings {
		items = append(items, PickerItem{
			Label:    fmt.Sprintf("#%d  token %d", l.AuctionID, l.TokenID),
			SubLabel: fmt.Sprintf("min %s · %s", FormatAmount(l.MinimumBid, decimals), FormatRemaining(l.Remaining)),
			Value:    strconv.FormatUint(l.AuctionID, 10),
		})
	}
	return items
}

// AuctionBlock renders one auction in detail.
func AuctionBlock(l auction.Listing, decimals int32) string {
	state := "open"
	switch {
	case l.Settled:
		state = "settled"
	case l.Ended:
		state = "ended, awaiting settlement"
	}
	return KeyValueBlock(fmt.Sprintf("Auction #%d", l.AuctionID), [][2]string{
		{"Collection", l.CollectionID.Hex()},
		{"Token", strconv.FormatUint(l.TokenID, 10)},
		{"Seller", l.Seller.Hex()},
		{"Start price", FormatAmount(&l.StartPrice, decimals)},
		{"Increment", FormatAmount(&l.MinBidIncrement, decimals)},
		{"Highest bid", FormatAmount(&l.HighestBid, decimals)},
		{"Highest bidder", bidderLabel(&l.Record)},
		{"Minimum next bid", FormatAmount(l.MinimumBid, decimals)},
		{"Ends", l.EndTime().UTC().Format(time.RFC3339)},
		{"Time left", FormatRemaining(l.Remaining)},
		{"Extension window", (time.Duration(l.ExtensionWindowMs) * time.Millisecond).String()},
		{"State", state},
	})
}

// BidPlanBlock renders what an intended bid needs.
func BidPlanBlock(id uint64, bid *uint256.Int, plan auction.BidPlan, decimals int32) string {
	steps := make([]string, 0, len(plan.Steps))
	for _, s := range plan.Steps {
		steps = append(steps, s.String())
	}
	pairs := [][2]string{
		{"Auction", "#" + strconv.FormatUint(id, 10)},
		{"Your bid", FormatAmount(bid, decimals)},
		{"Minimum bid", FormatAmount(plan.MinimumBid, decimals)},
	}
	if plan.Ready() {
		pairs = append(pairs, [2]string{"Steps", strings.Join(steps, " → ")})
	} else {
		pairs = append(pairs, [2]string{"Blocked", plan.Blocker.Message()})
	}
	return KeyValueBlock("Bid plan", pairs)
}
