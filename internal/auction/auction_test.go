package auction

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func addr(b byte) Address {
	var a Address
	for i := range a {
		a[i] = b
	}
	return a
}

func u(n uint64) *uint256.Int { return uint256.NewInt(n) }

func openRecord() *Record {
	return &Record{
		AuctionID:       7,
		Seller:          addr(0x11),
		StartPrice:      *u(1000),
		MinBidIncrement: *u(50),
		EndTimeMs:       1_700_000_000_000,
	}
}

func withBid(r *Record, bid uint64, bidder Address) *Record {
	r.HighestBid = *u(bid)
	r.HighestBidder = &bidder
	return r
}

// ---------------------------------------------------------------------------
// Address
// ---------------------------------------------------------------------------

func TestParseAddressCanonicalLowercase(t *testing.T) {
	in := "0x" + strings.Repeat("AB", 32)
	a, err := ParseAddress(in)
	require.NoError(t, err)
	assert.Equal(t, "0x"+strings.Repeat("ab", 32), a.Hex())
}

func TestParseAddressWithoutPrefix(t *testing.T) {
	a, err := ParseAddress(strings.Repeat("01", 32))
	require.NoError(t, err)
	assert.Equal(t, addr(0x01), a)
}

func TestParseAddressWrongLength(t *testing.T) {
	_, err := ParseAddress("0x1234")
	assert.Error(t, err)
}

func TestParseAddressNotHex(t *testing.T) {
	_, err := ParseAddress("0x" + strings.Repeat("zz", 32))
	assert.Error(t, err)
}

func TestAddressJSONRoundTrip(t *testing.T) {
	a := addr(0xfe)
	data, err := json.Marshal(a)
	require.NoError(t, err)
	assert.Equal(t, `"0x`+strings.Repeat("fe", 32)+`"`, string(data))

	var back Address
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, a, back)
}

func TestAddressIsZero(t *testing.T) {
	assert.True(t, Address{}.IsZero())
	assert.False(t, addr(1).IsZero())
}

// ---------------------------------------------------------------------------
// Record
// ---------------------------------------------------------------------------

func TestIsEndedFlipsAtDeadline(t *testing.T) {
	r := openRecord()
	deadline := time.UnixMilli(int64(r.EndTimeMs))

	assert.False(t, r.IsEnded(deadline.Add(-time.Millisecond)))
	assert.True(t, r.IsEnded(deadline))
	assert.True(t, r.IsEnded(deadline.Add(time.Millisecond)))
}

func TestCheckBidStateNoBids(t *testing.T) {
	assert.NoError(t, openRecord().CheckBidState())
}

func TestCheckBidStateWithBid(t *testing.T) {
	assert.NoError(t, withBid(openRecord(), 1200, addr(2)).CheckBidState())
}

func TestCheckBidStateBidWithoutBidder(t *testing.T) {
	r := openRecord()
	r.HighestBid = *u(1)
	assert.ErrorIs(t, r.CheckBidState(), ErrInconsistentBid)
}

func TestCheckBidStateBidderWithoutBid(t *testing.T) {
	r := openRecord()
	b := addr(3)
	r.HighestBidder = &b
	assert.ErrorIs(t, r.CheckBidState(), ErrInconsistentBid)
}

// ---------------------------------------------------------------------------
// MinimumNextBid
// ---------------------------------------------------------------------------

func TestMinimumNextBidNoBidsIsStartPrice(t *testing.T) {
	got, err := MinimumNextBid(openRecord())
	require.NoError(t, err)
	assert.Equal(t, u(1000), got)
}

func TestMinimumNextBidAddsIncrement(t *testing.T) {
	got, err := MinimumNextBid(withBid(openRecord(), 1500, addr(2)))
	require.NoError(t, err)
	assert.Equal(t, u(1550), got)
}

func TestMinimumNextBidDoesNotAliasRecord(t *testing.T) {
	r := openRecord()
	got, err := MinimumNextBid(r)
	require.NoError(t, err)
	got.AddUint64(got, 1)
	assert.Equal(t, u(1000), &r.StartPrice)
}

func TestMinimumNextBidOverflow(t *testing.T) {
	r := openRecord()
	top := new(uint256.Int).SetAllOne()
	bidder := addr(2)
	r.HighestBid = *top
	r.HighestBidder = &bidder
	_, err := MinimumNextBid(r)
	assert.ErrorIs(t, err, ErrBidOverflow)
}

// ---------------------------------------------------------------------------
// TimeRemaining
// ---------------------------------------------------------------------------

func TestTimeRemaining(t *testing.T) {
	end := uint64(10_000)
	tests := []struct {
		name string
		now  int64
		want time.Duration
	}{
		{"well before", 4_000, 6 * time.Second},
		{"one ms before", 9_999, time.Millisecond},
		{"at deadline", 10_000, 0},
		{"after deadline", 12_000, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, TimeRemaining(end, time.UnixMilli(tt.now)))
		})
	}
}

// ---------------------------------------------------------------------------
// NeedsApproval / PlanBid
// ---------------------------------------------------------------------------

func TestNeedsApproval(t *testing.T) {
	assert.True(t, NeedsApproval(u(101), u(100)))
	assert.False(t, NeedsApproval(u(100), u(100)))
	assert.False(t, NeedsApproval(u(99), u(100)))
}

func TestPlanBidApproveThenBid(t *testing.T) {
	r := openRecord()
	now := time.UnixMilli(int64(r.EndTimeMs) - 60_000)

	plan, err := PlanBid(r, addr(9), u(1000), u(0), u(5000), now)
	require.NoError(t, err)
	assert.True(t, plan.Ready())
	assert.Equal(t, []Step{StepApprove, StepBid}, plan.Steps)
	assert.True(t, plan.NeedsApproval())
}

func TestPlanBidAllowanceCovers(t *testing.T) {
	r := openRecord()
	now := time.UnixMilli(int64(r.EndTimeMs) - 60_000)

	plan, err := PlanBid(r, addr(9), u(1000), u(1000), u(5000), now)
	require.NoError(t, err)
	assert.Equal(t, []Step{StepBid}, plan.Steps)
	assert.False(t, plan.NeedsApproval())
}

func TestPlanBidBlockers(t *testing.T) {
	leader := addr(2)
	tests := []struct {
		name    string
		record  *Record
		bidder  Address
		amount  uint64
		balance uint64
		offset  int64 // ms relative to deadline
		want    FailureReason
	}{
		{"ended", openRecord(), addr(9), 1000, 5000, 0, ReasonAuctionEnded},
		{"settled", func() *Record { r := openRecord(); r.Settled = true; return r }(), addr(9), 1000, 5000, -1000, ReasonAuctionEnded},
		{"self outbid", withBid(openRecord(), 1200, leader), leader, 2000, 5000, -1000, ReasonSelfOutbid},
		{"too low", withBid(openRecord(), 1200, leader), addr(9), 1249, 5000, -1000, ReasonBidTooLow},
		{"balance", openRecord(), addr(9), 1000, 999, -1000, ReasonInsufficientBalance},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			now := time.UnixMilli(int64(tt.record.EndTimeMs) + tt.offset)
			plan, err := PlanBid(tt.record, tt.bidder, u(tt.amount), u(0), u(tt.balance), now)
			require.NoError(t, err)
			assert.Equal(t, tt.want, plan.Blocker)
			assert.False(t, plan.Ready())
			assert.Empty(t, plan.Steps)
		})
	}
}

func TestDescribe(t *testing.T) {
	r := withBid(openRecord(), 1500, addr(2))
	now := time.UnixMilli(int64(r.EndTimeMs) - 90_000)

	l, err := Describe(*r, now)
	require.NoError(t, err)
	assert.Equal(t, u(1550), l.MinimumBid)
	assert.Equal(t, 90*time.Second, l.Remaining)
	assert.False(t, l.Ended)
	assert.Equal(t, uint64(7), l.AuctionID)
}

// ---------------------------------------------------------------------------
// ClassifyFailure
// ---------------------------------------------------------------------------

func TestClassifyFailure(t *testing.T) {
	tests := []struct {
		msg  string
		want FailureReason
	}{
		{"SelfOutbid", ReasonSelfOutbid},
		{"caller is already highest bidder", ReasonSelfOutbid},
		{"AuctionEnded", ReasonAuctionEnded},
		{"Module error: auction has ended", ReasonAuctionEnded},
		{"PSP22Error::InsufficientAllowance", ReasonInsufficientAllowance},
		{"insufficient allowance balance", ReasonInsufficientAllowance},
		{"BidTooLow", ReasonBidTooLow},
		{"bid below minimum", ReasonBidTooLow},
		{"PSP22Error::InsufficientBalance", ReasonInsufficientBalance},
		{"transfer amount exceeds balance", ReasonInsufficientBalance},
		{"ContractTrapped", ReasonUnknown},
		{"", ReasonUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.msg, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyFailure(tt.msg))
		})
	}
}

func TestFailureReasonMessages(t *testing.T) {
	for r := ReasonSelfOutbid; r <= ReasonUnknown; r++ {
		assert.NotEmpty(t, r.Message(), r.String())
	}
	assert.Empty(t, ReasonNone.Message())
}
