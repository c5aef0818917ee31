package auction

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/holiman/uint256"
)

// AddressLen is the width in bytes of an on-chain account id.
const AddressLen = 32

// ErrInconsistentBid is returned when a record's highest bid and highest
// bidder disagree about whether a bid has been placed.
var ErrInconsistentBid = errors.New("highest bid and highest bidder disagree")

// Address is a 32-byte on-chain account id.
type Address [AddressLen]byte

// ParseAddress parses a 32-byte hex address, with or without the 0x prefix.
func ParseAddress(s string) (Address, error) {
	var a Address
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "0x") && !strings.HasPrefix(s, "0X") {
		s = "0x" + s
	}
	b, err := hexutil.Decode("0x" + s[2:])
	if err != nil {
		return a, fmt.Errorf("invalid address %q: %w", s, err)
	}
	if len(b) != AddressLen {
		return a, fmt.Errorf("invalid address %q: expected %d bytes, got %d", s, AddressLen, len(b))
	}
	copy(a[:], b)
	return a, nil
}

// Hex returns the canonical lowercase 0x-prefixed form used for every comparison.
func (a Address) Hex() string { return hexutil.Encode(a[:]) }

func (a Address) String() string { return a.Hex() }

// IsZero reports whether every byte is zero.
func (a Address) IsZero() bool { return a == Address{} }

func (a Address) MarshalText() ([]byte, error) { return []byte(a.Hex()), nil }

func (a *Address) UnmarshalText(text []byte) error {
	parsed, err := ParseAddress(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// Record is one auction as mirrored from the marketplace contract.
// Amounts are in token base units.
type Record struct {
	AuctionID         uint64
	CollectionID      Address
	TokenID           uint64
	Seller            Address
	StartPrice        uint256.Int
	MinBidIncrement   uint256.Int
	HighestBid        uint256.Int
	HighestBidder     *Address // nil until the first bid
	EndTimeMs         uint64
	ExtensionWindowMs uint64
	Settled           bool
}

// HasBid reports whether anyone has bid yet.
func (r *Record) HasBid() bool { return r.HighestBidder != nil }

// IsEnded reports whether now is at or past the deadline. It is always
// computed from the clock and never stored.
func (r *Record) IsEnded(now time.Time) bool {
	ms := now.UnixMilli()
	if ms < 0 {
		return false
	}
	return uint64(ms) >= r.EndTimeMs
}

// EndTime returns the deadline as a time.Time.
func (r *Record) EndTime() time.Time {
	return time.UnixMilli(int64(r.EndTimeMs))
}

// LeadingBidder reports whether addr currently holds the highest bid.
func (r *Record) LeadingBidder(addr Address) bool {
	return r.HighestBidder != nil && *r.HighestBidder == addr
}

// CheckBidState enforces that a zero bid goes with an absent bidder and a
// present bidder goes with a non-zero bid.
func (r *Record) CheckBidState() error {
	if r.HighestBid.IsZero() != (r.HighestBidder == nil) {
		return fmt.Errorf("auction %d: %w", r.AuctionID, ErrInconsistentBid)
	}
	return nil
}
