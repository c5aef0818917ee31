package auction

import (
	"errors"
	"time"

	"github.com/holiman/uint256"
)

// ErrBidOverflow is returned when highest bid plus increment exceeds 2^256-1.
var ErrBidOverflow = errors.New("minimum next bid overflows u256")

// MinimumNextBid returns the smallest bid the contract will accept: the start
// price when nobody has bid, otherwise the highest bid plus the contract's
// own increment.
func MinimumNextBid(r *Record) (*uint256.Int, error) {
	if !r.HasBid() {
		return new(uint256.Int).Set(&r.StartPrice), nil
	}
	next, overflow := new(uint256.Int).AddOverflow(&r.HighestBid, &r.MinBidIncrement)
	if overflow {
		return nil, ErrBidOverflow
	}
	return next, nil
}

// TimeRemaining returns how long until endTimeMs. Zero means ended.
func TimeRemaining(endTimeMs uint64, now time.Time) time.Duration {
	ms := now.UnixMilli()
	if ms < 0 {
		ms = 0
	}
	if uint64(ms) >= endTimeMs {
		return 0
	}
	return time.Duration(endTimeMs-uint64(ms)) * time.Millisecond
}

// NeedsApproval reports whether bid exceeds the spending allowance granted to
// the marketplace, in which case an approve step must precede the bid.
func NeedsApproval(bid, allowance *uint256.Int) bool {
	return bid.Gt(allowance)
}

// Step is one transaction the bidder has to submit.
type Step int

const (
	StepApprove Step = iota + 1
	StepBid
)

func (s Step) String() string {
	switch s {
	case StepApprove:
		return "approve"
	case StepBid:
		return "bid"
	default:
		return "unknown"
	}
}

// BidPlan is the derived state of an intended bid.
type BidPlan struct {
	MinimumBid *uint256.Int
	Steps      []Step
	Blocker    FailureReason // ReasonNone when the bid can go ahead
}

// Ready reports whether nothing blocks the bid.
func (p BidPlan) Ready() bool { return p.Blocker == ReasonNone }

// NeedsApproval reports whether the plan starts with an approve step.
func (p BidPlan) NeedsApproval() bool {
	return len(p.Steps) > 0 && p.Steps[0] == StepApprove
}

// PlanBid works out whether bidder can bid amount on r right now and which
// transactions that takes. Blocking conditions are checked in the order the
// contract would reject them.
func PlanBid(r *Record, bidder Address, amount, allowance, balance *uint256.Int, now time.Time) (BidPlan, error) {
	minimum, err := MinimumNextBid(r)
	if err != nil {
		return BidPlan{}, err
	}
	plan := BidPlan{MinimumBid: minimum}

	switch {
	case r.Settled || r.IsEnded(now):
		plan.Blocker = ReasonAuctionEnded
	case r.LeadingBidder(bidder):
		plan.Blocker = ReasonSelfOutbid
	case amount.Lt(minimum):
		plan.Blocker = ReasonBidTooLow
	case balance.Lt(amount):
		plan.Blocker = ReasonInsufficientBalance
	}
	if plan.Blocker != ReasonNone {
		return plan, nil
	}

	if NeedsApproval(amount, allowance) {
		plan.Steps = append(plan.Steps, StepApprove)
	}
	plan.Steps = append(plan.Steps, StepBid)
	return plan, nil
}

// Listing is a record together with the values derived from it at a given
// instant, for display.
type Listing struct {
	Record
	MinimumBid *uint256.Int
	Remaining  time.Duration
	Ended      bool
}

// Describe derives the listing view of r at now.
func Describe(r Record, now time.Time) (Listing, error) {
	minimum, err := MinimumNextBid(&r)
	if err != nil {
		return Listing{}, err
	}
	return Listing{
		Record:     r,
		MinimumBid: minimum,
		Remaining:  TimeRemaining(r.EndTimeMs, now),
		Ended:      r.IsEnded(now),
	}, nil
}
