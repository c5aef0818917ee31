package auction

import "strings"

// FailureReason is the closed set of reasons a bid submission can fail for.
type FailureReason int

const (
	ReasonNone FailureReason = iota
	ReasonSelfOutbid
	ReasonAuctionEnded
	ReasonInsufficientAllowance
	ReasonBidTooLow
	ReasonInsufficientBalance
	ReasonUnknown
)

func (r FailureReason) String() string {
	switch r {
	case ReasonNone:
		return "None"
	case ReasonSelfOutbid:
		return "SelfOutbid"
	case ReasonAuctionEnded:
		return "AuctionEnded"
	case ReasonInsufficientAllowance:
		return "InsufficientAllowance"
	case ReasonBidTooLow:
		return "BidTooLow"
	case ReasonInsufficientBalance:
		return "InsufficientBalance"
	default:
		return "Unknown"
	}
}

// Message is the text shown to a bidder.
func (r FailureReason) Message() string {
	switch r {
	case ReasonNone:
		return ""
	case ReasonSelfOutbid:
		return "You already hold the highest bid on this auction."
	case ReasonAuctionEnded:
		return "This auction has ended and no longer accepts bids."
	case ReasonInsufficientAllowance:
		return "Approve the marketplace to spend at least your bid amount, then bid again."
	case ReasonBidTooLow:
		return "Your bid is below the minimum next bid."
	case ReasonInsufficientBalance:
		return "Your token balance does not cover this bid."
	default:
		return "The contract rejected the bid for an unrecognised reason."
	}
}

// Matched against the contract error with case, spaces, '_' and '-' removed.
// Allowance comes before balance: some tokens report "insufficient allowance
// balance".
var failurePatterns = []struct {
	reason  FailureReason
	needles []string
}{
	{ReasonSelfOutbid, []string{"selfoutbid", "alreadyhighestbidder", "cannotoutbidyourself"}},
	{ReasonAuctionEnded, []string{"auctionended", "auctionhasended", "auctionclosed", "auctionsettled", "auctionalreadysettled"}},
	{ReasonInsufficientAllowance, []string{"insufficientallowance", "exceedsallowance", "allowanceexceeded"}},
	{ReasonBidTooLow, []string{"bidtoolow", "bidbelowminimum", "belowminimumbid", "bidtoosmall"}},
	{ReasonInsufficientBalance, []string{"insufficientbalance", "exceedsbalance", "balancetoolow"}},
}

// ClassifyFailure maps a contract-reported failure string to a FailureReason.
func ClassifyFailure(msg string) FailureReason {
	norm := strings.Map(func(r rune) rune {
		switch r {
		case ' ', '_', '-', '\t', '\n':
			return -1
		}
		return r
	}, strings.ToLower(msg))
	if norm == "" {
		return ReasonUnknown
	}
	for _, p := range failurePatterns {
		for _, n := range p.needles {
			if strings.Contains(norm, n) {
				return p.reason
			}
		}
	}
	return ReasonUnknown
}
