package rpc

import (
	"cmp"
	"slices"
	"time"
)

// Strategy decides how reachable, up-to-date endpoints are ordered.
type Strategy string

const (
	// StrategyFailover keeps the configured order.
	StrategyFailover Strategy = "failover"
	// StrategyFastest puts the best scoring endpoint first.
	StrategyFastest Strategy = "fastest"

	// Nodes more than this many blocks behind the best are stale.
	staleBlockThreshold = 3
)

// Endpoint is one probed endpoint.
type Endpoint struct {
	URL         string
	Latency     time.Duration
	BlockNumber uint64
	Err         error
}

// Healthy reports whether the probe succeeded.
func (e Endpoint) Healthy() bool { return e.Err == nil }

// Stale reports whether e trails best by more than staleBlockThreshold.
func (e Endpoint) Stale(best uint64) bool {
	return best > e.BlockNumber && best-e.BlockNumber > staleBlockThreshold
}

// BestBlock returns the highest block any healthy endpoint reported.
func BestBlock(endpoints []Endpoint) uint64 {
	var best uint64
	for _, e := range endpoints {
		if e.Healthy() && e.BlockNumber > best {
			best = e.BlockNumber
		}
	}
	return best
}

// Rank returns endpoints in dial order: current healthy nodes first, then
// stale ones, then unreachable ones. Order within a group is stable except
// that StrategyFastest sorts the current group by score.
func Rank(endpoints []Endpoint, s Strategy) []Endpoint {
	best := BestBlock(endpoints)
	tier := func(e Endpoint) int {
		switch {
		case !e.Healthy():
			return 2
		case e.Stale(best):
			return 1
		}
		return 0
	}

	out := slices.Clone(endpoints)
	slices.SortStableFunc(out, func(a, b Endpoint) int {
		ta, tb := tier(a), tier(b)
		if ta != tb {
			return cmp.Compare(ta, tb)
		}
		if s == StrategyFastest && ta == 0 {
			return cmp.Compare(score(b, best), score(a, best))
		}
		return 0
	})
	return out
}

// score is higher for faster, more current endpoints.
func score(e Endpoint, best uint64) float64 {
	ms := max(e.Latency.Milliseconds(), 1)
	s := 1000.0 / float64(ms)
	if best > 0 {
		s += float64(staleBlockThreshold) - float64(best-e.BlockNumber)
	}
	return s
}
