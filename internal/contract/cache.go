package contract

import (
	"sync"
	"time"

	"github.com/Mohsinsiddi/auctionbridge/internal/auction"
)

// listingCache holds the last open-auction listing for a fixed TTL. The
// generation counter keeps a fetch that started before Invalidate from
// repopulating the cache with stale records.
type listingCache struct {
	mu         sync.Mutex
	ttl        time.Duration
	records    []auction.Record
	fetchedAt  time.Time
	valid      bool
	generation uint64
}

func newListingCache(ttl time.Duration) *listingCache {
	return &listingCache{ttl: ttl}
}

func (c *listingCache) get(now time.Time) ([]auction.Record, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.valid || c.ttl <= 0 || now.Sub(c.fetchedAt) >= c.ttl {
		return nil, false
	}
	return cloneRecords(c.records), true
}

// begin returns the generation a fetch must present to put.
func (c *listingCache) begin() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generation
}

func (c *listingCache) put(gen uint64, records []auction.Record, now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ttl <= 0 || gen != c.generation {
		return
	}
	c.records = cloneRecords(records)
	c.fetchedAt = now
	c.valid = true
}

func (c *listingCache) invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.generation++
	c.records = nil
	c.valid = false
}

func cloneRecords(in []auction.Record) []auction.Record {
	if in == nil {
		return nil
	}
	out := make([]auction.Record, len(in))
	for i, r := range in {
		if r.HighestBidder != nil {
			b := *r.HighestBidder
			r.HighestBidder = &b
		}
		out[i] = r
	}
	return out
}
