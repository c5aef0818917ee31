// Package rpc measures the configured chain endpoints and orders them for
// failover.
package rpc

import (
	"context"
	"time"

	"github.com/Mohsinsiddi/auctionbridge/internal/chain"
	"golang.org/x/sync/errgroup"
)

const (
	// probeTimeout bounds a single endpoint probe.
	probeTimeout = 5 * time.Second
	maxParallel  = 8
)

// Prober measures one endpoint. *chain.EndpointDialer implements it.
type Prober interface {
	Probe(ctx context.Context, endpoint string) (chain.Health, error)
}

// Check probes url under probeTimeout.
func Check(ctx context.Context, p Prober, url string) Endpoint {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	h, err := p.Probe(ctx, url)
	return Endpoint{
		URL:         url,
		Latency:     h.Latency,
		BlockNumber: h.BlockNumber,
		Err:         err,
	}
}

// Benchmark probes every url in parallel. Results keep the input order.
func Benchmark(ctx context.Context, p Prober, urls []string) []Endpoint {
	out := make([]Endpoint, len(urls))
	var g errgroup.Group
	g.SetLimit(maxParallel)
	for i, u := range urls {
		i, u := i, u
		g.Go(func() error {
			out[i] = Check(ctx, p, u)
			return nil
		})
	}
	g.Wait() //nolint:errcheck
	return out
}

// Order benchmarks urls and returns them ranked by s. A single url is
// returned without probing.
func Order(ctx context.Context, p Prober, urls []string, s Strategy) []string {
	if len(urls) <= 1 {
		return urls
	}
	ranked := Rank(Benchmark(ctx, p, urls), s)
	out := make([]string, len(ranked))
	for i, e := range ranked {
		out[i] = e.URL
	}
	return out
}
