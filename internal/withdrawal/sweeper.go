package withdrawal

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// DefaultSweepInterval is how often Sweeper runs when none is configured.
const DefaultSweepInterval = time.Minute

// Sweeper calls Service.Sweep on a fixed interval.
type Sweeper struct {
	svc      *Service
	interval time.Duration
	log      *zap.Logger
}

// NewSweeper returns a Sweeper. A non-positive interval uses the default.
func NewSweeper(svc *Service, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	return &Sweeper{svc: svc, interval: interval, log: svc.log.Named("sweeper")}
}

// Run sweeps once immediately and then on every tick until ctx is done.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		if _, err := s.svc.Sweep(ctx); err != nil && ctx.Err() == nil {
			s.log.Error("sweep failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
