package sweeper

import (
	"context"
	"time"

	applog "agritrade/internal/log"
	"agritrade/internal/services"
)

// Sweeper periodically closes expired auctions. It is the server-side
// counterpart to the on-read check in AuctionService.Get: between reads, the
// ticker guarantees no auction stays ACTIVE past its end_time for longer
// than one interval.
type Sweeper struct {
	Auctions *services.AuctionService
	Interval time.Duration
}

func New(auctions *services.AuctionService, interval time.Duration) *Sweeper {
	return &Sweeper{Auctions: auctions, Interval: interval}
}

// Run blocks until ctx is cancelled. Call in its own goroutine.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			closed, err := s.Auctions.SweepExpired(ctx, now)
			if err != nil {
				applog.BgError("sweep.run", err, nil)
				continue
			}
			if closed > 0 {
				applog.BgInfo("sweep.run", map[string]any{"closed": closed})
			}
		}
	}
}
