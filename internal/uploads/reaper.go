package uploads

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// Reaper periodically retires sessions past their deadline and releases
// their part storage. The session-level deadline is authoritative; the
// reaper never inspects individual part timestamps.
type Reaper struct {
	manager  *Manager
	interval time.Duration
}

// NewReaper creates a reaper sweeping the manager at the given interval.
func NewReaper(manager *Manager, interval time.Duration) *Reaper {
	return &Reaper{
		manager:  manager,
		interval: interval,
	}
}

// Start runs the sweep loop until the context is cancelled.
func (r *Reaper) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()

		log.Info().Dur("interval", r.interval).Msg("expiration reaper started")

		for {
			select {
			case <-ctx.Done():
				log.Info().Msg("expiration reaper stopped")
				return
			case <-ticker.C:
				r.Sweep(ctx)
			}
		}
	}()
}

// Sweep expires every stale session once and reports how many were retired.
func (r *Reaper) Sweep(ctx context.Context) int {
	expired := r.manager.expireStale(ctx, r.manager.now())
	if expired > 0 {
		log.Info().Int("expired", expired).Msg("reaped stale upload sessions")
	}
	return expired
}
