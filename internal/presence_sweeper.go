package internal

import (
	"context"
	"time"
)

const (
	DefaultSweepInterval  = 10 * time.Second
	DefaultLivenessWindow = 30 * time.Second
)

// RunSweeper evicts silent presence entries every interval until ctx is
// cancelled. Evictions are not announced.
func (ps *PresenceServer) RunSweeper(ctx context.Context, interval, window time.Duration) {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	if window <= 0 {
		window = DefaultLivenessWindow
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			ps.Sweep(window)
		}
	}
}

// Sweep runs one cleanup pass and returns how many entries were evicted.
func (ps *PresenceServer) Sweep(window time.Duration) int {
	evicted := ps.registry.Sweep(ps.now(), window)
	for _, entry := range evicted {
		ps.logger.Printf("udp: evicted %s (%s) from %q after %s of silence",
			entry.ClientID, entry.Username, entry.Room, ps.now().Sub(entry.LastSeen).Round(time.Second))
	}
	ps.metrics.AddEvictions(len(evicted))
	return len(evicted)
}
