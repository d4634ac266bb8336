package session

import (
	"context"
	"time"

	"github.com/ashureev/codespace/internal/metrics"
)

const defaultReapInterval = time.Minute

// StartReaper runs a background goroutine that periodically releases
// actors idle for longer than the configured TTL. Released sessions reload
// from the ledger on their next reference. A zero TTL disables it.
func (c *Coordinator) StartReaper(ctx context.Context, interval time.Duration) {
	if c.cfg.IdleTTL <= 0 {
		return
	}
	if interval <= 0 {
		interval = defaultReapInterval
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		c.logger.Info("Session reaper started", "interval", interval, "ttl", c.cfg.IdleTTL)

		for {
			select {
			case <-ticker.C:
				if n := c.reapIdle(); n > 0 {
					c.logger.Info("Session reaper released idle sessions", "count", n)
				}
			case <-ctx.Done():
				c.logger.Info("Session reaper shutting down", "reason", ctx.Err())
				return
			}
		}
	}()
}

// reapIdle stops actors with no pending request that have been idle past
// the TTL.
func (c *Coordinator) reapIdle() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	cutoff := c.now().Add(-c.cfg.IdleTTL)
	reaped := 0
	for id, a := range c.actors {
		if a.pending > 0 || a.lastActive.After(cutoff) {
			continue
		}
		close(a.quit)
		delete(c.actors, id)
		metrics.ActiveSessions.Dec()
		reaped++
		c.logger.Debug("Session actor released", "session_id", id)
	}
	return reaped
}
