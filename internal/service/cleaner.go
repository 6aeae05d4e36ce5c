package service

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// Cleaner periodically deletes dead refresh token rows. It owns its own
// schedule and shuts down with the context handed to Run, fully decoupled
// from request handling.
type Cleaner struct {
	store    *RefreshTokenStore
	interval time.Duration
	logger   *logrus.Logger
}

func NewCleaner(store *RefreshTokenStore, interval time.Duration, logger *logrus.Logger) *Cleaner {
	return &Cleaner{
		store:    store,
		interval: interval,
		logger:   logger,
	}
}

// Run blocks, sweeping on every tick until ctx is cancelled. A failed
// sweep is logged and retried on the next tick.
func (c *Cleaner) Run(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	c.logger.WithField("interval", c.interval.String()).Info("Token cleanup task started")

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("Token cleanup task stopped")
			return
		case <-ticker.C:
			c.sweep(ctx)
		}
	}
}

func (c *Cleaner) sweep(ctx context.Context) {
	sweepCtx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()

	deleted, err := c.store.CleanupExpired(sweepCtx)
	if err != nil {
		c.logger.WithError(err).Error("Token cleanup sweep failed")
		return
	}
	if deleted > 0 {
		c.logger.WithField("deleted", deleted).Info("Deleted expired refresh tokens")
	}
}
