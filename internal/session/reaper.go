package session

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Reaper expires idle sessions on a schedule. The serve command registers
// Run with the cron scheduler.
type Reaper struct {
	registry *Registry
	maxIdle  time.Duration
	logger   *zap.Logger
}

// NewReaper creates a reaper sweeping sessions idle longer than maxIdle.
func NewReaper(registry *Registry, maxIdle time.Duration, log *zap.Logger) *Reaper {
	if log == nil {
		log = zap.NewNop()
	}
	return &Reaper{registry: registry, maxIdle: maxIdle, logger: log}
}

// Run performs one sweep.
func (r *Reaper) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	expired, err := r.registry.ExpireStale(ctx, r.maxIdle)
	if err != nil {
		r.logger.Warn("session sweep failed", zap.Error(err))
		return
	}
	if expired > 0 {
		r.logger.Info("session sweep finished", zap.Int("expired", expired))
	}
}
