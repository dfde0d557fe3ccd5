package usecase

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Sweeper runs periodic maintenance: expired banlist entries are purged so
// the advisory fraud checks and the banlist listing stay accurate without a
// read-path scan, and the settings row is re-seeded if it went missing.
type Sweeper struct {
	fraud    *FraudService
	stats    *StatsService
	settings *ConfigService
	interval time.Duration
	logger   *zap.Logger
}

// NewSweeper wires the maintenance loop. Interval defaults to one hour.
func NewSweeper(fraud *FraudService, stats *StatsService, settings *ConfigService, interval time.Duration, logger *zap.Logger) *Sweeper {
	if logger == nil {
		logger = zap.NewNop()
	}
	if interval <= 0 {
		interval = time.Hour
	}
	return &Sweeper{
		fraud:    fraud,
		stats:    stats,
		settings: settings,
		interval: interval,
		logger:   logger,
	}
}

// Run blocks until the context is cancelled, sweeping once per interval.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	if s.settings != nil {
		if err := s.settings.InitializeDefaults(ctx); err != nil {
			s.logger.Warn("settings seed failed", zap.Error(err))
		}
	}

	purged, err := s.fraud.PurgeExpired(ctx)
	if err != nil {
		s.logger.Warn("banlist sweep failed", zap.Error(err))
		return
	}
	if purged > 0 && s.stats != nil {
		s.stats.Invalidate(ctx)
	}
}
