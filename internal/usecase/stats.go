package usecase

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/xkrfer/telegram-pm-relay/internal/core/domain"
	"github.com/xkrfer/telegram-pm-relay/internal/core/port"
)

// StatsService aggregates relay activity for the admin /stats command. The
// result is cached for a short TTL; cache failures are logged and ignored
// so the command always answers.
type StatsService struct {
	messages port.MessageRepository
	bans     port.BanRepository
	cache    port.StatsCache
	ttl      time.Duration
	logger   *zap.Logger
	now      func() time.Time
}

// NewStatsService wires the stats aggregator. Cache may be nil, in which
// case every call recomputes.
func NewStatsService(messages port.MessageRepository, bans port.BanRepository, cache port.StatsCache, ttl time.Duration, logger *zap.Logger) *StatsService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &StatsService{
		messages: messages,
		bans:     bans,
		cache:    cache,
		ttl:      ttl,
		logger:   logger,
		now:      time.Now,
	}
}

// WithClock overrides the time source, for tests.
func (s *StatsService) WithClock(now func() time.Time) *StatsService {
	s.now = now
	return s
}

// Collect returns the current aggregate, serving from cache when fresh.
func (s *StatsService) Collect(ctx context.Context) (*domain.Stats, error) {
	if s.cache != nil {
		if cached, err := s.cache.Get(ctx); err == nil {
			return cached, nil
		}
	}

	now := s.now()
	dayAgo := now.Add(-24 * time.Hour)

	todayIn, err := s.messages.CountByDirection(ctx, domain.DirectionIn, dayAgo)
	if err != nil {
		return nil, fmt.Errorf("count inbound: %w", err)
	}
	todayOut, err := s.messages.CountByDirection(ctx, domain.DirectionOut, dayAgo)
	if err != nil {
		return nil, fmt.Errorf("count outbound: %w", err)
	}
	activeUsers, err := s.messages.CountActiveUsers(ctx, dayAgo)
	if err != nil {
		return nil, fmt.Errorf("count active users: %w", err)
	}
	totalUsers, err := s.messages.CountUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("count users: %w", err)
	}
	totalMsgs, err := s.messages.CountAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("count messages: %w", err)
	}
	bannedUsers, err := s.bans.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("count bans: %w", err)
	}

	stats := &domain.Stats{
		TodayIn:     todayIn,
		TodayOut:    todayOut,
		ActiveUsers: activeUsers,
		TotalUsers:  totalUsers,
		TotalMsgs:   totalMsgs,
		BannedUsers: bannedUsers,
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, *stats, s.ttl); err != nil {
			s.logger.Warn("stats cache write failed", zap.Error(err))
		}
	}

	return stats, nil
}

// Invalidate drops the cached aggregate.
func (s *StatsService) Invalidate(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx); err != nil {
		s.logger.Warn("stats cache invalidation failed", zap.Error(err))
	}
}
