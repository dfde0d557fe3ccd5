package usecase

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/xkrfer/telegram-pm-relay/internal/core/domain"
	"github.com/xkrfer/telegram-pm-relay/internal/core/port"
	"github.com/xkrfer/telegram-pm-relay/internal/infra/config"
)

// RateLimitReason classifies why a message was denied.
type RateLimitReason string

const (
	ReasonPenalty   RateLimitReason = "penalty"
	ReasonCooldown  RateLimitReason = "cooldown"
	ReasonPerMinute RateLimitReason = "per_minute"
	ReasonPerHour   RateLimitReason = "per_hour"
)

// TierConfig is the effective limit set for one rate-limit level.
type TierConfig struct {
	PerMinute int
	PerHour   int
	Cooldown  int // seconds
}

// RateLimitResult is the outcome of a single admission check.
type RateLimitResult struct {
	Allowed  bool
	Reason   RateLimitReason
	WaitTime int // seconds until the caller may retry
	Limit    int // the limit that was hit, for per-minute and per-hour denials
}

// ViolationResult summarizes the penalty applied after a denial.
type ViolationResult struct {
	Violations       int
	IsFirstViolation bool
	PenaltyDuration  time.Duration
	LimitedUntil     time.Time
}

// RateLimitService enforces the four-stage admission check (penalty,
// cooldown, per-minute, per-hour) over each user's persisted sliding window.
type RateLimitService struct {
	users  port.UserRepository
	base   config.RateLimitSettings
	logger *zap.Logger
	now    func() time.Time
}

// NewRateLimitService wires a rate limiter over the given base limits.
func NewRateLimitService(users port.UserRepository, base config.RateLimitSettings, logger *zap.Logger) *RateLimitService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RateLimitService{
		users:  users,
		base:   base,
		logger: logger,
		now:    time.Now,
	}
}

// WithClock overrides the time source, for tests.
func (s *RateLimitService) WithClock(now func() time.Time) *RateLimitService {
	s.now = now
	return s
}

// TierFor derives the effective limits for a level from the deployment base
// values. Unknown levels fall back to the normal tier.
func TierFor(level domain.RateLimitLevel, base config.RateLimitSettings) TierConfig {
	switch level {
	case domain.RateLimitRelaxed:
		return TierConfig{
			PerMinute: base.PerMinute * 2,
			PerHour:   base.PerHour * 2,
			Cooldown:  maxInt(1, base.Cooldown/2),
		}
	case domain.RateLimitStrict:
		return TierConfig{
			PerMinute: maxInt(3, base.PerMinute/2),
			PerHour:   maxInt(10, base.PerHour/2),
			Cooldown:  base.Cooldown * 2,
		}
	case domain.RateLimitVeryStrict:
		return TierConfig{
			PerMinute: 1,
			PerHour:   10,
			Cooldown:  60,
		}
	default:
		return TierConfig{
			PerMinute: base.PerMinute,
			PerHour:   base.PerHour,
			Cooldown:  base.Cooldown,
		}
	}
}

// Check runs the admission decision for the user's next message. It is a
// pure read; recording the message and applying penalties are separate
// writes.
func (s *RateLimitService) Check(user *domain.User) RateLimitResult {
	now := s.now()
	nowMillis := now.UnixMilli()

	// Stage 1: active penalty.
	if user.HasActivePenalty(now) {
		wait := int(math.Ceil(user.RateLimitedUntil.Sub(now).Seconds()))
		return RateLimitResult{Allowed: false, Reason: ReasonPenalty, WaitTime: wait}
	}

	tier := TierFor(user.RateLimitLevel, s.base)

	// Stage 2: cooldown since the newest recorded message.
	if last, ok := user.LastMessageAt(); ok {
		elapsed := float64(nowMillis-last.UnixMilli()) / 1000
		if elapsed < float64(tier.Cooldown) {
			wait := int(math.Ceil(float64(tier.Cooldown) - elapsed))
			return RateLimitResult{Allowed: false, Reason: ReasonCooldown, WaitTime: wait}
		}
	}

	// Stage 3: per-minute window.
	minuteAgo := nowMillis - 60*1000
	if countAfter(user.LastMessageTimes, minuteAgo) >= tier.PerMinute {
		return RateLimitResult{Allowed: false, Reason: ReasonPerMinute, WaitTime: 60, Limit: tier.PerMinute}
	}

	// Stage 4: per-hour window.
	hourAgo := nowMillis - 60*60*1000
	if countAfter(user.LastMessageTimes, hourAgo) >= tier.PerHour {
		return RateLimitResult{Allowed: false, Reason: ReasonPerHour, WaitTime: 3600, Limit: tier.PerHour}
	}

	return RateLimitResult{Allowed: true}
}

// RecordMessage appends now to the user's timestamp sequence, pruning
// entries older than one hour first. Pruning happens only on this write
// path, never during Check.
func (s *RateLimitService) RecordMessage(ctx context.Context, user *domain.User) error {
	now := s.now()
	nowMillis := now.UnixMilli()
	hourAgo := nowMillis - 60*60*1000

	times := make([]int64, 0, len(user.LastMessageTimes)+1)
	for _, t := range user.LastMessageTimes {
		if t > hourAgo {
			times = append(times, t)
		}
	}
	times = append(times, nowMillis)

	if err := s.users.UpdateMessageTimes(ctx, user.ID, times, now); err != nil {
		return fmt.Errorf("record message time: %w", err)
	}

	user.LastMessageTimes = times
	return nil
}

// HandleViolation bumps the violation counter and applies the escalating
// penalty: 30 seconds, then 5 minutes, then 30 minutes for every violation
// after that.
func (s *RateLimitService) HandleViolation(ctx context.Context, user *domain.User) (*ViolationResult, error) {
	now := s.now()
	violations := user.RateLimitViolations + 1

	var penalty time.Duration
	switch violations {
	case 1:
		penalty = 30 * time.Second
	case 2:
		penalty = 5 * time.Minute
	default:
		penalty = 30 * time.Minute
	}

	limitedUntil := now.Add(penalty)
	if err := s.users.UpdateRateLimitState(ctx, user.ID, violations, &limitedUntil, now); err != nil {
		return nil, fmt.Errorf("apply rate limit penalty: %w", err)
	}

	user.RateLimitViolations = violations
	user.RateLimitedUntil = &limitedUntil

	s.logger.Info("rate limit violation",
		zap.String("user_id", user.ID),
		zap.Int("violations", violations),
		zap.Duration("penalty", penalty))

	return &ViolationResult{
		Violations:       violations,
		IsFirstViolation: violations == 1,
		PenaltyDuration:  penalty,
		LimitedUntil:     limitedUntil,
	}, nil
}

// SetLevel assigns the user's tier.
func (s *RateLimitService) SetLevel(ctx context.Context, userID string, level domain.RateLimitLevel) error {
	if !level.Valid() {
		return fmt.Errorf("invalid rate limit level %d", int(level))
	}
	if err := s.users.SetRateLimitLevel(ctx, userID, level, s.now()); err != nil {
		return fmt.Errorf("set rate limit level: %w", err)
	}
	return nil
}

// Reset clears the user's violations, penalty, and recorded window.
func (s *RateLimitService) Reset(ctx context.Context, userID string) error {
	if err := s.users.ResetRateLimit(ctx, userID, s.now()); err != nil {
		return fmt.Errorf("reset rate limit: %w", err)
	}
	return nil
}

// Base exposes the deployment base limits, for rendering warning texts.
func (s *RateLimitService) Base() config.RateLimitSettings {
	return s.base
}

func countAfter(times []int64, cutoff int64) int {
	count := 0
	for _, t := range times {
		if t > cutoff {
			count++
		}
	}
	return count
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
