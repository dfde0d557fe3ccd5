package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/xkrfer/telegram-pm-relay/internal/core/domain"
	"github.com/xkrfer/telegram-pm-relay/internal/infra/config"
)

var testBase = config.RateLimitSettings{Cooldown: 3, PerMinute: 10, PerHour: 50}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestTierForDerivesLimitsFromBase(t *testing.T) {
	cases := []struct {
		name  string
		level domain.RateLimitLevel
		want  TierConfig
	}{
		{"normal", domain.RateLimitNormal, TierConfig{PerMinute: 10, PerHour: 50, Cooldown: 3}},
		{"relaxed", domain.RateLimitRelaxed, TierConfig{PerMinute: 20, PerHour: 100, Cooldown: 1}},
		{"strict", domain.RateLimitStrict, TierConfig{PerMinute: 5, PerHour: 25, Cooldown: 6}},
		{"very_strict", domain.RateLimitVeryStrict, TierConfig{PerMinute: 1, PerHour: 10, Cooldown: 60}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := TierFor(tc.level, testBase)
			if got != tc.want {
				t.Fatalf("TierFor(%v) = %+v, want %+v", tc.level, got, tc.want)
			}
		})
	}
}

func TestTierForAppliesFloors(t *testing.T) {
	tiny := config.RateLimitSettings{Cooldown: 1, PerMinute: 4, PerHour: 12}

	strict := TierFor(domain.RateLimitStrict, tiny)
	if strict.PerMinute != 3 {
		t.Fatalf("strict per-minute floor: got %d, want 3", strict.PerMinute)
	}
	if strict.PerHour != 10 {
		t.Fatalf("strict per-hour floor: got %d, want 10", strict.PerHour)
	}

	relaxed := TierFor(domain.RateLimitRelaxed, tiny)
	if relaxed.Cooldown != 1 {
		t.Fatalf("relaxed cooldown floor: got %d, want 1", relaxed.Cooldown)
	}
}

func TestTierForUnknownLevelFallsBackToNormal(t *testing.T) {
	got := TierFor(domain.RateLimitLevel(9), testBase)
	want := TierFor(domain.RateLimitNormal, testBase)
	if got != want {
		t.Fatalf("unknown level = %+v, want normal tier %+v", got, want)
	}
}

func TestCheckDeniesDuringPenalty(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	until := now.Add(42 * time.Second)
	user := &domain.User{ID: "1001", RateLimitedUntil: &until}

	svc := NewRateLimitService(newUserRepoStub(user), testBase, nil).WithClock(fixedClock(now))

	result := svc.Check(user)
	if result.Allowed {
		t.Fatal("expected denial during penalty")
	}
	if result.Reason != ReasonPenalty {
		t.Fatalf("reason = %q, want %q", result.Reason, ReasonPenalty)
	}
	if result.WaitTime != 42 {
		t.Fatalf("wait = %d, want 42", result.WaitTime)
	}
}

func TestCheckExpiredPenaltyFallsThrough(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	until := now.Add(-time.Second)
	user := &domain.User{ID: "1001", RateLimitedUntil: &until}

	svc := NewRateLimitService(newUserRepoStub(user), testBase, nil).WithClock(fixedClock(now))

	if result := svc.Check(user); !result.Allowed {
		t.Fatalf("expected admission after penalty expiry, got denial %+v", result)
	}
}

func TestCheckCooldown(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	user := &domain.User{
		ID:               "1001",
		LastMessageTimes: []int64{now.Add(-time.Second).UnixMilli()},
	}

	svc := NewRateLimitService(newUserRepoStub(user), testBase, nil).WithClock(fixedClock(now))

	result := svc.Check(user)
	if result.Allowed {
		t.Fatal("expected cooldown denial")
	}
	if result.Reason != ReasonCooldown {
		t.Fatalf("reason = %q, want %q", result.Reason, ReasonCooldown)
	}
	if result.WaitTime != 2 {
		t.Fatalf("wait = %d, want 2", result.WaitTime)
	}
}

func TestCheckPerMinuteLimit(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	// Ten messages within the last minute, all outside the cooldown.
	times := make([]int64, 10)
	for i := range times {
		times[i] = now.Add(-time.Duration(5+i) * time.Second).UnixMilli()
	}
	user := &domain.User{ID: "1001", LastMessageTimes: times}

	svc := NewRateLimitService(newUserRepoStub(user), testBase, nil).WithClock(fixedClock(now))

	result := svc.Check(user)
	if result.Allowed {
		t.Fatal("expected per-minute denial")
	}
	if result.Reason != ReasonPerMinute {
		t.Fatalf("reason = %q, want %q", result.Reason, ReasonPerMinute)
	}
	if result.WaitTime != 60 {
		t.Fatalf("wait = %d, want 60", result.WaitTime)
	}
	if result.Limit != 10 {
		t.Fatalf("limit = %d, want 10", result.Limit)
	}
}

func TestCheckPerHourLimit(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	// Fifty messages spread over the hour, few enough per minute.
	times := make([]int64, 50)
	for i := range times {
		times[i] = now.Add(-time.Duration(2+i) * time.Minute).UnixMilli()
	}
	user := &domain.User{ID: "1001", LastMessageTimes: times}

	svc := NewRateLimitService(newUserRepoStub(user), testBase, nil).WithClock(fixedClock(now))

	result := svc.Check(user)
	if result.Allowed {
		t.Fatal("expected per-hour denial")
	}
	if result.Reason != ReasonPerHour {
		t.Fatalf("reason = %q, want %q", result.Reason, ReasonPerHour)
	}
	if result.WaitTime != 3600 {
		t.Fatalf("wait = %d, want 3600", result.WaitTime)
	}
}

func TestCheckHourWindowBoundary(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	// Forty-nine messages safely inside the hour; the fiftieth sits on the
	// window edge. Exactly 3600s old is outside, 3599s is inside.
	inside := make([]int64, 49)
	for i := range inside {
		inside[i] = now.Add(-time.Duration(2+i) * time.Minute).UnixMilli()
	}

	t.Run("timestamp exactly one hour old is excluded", func(t *testing.T) {
		times := append(append([]int64{}, inside...), now.Add(-3600*time.Second).UnixMilli())
		user := &domain.User{ID: "1001", LastMessageTimes: times}
		svc := NewRateLimitService(newUserRepoStub(user), testBase, nil).WithClock(fixedClock(now))

		if result := svc.Check(user); !result.Allowed {
			t.Fatalf("expected admission at 49 in-window messages, got %+v", result)
		}
	})

	t.Run("timestamp one second newer is counted", func(t *testing.T) {
		times := append(append([]int64{}, inside...), now.Add(-3599*time.Second).UnixMilli())
		user := &domain.User{ID: "1001", LastMessageTimes: times}
		svc := NewRateLimitService(newUserRepoStub(user), testBase, nil).WithClock(fixedClock(now))

		result := svc.Check(user)
		if result.Allowed {
			t.Fatal("expected per-hour denial at 50 in-window messages")
		}
		if result.Reason != ReasonPerHour {
			t.Fatalf("reason = %q, want %q", result.Reason, ReasonPerHour)
		}
	})
}

func TestCheckAllowsCleanUser(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	user := &domain.User{ID: "1001"}

	svc := NewRateLimitService(newUserRepoStub(user), testBase, nil).WithClock(fixedClock(now))

	if result := svc.Check(user); !result.Allowed {
		t.Fatalf("expected admission, got %+v", result)
	}
}

func TestCheckIsDeterministicForFixedClock(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	user := &domain.User{
		ID:               "1001",
		LastMessageTimes: []int64{now.Add(-time.Second).UnixMilli()},
	}

	svc := NewRateLimitService(newUserRepoStub(user), testBase, nil).WithClock(fixedClock(now))

	first := svc.Check(user)
	for i := 0; i < 5; i++ {
		if got := svc.Check(user); got != first {
			t.Fatalf("check %d = %+v, want %+v", i, got, first)
		}
	}
}

func TestRecordMessagePrunesOldEntries(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	stale := now.Add(-2 * time.Hour).UnixMilli()
	fresh := now.Add(-30 * time.Minute).UnixMilli()
	user := &domain.User{ID: "1001", LastMessageTimes: []int64{stale, fresh}}

	repo := newUserRepoStub(user)
	svc := NewRateLimitService(repo, testBase, nil).WithClock(fixedClock(now))

	if err := svc.RecordMessage(context.Background(), user); err != nil {
		t.Fatalf("RecordMessage: %v", err)
	}

	want := []int64{fresh, now.UnixMilli()}
	stored := repo.users["1001"].LastMessageTimes
	if len(stored) != len(want) {
		t.Fatalf("stored %v, want %v", stored, want)
	}
	for i := range want {
		if stored[i] != want[i] {
			t.Fatalf("stored %v, want %v", stored, want)
		}
	}
}

func TestHandleViolationEscalates(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	cases := []struct {
		prior   int
		penalty time.Duration
		first   bool
	}{
		{0, 30 * time.Second, true},
		{1, 5 * time.Minute, false},
		{2, 30 * time.Minute, false},
		{7, 30 * time.Minute, false},
	}

	for _, tc := range cases {
		user := &domain.User{ID: "1001", RateLimitViolations: tc.prior}
		repo := newUserRepoStub(user)
		svc := NewRateLimitService(repo, testBase, nil).WithClock(fixedClock(now))

		result, err := svc.HandleViolation(context.Background(), user)
		if err != nil {
			t.Fatalf("HandleViolation(prior=%d): %v", tc.prior, err)
		}
		if result.Violations != tc.prior+1 {
			t.Fatalf("violations = %d, want %d", result.Violations, tc.prior+1)
		}
		if result.PenaltyDuration != tc.penalty {
			t.Fatalf("penalty for violation %d = %v, want %v", tc.prior+1, result.PenaltyDuration, tc.penalty)
		}
		if result.IsFirstViolation != tc.first {
			t.Fatalf("isFirst for violation %d = %v, want %v", tc.prior+1, result.IsFirstViolation, tc.first)
		}
		if want := now.Add(tc.penalty); !result.LimitedUntil.Equal(want) {
			t.Fatalf("limitedUntil = %v, want %v", result.LimitedUntil, want)
		}
	}
}

func TestHandleViolationPenaltiesNeverShrink(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	user := &domain.User{ID: "1001"}
	repo := newUserRepoStub(user)
	svc := NewRateLimitService(repo, testBase, nil).WithClock(fixedClock(now))

	var prev time.Duration
	for i := 0; i < 6; i++ {
		result, err := svc.HandleViolation(context.Background(), user)
		if err != nil {
			t.Fatalf("HandleViolation %d: %v", i, err)
		}
		if result.PenaltyDuration < prev {
			t.Fatalf("penalty shrank at violation %d: %v < %v", i+1, result.PenaltyDuration, prev)
		}
		prev = result.PenaltyDuration
	}
}

func TestResetClearsState(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	until := now.Add(time.Hour)
	user := &domain.User{
		ID:                  "1001",
		RateLimitViolations: 3,
		RateLimitedUntil:    &until,
		LastMessageTimes:    []int64{now.UnixMilli()},
	}
	repo := newUserRepoStub(user)
	svc := NewRateLimitService(repo, testBase, nil).WithClock(fixedClock(now))

	if err := svc.Reset(context.Background(), "1001"); err != nil {
		t.Fatalf("Reset: %v", err)
	}

	stored := repo.users["1001"]
	if stored.RateLimitViolations != 0 || stored.RateLimitedUntil != nil || len(stored.LastMessageTimes) != 0 {
		t.Fatalf("state not cleared: %+v", stored)
	}
}

func TestSetLevelRejectsUnknownTier(t *testing.T) {
	svc := NewRateLimitService(newUserRepoStub(), testBase, nil)
	if err := svc.SetLevel(context.Background(), "1001", domain.RateLimitLevel(7)); err == nil {
		t.Fatal("expected error for unknown level")
	}
}
