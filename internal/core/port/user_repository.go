package port

import (
	"context"
	"time"

	"github.com/xkrfer/telegram-pm-relay/internal/core/domain"
)

// UserRepository exposes persistence behavior for per-user relay state. All
// mutations are plain read-modify-write; concurrent updates for the same
// user are not coordinated (accepted design risk).
type UserRepository interface {
	GetByID(ctx context.Context, id string) (*domain.User, error)
	GetByVerificationToken(ctx context.Context, token string) (*domain.User, error)

	// Upsert creates the user row on first contact or bumps the message
	// counter and username on subsequent ones, returning the stored row.
	Upsert(ctx context.Context, id string, username *string, now time.Time) (*domain.User, error)

	SetBlocked(ctx context.Context, id string, blocked bool) error
	SetLastNotificationAt(ctx context.Context, id string, at time.Time) error

	// UpdateMessageTimes replaces the serialized timestamp sequence.
	UpdateMessageTimes(ctx context.Context, id string, times []int64, now time.Time) error
	UpdateRateLimitState(ctx context.Context, id string, violations int, limitedUntil *time.Time, now time.Time) error
	SetRateLimitLevel(ctx context.Context, id string, level domain.RateLimitLevel, now time.Time) error
	ResetRateLimit(ctx context.Context, id string, now time.Time) error

	UpdateVerificationSession(ctx context.Context, id string, token *string, expiresAt *time.Time, data *domain.VerificationData, now time.Time) error
	UpdateVerificationData(ctx context.Context, id string, data *domain.VerificationData, now time.Time) error
	UpdateVerificationAttempts(ctx context.Context, id string, attempts int, lastAttempt *time.Time, cooldownUntil *time.Time, now time.Time) error

	// MarkVerified flips the terminal verified flag and clears all
	// session and attempt fields in one statement.
	MarkVerified(ctx context.Context, id string, now time.Time) error
	// ClearVerification returns the user to the unverified no-session
	// state (admin reverify action).
	ClearVerification(ctx context.Context, id string, now time.Time) error
}
