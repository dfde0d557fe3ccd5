package domain

import "time"

// RateLimitLevel selects one of the four named rate-limit tiers.
type RateLimitLevel int

const (
	RateLimitNormal     RateLimitLevel = 0
	RateLimitRelaxed    RateLimitLevel = 1
	RateLimitStrict     RateLimitLevel = 2
	RateLimitVeryStrict RateLimitLevel = 3
)

// Valid reports whether the level is one of the four known tiers.
func (l RateLimitLevel) Valid() bool {
	return l >= RateLimitNormal && l <= RateLimitVeryStrict
}

func (l RateLimitLevel) String() string {
	switch l {
	case RateLimitNormal:
		return "normal"
	case RateLimitRelaxed:
		return "relaxed"
	case RateLimitStrict:
		return "strict"
	case RateLimitVeryStrict:
		return "very_strict"
	default:
		return "unknown"
	}
}

// User mirrors the persisted representation in the users table.
// The identity key is the Telegram chat id stored as text.
type User struct {
	ID                 string
	Username           *string
	Note               *string
	IsBlocked          bool
	MessageCount       int
	FirstMessageAt     *time.Time
	LastNotificationAt *time.Time

	// Sliding-window raw data for rate limiting: message timestamps in
	// epoch milliseconds, pruned to the trailing hour on every write.
	LastMessageTimes []int64
	RateLimitLevel   RateLimitLevel
	RateLimitViolations int
	RateLimitedUntil    *time.Time

	IsVerified                bool
	VerifiedAt                *time.Time
	VerificationToken         *string
	VerificationExpiresAt     *time.Time
	VerificationAttempts      int
	VerificationLastAttempt   *time.Time
	VerificationCooldownUntil *time.Time
	VerificationData          *VerificationData

	CreatedAt time.Time
	UpdatedAt time.Time
}

// HasActivePenalty reports whether a rate-limit penalty is in force at now.
func (u *User) HasActivePenalty(now time.Time) bool {
	return u.RateLimitedUntil != nil && u.RateLimitedUntil.After(now)
}

// LastMessageAt returns the newest recorded message timestamp, if any.
func (u *User) LastMessageAt() (time.Time, bool) {
	if len(u.LastMessageTimes) == 0 {
		return time.Time{}, false
	}
	max := u.LastMessageTimes[0]
	for _, t := range u.LastMessageTimes[1:] {
		if t > max {
			max = t
		}
	}
	return time.UnixMilli(max), true
}
