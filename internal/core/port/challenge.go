package port

import (
	"context"

	"github.com/xkrfer/telegram-pm-relay/internal/core/domain"
)

// ChallengeStrategy is the uniform contract every verification method
// implements. Strategies are storage-free: the verification engine persists
// the returned challenge data and the delivered message id.
type ChallengeStrategy interface {
	// Method returns the tag this strategy answers for. A stored payload
	// whose method differs is a failed answer, not an error.
	Method() domain.VerificationMethod
	// GenerateChallenge produces a fresh challenge bound to the session
	// token. Generation failures (e.g. malformed provider output) are
	// returned as errors and surfaced by the caller as a start failure.
	GenerateChallenge(ctx context.Context, userID, token string) (*domain.Challenge, error)
	// VerifyAnswer compares a submitted answer against the stored
	// canonical answer. Pure; never errors.
	VerifyAnswer(data *domain.VerificationData, answer string) bool
	// SendChallenge delivers the challenge to the user and returns the
	// platform message id of the sent challenge, for later editing.
	// Delivery failures are distinct from generation failures.
	SendChallenge(ctx context.Context, userID string, ch *domain.Challenge) (int, error)
}
