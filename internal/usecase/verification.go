package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/xkrfer/telegram-pm-relay/internal/core/domain"
	"github.com/xkrfer/telegram-pm-relay/internal/core/port"
	"github.com/xkrfer/telegram-pm-relay/internal/infra/security"
	"github.com/xkrfer/telegram-pm-relay/internal/repository"
)

const (
	maxAttemptsPerWindow   = 3
	attemptWindow          = time.Hour
	maxVerifyCooldownHours = 24
)

var (
	// ErrAlreadyVerified indicates the user passed verification earlier.
	ErrAlreadyVerified = errors.New("user already verified")
	// ErrVerificationCooldown indicates the user is in backoff after
	// exhausting the attempt budget.
	ErrVerificationCooldown = errors.New("verification in cooldown")
	// ErrVerificationLimit indicates the hourly attempt budget is spent.
	ErrVerificationLimit = errors.New("verification attempt limit reached")
	// ErrTokenInvalid indicates the supplied verification token matches
	// no user.
	ErrTokenInvalid = errors.New("verification token invalid")
	// ErrTokenExpired indicates the token matched but its session expired.
	ErrTokenExpired = errors.New("verification token expired")
	// ErrNoStrategy indicates the configured method has no registered
	// challenge strategy.
	ErrNoStrategy = errors.New("no strategy for verification method")
	// ErrNoActiveSession indicates an answer arrived without a pending
	// challenge.
	ErrNoActiveSession = errors.New("no active verification session")
)

// RequestEligibility is the outcome of the pre-challenge admission check.
type RequestEligibility struct {
	Allowed           bool
	AttemptsRemaining int
	CooldownEnds      *time.Time
}

// VerificationStatus summarizes a user's verification state for display.
type VerificationStatus struct {
	IsVerified        bool
	HasActiveSession  bool
	SessionExpired    bool
	AttemptsRemaining int
	CooldownEnds      *time.Time
}

// VerificationService drives the human-verification state machine: session
// issuance, attempt budgets with exponential backoff, and the terminal
// verified flag.
type VerificationService struct {
	users      port.UserRepository
	config     *ConfigService
	strategies map[domain.VerificationMethod]port.ChallengeStrategy
	logger     *zap.Logger
	now        func() time.Time
	newToken   func() (string, error)
}

// NewVerificationService wires the verification engine.
func NewVerificationService(
	users port.UserRepository,
	config *ConfigService,
	strategies map[domain.VerificationMethod]port.ChallengeStrategy,
	logger *zap.Logger,
) *VerificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &VerificationService{
		users:      users,
		config:     config,
		strategies: strategies,
		logger:     logger,
		now:        time.Now,
		newToken:   security.GenerateVerificationToken,
	}
}

// WithClock overrides the time source, for tests.
func (s *VerificationService) WithClock(now func() time.Time) *VerificationService {
	s.now = now
	return s
}

// WithTokenSource overrides token generation, for tests.
func (s *VerificationService) WithTokenSource(gen func() (string, error)) *VerificationService {
	s.newToken = gen
	return s
}

// cooldownDuration implements the exponential backoff schedule: no cooldown
// through the third attempt, then 2^(attempts-3) hours capped at 24.
func cooldownDuration(attempts int) time.Duration {
	if attempts <= maxAttemptsPerWindow {
		return 0
	}
	hours := 1
	for i := 0; i < attempts-maxAttemptsPerWindow; i++ {
		hours *= 2
		if hours >= maxVerifyCooldownHours {
			return maxVerifyCooldownHours * time.Hour
		}
	}
	return time.Duration(hours) * time.Hour
}

// CanRequest checks whether the user may start another verification attempt.
// The attempt window is anchored on the single last-attempt timestamp: the
// counter resets only when the most recent attempt is over an hour old.
func (s *VerificationService) CanRequest(user *domain.User) RequestEligibility {
	if user == nil {
		return RequestEligibility{Allowed: true, AttemptsRemaining: maxAttemptsPerWindow}
	}
	if user.IsVerified {
		return RequestEligibility{Allowed: false}
	}

	now := s.now()

	if user.VerificationCooldownUntil != nil && user.VerificationCooldownUntil.After(now) {
		ends := *user.VerificationCooldownUntil
		return RequestEligibility{Allowed: false, CooldownEnds: &ends}
	}

	if user.VerificationLastAttempt != nil && user.VerificationLastAttempt.After(now.Add(-attemptWindow)) {
		if user.VerificationAttempts >= maxAttemptsPerWindow {
			return RequestEligibility{Allowed: false, AttemptsRemaining: 0}
		}
		return RequestEligibility{
			Allowed:           true,
			AttemptsRemaining: maxAttemptsPerWindow - user.VerificationAttempts,
		}
	}

	return RequestEligibility{Allowed: true, AttemptsRemaining: maxAttemptsPerWindow}
}

// RecordAttempt counts one verification attempt. When the budget is
// exceeded it sets the backoff deadline; attempts made after the window
// lapsed restart the count at one.
func (s *VerificationService) RecordAttempt(ctx context.Context, user *domain.User) error {
	now := s.now()

	attempts := 1
	var cooldownUntil *time.Time

	if user.VerificationLastAttempt != nil && user.VerificationLastAttempt.After(now.Add(-attemptWindow)) {
		attempts = user.VerificationAttempts + 1
		if attempts > maxAttemptsPerWindow {
			until := now.Add(cooldownDuration(attempts))
			cooldownUntil = &until
			if attempts == maxAttemptsPerWindow+1 {
				s.logger.Warn("user entered verification cooldown",
					zap.String("user_id", user.ID),
					zap.Int("attempts", attempts),
					zap.Time("cooldown_until", until))
			}
		}
	}

	lastAttempt := now
	if err := s.users.UpdateVerificationAttempts(ctx, user.ID, attempts, &lastAttempt, cooldownUntil, now); err != nil {
		return fmt.Errorf("record verification attempt: %w", err)
	}

	user.VerificationAttempts = attempts
	user.VerificationLastAttempt = &lastAttempt
	user.VerificationCooldownUntil = cooldownUntil
	return nil
}

// Start issues a fresh verification session for the configured method and
// delivers the challenge. When verification is disabled or the method is
// none, the user is marked verified immediately.
func (s *VerificationService) Start(ctx context.Context, user *domain.User) error {
	cfg, err := s.config.VerificationConfig(ctx)
	if err != nil {
		return fmt.Errorf("load verification config: %w", err)
	}

	now := s.now()

	if !cfg.Enabled || cfg.Method == domain.MethodNone {
		if err := s.users.MarkVerified(ctx, user.ID, now); err != nil {
			return fmt.Errorf("mark verified: %w", err)
		}
		user.IsVerified = true
		return nil
	}

	strategy, ok := s.strategies[cfg.Method]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoStrategy, cfg.Method)
	}

	token, err := s.newToken()
	if err != nil {
		return fmt.Errorf("generate verification token: %w", err)
	}
	expiresAt := now.Add(time.Duration(cfg.Timeout) * time.Second)

	challenge, err := strategy.GenerateChallenge(ctx, user.ID, token)
	if err != nil {
		return fmt.Errorf("generate challenge: %w", err)
	}

	data := &domain.VerificationData{
		Method:        cfg.Method,
		Question:      challenge.Question,
		Options:       challenge.Options,
		CorrectAnswer: challenge.CorrectAnswer,
	}
	if err := s.users.UpdateVerificationSession(ctx, user.ID, &token, &expiresAt, data, now); err != nil {
		return fmt.Errorf("store verification session: %w", err)
	}

	messageID, err := strategy.SendChallenge(ctx, user.ID, challenge)
	if err != nil {
		return fmt.Errorf("send challenge: %w", err)
	}
	if messageID != 0 {
		data.MessageID = messageID
		if err := s.users.UpdateVerificationData(ctx, user.ID, data, now); err != nil {
			return fmt.Errorf("store challenge message id: %w", err)
		}
	}

	user.VerificationToken = &token
	user.VerificationExpiresAt = &expiresAt
	user.VerificationData = data

	s.logger.Info("verification started",
		zap.String("user_id", user.ID),
		zap.String("method", string(cfg.Method)))

	return nil
}

// CreateLink issues a fresh session token and returns the out-of-band
// verification URL for it.
func (s *VerificationService) CreateLink(ctx context.Context, userID, baseURL string) (string, error) {
	cfg, err := s.config.VerificationConfig(ctx)
	if err != nil {
		return "", fmt.Errorf("load verification config: %w", err)
	}

	token, err := s.newToken()
	if err != nil {
		return "", fmt.Errorf("generate verification token: %w", err)
	}

	now := s.now()
	expiresAt := now.Add(time.Duration(cfg.Timeout) * time.Second)
	if err := s.users.UpdateVerificationSession(ctx, userID, &token, &expiresAt, nil, now); err != nil {
		return "", fmt.Errorf("store verification session: %w", err)
	}

	return fmt.Sprintf("%s/verify/%s", baseURL, token), nil
}

// SubmitAnswer evaluates a challenge response. A correct answer flips the
// terminal verified flag; a wrong one counts an attempt.
func (s *VerificationService) SubmitAnswer(ctx context.Context, user *domain.User, answer string) (bool, error) {
	if user.IsVerified {
		return true, nil
	}
	if user.VerificationData == nil {
		return false, ErrNoActiveSession
	}
	if user.VerificationExpiresAt != nil && user.VerificationExpiresAt.Before(s.now()) {
		return false, ErrTokenExpired
	}

	strategy, ok := s.strategies[user.VerificationData.Method]
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrNoStrategy, user.VerificationData.Method)
	}

	// Attempts are counted when a challenge is issued, not per wrong tap;
	// the guest keeps the same question until the session expires.
	if !strategy.VerifyAnswer(user.VerificationData, answer) {
		return false, nil
	}

	now := s.now()
	if err := s.users.MarkVerified(ctx, user.ID, now); err != nil {
		return false, fmt.Errorf("mark verified: %w", err)
	}
	user.IsVerified = true
	user.VerifiedAt = &now

	s.logger.Info("user verified", zap.String("user_id", user.ID))
	return true, nil
}

// InspectToken classifies a verification link before the challenge page is
// served: nil means the session is live, otherwise one of ErrTokenInvalid,
// ErrAlreadyVerified, or ErrTokenExpired.
func (s *VerificationService) InspectToken(ctx context.Context, token string) error {
	user, err := s.users.GetByVerificationToken(ctx, token)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrTokenInvalid
		}
		return fmt.Errorf("lookup verification token: %w", err)
	}
	if user.IsVerified {
		return ErrAlreadyVerified
	}
	if user.VerificationExpiresAt != nil && user.VerificationExpiresAt.Before(s.now()) {
		return ErrTokenExpired
	}
	return nil
}

// MarkVerifiedByToken completes verification for the session identified by
// token. Already-verified users succeed idempotently; an expired session is
// reported distinctly from an unknown token.
func (s *VerificationService) MarkVerifiedByToken(ctx context.Context, token string) (string, error) {
	user, err := s.users.GetByVerificationToken(ctx, token)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return "", ErrTokenInvalid
		}
		return "", fmt.Errorf("lookup verification token: %w", err)
	}

	if user.IsVerified {
		return user.ID, nil
	}

	now := s.now()
	if user.VerificationExpiresAt != nil && user.VerificationExpiresAt.Before(now) {
		return "", ErrTokenExpired
	}

	if err := s.users.MarkVerified(ctx, user.ID, now); err != nil {
		return "", fmt.Errorf("mark verified: %w", err)
	}

	s.logger.Info("user verified", zap.String("user_id", user.ID))
	return user.ID, nil
}

// Status reports the user's verification state for the admin view.
func (s *VerificationService) Status(user *domain.User) VerificationStatus {
	if user == nil {
		return VerificationStatus{AttemptsRemaining: maxAttemptsPerWindow}
	}
	if user.IsVerified {
		return VerificationStatus{IsVerified: true}
	}

	now := s.now()
	status := VerificationStatus{}

	if user.VerificationToken != nil && user.VerificationExpiresAt != nil {
		if user.VerificationExpiresAt.After(now) {
			status.HasActiveSession = true
		} else {
			status.SessionExpired = true
		}
	}

	eligibility := s.CanRequest(user)
	status.AttemptsRemaining = eligibility.AttemptsRemaining
	status.CooldownEnds = eligibility.CooldownEnds

	return status
}

// Clear resets a user to the unverified no-session state (admin action).
func (s *VerificationService) Clear(ctx context.Context, userID string) error {
	if err := s.users.ClearVerification(ctx, userID, s.now()); err != nil {
		return fmt.Errorf("clear verification: %w", err)
	}
	return nil
}

// ResetAttempts zeroes the attempt counter and cooldown so the user can
// request a fresh challenge immediately (admin action).
func (s *VerificationService) ResetAttempts(ctx context.Context, userID string) error {
	if err := s.users.UpdateVerificationAttempts(ctx, userID, 0, nil, nil, s.now()); err != nil {
		return fmt.Errorf("reset verification attempts: %w", err)
	}
	return nil
}
