package usecase

import (
	"context"
	"time"

	"github.com/xkrfer/telegram-pm-relay/internal/core/domain"
	"github.com/xkrfer/telegram-pm-relay/internal/repository"
)

// userRepoStub is an in-memory port.UserRepository for unit tests. It
// applies every mutation to its map so call sequences observe each other.
type userRepoStub struct {
	users map[string]*domain.User

	updateTimesErr    error
	updateRateErr     error
	updateSessionErr  error
	updateAttemptsErr error
	markVerifiedErr   error
}

func newUserRepoStub(users ...*domain.User) *userRepoStub {
	stub := &userRepoStub{users: make(map[string]*domain.User)}
	for _, u := range users {
		stub.users[u.ID] = u
	}
	return stub
}

func (m *userRepoStub) get(id string) (*domain.User, error) {
	if u, ok := m.users[id]; ok {
		return u, nil
	}
	return nil, repository.ErrNotFound
}

func (m *userRepoStub) GetByID(_ context.Context, id string) (*domain.User, error) {
	u, err := m.get(id)
	if err != nil {
		return nil, err
	}
	copied := *u
	return &copied, nil
}

func (m *userRepoStub) GetByVerificationToken(_ context.Context, token string) (*domain.User, error) {
	for _, u := range m.users {
		if u.VerificationToken != nil && *u.VerificationToken == token {
			copied := *u
			return &copied, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *userRepoStub) Upsert(_ context.Context, id string, username *string, now time.Time) (*domain.User, error) {
	if u, ok := m.users[id]; ok {
		u.MessageCount++
		if username != nil {
			u.Username = username
		}
		u.UpdatedAt = now
		copied := *u
		return &copied, nil
	}
	u := &domain.User{
		ID:             id,
		Username:       username,
		MessageCount:   1,
		FirstMessageAt: &now,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	m.users[id] = u
	copied := *u
	return &copied, nil
}

func (m *userRepoStub) SetBlocked(_ context.Context, id string, blocked bool) error {
	u, err := m.get(id)
	if err != nil {
		return err
	}
	u.IsBlocked = blocked
	return nil
}

func (m *userRepoStub) SetLastNotificationAt(_ context.Context, id string, at time.Time) error {
	u, err := m.get(id)
	if err != nil {
		return err
	}
	u.LastNotificationAt = &at
	return nil
}

func (m *userRepoStub) UpdateMessageTimes(_ context.Context, id string, times []int64, now time.Time) error {
	if m.updateTimesErr != nil {
		return m.updateTimesErr
	}
	u, err := m.get(id)
	if err != nil {
		return err
	}
	u.LastMessageTimes = times
	u.UpdatedAt = now
	return nil
}

func (m *userRepoStub) UpdateRateLimitState(_ context.Context, id string, violations int, limitedUntil *time.Time, now time.Time) error {
	if m.updateRateErr != nil {
		return m.updateRateErr
	}
	u, err := m.get(id)
	if err != nil {
		return err
	}
	u.RateLimitViolations = violations
	u.RateLimitedUntil = limitedUntil
	u.UpdatedAt = now
	return nil
}

func (m *userRepoStub) SetRateLimitLevel(_ context.Context, id string, level domain.RateLimitLevel, now time.Time) error {
	u, err := m.get(id)
	if err != nil {
		return err
	}
	u.RateLimitLevel = level
	u.UpdatedAt = now
	return nil
}

func (m *userRepoStub) ResetRateLimit(_ context.Context, id string, now time.Time) error {
	u, err := m.get(id)
	if err != nil {
		return err
	}
	u.RateLimitViolations = 0
	u.RateLimitedUntil = nil
	u.LastMessageTimes = nil
	u.UpdatedAt = now
	return nil
}

func (m *userRepoStub) UpdateVerificationSession(_ context.Context, id string, token *string, expiresAt *time.Time, data *domain.VerificationData, now time.Time) error {
	if m.updateSessionErr != nil {
		return m.updateSessionErr
	}
	u, err := m.get(id)
	if err != nil {
		return err
	}
	u.VerificationToken = token
	u.VerificationExpiresAt = expiresAt
	u.VerificationData = data
	u.UpdatedAt = now
	return nil
}

func (m *userRepoStub) UpdateVerificationData(_ context.Context, id string, data *domain.VerificationData, now time.Time) error {
	u, err := m.get(id)
	if err != nil {
		return err
	}
	u.VerificationData = data
	u.UpdatedAt = now
	return nil
}

func (m *userRepoStub) UpdateVerificationAttempts(_ context.Context, id string, attempts int, lastAttempt *time.Time, cooldownUntil *time.Time, now time.Time) error {
	if m.updateAttemptsErr != nil {
		return m.updateAttemptsErr
	}
	u, err := m.get(id)
	if err != nil {
		return err
	}
	u.VerificationAttempts = attempts
	u.VerificationLastAttempt = lastAttempt
	u.VerificationCooldownUntil = cooldownUntil
	u.UpdatedAt = now
	return nil
}

func (m *userRepoStub) MarkVerified(_ context.Context, id string, now time.Time) error {
	if m.markVerifiedErr != nil {
		return m.markVerifiedErr
	}
	u, err := m.get(id)
	if err != nil {
		return err
	}
	u.IsVerified = true
	u.VerifiedAt = &now
	u.VerificationToken = nil
	u.VerificationExpiresAt = nil
	u.VerificationData = nil
	u.VerificationAttempts = 0
	u.VerificationLastAttempt = nil
	u.VerificationCooldownUntil = nil
	u.UpdatedAt = now
	return nil
}

func (m *userRepoStub) ClearVerification(_ context.Context, id string, now time.Time) error {
	u, err := m.get(id)
	if err != nil {
		return err
	}
	u.IsVerified = false
	u.VerifiedAt = nil
	u.VerificationToken = nil
	u.VerificationExpiresAt = nil
	u.VerificationData = nil
	u.VerificationAttempts = 0
	u.VerificationLastAttempt = nil
	u.VerificationCooldownUntil = nil
	u.UpdatedAt = now
	return nil
}
