package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xkrfer/telegram-pm-relay/internal/core/domain"
	"github.com/xkrfer/telegram-pm-relay/internal/core/port"
	"github.com/xkrfer/telegram-pm-relay/internal/repository"
)

// BanStatus is the evaluated ban state for a guest.
type BanStatus struct {
	Banned    bool
	Reason    *string
	ExpiresAt *time.Time
}

// ImportResult summarizes a CSV ban-list import.
type ImportResult struct {
	Imported int
	Errors   []string
}

// FraudService manages the advisory ban list. Expired entries are purged
// lazily when observed and in bulk by the sweep.
type FraudService struct {
	bans   port.BanRepository
	logger *zap.Logger
	now    func() time.Time
}

// NewFraudService wires the fraud list service.
func NewFraudService(bans port.BanRepository, logger *zap.Logger) *FraudService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FraudService{
		bans:   bans,
		logger: logger,
		now:    time.Now,
	}
}

// WithClock overrides the time source, for tests.
func (s *FraudService) WithClock(now func() time.Time) *FraudService {
	s.now = now
	return s
}

// Ban inserts or replaces the entry for a guest. A nil duration makes the
// ban permanent.
func (s *FraudService) Ban(ctx context.Context, telegramID, reason, addedBy string, duration *time.Duration) (*domain.BanEntry, error) {
	now := s.now()

	var expiresAt *time.Time
	if duration != nil {
		at := now.Add(*duration)
		expiresAt = &at
	}

	entry := domain.BanEntry{
		TelegramID: telegramID,
		Reason:     &reason,
		ExpiresAt:  expiresAt,
		AddedBy:    &addedBy,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	banned, err := s.bans.Upsert(ctx, entry)
	if err != nil {
		return nil, fmt.Errorf("ban user: %w", err)
	}

	s.logger.Info("user banned",
		zap.String("telegram_id", telegramID),
		zap.String("added_by", addedBy))

	return banned, nil
}

// Unban removes the entry for a guest. Removing an absent entry is not an
// error; the caller learns nothing was there.
func (s *FraudService) Unban(ctx context.Context, telegramID string) (bool, error) {
	err := s.bans.Delete(ctx, telegramID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("unban user: %w", err)
	}

	s.logger.Info("user unbanned", zap.String("telegram_id", telegramID))
	return true, nil
}

// CheckBanned evaluates whether a guest is currently banned. An expired
// entry is deleted on sight and reported as not banned.
func (s *FraudService) CheckBanned(ctx context.Context, telegramID string) (BanStatus, error) {
	entry, err := s.bans.Get(ctx, telegramID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return BanStatus{}, nil
		}
		return BanStatus{}, fmt.Errorf("check ban: %w", err)
	}

	if entry.Expired(s.now()) {
		if _, err := s.Unban(ctx, telegramID); err != nil {
			s.logger.Warn("lazy purge of expired ban failed",
				zap.String("telegram_id", telegramID),
				zap.Error(err))
		}
		return BanStatus{}, nil
	}

	return BanStatus{Banned: true, Reason: entry.Reason, ExpiresAt: entry.ExpiresAt}, nil
}

// ActiveBans lists entries currently in force.
func (s *FraudService) ActiveBans(ctx context.Context) ([]domain.BanEntry, error) {
	entries, err := s.bans.ListActive(ctx, s.now())
	if err != nil {
		return nil, fmt.Errorf("list active bans: %w", err)
	}
	return entries, nil
}

// PurgeExpired removes every lapsed entry, returning the number purged.
func (s *FraudService) PurgeExpired(ctx context.Context) (int, error) {
	purged, err := s.bans.DeleteExpired(ctx, s.now())
	if err != nil {
		return 0, fmt.Errorf("purge expired bans: %w", err)
	}
	if purged > 0 {
		s.logger.Info("purged expired bans", zap.Int("count", purged))
	}
	return purged, nil
}

// ExportCSV renders the full list as CSV with quoted reasons.
func (s *FraudService) ExportCSV(ctx context.Context) (string, error) {
	entries, err := s.bans.ListAll(ctx)
	if err != nil {
		return "", fmt.Errorf("export ban list: %w", err)
	}

	var b strings.Builder
	b.WriteString("telegram_id,reason,expires_at,created_at\n")
	for _, entry := range entries {
		reason := ""
		if entry.Reason != nil {
			reason = strings.ReplaceAll(*entry.Reason, `"`, `""`)
		}
		expires := ""
		if entry.ExpiresAt != nil {
			expires = entry.ExpiresAt.UTC().Format(time.RFC3339)
		}
		fmt.Fprintf(&b, "%s,%q,%s,%s\n",
			entry.TelegramID, reason, expires, entry.CreatedAt.UTC().Format(time.RFC3339))
	}

	return b.String(), nil
}

// ImportCSV ingests a header-prefixed CSV of permanent bans. Malformed rows
// are reported by line number without aborting the rest.
func (s *FraudService) ImportCSV(ctx context.Context, csvContent, addedBy string) (ImportResult, error) {
	lines := strings.Split(strings.TrimSpace(csvContent), "\n")
	result := ImportResult{}
	now := s.now()

	for i, line := range lines {
		if i == 0 {
			continue // header
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		fields := strings.SplitN(line, ",", 3)
		telegramID := strings.Trim(strings.TrimSpace(fields[0]), `"`)
		if telegramID == "" {
			result.Errors = append(result.Errors, fmt.Sprintf("line %d: missing telegram id", i+1))
			continue
		}

		reason := "bulk import"
		if len(fields) > 1 {
			if trimmed := strings.Trim(strings.TrimSpace(fields[1]), `"`); trimmed != "" {
				reason = trimmed
			}
		}

		entry := domain.BanEntry{
			TelegramID: telegramID,
			Reason:     &reason,
			AddedBy:    &addedBy,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		if _, err := s.bans.Upsert(ctx, entry); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("line %d: %v", i+1, err))
			continue
		}
		result.Imported++
	}

	s.logger.Info("ban list imported",
		zap.Int("imported", result.Imported),
		zap.Int("errors", len(result.Errors)),
		zap.String("added_by", addedBy))

	return result, nil
}
