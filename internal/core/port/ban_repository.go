package port

import (
	"context"
	"time"

	"github.com/xkrfer/telegram-pm-relay/internal/core/domain"
)

// BanRepository persists the advisory fraud list.
type BanRepository interface {
	// Upsert inserts or replaces the entry for the given telegram id.
	Upsert(ctx context.Context, entry domain.BanEntry) (*domain.BanEntry, error)
	Get(ctx context.Context, telegramID string) (*domain.BanEntry, error)
	Delete(ctx context.Context, telegramID string) error
	// ListActive returns entries that are permanent or expire after now.
	ListActive(ctx context.Context, now time.Time) ([]domain.BanEntry, error)
	ListAll(ctx context.Context) ([]domain.BanEntry, error)
	// DeleteExpired purges entries whose expiry has passed, returning the
	// number removed. Safe to run concurrently with live traffic.
	DeleteExpired(ctx context.Context, now time.Time) (int, error)
	Count(ctx context.Context) (int, error)
}
