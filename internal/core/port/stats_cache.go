package port

import (
	"context"
	"time"

	"github.com/xkrfer/telegram-pm-relay/internal/core/domain"
)

// StatsCache holds aggregated relay stats for a short TTL so the admin
// /stats command does not hammer the store. Purely an optimization; misses
// and errors fall through to the repositories.
type StatsCache interface {
	Get(ctx context.Context) (*domain.Stats, error)
	Set(ctx context.Context, stats domain.Stats, ttl time.Duration) error
	Invalidate(ctx context.Context) error
}
