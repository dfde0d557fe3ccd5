package port

import (
	"context"

	"github.com/xkrfer/telegram-pm-relay/internal/core/domain"
)

// ConfigRepository persists the singleton system configuration row.
type ConfigRepository interface {
	// Get returns the row, or repository.ErrNotFound when none exists.
	Get(ctx context.Context) (*domain.SystemConfig, error)
	// Upsert writes the verification payload, creating the row when
	// absent. UpdatedBy is nil for system-initiated writes.
	Upsert(ctx context.Context, cfg domain.VerificationConfig, updatedBy *string) error
}
