package port

import (
	"context"
	"time"

	"github.com/xkrfer/telegram-pm-relay/internal/core/domain"
)

// MessageRepository persists relay history and admin/guest message mappings.
type MessageRepository interface {
	SaveRecord(ctx context.Context, record domain.MessageRecord) (*domain.MessageRecord, error)
	History(ctx context.Context, telegramID string, limit, offset int) ([]domain.MessageRecord, error)
	// Search performs a substring match over recorded text content,
	// newest first.
	Search(ctx context.Context, keyword string, limit int) ([]domain.MessageRecord, error)

	SaveMapping(ctx context.Context, mapping domain.MessageMap) error
	GetMapping(ctx context.Context, adminMessageID string) (*domain.MessageMap, error)
	// GetMappingByOriginal resolves a guest-side message id back to its
	// forwarded admin copy (used for edit notifications).
	GetMappingByOriginal(ctx context.Context, telegramID, originalMessageID string) (*domain.MessageMap, error)
	RevokeMapping(ctx context.Context, adminMessageID string) error

	CountByDirection(ctx context.Context, direction domain.MessageDirection, since time.Time) (int, error)
	CountActiveUsers(ctx context.Context, since time.Time) (int, error)
	CountAll(ctx context.Context) (int, error)
	CountUsers(ctx context.Context) (int, error)
}
