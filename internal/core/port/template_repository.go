package port

import (
	"context"

	"github.com/xkrfer/telegram-pm-relay/internal/core/domain"
)

// TemplateRepository persists keyword-keyed quick replies.
type TemplateRepository interface {
	Create(ctx context.Context, keyword, content string) (*domain.ReplyTemplate, error)
	GetByKeyword(ctx context.Context, keyword string) (*domain.ReplyTemplate, error)
	List(ctx context.Context) ([]domain.ReplyTemplate, error)
	DeleteByKeyword(ctx context.Context, keyword string) error
}

// FilterRepository persists inbound-content filter rules.
type FilterRepository interface {
	Create(ctx context.Context, filter domain.MessageFilter) (*domain.MessageFilter, error)
	Delete(ctx context.Context, id int64) error
	SetActive(ctx context.Context, id int64, active bool) error
	SetPriority(ctx context.Context, id int64, priority int) error
	// ListActive returns enabled rules ordered by priority descending,
	// then id ascending.
	ListActive(ctx context.Context) ([]domain.MessageFilter, error)
	ListAll(ctx context.Context) ([]domain.MessageFilter, error)
	Count(ctx context.Context) (int, error)
}
