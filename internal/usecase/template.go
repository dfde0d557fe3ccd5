package usecase

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/xkrfer/telegram-pm-relay/internal/core/domain"
	"github.com/xkrfer/telegram-pm-relay/internal/core/port"
	"github.com/xkrfer/telegram-pm-relay/internal/repository"
)

// ErrTemplateExists indicates the keyword is already taken.
var ErrTemplateExists = errors.New("template keyword already exists")

// TemplateService manages keyword-keyed canned replies.
type TemplateService struct {
	templates port.TemplateRepository
	logger    *zap.Logger
}

// NewTemplateService wires the template service.
func NewTemplateService(templates port.TemplateRepository, logger *zap.Logger) *TemplateService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TemplateService{templates: templates, logger: logger}
}

// Add stores a new template, rejecting duplicate keywords.
func (s *TemplateService) Add(ctx context.Context, keyword, content string) (*domain.ReplyTemplate, error) {
	if keyword == "" {
		return nil, errors.New("keyword is required")
	}
	if content == "" {
		return nil, errors.New("content is required")
	}

	tpl, err := s.templates.Create(ctx, keyword, content)
	if err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, ErrTemplateExists
		}
		return nil, fmt.Errorf("add template: %w", err)
	}

	s.logger.Info("template added", zap.String("keyword", keyword))
	return tpl, nil
}

// Get resolves a template by keyword, nil when absent.
func (s *TemplateService) Get(ctx context.Context, keyword string) (*domain.ReplyTemplate, error) {
	tpl, err := s.templates.GetByKeyword(ctx, keyword)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get template: %w", err)
	}
	return tpl, nil
}

// List returns every template.
func (s *TemplateService) List(ctx context.Context) ([]domain.ReplyTemplate, error) {
	templates, err := s.templates.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}
	return templates, nil
}

// Remove deletes a template by keyword, reporting whether one existed.
func (s *TemplateService) Remove(ctx context.Context, keyword string) (bool, error) {
	err := s.templates.DeleteByKeyword(ctx, keyword)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("delete template: %w", err)
	}

	s.logger.Info("template deleted", zap.String("keyword", keyword))
	return true, nil
}
