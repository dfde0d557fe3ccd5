package usecase

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"go.uber.org/zap"

	"github.com/xkrfer/telegram-pm-relay/internal/core/domain"
	"github.com/xkrfer/telegram-pm-relay/internal/core/port"
)

const (
	maxFilterRegexLength = 500
	maxFilterRules       = 50
)

var (
	// ErrFilterRegexTooLong indicates the pattern exceeds the length cap.
	ErrFilterRegexTooLong = errors.New("filter regex too long")
	// ErrFilterRegexInvalid indicates the pattern failed to compile.
	ErrFilterRegexInvalid = errors.New("filter regex invalid")
	// ErrFilterRegexUnsafe indicates the pattern looks prone to
	// catastrophic backtracking.
	ErrFilterRegexUnsafe = errors.New("filter regex has nested quantifiers")
	// ErrFilterLimitReached indicates the rule cap is hit.
	ErrFilterLimitReached = errors.New("filter rule limit reached")
)

// nestedQuantifiers flags adjacent quantifiers, the cheap ReDoS heuristic.
var nestedQuantifiers = regexp.MustCompile(`(\+|\*|\{[0-9,]+\}){2,}`)

// FilterMatch reports which rule matched inbound content.
type FilterMatch struct {
	Matched bool
	Rule    *domain.MessageFilter
}

// FilterService manages admin-authored regex rules applied to inbound text.
// Rules are checked in priority order; a broken stored pattern is skipped,
// never fatal.
type FilterService struct {
	filters port.FilterRepository
	logger  *zap.Logger
	now     func() time.Time
}

// NewFilterService wires the content filter service.
func NewFilterService(filters port.FilterRepository, logger *zap.Logger) *FilterService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FilterService{
		filters: filters,
		logger:  logger,
		now:     time.Now,
	}
}

// WithClock overrides the time source, for tests.
func (s *FilterService) WithClock(now func() time.Time) *FilterService {
	s.now = now
	return s
}

// ValidateRegex enforces the length cap, compilability, and the nested
// quantifier heuristic.
func (s *FilterService) ValidateRegex(pattern string) error {
	if len(pattern) > maxFilterRegexLength {
		return ErrFilterRegexTooLong
	}
	if _, err := regexp.Compile(pattern); err != nil {
		return fmt.Errorf("%w: %v", ErrFilterRegexInvalid, err)
	}
	if nestedQuantifiers.MatchString(pattern) {
		return ErrFilterRegexUnsafe
	}
	return nil
}

// Add validates and stores a new rule.
func (s *FilterService) Add(ctx context.Context, pattern string, mode domain.FilterMode, note *string, priority int) (*domain.MessageFilter, error) {
	count, err := s.filters.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("count filters: %w", err)
	}
	if count >= maxFilterRules {
		return nil, ErrFilterLimitReached
	}

	if err := s.ValidateRegex(pattern); err != nil {
		return nil, err
	}

	filter := domain.MessageFilter{
		Regex:     pattern,
		Mode:      mode,
		Note:      note,
		Priority:  priority,
		IsActive:  true,
		CreatedAt: s.now(),
	}

	created, err := s.filters.Create(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("add filter: %w", err)
	}

	s.logger.Info("filter rule added",
		zap.Int64("filter_id", created.ID),
		zap.String("mode", string(mode)),
		zap.Int("priority", priority))

	return created, nil
}

// Remove deletes a rule by id.
func (s *FilterService) Remove(ctx context.Context, id int64) error {
	if err := s.filters.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete filter: %w", err)
	}
	s.logger.Info("filter rule deleted", zap.Int64("filter_id", id))
	return nil
}

// Toggle enables or disables a rule.
func (s *FilterService) Toggle(ctx context.Context, id int64, active bool) error {
	if err := s.filters.SetActive(ctx, id, active); err != nil {
		return fmt.Errorf("toggle filter: %w", err)
	}
	return nil
}

// SetPriority reorders a rule.
func (s *FilterService) SetPriority(ctx context.Context, id int64, priority int) error {
	if err := s.filters.SetPriority(ctx, id, priority); err != nil {
		return fmt.Errorf("set filter priority: %w", err)
	}
	return nil
}

// List returns every rule, active or not.
func (s *FilterService) List(ctx context.Context) ([]domain.MessageFilter, error) {
	filters, err := s.filters.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("list filters: %w", err)
	}
	return filters, nil
}

// CheckContent runs inbound text through the active rules in priority
// order and reports the first match.
func (s *FilterService) CheckContent(ctx context.Context, content string) (FilterMatch, error) {
	filters, err := s.filters.ListActive(ctx)
	if err != nil {
		return FilterMatch{}, fmt.Errorf("list active filters: %w", err)
	}

	for i := range filters {
		re, err := regexp.Compile(filters[i].Regex)
		if err != nil {
			s.logger.Warn("skipping broken filter regex",
				zap.Int64("filter_id", filters[i].ID),
				zap.Error(err))
			continue
		}
		if re.MatchString(content) {
			return FilterMatch{Matched: true, Rule: &filters[i]}, nil
		}
	}

	return FilterMatch{}, nil
}
