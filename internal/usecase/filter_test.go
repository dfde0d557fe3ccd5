package usecase

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/xkrfer/telegram-pm-relay/internal/core/domain"
)

func TestValidateRegex(t *testing.T) {
	svc := NewFilterService(&filterRepoStub{}, nil)

	cases := []struct {
		name    string
		pattern string
		wantErr error
	}{
		{name: "plain word", pattern: "spam"},
		{name: "anchored", pattern: `^https?://`},
		{name: "too long", pattern: strings.Repeat("a", 501), wantErr: ErrFilterRegexTooLong},
		{name: "does not compile", pattern: "(unclosed", wantErr: ErrFilterRegexInvalid},
		{name: "stacked quantifiers rejected by engine", pattern: "a**", wantErr: ErrFilterRegexInvalid},
		{name: "adjacent quantifier chars", pattern: "[+*]{2,}x", wantErr: ErrFilterRegexUnsafe},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := svc.ValidateRegex(tc.pattern)
			if tc.wantErr == nil {
				if err != nil {
					t.Fatalf("ValidateRegex(%q) = %v, want nil", tc.pattern, err)
				}
				return
			}
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("ValidateRegex(%q) = %v, want %v", tc.pattern, err, tc.wantErr)
			}
		})
	}
}

func TestAddRejectsOverCap(t *testing.T) {
	repo := &filterRepoStub{}
	for i := 0; i < maxFilterRules; i++ {
		repo.filters = append(repo.filters, domain.MessageFilter{ID: int64(i + 1), Regex: "x", IsActive: true})
	}
	svc := NewFilterService(repo, nil)

	if _, err := svc.Add(context.Background(), "spam", domain.FilterBlock, nil, 0); !errors.Is(err, ErrFilterLimitReached) {
		t.Fatalf("err = %v, want ErrFilterLimitReached", err)
	}
}

func TestAddStoresActiveRule(t *testing.T) {
	repo := &filterRepoStub{}
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	svc := NewFilterService(repo, nil).WithClock(fixedClock(now))

	note := "crypto spam"
	created, err := svc.Add(context.Background(), `(?i)free bitcoin`, domain.FilterDrop, &note, 10)
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if created.ID == 0 || !created.IsActive || created.Priority != 10 {
		t.Fatalf("created = %+v", created)
	}
	if !created.CreatedAt.Equal(now) {
		t.Fatalf("CreatedAt = %v, want %v", created.CreatedAt, now)
	}
}

func TestCheckContentPriorityOrder(t *testing.T) {
	repo := &filterRepoStub{filters: []domain.MessageFilter{
		{ID: 1, Regex: "spam", Mode: domain.FilterBlock, Priority: 1, IsActive: true},
		{ID: 2, Regex: "spam", Mode: domain.FilterDrop, Priority: 5, IsActive: true},
	}}
	svc := NewFilterService(repo, nil)

	match, err := svc.CheckContent(context.Background(), "this is spam")
	if err != nil {
		t.Fatalf("CheckContent: %v", err)
	}
	if !match.Matched || match.Rule.ID != 2 {
		t.Fatalf("match = %+v, want rule 2", match)
	}
}

func TestCheckContentSkipsInactiveAndBroken(t *testing.T) {
	repo := &filterRepoStub{filters: []domain.MessageFilter{
		{ID: 1, Regex: "spam", Mode: domain.FilterBlock, Priority: 9, IsActive: false},
		{ID: 2, Regex: "(broken", Mode: domain.FilterBlock, Priority: 8, IsActive: true},
		{ID: 3, Regex: "sp.m", Mode: domain.FilterDrop, Priority: 1, IsActive: true},
	}}
	svc := NewFilterService(repo, nil)

	match, err := svc.CheckContent(context.Background(), "spam here")
	if err != nil {
		t.Fatalf("CheckContent: %v", err)
	}
	if !match.Matched || match.Rule.ID != 3 {
		t.Fatalf("match = %+v, want rule 3", match)
	}
}

func TestCheckContentNoMatch(t *testing.T) {
	repo := &filterRepoStub{filters: []domain.MessageFilter{
		{ID: 1, Regex: "^sell$", Mode: domain.FilterBlock, IsActive: true},
	}}
	svc := NewFilterService(repo, nil)

	match, err := svc.CheckContent(context.Background(), "hello there")
	if err != nil {
		t.Fatalf("CheckContent: %v", err)
	}
	if match.Matched {
		t.Fatalf("match = %+v, want none", match)
	}
}

func TestToggleAndPriority(t *testing.T) {
	repo := &filterRepoStub{filters: []domain.MessageFilter{
		{ID: 1, Regex: "spam", IsActive: true},
	}}
	svc := NewFilterService(repo, nil)

	if err := svc.Toggle(context.Background(), 1, false); err != nil {
		t.Fatalf("Toggle: %v", err)
	}
	if repo.filters[0].IsActive {
		t.Fatal("rule still active")
	}
	if err := svc.SetPriority(context.Background(), 1, 42); err != nil {
		t.Fatalf("SetPriority: %v", err)
	}
	if repo.filters[0].Priority != 42 {
		t.Fatalf("priority = %d, want 42", repo.filters[0].Priority)
	}
	if err := svc.Toggle(context.Background(), 99, true); err == nil {
		t.Fatal("expected error for unknown rule")
	}
}
