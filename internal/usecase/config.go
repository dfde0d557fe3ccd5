package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/xkrfer/telegram-pm-relay/internal/core/domain"
	"github.com/xkrfer/telegram-pm-relay/internal/core/port"
	"github.com/xkrfer/telegram-pm-relay/internal/infra/config"
	"github.com/xkrfer/telegram-pm-relay/internal/repository"
)

const configCacheTTL = time.Minute

// ErrMethodConfigIncomplete indicates the selected verification method is
// missing required deployment secrets.
var ErrMethodConfigIncomplete = errors.New("verification method configuration incomplete")

// MethodValidation reports whether a verification method can be enabled and
// which deployment values are missing when it cannot.
type MethodValidation struct {
	Valid   bool
	Missing []string
}

type cachedConfig struct {
	value  domain.VerificationConfig
	expiry time.Time
}

// ConfigService serves the runtime verification configuration: the stored
// row merged with deployment secrets, falling back to deployment defaults
// when no row exists. Reads are cached for one minute; every write
// invalidates the cache explicitly, so a stale read never outlives the TTL.
type ConfigService struct {
	repo   port.ConfigRepository
	app    *config.AppConfig
	logger *zap.Logger
	now    func() time.Time

	mu    sync.Mutex
	cache *cachedConfig
}

// NewConfigService wires the config service.
func NewConfigService(repo port.ConfigRepository, app *config.AppConfig, logger *zap.Logger) *ConfigService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ConfigService{
		repo:   repo,
		app:    app,
		logger: logger,
		now:    time.Now,
	}
}

// WithClock overrides the time source, for tests.
func (s *ConfigService) WithClock(now func() time.Time) *ConfigService {
	s.now = now
	return s
}

// VerificationConfig returns the effective verification configuration with
// secrets merged in.
func (s *ConfigService) VerificationConfig(ctx context.Context) (domain.VerificationConfig, error) {
	now := s.now()

	s.mu.Lock()
	if s.cache != nil && now.Before(s.cache.expiry) {
		cfg := s.cache.value
		s.mu.Unlock()
		return cfg, nil
	}
	s.mu.Unlock()

	stored, err := s.repo.Get(ctx)

	var cfg domain.VerificationConfig
	switch {
	case err == nil:
		cfg = s.mergeSecrets(stored.Verification)
	case errors.Is(err, repository.ErrNotFound):
		cfg = s.defaultConfig()
	default:
		return domain.VerificationConfig{}, fmt.Errorf("load system config: %w", err)
	}

	s.mu.Lock()
	s.cache = &cachedConfig{value: cfg, expiry: now.Add(configCacheTTL)}
	s.mu.Unlock()

	return cfg, nil
}

// mergeSecrets overlays deployment secrets onto the stored payload. Secrets
// are never persisted, so the stored turnstile/ai sections carry only their
// non-sensitive fields.
func (s *ConfigService) mergeSecrets(cfg domain.VerificationConfig) domain.VerificationConfig {
	if cfg.Turnstile != nil {
		merged := *cfg.Turnstile
		merged.SecretKey = s.app.Turnstile.SecretKey
		cfg.Turnstile = &merged
	}
	if cfg.AI != nil {
		merged := *cfg.AI
		merged.APIKey = s.app.AI.APIKey
		cfg.AI = &merged
	}
	return cfg
}

// defaultConfig derives the configuration from deployment values when no
// row exists yet.
func (s *ConfigService) defaultConfig() domain.VerificationConfig {
	cfg := domain.VerificationConfig{
		Enabled: s.app.Verification.Required,
		Method:  domain.MethodMath,
		Timeout: int64(s.app.Verification.Timeout.Seconds()),
	}
	if s.app.Turnstile.SiteKey != "" {
		cfg.Turnstile = &domain.TurnstileConfig{
			SiteKey:   s.app.Turnstile.SiteKey,
			SecretKey: s.app.Turnstile.SecretKey,
		}
	}
	if s.app.AI.APIKey != "" {
		cfg.AI = &domain.AIConfig{
			BaseURL: s.app.AI.BaseURL,
			Model:   s.app.AI.Model,
			APIKey:  s.app.AI.APIKey,
		}
	}
	return cfg
}

// ValidateMethodConfig checks the deployment carries everything the method
// needs. Math, quiz, and none have no external requirements.
func (s *ConfigService) ValidateMethodConfig(method domain.VerificationMethod) MethodValidation {
	switch method {
	case domain.MethodNone, domain.MethodMath, domain.MethodQuiz:
		return MethodValidation{Valid: true}
	case domain.MethodTurnstile:
		var missing []string
		if s.app.Turnstile.SiteKey == "" {
			missing = append(missing, "turnstile.site_key")
		}
		if s.app.Turnstile.SecretKey == "" {
			missing = append(missing, "turnstile.secret_key")
		}
		return MethodValidation{Valid: len(missing) == 0, Missing: missing}
	case domain.MethodAI:
		var missing []string
		if s.app.AI.APIKey == "" {
			missing = append(missing, "ai.api_key")
		}
		if s.app.AI.BaseURL == "" {
			missing = append(missing, "ai.base_url")
		}
		if s.app.AI.Model == "" {
			missing = append(missing, "ai.model")
		}
		return MethodValidation{Valid: len(missing) == 0, Missing: missing}
	default:
		return MethodValidation{Valid: false}
	}
}

// SetMethod switches the active verification method after validating the
// deployment can support it.
func (s *ConfigService) SetMethod(ctx context.Context, method domain.VerificationMethod, adminID string) error {
	if !method.Valid() {
		return fmt.Errorf("unknown verification method %q", method)
	}
	if validation := s.ValidateMethodConfig(method); !validation.Valid {
		return fmt.Errorf("%w: missing %v", ErrMethodConfigIncomplete, validation.Missing)
	}

	current, err := s.VerificationConfig(ctx)
	if err != nil {
		return err
	}
	current.Method = method

	if err := s.repo.Upsert(ctx, current, &adminID); err != nil {
		return fmt.Errorf("store verification method: %w", err)
	}
	s.Invalidate()

	s.logger.Info("verification method updated",
		zap.String("method", string(method)),
		zap.String("admin_id", adminID))

	return nil
}

// SetEnabled toggles the verification requirement.
func (s *ConfigService) SetEnabled(ctx context.Context, enabled bool, adminID string) error {
	current, err := s.VerificationConfig(ctx)
	if err != nil {
		return err
	}
	current.Enabled = enabled

	if err := s.repo.Upsert(ctx, current, &adminID); err != nil {
		return fmt.Errorf("store verification enabled state: %w", err)
	}
	s.Invalidate()

	s.logger.Info("verification enabled state updated",
		zap.Bool("enabled", enabled),
		zap.String("admin_id", adminID))

	return nil
}

// InitializeDefaults writes the deployment-derived configuration on first
// startup so later edits have a row to build on. Existing rows are left
// untouched.
func (s *ConfigService) InitializeDefaults(ctx context.Context) error {
	_, err := s.repo.Get(ctx)
	if err == nil {
		return nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("check system config: %w", err)
	}

	if err := s.repo.Upsert(ctx, s.defaultConfig(), nil); err != nil {
		return fmt.Errorf("initialize system config: %w", err)
	}
	s.Invalidate()

	s.logger.Info("initialized default verification config")
	return nil
}

// Invalidate drops the cached configuration so the next read hits the store.
func (s *ConfigService) Invalidate() {
	s.mu.Lock()
	s.cache = nil
	s.mu.Unlock()
}
