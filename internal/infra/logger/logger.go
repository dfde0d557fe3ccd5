package logger

import (
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	lg   *zap.Logger
	once sync.Once
)

// RequestIDKey is the context key for the per-request correlation id.
type RequestIDKey struct{}

// New returns a singleton zap.Logger configured for structured logging.
func New(env string) (*zap.Logger, error) {
	var err error
	once.Do(func() {
		cfg := zap.NewProductionConfig()
		if env != "production" {
			cfg = zap.NewDevelopmentConfig()
			cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		}

		lg, err = cfg.Build()
	})

	return lg, err
}

// MaskToken shortens an opaque token for log output, showing the first and
// last 4 characters only.
func MaskToken(token string) string {
	if token == "" {
		return ""
	}
	if len(token) <= 8 {
		return "***"
	}
	return token[:4] + "***" + token[len(token)-4:]
}

// MaskIP hides the host part of an address for log output.
func MaskIP(ip string) string {
	if ip == "" {
		return ""
	}
	if idx := strings.LastIndex(ip, "."); idx > 0 {
		return ip[:idx] + ".xxx"
	}
	if idx := strings.Index(ip, ":"); idx > 0 {
		return ip[:idx] + "::xxxx"
	}
	return "***"
}
