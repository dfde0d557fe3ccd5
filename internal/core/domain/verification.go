package domain

import "time"

// VerificationMethod enumerates the supported challenge strategies.
type VerificationMethod string

const (
	MethodNone      VerificationMethod = "none"
	MethodMath      VerificationMethod = "math"
	MethodQuiz      VerificationMethod = "quiz"
	MethodTurnstile VerificationMethod = "turnstile"
	MethodAI        VerificationMethod = "ai"
)

// Valid reports whether the method names a known strategy.
func (m VerificationMethod) Valid() bool {
	switch m {
	case MethodNone, MethodMath, MethodQuiz, MethodTurnstile, MethodAI:
		return true
	default:
		return false
	}
}

// Challenge is the question/options/answer tuple issued to a user.
type Challenge struct {
	Token         string
	Question      string
	Options       []string
	CorrectAnswer string
	ExpiresAt     time.Time
}

// VerificationData is the strategy-specific payload persisted alongside an
// in-flight challenge. It is stored as a JSON blob on the user row; a decode
// failure is treated as an invalid session, never as a crash.
type VerificationData struct {
	Method        VerificationMethod `json:"method"`
	Question      string             `json:"question,omitempty"`
	Options       []string           `json:"options,omitempty"`
	CorrectAnswer string             `json:"correctAnswer,omitempty"`
	MessageID     int                `json:"messageId,omitempty"`
}

// VerificationConfig is the system-wide verification configuration held in
// the singleton config row, merged with deployment secrets on read.
type VerificationConfig struct {
	Enabled   bool               `json:"enabled"`
	Method    VerificationMethod `json:"method"`
	Timeout   int64              `json:"timeout"` // seconds
	Turnstile *TurnstileConfig   `json:"turnstile,omitempty"`
	AI        *AIConfig          `json:"ai,omitempty"`
}

// TurnstileConfig carries the CAPTCHA provider settings. The secret key is
// never persisted; it is filled in from deployment secrets on read.
type TurnstileConfig struct {
	SiteKey   string `json:"siteKey"`
	SecretKey string `json:"-"`
}

// AIConfig carries the LLM provider settings. The API key is never
// persisted; it is filled in from deployment secrets on read.
type AIConfig struct {
	BaseURL string `json:"baseUrl"`
	Model   string `json:"model"`
	APIKey  string `json:"-"`
}

// SystemConfig is the singleton configuration row. At most one row exists;
// absence means deployment defaults apply.
type SystemConfig struct {
	ID           int64
	Verification VerificationConfig
	UpdatedAt    time.Time
	UpdatedBy    *string
}
