package challenge

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/xkrfer/telegram-pm-relay/internal/core/domain"
	"github.com/xkrfer/telegram-pm-relay/internal/core/port"
	"github.com/xkrfer/telegram-pm-relay/internal/messages"
)

// TurnstileStrategy hands the guest a web verification link. The CAPTCHA
// itself is checked out of band by the HTTP verify endpoint; the inline
// answer path always accepts because it is never used for this method.
type TurnstileStrategy struct {
	messenger port.Messenger
	baseURL   string
	timeout   time.Duration
	logger    *zap.Logger
}

// NewTurnstileStrategy wires the web CAPTCHA verification method. baseURL
// is the public origin the verify page is served from.
func NewTurnstileStrategy(messenger port.Messenger, baseURL string, timeout time.Duration, logger *zap.Logger) *TurnstileStrategy {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TurnstileStrategy{
		messenger: messenger,
		baseURL:   baseURL,
		timeout:   timeout,
		logger:    logger,
	}
}

func (s *TurnstileStrategy) Method() domain.VerificationMethod { return domain.MethodTurnstile }

func (s *TurnstileStrategy) GenerateChallenge(_ context.Context, _ string, token string) (*domain.Challenge, error) {
	return &domain.Challenge{
		Token:         token,
		Question:      "Please complete Cloudflare Turnstile verification",
		CorrectAnswer: token,
	}, nil
}

// VerifyAnswer always reports success; completion happens on the web page.
func (s *TurnstileStrategy) VerifyAnswer(*domain.VerificationData, string) bool { return true }

// SendChallenge delivers the prompt with a link button to the verify page.
func (s *TurnstileStrategy) SendChallenge(ctx context.Context, userID string, ch *domain.Challenge) (int, error) {
	link := fmt.Sprintf("%s/verify/%s", s.baseURL, ch.Token)
	rows := [][]port.Button{
		{{Text: messages.TurnstileButton, URL: link}},
	}

	minutes := int(s.timeout.Minutes())
	messageID, err := s.messenger.SendTextWithButtons(ctx, userID, messages.TurnstileChallenge(minutes), rows)
	if err != nil {
		return 0, fmt.Errorf("send turnstile challenge: %w", err)
	}

	s.logger.Info("turnstile challenge sent",
		zap.String("user_id", userID),
		zap.Int("message_id", messageID))
	return messageID, nil
}
