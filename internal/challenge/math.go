// Package challenge implements the verification methods offered to new
// guests. Each strategy generates a challenge, delivers it over the
// messenger, and checks submitted answers against the persisted payload.
package challenge

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strconv"

	"go.uber.org/zap"

	"github.com/xkrfer/telegram-pm-relay/internal/core/domain"
	"github.com/xkrfer/telegram-pm-relay/internal/core/port"
	"github.com/xkrfer/telegram-pm-relay/internal/messages"
)

// Callback data prefixes; the answer payload format is
// {prefix}_{userID}_{answer}.
const (
	CallbackPrefixMath = "vm"
	CallbackPrefixQuiz = "vq"
	CallbackPrefixAI   = "va"
)

// MathStrategy asks a small arithmetic question with four inline options.
// Answers carry the option value itself.
type MathStrategy struct {
	messenger port.Messenger
	logger    *zap.Logger
	intn      func(n int) int
}

// NewMathStrategy wires the arithmetic verification method.
func NewMathStrategy(messenger port.Messenger, logger *zap.Logger) *MathStrategy {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MathStrategy{
		messenger: messenger,
		logger:    logger,
		intn:      rand.IntN,
	}
}

// WithRand overrides the random source, for tests.
func (s *MathStrategy) WithRand(intn func(n int) int) *MathStrategy {
	s.intn = intn
	return s
}

func (s *MathStrategy) Method() domain.VerificationMethod { return domain.MethodMath }

// GenerateChallenge builds an addition or subtraction question over
// operands 1..20. Subtraction is ordered so the result is never negative.
func (s *MathStrategy) GenerateChallenge(_ context.Context, _ string, token string) (*domain.Challenge, error) {
	a := s.intn(20) + 1
	b := s.intn(20) + 1

	var answer int
	var question string
	if s.intn(2) == 0 {
		answer = a + b
		question = fmt.Sprintf("%d + %d = ?", a, b)
	} else {
		larger, smaller := a, b
		if smaller > larger {
			larger, smaller = smaller, larger
		}
		answer = larger - smaller
		question = fmt.Sprintf("%d - %d = ?", larger, smaller)
	}

	options := []string{
		strconv.Itoa(answer),
		strconv.Itoa(answer + 1),
		strconv.Itoa(answer - 1),
		strconv.Itoa(answer + 2),
	}
	s.shuffle(options)

	return &domain.Challenge{
		Token:         token,
		Question:      question,
		Options:       options,
		CorrectAnswer: strconv.Itoa(answer),
	}, nil
}

func (s *MathStrategy) shuffle(options []string) {
	for i := len(options) - 1; i > 0; i-- {
		j := s.intn(i + 1)
		options[i], options[j] = options[j], options[i]
	}
}

// VerifyAnswer compares the submitted option value against the stored one.
func (s *MathStrategy) VerifyAnswer(data *domain.VerificationData, answer string) bool {
	if data == nil || data.Method != domain.MethodMath {
		return false
	}
	return data.CorrectAnswer == answer
}

// SendChallenge delivers the question with a 2x2 answer keyboard.
func (s *MathStrategy) SendChallenge(ctx context.Context, userID string, ch *domain.Challenge) (int, error) {
	rows := [][]port.Button{
		{
			answerButton(CallbackPrefixMath, userID, ch.Options[0], ch.Options[0]),
			answerButton(CallbackPrefixMath, userID, ch.Options[1], ch.Options[1]),
		},
		{
			answerButton(CallbackPrefixMath, userID, ch.Options[2], ch.Options[2]),
			answerButton(CallbackPrefixMath, userID, ch.Options[3], ch.Options[3]),
		},
	}

	messageID, err := s.messenger.SendTextWithButtons(ctx, userID, messages.MathChallenge(ch.Question), rows)
	if err != nil {
		return 0, fmt.Errorf("send math challenge: %w", err)
	}

	s.logger.Info("math challenge sent",
		zap.String("user_id", userID),
		zap.Int("message_id", messageID))
	return messageID, nil
}

func answerButton(prefix, userID, label, answer string) port.Button {
	return port.Button{
		Text:         label,
		CallbackData: fmt.Sprintf("%s_%s_%s", prefix, userID, answer),
	}
}
