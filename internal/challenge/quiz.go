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

type quizEntry struct {
	question string
	options  []string
	correct  int
}

// quizBank holds common-sense questions any human answers without thought.
// Answers are submitted as the option index.
var quizBank = []quizEntry{
	{
		question: "Which of the following is a fruit?",
		options:  []string{"🍎 Apple", "🥬 Cabbage", "🥕 Carrot", "🧄 Garlic"},
		correct:  0,
	},
	{
		question: "How many hours are in a day?",
		options:  []string{"12", "24", "48", "60"},
		correct:  1,
	},
	{
		question: "What sound does a cat make?",
		options:  []string{"🐶 Woof", "🐱 Meow", "🐮 Moo", "🐑 Baa"},
		correct:  1,
	},
	{
		question: "Which direction does the sun rise from?",
		options:  []string{"☀️ East", "🌙 West", "⭐ South", "💫 North"},
		correct:  0,
	},
	{
		question: "How many seasons are in a year?",
		options:  []string{"2", "3", "4", "5"},
		correct:  2,
	},
	{
		question: "Which animal can fly?",
		options:  []string{"🐘 Elephant", "🦁 Lion", "🦅 Eagle", "🐟 Fish"},
		correct:  2,
	},
	{
		question: "What color is the sky usually?",
		options:  []string{"🔴 Red", "🔵 Blue", "🟢 Green", "🟡 Yellow"},
		correct:  1,
	},
	{
		question: "At what temperature does water freeze?",
		options:  []string{"0°C", "10°C", "20°C", "100°C"},
		correct:  0,
	},
	{
		question: "How many days are in a week?",
		options:  []string{"5 days", "6 days", "7 days", "8 days"},
		correct:  2,
	},
	{
		question: "What does the Earth revolve around?",
		options:  []string{"🌙 Moon", "☀️ Sun", "⭐ Stars", "🪐 Saturn"},
		correct:  1,
	},
}

// QuizStrategy asks a random common-sense question from the built-in bank.
type QuizStrategy struct {
	messenger port.Messenger
	logger    *zap.Logger
	intn      func(n int) int
}

// NewQuizStrategy wires the quiz verification method.
func NewQuizStrategy(messenger port.Messenger, logger *zap.Logger) *QuizStrategy {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &QuizStrategy{
		messenger: messenger,
		logger:    logger,
		intn:      rand.IntN,
	}
}

// WithRand overrides the random source, for tests.
func (s *QuizStrategy) WithRand(intn func(n int) int) *QuizStrategy {
	s.intn = intn
	return s
}

func (s *QuizStrategy) Method() domain.VerificationMethod { return domain.MethodQuiz }

func (s *QuizStrategy) GenerateChallenge(_ context.Context, _ string, token string) (*domain.Challenge, error) {
	entry := quizBank[s.intn(len(quizBank))]

	return &domain.Challenge{
		Token:         token,
		Question:      entry.question,
		Options:       append([]string(nil), entry.options...),
		CorrectAnswer: strconv.Itoa(entry.correct),
	}, nil
}

// VerifyAnswer compares the submitted option index against the stored one.
func (s *QuizStrategy) VerifyAnswer(data *domain.VerificationData, answer string) bool {
	if data == nil || data.Method != domain.MethodQuiz {
		return false
	}
	return data.CorrectAnswer == answer
}

// SendChallenge delivers the question with one option per row. Buttons
// carry the option index, not the label.
func (s *QuizStrategy) SendChallenge(ctx context.Context, userID string, ch *domain.Challenge) (int, error) {
	rows := make([][]port.Button, 0, len(ch.Options))
	for i, option := range ch.Options {
		rows = append(rows, []port.Button{
			answerButton(CallbackPrefixQuiz, userID, option, strconv.Itoa(i)),
		})
	}

	messageID, err := s.messenger.SendTextWithButtons(ctx, userID, messages.QuizChallenge(ch.Question), rows)
	if err != nil {
		return 0, fmt.Errorf("send quiz challenge: %w", err)
	}

	s.logger.Info("quiz challenge sent",
		zap.String("user_id", userID),
		zap.Int("message_id", messageID))
	return messageID, nil
}
