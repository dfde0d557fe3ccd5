package challenge

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"go.uber.org/zap"

	"github.com/xkrfer/telegram-pm-relay/internal/core/domain"
	"github.com/xkrfer/telegram-pm-relay/internal/core/port"
	"github.com/xkrfer/telegram-pm-relay/internal/infra/llm"
	"github.com/xkrfer/telegram-pm-relay/internal/messages"
)

const aiSystemPrompt = "You are a helpful assistant that generates simple quiz questions for human verification."

const aiUserPrompt = `Generate a simple common-sense question for human verification.

Requirements:
1. The question must be simple and clear, answerable by anyone
2. The question should be common knowledge, no expertise required
3. Provide 4 options with only 1 correct answer
4. The 3 wrong options should be obviously wrong but not absurd

Example question types:
- Color recognition ("What color is the sky usually?")
- Animal characteristics ("Which animal can fly?")
- Basic knowledge ("How many seasons are in a year?")
- Simple physics ("Which direction do objects fall?")

Please return in JSON format with question, options (array of 4), and correct (index 0-3).`

// ChatClient is the LLM surface the AI strategy needs.
type ChatClient interface {
	Chat(ctx context.Context, messages []llm.Message) (string, error)
}

type aiQuiz struct {
	Question string   `json:"question"`
	Options  []string `json:"options"`
	Correct  int      `json:"correct"`
}

// AIStrategy asks a freshly LLM-generated common-sense question. A
// malformed provider response fails challenge generation; the caller
// surfaces that as a start failure rather than admitting the guest.
type AIStrategy struct {
	client    ChatClient
	messenger port.Messenger
	logger    *zap.Logger
}

// NewAIStrategy wires the LLM verification method.
func NewAIStrategy(client ChatClient, messenger port.Messenger, logger *zap.Logger) *AIStrategy {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AIStrategy{
		client:    client,
		messenger: messenger,
		logger:    logger,
	}
}

func (s *AIStrategy) Method() domain.VerificationMethod { return domain.MethodAI }

func (s *AIStrategy) GenerateChallenge(ctx context.Context, userID, token string) (*domain.Challenge, error) {
	content, err := s.client.Chat(ctx, []llm.Message{
		{Role: "system", Content: aiSystemPrompt},
		{Role: "user", Content: aiUserPrompt},
	})
	if err != nil {
		return nil, fmt.Errorf("generate ai quiz: %w", err)
	}

	var quiz aiQuiz
	if err := json.Unmarshal([]byte(content), &quiz); err != nil {
		return nil, fmt.Errorf("decode ai quiz: %w", err)
	}
	if quiz.Question == "" || len(quiz.Options) != 4 || quiz.Correct < 0 || quiz.Correct > 3 {
		return nil, fmt.Errorf("invalid ai quiz format")
	}

	s.logger.Info("ai quiz generated",
		zap.String("user_id", userID),
		zap.String("question", quiz.Question))

	return &domain.Challenge{
		Token:         token,
		Question:      quiz.Question,
		Options:       quiz.Options,
		CorrectAnswer: strconv.Itoa(quiz.Correct),
	}, nil
}

// VerifyAnswer compares the submitted option index against the stored one.
func (s *AIStrategy) VerifyAnswer(data *domain.VerificationData, answer string) bool {
	if data == nil || data.Method != domain.MethodAI {
		return false
	}
	return data.CorrectAnswer == answer
}

// SendChallenge delivers the question with one option per row.
func (s *AIStrategy) SendChallenge(ctx context.Context, userID string, ch *domain.Challenge) (int, error) {
	rows := make([][]port.Button, 0, len(ch.Options))
	for i, option := range ch.Options {
		rows = append(rows, []port.Button{
			answerButton(CallbackPrefixAI, userID, option, strconv.Itoa(i)),
		})
	}

	messageID, err := s.messenger.SendTextWithButtons(ctx, userID, messages.AIChallenge(ch.Question), rows)
	if err != nil {
		return 0, fmt.Errorf("send ai challenge: %w", err)
	}

	s.logger.Info("ai challenge sent",
		zap.String("user_id", userID),
		zap.Int("message_id", messageID))
	return messageID, nil
}
