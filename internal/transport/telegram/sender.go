// Package telegram adapts Bot API updates to the relay use cases and
// implements the outbound messenger port.
package telegram

import (
	"context"
	"fmt"
	"io"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"go.uber.org/zap"

	"github.com/xkrfer/telegram-pm-relay/internal/core/port"
)

// Sender implements port.Messenger over the Bot API client.
type Sender struct {
	bot    *bot.Bot
	logger *zap.Logger
}

// NewSender wraps a Bot API client.
func NewSender(b *bot.Bot, logger *zap.Logger) *Sender {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sender{bot: b, logger: logger}
}

func (s *Sender) SendText(ctx context.Context, chatID, text string) (int, error) {
	msg, err := s.bot.SendMessage(ctx, &bot.SendMessageParams{
		ChatID: chatID,
		Text:   text,
	})
	if err != nil {
		return 0, fmt.Errorf("send message: %w", err)
	}
	return msg.ID, nil
}

func (s *Sender) SendTextWithButtons(ctx context.Context, chatID, text string, rows [][]port.Button) (int, error) {
	msg, err := s.bot.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:      chatID,
		Text:        text,
		ReplyMarkup: keyboard(rows),
	})
	if err != nil {
		return 0, fmt.Errorf("send message with keyboard: %w", err)
	}
	return msg.ID, nil
}

func (s *Sender) EditText(ctx context.Context, chatID string, messageID int, text string) error {
	_, err := s.bot.EditMessageText(ctx, &bot.EditMessageTextParams{
		ChatID:    chatID,
		MessageID: messageID,
		Text:      text,
	})
	if err != nil {
		return fmt.Errorf("edit message: %w", err)
	}
	return nil
}

func (s *Sender) ForwardMessage(ctx context.Context, toChatID, fromChatID string, messageID int) (int, error) {
	msg, err := s.bot.ForwardMessage(ctx, &bot.ForwardMessageParams{
		ChatID:     toChatID,
		FromChatID: fromChatID,
		MessageID:  messageID,
	})
	if err != nil {
		return 0, fmt.Errorf("forward message: %w", err)
	}
	return msg.ID, nil
}

func (s *Sender) CopyMessage(ctx context.Context, toChatID, fromChatID string, messageID int) (int, error) {
	copied, err := s.bot.CopyMessage(ctx, &bot.CopyMessageParams{
		ChatID:     toChatID,
		FromChatID: fromChatID,
		MessageID:  messageID,
	})
	if err != nil {
		return 0, fmt.Errorf("copy message: %w", err)
	}
	return copied.ID, nil
}

func (s *Sender) AnswerCallback(ctx context.Context, callbackID, text string, alert bool) error {
	_, err := s.bot.AnswerCallbackQuery(ctx, &bot.AnswerCallbackQueryParams{
		CallbackQueryID: callbackID,
		Text:            text,
		ShowAlert:       alert,
	})
	if err != nil {
		return fmt.Errorf("answer callback: %w", err)
	}
	return nil
}

// SendDocument uploads a file as a document message; used by /export.
func (s *Sender) SendDocument(ctx context.Context, chatID, filename string, data io.Reader) error {
	_, err := s.bot.SendDocument(ctx, &bot.SendDocumentParams{
		ChatID:   chatID,
		Document: &models.InputFileUpload{Filename: filename, Data: data},
	})
	if err != nil {
		return fmt.Errorf("send document: %w", err)
	}
	return nil
}

func (s *Sender) DeleteMessage(ctx context.Context, chatID string, messageID int) error {
	_, err := s.bot.DeleteMessage(ctx, &bot.DeleteMessageParams{
		ChatID:    chatID,
		MessageID: messageID,
	})
	if err != nil {
		return fmt.Errorf("delete message: %w", err)
	}
	return nil
}

// GetFile resolves a file id to a download path; used by the banlist CSV
// import.
func (s *Sender) GetFile(ctx context.Context, fileID string) (string, error) {
	file, err := s.bot.GetFile(ctx, &bot.GetFileParams{FileID: fileID})
	if err != nil {
		return "", fmt.Errorf("get file: %w", err)
	}
	return s.bot.FileDownloadLink(file), nil
}

func keyboard(rows [][]port.Button) *models.InlineKeyboardMarkup {
	kb := make([][]models.InlineKeyboardButton, 0, len(rows))
	for _, row := range rows {
		buttons := make([]models.InlineKeyboardButton, 0, len(row))
		for _, b := range row {
			buttons = append(buttons, models.InlineKeyboardButton{
				Text:         b.Text,
				CallbackData: b.CallbackData,
				URL:          b.URL,
			})
		}
		kb = append(kb, buttons)
	}
	return &models.InlineKeyboardMarkup{InlineKeyboard: kb}
}
