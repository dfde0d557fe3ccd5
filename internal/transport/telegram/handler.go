package telegram

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/xkrfer/telegram-pm-relay/internal/challenge"
	"github.com/xkrfer/telegram-pm-relay/internal/core/domain"
	"github.com/xkrfer/telegram-pm-relay/internal/core/port"
	"github.com/xkrfer/telegram-pm-relay/internal/infra/config"
	"github.com/xkrfer/telegram-pm-relay/internal/messages"
	"github.com/xkrfer/telegram-pm-relay/internal/usecase"
)

// Handler routes Bot API updates: guest messages go through the relay
// pipeline, admin messages through the command dispatcher, callbacks
// through the verification flow.
type Handler struct {
	relay        *usecase.RelayService
	verification *usecase.VerificationService
	rateLimiter  *usecase.RateLimitService
	fraud        *usecase.FraudService
	filters      *usecase.FilterService
	templates    *usecase.TemplateService
	stats        *usecase.StatsService
	config       *usecase.ConfigService
	users        port.UserRepository
	records      port.MessageRepository
	sender       *Sender
	telegram     config.TelegramSettings
	verifyBase   string
	updates      prometheus.Counter
	logger       *zap.Logger
}

// Deps bundles the handler's collaborators.
type Deps struct {
	Relay        *usecase.RelayService
	Verification *usecase.VerificationService
	RateLimiter  *usecase.RateLimitService
	Fraud        *usecase.FraudService
	Filters      *usecase.FilterService
	Templates    *usecase.TemplateService
	Stats        *usecase.StatsService
	Config       *usecase.ConfigService
	Users        port.UserRepository
	Records      port.MessageRepository
	Sender       *Sender
	Telegram     config.TelegramSettings
	VerifyBase   string
	Updates      prometheus.Counter
	Logger       *zap.Logger
}

// NewHandler wires the update router.
func NewHandler(d Deps) *Handler {
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		relay:        d.Relay,
		verification: d.Verification,
		rateLimiter:  d.RateLimiter,
		fraud:        d.Fraud,
		filters:      d.Filters,
		templates:    d.Templates,
		stats:        d.Stats,
		config:       d.Config,
		users:        d.Users,
		records:      d.Records,
		sender:       d.Sender,
		telegram:     d.Telegram,
		verifyBase:   d.VerifyBase,
		updates:      d.Updates,
		logger:       logger,
	}
}

func (h *Handler) countUpdate() {
	if h.updates != nil {
		h.updates.Inc()
	}
}

// Register attaches the handler to a bot instance.
func (h *Handler) Register(b *bot.Bot) {
	b.RegisterHandlerMatchFunc(func(u *models.Update) bool {
		return u.Message != nil
	}, h.onMessage)
	b.RegisterHandlerMatchFunc(func(u *models.Update) bool {
		return u.EditedMessage != nil
	}, h.onEdited)
	b.RegisterHandler(bot.HandlerTypeCallbackQueryData, "", bot.MatchTypePrefix, h.onCallback)
}

func (h *Handler) onMessage(ctx context.Context, _ *bot.Bot, update *models.Update) {
	h.countUpdate()
	msg := update.Message
	chatID := strconv.FormatInt(msg.Chat.ID, 10)

	if chatID == h.telegram.AdminID {
		h.handleAdminMessage(ctx, msg)
		return
	}

	if err := h.relay.HandleGuestMessage(ctx, inbound(msg)); err != nil {
		h.logger.Error("guest message failed",
			zap.String("chat_id", chatID),
			zap.Error(err))
	}
}

func (h *Handler) onEdited(ctx context.Context, _ *bot.Bot, update *models.Update) {
	h.countUpdate()
	msg := update.EditedMessage
	chatID := strconv.FormatInt(msg.Chat.ID, 10)
	if chatID == h.telegram.AdminID {
		return
	}

	if err := h.relay.NotifyEdit(ctx, inbound(msg), ""); err != nil {
		h.logger.Warn("edit notification failed",
			zap.String("chat_id", chatID),
			zap.Error(err))
	}
}

func (h *Handler) onCallback(ctx context.Context, _ *bot.Bot, update *models.Update) {
	h.countUpdate()
	cb := update.CallbackQuery
	data := cb.Data

	switch {
	case strings.HasPrefix(data, challenge.CallbackPrefixMath+"_"),
		strings.HasPrefix(data, challenge.CallbackPrefixQuiz+"_"),
		strings.HasPrefix(data, challenge.CallbackPrefixAI+"_"):
		h.handleVerificationCallback(ctx, cb)
	default:
		h.answerCallback(ctx, cb.ID, "", false)
	}
}

func (h *Handler) handleVerificationCallback(ctx context.Context, cb *models.CallbackQuery) {
	parts := strings.SplitN(cb.Data, "_", 3)
	if len(parts) != 3 {
		h.answerCallback(ctx, cb.ID, messages.VerifyErrorNoSession, true)
		return
	}
	userID, answer := parts[1], parts[2]

	// The keyboard lives in the user's own chat; ignore taps relayed from
	// anywhere else.
	if strconv.FormatInt(cb.From.ID, 10) != userID {
		h.answerCallback(ctx, cb.ID, "", false)
		return
	}

	user, err := h.users.GetByID(ctx, userID)
	if err != nil {
		h.answerCallback(ctx, cb.ID, messages.VerifyErrorNoSession, true)
		return
	}

	var challengeMsgID int
	var correctAnswer string
	if user.VerificationData != nil {
		challengeMsgID = user.VerificationData.MessageID
		correctAnswer = answerLabel(user.VerificationData, answer)
	}

	ok, err := h.verification.SubmitAnswer(ctx, user, answer)
	if err != nil {
		switch {
		case errors.Is(err, usecase.ErrNoActiveSession):
			h.answerCallback(ctx, cb.ID, messages.VerifyErrorNoSession, true)
		case errors.Is(err, usecase.ErrTokenExpired):
			h.answerCallback(ctx, cb.ID, messages.VerifyErrorExpired, true)
		default:
			h.logger.Error("verification answer failed", zap.String("user_id", userID), zap.Error(err))
			h.answerCallback(ctx, cb.ID, messages.VerifyErrorProcessing, true)
		}
		return
	}

	if ok {
		h.answerCallback(ctx, cb.ID, "🎉", false)
		if challengeMsgID != 0 {
			if err := h.sender.EditText(ctx, userID, challengeMsgID, messages.VerifySuccess); err != nil {
				h.logger.Warn("edit challenge message failed", zap.Error(err))
			}
		}
		if _, err := h.sender.SendText(ctx, userID, messages.VerifyWelcome); err != nil {
			h.logger.Warn("welcome after verification failed", zap.Error(err))
		}
		return
	}

	h.answerCallback(ctx, cb.ID, "❌", false)
	if challengeMsgID != 0 {
		if err := h.sender.EditText(ctx, userID, challengeMsgID, messages.WrongAnswer(correctAnswer)); err != nil {
			h.logger.Warn("edit challenge message failed", zap.Error(err))
		}
	}
}

func (h *Handler) answerCallback(ctx context.Context, id, text string, alert bool) {
	if err := h.sender.AnswerCallback(ctx, id, text, alert); err != nil {
		h.logger.Warn("answer callback failed", zap.Error(err))
	}
}

// answerLabel resolves the human-readable correct answer for the wrong
// answer feedback. Quiz and AI answers are option indexes; math answers
// are the value itself.
func answerLabel(data *domain.VerificationData, _ string) string {
	if data.Method == domain.MethodMath {
		return data.CorrectAnswer
	}
	idx, err := strconv.Atoi(data.CorrectAnswer)
	if err != nil || idx < 0 || idx >= len(data.Options) {
		return data.CorrectAnswer
	}
	return data.Options[idx]
}

// inbound converts a Bot API message to the transport-neutral form.
func inbound(msg *models.Message) usecase.InboundMessage {
	in := usecase.InboundMessage{
		ChatID:    strconv.FormatInt(msg.Chat.ID, 10),
		MessageID: msg.ID,
		Text:      msg.Text,
	}
	if msg.From != nil {
		in.FirstName = msg.From.FirstName
		if msg.From.Username != "" {
			username := msg.From.Username
			in.Username = &username
		}
	}
	if msg.MediaGroupID != "" {
		groupID := msg.MediaGroupID
		in.MediaGroupID = &groupID
	}

	in.Kind, in.Content = classify(msg)
	return in
}

func classify(msg *models.Message) (domain.MessageKind, *string) {
	caption := optional(msg.Caption)
	switch {
	case len(msg.Photo) > 0:
		return domain.KindPhoto, caption
	case msg.Video != nil:
		return domain.KindVideo, caption
	case msg.Voice != nil:
		return domain.KindVoice, caption
	case msg.Animation != nil:
		return domain.KindAnimation, caption
	case msg.Document != nil:
		return domain.KindDocument, caption
	case msg.Sticker != nil:
		return domain.KindSticker, nil
	case msg.Location != nil:
		return domain.KindLocation, nil
	case msg.Contact != nil:
		return domain.KindContact, nil
	default:
		return domain.KindText, optional(msg.Text)
	}
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
