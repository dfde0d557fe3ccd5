package usecase

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/xkrfer/telegram-pm-relay/internal/core/domain"
	"github.com/xkrfer/telegram-pm-relay/internal/core/port"
	"github.com/xkrfer/telegram-pm-relay/internal/infra/config"
	"github.com/xkrfer/telegram-pm-relay/internal/messages"
	"github.com/xkrfer/telegram-pm-relay/internal/repository"
)

// InboundMessage is a transport-neutral view of a guest message.
type InboundMessage struct {
	ChatID       string
	MessageID    int
	Username     *string
	FirstName    string
	Text         string
	Kind         domain.MessageKind
	Content      *string // text or caption, nil for content-free kinds
	MediaGroupID *string
}

// RelayService runs the guest message pipeline: admission, verification
// gate, rate limiting, fraud alerting, content filtering, and finally the
// forward to the admin chat. Each stage either passes the message on or
// ends the pipeline with a reply to the guest.
type RelayService struct {
	users        port.UserRepository
	records      port.MessageRepository
	messenger    port.Messenger
	rateLimiter  *RateLimitService
	verification *VerificationService
	fraud        *FraudService
	filters      *FilterService
	config       *ConfigService
	telegram     config.TelegramSettings
	logger       *zap.Logger
	now          func() time.Time
}

// NewRelayService wires the guest pipeline.
func NewRelayService(
	users port.UserRepository,
	records port.MessageRepository,
	messenger port.Messenger,
	rateLimiter *RateLimitService,
	verification *VerificationService,
	fraud *FraudService,
	filters *FilterService,
	configSvc *ConfigService,
	telegram config.TelegramSettings,
	logger *zap.Logger,
) *RelayService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RelayService{
		users:        users,
		records:      records,
		messenger:    messenger,
		rateLimiter:  rateLimiter,
		verification: verification,
		fraud:        fraud,
		filters:      filters,
		config:       configSvc,
		telegram:     telegram,
		logger:       logger,
		now:          time.Now,
	}
}

// WithClock overrides the time source, for tests.
func (s *RelayService) WithClock(now func() time.Time) *RelayService {
	s.now = now
	return s
}

// HandleGuestMessage runs one inbound guest message through the pipeline.
func (s *RelayService) HandleGuestMessage(ctx context.Context, in InboundMessage) error {
	if in.Text == "/start" {
		_, err := s.messenger.SendText(ctx, in.ChatID, messages.GuestStart)
		return err
	}

	user, err := s.users.Upsert(ctx, in.ChatID, in.Username, s.now())
	if err != nil {
		return fmt.Errorf("upsert user: %w", err)
	}

	// Manually blocked guests are dropped without a reply.
	if user.IsBlocked {
		s.logger.Info("blocked user message dropped", zap.String("chat_id", in.ChatID))
		return nil
	}

	proceed, err := s.verificationGate(ctx, user)
	if err != nil || !proceed {
		return err
	}

	proceed, err = s.rateLimitGate(ctx, user, in)
	if err != nil || !proceed {
		return err
	}

	if s.telegram.AutoWelcome && user.MessageCount == 1 {
		if _, err := s.messenger.SendText(ctx, in.ChatID, s.welcomeText()); err != nil {
			s.logger.Warn("welcome message failed", zap.Error(err))
		}
	}

	s.fraudAlert(ctx, in)

	proceed, err = s.filterGate(ctx, in)
	if err != nil || !proceed {
		return err
	}

	s.notifyNewSession(ctx, user, in)

	return s.forward(ctx, in)
}

// verificationGate enforces the verification requirement. It returns false
// when the pipeline must stop, whether because a challenge was issued or
// the guest is throttled.
func (s *RelayService) verificationGate(ctx context.Context, user *domain.User) (bool, error) {
	cfg, err := s.config.VerificationConfig(ctx)
	if err != nil {
		return false, fmt.Errorf("load verification config: %w", err)
	}
	if !cfg.Enabled || cfg.Method == domain.MethodNone || user.IsVerified {
		return true, nil
	}

	status := s.verification.Status(user)
	if status.HasActiveSession {
		// Turnstile completes out of band; everything else restarts with
		// a fresh question.
		if cfg.Method == domain.MethodTurnstile {
			_, err := s.messenger.SendText(ctx, user.ID, messages.VerificationPending)
			return false, err
		}
		if err := s.users.UpdateVerificationSession(ctx, user.ID, nil, nil, nil, s.now()); err != nil {
			return false, fmt.Errorf("clear stale session: %w", err)
		}
		user.VerificationToken = nil
		user.VerificationExpiresAt = nil
		user.VerificationData = nil
	}

	eligibility := s.verification.CanRequest(user)
	if !eligibility.Allowed {
		text := messages.VerificationRequired
		if eligibility.CooldownEnds != nil {
			text += messages.VerificationCooldownNotice(eligibility.CooldownEnds.Sub(s.now()))
		} else {
			text += messages.VerificationLimitReached
		}
		_, err := s.messenger.SendText(ctx, user.ID, text)
		return false, err
	}

	if err := s.verification.RecordAttempt(ctx, user); err != nil {
		return false, err
	}
	if err := s.verification.Start(ctx, user); err != nil {
		s.logger.Error("verification start failed", zap.String("user_id", user.ID), zap.Error(err))
		_, sendErr := s.messenger.SendText(ctx, user.ID, messages.VerificationStartFailed)
		return false, sendErr
	}

	// When verification is disabled server-side Start marks the user
	// verified and the message may proceed.
	return user.IsVerified, nil
}

// rateLimitGate admits or denies the message, applying the escalating
// penalty and alerting the admin on a guest's first violation.
func (s *RelayService) rateLimitGate(ctx context.Context, user *domain.User, in InboundMessage) (bool, error) {
	result := s.rateLimiter.Check(user)
	if result.Allowed {
		if err := s.rateLimiter.RecordMessage(ctx, user); err != nil {
			return false, err
		}
		return true, nil
	}

	violation, err := s.rateLimiter.HandleViolation(ctx, user)
	if err != nil {
		return false, err
	}

	var warning string
	switch violation.Violations {
	case 1:
		base := s.rateLimiter.Base()
		warning = messages.FirstRateLimitWarning(base.Cooldown, base.PerMinute)
	case 2:
		warning = messages.SecondRateLimitWarning(violation.LimitedUntil)
	default:
		warning = messages.ThirdRateLimitWarning(violation.LimitedUntil)
	}
	if _, err := s.messenger.SendText(ctx, in.ChatID, warning); err != nil {
		s.logger.Warn("rate limit warning failed", zap.Error(err))
	}

	if violation.IsFirstViolation {
		reason := denialReason(result)
		if _, err := s.messenger.SendText(ctx, s.telegram.AdminID,
			messages.RateLimitedNotify(guestName(in), in.ChatID, reason)); err != nil {
			s.logger.Warn("rate limit admin notify failed", zap.Error(err))
		}
	}

	s.logger.Info("guest rate limited",
		zap.String("chat_id", in.ChatID),
		zap.String("reason", string(result.Reason)))

	return false, nil
}

// fraudAlert warns the admin when a banlisted guest writes in. Bans are
// advisory; the message still goes through.
func (s *RelayService) fraudAlert(ctx context.Context, in InboundMessage) {
	status, err := s.fraud.CheckBanned(ctx, in.ChatID)
	if err != nil {
		s.logger.Warn("ban check failed", zap.String("chat_id", in.ChatID), zap.Error(err))
		return
	}
	if !status.Banned {
		return
	}

	reason := "Not specified"
	if status.Reason != nil {
		reason = *status.Reason
	}
	if _, err := s.messenger.SendText(ctx, s.telegram.AdminID,
		messages.HighRiskWarning(in.ChatID, reason, status.ExpiresAt)); err != nil {
		s.logger.Warn("high risk alert failed", zap.Error(err))
	}
}

// filterGate applies the admin-authored content rules to text-bearing
// messages.
func (s *RelayService) filterGate(ctx context.Context, in InboundMessage) (bool, error) {
	if in.Content == nil || *in.Content == "" {
		return true, nil
	}

	match, err := s.filters.CheckContent(ctx, *in.Content)
	if err != nil {
		s.logger.Warn("content filter check failed", zap.Error(err))
		return true, nil
	}
	if !match.Matched {
		return true, nil
	}

	s.logger.Info("message filtered",
		zap.String("chat_id", in.ChatID),
		zap.Int64("filter_id", match.Rule.ID),
		zap.String("mode", string(match.Rule.Mode)))

	if match.Rule.Mode == domain.FilterBlock {
		_, err := s.messenger.SendText(ctx, in.ChatID, messages.ContentFiltered)
		return false, err
	}
	return false, nil // drop silently
}

// notifyNewSession pings the admin at most once per notify interval for
// each guest.
func (s *RelayService) notifyNewSession(ctx context.Context, user *domain.User, in InboundMessage) {
	now := s.now()
	if user.LastNotificationAt != nil && now.Sub(*user.LastNotificationAt) <= s.telegram.NotifyInterval {
		return
	}

	if _, err := s.messenger.SendText(ctx, s.telegram.AdminID,
		messages.NewSession(guestName(in), in.ChatID)); err != nil {
		s.logger.Warn("new session notify failed", zap.Error(err))
		return
	}
	if err := s.users.SetLastNotificationAt(ctx, in.ChatID, now); err != nil {
		s.logger.Warn("store notification time failed", zap.Error(err))
	}
}

// forward relays the message to the admin and records both the history row
// and the routing mapping.
func (s *RelayService) forward(ctx context.Context, in InboundMessage) error {
	forwardedID, err := s.messenger.ForwardMessage(ctx, s.telegram.AdminID, in.ChatID, in.MessageID)
	if err != nil {
		return fmt.Errorf("forward message: %w", err)
	}

	now := s.now()
	record := domain.MessageRecord{
		TelegramID:   in.ChatID,
		MessageID:    strconv.Itoa(in.MessageID),
		Direction:    domain.DirectionIn,
		Kind:         in.Kind,
		Content:      in.Content,
		MediaGroupID: in.MediaGroupID,
		CreatedAt:    now,
	}
	if _, err := s.records.SaveRecord(ctx, record); err != nil {
		s.logger.Error("save message record failed", zap.Error(err))
	}

	original := strconv.Itoa(in.MessageID)
	mapping := domain.MessageMap{
		AdminMessageID:    strconv.Itoa(forwardedID),
		TelegramID:        in.ChatID,
		OriginalMessageID: &original,
		MediaGroupID:      in.MediaGroupID,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := s.records.SaveMapping(ctx, mapping); err != nil {
		s.logger.Error("save message mapping failed", zap.Error(err))
	}

	return nil
}

// DeliverAdminReply routes an admin reply back to the guest it answers.
func (s *RelayService) DeliverAdminReply(ctx context.Context, repliedAdminMessageID int, fromChatID string, replyMessageID int, kind domain.MessageKind, content *string) (string, error) {
	mapping, err := s.records.GetMapping(ctx, strconv.Itoa(repliedAdminMessageID))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return "", ErrNoMapping
		}
		return "", fmt.Errorf("resolve mapping: %w", err)
	}

	sentID, err := s.messenger.CopyMessage(ctx, mapping.TelegramID, fromChatID, replyMessageID)
	if err != nil {
		return "", fmt.Errorf("deliver reply: %w", err)
	}

	now := s.now()
	record := domain.MessageRecord{
		TelegramID: mapping.TelegramID,
		MessageID:  strconv.Itoa(replyMessageID),
		Direction:  domain.DirectionOut,
		Kind:       kind,
		Content:    content,
		CreatedAt:  now,
	}
	if _, err := s.records.SaveRecord(ctx, record); err != nil {
		s.logger.Error("save outbound record failed", zap.Error(err))
	}

	// Reverse mapping: keyed by the admin's own reply so /recall can
	// find and delete the copy in the guest chat.
	sent := strconv.Itoa(sentID)
	reverse := domain.MessageMap{
		AdminMessageID:    strconv.Itoa(replyMessageID),
		TelegramID:        mapping.TelegramID,
		OriginalMessageID: &sent,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := s.records.SaveMapping(ctx, reverse); err != nil {
		s.logger.Error("save reverse mapping failed", zap.Error(err))
	}

	return mapping.TelegramID, nil
}

// SendTemplate delivers canned content to a guest and records it. The
// returned id is the message sent to the guest.
func (s *RelayService) SendTemplate(ctx context.Context, guestID, content string) (int, error) {
	sentID, err := s.messenger.SendText(ctx, guestID, content)
	if err != nil {
		return 0, fmt.Errorf("send template: %w", err)
	}

	record := domain.MessageRecord{
		TelegramID: guestID,
		MessageID:  strconv.Itoa(sentID),
		Direction:  domain.DirectionOut,
		Kind:       domain.KindText,
		Content:    &content,
		CreatedAt:  s.now(),
	}
	if _, err := s.records.SaveRecord(ctx, record); err != nil {
		s.logger.Error("save template record failed", zap.Error(err))
	}

	return sentID, nil
}

// TrackReply records a mapping from an admin-side message to the guest
// copy it produced, so the copy can be recalled later.
func (s *RelayService) TrackReply(ctx context.Context, adminMessageID int, guestID string, guestMessageID int) error {
	now := s.now()
	guestMsg := strconv.Itoa(guestMessageID)
	return s.records.SaveMapping(ctx, domain.MessageMap{
		AdminMessageID:    strconv.Itoa(adminMessageID),
		TelegramID:        guestID,
		OriginalMessageID: &guestMsg,
		CreatedAt:         now,
		UpdatedAt:         now,
	})
}

// Recall deletes the guest-chat side of a previously relayed message and
// marks the mapping revoked.
func (s *RelayService) Recall(ctx context.Context, repliedAdminMessageID int) error {
	mapping, err := s.records.GetMapping(ctx, strconv.Itoa(repliedAdminMessageID))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrNoMapping
		}
		return fmt.Errorf("resolve mapping: %w", err)
	}
	if mapping.IsRevoked {
		return ErrAlreadyRecalled
	}
	if mapping.OriginalMessageID == nil {
		return ErrNoRecallTarget
	}

	messageID, err := strconv.Atoi(*mapping.OriginalMessageID)
	if err != nil {
		return ErrNoRecallTarget
	}
	if err := s.messenger.DeleteMessage(ctx, mapping.TelegramID, messageID); err != nil {
		return fmt.Errorf("delete guest message: %w", err)
	}

	if err := s.records.RevokeMapping(ctx, mapping.AdminMessageID); err != nil {
		s.logger.Error("mark mapping revoked failed", zap.Error(err))
	}
	return nil
}

// NotifyEdit tells the admin a guest edited an already-relayed message.
func (s *RelayService) NotifyEdit(ctx context.Context, in InboundMessage, oldContent string) error {
	if _, err := s.records.GetMappingByOriginal(ctx, in.ChatID, strconv.Itoa(in.MessageID)); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil // never relayed, nothing to report
		}
		return fmt.Errorf("resolve edited message: %w", err)
	}

	newContent := ""
	if in.Content != nil {
		newContent = *in.Content
	}
	_, err := s.messenger.SendText(ctx, s.telegram.AdminID,
		messages.EditNotification(guestName(in), in.ChatID, oldContent, newContent))
	return err
}

// ErrNoMapping indicates an admin reply does not target a forwarded guest
// message.
var ErrNoMapping = errors.New("no mapping for replied message")

// ErrAlreadyRecalled indicates the mapped message was revoked earlier.
var ErrAlreadyRecalled = errors.New("message already recalled")

// ErrNoRecallTarget indicates the mapping has no deletable guest message.
var ErrNoRecallTarget = errors.New("no message to recall")

func denialReason(result RateLimitResult) string {
	switch result.Reason {
	case ReasonPenalty:
		return messages.RateLimitInPenalty(result.WaitTime)
	case ReasonCooldown:
		return messages.RateLimitCooldown(result.WaitTime)
	case ReasonPerMinute:
		return messages.RateLimitPerMinute(result.Limit)
	case ReasonPerHour:
		return messages.RateLimitPerHour(result.Limit)
	default:
		return string(result.Reason)
	}
}

func guestName(in InboundMessage) string {
	if in.FirstName != "" {
		return in.FirstName
	}
	if in.Username != nil && *in.Username != "" {
		return *in.Username
	}
	return "Unknown"
}

func (s *RelayService) welcomeText() string {
	if s.telegram.WelcomeMessage != "" {
		return s.telegram.WelcomeMessage
	}
	return messages.VerifyWelcome
}
