package telegram

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-telegram/bot/models"
	"go.uber.org/zap"

	"github.com/xkrfer/telegram-pm-relay/internal/core/domain"
	"github.com/xkrfer/telegram-pm-relay/internal/messages"
	"github.com/xkrfer/telegram-pm-relay/internal/repository"
	"github.com/xkrfer/telegram-pm-relay/internal/usecase"
)

const historyPageSize = 10

func (h *Handler) handleAdminMessage(ctx context.Context, msg *models.Message) {
	text := strings.TrimSpace(msg.Text)

	if strings.HasPrefix(text, "/") {
		h.dispatchAdminCommand(ctx, msg, text)
		return
	}

	if msg.ReplyToMessage == nil {
		h.reply(ctx, messages.AdminNeedReply)
		return
	}

	kind, content := classify(msg)
	if _, err := h.relay.DeliverAdminReply(ctx, msg.ReplyToMessage.ID, h.telegram.AdminID, msg.ID, kind, content); err != nil {
		if errors.Is(err, usecase.ErrNoMapping) {
			h.reply(ctx, messages.AdminNoMapping)
			return
		}
		h.logger.Error("deliver admin reply failed", zap.Error(err))
		h.reply(ctx, messages.AdminSendFailed)
	}
}

func (h *Handler) dispatchAdminCommand(ctx context.Context, msg *models.Message, text string) {
	fields := strings.Fields(text)
	cmd := strings.TrimPrefix(fields[0], "/")
	args := fields[1:]

	switch cmd {
	case "start":
		h.reply(ctx, messages.AdminStart(h.telegram.AdminID))
	case "stats":
		h.cmdStats(ctx)
	case "search":
		h.cmdSearch(ctx, args)
	case "history":
		h.cmdHistory(ctx, msg, args)
	case "template":
		h.cmdTemplate(ctx, args)
	case "reply":
		h.cmdReplyTemplate(ctx, msg, args)
	case "ban":
		h.cmdBan(ctx, msg, args)
	case "unban":
		h.cmdUnban(ctx, msg, args)
	case "banlist":
		h.cmdBanlist(ctx)
	case "export":
		h.cmdExport(ctx)
	case "import":
		h.cmdImport(ctx, msg)
	case "block":
		h.cmdBlock(ctx, msg, args, true)
	case "unblock":
		h.cmdBlock(ctx, msg, args, false)
	case "check":
		h.cmdCheck(ctx, msg, args)
	case "recall":
		h.cmdRecall(ctx, msg)
	case "ratelimit":
		h.cmdRateLimit(ctx, args)
	case "verification":
		h.cmdVerification(ctx, args)
	case "verify":
		h.cmdVerifyLink(ctx, args)
	case "reverify":
		h.cmdReverify(ctx, args)
	case "reset-verification":
		h.cmdResetVerification(ctx, args)
	case "filter":
		h.cmdFilter(ctx, args)
	default:
		h.cmdTemplateShortcut(ctx, msg, cmd)
	}
}

// reply sends a response in the admin chat.
func (h *Handler) reply(ctx context.Context, text string) {
	if _, err := h.sender.SendText(ctx, h.telegram.AdminID, text); err != nil {
		h.logger.Warn("admin reply failed", zap.Error(err))
	}
}

// targetFromReplyOrArgs resolves the user a command applies to: an explicit
// id argument wins, otherwise the mapping of the replied forwarded message.
func (h *Handler) targetFromReplyOrArgs(ctx context.Context, msg *models.Message, args []string) (string, bool) {
	if len(args) > 0 {
		if _, err := strconv.ParseInt(args[0], 10, 64); err == nil {
			return args[0], true
		}
	}
	if msg.ReplyToMessage == nil {
		h.reply(ctx, messages.AdminNeedReply)
		return "", false
	}
	mapping, err := h.records.GetMapping(ctx, strconv.Itoa(msg.ReplyToMessage.ID))
	if err != nil {
		h.reply(ctx, messages.AdminNoMapping)
		return "", false
	}
	return mapping.TelegramID, true
}

func (h *Handler) cmdStats(ctx context.Context) {
	stats, err := h.stats.Collect(ctx)
	if err != nil {
		h.logger.Error("stats failed", zap.Error(err))
		h.reply(ctx, messages.StatsFailed)
		return
	}
	h.reply(ctx, messages.FormatStats(
		stats.TodayIn, stats.TodayOut, stats.ActiveUsers,
		stats.TotalUsers, stats.TotalMsgs, stats.BannedUsers))
}

func (h *Handler) cmdSearch(ctx context.Context, args []string) {
	if len(args) == 0 {
		h.reply(ctx, messages.SearchNoKeyword)
		return
	}
	keyword := strings.Join(args, " ")

	results, err := h.records.Search(ctx, keyword, historyPageSize)
	if err != nil {
		h.logger.Error("search failed", zap.Error(err))
		h.reply(ctx, messages.SearchFailed)
		return
	}
	if len(results) == 0 {
		h.reply(ctx, messages.SearchNoResults)
		return
	}

	var b strings.Builder
	b.WriteString(messages.SearchResultsTitle(len(results)))
	for _, r := range results {
		b.WriteString(messages.HistoryEntry(string(r.Direction), r.CreatedAt, recordText(r)))
	}
	h.reply(ctx, b.String())
}

func (h *Handler) cmdHistory(ctx context.Context, msg *models.Message, args []string) {
	target, ok := h.targetFromReplyOrArgs(ctx, msg, args)
	if !ok {
		return
	}

	records, err := h.records.History(ctx, target, historyPageSize, 0)
	if err != nil {
		h.logger.Error("history failed", zap.Error(err))
		h.reply(ctx, messages.HistoryEmpty)
		return
	}
	if len(records) == 0 {
		h.reply(ctx, messages.HistoryEmpty)
		return
	}

	var b strings.Builder
	b.WriteString(messages.HistoryTitle(len(records)))
	for _, r := range records {
		b.WriteString(messages.HistoryEntry(string(r.Direction), r.CreatedAt, recordText(r)))
	}
	h.reply(ctx, b.String())
}

func (h *Handler) cmdTemplate(ctx context.Context, args []string) {
	if len(args) == 0 {
		h.reply(ctx, messages.TemplateFormatError)
		return
	}

	switch args[0] {
	case "add":
		if len(args) < 3 {
			h.reply(ctx, messages.TemplateFormatError)
			return
		}
		keyword := args[1]
		content := strings.Join(args[2:], " ")
		if content == "" {
			h.reply(ctx, messages.TemplateFormatError)
			return
		}
		if _, err := h.templates.Add(ctx, keyword, content); err != nil {
			if errors.Is(err, usecase.ErrTemplateExists) {
				h.reply(ctx, messages.TemplateExists(keyword))
				return
			}
			h.logger.Error("template add failed", zap.Error(err))
			h.reply(ctx, messages.TemplateFormatError)
			return
		}
		h.reply(ctx, messages.TemplateAdded(keyword))

	case "list":
		templates, err := h.templates.List(ctx)
		if err != nil || len(templates) == 0 {
			h.reply(ctx, messages.TemplateListEmpty)
			return
		}
		var b strings.Builder
		b.WriteString(messages.TemplateListTitle)
		for _, tpl := range templates {
			fmt.Fprintf(&b, "• %s: %s\n", tpl.Keyword, tpl.Content)
		}
		h.reply(ctx, b.String())

	case "delete":
		if len(args) < 2 {
			h.reply(ctx, messages.TemplateFormatError)
			return
		}
		removed, err := h.templates.Remove(ctx, args[1])
		if err != nil {
			h.logger.Error("template delete failed", zap.Error(err))
			return
		}
		if !removed {
			h.reply(ctx, messages.TemplateNotFound(args[1]))
			return
		}
		h.reply(ctx, messages.TemplateDeleted(args[1]))

	default:
		h.reply(ctx, messages.TemplateFormatError)
	}
}

// cmdReplyTemplate sends a template to the guest behind the replied
// forwarded message.
func (h *Handler) cmdReplyTemplate(ctx context.Context, msg *models.Message, args []string) {
	if len(args) == 0 {
		h.reply(ctx, messages.TemplateFormatError)
		return
	}
	h.sendTemplateTo(ctx, msg, args[0])
}

// cmdTemplateShortcut treats an unknown /command as a template keyword
// before giving up.
func (h *Handler) cmdTemplateShortcut(ctx context.Context, msg *models.Message, keyword string) {
	tpl, err := h.templates.Get(ctx, keyword)
	if err != nil || tpl == nil {
		h.reply(ctx, messages.UnknownCommand(keyword))
		return
	}
	h.sendTemplateTo(ctx, msg, keyword)
}

func (h *Handler) sendTemplateTo(ctx context.Context, msg *models.Message, keyword string) {
	tpl, err := h.templates.Get(ctx, keyword)
	if err != nil {
		h.logger.Error("template lookup failed", zap.Error(err))
		return
	}
	if tpl == nil {
		h.reply(ctx, messages.TemplateNotFound(keyword))
		return
	}

	if msg.ReplyToMessage == nil {
		h.reply(ctx, messages.AdminNeedReply)
		return
	}
	mapping, err := h.records.GetMapping(ctx, strconv.Itoa(msg.ReplyToMessage.ID))
	if err != nil {
		h.reply(ctx, messages.AdminNoMapping)
		return
	}

	sentID, err := h.relay.SendTemplate(ctx, mapping.TelegramID, tpl.Content)
	if err != nil {
		h.logger.Error("send template failed", zap.Error(err))
		h.reply(ctx, messages.AdminSendFailed)
		return
	}

	confirmID, err := h.sender.SendText(ctx, h.telegram.AdminID, messages.TemplateSent(keyword))
	if err != nil {
		h.logger.Warn("template confirm failed", zap.Error(err))
		return
	}
	// The confirmation message becomes the recall anchor.
	if err := h.relay.TrackReply(ctx, confirmID, mapping.TelegramID, sentID); err != nil {
		h.logger.Warn("track template reply failed", zap.Error(err))
	}
}

func (h *Handler) cmdBan(ctx context.Context, msg *models.Message, args []string) {
	target, reason, hours, ok := h.banArgs(ctx, msg, args)
	if !ok {
		return
	}

	var duration *time.Duration
	if hours != nil {
		d := time.Duration(*hours) * time.Hour
		duration = &d
	}
	if _, err := h.fraud.Ban(ctx, target, reason, h.telegram.AdminID, duration); err != nil {
		h.logger.Error("ban failed", zap.Error(err))
		return
	}
	// A ban also blocks, so the guest stops reaching the admin at all.
	if err := h.users.SetBlocked(ctx, target, true); err != nil && !errors.Is(err, repository.ErrNotFound) {
		h.logger.Warn("block after ban failed", zap.Error(err))
	}
	h.stats.Invalidate(ctx)
	h.reply(ctx, messages.Banned(target, reason, hours))
}

// banArgs parses "/ban <id> [reason] [hours]" or the reply form
// "/ban [reason] [hours]".
func (h *Handler) banArgs(ctx context.Context, msg *models.Message, args []string) (target, reason string, hours *int, ok bool) {
	reason = "Rule violation"
	rest := args

	if len(args) > 0 {
		if _, err := strconv.ParseInt(args[0], 10, 64); err == nil {
			target = args[0]
			rest = args[1:]
		}
	}
	if target == "" {
		if msg.ReplyToMessage == nil {
			h.reply(ctx, messages.BanUsage)
			return "", "", nil, false
		}
		mapping, err := h.records.GetMapping(ctx, strconv.Itoa(msg.ReplyToMessage.ID))
		if err != nil {
			h.reply(ctx, messages.AdminNoMapping)
			return "", "", nil, false
		}
		target = mapping.TelegramID
	}

	if len(rest) > 0 {
		// A trailing integer is the duration in hours.
		if n, err := strconv.Atoi(rest[len(rest)-1]); err == nil && len(rest) > 1 {
			hours = &n
			rest = rest[:len(rest)-1]
		} else if err == nil && len(rest) == 1 {
			hours = &n
			rest = nil
		}
	}
	if len(rest) > 0 {
		reason = strings.Join(rest, " ")
	}
	return target, reason, hours, true
}

func (h *Handler) cmdUnban(ctx context.Context, msg *models.Message, args []string) {
	if len(args) == 0 && msg.ReplyToMessage == nil {
		h.reply(ctx, messages.UnbanUsage)
		return
	}
	target, ok := h.targetFromReplyOrArgs(ctx, msg, args)
	if !ok {
		return
	}

	if _, err := h.fraud.Unban(ctx, target); err != nil {
		h.logger.Error("unban failed", zap.Error(err))
		return
	}
	if err := h.users.SetBlocked(ctx, target, false); err != nil && !errors.Is(err, repository.ErrNotFound) {
		h.logger.Warn("unblock after unban failed", zap.Error(err))
	}
	h.stats.Invalidate(ctx)
	h.reply(ctx, messages.Unbanned(target))
}

func (h *Handler) cmdBanlist(ctx context.Context) {
	bans, err := h.fraud.ActiveBans(ctx)
	if err != nil {
		h.logger.Error("banlist failed", zap.Error(err))
		return
	}
	if len(bans) == 0 {
		h.reply(ctx, messages.BanlistEmpty)
		return
	}

	var b strings.Builder
	b.WriteString(messages.BanlistTitle(len(bans)))
	for _, ban := range bans {
		b.WriteString(messages.BanlistEntry(ban.TelegramID, ban.Reason, ban.ExpiresAt))
	}
	h.reply(ctx, b.String())
}

func (h *Handler) cmdExport(ctx context.Context) {
	csv, err := h.fraud.ExportCSV(ctx)
	if err != nil {
		h.logger.Error("export failed", zap.Error(err))
		h.reply(ctx, messages.ExportFailed)
		return
	}
	if err := h.sender.SendDocument(ctx, h.telegram.AdminID, "banlist.csv", strings.NewReader(csv)); err != nil {
		h.logger.Error("send export failed", zap.Error(err))
		h.reply(ctx, messages.ExportFailed)
	}
}

func (h *Handler) cmdImport(ctx context.Context, msg *models.Message) {
	if msg.ReplyToMessage == nil || msg.ReplyToMessage.Document == nil {
		h.reply(ctx, messages.ImportNeedFile)
		return
	}

	link, err := h.sender.GetFile(ctx, msg.ReplyToMessage.Document.FileID)
	if err != nil {
		h.logger.Error("resolve import file failed", zap.Error(err))
		h.reply(ctx, messages.ImportFailed)
		return
	}

	content, err := download(ctx, link)
	if err != nil {
		h.logger.Error("download import file failed", zap.Error(err))
		h.reply(ctx, messages.ImportFailed)
		return
	}

	result, err := h.fraud.ImportCSV(ctx, content, h.telegram.AdminID)
	if err != nil {
		h.logger.Error("import failed", zap.Error(err))
		h.reply(ctx, messages.ImportFailed)
		return
	}
	h.stats.Invalidate(ctx)
	h.reply(ctx, messages.ImportSuccess(result.Imported, result.Errors))
}

func (h *Handler) cmdBlock(ctx context.Context, msg *models.Message, args []string, blocked bool) {
	target, ok := h.targetFromReplyOrArgs(ctx, msg, args)
	if !ok {
		return
	}
	if err := h.users.SetBlocked(ctx, target, blocked); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			h.reply(ctx, messages.UserNotFound)
			return
		}
		h.logger.Error("set blocked failed", zap.Error(err))
		return
	}
	if blocked {
		h.reply(ctx, messages.Banned(target, "Blocked by admin", nil))
	} else {
		h.reply(ctx, messages.Unbanned(target))
	}
}

func (h *Handler) cmdCheck(ctx context.Context, msg *models.Message, args []string) {
	target, ok := h.targetFromReplyOrArgs(ctx, msg, args)
	if !ok {
		return
	}

	user, err := h.users.GetByID(ctx, target)
	if err != nil {
		h.reply(ctx, messages.UserNotFound)
		return
	}

	username := "-"
	if user.Username != nil {
		username = "@" + *user.Username
	}
	status := "Normal"
	if user.IsBlocked {
		status = "Blocked"
	}

	var banReason *string
	if ban, err := h.fraud.CheckBanned(ctx, target); err == nil && ban.Banned {
		reason := "Not specified"
		if ban.Reason != nil {
			reason = *ban.Reason
		}
		banReason = &reason
	}

	h.reply(ctx, messages.UserCheck(
		user.ID, username, status, user.MessageCount,
		user.IsVerified, user.RateLimitLevel.String(),
		user.RateLimitViolations, banReason))
}

func (h *Handler) cmdRecall(ctx context.Context, msg *models.Message) {
	if msg.ReplyToMessage == nil {
		h.reply(ctx, messages.AdminNeedReply)
		return
	}

	err := h.relay.Recall(ctx, msg.ReplyToMessage.ID)
	switch {
	case err == nil:
		h.reply(ctx, messages.RecallSuccess)
	case errors.Is(err, usecase.ErrNoMapping):
		h.reply(ctx, messages.AdminNoMapping)
	case errors.Is(err, usecase.ErrAlreadyRecalled):
		h.reply(ctx, messages.RecallAlreadyRevoked)
	case errors.Is(err, usecase.ErrNoRecallTarget):
		h.reply(ctx, messages.RecallNoMessage)
	default:
		h.logger.Error("recall failed", zap.Error(err))
		h.reply(ctx, messages.RecallFailed)
	}
}

func (h *Handler) cmdRateLimit(ctx context.Context, args []string) {
	if len(args) < 2 {
		h.reply(ctx, messages.RateLimitUsage)
		return
	}

	if args[0] == "reset" {
		if err := h.rateLimiter.Reset(ctx, args[1]); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				h.reply(ctx, messages.UserNotFound)
				return
			}
			h.logger.Error("rate limit reset failed", zap.Error(err))
			return
		}
		h.reply(ctx, messages.RateLimitReset(args[1]))
		return
	}

	levelNum, err := strconv.Atoi(args[1])
	if err != nil {
		h.reply(ctx, messages.RateLimitUsage)
		return
	}
	level := domain.RateLimitLevel(levelNum)
	if !level.Valid() {
		h.reply(ctx, messages.RateLimitLevelError)
		return
	}

	if err := h.rateLimiter.SetLevel(ctx, args[0], level); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			h.reply(ctx, messages.UserNotFound)
			return
		}
		h.logger.Error("rate limit set failed", zap.Error(err))
		return
	}

	tier := usecase.TierFor(level, h.rateLimiter.Base())
	h.reply(ctx, messages.RateLimitSet(args[0], level.String(), tier.Cooldown, tier.PerMinute, tier.PerHour))
}

func (h *Handler) cmdVerification(ctx context.Context, args []string) {
	if len(args) == 0 {
		h.reply(ctx, messages.VerificationMethodInvalid)
		return
	}

	switch args[0] {
	case "status":
		cfg, err := h.config.VerificationConfig(ctx)
		if err != nil {
			h.logger.Error("verification status failed", zap.Error(err))
			return
		}
		validation := h.config.ValidateMethodConfig(cfg.Method)
		h.reply(ctx, messages.VerificationStatusReport(
			cfg.Enabled, string(cfg.Method), int(cfg.Timeout/60), validation.Missing))

	case "set":
		if len(args) < 2 {
			h.reply(ctx, messages.VerificationMethodInvalid)
			return
		}
		method := domain.VerificationMethod(args[1])
		if err := h.config.SetMethod(ctx, method, h.telegram.AdminID); err != nil {
			if errors.Is(err, usecase.ErrMethodConfigIncomplete) {
				validation := h.config.ValidateMethodConfig(method)
				h.reply(ctx, messages.VerificationConfigMissing(args[1], validation.Missing))
				return
			}
			h.reply(ctx, messages.VerificationMethodInvalid)
			return
		}
		h.reply(ctx, messages.VerificationMethodSet(args[1]))

	case "enable", "disable":
		enabled := args[0] == "enable"
		if err := h.config.SetEnabled(ctx, enabled, h.telegram.AdminID); err != nil {
			h.logger.Error("verification toggle failed", zap.Error(err))
			return
		}
		if enabled {
			h.reply(ctx, messages.VerificationEnabledMsg)
		} else {
			h.reply(ctx, messages.VerificationDisabledMsg)
		}

	default:
		h.reply(ctx, messages.VerificationMethodInvalid)
	}
}

func (h *Handler) cmdVerifyLink(ctx context.Context, args []string) {
	if len(args) == 0 {
		h.reply(ctx, messages.UserNotFound)
		return
	}
	target := args[0]

	user, err := h.users.GetByID(ctx, target)
	if err != nil {
		h.reply(ctx, messages.VerifyUserNotFound(target))
		return
	}
	if user.IsVerified {
		h.reply(ctx, messages.VerifyUserAlreadyVerified(target))
		return
	}

	eligibility := h.verification.CanRequest(user)
	if !eligibility.Allowed {
		text := messages.VerifyCannotGenerate(target)
		if eligibility.CooldownEnds != nil {
			text += messages.VerifyCooldownWait(messages.FormatDuration(time.Until(*eligibility.CooldownEnds)))
		}
		h.reply(ctx, text)
		return
	}

	link, err := h.verification.CreateLink(ctx, target, h.verifyBase)
	if err != nil {
		h.logger.Error("create verify link failed", zap.Error(err))
		h.reply(ctx, messages.VerifySendFailed)
		return
	}
	if err := h.verification.RecordAttempt(ctx, user); err != nil {
		h.logger.Warn("record verification attempt failed", zap.Error(err))
	}

	cfg, err := h.config.VerificationConfig(ctx)
	if err != nil {
		h.logger.Error("verification config failed", zap.Error(err))
		return
	}
	minutes := int(cfg.Timeout / 60)

	h.reply(ctx, messages.VerifyLinkGenerated(target, link, minutes, eligibility.AttemptsRemaining))

	if _, err := h.sender.SendText(ctx, target, messages.VerifyLinkForUser(minutes)+"\n"+link); err != nil {
		h.logger.Warn("send verify link to user failed", zap.Error(err))
		h.reply(ctx, messages.VerifySendFailed)
	}
}

func (h *Handler) cmdReverify(ctx context.Context, args []string) {
	if len(args) == 0 {
		h.reply(ctx, messages.UserNotFound)
		return
	}
	if err := h.verification.Clear(ctx, args[0]); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			h.reply(ctx, messages.UserNotFound)
			return
		}
		h.logger.Error("clear verification failed", zap.Error(err))
		return
	}
	h.reply(ctx, messages.ReverifyCleared(args[0]))
}

func (h *Handler) cmdResetVerification(ctx context.Context, args []string) {
	if len(args) == 0 {
		h.reply(ctx, messages.UserNotFound)
		return
	}
	if err := h.verification.ResetAttempts(ctx, args[0]); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			h.reply(ctx, messages.UserNotFound)
			return
		}
		h.logger.Error("reset verification failed", zap.Error(err))
		return
	}
	h.reply(ctx, messages.ResetVerificationDone(args[0]))
}

func (h *Handler) cmdFilter(ctx context.Context, args []string) {
	if len(args) == 0 {
		h.reply(ctx, messages.FilterUsage)
		return
	}

	switch args[0] {
	case "list":
		filters, err := h.filters.List(ctx)
		if err != nil {
			h.logger.Error("filter list failed", zap.Error(err))
			return
		}
		if len(filters) == 0 {
			h.reply(ctx, messages.FilterListEmpty)
			return
		}
		var b strings.Builder
		b.WriteString(messages.FilterListTitle(len(filters)))
		for _, f := range filters {
			b.WriteString(messages.FilterEntry(f.ID, f.Regex, string(f.Mode), f.Priority, f.IsActive, f.Note))
		}
		h.reply(ctx, b.String())

	case "add":
		h.cmdFilterAdd(ctx, args[1:])

	case "del":
		id, ok := h.filterID(ctx, args)
		if !ok {
			return
		}
		if err := h.filters.Remove(ctx, id); err != nil {
			h.logger.Error("filter delete failed", zap.Error(err))
			return
		}
		h.reply(ctx, messages.FilterDeleted(id))

	case "toggle":
		id, ok := h.filterID(ctx, args)
		if !ok {
			return
		}
		filters, err := h.filters.List(ctx)
		if err != nil {
			h.logger.Error("filter list failed", zap.Error(err))
			return
		}
		for _, f := range filters {
			if f.ID == id {
				if err := h.filters.Toggle(ctx, id, !f.IsActive); err != nil {
					h.logger.Error("filter toggle failed", zap.Error(err))
					return
				}
				h.reply(ctx, messages.FilterToggled(id, !f.IsActive))
				return
			}
		}
		h.reply(ctx, messages.FilterUsage)

	case "priority":
		if len(args) < 3 {
			h.reply(ctx, messages.FilterUsage)
			return
		}
		id, err1 := strconv.ParseInt(args[1], 10, 64)
		priority, err2 := strconv.Atoi(args[2])
		if err1 != nil || err2 != nil {
			h.reply(ctx, messages.FilterUsage)
			return
		}
		if err := h.filters.SetPriority(ctx, id, priority); err != nil {
			h.logger.Error("filter priority failed", zap.Error(err))
			return
		}
		h.reply(ctx, messages.FilterPrioritySet(id, priority))

	default:
		h.reply(ctx, messages.FilterUsage)
	}
}

func (h *Handler) cmdFilterAdd(ctx context.Context, args []string) {
	if len(args) == 0 {
		h.reply(ctx, messages.FilterUsage)
		return
	}

	pattern := args[0]
	mode := domain.FilterBlock
	var note *string
	priority := 0

	rest := args[1:]
	if len(rest) > 0 && (rest[0] == "block" || rest[0] == "drop") {
		mode = domain.FilterMode(rest[0])
		rest = rest[1:]
	}
	if len(rest) > 0 {
		if n, err := strconv.Atoi(rest[len(rest)-1]); err == nil {
			priority = n
			rest = rest[:len(rest)-1]
		}
	}
	if len(rest) > 0 {
		n := strings.Join(rest, " ")
		note = &n
	}

	created, err := h.filters.Add(ctx, pattern, mode, note, priority)
	switch {
	case err == nil:
		h.reply(ctx, messages.FilterAdded(created.ID))
	case errors.Is(err, usecase.ErrFilterRegexTooLong),
		errors.Is(err, usecase.ErrFilterRegexInvalid),
		errors.Is(err, usecase.ErrFilterRegexUnsafe),
		errors.Is(err, usecase.ErrFilterLimitReached):
		h.reply(ctx, "❌ "+err.Error())
	default:
		h.logger.Error("filter add failed", zap.Error(err))
	}
}

func (h *Handler) filterID(ctx context.Context, args []string) (int64, bool) {
	if len(args) < 2 {
		h.reply(ctx, messages.FilterUsage)
		return 0, false
	}
	id, err := strconv.ParseInt(args[1], 10, 64)
	if err != nil {
		h.reply(ctx, messages.FilterUsage)
		return 0, false
	}
	return id, true
}

func recordText(r domain.MessageRecord) string {
	if r.Content != nil {
		return *r.Content
	}
	return "(" + string(r.Kind) + ")"
}

func download(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("download file: http %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", err
	}
	return string(body), nil
}
