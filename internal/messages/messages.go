// Package messages holds every user-facing text the bot sends. Keeping them
// in one place makes the tone consistent and the texts easy to audit.
package messages

import (
	"fmt"
	"strings"
	"time"
)

// Guest-facing texts.
const (
	GuestStart = `🤖 Bot Created Via Telegram PM Relay

Usage: Send a message directly to this bot to contact the admin.

Note: Admin replies may not arrive immediately, please be patient.`

	VerificationPending = `⏳ Your verification link is still valid

Please check the verification link sent to you earlier and complete verification.

If the link has expired, please try again later.`

	VerificationRequired     = "❌ You need to complete verification first\n\n"
	VerificationLimitReached = "⚠️ You have reached the verification limit (3 times/hour)\nPlease try again later"
	VerificationStartFailed  = "❌ Failed to start verification, please try again later"

	ContentFiltered = "🚫 Your message contains prohibited content and cannot be sent"

	VerifySuccess = "🎉 Correct!\n\nYou have passed verification and can now use the bot normally."
	VerifyWelcome = "🎉 Welcome! You can now send messages."

	VerifyErrorNoSession       = "❌ Verification session does not exist, please start over"
	VerifyErrorAlreadyVerified = "✅ You have already completed verification"
	VerifyErrorExpired         = "❌ Verification expired, please start over"
	VerifyErrorRetry           = "🔄 Please send a message again to get a new verification question"
	VerifyErrorProcessing      = "❌ Verification processing failed, please try again later"
)

// Admin-facing texts.
const (
	AdminNeedReply  = "⚠️ Please reply to a forwarded user message."
	AdminNoMapping  = "❌ Cannot find original sender (data may have been cleaned or not a forwarded message)."
	AdminSendFailed = "❌ Send failed. The user may have blocked the bot or deleted their account."

	StatsFailed = "❌ Failed to get statistics"

	SearchNoKeyword = "⚠️ Please provide a search keyword\nUsage: /search <keyword>"
	SearchNoResults = "🔍 No matching messages found"
	SearchFailed    = "❌ Search failed"

	TemplateFormatError = "⚠️ Invalid format\nUsage: /template add <keyword> <content>"
	TemplateListEmpty   = "📝 No templates"
	TemplateListTitle   = "📝 Quick Reply Template List:\n\n"

	BanlistEmpty = "📋 Banlist is empty"
	BanUsage     = "⚠️ Usage: /ban <user_id> [reason] [hours]\nOr reply to user message with /ban [reason] [hours]"
	UnbanUsage   = "⚠️ Usage: /unban <user_id>\nOr reply to user message with /unban"

	ImportNeedFile = "⚠️ Please reply to a CSV file\nFormat: telegram_id,reason"
	ExportFailed   = "❌ Export failed"
	ImportFailed   = "❌ Import failed"

	HistoryEmpty = "📜 No conversation history"

	RecallAlreadyRevoked = "⚠️ This message has already been recalled"
	RecallNoMessage      = "❌ Cannot find message to recall"
	RecallSuccess        = "✅ Message recalled"
	RecallFailed         = "❌ Recall failed (may exceed 48 hours or message already deleted)"

	UserNotFound = "❌ User data not found"

	RateLimitUsage = `⚠️ Usage:
/ratelimit <user_id> <level> - Set rate limit level
/ratelimit reset <user_id> - Reset rate limit

Level descriptions:
0 = Normal (10/min, 50/hour)
1 = Relaxed/VIP (20/min, 100/hour)
2 = Strict (5/min, 20/hour)
3 = Very Strict (1/min, 10/hour)`
	RateLimitLevelError = "⚠️ Rate limit level must be between 0-3\n0=Normal, 1=Relaxed, 2=Strict, 3=Very Strict"

	VerificationMethodInvalid = `❌ Invalid verification method

Available methods:
• none - Disable verification
• math - Math verification ✨ Recommended
• quiz - Quiz verification
• turnstile - Cloudflare Turnstile
• ai - AI verification`
	VerificationEnabledMsg  = "✅ Verification system enabled"
	VerificationDisabledMsg = "✅ Verification system disabled"

	FilterListEmpty = "📋 No filter rules"
	FilterUsage     = "Usage:\n" +
		"/filter list - List all rules\n" +
		"/filter add <regex> [block|drop] [note] [priority] - Add rule\n" +
		"/filter del <id> - Delete rule\n" +
		"/filter toggle <id> - Toggle rule\n" +
		"/filter priority <id> <priority> - Set priority"
)

// AdminStart renders the admin command overview.
func AdminStart(adminID string) string {
	return fmt.Sprintf(`👋 Telegram PM Relay Admin Panel Ready

Current Admin ID: %s

📋 Basic Operations:
• Reply to forwarded messages to respond directly
• /block - Block user
• /unblock - Unblock user
• /check - Check user status

📝 Quick Replies:
• /template add <keyword> <content> - Add template
• /template list - View all templates
• /template delete <keyword> - Delete template
• /reply <keyword> - Reply with template

🔍 Query Functions:
• /history [user_id] - View conversation history
• /search <keyword> - Search messages
• /stats - View statistics

🚫 Banlist Management:
• /ban <user_id> [reason] [hours] - Ban user
• /unban <user_id> - Unban user
• /banlist - View banlist
• /import - Import banlist (reply to CSV file)
• /export - Export banlist

✏️ Message Management:
• /recall - Recall message (reply to message)

🛡️ Rate Limit Management:
• /ratelimit <user_id> <level> - Set rate limit level
• /ratelimit reset <user_id> - Reset rate limit

🔒 Verification Management:
• /verification status - View verification status
• /verification set <method> - Set verification method
• /verification enable/disable - Enable/disable verification
• /verify <user_id> - Send verification link to user
• /reverify <user_id> - Clear verification status
• /reset-verification <user_id> - Reset verification limits

🛡️ Content Filtering:
• /filter list - List all filter rules
• /filter add <regex> [block|drop] [note] [priority] - Add rule
• /filter del <id> - Delete rule
• /filter toggle <id> - Enable/disable rule
• /filter priority <id> <priority> - Set priority`, adminID)
}

// FirstRateLimitWarning renders the first-violation warning with the
// deployment base limits.
func FirstRateLimitWarning(cooldown, perMinute int) string {
	return fmt.Sprintf(`⚠️ Sending messages too fast

You have sent too many messages in a short time, please try again later.

Current limits:
• At least %d seconds between messages
• Maximum %d messages per minute

Please wait 30 seconds before retrying.`, cooldown, perMinute)
}

// SecondRateLimitWarning renders the five-minute penalty notice.
func SecondRateLimitWarning(unlockTime time.Time) string {
	return fmt.Sprintf(`🚫 Rate limited

You have been rate limited for sending messages too quickly.

Limit duration: 5 minutes
Unlock time: %s

Note: Repeated violations may result in longer restrictions.`, unlockTime.Format("2006-01-02 15:04:05 MST"))
}

// ThirdRateLimitWarning renders the thirty-minute penalty notice.
func ThirdRateLimitWarning(unlockTime time.Time) string {
	return fmt.Sprintf(`🔒 Strict rate limit

You have repeatedly violated message sending rules and have been strictly rate limited.

Limit duration: 30 minutes
Unlock time: %s

If you have questions, please contact the admin.`, unlockTime.Format("2006-01-02 15:04:05 MST"))
}

// Rate limit denial reasons, shown to the admin.
func RateLimitInPenalty(seconds int) string {
	return fmt.Sprintf("User in penalty period (wait %d seconds)", seconds)
}

func RateLimitCooldown(seconds int) string {
	return fmt.Sprintf("Cooldown not reached (wait %d seconds)", seconds)
}

func RateLimitPerMinute(limit int) string {
	return fmt.Sprintf("Exceeded per-minute limit (%d messages)", limit)
}

func RateLimitPerHour(limit int) string {
	return fmt.Sprintf("Exceeded per-hour limit (%d messages)", limit)
}

// RateLimitedNotify tells the admin a guest hit the limiter.
func RateLimitedNotify(name, id, reason string) string {
	return fmt.Sprintf("⚠️ User triggered rate limit\nUser: %s (ID: %s)\nReason: %s", name, id, reason)
}

// NewSession announces a fresh guest conversation to the admin.
func NewSession(name, id string) string {
	return fmt.Sprintf("📩 New Session\nFrom: %s (ID: %s)", name, id)
}

// HighRiskWarning flags an inbound message from a banlisted guest.
func HighRiskWarning(userID, reason string, expires *time.Time) string {
	msg := fmt.Sprintf("⚠️ High Risk Alert\nUser %s is on the banlist.\nReason: %s", userID, reason)
	if expires != nil {
		msg += fmt.Sprintf("\nExpires: %s", expires.Format("2006-01-02 15:04:05 MST"))
	}
	return msg
}

// VerificationCooldownNotice tells the guest how long to wait.
func VerificationCooldownNotice(d time.Duration) string {
	return fmt.Sprintf("⏳ Verification cooldown, please try again in %s", FormatDuration(d))
}

// WrongAnswer renders the wrong-answer feedback with the correct option.
func WrongAnswer(correctAnswer string) string {
	return fmt.Sprintf("❌ Wrong answer\n\n💡 The correct answer is: %s\n\n%s", correctAnswer, VerifyErrorRetry)
}

// MathChallenge frames a math question.
func MathChallenge(question string) string {
	return fmt.Sprintf("🧮 Please answer the following question:\n\n%s", question)
}

// QuizChallenge frames a quiz question.
func QuizChallenge(question string) string {
	return fmt.Sprintf("❓ Please answer the following question:\n\n%s", question)
}

// AIChallenge frames an AI-generated question.
func AIChallenge(question string) string {
	return fmt.Sprintf("🤖 Please answer the following question:\n\n%s", question)
}

// TurnstileChallenge frames the out-of-band CAPTCHA prompt.
func TurnstileChallenge(minutes int) string {
	return fmt.Sprintf("🔒 First-time users need to complete verification\n\n⏱️ Link expires in %d minutes", minutes)
}

const TurnstileButton = "🔐 Click to verify"

// FormatStats renders the /stats response.
func FormatStats(todayIn, todayOut, activeUsers, totalUsers, totalMsgs, banned int) string {
	const sep = "━━━━━━━━━━━━━━━━━━"
	return strings.Join([]string{
		"📊 Bot Statistics (Last 24 Hours)",
		sep,
		fmt.Sprintf("📨 Received: %d messages", todayIn),
		fmt.Sprintf("📤 Sent: %d messages", todayOut),
		fmt.Sprintf("👥 Active Users: %d", activeUsers),
		"\n📈 Total Data",
		sep,
		fmt.Sprintf("Total Users: %d", totalUsers),
		fmt.Sprintf("Total Messages: %d", totalMsgs),
		fmt.Sprintf("🚫 Banlist: %d users", banned),
	}, "\n")
}

// FormatDuration renders a duration in the largest sensible unit.
func FormatDuration(d time.Duration) string {
	seconds := int(d.Seconds())
	switch {
	case seconds < 60:
		return fmt.Sprintf("%d seconds", seconds)
	case seconds < 3600:
		return fmt.Sprintf("%d minutes", seconds/60)
	default:
		hours := seconds / 3600
		minutes := (seconds % 3600) / 60
		if minutes > 0 {
			return fmt.Sprintf("%d hours %d minutes", hours, minutes)
		}
		return fmt.Sprintf("%d hours", hours)
	}
}

// Banned confirms a ban to the admin.
func Banned(userID, reason string, hours *int) string {
	expires := ""
	if hours != nil {
		expires = fmt.Sprintf(" (auto-unban in %d hours)", *hours)
	}
	return fmt.Sprintf("✅ Banned user %s%s\nReason: %s", userID, expires, reason)
}

func Unbanned(userID string) string {
	return fmt.Sprintf("✅ Unbanned %s", userID)
}

func BanlistTitle(count int) string {
	return fmt.Sprintf("🚫 Banlist (%d users):\n\n", count)
}

func ImportSuccess(imported int, errs []string) string {
	msg := fmt.Sprintf("✅ Import completed\nSuccess: %d users", imported)
	if len(errs) > 0 {
		show := errs
		if len(show) > 5 {
			show = show[:5]
		}
		msg += fmt.Sprintf("\nFailed: %d entries\n\nErrors:\n%s", len(errs), strings.Join(show, "\n"))
	}
	return msg
}

func TemplateAdded(keyword string) string {
	return fmt.Sprintf("✅ Template %q added", keyword)
}

func TemplateSent(keyword string) string {
	return fmt.Sprintf("✅ Sent template %q", keyword)
}

func TemplateExists(keyword string) string {
	return fmt.Sprintf("⚠️ Template %q already exists", keyword)
}

func TemplateDeleted(keyword string) string {
	return fmt.Sprintf("✅ Template %q deleted", keyword)
}

func TemplateNotFound(keyword string) string {
	return fmt.Sprintf("❌ Template %q not found", keyword)
}

func RateLimitReset(userID string) string {
	return fmt.Sprintf("✅ Reset rate limit for user %s", userID)
}

// RateLimitSet confirms a tier change, echoing the effective limits.
func RateLimitSet(userID, levelName string, cooldown, perMinute, perHour int) string {
	return fmt.Sprintf(`✅ Set rate limit level for user %s

Level: %s
Config:
• Cooldown: %d seconds
• Per minute: %d messages
• Per hour: %d messages`, userID, levelName, cooldown, perMinute, perHour)
}

func VerificationMethodSet(method string) string {
	return fmt.Sprintf("✅ Verification method set to: %s\n\nUse /verification status to view details", method)
}

func VerifyUserNotFound(userID string) string {
	return fmt.Sprintf("❌ User %s not found", userID)
}

func VerifyUserAlreadyVerified(userID string) string {
	return fmt.Sprintf("✅ User %s is already verified", userID)
}

func VerifyCannotGenerate(userID string) string {
	return fmt.Sprintf("❌ Cannot generate verification link for user %s\n\n", userID)
}

func VerifyCooldownWait(duration string) string {
	return fmt.Sprintf("⏳ Verification cooldown, please wait %s", duration)
}

// VerifyLinkForUser is the guest-side prompt accompanying an admin-issued
// verification link.
func VerifyLinkForUser(minutes int) string {
	return fmt.Sprintf("🔒 Admin requests you to complete verification\n\nPlease click the link below to verify:\n\n⏱️ Link expires in %d minutes", minutes)
}

const VerifySendFailed = "❌ Failed to send verification link, please check user ID"

func VerificationConfigMissing(method string, missing []string) string {
	return fmt.Sprintf("❌ Cannot enable %s verification, missing configuration:\n• %s",
		method, strings.Join(missing, "\n• "))
}

func VerifyLinkGenerated(userID, link string, minutes, attemptsRemaining int) string {
	return fmt.Sprintf("✅ Verification link generated\n\nUser ID: %s\nLink: %s\n\n⏱️ Link expires in %d minutes\n💡 Attempts remaining: %d/3 (per hour)",
		userID, link, minutes, attemptsRemaining)
}

func ReverifyCleared(userID string) string {
	return fmt.Sprintf("✅ Cleared verification status for user %s\nUser will need to re-verify on next message", userID)
}

func ResetVerificationDone(userID string) string {
	return fmt.Sprintf("✅ Reset verification limits for user %s\nUser can now request a new verification link", userID)
}

func HistoryTitle(count int) string {
	return fmt.Sprintf("📜 Conversation History (last %d):\n\n", count)
}

func SearchResultsTitle(count int) string {
	return fmt.Sprintf("🔍 Found %d matching messages:\n\n", count)
}

func FilterListTitle(count int) string {
	return fmt.Sprintf("📋 Filter Rules (%d total)\n\n", count)
}

func FilterAdded(id int64) string {
	return fmt.Sprintf("✅ Filter rule added (ID: %d)", id)
}

func FilterDeleted(id int64) string {
	return fmt.Sprintf("✅ Rule %d deleted", id)
}

func FilterToggled(id int64, active bool) string {
	state := "disabled"
	if active {
		state = "enabled"
	}
	return fmt.Sprintf("✅ Rule %d %s", id, state)
}

func FilterPrioritySet(id int64, priority int) string {
	return fmt.Sprintf("✅ Rule %d priority set to %d", id, priority)
}

// EditNotification tells the admin a guest edited a previously relayed
// message.
func EditNotification(userName, userID, oldContent, newContent string) string {
	msg := fmt.Sprintf("✏️ User edited a message\n\n👤 User: %s\n🆔 ID: %s\n\n", userName, userID)
	if oldContent != "" {
		msg += fmt.Sprintf("📝 Original:\n%s\n\n", oldContent)
	}
	msg += fmt.Sprintf("📝 Edited:\n%s", newContent)
	return msg
}

// UserCheck renders the /check response.
func UserCheck(id, username, status string, messageCount int, verified bool, level string, violations int, banReason *string) string {
	verifiedText := "No"
	if verified {
		verifiedText = "Yes"
	}
	msg := fmt.Sprintf(`👤 User Info
ID: %s
Username: %s
Status: %s
Messages: %d
Verified: %s
Rate limit level: %s (violations: %d)`,
		id, username, status, messageCount, verifiedText, level, violations)
	if banReason != nil {
		msg += fmt.Sprintf("\n🚫 On banlist: %s", *banReason)
	}
	return msg
}

// VerificationStatusReport renders the /verification status response.
func VerificationStatusReport(enabled bool, method string, timeoutMinutes int, missing []string) string {
	state := "disabled"
	if enabled {
		state = "enabled"
	}
	msg := fmt.Sprintf("🔒 Verification: %s\nMethod: %s\nLink timeout: %d minutes", state, method, timeoutMinutes)
	if len(missing) > 0 {
		msg += fmt.Sprintf("\n⚠️ Missing config: %s", strings.Join(missing, ", "))
	}
	return msg
}

// HistoryEntry renders one line of /history or /search output.
func HistoryEntry(direction string, at time.Time, content string) string {
	arrow := "📥"
	if direction == "out" {
		arrow = "📤"
	}
	if content == "" {
		content = "(no text)"
	}
	return fmt.Sprintf("%s %s\n%s\n\n", arrow, at.Format("2006-01-02 15:04"), content)
}

// BanlistEntry renders one /banlist row.
func BanlistEntry(id string, reason *string, expires *time.Time) string {
	text := fmt.Sprintf("• %s", id)
	if reason != nil {
		text += fmt.Sprintf(" - %s", *reason)
	}
	if expires != nil {
		text += fmt.Sprintf(" (until %s)", expires.Format("2006-01-02 15:04"))
	} else {
		text += " (permanent)"
	}
	return text + "\n"
}

// FilterEntry renders one /filter list row.
func FilterEntry(id int64, regex, mode string, priority int, active bool, note *string) string {
	state := "off"
	if active {
		state = "on"
	}
	text := fmt.Sprintf("#%d [%s] /%s/ mode=%s priority=%d", id, state, regex, mode, priority)
	if note != nil {
		text += fmt.Sprintf(" - %s", *note)
	}
	return text + "\n"
}

func UnknownCommand(cmd string) string {
	return fmt.Sprintf("❌ Unknown command: /%s\n\nType /start to see available commands\nOr /template list to see quick reply templates", cmd)
}
