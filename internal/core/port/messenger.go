package port

import "context"

// Button is one inline choice offered under a message. Exactly one of
// CallbackData or URL is set.
type Button struct {
	Text         string
	CallbackData string
	URL          string
}

// Messenger is the outbound messaging surface the core calls but does not
// implement. Message and chat ids are opaque strings; the transport layer
// owns their interpretation.
type Messenger interface {
	// SendText delivers a plain text message and returns the platform
	// message id of the sent message.
	SendText(ctx context.Context, chatID, text string) (int, error)
	// SendTextWithButtons delivers text with inline buttons laid out as
	// the given rows.
	SendTextWithButtons(ctx context.Context, chatID, text string, rows [][]Button) (int, error)
	// EditText replaces the text of a previously sent message.
	EditText(ctx context.Context, chatID string, messageID int, text string) error
	// ForwardMessage relays a message between chats and returns the new
	// message id on the destination side.
	ForwardMessage(ctx context.Context, toChatID, fromChatID string, messageID int) (int, error)
	// CopyMessage re-sends a message's content without the forward
	// header and returns the new message id.
	CopyMessage(ctx context.Context, toChatID, fromChatID string, messageID int) (int, error)
	// AnswerCallback acknowledges a callback query; alert pops the text
	// as a modal instead of a toast.
	AnswerCallback(ctx context.Context, callbackID, text string, alert bool) error
	// DeleteMessage removes a previously sent message. Platforms limit
	// how old a message can be deleted; the error passes through.
	DeleteMessage(ctx context.Context, chatID string, messageID int) error
}
