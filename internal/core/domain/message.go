package domain

import "time"

// MessageDirection tells whether a recorded message came from a guest or
// was sent back by the admin.
type MessageDirection string

const (
	DirectionIn  MessageDirection = "in"
	DirectionOut MessageDirection = "out"
)

// MessageKind classifies the content of a relayed message.
type MessageKind string

const (
	KindText      MessageKind = "text"
	KindPhoto     MessageKind = "photo"
	KindVideo     MessageKind = "video"
	KindDocument  MessageKind = "document"
	KindVoice     MessageKind = "voice"
	KindSticker   MessageKind = "sticker"
	KindAnimation MessageKind = "animation"
	KindLocation  MessageKind = "location"
	KindContact   MessageKind = "contact"
)

// MessageRecord is one row of the full relay history.
type MessageRecord struct {
	ID           int64
	TelegramID   string
	MessageID    string
	Direction    MessageDirection
	Kind         MessageKind
	Content      *string
	MediaGroupID *string
	CreatedAt    time.Time
}

// MessageMap links a message forwarded to the admin back to the guest chat
// it came from, so admin replies can be routed.
type MessageMap struct {
	AdminMessageID    string
	TelegramID        string
	OriginalMessageID *string
	MediaGroupID      *string
	IsRevoked         bool
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// ReplyTemplate is a keyword-keyed canned response.
type ReplyTemplate struct {
	ID        int64
	Keyword   string
	Content   string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// FilterMode selects what happens when a filter rule matches: block tells
// the guest their message was rejected, drop discards it silently.
type FilterMode string

const (
	FilterBlock FilterMode = "block"
	FilterDrop  FilterMode = "drop"
)

// MessageFilter is an admin-authored regex rule applied to inbound text.
type MessageFilter struct {
	ID        int64
	Regex     string
	Mode      FilterMode
	Note      *string
	Priority  int
	IsActive  bool
	CreatedAt time.Time
}

// Stats aggregates relay activity for the admin /stats command.
type Stats struct {
	TodayIn     int `json:"todayIn"`
	TodayOut    int `json:"todayOut"`
	ActiveUsers int `json:"activeUsers"`
	TotalUsers  int `json:"totalUsers"`
	TotalMsgs   int `json:"totalMsgs"`
	BannedUsers int `json:"bannedUsers"`
}
