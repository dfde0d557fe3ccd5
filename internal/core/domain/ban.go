package domain

import "time"

// BanEntry is an advisory fraud-list record keyed by telegram id. A nil
// ExpiresAt means the entry is permanent. An entry whose expiry has passed
// is logically absent and is purged lazily on read or by the sweep.
type BanEntry struct {
	TelegramID string
	Reason     *string
	ExpiresAt  *time.Time
	AddedBy    *string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Expired reports whether the entry's expiry has passed at now.
func (b *BanEntry) Expired(now time.Time) bool {
	return b.ExpiresAt != nil && b.ExpiresAt.Before(now)
}
