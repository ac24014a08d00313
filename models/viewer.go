package models

import "time"

// ViewerProfile is a local mirror of the Twitch user data we care about.
// Owned solely by this service; populated by the viewer sync worker from
// Helix and touched by race ingestion (last_seen_at bump). Viewers are
// always keyed by their Twitch user id everywhere else — this table exists
// so the site can render names and avatars without calling Helix per request.
type ViewerProfile struct {
	ID           string     `gorm:"primaryKey;type:uuid" json:"id"`
	TwitchUserID string     `gorm:"uniqueIndex;not null" json:"twitch_user_id"`
	Login        string     `gorm:"index" json:"login"`
	DisplayName  string     `json:"display_name"`
	AvatarURL    string     `gorm:"type:text" json:"avatar_url"`
	LastSeenAt   *time.Time `json:"last_seen_at,omitempty"`

	Timestamps
}
