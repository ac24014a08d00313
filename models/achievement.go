package models

import (
	"time"

	"gorm.io/gorm"
)

// Achievement is one entry in the global catalog. Criteria holds the raw
// rule text ("wins>=1;races>=5") authored through the admin tool; it is
// parsed on every evaluation pass, never cached.
type Achievement struct {
	ID          int64  `gorm:"primaryKey;autoIncrement" json:"id"`
	Name        string `gorm:"not null" json:"name"`
	Description string `gorm:"type:text" json:"description"`
	Criteria    string `gorm:"type:text;not null" json:"criteria"`
	Disabled    bool   `gorm:"default:false;index" json:"disabled"`
	SortOrder   int    `gorm:"default:0" json:"sort_order"`

	Timestamps
}

// AchievementUnlock is the permanent ledger row for one viewer earning one
// achievement. The unique index on (viewer_id, achievement_id) is what makes
// awarding exactly-once under concurrent callers — inserts go through
// ON CONFLICT DO NOTHING and only a row that actually landed counts.
type AchievementUnlock struct {
	ID            string    `gorm:"primaryKey;type:uuid" json:"id"`
	ViewerID      string    `gorm:"uniqueIndex:idx_unlock_viewer_achievement;not null" json:"viewer_id"`
	AchievementID int64     `gorm:"uniqueIndex:idx_unlock_viewer_achievement;not null" json:"achievement_id"`
	UnlockedAtMs  int64     `gorm:"not null" json:"unlocked_at_ms"`
	Source        string    `gorm:"size:32" json:"source"`      // e.g., "race", "action", "sweep"
	SourceRef     string    `gorm:"size:128" json:"source_ref"` // race id, action key, sweep run id
	CreatedAt     time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// Timestamps adds GORM auto-times
type Timestamps struct {
	CreatedAt time.Time      `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time      `json:"updated_at" gorm:"autoUpdateTime"`
	DeletedAt gorm.DeletedAt `json:"deleted_at,omitempty" gorm:"index"`
}
