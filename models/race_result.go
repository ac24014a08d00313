package models

import "time"

const (
	RaceStatusFinished     = "FINISHED"
	RaceStatusDNF          = "DNF"
	RaceStatusDisconnected = "DISCONNECTED"
	RaceStatusDisqualified = "DISQUALIFIED"
)

// RaceResult records one viewer's outcome in one race, reported by the game
// server. Rows are immutable facts — no soft delete, no updates. The unique
// index on (race_id, viewer_id) makes retried submissions harmless.
type RaceResult struct {
	ID         string  `gorm:"primaryKey;type:uuid" json:"id"`
	RaceID     string  `gorm:"uniqueIndex:idx_race_viewer;not null" json:"race_id"`
	ViewerID   string  `gorm:"uniqueIndex:idx_race_viewer;index;not null" json:"viewer_id"` // Twitch user id
	TrackMapID *string `gorm:"index" json:"track_map_id,omitempty"`

	// Outcome
	Status         string `gorm:"type:varchar(16);not null" json:"status"` // FINISHED | DNF | DISCONNECTED | DISQUALIFIED
	FinishPosition int    `gorm:"default:0" json:"finish_position"`        // 1-based; 0 when not finished
	BestLapMs      int64  `gorm:"default:0" json:"best_lap_ms"`
	TotalTimeMs    int64  `gorm:"default:0" json:"total_time_ms"`

	CreatedAt time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}

// ValidRaceStatus reports whether s is one of the accepted status values.
func ValidRaceStatus(s string) bool {
	switch s {
	case RaceStatusFinished, RaceStatusDNF, RaceStatusDisconnected, RaceStatusDisqualified:
		return true
	}
	return false
}
