package models

const (
	MapStatusDraft     = "draft"
	MapStatusPublished = "published"
)

// TrackMap is a community/admin authored race track. LayoutJSON is the game
// client's own format — stored opaquely, only validated to be well-formed
// JSON. The preview image lives in R2; ImageURL is the public CDN URL.
type TrackMap struct {
	ID          string `gorm:"primaryKey;type:uuid" json:"id"`
	Name        string `gorm:"not null" json:"name"`
	Slug        string `gorm:"uniqueIndex;not null" json:"slug"`
	Description string `gorm:"type:text" json:"description"`
	CreatorID   string `gorm:"index" json:"creator_id"`
	ImageURL    string `gorm:"type:text" json:"image_url"`
	LayoutJSON  string `gorm:"type:text" json:"layout_json"`
	Status      string `gorm:"type:varchar(16);default:'draft'" json:"status"` // draft | published

	Timestamps
}
