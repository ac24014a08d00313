package services

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"slipstream-companion/models"
)

// unlockEvent is one SSE payload: the ledger row joined with the
// achievement's display fields so the client can render a toast directly.
type unlockEvent struct {
	AchievementID int64  `json:"achievement_id"`
	Name          string `json:"name"`
	Description   string `json:"description,omitempty"`
	UnlockedAtMs  int64  `json:"unlocked_at_ms"`
	Source        string `json:"source"`
}

// StreamViewerUnlocks pushes the authenticated viewer's new unlocks over
// SSE. Polls the ledger every 2s with a created_at cursor; a write path
// notification channel would be faster but polling keeps the handlers
// stateless across instances.
func (s *AchievementService) StreamViewerUnlocks(c *fiber.Ctx) error {
	viewerID := c.Locals("viewer_id").(string)

	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")
	c.Set("Connection", "keep-alive")
	c.Set("X-Accel-Buffering", "no") // nginx

	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		ticker := time.NewTicker(2 * time.Second)
		defer ticker.Stop()

		// start the cursor at the newest existing unlock so the stream only
		// carries unlocks earned while connected
		var cursor time.Time
		var latest models.AchievementUnlock
		if err := s.DB.
			Where("viewer_id = ?", viewerID).
			Order("created_at DESC").
			First(&latest).Error; err == nil {
			cursor = latest.CreatedAt
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			log.Printf("⚠️ [SSE] unlock stream init failed for viewer %s: %v", viewerID, err)
		}

		// initial keepalive so proxies see bytes immediately
		w.WriteString(":\n\n")
		w.Flush()

		heartbeat := 0
		for {
			select {
			case <-ticker.C:
				var rows []struct {
					models.AchievementUnlock
					Name        string
					Description string
				}
				err := s.DB.Raw(`
					SELECT u.*, a.name, a.description
					FROM achievement_unlocks u
					JOIN achievements a ON a.id = u.achievement_id
					WHERE u.viewer_id = ? AND u.created_at > ?
					ORDER BY u.created_at ASC
				`, viewerID, cursor).Scan(&rows).Error
				if err != nil {
					log.Printf("⚠️ [SSE] unlock stream query failed for viewer %s: %v", viewerID, err)
					continue
				}

				if len(rows) == 0 {
					// periodic comment keeps idle connections open
					heartbeat++
					if heartbeat%15 == 0 {
						w.WriteString(": ping\n\n")
						if err := w.Flush(); err != nil {
							return
						}
					}
					continue
				}

				cursor = rows[len(rows)-1].CreatedAt
				for _, row := range rows {
					payload, _ := json.Marshal(unlockEvent{
						AchievementID: row.AchievementID,
						Name:          row.Name,
						Description:   row.Description,
						UnlockedAtMs:  row.UnlockedAtMs,
						Source:        row.Source,
					})
					fmt.Fprintf(w, "event: unlock\ndata: %s\n\n", payload)
				}
				if err := w.Flush(); err != nil {
					// client disconnected
					return
				}

			case <-c.Context().Done():
				return
			}
		}
	})

	return nil
}
