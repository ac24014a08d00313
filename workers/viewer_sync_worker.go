// workers/viewer_sync_worker.go
package workers

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"slipstream-companion/models"
	"slipstream-companion/services"
)

// ViewerSyncWorker keeps the local viewer mirror fresh: every interval it
// finds Twitch ids that raced but have stale or missing profile data and
// backfills login, display name and avatar from Helix. The mirror exists so
// the site never calls Helix on a per-request basis.
type ViewerSyncWorker struct {
	db       *gorm.DB
	twitch   *services.TwitchClient
	interval time.Duration
	staleAge time.Duration
}

func NewViewerSyncWorker(db *gorm.DB, twitch *services.TwitchClient, interval time.Duration) *ViewerSyncWorker {
	return &ViewerSyncWorker{
		db:       db,
		twitch:   twitch,
		interval: interval,
		staleAge: 24 * time.Hour,
	}
}

func (w *ViewerSyncWorker) Start(ctx context.Context) {
	log.Println("🔁 Starting Viewer Sync Worker (Helix → viewer_profiles)…")

	// initial pass so a fresh deployment backfills immediately
	if err := w.syncBatch(ctx); err != nil {
		log.Printf("⚠️ [VIEWER_SYNC] initial sync failed: %v", err)
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := w.syncBatch(ctx); err != nil {
				log.Printf("❌ [VIEWER_SYNC] sync batch failed: %v", err)
			}
		case <-ctx.Done():
			log.Println("⏹️ Viewer Sync Worker stopped")
			return
		}
	}
}

// staleViewerIDs lists Twitch ids needing a Helix refresh: ids present in
// race_results with no mirror row at all, plus mirror rows whose data is
// missing or older than staleAge. Capped per pass to stay inside Helix
// batch limits.
func (w *ViewerSyncWorker) staleViewerIDs() ([]string, error) {
	cutoff := time.Now().Add(-w.staleAge)

	var ids []string
	err := w.db.Raw(`
		SELECT DISTINCT r.viewer_id
		FROM race_results r
		LEFT JOIN viewer_profiles p ON p.twitch_user_id = r.viewer_id
		WHERE p.id IS NULL OR p.login = '' OR p.updated_at < ?
		LIMIT 100
	`, cutoff).Scan(&ids).Error
	return ids, err
}

func (w *ViewerSyncWorker) syncBatch(ctx context.Context) error {
	ids, err := w.staleViewerIDs()
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}

	users, err := w.twitch.GetUsersByID(ids)
	if err != nil {
		return err
	}
	if len(users) == 0 {
		return nil
	}

	synced := 0
	for _, u := range users {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		profile := models.ViewerProfile{
			ID:           uuid.NewString(),
			TwitchUserID: u.ID,
			Login:        u.Login,
			DisplayName:  u.DisplayName,
			AvatarURL:    u.ProfileImageURL,
		}
		err := w.db.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "twitch_user_id"}},
			DoUpdates: clause.Assignments(map[string]interface{}{
				"login":        u.Login,
				"display_name": u.DisplayName,
				"avatar_url":   u.ProfileImageURL,
				"updated_at":   time.Now(),
			}),
		}).Create(&profile).Error
		if err != nil {
			log.Printf("⚠️ [VIEWER_SYNC] failed to upsert viewer %s: %v", u.ID, err)
			continue
		}
		synced++
	}

	log.Printf("✅ [VIEWER_SYNC] refreshed %d/%d viewer profiles", synced, len(ids))
	return nil
}
