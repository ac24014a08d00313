package services

import (
	"errors"
	"log"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"slipstream-companion/models"
)

type AwardService struct {
	DB *gorm.DB
}

func NewAwardService(db *gorm.DB) *AwardService {
	return &AwardService{DB: db}
}

// compiledAchievement pairs a stored achievement with its parsed clauses.
type compiledAchievement struct {
	models.Achievement
	Clauses []Clause
}

type unlockKey struct {
	ViewerID      string
	AchievementID int64
}

// NewUnlock is one unlock granted by an award pass, in the shape handlers
// and the SSE feed send out.
type NewUnlock struct {
	ViewerID      string `json:"viewer_id"`
	AchievementID int64  `json:"achievement_id"`
	Name          string `json:"name"`
	Source        string `json:"source"`
	SourceRef     string `json:"source_ref,omitempty"`
	UnlockedAtMs  int64  `json:"unlocked_at_ms"`
}

// Requirement is one clause of an achievement annotated with the viewer's
// current standing against it.
type Requirement struct {
	Metric    string  `json:"metric"`
	Op        string  `json:"op"`
	Threshold float64 `json:"threshold"`
	Current   float64 `json:"current"`
	Progress  float64 `json:"progress"`
	Met       bool    `json:"met"`
}

// AchievementProgress is the viewer-facing progress report for one
// achievement. Unlocked achievements pin Progress to 1 and omit the
// requirement breakdown.
type AchievementProgress struct {
	AchievementID int64         `json:"achievement_id"`
	Name          string        `json:"name"`
	Description   string        `json:"description,omitempty"`
	Unlocked      bool          `json:"unlocked"`
	UnlockedAtMs  int64         `json:"unlocked_at_ms,omitempty"`
	Progress      float64       `json:"progress"`
	Requirements  []Requirement `json:"requirements,omitempty"`
}

// loadCompiledAchievements fetches every enabled achievement and parses its
// criteria. Rows that fail to parse are skipped with a warning rather than
// poisoning the whole pass; they were let in before validation tightened.
func (s *AwardService) loadCompiledAchievements() ([]compiledAchievement, error) {
	var rows []models.Achievement
	err := s.DB.
		Where("disabled = ?", false).
		Order("sort_order ASC, id ASC").
		Find(&rows).Error
	if err != nil {
		if isUndefinedTable(err) {
			return nil, ErrStorageUninitialized
		}
		return nil, err
	}

	compiled := make([]compiledAchievement, 0, len(rows))
	for _, row := range rows {
		clauses, err := ParseCriteria(row.Criteria)
		if err != nil {
			log.Printf("⚠️ [AWARDS] skipping achievement %d (%s): %v", row.ID, row.Name, err)
			continue
		}
		compiled = append(compiled, compiledAchievement{Achievement: row, Clauses: clauses})
	}
	return compiled, nil
}

// AwardForViewers evaluates every enabled achievement for the given viewers
// and records the unlocks they newly earned. Awarding is exactly-once: the
// unique index on (viewer_id, achievement_id) plus ON CONFLICT DO NOTHING
// means a concurrent pass racing us simply reports zero rows affected, and
// only the insert that actually landed reports the unlock.
//
// This is best-effort by contract: an unmigrated database logs a warning and
// returns no unlocks instead of failing the caller's request.
func (s *AwardService) AwardForViewers(viewerIDs []string, source, sourceRef string) ([]NewUnlock, error) {
	viewers := make([]string, 0, len(viewerIDs))
	seen := make(map[string]bool, len(viewerIDs))
	for _, id := range viewerIDs {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		viewers = append(viewers, id)
	}
	if len(viewers) == 0 {
		return nil, nil
	}

	achievements, err := s.loadCompiledAchievements()
	if err != nil {
		if errors.Is(err, ErrStorageUninitialized) {
			log.Printf("⚠️ [AWARDS] achievements table missing, skipping award pass")
			return nil, nil
		}
		return nil, err
	}
	if len(achievements) == 0 {
		return nil, nil
	}

	clauseSets := make([][]Clause, len(achievements))
	achievementIDs := make([]int64, len(achievements))
	for i, a := range achievements {
		clauseSets[i] = a.Clauses
		achievementIDs[i] = a.ID
	}

	snapshots, err := SnapshotsForViewers(s.DB, viewers, RequiredActionKeys(clauseSets))
	if err != nil {
		if errors.Is(err, ErrStorageUninitialized) {
			log.Printf("⚠️ [AWARDS] metric tables missing, skipping award pass")
			return nil, nil
		}
		return nil, err
	}

	var existing []models.AchievementUnlock
	err = s.DB.
		Where("viewer_id IN ? AND achievement_id IN ?", viewers, achievementIDs).
		Find(&existing).Error
	if err != nil {
		if isUndefinedTable(err) {
			log.Printf("⚠️ [AWARDS] unlock table missing, skipping award pass")
			return nil, nil
		}
		return nil, err
	}
	unlocked := make(map[unlockKey]bool, len(existing))
	for _, u := range existing {
		unlocked[unlockKey{ViewerID: u.ViewerID, AchievementID: u.AchievementID}] = true
	}

	var newUnlocks []NewUnlock
	for _, viewerID := range viewers {
		snap := snapshots[viewerID]
		for _, a := range achievements {
			key := unlockKey{ViewerID: viewerID, AchievementID: a.ID}
			if unlocked[key] {
				continue
			}
			if !EvaluateAll(a.Clauses, snap) {
				continue
			}

			unlock := models.AchievementUnlock{
				ID:            uuid.NewString(),
				ViewerID:      viewerID,
				AchievementID: a.ID,
				UnlockedAtMs:  time.Now().UnixMilli(),
				Source:        source,
				SourceRef:     sourceRef,
			}
			res := s.DB.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "viewer_id"}, {Name: "achievement_id"}},
				DoNothing: true,
			}).Create(&unlock)
			if res.Error != nil {
				if isUndefinedTable(res.Error) {
					log.Printf("⚠️ [AWARDS] unlock table missing, skipping award pass")
					return newUnlocks, nil
				}
				log.Printf("❌ [AWARDS] failed to record unlock (viewer %s, achievement %d): %v", viewerID, a.ID, res.Error)
				continue
			}

			unlocked[key] = true
			if res.RowsAffected == 0 {
				// a concurrent pass beat us to it
				continue
			}

			log.Printf("✅ [AWARDS] viewer %s unlocked %q (source=%s)", viewerID, a.Name, source)
			newUnlocks = append(newUnlocks, NewUnlock{
				ViewerID:      viewerID,
				AchievementID: a.ID,
				Name:          a.Name,
				Source:        source,
				SourceRef:     sourceRef,
				UnlockedAtMs:  unlock.UnlockedAtMs,
			})
		}
	}

	return newUnlocks, nil
}

// ProgressForViewer reports the viewer's metric snapshot and their standing
// against every enabled achievement. Unlike awarding, an unmigrated database
// is surfaced here so the progress endpoint can say so explicitly.
func (s *AwardService) ProgressForViewer(viewerID string) (*MetricSnapshot, []AchievementProgress, error) {
	achievements, err := s.loadCompiledAchievements()
	if err != nil {
		return nil, nil, err
	}

	clauseSets := make([][]Clause, len(achievements))
	for i, a := range achievements {
		clauseSets[i] = a.Clauses
	}

	snapshots, err := SnapshotsForViewers(s.DB, []string{viewerID}, RequiredActionKeys(clauseSets))
	if err != nil {
		return nil, nil, err
	}
	snap := snapshots[viewerID]

	var unlocks []models.AchievementUnlock
	err = s.DB.Where("viewer_id = ?", viewerID).Find(&unlocks).Error
	if err != nil {
		if isUndefinedTable(err) {
			return nil, nil, ErrStorageUninitialized
		}
		return nil, nil, err
	}
	unlockedAt := make(map[int64]int64, len(unlocks))
	for _, u := range unlocks {
		unlockedAt[u.AchievementID] = u.UnlockedAtMs
	}

	progress := make([]AchievementProgress, 0, len(achievements))
	for _, a := range achievements {
		entry := AchievementProgress{
			AchievementID: a.ID,
			Name:          a.Name,
			Description:   a.Description,
		}

		if at, ok := unlockedAt[a.ID]; ok {
			// an unlock is permanent even if the metrics later regress
			entry.Unlocked = true
			entry.UnlockedAtMs = at
			entry.Progress = 1
			progress = append(progress, entry)
			continue
		}

		entry.Requirements = make([]Requirement, 0, len(a.Clauses))
		for _, c := range a.Clauses {
			current := snap.Value(c.Metric)
			entry.Requirements = append(entry.Requirements, Requirement{
				Metric:    c.Metric,
				Op:        c.Op,
				Threshold: c.Threshold,
				Current:   current,
				Progress:  ClauseProgress(c, current),
				Met:       EvaluateClause(c, snap),
			})
		}
		entry.Progress = AggregateProgress(a.Clauses, snap)
		progress = append(progress, entry)
	}

	return snap, progress, nil
}
