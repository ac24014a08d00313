package services

import (
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"slipstream-companion/models"
)

// RaceService ingests results from the game server and serves the viewer's
// race history. Every ingestion ends with an award pass over the viewers in
// the batch, so unlocks land in the same request that earned them.
type RaceService struct {
	DB     *gorm.DB
	Awards *AwardService
}

func NewRaceService(db *gorm.DB, awards *AwardService) *RaceService {
	return &RaceService{DB: db, Awards: awards}
}

type raceResultEntry struct {
	ViewerID       string `json:"viewer_id"`
	Status         string `json:"status"`
	FinishPosition int    `json:"finish_position"`
	BestLapMs      int64  `json:"best_lap_ms"`
	TotalTimeMs    int64  `json:"total_time_ms"`
}

type submitRaceRequest struct {
	RaceID     string            `json:"race_id"`
	TrackMapID *string           `json:"track_map_id,omitempty"`
	Results    []raceResultEntry `json:"results"`
}

// SubmitRace records one finished race reported by the game server.
// Duplicate submissions of the same (race_id, viewer_id) are absorbed by the
// unique index; we still run the award pass because the first attempt might
// have died before it got there.
func (s *RaceService) SubmitRace(c *fiber.Ctx) error {
	var req submitRaceRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid JSON",
			"cause": err.Error(),
		})
	}
	if strings.TrimSpace(req.RaceID) == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "race_id is required"})
	}
	if len(req.Results) == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "results must not be empty"})
	}

	rows := make([]models.RaceResult, 0, len(req.Results))
	viewerIDs := make([]string, 0, len(req.Results))
	for i, entry := range req.Results {
		if strings.TrimSpace(entry.ViewerID) == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "results[" + strconv.Itoa(i) + "].viewer_id is required",
			})
		}
		if !models.ValidRaceStatus(entry.Status) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "results[" + strconv.Itoa(i) + "].status is not a valid race status",
			})
		}
		if entry.Status == models.RaceStatusFinished && entry.FinishPosition < 1 {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "results[" + strconv.Itoa(i) + "].finish_position must be >= 1 for a finished result",
			})
		}

		rows = append(rows, models.RaceResult{
			ID:             uuid.NewString(),
			RaceID:         req.RaceID,
			ViewerID:       entry.ViewerID,
			TrackMapID:     req.TrackMapID,
			Status:         entry.Status,
			FinishPosition: entry.FinishPosition,
			BestLapMs:      entry.BestLapMs,
			TotalTimeMs:    entry.TotalTimeMs,
		})
		viewerIDs = append(viewerIDs, entry.ViewerID)
	}

	res := s.DB.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "race_id"}, {Name: "viewer_id"}},
		DoNothing: true,
	}).Create(&rows)
	if res.Error != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to record race results",
			"cause": res.Error.Error(),
		})
	}

	s.touchViewers(viewerIDs)

	// best-effort: a failed award pass must not fail the submission
	unlocks, err := s.Awards.AwardForViewers(viewerIDs, "race", req.RaceID)
	if err != nil {
		log.Printf("❌ [RACES] award pass failed for race %s: %v", req.RaceID, err)
		unlocks = nil
	}
	if unlocks == nil {
		unlocks = []NewUnlock{}
	}

	log.Printf("✅ [RACES] recorded race %s (%d results, %d new, %d unlocks)",
		req.RaceID, len(rows), res.RowsAffected, len(unlocks))
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"race_id":     req.RaceID,
		"recorded":    res.RowsAffected,
		"new_unlocks": unlocks,
	})
}

// touchViewers bumps last_seen_at on the viewer mirror, inserting a stub row
// for viewers Helix has not been asked about yet. The sync worker fills in
// login and avatar later.
func (s *RaceService) touchViewers(viewerIDs []string) {
	now := time.Now()
	for _, id := range viewerIDs {
		profile := models.ViewerProfile{
			ID:           uuid.NewString(),
			TwitchUserID: id,
			LastSeenAt:   &now,
		}
		err := s.DB.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "twitch_user_id"}},
			DoUpdates: clause.Assignments(map[string]interface{}{"last_seen_at": now}),
		}).Create(&profile).Error
		if err != nil {
			log.Printf("⚠️ [RACES] failed to touch viewer %s: %v", id, err)
		}
	}
}

// GetViewerRaces returns the authenticated viewer's recent results, newest
// first, capped at 100 rows per page.
func (s *RaceService) GetViewerRaces(c *fiber.Ctx) error {
	viewerID := c.Locals("viewer_id").(string)

	limit, _ := strconv.Atoi(c.Query("limit", "25"))
	if limit < 1 || limit > 100 {
		limit = 25
	}
	offset, _ := strconv.Atoi(c.Query("offset", "0"))
	if offset < 0 {
		offset = 0
	}

	var results []models.RaceResult
	err := s.DB.
		Where("viewer_id = ?", viewerID).
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&results).Error
	if err != nil {
		if isUndefinedTable(err) {
			return c.JSON([]models.RaceResult{})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to list race results",
			"cause": err.Error(),
		})
	}
	return c.JSON(results)
}
