package services

import (
	"log"
	"regexp"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"slipstream-companion/models"
)

// ActionService tracks the free-form action counters ("viewer did X") that
// criteria can reference via the action: namespace. Counters only move up.
type ActionService struct {
	DB     *gorm.DB
	Awards *AwardService
}

func NewActionService(db *gorm.DB, awards *AwardService) *ActionService {
	return &ActionService{DB: db, Awards: awards}
}

// action keys share the metric-name alphabet so any tracked action can be
// referenced from criteria text without escaping
var actionKeyPattern = regexp.MustCompile(`^[a-z][a-z0-9_]{0,127}$`)

// TrackAction increments a viewer's counter by count (default 1) and runs an
// award pass for that viewer. Called by the game server and by site features
// that count UI actions.
func (s *ActionService) TrackAction(c *fiber.Ctx) error {
	var req struct {
		ViewerID  string `json:"viewer_id"`
		ActionKey string `json:"action_key"`
		Count     int64  `json:"count"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid JSON",
			"cause": err.Error(),
		})
	}
	if strings.TrimSpace(req.ViewerID) == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "viewer_id is required"})
	}
	if !actionKeyPattern.MatchString(req.ActionKey) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "action_key must be lowercase snake_case (max 128 chars)",
		})
	}
	if req.Count == 0 {
		req.Count = 1
	}
	if req.Count < 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "count must be positive"})
	}

	if err := s.Increment(req.ViewerID, req.ActionKey, req.Count); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to record action",
			"cause": err.Error(),
		})
	}

	unlocks, err := s.Awards.AwardForViewers([]string{req.ViewerID}, "action", req.ActionKey)
	if err != nil {
		log.Printf("❌ [ACTIONS] award pass failed for viewer %s: %v", req.ViewerID, err)
		unlocks = nil
	}
	if unlocks == nil {
		unlocks = []NewUnlock{}
	}

	return c.JSON(fiber.Map{
		"viewer_id":   req.ViewerID,
		"action_key":  req.ActionKey,
		"new_unlocks": unlocks,
	})
}

// Increment is the insert-or-increment upsert on the composite key. Other
// services call this directly when a counted action happens inside one of
// their own endpoints.
func (s *ActionService) Increment(viewerID, actionKey string, count int64) error {
	counter := models.ActionCounter{
		ViewerID:  viewerID,
		ActionKey: actionKey,
		Count:     count,
	}
	return s.DB.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "viewer_id"}, {Name: "action_key"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"count":      gorm.Expr("action_counters.count + ?", count),
			"updated_at": time.Now(),
		}),
	}).Create(&counter).Error
}
