package services

import (
	"errors"
	"log"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"slipstream-companion/models"
)

// AchievementService owns the catalog endpoints: the public listing, the
// viewer progress/unlock reads, and the admin CRUD surface. Evaluation
// itself lives in AwardService; this service only moves rows and validates
// criteria on the way in.
type AchievementService struct {
	DB     *gorm.DB
	Awards *AwardService
}

func NewAchievementService(db *gorm.DB, awards *AwardService) *AchievementService {
	return &AchievementService{DB: db, Awards: awards}
}

// GetCatalog lists enabled achievements for the public site. Criteria text
// is deliberately not exposed — it is an operator-facing artifact.
func (s *AchievementService) GetCatalog(c *fiber.Ctx) error {
	var rows []models.Achievement
	err := s.DB.
		Where("disabled = ?", false).
		Order("sort_order ASC, id ASC").
		Find(&rows).Error
	if err != nil {
		if isUndefinedTable(err) {
			return c.JSON([]fiber.Map{})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to list achievements",
			"cause": err.Error(),
		})
	}

	out := make([]fiber.Map, 0, len(rows))
	for _, a := range rows {
		out = append(out, fiber.Map{
			"id":          a.ID,
			"name":        a.Name,
			"description": a.Description,
		})
	}
	return c.JSON(out)
}

// GetViewerProgress is the authenticated progress read: the viewer's metric
// snapshot plus their standing against every enabled achievement.
func (s *AchievementService) GetViewerProgress(c *fiber.Ctx) error {
	viewerID := c.Locals("viewer_id").(string)

	snap, progress, err := s.Awards.ProgressForViewer(viewerID)
	if err != nil {
		if errors.Is(err, ErrStorageUninitialized) {
			// distinguishable from a generic failure so the client can
			// show "coming soon" instead of an error page
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
				"error": "achievements are not available yet",
				"code":  "storage_uninitialized",
			})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to compute progress",
			"cause": err.Error(),
		})
	}

	return c.JSON(fiber.Map{
		"metrics":      snap,
		"achievements": progress,
	})
}

// GetViewerUnlocks returns the authenticated viewer's own unlock ledger.
func (s *AchievementService) GetViewerUnlocks(c *fiber.Ctx) error {
	viewerID := c.Locals("viewer_id").(string)
	return s.listUnlocks(c, viewerID)
}

// GetUnlocksForViewer is the game-server variant used for content gating:
// the viewer id comes from the path, not from a token.
func (s *AchievementService) GetUnlocksForViewer(c *fiber.Ctx) error {
	viewerID := strings.TrimSpace(c.Params("viewerID"))
	if viewerID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "viewerID is required"})
	}
	return s.listUnlocks(c, viewerID)
}

func (s *AchievementService) listUnlocks(c *fiber.Ctx, viewerID string) error {
	var unlocks []models.AchievementUnlock
	err := s.DB.
		Where("viewer_id = ?", viewerID).
		Order("unlocked_at_ms ASC").
		Find(&unlocks).Error
	if err != nil {
		if isUndefinedTable(err) {
			return c.JSON([]models.AchievementUnlock{})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to list unlocks",
			"cause": err.Error(),
		})
	}
	return c.JSON(unlocks)
}

// achievementRequest is the admin create/update payload.
type achievementRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Criteria    string `json:"criteria"`
	Disabled    bool   `json:"disabled"`
	SortOrder   int    `json:"sort_order"`
}

// criteriaErrorResponse maps parse failures onto 400s carrying the offending
// line, so the admin UI can point at the exact bad input.
func criteriaErrorResponse(c *fiber.Ctx, err error) error {
	if errors.Is(err, ErrCriteriaRequired) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "criteria is required",
			"code":  "criteria_required",
		})
	}
	if errors.Is(err, ErrInvalidCriteria) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
			"code":  "invalid_criteria",
		})
	}
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"error": "failed to parse criteria",
		"cause": err.Error(),
	})
}

// CreateAchievement validates the criteria with the real parser before the
// row is written — rows created here can never be skipped by the awarder.
func (s *AchievementService) CreateAchievement(c *fiber.Ctx) error {
	var req achievementRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid JSON",
			"cause": err.Error(),
		})
	}
	if strings.TrimSpace(req.Name) == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "name is required"})
	}
	if _, err := ParseCriteria(req.Criteria); err != nil {
		return criteriaErrorResponse(c, err)
	}

	ach := models.Achievement{
		Name:        req.Name,
		Description: req.Description,
		Criteria:    req.Criteria,
		Disabled:    req.Disabled,
		SortOrder:   req.SortOrder,
	}
	if err := s.DB.Create(&ach).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to create achievement",
			"cause": err.Error(),
		})
	}

	log.Printf("✅ [ACHIEVEMENTS] created %q (id %d)", ach.Name, ach.ID)
	return c.Status(fiber.StatusCreated).JSON(ach)
}

// UpdateAchievement re-validates criteria on every edit.
func (s *AchievementService) UpdateAchievement(c *fiber.Ctx) error {
	id, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid achievement id"})
	}

	var ach models.Achievement
	if err := s.DB.First(&ach, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "achievement not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to load achievement",
			"cause": err.Error(),
		})
	}

	var req achievementRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid JSON",
			"cause": err.Error(),
		})
	}
	if strings.TrimSpace(req.Name) == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "name is required"})
	}
	if _, err := ParseCriteria(req.Criteria); err != nil {
		return criteriaErrorResponse(c, err)
	}

	ach.Name = req.Name
	ach.Description = req.Description
	ach.Criteria = req.Criteria
	ach.Disabled = req.Disabled
	ach.SortOrder = req.SortOrder

	if err := s.DB.Save(&ach).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to update achievement",
			"cause": err.Error(),
		})
	}
	return c.JSON(ach)
}

// DeleteAchievement soft-deletes the catalog row. The unlock ledger is left
// alone: unlocks are permanent even if the achievement later disappears.
func (s *AchievementService) DeleteAchievement(c *fiber.Ctx) error {
	id, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid achievement id"})
	}

	res := s.DB.Delete(&models.Achievement{}, id)
	if res.Error != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to delete achievement",
			"cause": res.Error.Error(),
		})
	}
	if res.RowsAffected == 0 {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "achievement not found"})
	}
	return c.JSON(fiber.Map{"message": "achievement deleted"})
}

// ValidateCriteria is the admin dry-run: parse the text and echo back the
// normalized clauses without touching the database.
func (s *AchievementService) ValidateCriteria(c *fiber.Ctx) error {
	var req struct {
		Criteria string `json:"criteria"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid JSON",
			"cause": err.Error(),
		})
	}

	clauses, err := ParseCriteria(req.Criteria)
	if err != nil {
		return criteriaErrorResponse(c, err)
	}
	return c.JSON(fiber.Map{
		"valid":   true,
		"clauses": clauses,
	})
}
