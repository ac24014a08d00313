package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"path/filepath"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"gorm.io/gorm"

	"slipstream-companion/models"
	"slipstream-companion/utils"
)

// MapService owns the track map catalog: public reads, admin CRUD, and the
// preview image lifecycle in R2.
type MapService struct {
	DB *gorm.DB
}

func NewMapService(db *gorm.DB) *MapService {
	return &MapService{DB: db}
}

// GetPublishedMaps lists published maps for the public site.
func (s *MapService) GetPublishedMaps(c *fiber.Ctx) error {
	var maps []models.TrackMap
	err := s.DB.
		Where("status = ?", models.MapStatusPublished).
		Order("created_at DESC").
		Find(&maps).Error
	if err != nil {
		if isUndefinedTable(err) {
			return c.JSON([]models.TrackMap{})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to list maps",
			"cause": err.Error(),
		})
	}
	return c.JSON(maps)
}

// GetMapBySlug returns one published map.
func (s *MapService) GetMapBySlug(c *fiber.Ctx) error {
	var m models.TrackMap
	err := s.DB.
		Where("slug = ? AND status = ?", c.Params("slug"), models.MapStatusPublished).
		First(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "map not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to load map",
			"cause": err.Error(),
		})
	}
	return c.JSON(m)
}

// uniqueSlug derives a URL slug from the map name and suffixes -2, -3, ...
// until it does not collide with an existing row.
func (s *MapService) uniqueSlug(name string) (string, error) {
	base := slug.Make(name)
	if base == "" {
		base = "map"
	}

	candidate := base
	for i := 2; ; i++ {
		var count int64
		if err := s.DB.Model(&models.TrackMap{}).Where("slug = ?", candidate).Count(&count).Error; err != nil {
			return "", err
		}
		if count == 0 {
			return candidate, nil
		}
		candidate = fmt.Sprintf("%s-%d", base, i)
	}
}

// CreateMap ingests the multipart admin form: metadata fields plus an
// optional preview image that goes straight to R2.
func (s *MapService) CreateMap(c *fiber.Ctx) error {
	name := strings.TrimSpace(c.FormValue("name"))
	if name == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "name is required"})
	}

	layoutJSON := c.FormValue("layout_json")
	if layoutJSON != "" && !json.Valid([]byte(layoutJSON)) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "layout_json is not valid JSON"})
	}

	mapSlug, err := s.uniqueSlug(name)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to derive slug",
			"cause": err.Error(),
		})
	}

	m := models.TrackMap{
		ID:          uuid.NewString(),
		Name:        name,
		Slug:        mapSlug,
		Description: c.FormValue("description"),
		CreatorID:   c.FormValue("creator_id"),
		LayoutJSON:  layoutJSON,
		Status:      models.MapStatusDraft,
	}

	if imageFile, err := c.FormFile("image"); err == nil && imageFile.Size > 0 {
		ext := filepath.Ext(imageFile.Filename)
		if ext == "" {
			ext = ".png"
		}
		key := "maps/" + m.ID + "/preview" + ext
		imageURL, err := utils.UploadFileToR2(imageFile, key)
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "failed to upload map image",
				"cause": err.Error(),
			})
		}
		m.ImageURL = imageURL
	}

	if err := s.DB.Create(&m).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to create map",
			"cause": err.Error(),
		})
	}

	log.Printf("✅ [MAPS] created %q (%s)", m.Name, m.Slug)
	return c.Status(fiber.StatusCreated).JSON(m)
}

// UpdateMap edits metadata, replaces the preview image when a new one is
// uploaded, and flips publish status. The slug is stable across renames so
// shared links keep working.
func (s *MapService) UpdateMap(c *fiber.Ctx) error {
	var m models.TrackMap
	if err := s.DB.First(&m, "id = ?", c.Params("id")).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "map not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to load map",
			"cause": err.Error(),
		})
	}

	if name := strings.TrimSpace(c.FormValue("name")); name != "" {
		m.Name = name
	}
	if desc := c.FormValue("description"); desc != "" {
		m.Description = desc
	}
	if layoutJSON := c.FormValue("layout_json"); layoutJSON != "" {
		if !json.Valid([]byte(layoutJSON)) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "layout_json is not valid JSON"})
		}
		m.LayoutJSON = layoutJSON
	}
	if status := c.FormValue("status"); status != "" {
		if status != models.MapStatusDraft && status != models.MapStatusPublished {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "status must be draft or published"})
		}
		m.Status = status
	}

	if imageFile, err := c.FormFile("image"); err == nil && imageFile.Size > 0 {
		ext := filepath.Ext(imageFile.Filename)
		if ext == "" {
			ext = ".png"
		}
		key := "maps/" + m.ID + "/preview" + ext
		imageURL, err := utils.UploadFileToR2(imageFile, key)
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "failed to upload map image",
				"cause": err.Error(),
			})
		}
		m.ImageURL = imageURL
	}

	if err := s.DB.Save(&m).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to update map",
			"cause": err.Error(),
		})
	}
	return c.JSON(m)
}

// DeleteMap removes the R2 image first, then the row. An R2 delete failure
// aborts so we never leave an orphaned object with no row pointing at it.
func (s *MapService) DeleteMap(c *fiber.Ctx) error {
	var m models.TrackMap
	if err := s.DB.First(&m, "id = ?", c.Params("id")).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "map not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to load map",
			"cause": err.Error(),
		})
	}

	if m.ImageURL != "" {
		if key, ok := utils.R2KeyFromURL(m.ImageURL); ok {
			if err := utils.DeleteFileFromR2(key); err != nil {
				return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
					"error": "failed to delete map image",
					"cause": err.Error(),
				})
			}
		}
	}

	if err := s.DB.Delete(&m).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to delete map",
			"cause": err.Error(),
		})
	}
	return c.JSON(fiber.Map{"message": "map deleted"})
}
