package services

import (
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"

	"slipstream-companion/utils"
)

// VehicleConfig is the per-viewer vehicle setup the game reads when the
// viewer joins a session. Stored as a single JSON document in Redis; there
// is no history, the latest save wins.
type VehicleConfig struct {
	VehicleModel string `json:"vehicle_model"`
	PaintColor   string `json:"paint_color"`
	EngineLevel  int    `json:"engine_level"`  // 1..5
	TireCompound string `json:"tire_compound"` // soft | medium | hard
	Downforce    int    `json:"downforce"`     // 0..100
	Suspension   int    `json:"suspension"`    // 0..100
	UpdatedAtMs  int64  `json:"updated_at_ms"`
}

// DefaultVehicleConfig is what a viewer gets before their first save.
func DefaultVehicleConfig() VehicleConfig {
	return VehicleConfig{
		VehicleModel: "roadster",
		PaintColor:   "#e10600",
		EngineLevel:  1,
		TireCompound: "medium",
		Downforce:    50,
		Suspension:   50,
	}
}

var validTireCompounds = map[string]bool{"soft": true, "medium": true, "hard": true}

// Validate range-checks a config. Model and paint are free-form strings the
// game client interprets; numbers have hard limits.
func (v *VehicleConfig) Validate() error {
	if v.VehicleModel == "" {
		return fmt.Errorf("vehicle_model is required")
	}
	if v.EngineLevel < 1 || v.EngineLevel > 5 {
		return fmt.Errorf("engine_level must be between 1 and 5")
	}
	if !validTireCompounds[v.TireCompound] {
		return fmt.Errorf("tire_compound must be soft, medium or hard")
	}
	if v.Downforce < 0 || v.Downforce > 100 {
		return fmt.Errorf("downforce must be between 0 and 100")
	}
	if v.Suspension < 0 || v.Suspension > 100 {
		return fmt.Errorf("suspension must be between 0 and 100")
	}
	return nil
}

// VehicleService stores viewer vehicle configs in the KV store and feeds the
// default_vehicle_set action counter that several achievements reference.
type VehicleService struct {
	Actions *ActionService
	Awards  *AwardService
}

func NewVehicleService(actions *ActionService, awards *AwardService) *VehicleService {
	return &VehicleService{Actions: actions, Awards: awards}
}

func vehicleKey(viewerID string) string {
	return "vehicle:" + viewerID
}

// GetVehicle returns the viewer's saved config, or the default one when
// they have never saved.
func (s *VehicleService) GetVehicle(c *fiber.Ctx) error {
	viewerID := c.Locals("viewer_id").(string)

	raw, err := utils.KV().Get(c.Context(), vehicleKey(viewerID)).Result()
	if err == redis.Nil {
		return c.JSON(fiber.Map{"config": DefaultVehicleConfig(), "saved": false})
	}
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to load vehicle config",
			"cause": err.Error(),
		})
	}

	var cfg VehicleConfig
	if err := json.Unmarshal([]byte(raw), &cfg); err != nil {
		log.Printf("⚠️ [VEHICLE] corrupt config for viewer %s, serving default: %v", viewerID, err)
		return c.JSON(fiber.Map{"config": DefaultVehicleConfig(), "saved": false})
	}
	return c.JSON(fiber.Map{"config": cfg, "saved": true})
}

// SaveVehicle validates and stores the config. When the client flags the
// save as setting the default loadout (?set_default=true), the tracked
// default_vehicle_set counter goes up and an award pass runs, since several
// achievements key off exactly that action.
func (s *VehicleService) SaveVehicle(c *fiber.Ctx) error {
	viewerID := c.Locals("viewer_id").(string)

	var cfg VehicleConfig
	if err := c.BodyParser(&cfg); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid JSON",
			"cause": err.Error(),
		})
	}
	if err := cfg.Validate(); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	cfg.UpdatedAtMs = time.Now().UnixMilli()

	payload, err := json.Marshal(cfg)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to encode vehicle config",
			"cause": err.Error(),
		})
	}
	if err := utils.KV().Set(c.Context(), vehicleKey(viewerID), payload, 0).Err(); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to save vehicle config",
			"cause": err.Error(),
		})
	}

	unlocks := []NewUnlock{}
	if c.QueryBool("set_default") {
		if err := s.Actions.Increment(viewerID, "default_vehicle_set", 1); err != nil {
			log.Printf("⚠️ [VEHICLE] failed to bump default_vehicle_set for %s: %v", viewerID, err)
		} else if newUnlocks, err := s.Awards.AwardForViewers([]string{viewerID}, "action", "default_vehicle_set"); err != nil {
			log.Printf("❌ [VEHICLE] award pass failed for %s: %v", viewerID, err)
		} else if newUnlocks != nil {
			unlocks = newUnlocks
		}
	}

	return c.JSON(fiber.Map{
		"config":      cfg,
		"new_unlocks": unlocks,
	})
}
