// handlers/achievements.go
package handlers

import (
	"context"

	"github.com/gofiber/fiber/v2"

	"slipstream-companion/middleware"
	"slipstream-companion/services"
)

func SetupAchievementRoutes(app *fiber.App, achievementService *services.AchievementService, awardService *services.AwardService, twitch *services.TwitchClient) {
	// 🔓 Public — unauthenticated catalog listing
	app.Get("/achievements", achievementService.GetCatalog)

	// 🔐 Viewer routes — Twitch OAuth token required
	viewer := app.Group("/v", middleware.TwitchAuthMiddleware(twitch))
	viewer.Get("/achievements/progress", achievementService.GetViewerProgress)
	viewer.Get("/achievements/unlocks", achievementService.GetViewerUnlocks)

	// EventSource cannot set headers, so the stream authenticates via query param
	app.Get("/v/unlocks/stream", middleware.SSEAuthMiddleware(twitch), achievementService.StreamViewerUnlocks)

	// 🔐 Service routes — game server + admin tool, shared secret
	service := app.Group("/s", middleware.ServiceAuthMiddleware())
	service.Get("/viewers/:viewerID/unlocks", achievementService.GetUnlocksForViewer)

	admin := service.Group("/admin")
	admin.Post("/achievements", achievementService.CreateAchievement)
	admin.Put("/achievements/:id", achievementService.UpdateAchievement)
	admin.Delete("/achievements/:id", achievementService.DeleteAchievement)
	admin.Post("/achievements/validate", achievementService.ValidateCriteria)
	admin.Post("/award-sweep", func(c *fiber.Ctx) error {
		go awardService.RunAwardSweep(context.Background())
		return c.JSON(fiber.Map{"message": "sweep started"})
	})
}
