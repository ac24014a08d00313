// handlers/races.go
package handlers

import (
	"github.com/gofiber/fiber/v2"

	"slipstream-companion/middleware"
	"slipstream-companion/services"
)

func SetupRaceRoutes(app *fiber.App, raceService *services.RaceService, actionService *services.ActionService, twitch *services.TwitchClient) {
	// 🔐 Viewer routes
	viewer := app.Group("/v", middleware.TwitchAuthMiddleware(twitch))
	viewer.Get("/races", raceService.GetViewerRaces)

	// 🔐 Service routes — the game server reports results and tracked actions
	service := app.Group("/s", middleware.ServiceAuthMiddleware())
	service.Post("/races", raceService.SubmitRace)
	service.Post("/actions", actionService.TrackAction)
}
