// handlers/vehicles.go
package handlers

import (
	"github.com/gofiber/fiber/v2"

	"slipstream-companion/middleware"
	"slipstream-companion/services"
)

func SetupVehicleRoutes(app *fiber.App, vehicleService *services.VehicleService, twitch *services.TwitchClient) {
	// 🔐 Viewer routes — per-viewer vehicle config lives in KV
	viewer := app.Group("/v", middleware.TwitchAuthMiddleware(twitch))
	viewer.Get("/vehicle", vehicleService.GetVehicle)
	viewer.Put("/vehicle", vehicleService.SaveVehicle)
}
