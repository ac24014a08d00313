// handlers/maps.go
package handlers

import (
	"github.com/gofiber/fiber/v2"

	"slipstream-companion/middleware"
	"slipstream-companion/services"
)

func SetupMapRoutes(app *fiber.App, mapService *services.MapService) {
	// 🔓 Public — published maps only
	app.Get("/maps", mapService.GetPublishedMaps)
	app.Get("/maps/:slug", mapService.GetMapBySlug)

	// 🔐 Admin routes — multipart create/update with R2 image upload
	admin := app.Group("/s/admin", middleware.ServiceAuthMiddleware())
	admin.Post("/maps", mapService.CreateMap)
	admin.Put("/maps/:id", mapService.UpdateMap)
	admin.Delete("/maps/:id", mapService.DeleteMap)
}
