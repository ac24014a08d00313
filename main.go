package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"slipstream-companion/handlers"
	"slipstream-companion/models"
	"slipstream-companion/services"
	"slipstream-companion/utils"
	"slipstream-companion/workers"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/joho/godotenv"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️  No .env file found, reading environment variables directly")
	}

	app := fiber.New(fiber.Config{
		BodyLimit: 25 * 1024 * 1024, // map images are the largest upload
	})

	// CORS for the companion site
	allowedOriginsEnv := os.Getenv("ALLOWED_ORIGINS")
	if allowedOriginsEnv == "" {
		log.Println("⚠️  ALLOWED_ORIGINS environment variable not set, using default: http://localhost:3000")
		allowedOriginsEnv = "http://localhost:3000"
	}
	allowedOriginsList := strings.Split(allowedOriginsEnv, ",")
	for i, origin := range allowedOriginsList {
		allowedOriginsList[i] = strings.TrimSpace(origin)
	}
	allowedOriginsString := strings.Join(allowedOriginsList, ",")

	app.Use(cors.New(cors.Config{
		AllowOrigins:     allowedOriginsString,
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS,PATCH,HEAD",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, X-Requested-With, X-Request-ID, Cache-Control, X-Service-Token",
		ExposeHeaders:    "Content-Length, Content-Type, X-Request-ID",
		AllowCredentials: true,
		MaxAge:           86400, // 24 hours
	}))

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		log.Fatal("DATABASE_URL environment variable not set")
	}

	if err := utils.InitKV(); err != nil {
		log.Fatal("failed to initialize Redis client:", err)
	}

	if err := utils.InitR2(); err != nil {
		log.Fatal("failed to initialize R2 client:", err)
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		log.Fatal("failed to connect to database:", err)
	}

	if err := db.AutoMigrate(
		&models.Achievement{},
		&models.AchievementUnlock{},
		&models.RaceResult{},
		&models.ActionCounter{},
		&models.ViewerProfile{},
		&models.TrackMap{},
	); err != nil {
		log.Fatal("failed to migrate database:", err)
	}

	twitchClientID := os.Getenv("TWITCH_CLIENT_ID")
	twitchClientSecret := os.Getenv("TWITCH_CLIENT_SECRET")
	if twitchClientID == "" || twitchClientSecret == "" {
		log.Fatal("TWITCH_CLIENT_ID and TWITCH_CLIENT_SECRET must be set")
	}
	twitch := services.NewTwitchClient(twitchClientID, twitchClientSecret)

	awardService := services.NewAwardService(db)
	achievementService := services.NewAchievementService(db, awardService)
	actionService := services.NewActionService(db, awardService)
	raceService := services.NewRaceService(db, awardService)
	vehicleService := services.NewVehicleService(actionService, awardService)
	mapService := services.NewMapService(db)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	syncInterval := time.Duration(utils.GetenvInt("VIEWER_SYNC_INTERVAL_MINUTES", 15)) * time.Minute
	syncWorker := workers.NewViewerSyncWorker(db, twitch, syncInterval)
	go syncWorker.Start(ctx)

	sweepInterval := time.Duration(utils.GetenvInt("AWARD_SWEEP_INTERVAL_MINUTES", 10)) * time.Minute
	awardService.StartAwardSweep(sweepInterval)

	handlers.SetupAchievementRoutes(app, achievementService, awardService, twitch)
	handlers.SetupRaceRoutes(app, raceService, actionService, twitch)
	handlers.SetupVehicleRoutes(app, vehicleService, twitch)
	handlers.SetupMapRoutes(app, mapService)

	port := utils.GetenvDefault("PORT", "5300")
	go func() {
		if err := app.Listen(":" + port); err != nil {
			log.Printf("Server error: %v", err)
		}
	}()

	log.Printf("✅ Server running on http://localhost:%s", port)
	log.Println("✅ Viewer Sync Worker running")
	log.Printf("✅ CORS configured for origins: %s", allowedOriginsString)

	<-ctx.Done()
	log.Println("Shutting down server...")
}
