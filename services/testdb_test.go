package services

import (
	"os"
	"testing"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"slipstream-companion/models"
)

// getTestDB opens the database named by TEST_DATABASE_URL, migrates the
// schema, and registers cleanup that wipes the rows written by a test.
// Tests that need it are skipped when the variable is unset.
func getTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set, skipping database test")
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to connect to test database: %v", err)
	}

	err = db.AutoMigrate(
		&models.Achievement{},
		&models.AchievementUnlock{},
		&models.RaceResult{},
		&models.ActionCounter{},
		&models.ViewerProfile{},
		&models.TrackMap{},
	)
	if err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}

	t.Cleanup(func() {
		db.Exec("DELETE FROM achievement_unlocks")
		db.Exec("DELETE FROM race_results")
		db.Exec("DELETE FROM action_counters")
		db.Exec("DELETE FROM achievements")
		db.Exec("DELETE FROM viewer_profiles")
		db.Exec("DELETE FROM track_maps")

		sqlDB, err := db.DB()
		if err == nil {
			sqlDB.Close()
		}
	})

	return db
}
