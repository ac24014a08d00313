package services

import (
	"testing"

	"github.com/google/uuid"

	"slipstream-companion/models"
)

func TestActionIncrementUpsert(t *testing.T) {
	db := getTestDB(t)
	svc := NewActionService(db, NewAwardService(db))

	viewerID := "viewer-" + uuid.NewString()

	if err := svc.Increment(viewerID, "default_vehicle_set", 1); err != nil {
		t.Fatalf("first increment failed: %v", err)
	}
	if err := svc.Increment(viewerID, "default_vehicle_set", 2); err != nil {
		t.Fatalf("second increment failed: %v", err)
	}

	var counter models.ActionCounter
	err := db.
		Where("viewer_id = ? AND action_key = ?", viewerID, "default_vehicle_set").
		First(&counter).Error
	if err != nil {
		t.Fatalf("failed to read counter: %v", err)
	}
	if counter.Count != 3 {
		t.Errorf("expected count 3 after increments, got %d", counter.Count)
	}

	var rows int64
	db.Model(&models.ActionCounter{}).Where("viewer_id = ?", viewerID).Count(&rows)
	if rows != 1 {
		t.Errorf("increments must upsert into a single row, found %d", rows)
	}
}

func TestActionKeyPattern(t *testing.T) {
	valid := []string{"default_vehicle_set", "a", "map_created", "x9_y"}
	for _, key := range valid {
		if !actionKeyPattern.MatchString(key) {
			t.Errorf("%q should be a valid action key", key)
		}
	}

	invalid := []string{"", "Upper", "9starts_with_digit", "_leading", "has-dash", "has space"}
	for _, key := range invalid {
		if actionKeyPattern.MatchString(key) {
			t.Errorf("%q should be rejected", key)
		}
	}
}
