package services

import (
	"testing"

	"github.com/google/uuid"

	"slipstream-companion/models"
)

func TestUniqueSlug(t *testing.T) {
	db := getTestDB(t)
	svc := NewMapService(db)

	first, err := svc.uniqueSlug("Monaco Night Circuit")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first != "monaco-night-circuit" {
		t.Errorf("expected slugified name, got %q", first)
	}

	seed := models.TrackMap{ID: uuid.NewString(), Name: "Monaco Night Circuit", Slug: first}
	if err := db.Create(&seed).Error; err != nil {
		t.Fatalf("failed to seed map: %v", err)
	}

	second, err := svc.uniqueSlug("Monaco Night Circuit")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if second != "monaco-night-circuit-2" {
		t.Errorf("expected -2 suffix on collision, got %q", second)
	}

	seed2 := models.TrackMap{ID: uuid.NewString(), Name: "Monaco Night Circuit", Slug: second}
	if err := db.Create(&seed2).Error; err != nil {
		t.Fatalf("failed to seed map: %v", err)
	}

	third, err := svc.uniqueSlug("Monaco Night Circuit")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if third != "monaco-night-circuit-3" {
		t.Errorf("expected -3 suffix on second collision, got %q", third)
	}
}

func TestUniqueSlugEmptyName(t *testing.T) {
	db := getTestDB(t)
	svc := NewMapService(db)

	got, err := svc.uniqueSlug("???")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "map" {
		t.Errorf("unslugifiable names should fall back to \"map\", got %q", got)
	}
}
