package services

import (
	"sync"
	"testing"

	"github.com/google/uuid"

	"slipstream-companion/models"
)

func seedWin(t *testing.T, svc *AwardService, viewerID string) {
	t.Helper()
	result := models.RaceResult{
		ID:             uuid.NewString(),
		RaceID:         uuid.NewString(),
		ViewerID:       viewerID,
		Status:         models.RaceStatusFinished,
		FinishPosition: 1,
	}
	if err := svc.DB.Create(&result).Error; err != nil {
		t.Fatalf("failed to seed race result: %v", err)
	}
}

func TestAwardForViewersIdempotent(t *testing.T) {
	db := getTestDB(t)
	svc := NewAwardService(db)

	ach := models.Achievement{Name: "First Win", Criteria: "wins >= 1"}
	if err := db.Create(&ach).Error; err != nil {
		t.Fatalf("failed to seed achievement: %v", err)
	}

	viewerID := "viewer-" + uuid.NewString()
	seedWin(t, svc, viewerID)

	first, err := svc.AwardForViewers([]string{viewerID}, "race", "race-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(first) != 1 {
		t.Fatalf("expected 1 new unlock, got %d", len(first))
	}
	if first[0].AchievementID != ach.ID || first[0].ViewerID != viewerID {
		t.Errorf("unexpected unlock: %+v", first[0])
	}
	if first[0].Source != "race" || first[0].SourceRef != "race-1" {
		t.Errorf("unlock should carry its source: %+v", first[0])
	}

	second, err := svc.AwardForViewers([]string{viewerID}, "race", "race-2")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(second) != 0 {
		t.Errorf("second pass should award nothing, got %d", len(second))
	}

	var count int64
	db.Model(&models.AchievementUnlock{}).
		Where("viewer_id = ? AND achievement_id = ?", viewerID, ach.ID).
		Count(&count)
	if count != 1 {
		t.Errorf("expected exactly 1 ledger row, found %d", count)
	}
}

func TestAwardForViewersConcurrent(t *testing.T) {
	db := getTestDB(t)
	svc := NewAwardService(db)

	ach := models.Achievement{Name: "Racer", Criteria: "races >= 1"}
	if err := db.Create(&ach).Error; err != nil {
		t.Fatalf("failed to seed achievement: %v", err)
	}

	viewerID := "viewer-" + uuid.NewString()
	seedWin(t, svc, viewerID)

	var wg sync.WaitGroup
	awarded := make([][]NewUnlock, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			unlocks, err := svc.AwardForViewers([]string{viewerID}, "race", "race-1")
			if err != nil {
				t.Errorf("pass %d errored: %v", i, err)
				return
			}
			awarded[i] = unlocks
		}(i)
	}
	wg.Wait()

	if total := len(awarded[0]) + len(awarded[1]); total != 1 {
		t.Errorf("expected exactly 1 unlock across concurrent passes, got %d", total)
	}

	var count int64
	db.Model(&models.AchievementUnlock{}).
		Where("viewer_id = ? AND achievement_id = ?", viewerID, ach.ID).
		Count(&count)
	if count != 1 {
		t.Errorf("expected exactly 1 ledger row, found %d", count)
	}
}

func TestAwardForViewersSkipsDisabled(t *testing.T) {
	db := getTestDB(t)
	svc := NewAwardService(db)

	ach := models.Achievement{Name: "Hidden", Criteria: "races >= 1", Disabled: true}
	if err := db.Create(&ach).Error; err != nil {
		t.Fatalf("failed to seed achievement: %v", err)
	}

	viewerID := "viewer-" + uuid.NewString()
	seedWin(t, svc, viewerID)

	unlocks, err := svc.AwardForViewers([]string{viewerID}, "race", "race-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(unlocks) != 0 {
		t.Errorf("disabled achievement should never award, got %d unlocks", len(unlocks))
	}
}

func TestAwardForViewersSkipsUnparseableCriteria(t *testing.T) {
	db := getTestDB(t)
	svc := NewAwardService(db)

	// a row predating criteria validation
	bad := models.Achievement{Name: "Broken", Criteria: "wins >> 1"}
	good := models.Achievement{Name: "Working", Criteria: "wins >= 1"}
	if err := db.Create(&bad).Error; err != nil {
		t.Fatalf("failed to seed achievement: %v", err)
	}
	if err := db.Create(&good).Error; err != nil {
		t.Fatalf("failed to seed achievement: %v", err)
	}

	viewerID := "viewer-" + uuid.NewString()
	seedWin(t, svc, viewerID)

	unlocks, err := svc.AwardForViewers([]string{viewerID}, "race", "race-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(unlocks) != 1 || unlocks[0].AchievementID != good.ID {
		t.Errorf("expected only the parseable achievement to award, got %+v", unlocks)
	}
}

func TestAwardForViewersEmptyInput(t *testing.T) {
	svc := NewAwardService(nil) // must not touch the DB at all

	unlocks, err := svc.AwardForViewers(nil, "race", "race-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(unlocks) != 0 {
		t.Errorf("expected no unlocks, got %d", len(unlocks))
	}

	unlocks, err = svc.AwardForViewers([]string{"", ""}, "race", "race-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(unlocks) != 0 {
		t.Errorf("expected no unlocks for blank ids, got %d", len(unlocks))
	}
}

func TestAwardForViewersDeduplicatesInput(t *testing.T) {
	db := getTestDB(t)
	svc := NewAwardService(db)

	ach := models.Achievement{Name: "Starter", Criteria: "races >= 1"}
	if err := db.Create(&ach).Error; err != nil {
		t.Fatalf("failed to seed achievement: %v", err)
	}

	viewerID := "viewer-" + uuid.NewString()
	seedWin(t, svc, viewerID)

	unlocks, err := svc.AwardForViewers([]string{viewerID, viewerID, viewerID}, "race", "race-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(unlocks) != 1 {
		t.Errorf("duplicate viewer ids should award once, got %d", len(unlocks))
	}
}

func TestProgressForViewer(t *testing.T) {
	db := getTestDB(t)
	svc := NewAwardService(db)

	ach := models.Achievement{Name: "Grinder", Criteria: "races >= 4\nwins >= 1"}
	if err := db.Create(&ach).Error; err != nil {
		t.Fatalf("failed to seed achievement: %v", err)
	}

	viewerID := "viewer-" + uuid.NewString()
	seedWin(t, svc, viewerID)
	result := models.RaceResult{
		ID:       uuid.NewString(),
		RaceID:   uuid.NewString(),
		ViewerID: viewerID,
		Status:   models.RaceStatusDNF,
	}
	if err := db.Create(&result).Error; err != nil {
		t.Fatalf("failed to seed race result: %v", err)
	}

	snap, progress, err := svc.ProgressForViewer(viewerID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if snap.Races != 2 || snap.Wins != 1 || snap.DNF != 1 {
		t.Errorf("snapshot wrong: %+v", snap)
	}
	if len(progress) != 1 {
		t.Fatalf("expected 1 progress entry, got %d", len(progress))
	}

	entry := progress[0]
	if entry.Unlocked {
		t.Error("achievement should not be unlocked yet")
	}
	if len(entry.Requirements) != 2 {
		t.Fatalf("expected 2 requirements, got %d", len(entry.Requirements))
	}
	races := entry.Requirements[0]
	if races.Metric != "races" || races.Current != 2 || races.Met {
		t.Errorf("races requirement wrong: %+v", races)
	}
	if races.Progress != 0.5 {
		t.Errorf("races progress should be 0.5, got %v", races.Progress)
	}
	wins := entry.Requirements[1]
	if wins.Metric != "wins" || !wins.Met || wins.Progress != 1 {
		t.Errorf("wins requirement wrong: %+v", wins)
	}
	if entry.Progress != 0.75 {
		t.Errorf("aggregate progress should be 0.75, got %v", entry.Progress)
	}
}

func TestProgressForViewerUnlockIsPermanent(t *testing.T) {
	db := getTestDB(t)
	svc := NewAwardService(db)

	ach := models.Achievement{Name: "Veteran", Criteria: "races >= 100"}
	if err := db.Create(&ach).Error; err != nil {
		t.Fatalf("failed to seed achievement: %v", err)
	}

	// unlock recorded historically, metrics nowhere near the threshold now
	viewerID := "viewer-" + uuid.NewString()
	unlock := models.AchievementUnlock{
		ID:            uuid.NewString(),
		ViewerID:      viewerID,
		AchievementID: ach.ID,
		UnlockedAtMs:  1700000000000,
		Source:        "sweep",
	}
	if err := db.Create(&unlock).Error; err != nil {
		t.Fatalf("failed to seed unlock: %v", err)
	}

	_, progress, err := svc.ProgressForViewer(viewerID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(progress) != 1 {
		t.Fatalf("expected 1 progress entry, got %d", len(progress))
	}
	entry := progress[0]
	if !entry.Unlocked || entry.Progress != 1 {
		t.Errorf("unlock should be permanent: %+v", entry)
	}
	if entry.UnlockedAtMs != 1700000000000 {
		t.Errorf("expected recorded unlock time, got %d", entry.UnlockedAtMs)
	}
	if len(entry.Requirements) != 0 {
		t.Error("unlocked entries should omit the requirement breakdown")
	}
}
