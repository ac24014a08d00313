// services/scheduler.go
package services

import (
	"context"
	"log"
	"strconv"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"slipstream-companion/utils"
)

const sweepWatermarkKey = "award:sweep:watermark"

// StartAwardSweep schedules a periodic catch-up pass: any viewer whose
// results or counters changed since the last sweep gets re-evaluated. This
// catches unlocks the inline passes can miss, mainly achievements created
// after the qualifying results were already in.
func (s *AwardService) StartAwardSweep(interval time.Duration) {
	sched, _ := gocron.NewScheduler()
	sched.Start()

	_, _ = sched.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() {
			s.RunAwardSweep(context.Background())
		}),
	)
	log.Printf("✅ Award sweep scheduled every %s", interval)
}

// RunAwardSweep executes one sweep immediately. Also wired to the manual
// admin trigger.
func (s *AwardService) RunAwardSweep(ctx context.Context) {
	since := s.loadSweepWatermark(ctx)
	// the new watermark is taken before the queries so a row landing
	// mid-sweep is picked up by the next one
	next := time.Now()

	var viewerIDs []string
	err := s.DB.Raw(`
		SELECT viewer_id FROM race_results WHERE created_at > ?
		UNION
		SELECT viewer_id FROM action_counters WHERE updated_at > ?
	`, since, since).Scan(&viewerIDs).Error
	if err != nil {
		if isUndefinedTable(err) {
			log.Printf("⚠️ [SWEEP] metric tables missing, skipping sweep")
			return
		}
		log.Printf("❌ [SWEEP] failed to list active viewers: %v", err)
		return
	}
	if len(viewerIDs) == 0 {
		s.storeSweepWatermark(ctx, next)
		return
	}

	runID := uuid.NewString()
	total := 0
	for start := 0; start < len(viewerIDs); start += 200 {
		end := start + 200
		if end > len(viewerIDs) {
			end = len(viewerIDs)
		}
		unlocks, err := s.AwardForViewers(viewerIDs[start:end], "sweep", runID)
		if err != nil {
			log.Printf("❌ [SWEEP] chunk failed (run %s): %v", runID, err)
			// watermark stays put so the next sweep retries these viewers
			return
		}
		total += len(unlocks)
	}

	s.storeSweepWatermark(ctx, next)
	log.Printf("✅ [SWEEP] run %s: %d viewers, %d new unlocks", runID, len(viewerIDs), total)
}

func (s *AwardService) loadSweepWatermark(ctx context.Context) time.Time {
	raw, err := utils.KV().Get(ctx, sweepWatermarkKey).Result()
	if err != nil {
		if err != redis.Nil {
			log.Printf("⚠️ [SWEEP] failed to read watermark: %v", err)
		}
		return time.Unix(0, 0)
	}
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Unix(0, 0)
	}
	return time.UnixMilli(ms)
}

func (s *AwardService) storeSweepWatermark(ctx context.Context, at time.Time) {
	err := utils.KV().Set(ctx, sweepWatermarkKey, strconv.FormatInt(at.UnixMilli(), 10), 0).Err()
	if err != nil {
		log.Printf("⚠️ [SWEEP] failed to store watermark: %v", err)
	}
}
