package services

import (
	"errors"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	"slipstream-companion/models"
)

// ErrStorageUninitialized means a query hit a table that does not exist yet,
// i.e. the database behind us has not been migrated.
var ErrStorageUninitialized = errors.New("storage uninitialized")

// isUndefinedTable spots Postgres 42P01 (undefined_table) anywhere in the
// error chain.
func isUndefinedTable(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "42P01"
}

// raceTotalsRow is the GROUP BY shape coming back from race_results.
type raceTotalsRow struct {
	ViewerID string
	Races    int64
	Finished int64
	Wins     int64
	DNF      int64
}

// SnapshotsForViewers builds one MetricSnapshot per requested viewer:
// race-derived counters aggregated from race_results plus the named action
// counters. Every requested viewer gets a snapshot even with no rows at all,
// so callers can evaluate clauses against zeroes uniformly.
func SnapshotsForViewers(db *gorm.DB, viewerIDs []string, actionKeys []string) (map[string]*MetricSnapshot, error) {
	snapshots := make(map[string]*MetricSnapshot, len(viewerIDs))
	for _, id := range viewerIDs {
		snapshots[id] = &MetricSnapshot{ViewerID: id}
	}
	if len(viewerIDs) == 0 {
		return snapshots, nil
	}

	var totals []raceTotalsRow
	err := db.Raw(`
		SELECT viewer_id,
		       COUNT(*) AS races,
		       COUNT(*) FILTER (WHERE status = ?) AS finished,
		       COUNT(*) FILTER (WHERE status = ? AND finish_position = 1) AS wins,
		       COUNT(*) FILTER (WHERE status <> ?) AS dnf
		FROM race_results
		WHERE viewer_id IN ?
		GROUP BY viewer_id
	`, models.RaceStatusFinished, models.RaceStatusFinished, models.RaceStatusFinished, viewerIDs).Scan(&totals).Error
	if err != nil {
		if isUndefinedTable(err) {
			return nil, ErrStorageUninitialized
		}
		return nil, err
	}
	for _, row := range totals {
		if snap, ok := snapshots[row.ViewerID]; ok {
			snap.Races = row.Races
			snap.Finished = row.Finished
			snap.Wins = row.Wins
			snap.DNF = row.DNF
		}
	}

	if len(actionKeys) > 0 {
		var counters []models.ActionCounter
		err := db.
			Where("viewer_id IN ? AND action_key IN ?", viewerIDs, actionKeys).
			Find(&counters).Error
		if err != nil {
			if isUndefinedTable(err) {
				return nil, ErrStorageUninitialized
			}
			return nil, err
		}
		for _, counter := range counters {
			snap, ok := snapshots[counter.ViewerID]
			if !ok {
				continue
			}
			if snap.Actions == nil {
				snap.Actions = make(map[string]int64)
			}
			snap.Actions[counter.ActionKey] = counter.Count
		}
	}

	return snapshots, nil
}

// RequiredActionKeys collects the distinct action counter keys referenced by
// any clause set, so the snapshot query only fetches counters it will read.
func RequiredActionKeys(clauseSets [][]Clause) []string {
	seen := make(map[string]bool)
	for _, clauses := range clauseSets {
		for _, c := range clauses {
			if strings.HasPrefix(c.Metric, actionMetricPrefix) {
				seen[strings.TrimPrefix(c.Metric, actionMetricPrefix)] = true
			}
		}
	}
	keys := make([]string, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
