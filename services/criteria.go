package services

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// Criteria parse errors. These surface to the admin authoring a rule, so the
// wrapped message must carry enough to pinpoint the bad line.
var (
	ErrCriteriaRequired = errors.New("criteria is required")
	ErrInvalidCriteria  = errors.New("invalid criteria")
)

// Clause is one "metric operator threshold" condition. All clauses of an
// achievement are ANDed together — there is deliberately no OR/grouping.
type Clause struct {
	Metric    string  `json:"metric"`
	Op        string  `json:"op"`
	Threshold float64 `json:"threshold"`
}

// One criteria line: metric, operator, numeric threshold. Longest operators
// first so ">=" doesn't tokenize as ">" + "=".
var clausePattern = regexp.MustCompile(`^([A-Za-z_][A-Za-z0-9_.:-]*)\s*(>=|<=|==|!=|>|<|=)\s*([+-]?[0-9]+(?:\.[0-9]+)?)$`)

// ParseCriteria turns raw criteria text into an ordered clause list.
// Lines are split on newlines and ';'; blank lines and lines starting with
// '#' or '//' are skipped. Metric names come back lower-cased and normalized
// (see NormalizeMetric); a bare '=' operator is folded into '=='.
func ParseCriteria(text string) ([]Clause, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrCriteriaRequired
	}

	segments := strings.FieldsFunc(text, func(r rune) bool {
		return r == '\n' || r == ';'
	})

	var clauses []Clause
	for _, seg := range segments {
		line := strings.TrimSpace(seg)
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "//") {
			continue
		}

		m := clausePattern.FindStringSubmatch(line)
		if m == nil {
			return nil, fmt.Errorf("%w: %q", ErrInvalidCriteria, line)
		}

		threshold, err := strconv.ParseFloat(m[3], 64)
		if err != nil || math.IsInf(threshold, 0) || math.IsNaN(threshold) {
			return nil, fmt.Errorf("%w: %q (threshold is not a finite number)", ErrInvalidCriteria, line)
		}

		op := m[2]
		if op == "=" {
			op = "=="
		}

		clauses = append(clauses, Clause{
			Metric:    NormalizeMetric(m[1]),
			Op:        op,
			Threshold: threshold,
		})
	}

	if len(clauses) == 0 {
		return nil, fmt.Errorf("%w: no valid clauses", ErrInvalidCriteria)
	}
	return clauses, nil
}

const actionMetricPrefix = "action:"

// Friendly spellings → canonical metric names. Unknown metrics deliberately
// pass through unchanged and evaluate against 0 — criteria are authored by
// the operator, and a forward-compatible name must not be a parse error.
var metricAliases = map[string]string{
	"win":          "wins",
	"wins":         "wins",
	"race":         "races",
	"races":        "races",
	"competitions": "races",
	"finish":       "finished",
	"finishes":     "finished",
	"finished":     "finished",
	"dnf":          "dnf",
	"dnfs":         "dnf",

	// historical spellings of the default-vehicle action from the old site
	"defaultvehicleset":          "action:default_vehicle_set",
	"default_vehicle_set":        "action:default_vehicle_set",
	"action:defaultvehicleset":   "action:default_vehicle_set",
	"action:default_vehicle_set": "action:default_vehicle_set",
}

// NormalizeMetric canonicalizes a metric name: lower-case, "action." and
// "action_" namespace spellings folded into "action:", then the alias table.
func NormalizeMetric(raw string) string {
	metric := strings.ToLower(strings.TrimSpace(raw))

	for _, sep := range []string{":", ".", "_"} {
		if strings.HasPrefix(metric, "action"+sep) {
			metric = actionMetricPrefix + metric[len("action"+sep):]
			break
		}
	}

	if canonical, ok := metricAliases[metric]; ok {
		return canonical
	}
	return metric
}

// MetricSnapshot is everything we measure about one viewer at evaluation
// time: the four race-derived counters plus the open-ended action counters.
type MetricSnapshot struct {
	ViewerID string           `json:"viewer_id"`
	Races    int64            `json:"races"`
	Finished int64            `json:"finished"`
	Wins     int64            `json:"wins"`
	DNF      int64            `json:"dnf"`
	Actions  map[string]int64 `json:"actions,omitempty"`
}

// Value resolves a canonical metric name against the snapshot. Anything
// unknown — including action keys never incremented — reads as 0.
func (s *MetricSnapshot) Value(metric string) float64 {
	if s == nil {
		return 0
	}
	if strings.HasPrefix(metric, actionMetricPrefix) {
		return float64(s.Actions[strings.TrimPrefix(metric, actionMetricPrefix)])
	}
	switch metric {
	case "races":
		return float64(s.Races)
	case "finished":
		return float64(s.Finished)
	case "wins":
		return float64(s.Wins)
	case "dnf":
		return float64(s.DNF)
	}
	return 0
}

func compareMetric(op string, current, threshold float64) bool {
	switch op {
	case ">":
		return current > threshold
	case ">=":
		return current >= threshold
	case "<":
		return current < threshold
	case "<=":
		return current <= threshold
	case "==":
		return current == threshold
	case "!=":
		return current != threshold
	}
	return false
}

// EvaluateClause applies one clause to a snapshot.
func EvaluateClause(c Clause, snap *MetricSnapshot) bool {
	return compareMetric(c.Op, snap.Value(c.Metric), c.Threshold)
}

// EvaluateAll is the implicit-AND fold over an achievement's clauses.
func EvaluateAll(clauses []Clause, snap *MetricSnapshot) bool {
	for _, c := range clauses {
		if !EvaluateClause(c, snap) {
			return false
		}
	}
	return true
}

// ClauseProgress estimates how close current is to satisfying c, in [0,1].
// A satisfied clause is exactly 1. Everything else is a per-operator
// heuristic for UI display only — awarding never looks at this.
func ClauseProgress(c Clause, current float64) float64 {
	if compareMetric(c.Op, current, c.Threshold) {
		return 1
	}

	var p float64
	switch c.Op {
	case ">=":
		p = ratio(current, c.Threshold)
	case ">":
		// practical target is threshold+1
		p = ratio(current, c.Threshold+1)
	case "<=":
		// no way to show partial progress toward "stay at zero"
		if c.Threshold <= 0 || current <= 0 {
			return 0
		}
		p = ratio(c.Threshold, current)
	case "<":
		target := c.Threshold - 1
		if target <= 0 || current <= 0 {
			return 0
		}
		p = ratio(target, current)
	case "==":
		// symmetric distance: under → current/threshold, over → threshold/current
		if current < c.Threshold {
			p = ratio(current, c.Threshold)
		} else {
			p = ratio(c.Threshold, current)
		}
	case "!=":
		return 0
	}
	return clamp01(p)
}

// AggregateProgress is the achievement-level number shown to viewers: the
// arithmetic mean of per-clause progress.
func AggregateProgress(clauses []Clause, snap *MetricSnapshot) float64 {
	if len(clauses) == 0 {
		return 0
	}
	var sum float64
	for _, c := range clauses {
		sum += ClauseProgress(c, snap.Value(c.Metric))
	}
	return sum / float64(len(clauses))
}

func ratio(num, den float64) float64 {
	if den == 0 {
		return 0
	}
	return num / den
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
