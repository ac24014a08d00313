package services

import (
	"errors"
	"math"
	"strings"
	"testing"
)

func TestParseCriteriaSingleClause(t *testing.T) {
	clauses, err := ParseCriteria("wins >= 3")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(clauses) != 1 {
		t.Fatalf("expected 1 clause, got %d", len(clauses))
	}
	c := clauses[0]
	if c.Metric != "wins" || c.Op != ">=" || c.Threshold != 3 {
		t.Errorf("unexpected clause: %+v", c)
	}
}

func TestParseCriteriaMultiLine(t *testing.T) {
	text := `
# podium regular
races >= 20
wins > 2; dnf <= 1
// legacy spelling below
DefaultVehicleSet == 1
`
	clauses, err := ParseCriteria(text)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(clauses) != 4 {
		t.Fatalf("expected 4 clauses, got %d", len(clauses))
	}
	if clauses[0].Metric != "races" || clauses[0].Threshold != 20 {
		t.Errorf("clause 0 wrong: %+v", clauses[0])
	}
	if clauses[1].Metric != "wins" || clauses[1].Op != ">" {
		t.Errorf("clause 1 wrong: %+v", clauses[1])
	}
	if clauses[2].Metric != "dnf" || clauses[2].Op != "<=" {
		t.Errorf("clause 2 wrong: %+v", clauses[2])
	}
	if clauses[3].Metric != "action:default_vehicle_set" || clauses[3].Op != "==" {
		t.Errorf("clause 3 wrong: %+v", clauses[3])
	}
}

func TestParseCriteriaOperators(t *testing.T) {
	cases := []struct {
		text string
		op   string
	}{
		{"wins > 1", ">"},
		{"wins >= 1", ">="},
		{"wins < 1", "<"},
		{"wins <= 1", "<="},
		{"wins == 1", "=="},
		{"wins != 1", "!="},
		{"wins = 1", "=="}, // bare '=' folds into '=='
	}
	for _, tc := range cases {
		clauses, err := ParseCriteria(tc.text)
		if err != nil {
			t.Errorf("%q: unexpected error: %v", tc.text, err)
			continue
		}
		if clauses[0].Op != tc.op {
			t.Errorf("%q: expected op %q, got %q", tc.text, tc.op, clauses[0].Op)
		}
	}
}

func TestParseCriteriaDecimalAndSign(t *testing.T) {
	clauses, err := ParseCriteria("wins >= +2.5\ndnf <= -0.5")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if clauses[0].Threshold != 2.5 {
		t.Errorf("expected 2.5, got %v", clauses[0].Threshold)
	}
	if clauses[1].Threshold != -0.5 {
		t.Errorf("expected -0.5, got %v", clauses[1].Threshold)
	}
}

func TestParseCriteriaEmpty(t *testing.T) {
	for _, text := range []string{"", "   ", "\n\t\n"} {
		_, err := ParseCriteria(text)
		if !errors.Is(err, ErrCriteriaRequired) {
			t.Errorf("%q: expected ErrCriteriaRequired, got %v", text, err)
		}
	}
}

func TestParseCriteriaMalformed(t *testing.T) {
	for _, text := range []string{
		"wins >> 1",
		"wins >=",
		">= 3",
		"wins >= three",
		"1wins >= 3",
	} {
		_, err := ParseCriteria(text)
		if !errors.Is(err, ErrInvalidCriteria) {
			t.Errorf("%q: expected ErrInvalidCriteria, got %v", text, err)
		}
	}

	// the error message should carry the offending line
	_, err := ParseCriteria("races >= 1\nwins >> 1")
	if err == nil || !strings.Contains(err.Error(), "wins >> 1") {
		t.Errorf("error should name the bad line, got %v", err)
	}
}

func TestParseCriteriaOnlyComments(t *testing.T) {
	_, err := ParseCriteria("# just a note\n// and another")
	if !errors.Is(err, ErrInvalidCriteria) {
		t.Errorf("expected ErrInvalidCriteria, got %v", err)
	}
}

func TestParseCriteriaNonFiniteThreshold(t *testing.T) {
	// large enough to overflow float64 into +Inf
	huge := "wins >= 1" + strings.Repeat("0", 400)
	_, err := ParseCriteria(huge)
	if !errors.Is(err, ErrInvalidCriteria) {
		t.Errorf("expected ErrInvalidCriteria for non-finite threshold, got %v", err)
	}
}

func TestParseCriteriaLowercasesMetric(t *testing.T) {
	clauses, err := ParseCriteria("WINS >= 1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if clauses[0].Metric != "wins" {
		t.Errorf("expected lower-cased metric, got %q", clauses[0].Metric)
	}
}

func TestNormalizeMetric(t *testing.T) {
	cases := map[string]string{
		"wins":                "wins",
		"Win":                 "wins",
		"RACES":               "races",
		"race":                "races",
		"competitions":        "races",
		"finish":              "finished",
		"finishes":            "finished",
		"dnfs":                "dnf",
		"action:retry":        "action:retry",
		"action.retry":        "action:retry",
		"action_retry":        "action:retry",
		"ACTION:Retry":        "action:retry",
		"defaultvehicleset":   "action:default_vehicle_set",
		"default_vehicle_set": "action:default_vehicle_set",
		"ghost_laps":          "ghost_laps", // unknown names pass through
	}
	for in, want := range cases {
		if got := NormalizeMetric(in); got != want {
			t.Errorf("NormalizeMetric(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestSnapshotValue(t *testing.T) {
	snap := &MetricSnapshot{
		Races:    10,
		Finished: 8,
		Wins:     3,
		DNF:      2,
		Actions:  map[string]int64{"retry": 5},
	}
	cases := map[string]float64{
		"races":          10,
		"finished":       8,
		"wins":           3,
		"dnf":            2,
		"action:retry":   5,
		"action:unknown": 0,
		"bogus":          0,
	}
	for metric, want := range cases {
		if got := snap.Value(metric); got != want {
			t.Errorf("Value(%q) = %v, want %v", metric, got, want)
		}
	}

	// nil Actions map must still read as 0, not panic
	bare := &MetricSnapshot{Races: 1}
	if got := bare.Value("action:retry"); got != 0 {
		t.Errorf("nil actions: expected 0, got %v", got)
	}
}

func TestEvaluateClause(t *testing.T) {
	snap := &MetricSnapshot{Wins: 3}
	cases := []struct {
		clause Clause
		want   bool
	}{
		{Clause{"wins", ">", 2}, true},
		{Clause{"wins", ">", 3}, false},
		{Clause{"wins", ">=", 3}, true},
		{Clause{"wins", "<", 4}, true},
		{Clause{"wins", "<", 3}, false},
		{Clause{"wins", "<=", 3}, true},
		{Clause{"wins", "==", 3}, true},
		{Clause{"wins", "==", 2}, false},
		{Clause{"wins", "!=", 2}, true},
		{Clause{"wins", "!=", 3}, false},
	}
	for _, tc := range cases {
		if got := EvaluateClause(tc.clause, snap); got != tc.want {
			t.Errorf("%+v: expected %v, got %v", tc.clause, tc.want, got)
		}
	}
}

func TestEvaluateAllRequiresEveryClause(t *testing.T) {
	clauses, err := ParseCriteria("wins >= 1\nraces >= 10")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	met := &MetricSnapshot{Wins: 2, Races: 10}
	if !EvaluateAll(clauses, met) {
		t.Error("all clauses satisfied, should evaluate true")
	}

	oneShort := &MetricSnapshot{Wins: 0, Races: 10}
	if EvaluateAll(clauses, oneShort) {
		t.Error("one clause unmet, should evaluate false")
	}
}

func TestClauseProgress(t *testing.T) {
	cases := []struct {
		clause  Clause
		current float64
		want    float64
	}{
		{Clause{"races", ">=", 10}, 5, 0.5},
		{Clause{"races", ">=", 10}, 10, 1},
		{Clause{"races", ">=", 10}, 25, 1}, // clamped
		{Clause{"races", ">=", 0}, 0, 1},   // satisfied outright
		{Clause{"wins", ">", 4}, 4, 0.8},   // target is threshold+1
		{Clause{"wins", ">", 4}, 5, 1},
		{Clause{"dnf", "<=", 0}, 3, 0}, // no partial credit toward zero
		{Clause{"dnf", "<=", 0}, 0, 1},
		{Clause{"dnf", "<=", 2}, 4, 0.5},
		{Clause{"dnf", "<", 1}, 5, 0}, // target threshold-1 is 0
		{Clause{"dnf", "<", 5}, 8, 0.5},
		{Clause{"wins", "==", 4}, 2, 0.5},
		{Clause{"wins", "==", 4}, 8, 0.5}, // overshoot mirrors
		{Clause{"wins", "==", 4}, 4, 1},
		{Clause{"wins", "!=", 4}, 4, 0},
		{Clause{"wins", "!=", 4}, 2, 1}, // satisfied
	}
	for _, tc := range cases {
		got := ClauseProgress(tc.clause, tc.current)
		if math.Abs(got-tc.want) > 1e-9 {
			t.Errorf("%+v current=%v: expected %v, got %v", tc.clause, tc.current, tc.want, got)
		}
	}
}

func TestClauseProgressBounds(t *testing.T) {
	clauses := []Clause{
		{"races", ">=", 10},
		{"wins", ">", 100},
		{"dnf", "<=", 0},
		{"wins", "==", 7},
		{"wins", "!=", 0},
	}
	for _, c := range clauses {
		for _, cur := range []float64{-5, 0, 0.5, 1, 7, 10, 1000} {
			p := ClauseProgress(c, cur)
			if p < 0 || p > 1 {
				t.Errorf("%+v current=%v: progress %v out of [0,1]", c, cur, p)
			}
		}
	}
}

func TestAggregateProgress(t *testing.T) {
	clauses, err := ParseCriteria("races >= 10\nwins >= 2")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	snap := &MetricSnapshot{Races: 5, Wins: 1}
	got := AggregateProgress(clauses, snap)
	if math.Abs(got-0.5) > 1e-9 {
		t.Errorf("expected 0.5, got %v", got)
	}

	done := &MetricSnapshot{Races: 12, Wins: 3}
	if AggregateProgress(clauses, done) != 1 {
		t.Error("all clauses met, aggregate should be exactly 1")
	}

	if AggregateProgress(nil, snap) != 0 {
		t.Error("no clauses, aggregate should be 0")
	}
}
