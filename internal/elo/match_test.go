package elo

import (
	"math"
	"testing"
	"time"

	"github.com/forecastarena/rankd/internal/score"
)

func floatPtr(v float64) *float64 {
	return &v
}

func testScore(roundID, seriesID, modelID string, accuracy float64) score.RoundScore {
	return score.RoundScore{
		Score: score.Score{
			RoundID:  roundID,
			ModelID:  modelID,
			SeriesID: seriesID,
			Accuracy: &accuracy,
			Final:    true,
		},
		Frequency: time.Hour,
		Horizon:   24 * time.Hour,
	}
}

func TestBuildMatchesBasic(t *testing.T) {
	// A is strictly more accurate than B on one shared series; C's score
	// is invalid and must contribute nothing.
	scores := []score.RoundScore{
		testScore("r1", "s1", "A", 0.10),
		testScore("r1", "s1", "B", 0.20),
		testScore("r1", "s1", "C", math.NaN()),
	}

	matches := BuildMatches(scores)
	if len(matches) != 1 {
		t.Fatalf("BuildMatches() returned %d matches, want 1", len(matches))
	}

	m := matches[0]
	if m.ModelA != "A" || m.ModelB != "B" {
		t.Errorf("match pair = (%q, %q), want (A, B)", m.ModelA, m.ModelB)
	}
	if m.Outcome != WinA {
		t.Errorf("match outcome = %v, want WinA", m.Outcome)
	}
	for _, m := range matches {
		if m.ModelA == "C" || m.ModelB == "C" {
			t.Errorf("model with invalid score appeared in match %+v", m)
		}
	}
}

func TestBuildMatchesDraw(t *testing.T) {
	scores := []score.RoundScore{
		testScore("r1", "s1", "A", 0.15),
		testScore("r1", "s1", "B", 0.15),
	}

	matches := BuildMatches(scores)
	if len(matches) != 1 {
		t.Fatalf("BuildMatches() returned %d matches, want 1", len(matches))
	}
	if matches[0].Outcome != Draw {
		t.Errorf("equal accuracies produced outcome %v, want Draw", matches[0].Outcome)
	}
}

func TestBuildMatchesAllPairsPerSeries(t *testing.T) {
	scores := []score.RoundScore{
		testScore("r1", "s1", "A", 0.1),
		testScore("r1", "s1", "B", 0.2),
		testScore("r1", "s1", "C", 0.3),
		testScore("r1", "s2", "A", 0.4),
		testScore("r1", "s2", "B", 0.3),
	}

	matches := BuildMatches(scores)
	// s1: AB, AC, BC; s2: AB.
	if len(matches) != 4 {
		t.Fatalf("BuildMatches() returned %d matches, want 4", len(matches))
	}

	// Each (round, series, pair) appears at most once.
	seen := make(map[[4]string]bool)
	for _, m := range matches {
		key := [4]string{m.RoundID, m.SeriesID, m.ModelA, m.ModelB}
		if seen[key] {
			t.Errorf("duplicate match emitted for %v", key)
		}
		seen[key] = true
		if m.ModelA >= m.ModelB {
			t.Errorf("match pair not in canonical order: (%q, %q)", m.ModelA, m.ModelB)
		}
	}

	// On s2, B beat A; with canonical (A, B) ordering that is WinB.
	for _, m := range matches {
		if m.SeriesID == "s2" && m.Outcome != WinB {
			t.Errorf("s2 outcome = %v, want WinB", m.Outcome)
		}
	}
}

func TestBuildMatchesSkipsSoloSeries(t *testing.T) {
	scores := []score.RoundScore{
		testScore("r1", "s1", "A", 0.1),
		testScore("r2", "s1", "B", 0.2), // different round, no overlap
	}

	if matches := BuildMatches(scores); len(matches) != 0 {
		t.Errorf("BuildMatches() returned %d matches for solo series, want 0", len(matches))
	}
}

func TestMatchCounts(t *testing.T) {
	matches := []Match{
		{RoundID: "r1", SeriesID: "s1", ModelA: "A", ModelB: "B", Outcome: WinA},
		{RoundID: "r1", SeriesID: "s2", ModelA: "A", ModelB: "C", Outcome: Draw},
	}

	counts := MatchCounts(matches)
	want := map[string]int{"A": 2, "B": 1, "C": 1}
	for id, n := range want {
		if counts[id] != n {
			t.Errorf("counts[%q] = %d, want %d", id, counts[id], n)
		}
	}
}
