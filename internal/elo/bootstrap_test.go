package elo

import (
	"context"
	"math"
	"testing"
)

// simulatedMatches builds a match set where model "best" strictly beats
// every opponent on every shared series.
func simulatedMatches(rounds, series int, opponents []string) []Match {
	var matches []Match
	for r := 0; r < rounds; r++ {
		for s := 0; s < series; s++ {
			roundID := string(rune('a' + r))
			seriesID := string(rune('A' + s))
			for i, opp := range opponents {
				m := Match{RoundID: roundID, SeriesID: seriesID}
				if "best" < opp {
					m.ModelA, m.ModelB, m.Outcome = "best", opp, WinA
				} else {
					m.ModelA, m.ModelB, m.Outcome = opp, "best", WinB
				}
				matches = append(matches, m)
				// Opponents alternate wins among themselves.
				for j := i + 1; j < len(opponents); j++ {
					o := Match{RoundID: roundID, SeriesID: seriesID, ModelA: opponents[i], ModelB: opponents[j]}
					if (r+s+i+j)%2 == 0 {
						o.Outcome = WinA
					} else {
						o.Outcome = WinB
					}
					matches = append(matches, o)
				}
			}
		}
	}
	return matches
}

func TestRunEmptyMatchSet(t *testing.T) {
	engine := NewEngine(Config{Seed: 1}, nil)
	stats, err := engine.Run(context.Background(), nil)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if stats != nil {
		t.Errorf("Run() on empty match set = %v, want nil", stats)
	}
}

func TestRunScenarioSingleMatch(t *testing.T) {
	// A beat B once; C never matched and must not appear.
	matches := []Match{
		{RoundID: "r1", SeriesID: "s1", ModelA: "A", ModelB: "B", Outcome: WinA},
	}

	engine := NewEngine(Config{
		KFactor:    32,
		BaseRating: 1000,
		Iterations: 500,
		Seed:       42,
	}, nil)

	stats, err := engine.Run(context.Background(), matches)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(stats) != 2 {
		t.Fatalf("Run() returned %d models, want 2", len(stats))
	}

	byID := make(map[string]ModelStats)
	for _, s := range stats {
		byID[s.ModelID] = s
	}
	if _, ok := byID["C"]; ok {
		t.Error("model with zero matches appeared in bootstrap output")
	}

	a, b := byID["A"], byID["B"]
	if !(a.Median > 1000) {
		t.Errorf("winner median = %v, want > 1000", a.Median)
	}
	if !(b.Median < 1000) {
		t.Errorf("loser median = %v, want < 1000", b.Median)
	}
	if a.MatchesPlayed != 1 || b.MatchesPlayed != 1 {
		t.Errorf("matches played = %d/%d, want 1/1", a.MatchesPlayed, b.MatchesPlayed)
	}
	if a.Iterations != 500 {
		t.Errorf("iterations recorded = %d, want 500", a.Iterations)
	}
}

func TestRunCIOrderingInvariant(t *testing.T) {
	matches := simulatedMatches(3, 4, []string{"m1", "m2", "m3"})

	engine := NewEngine(Config{Iterations: 200, Seed: 7}, nil)
	stats, err := engine.Run(context.Background(), matches)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(stats) == 0 {
		t.Fatal("Run() returned no stats")
	}

	for _, s := range stats {
		if !(s.CILower <= s.Median && s.Median <= s.CIUpper) {
			t.Errorf("model %s violates CI ordering: lower=%v median=%v upper=%v",
				s.ModelID, s.CILower, s.Median, s.CIUpper)
		}
		for _, v := range []float64{s.CILower, s.Median, s.CIUpper} {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				t.Errorf("model %s has non-finite statistic %v", s.ModelID, v)
			}
		}
	}
}

func TestRunDeterministicForFixedSeed(t *testing.T) {
	matches := simulatedMatches(2, 3, []string{"m1", "m2"})

	run := func(parallel int) []ModelStats {
		engine := NewEngine(Config{
			Iterations:  150,
			Seed:        1234,
			MaxParallel: parallel,
		}, nil)
		stats, err := engine.Run(context.Background(), matches)
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
		return stats
	}

	first := run(1)
	second := run(8)

	if len(first) != len(second) {
		t.Fatalf("runs disagree on model count: %d vs %d", len(first), len(second))
	}
	for i := range first {
		f, s := first[i], second[i]
		if f.ModelID != s.ModelID || f.Median != s.Median || f.CILower != s.CILower || f.CIUpper != s.CIUpper {
			t.Errorf("runs diverge at %d: %+v vs %+v (fixed seed must reproduce exactly)", i, f, s)
		}
	}
}

func TestRunMonotonicity(t *testing.T) {
	// A model that wins every shared series must converge above every
	// opponent's median.
	matches := simulatedMatches(4, 5, []string{"m1", "m2", "m3"})

	engine := NewEngine(Config{Iterations: 300, Seed: 99}, nil)
	stats, err := engine.Run(context.Background(), matches)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	byID := make(map[string]ModelStats)
	for _, s := range stats {
		byID[s.ModelID] = s
	}
	best := byID["best"]
	for _, opp := range []string{"m1", "m2", "m3"} {
		if !(best.Median > byID[opp].Median) {
			t.Errorf("consistently better model median %v not above %s median %v",
				best.Median, opp, byID[opp].Median)
		}
	}
	if stats[0].ModelID != "best" {
		t.Errorf("stats not sorted by median descending: first is %s", stats[0].ModelID)
	}
}

func TestRunCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	engine := NewEngine(Config{Iterations: 50, Seed: 5}, nil)
	matches := simulatedMatches(1, 1, []string{"m1"})

	if _, err := engine.Run(ctx, matches); err == nil {
		t.Error("Run() with cancelled context returned nil error")
	}
}

func TestPercentile(t *testing.T) {
	tests := []struct {
		name   string
		sorted []float64
		q      float64
		want   float64
	}{
		{name: "median of odd count", sorted: []float64{1, 2, 3}, q: 50, want: 2},
		{name: "median of even count", sorted: []float64{1, 2, 3, 4}, q: 50, want: 2.5},
		{name: "lower bound", sorted: []float64{1, 2, 3}, q: 0, want: 1},
		{name: "upper bound", sorted: []float64{1, 2, 3}, q: 100, want: 3},
		{name: "interpolated", sorted: []float64{0, 10}, q: 25, want: 2.5},
		{name: "single sample", sorted: []float64{5}, q: 97.5, want: 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := percentile(tt.sorted, tt.q); math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("percentile(%v, %v) = %v, want %v", tt.sorted, tt.q, got, tt.want)
			}
		})
	}
}
