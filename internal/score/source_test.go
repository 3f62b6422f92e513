package score

import (
	"context"
	"math"
	"testing"
	"time"
)

func roundScore(roundID, modelID, seriesID, defID string, freq, hor time.Duration, accuracy float64) RoundScore {
	return RoundScore{
		Score: Score{
			RoundID:  roundID,
			ModelID:  modelID,
			SeriesID: seriesID,
			Accuracy: &accuracy,
			Final:    true,
		},
		DefinitionID: defID,
		Frequency:    freq,
		Horizon:      hor,
	}
}

func TestStaticSourceFiltersInvalid(t *testing.T) {
	scores := []RoundScore{
		roundScore("r1", "a", "s1", "d1", time.Hour, 24*time.Hour, 0.1),
		roundScore("r1", "b", "s1", "d1", time.Hour, 24*time.Hour, math.NaN()),
		{Score: Score{RoundID: "r1", ModelID: "c", SeriesID: "s1", Final: false, Accuracy: floatPtr(0.3)}},
		{Score: Score{RoundID: "r1", ModelID: "d", SeriesID: "s1", Final: true, Accuracy: nil}},
	}

	src := NewStaticSource(scores)
	got, err := src.EligibleScores(context.Background())
	if err != nil {
		t.Fatalf("EligibleScores() error = %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("EligibleScores() returned %d scores, want 1", len(got))
	}
	if got[0].ModelID != "a" {
		t.Errorf("surviving score model = %q, want %q", got[0].ModelID, "a")
	}
}

func TestStaticSourceDefinitions(t *testing.T) {
	scores := []RoundScore{
		roundScore("r1", "a", "s1", "d1", time.Hour, 24*time.Hour, 0.1),
		roundScore("r1", "b", "s1", "d1", time.Hour, 24*time.Hour, 0.2),
		roundScore("r2", "a", "s1", "d2", time.Hour, 48*time.Hour, 0.3),
		roundScore("r3", "a", "s1", "", time.Hour, 24*time.Hour, 0.4),
	}

	src := NewStaticSource(scores)
	defs, err := src.Definitions(context.Background())
	if err != nil {
		t.Fatalf("Definitions() error = %v", err)
	}
	want := []string{"d1", "d2"}
	if len(defs) != len(want) {
		t.Fatalf("Definitions() = %v, want %v", defs, want)
	}
	for i := range want {
		if defs[i] != want[i] {
			t.Errorf("Definitions()[%d] = %q, want %q", i, defs[i], want[i])
		}
	}
}

func TestStaticSourceFrequencyHorizons(t *testing.T) {
	scores := []RoundScore{
		roundScore("r1", "a", "s1", "d1", time.Hour, 24*time.Hour, 0.1),
		roundScore("r2", "a", "s1", "d2", time.Hour, 24*time.Hour, 0.2),
		roundScore("r3", "a", "s1", "d3", time.Hour, 48*time.Hour, 0.3),
	}

	src := NewStaticSource(scores)
	pairs, err := src.FrequencyHorizons(context.Background())
	if err != nil {
		t.Fatalf("FrequencyHorizons() error = %v", err)
	}
	if len(pairs) != 2 {
		t.Fatalf("FrequencyHorizons() returned %d pairs, want 2", len(pairs))
	}
	if pairs[0] != (FrequencyHorizon{Frequency: time.Hour, Horizon: 24 * time.Hour}) {
		t.Errorf("pairs[0] = %+v, want 1h/24h", pairs[0])
	}
	if pairs[1] != (FrequencyHorizon{Frequency: time.Hour, Horizon: 48 * time.Hour}) {
		t.Errorf("pairs[1] = %+v, want 1h/48h", pairs[1])
	}
}
