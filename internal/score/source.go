package score

import (
	"context"
	"time"
)

// FrequencyHorizon is one observed (frequency, horizon) combination among
// eligible rounds.
type FrequencyHorizon struct {
	Frequency time.Duration
	Horizon   time.Duration
}

// Source provides the closed-world snapshot of scored rounds that one
// calculation run operates on. Implementations should present a single
// consistent read per run so that a calculation never mixes
// partially-updated data.
type Source interface {
	// EligibleScores returns every valid score joined with its round's
	// scope attributes. Invalid scores (non-final, missing or non-finite
	// accuracy) are already filtered out.
	EligibleScores(ctx context.Context) ([]RoundScore, error)

	// Definitions returns the distinct definition IDs that have at least
	// one eligible score.
	Definitions(ctx context.Context) ([]string, error)

	// FrequencyHorizons returns the distinct (frequency, horizon) pairs
	// observed among rounds with eligible scores.
	FrequencyHorizons(ctx context.Context) ([]FrequencyHorizon, error)
}

// StaticSource is an in-memory Source backed by a fixed slice of scores.
// It backs tests and lets the aggregator be exercised without a database.
type StaticSource struct {
	Scores []RoundScore
}

// NewStaticSource creates a StaticSource over the given scores. Scores that
// fail the validity predicate are dropped up front, mirroring what the
// database source pushes into SQL.
func NewStaticSource(scores []RoundScore) *StaticSource {
	valid := make([]RoundScore, 0, len(scores))
	for _, s := range scores {
		if s.Valid() {
			valid = append(valid, s)
		}
	}
	return &StaticSource{Scores: valid}
}

// EligibleScores returns a copy of the valid scores.
func (s *StaticSource) EligibleScores(_ context.Context) ([]RoundScore, error) {
	out := make([]RoundScore, len(s.Scores))
	copy(out, s.Scores)
	return out, nil
}

// Definitions returns the distinct non-empty definition IDs, in first-seen order.
func (s *StaticSource) Definitions(_ context.Context) ([]string, error) {
	seen := make(map[string]bool)
	var defs []string
	for _, sc := range s.Scores {
		if sc.DefinitionID == "" || seen[sc.DefinitionID] {
			continue
		}
		seen[sc.DefinitionID] = true
		defs = append(defs, sc.DefinitionID)
	}
	return defs, nil
}

// FrequencyHorizons returns the distinct (frequency, horizon) pairs, in
// first-seen order.
func (s *StaticSource) FrequencyHorizons(_ context.Context) ([]FrequencyHorizon, error) {
	seen := make(map[FrequencyHorizon]bool)
	var pairs []FrequencyHorizon
	for _, sc := range s.Scores {
		fh := FrequencyHorizon{Frequency: sc.Frequency, Horizon: sc.Horizon}
		if fh.Frequency == 0 && fh.Horizon == 0 {
			continue
		}
		if seen[fh] {
			continue
		}
		seen[fh] = true
		pairs = append(pairs, fh)
	}
	return pairs, nil
}
