// Package elo derives pairwise matches from accuracy scores and computes
// bootstrapped Elo ratings with confidence intervals.
package elo

import (
	"sort"

	"github.com/forecastarena/rankd/internal/score"
)

// Outcome is the result of one pairwise comparison.
type Outcome int

// Match outcomes. ModelA and ModelB are held in canonical (ascending ID)
// order, so the outcome says which side of the pair won.
const (
	WinA Outcome = iota
	WinB
	Draw
)

// Match is one pairwise comparison between two models that both produced a
// valid score for the same (round, series). Matches are ephemeral values
// derived per run; they are never persisted.
type Match struct {
	RoundID  string
	SeriesID string
	ModelA   string
	ModelB   string
	Outcome  Outcome
}

// BuildMatches turns a scope's valid scores into pairwise matches. For each
// (round, series) group, every unordered pair of participating models yields
// exactly one match: the model with the strictly lower accuracy wins, equal
// accuracies draw. Groups with fewer than two valid scores yield nothing,
// which is the expected partial-participation case, not an error.
//
// Output order is not semantically significant; the bootstrap engine
// re-orders matches per iteration. It is nevertheless deterministic for a
// given input, which keeps runs reproducible.
func BuildMatches(scores []score.RoundScore) []Match {
	type groupKey struct {
		roundID  string
		seriesID string
	}
	type entry struct {
		modelID  string
		accuracy float64
	}

	groups := make(map[groupKey][]entry)
	var order []groupKey
	for i := range scores {
		s := &scores[i]
		if !s.Valid() {
			continue
		}
		k := groupKey{roundID: s.RoundID, seriesID: s.SeriesID}
		if _, seen := groups[k]; !seen {
			order = append(order, k)
		}
		groups[k] = append(groups[k], entry{modelID: s.ModelID, accuracy: *s.Accuracy})
	}

	var matches []Match
	for _, k := range order {
		entries := groups[k]
		if len(entries) < 2 {
			continue
		}
		// Canonical order inside each group so every unordered pair is
		// emitted exactly once, with ModelA < ModelB.
		sort.Slice(entries, func(i, j int) bool { return entries[i].modelID < entries[j].modelID })

		for i := 0; i < len(entries); i++ {
			for j := i + 1; j < len(entries); j++ {
				a, b := entries[i], entries[j]
				if a.modelID == b.modelID {
					continue // duplicate submission, keep the first
				}
				m := Match{
					RoundID:  k.roundID,
					SeriesID: k.seriesID,
					ModelA:   a.modelID,
					ModelB:   b.modelID,
				}
				switch {
				case a.accuracy < b.accuracy:
					m.Outcome = WinA
				case b.accuracy < a.accuracy:
					m.Outcome = WinB
				default:
					m.Outcome = Draw
				}
				matches = append(matches, m)
			}
		}
	}
	return matches
}

// MatchCounts returns how many distinct matches each model is involved in.
// Counts come from the original match set, not from any bootstrap resample.
func MatchCounts(matches []Match) map[string]int {
	counts := make(map[string]int)
	for _, m := range matches {
		counts[m.ModelA]++
		counts[m.ModelB]++
	}
	return counts
}
