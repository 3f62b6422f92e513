// Package snapshot persists dated ranking snapshots and serves
// leaderboard reads.
package snapshot

import (
	"context"
	"sort"
	"time"

	"github.com/forecastarena/rankd/internal/elo"
	"github.com/forecastarena/rankd/internal/scope"
)

// RankingSnapshot is one persisted (date, model, scope) ranking row. Rows
// are immutable for their key; a recomputation replaces the row wholesale
// rather than accumulating history for the same calculation date.
type RankingSnapshot struct {
	CalculationDate time.Time  `json:"calculation_date"`
	ModelID         string     `json:"model_id"`
	ScopeType       scope.Type `json:"scope_type"`
	ScopeID         string     `json:"scope_id"` // empty for global
	RatingMedian    float64    `json:"rating_median"`
	CILower         float64    `json:"ci_lower"`
	CIUpper         float64    `json:"ci_upper"`
	MatchesPlayed   int        `json:"matches_played"`
	RankPosition    int        `json:"rank_position"`
	NBootstraps     int        `json:"n_bootstraps"`
	CalculatedAt    time.Time  `json:"calculated_at"`
}

// Store persists ranking snapshots and serves leaderboard reads.
type Store interface {
	// UpsertBatch writes one scope's snapshot rows in a single
	// transaction, replacing any prior rows for the same
	// (date, model, scope) keys.
	UpsertBatch(ctx context.Context, snapshots []RankingSnapshot) error

	// Leaderboard returns the snapshots for a (scope, date) ordered by
	// rank position. A zero date selects the scope's most recent
	// calculation.
	Leaderboard(ctx context.Context, key scope.Key, date time.Time) ([]RankingSnapshot, error)

	// ModelHistory returns one model's snapshots in one scope across
	// calculation dates, oldest first, for trend display.
	ModelHistory(ctx context.Context, modelID string, key scope.Key) ([]RankingSnapshot, error)

	// HasSnapshot reports whether the scope already has rows for a date.
	HasSnapshot(ctx context.Context, key scope.Key, date time.Time) (bool, error)
}

// Rank turns one scope's bootstrap stats into snapshot rows. Models below
// minMatches are excluded even when they have some matches; models with
// zero matches never reach this point because the engine omits them.
// Rows are ordered by rating median descending with model ID ascending as
// the deterministic tie-break and numbered 1..n.
func Rank(key scope.Key, stats []elo.ModelStats, date time.Time, minMatches int, calculatedAt time.Time) []RankingSnapshot {
	eligible := make([]elo.ModelStats, 0, len(stats))
	for _, s := range stats {
		if s.MatchesPlayed >= minMatches {
			eligible = append(eligible, s)
		}
	}

	sort.Slice(eligible, func(i, j int) bool {
		if eligible[i].Median != eligible[j].Median {
			return eligible[i].Median > eligible[j].Median
		}
		return eligible[i].ModelID < eligible[j].ModelID
	})

	snapshots := make([]RankingSnapshot, 0, len(eligible))
	for i, s := range eligible {
		snapshots = append(snapshots, RankingSnapshot{
			CalculationDate: truncateToDate(date),
			ModelID:         s.ModelID,
			ScopeType:       key.Type(),
			ScopeID:         key.ID(),
			RatingMedian:    s.Median,
			CILower:         s.CILower,
			CIUpper:         s.CIUpper,
			MatchesPlayed:   s.MatchesPlayed,
			RankPosition:    i + 1,
			NBootstraps:     s.Iterations,
			CalculatedAt:    calculatedAt,
		})
	}
	return snapshots
}

// truncateToDate drops the time-of-day component, keeping the UTC date.
func truncateToDate(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
