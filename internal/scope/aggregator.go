package scope

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/forecastarena/rankd/internal/elo"
	"github.com/forecastarena/rankd/internal/score"
)

// DefaultMaxConcurrentScopes bounds how many scopes compute at once.
const DefaultMaxConcurrentScopes = 4

// Result is the outcome of one scope's computation. Err is set when the
// scope failed (for example a non-finite rating); a scope with no eligible
// matches yields empty Stats and a nil Err.
type Result struct {
	Key     Key
	Stats   []elo.ModelStats
	Matches int
	Err     error
}

// Aggregator enumerates the scopes for a run and computes each one
// independently over a single consistent read of the score source.
type Aggregator struct {
	source        score.Source
	engineCfg     elo.Config
	maxConcurrent int
	logger        *slog.Logger
}

// NewAggregator creates an Aggregator. maxConcurrent <= 0 falls back to
// DefaultMaxConcurrentScopes.
func NewAggregator(source score.Source, engineCfg elo.Config, maxConcurrent int, logger *slog.Logger) *Aggregator {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrentScopes
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Aggregator{
		source:        source,
		engineCfg:     engineCfg,
		maxConcurrent: maxConcurrent,
		logger:        logger,
	}
}

// Keys enumerates the scopes to compute: always global, one per distinct
// definition with eligible scores, and one per distinct (frequency,
// horizon) pair.
func (a *Aggregator) Keys(ctx context.Context) ([]Key, error) {
	keys := []Key{Global()}

	defs, err := a.source.Definitions(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list definitions: %w", err)
	}
	for _, id := range defs {
		keys = append(keys, Definition(id))
	}

	pairs, err := a.source.FrequencyHorizons(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list frequency/horizon pairs: %w", err)
	}
	for _, p := range pairs {
		keys = append(keys, FrequencyHorizon(p.Frequency, p.Horizon))
	}
	return keys, nil
}

// ComputeAll loads the eligible scores once, then computes every scope on a
// bounded worker pool. A failure in one scope never aborts the others; each
// scope reports its own Result. Cancellation is coarse-grained: once the
// context is done, no further scopes are dispatched and already-completed
// results are returned alongside ctx.Err().
func (a *Aggregator) ComputeAll(ctx context.Context) ([]Result, error) {
	scores, err := a.source.EligibleScores(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load eligible scores: %w", err)
	}

	keys, err := a.Keys(ctx)
	if err != nil {
		return nil, err
	}

	a.logger.Info("computing ranking scopes",
		slog.Int("scopes", len(keys)),
		slog.Int("scores", len(scores)))

	results := make([]Result, 0, len(keys))
	var mu sync.Mutex
	var wg sync.WaitGroup
	sem := make(chan struct{}, a.maxConcurrent)

	var cancelled bool
dispatch:
	for _, key := range keys {
		// Checked before the select so a done context always wins over a
		// free worker slot.
		if ctx.Err() != nil {
			cancelled = true
			break dispatch
		}
		select {
		case <-ctx.Done():
			cancelled = true
			break dispatch
		case sem <- struct{}{}:
		}

		wg.Add(1)
		go func(key Key) {
			defer wg.Done()
			defer func() { <-sem }()

			res := a.computeScope(ctx, key, scores)

			mu.Lock()
			results = append(results, res)
			mu.Unlock()
		}(key)
	}
	wg.Wait()

	if cancelled {
		a.logger.Warn("run cancelled between scopes",
			slog.Int("completed", len(results)),
			slog.Int("total", len(keys)))
		return results, ctx.Err()
	}
	return results, nil
}

// computeScope filters the shared score set down to one scope, builds its
// match set and runs the bootstrap engine.
func (a *Aggregator) computeScope(ctx context.Context, key Key, scores []score.RoundScore) Result {
	start := time.Now()

	var scoped []score.RoundScore
	for i := range scores {
		if key.Matches(&scores[i]) {
			scoped = append(scoped, scores[i])
		}
	}

	matches := elo.BuildMatches(scoped)
	if len(matches) == 0 {
		// Fewer than two participants everywhere in this scope. Expected
		// with sparse participation, so not an error.
		a.logger.Debug("scope has no matches",
			slog.String("scope", key.String()),
			slog.Int("scores", len(scoped)))
		return Result{Key: key}
	}

	engine := elo.NewEngine(a.engineCfg, a.logger)
	stats, err := engine.Run(ctx, matches)
	if err != nil {
		a.logger.Error("scope computation failed",
			slog.String("scope", key.String()),
			slog.String("error", err.Error()))
		return Result{Key: key, Matches: len(matches), Err: err}
	}

	a.logger.Info("scope computed",
		slog.String("scope", key.String()),
		slog.Int("matches", len(matches)),
		slog.Int("models", len(stats)),
		slog.Duration("duration", time.Since(start)))

	return Result{Key: key, Stats: stats, Matches: len(matches)}
}
