package elo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"runtime"
	"sort"
	"sync"
)

// Default engine parameters. The K factor is the classic per-match Elo
// step; the source system applied a smaller, opponent-normalized step
// because it updated all-vs-all per round rather than per match.
const (
	DefaultKFactor    = 32.0
	DefaultBaseRating = 1000.0
	DefaultIterations = 500
)

// ErrNonFiniteRating is returned when a bootstrap run produces a NaN or
// infinite statistic. Finite inputs must never cause this; it indicates a
// defect rather than an expected runtime condition, and the affected
// scope's snapshot is withheld.
var ErrNonFiniteRating = errors.New("bootstrap produced a non-finite rating")

// Config holds the tunable parameters for a bootstrap run.
type Config struct {
	// KFactor is the Elo step size per match.
	KFactor float64
	// BaseRating is the rating every model starts each iteration at.
	BaseRating float64
	// Iterations is the number of bootstrap resamples. 500 by default;
	// the legacy value of 100 is an ordinary accepted setting.
	Iterations int
	// Seed drives every random draw. A fixed seed reproduces the run
	// exactly, independent of scheduling.
	Seed int64
	// MaxParallel bounds concurrent iterations. Zero means GOMAXPROCS.
	MaxParallel int
}

// withDefaults fills zero fields with the package defaults.
func (c Config) withDefaults() Config {
	if c.KFactor == 0 {
		c.KFactor = DefaultKFactor
	}
	if c.BaseRating == 0 {
		c.BaseRating = DefaultBaseRating
	}
	if c.Iterations == 0 {
		c.Iterations = DefaultIterations
	}
	if c.MaxParallel <= 0 {
		c.MaxParallel = runtime.GOMAXPROCS(0)
	}
	return c
}

// ModelStats is the aggregated bootstrap result for one model in one scope.
type ModelStats struct {
	ModelID       string
	Median        float64
	CILower       float64
	CIUpper       float64
	MatchesPlayed int
	Iterations    int
}

// Engine runs the bootstrap procedure for one scope's match set.
type Engine struct {
	cfg    Config
	logger *slog.Logger
}

// NewEngine creates an Engine. Zero config fields take package defaults.
func NewEngine(cfg Config, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{cfg: cfg.withDefaults(), logger: logger}
}

// Run executes the configured number of bootstrap iterations over the match
// set. Each iteration draws a same-size resample with replacement, shuffles
// it into a fresh random order, and replays it over a base-rated state.
// Iterations are independent and run on a bounded worker pool; iteration i
// owns its own generator seeded with Seed+i, so results are identical for a
// fixed seed regardless of parallelism.
//
// The returned stats carry the median and the 2.5th/97.5th percentile of
// each model's per-iteration ratings, plus the match count taken from the
// original (non-resampled) set. An empty match set yields empty stats and
// no error.
func (e *Engine) Run(ctx context.Context, matches []Match) ([]ModelStats, error) {
	if len(matches) == 0 {
		return nil, nil
	}

	counts := MatchCounts(matches)
	models := make([]string, 0, len(counts))
	for id := range counts {
		models = append(models, id)
	}
	sort.Strings(models)

	iterations := e.cfg.Iterations
	results := make([]map[string]float64, iterations)

	var wg sync.WaitGroup
	sem := make(chan struct{}, e.cfg.MaxParallel)

dispatch:
	for i := 0; i < iterations; i++ {
		if ctx.Err() != nil {
			break dispatch
		}
		select {
		case <-ctx.Done():
			break dispatch
		case sem <- struct{}{}:
		}

		wg.Add(1)
		go func(iter int) {
			defer wg.Done()
			defer func() { <-sem }()
			results[iter] = e.runIteration(iter, matches, models)
		}(i)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("bootstrap cancelled: %w", err)
	}

	return e.aggregate(models, counts, results)
}

// runIteration replays one shuffled resample and returns the final ratings.
func (e *Engine) runIteration(iter int, matches []Match, models []string) map[string]float64 {
	rng := rand.New(rand.NewSource(e.cfg.Seed + int64(iter)))

	resample := make([]Match, len(matches))
	for i := range resample {
		resample[i] = matches[rng.Intn(len(matches))]
	}
	rng.Shuffle(len(resample), func(i, j int) {
		resample[i], resample[j] = resample[j], resample[i]
	})

	state := NewRatings(e.cfg.BaseRating, e.cfg.KFactor)
	// Every model in the scope starts at the base rating even if the
	// resample happens to omit it.
	for _, id := range models {
		state.Rating(id)
	}
	state.ApplyAll(resample)
	return state.Snapshot()
}

// aggregate reduces per-iteration ratings to median and CI per model.
func (e *Engine) aggregate(models []string, counts map[string]int, results []map[string]float64) ([]ModelStats, error) {
	stats := make([]ModelStats, 0, len(models))
	samples := make([]float64, 0, len(results))

	for _, id := range models {
		samples = samples[:0]
		for _, iteration := range results {
			samples = append(samples, iteration[id])
		}
		sort.Float64s(samples)

		s := ModelStats{
			ModelID:       id,
			Median:        percentile(samples, 50),
			CILower:       percentile(samples, 2.5),
			CIUpper:       percentile(samples, 97.5),
			MatchesPlayed: counts[id],
			Iterations:    len(results),
		}
		if !finite(s.Median) || !finite(s.CILower) || !finite(s.CIUpper) {
			return nil, fmt.Errorf("model %s: %w", id, ErrNonFiniteRating)
		}
		stats = append(stats, s)
	}

	// Highest median first; model ID breaks ties deterministically.
	sort.Slice(stats, func(i, j int) bool {
		if stats[i].Median != stats[j].Median {
			return stats[i].Median > stats[j].Median
		}
		return stats[i].ModelID < stats[j].ModelID
	})
	return stats, nil
}

// percentile computes the q-th percentile of sorted samples using linear
// interpolation between closest ranks.
func percentile(sorted []float64, q float64) float64 {
	if len(sorted) == 0 {
		return math.NaN()
	}
	if len(sorted) == 1 {
		return sorted[0]
	}
	pos := q / 100 * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	frac := pos - float64(lo)
	return sorted[lo] + frac*(sorted[hi]-sorted[lo])
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
