package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/forecastarena/rankd/internal/elo"
	"github.com/forecastarena/rankd/internal/scope"
	"github.com/forecastarena/rankd/internal/snapshot"
)

// ErrAllScopesFailed is returned when no scope produced a successful
// result during a run.
var ErrAllScopesFailed = errors.New("all ranking scopes failed")

// RunReport summarizes one ranking calculation run.
type RunReport struct {
	RunID            string
	Date             time.Time
	ScopesTotal      int
	ScopesCompleted  int
	ScopesEmpty      int
	ScopesFailed     int
	SnapshotsWritten int
	Duration         time.Duration
}

// Runner executes one ranking calculation run: fan out over scopes, rank
// the successful ones, and persist their snapshots. Per-scope failures are
// isolated: a failed scope is logged and counted, its snapshot write is
// withheld, and computation of the remaining scopes continues.
type Runner struct {
	aggregator *scope.Aggregator
	store      snapshot.Store
	minMatches int
	logger     *slog.Logger
	metrics    *Metrics

	// now is injectable for deterministic calculated_at values in tests.
	now func() time.Time
}

// NewRunner creates a Runner. minMatches is the minimum number of matches a
// model needs in a scope to appear in that scope's snapshot; values below 1
// are treated as 1.
func NewRunner(aggregator *scope.Aggregator, store snapshot.Store, minMatches int, metrics *Metrics, logger *slog.Logger) *Runner {
	if minMatches < 1 {
		minMatches = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		aggregator: aggregator,
		store:      store,
		minMatches: minMatches,
		metrics:    metrics,
		logger:     logger,
		now:        time.Now,
	}
}

// Run computes and persists rankings for every scope as of the given date.
// It returns a non-nil report whenever any scope was attempted. The error
// is non-nil only when the run as a whole failed: the initial consistent
// read failed, the context was cancelled, or every scope failed.
func (r *Runner) Run(ctx context.Context, date time.Time) (*RunReport, error) {
	runID := uuid.NewString()
	start := r.now()
	logger := r.logger.With(slog.String("run_id", runID))

	logger.Info("ranking run starting", slog.Time("calculation_date", date))

	results, aggErr := r.aggregator.ComputeAll(ctx)
	if aggErr != nil && len(results) == 0 {
		r.recordRun(StatusFailure, start)
		return nil, fmt.Errorf("ranking run %s: %w", runID, aggErr)
	}

	report := &RunReport{
		RunID:       runID,
		Date:        date,
		ScopesTotal: len(results),
	}

	calculatedAt := r.now().UTC()
	for _, res := range results {
		switch {
		case res.Err != nil:
			report.ScopesFailed++
			reason := ReasonComputeFailed
			if errors.Is(res.Err, elo.ErrNonFiniteRating) {
				reason = ReasonNonFinite
			}
			if r.metrics != nil {
				r.metrics.IncScopeErrors(string(res.Key.Type()), reason)
			}
			logger.Error("scope failed, snapshot withheld",
				slog.String("scope", res.Key.String()),
				slog.String("error", res.Err.Error()))

		case len(res.Stats) == 0:
			report.ScopesEmpty++

		default:
			rows := snapshot.Rank(res.Key, res.Stats, date, r.minMatches, calculatedAt)
			if err := r.store.UpsertBatch(ctx, rows); err != nil {
				report.ScopesFailed++
				if r.metrics != nil {
					r.metrics.IncScopeErrors(string(res.Key.Type()), ReasonPersistFailed)
				}
				logger.Error("scope snapshot write failed",
					slog.String("scope", res.Key.String()),
					slog.String("error", err.Error()))
				continue
			}
			report.ScopesCompleted++
			report.SnapshotsWritten += len(rows)
		}
	}

	report.Duration = r.now().Sub(start)

	status := StatusSuccess
	switch {
	case report.ScopesCompleted == 0 && report.ScopesFailed > 0:
		status = StatusFailure
	case report.ScopesFailed > 0:
		status = StatusPartial
	}
	r.recordRun(status, start)
	if r.metrics != nil {
		r.metrics.SetLastRun(float64(r.now().Unix()), float64(report.SnapshotsWritten))
	}

	logger.Info("ranking run complete",
		slog.String("status", status),
		slog.Int("scopes_total", report.ScopesTotal),
		slog.Int("scopes_completed", report.ScopesCompleted),
		slog.Int("scopes_empty", report.ScopesEmpty),
		slog.Int("scopes_failed", report.ScopesFailed),
		slog.Int("snapshots_written", report.SnapshotsWritten),
		slog.Duration("duration", report.Duration))

	if aggErr != nil {
		// Cancelled between scopes: completed scopes are already written.
		return report, fmt.Errorf("ranking run %s interrupted: %w", runID, aggErr)
	}
	if status == StatusFailure {
		return report, fmt.Errorf("ranking run %s: %w", runID, ErrAllScopesFailed)
	}
	return report, nil
}

// recordRun updates the run-level metrics.
func (r *Runner) recordRun(status string, start time.Time) {
	if r.metrics == nil {
		return
	}
	r.metrics.IncRunsTotal(status)
	r.metrics.ObserveRunDuration(r.now().Sub(start).Seconds())
}
