package jobs

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/forecastarena/rankd/internal/scope"
	"github.com/forecastarena/rankd/internal/snapshot"
)

// Default scheduling parameters for the daily job.
const (
	DefaultCheckInterval = 1 * time.Hour
	DefaultRunTimeout    = 30 * time.Minute
)

// DailyJobConfig configures the periodic ranking job.
type DailyJobConfig struct {
	// Interval is how often the job checks whether today's rankings exist.
	Interval time.Duration
	// Timeout bounds a single calculation run.
	Timeout time.Duration
	// Logger for job activity.
	Logger *slog.Logger
}

// DailyJob periodically runs the ranking calculation, at most once per
// calendar day. It checks the global scope's snapshot to decide whether
// today's run already happened, so restarts do not recompute.
type DailyJob struct {
	config DailyJobConfig
	runner *Runner
	store  snapshot.Store

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewDailyJob creates a DailyJob.
func NewDailyJob(config DailyJobConfig, runner *Runner, store snapshot.Store) *DailyJob {
	if config.Interval == 0 {
		config.Interval = DefaultCheckInterval
	}
	if config.Timeout == 0 {
		config.Timeout = DefaultRunTimeout
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	return &DailyJob{
		config: config,
		runner: runner,
		store:  store,
	}
}

// Start begins the periodic job. Returns immediately; the job runs in a
// background goroutine. An immediate check happens on start so a fresh
// deployment does not wait a full interval for its first run.
func (j *DailyJob) Start(ctx context.Context) error {
	j.mu.Lock()
	if j.running {
		j.mu.Unlock()
		return nil
	}
	j.running = true
	j.stopCh = make(chan struct{})
	j.doneCh = make(chan struct{})
	j.mu.Unlock()

	go j.run(ctx)
	return nil
}

// Stop signals the job to stop and waits for it to finish.
func (j *DailyJob) Stop() {
	j.mu.Lock()
	if !j.running {
		j.mu.Unlock()
		return
	}
	stopCh := j.stopCh
	doneCh := j.doneCh
	j.mu.Unlock()

	close(stopCh)
	<-doneCh

	j.mu.Lock()
	j.running = false
	j.mu.Unlock()
}

// IsRunning returns whether the job loop is active.
func (j *DailyJob) IsRunning() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.running
}

// run is the main loop.
func (j *DailyJob) run(ctx context.Context) {
	defer close(j.doneCh)

	j.runOnceIfDue(ctx)

	ticker := time.NewTicker(j.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			j.config.Logger.Info("daily ranking job stopping due to context cancellation")
			return
		case <-j.stopCh:
			j.config.Logger.Info("daily ranking job stopping due to stop signal")
			return
		case <-ticker.C:
			j.runOnceIfDue(ctx)
		}
	}
}

// runOnceIfDue runs today's calculation unless a snapshot already exists.
func (j *DailyJob) runOnceIfDue(parentCtx context.Context) {
	today := time.Now().UTC().Truncate(24 * time.Hour)

	ctx, cancel := context.WithTimeout(parentCtx, j.config.Timeout)
	defer cancel()

	done, err := j.store.HasSnapshot(ctx, scope.Global(), today)
	if err != nil {
		j.config.Logger.Error("failed to check for today's snapshot",
			slog.String("error", err.Error()))
		return
	}
	if done {
		j.config.Logger.Debug("rankings already calculated today",
			slog.Time("date", today))
		return
	}

	if _, err := j.runner.Run(ctx, today); err != nil {
		j.config.Logger.Error("daily ranking run failed",
			slog.String("error", err.Error()))
	}
}
