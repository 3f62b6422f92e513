package snapshot

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/forecastarena/rankd/internal/scope"
)

// ErrUpsertExhausted is returned when a snapshot batch still fails after
// all retry attempts.
var ErrUpsertExhausted = errors.New("snapshot upsert retries exhausted")

// PostgresStore implements Store on PostgreSQL. Writes are scoped upserts
// keyed by (calculation_date, model_id, scope_type, scope_id), so reruns
// for the same date replace rows idempotently and runs for different dates
// never conflict.
type PostgresStore struct {
	db       *sql.DB
	attempts int
	logger   *slog.Logger

	mu  sync.Mutex
	rng *rand.Rand // protected by mu, jitters retry delays
}

// NewPostgresStore creates a PostgresStore. attempts <= 0 falls back to
// DefaultRetryAttempts.
func NewPostgresStore(db *sql.DB, attempts int, logger *slog.Logger) *PostgresStore {
	if attempts <= 0 {
		attempts = DefaultRetryAttempts
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresStore{
		db:       db,
		attempts: attempts,
		logger:   logger,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

const upsertQuery = `
	INSERT INTO daily_rankings
		(calculation_date, model_id, scope_type, scope_id,
		 rating_median, ci_lower, ci_upper,
		 matches_played, rank_position, n_bootstraps, calculated_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	ON CONFLICT (calculation_date, model_id, scope_type, scope_id)
	DO UPDATE SET
		rating_median  = EXCLUDED.rating_median,
		ci_lower       = EXCLUDED.ci_lower,
		ci_upper       = EXCLUDED.ci_upper,
		matches_played = EXCLUDED.matches_played,
		rank_position  = EXCLUDED.rank_position,
		n_bootstraps   = EXCLUDED.n_bootstraps,
		calculated_at  = EXCLUDED.calculated_at
`

// UpsertBatch writes one scope's rows in a single transaction, retrying
// the whole batch with exponential backoff on failure. The transaction
// makes each scope's write an atomic replace: a failed batch leaves the
// prior snapshot for that scope and date untouched.
func (s *PostgresStore) UpsertBatch(ctx context.Context, snapshots []RankingSnapshot) error {
	if len(snapshots) == 0 {
		return nil
	}

	var lastErr error
	for attempt := 0; attempt < s.attempts; attempt++ {
		if attempt > 0 {
			delay := s.nextBackoff(attempt - 1)
			s.logger.Warn("retrying snapshot upsert",
				slog.Int("attempt", attempt+1),
				slog.Duration("delay", delay),
				slog.String("error", lastErr.Error()))
			select {
			case <-ctx.Done():
				return fmt.Errorf("snapshot upsert cancelled: %w", ctx.Err())
			case <-time.After(delay):
			}
		}

		lastErr = s.upsertOnce(ctx, snapshots)
		if lastErr == nil {
			return nil
		}
		if ctx.Err() != nil {
			return fmt.Errorf("snapshot upsert cancelled: %w", ctx.Err())
		}
	}
	return fmt.Errorf("%w after %d attempts: %v", ErrUpsertExhausted, s.attempts, lastErr)
}

// upsertOnce performs one transactional batch write.
func (s *PostgresStore) upsertOnce(ctx context.Context, snapshots []RankingSnapshot) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			s.logger.Warn("failed to rollback transaction",
				slog.String("error", err.Error()))
		}
	}()

	stmt, err := tx.PrepareContext(ctx, upsertQuery)
	if err != nil {
		return fmt.Errorf("failed to prepare upsert: %w", err)
	}
	defer stmt.Close()

	for i := range snapshots {
		r := &snapshots[i]
		if _, err := stmt.ExecContext(ctx,
			r.CalculationDate,
			r.ModelID,
			string(r.ScopeType),
			r.ScopeID,
			r.RatingMedian,
			r.CILower,
			r.CIUpper,
			r.MatchesPlayed,
			r.RankPosition,
			r.NBootstraps,
			r.CalculatedAt,
		); err != nil {
			return fmt.Errorf("failed to upsert snapshot for model %s: %w", r.ModelID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit snapshot batch: %w", err)
	}

	s.logger.Debug("snapshot batch written", slog.Int("rows", len(snapshots)))
	return nil
}

const snapshotColumns = `
	calculation_date, model_id, scope_type, scope_id,
	rating_median, ci_lower, ci_upper,
	matches_played, rank_position, n_bootstraps, calculated_at
`

// Leaderboard returns the rows for a (scope, date) ordered by rank
// position. A zero date selects the most recent calculation for the scope.
func (s *PostgresStore) Leaderboard(ctx context.Context, key scope.Key, date time.Time) ([]RankingSnapshot, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if date.IsZero() {
		query := `
			SELECT ` + snapshotColumns + `
			FROM daily_rankings
			WHERE scope_type = $1 AND scope_id = $2
			  AND calculation_date = (
			      SELECT MAX(calculation_date) FROM daily_rankings
			      WHERE scope_type = $1 AND scope_id = $2
			  )
			ORDER BY rank_position
		`
		rows, err = s.db.QueryContext(ctx, query, string(key.Type()), key.ID())
	} else {
		query := `
			SELECT ` + snapshotColumns + `
			FROM daily_rankings
			WHERE scope_type = $1 AND scope_id = $2 AND calculation_date = $3
			ORDER BY rank_position
		`
		rows, err = s.db.QueryContext(ctx, query, string(key.Type()), key.ID(), date)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query leaderboard: %w", err)
	}
	defer rows.Close()

	return scanSnapshots(rows)
}

// ModelHistory returns one model's snapshots in one scope, oldest first.
func (s *PostgresStore) ModelHistory(ctx context.Context, modelID string, key scope.Key) ([]RankingSnapshot, error) {
	query := `
		SELECT ` + snapshotColumns + `
		FROM daily_rankings
		WHERE model_id = $1 AND scope_type = $2 AND scope_id = $3
		ORDER BY calculation_date
	`
	rows, err := s.db.QueryContext(ctx, query, modelID, string(key.Type()), key.ID())
	if err != nil {
		return nil, fmt.Errorf("failed to query model history: %w", err)
	}
	defer rows.Close()

	return scanSnapshots(rows)
}

// HasSnapshot reports whether the scope already has rows for a date.
func (s *PostgresStore) HasSnapshot(ctx context.Context, key scope.Key, date time.Time) (bool, error) {
	const query = `
		SELECT 1 FROM daily_rankings
		WHERE scope_type = $1 AND scope_id = $2 AND calculation_date = $3
		LIMIT 1
	`
	var one int
	err := s.db.QueryRowContext(ctx, query, string(key.Type()), key.ID(), date).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check for existing snapshot: %w", err)
	}
	return true, nil
}

// scanSnapshots reads snapshot rows from a result set.
func scanSnapshots(rows *sql.Rows) ([]RankingSnapshot, error) {
	var snapshots []RankingSnapshot
	for rows.Next() {
		var (
			r         RankingSnapshot
			scopeType string
		)
		if err := rows.Scan(
			&r.CalculationDate,
			&r.ModelID,
			&scopeType,
			&r.ScopeID,
			&r.RatingMedian,
			&r.CILower,
			&r.CIUpper,
			&r.MatchesPlayed,
			&r.RankPosition,
			&r.NBootstraps,
			&r.CalculatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan snapshot row: %w", err)
		}
		r.ScopeType = scope.Type(scopeType)
		snapshots = append(snapshots, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate snapshot rows: %w", err)
	}
	return snapshots, nil
}

// nextBackoff returns the jittered delay before the given retry attempt.
func (s *PostgresStore) nextBackoff(attempt int) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return computeBackoff(attempt, s.rng)
}
