package score

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"
)

// PostgresSource reads eligible scores from PostgreSQL. The validity
// predicate and the excluded-series filter are pushed into SQL so that
// invalid rows never cross the wire.
type PostgresSource struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPostgresSource creates a PostgresSource.
func NewPostgresSource(db *sql.DB, logger *slog.Logger) *PostgresSource {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresSource{db: db, logger: logger}
}

// eligibleScoresQuery joins final, finite scores with their round's scope
// attributes. Series excluded at the definition level do not participate.
const eligibleScoresQuery = `
	SELECT s.round_id, s.model_id, s.series_id, s.accuracy,
	       COALESCE(r.definition_id, ''),
	       EXTRACT(EPOCH FROM r.frequency)::bigint,
	       EXTRACT(EPOCH FROM r.horizon)::bigint,
	       r.end_time
	FROM scores s
	JOIN rounds r ON r.id = s.round_id
	WHERE s.is_final = TRUE
	  AND s.accuracy IS NOT NULL
	  AND s.accuracy != 'NaN'
	  AND s.accuracy != 'Infinity'
	  AND s.accuracy != '-Infinity'
	  AND NOT EXISTS (
	      SELECT 1 FROM excluded_series es
	      WHERE es.definition_id = r.definition_id
	        AND es.series_id = s.series_id
	  )
	ORDER BY s.round_id, s.series_id, s.model_id
`

// EligibleScores returns every valid score with its round's scope attributes.
func (p *PostgresSource) EligibleScores(ctx context.Context) ([]RoundScore, error) {
	rows, err := p.db.QueryContext(ctx, eligibleScoresQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to query eligible scores: %w", err)
	}
	defer rows.Close()

	var scores []RoundScore
	for rows.Next() {
		var (
			rs          RoundScore
			accuracy    float64
			freqSeconds int64
			horSeconds  int64
		)
		if err := rows.Scan(
			&rs.RoundID,
			&rs.ModelID,
			&rs.SeriesID,
			&accuracy,
			&rs.DefinitionID,
			&freqSeconds,
			&horSeconds,
			&rs.RoundEnd,
		); err != nil {
			return nil, fmt.Errorf("failed to scan score row: %w", err)
		}
		rs.Accuracy = &accuracy
		rs.Final = true
		rs.Frequency = time.Duration(freqSeconds) * time.Second
		rs.Horizon = time.Duration(horSeconds) * time.Second

		// SQL already filters non-finite values; this guards against a
		// driver or schema change reintroducing them.
		if !rs.Valid() {
			p.logger.Warn("dropping invalid score that passed the SQL filter",
				slog.String("round_id", rs.RoundID),
				slog.String("model_id", rs.ModelID),
				slog.String("series_id", rs.SeriesID))
			continue
		}
		scores = append(scores, rs)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate score rows: %w", err)
	}

	p.logger.Debug("loaded eligible scores", slog.Int("count", len(scores)))
	return scores, nil
}

// Definitions returns the distinct definition IDs with at least one
// eligible score.
func (p *PostgresSource) Definitions(ctx context.Context) ([]string, error) {
	const query = `
		SELECT DISTINCT r.definition_id
		FROM scores s
		JOIN rounds r ON r.id = s.round_id
		WHERE s.is_final = TRUE
		  AND s.accuracy IS NOT NULL
		  AND r.definition_id IS NOT NULL
		ORDER BY r.definition_id
	`
	rows, err := p.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query definitions: %w", err)
	}
	defer rows.Close()

	var defs []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan definition row: %w", err)
		}
		defs = append(defs, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate definition rows: %w", err)
	}
	return defs, nil
}

// FrequencyHorizons returns the distinct (frequency, horizon) pairs among
// rounds with eligible scores.
func (p *PostgresSource) FrequencyHorizons(ctx context.Context) ([]FrequencyHorizon, error) {
	const query = `
		SELECT DISTINCT EXTRACT(EPOCH FROM r.frequency)::bigint,
		                EXTRACT(EPOCH FROM r.horizon)::bigint
		FROM scores s
		JOIN rounds r ON r.id = s.round_id
		WHERE s.is_final = TRUE
		  AND s.accuracy IS NOT NULL
		  AND r.frequency IS NOT NULL
		  AND r.horizon IS NOT NULL
		ORDER BY 1, 2
	`
	rows, err := p.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query frequency/horizon pairs: %w", err)
	}
	defer rows.Close()

	var pairs []FrequencyHorizon
	for rows.Next() {
		var freqSeconds, horSeconds int64
		if err := rows.Scan(&freqSeconds, &horSeconds); err != nil {
			return nil, fmt.Errorf("failed to scan frequency/horizon row: %w", err)
		}
		pairs = append(pairs, FrequencyHorizon{
			Frequency: time.Duration(freqSeconds) * time.Second,
			Horizon:   time.Duration(horSeconds) * time.Second,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate frequency/horizon rows: %w", err)
	}
	return pairs, nil
}
