// Package score provides the read-only input models for ranking
// calculations: per-round accuracy scores and the evaluation rounds
// they belong to.
package score

import (
	"math"
	"time"
)

// Score is one model's accuracy result for a (round, series) pair.
// Accuracy is an opaque error metric where lower is better. A nil
// Accuracy means the evaluation produced no usable value.
type Score struct {
	RoundID  string   `json:"round_id"`
	ModelID  string   `json:"model_id"`
	SeriesID string   `json:"series_id"`
	Accuracy *float64 `json:"accuracy,omitempty"`
	Final    bool     `json:"final"`
}

// Valid reports whether the score may participate in match construction.
// A score is valid iff it is final and carries a present, finite accuracy
// value. Invalid scores are filtered out, never coerced.
func (s *Score) Valid() bool {
	if !s.Final || s.Accuracy == nil {
		return false
	}
	v := *s.Accuracy
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// Round is one completed evaluation period. DefinitionID may be empty when
// the round is not attached to a challenge definition.
type Round struct {
	ID                string        `json:"id"`
	DefinitionID      string        `json:"definition_id,omitempty"`
	Frequency         time.Duration `json:"frequency"`
	Horizon           time.Duration `json:"horizon"`
	RegistrationStart time.Time     `json:"registration_start"`
	RegistrationEnd   time.Time     `json:"registration_end"`
	EndTime           time.Time     `json:"end_time"`
	Cancelled         bool          `json:"cancelled"`
}

// RoundScore is a valid score joined with the round attributes needed for
// scope partitioning. It is the unit the aggregator filters on.
type RoundScore struct {
	Score
	DefinitionID string        `json:"definition_id,omitempty"`
	Frequency    time.Duration `json:"frequency"`
	Horizon      time.Duration `json:"horizon"`
	RoundEnd     time.Time     `json:"round_end"`
}

// RoundStatus is the lifecycle state of an evaluation round.
type RoundStatus string

// Round lifecycle states, in chronological order except Cancelled,
// which is a manual override that wins over every timestamp.
const (
	StatusAnnounced    RoundStatus = "announced"
	StatusRegistration RoundStatus = "registration"
	StatusActive       RoundStatus = "active"
	StatusCompleted    RoundStatus = "completed"
	StatusCancelled    RoundStatus = "cancelled"
)

// Status derives the effective lifecycle state of a round at the given
// instant from its timestamps and the manual cancellation flag.
//
//	now < registrationStart                     -> announced
//	registrationStart <= now < registrationEnd  -> registration
//	registrationEnd <= now < endTime            -> active
//	endTime <= now                              -> completed
//	cancelled                                   -> cancelled, always
func Status(now, registrationStart, registrationEnd, endTime time.Time, cancelled bool) RoundStatus {
	if cancelled {
		return StatusCancelled
	}
	switch {
	case now.Before(registrationStart):
		return StatusAnnounced
	case now.Before(registrationEnd):
		return StatusRegistration
	case now.Before(endTime):
		return StatusActive
	default:
		return StatusCompleted
	}
}

// Status derives the round's effective status at the given instant.
func (r *Round) Status(now time.Time) RoundStatus {
	return Status(now, r.RegistrationStart, r.RegistrationEnd, r.EndTime, r.Cancelled)
}
