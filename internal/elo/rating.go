package elo

import "math"

// Ratings is a running rating per model for one bootstrap iteration. It
// lives for the duration of a single replay and is discarded after the
// final ratings are extracted.
type Ratings struct {
	base    float64
	k       float64
	ratings map[string]float64
}

// NewRatings creates an empty rating state. Models are inserted at the base
// rating on first appearance.
func NewRatings(base, k float64) *Ratings {
	return &Ratings{
		base:    base,
		k:       k,
		ratings: make(map[string]float64),
	}
}

// Rating returns the current rating for a model, inserting it at the base
// rating if absent.
func (r *Ratings) Rating(modelID string) float64 {
	if v, ok := r.ratings[modelID]; ok {
		return v
	}
	r.ratings[modelID] = r.base
	return r.base
}

// expected is the standard Elo expectation for side A given the two
// current ratings: E_A = 1 / (1 + 10^((R_B - R_A)/400)).
func expected(ra, rb float64) float64 {
	return 1.0 / (1.0 + math.Pow(10, (rb-ra)/400.0))
}

// Apply performs one paired Elo update for a match. Both sides move by
// K * (actual - expected); a draw scores 0.5 for each side. Update order
// matters, which is why each bootstrap iteration fixes its own random
// order before replaying.
func (r *Ratings) Apply(m Match) {
	ra := r.Rating(m.ModelA)
	rb := r.Rating(m.ModelB)

	ea := expected(ra, rb)
	eb := 1.0 - ea

	var sa, sb float64
	switch m.Outcome {
	case WinA:
		sa, sb = 1.0, 0.0
	case WinB:
		sa, sb = 0.0, 1.0
	case Draw:
		sa, sb = 0.5, 0.5
	}

	r.ratings[m.ModelA] = ra + r.k*(sa-ea)
	r.ratings[m.ModelB] = rb + r.k*(sb-eb)
}

// ApplyAll replays an ordered sequence of matches.
func (r *Ratings) ApplyAll(matches []Match) {
	for _, m := range matches {
		r.Apply(m)
	}
}

// Snapshot returns the final rating per model.
func (r *Ratings) Snapshot() map[string]float64 {
	out := make(map[string]float64, len(r.ratings))
	for id, v := range r.ratings {
		out[id] = v
	}
	return out
}
