// Package scope partitions scores by ranking scope and drives one
// independent bootstrap computation per scope.
package scope

import (
	"fmt"
	"time"

	"github.com/forecastarena/rankd/internal/score"
)

// Type identifies the kind of scope a ranking is computed for.
type Type string

// Scope types, matching the persisted scope_type column values.
const (
	TypeGlobal           Type = "global"
	TypeDefinition       Type = "definition"
	TypeFrequencyHorizon Type = "frequency_horizon"
)

// Key is a tagged scope identifier: platform-wide, one challenge
// definition, or one (frequency, horizon) bucket. It replaces the source
// system's NULL-means-global and "frequency::horizon" string sentinels
// with an explicit variant; only the persisted ID keeps the string form.
type Key struct {
	scopeType    Type
	definitionID string
	frequency    time.Duration
	horizon      time.Duration
}

// Global returns the platform-wide scope.
func Global() Key {
	return Key{scopeType: TypeGlobal}
}

// Definition returns the scope for one challenge definition.
func Definition(id string) Key {
	return Key{scopeType: TypeDefinition, definitionID: id}
}

// FrequencyHorizon returns the scope for one (frequency, horizon) bucket.
func FrequencyHorizon(frequency, horizon time.Duration) Key {
	return Key{scopeType: TypeFrequencyHorizon, frequency: frequency, horizon: horizon}
}

// Type returns the scope type tag.
func (k Key) Type() Type {
	return k.scopeType
}

// ID returns the persisted scope identifier: empty for global, the
// definition ID, or "frequency::horizon".
func (k Key) ID() string {
	switch k.scopeType {
	case TypeDefinition:
		return k.definitionID
	case TypeFrequencyHorizon:
		return fmt.Sprintf("%s::%s", k.frequency, k.horizon)
	default:
		return ""
	}
}

// String renders the key for logging.
func (k Key) String() string {
	if k.scopeType == TypeGlobal {
		return string(TypeGlobal)
	}
	return fmt.Sprintf("%s/%s", k.scopeType, k.ID())
}

// Matches reports whether a score belongs to this scope. Global accepts
// everything; the other scopes match on the round's attributes.
func (k Key) Matches(s *score.RoundScore) bool {
	switch k.scopeType {
	case TypeGlobal:
		return true
	case TypeDefinition:
		return s.DefinitionID == k.definitionID
	case TypeFrequencyHorizon:
		return s.Frequency == k.frequency && s.Horizon == k.horizon
	default:
		return false
	}
}
