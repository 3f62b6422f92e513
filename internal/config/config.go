// Package config provides configuration loading and validation for the
// ranking engine. It uses koanf to merge environment variables with
// optional file overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Config holds all configuration values for the ranking engine.
type Config struct {
	// Database
	DatabaseURL string `koanf:"database_url"`

	// Bootstrap parameters
	NBootstraps int      `koanf:"n_bootstraps"`
	KFactor     float64  `koanf:"k_factor"`
	BaseRating  float64  `koanf:"base_rating"`
	RandomSeed  *int64   `koanf:"random_seed"` // nil means derive from wall clock

	// Ranking
	MinMatchesForRanking int `koanf:"min_matches_for_ranking"`

	// Concurrency
	MaxConcurrentScopes     int `koanf:"max_concurrent_scopes"`
	MaxConcurrentIterations int `koanf:"max_concurrent_iterations"`

	// Persistence
	SnapshotRetryAttempts int `koanf:"snapshot_retry_attempts"`

	// Logging
	LogLevel string `koanf:"log_level"`
}

// Configuration validation errors.
var (
	ErrMissingDatabaseURL   = errors.New("DATABASE_URL is required")
	ErrInvalidNBootstraps   = errors.New("RANKD_N_BOOTSTRAPS must be a positive integer")
	ErrInvalidKFactor       = errors.New("RANKD_K_FACTOR must be positive")
	ErrInvalidBaseRating    = errors.New("RANKD_BASE_RATING must be positive")
	ErrInvalidMinMatches    = errors.New("RANKD_MIN_MATCHES_FOR_RANKING must be at least 1")
	ErrInvalidRetryAttempts = errors.New("RANKD_SNAPSHOT_RETRY_ATTEMPTS must be at least 1")
	ErrInvalidIntValue      = errors.New("value must be a valid integer")
)

// Default values for non-secret configuration. The bootstrap count default
// is 500; the legacy value of 100 from older deployments is an ordinary
// accepted setting, not a special case.
const (
	DefaultNBootstraps           = 500
	DefaultKFactor               = 32.0
	DefaultBaseRating            = 1000.0
	DefaultMinMatchesForRanking  = 1
	DefaultMaxConcurrentScopes   = 4
	DefaultSnapshotRetryAttempts = 3
	DefaultLogLevel              = "info"
)

// Load reads configuration from environment variables and an optional
// config file. Environment variables take precedence over file values.
// Returns the loaded config and a slice of validation errors (empty if
// valid). If a config file path is provided and the file cannot be loaded,
// an error is returned.
func Load(configFilePath string) (*Config, []error) {
	k := koanf.New(".")
	var loadErrs []error

	// Load from YAML file first if provided (lower precedence)
	if configFilePath != "" {
		if err := k.Load(file.Provider(configFilePath), yaml.Parser()); err != nil {
			return nil, []error{fmt.Errorf("failed to load config file %s: %w", configFilePath, err)}
		}
	}

	nBootstraps, err := getEnvIntOrDefault("RANKD_N_BOOTSTRAPS", k.Int("n_bootstraps"), DefaultNBootstraps)
	if err != nil {
		loadErrs = append(loadErrs, err)
	}
	minMatches, err := getEnvIntOrDefault("RANKD_MIN_MATCHES_FOR_RANKING", k.Int("min_matches_for_ranking"), DefaultMinMatchesForRanking)
	if err != nil {
		loadErrs = append(loadErrs, err)
	}
	maxScopes, err := getEnvIntOrDefault("RANKD_MAX_CONCURRENT_SCOPES", k.Int("max_concurrent_scopes"), DefaultMaxConcurrentScopes)
	if err != nil {
		loadErrs = append(loadErrs, err)
	}
	maxIterations, err := getEnvIntOrDefault("RANKD_MAX_CONCURRENT_ITERATIONS", k.Int("max_concurrent_iterations"), 0)
	if err != nil {
		loadErrs = append(loadErrs, err)
	}
	retryAttempts, err := getEnvIntOrDefault("RANKD_SNAPSHOT_RETRY_ATTEMPTS", k.Int("snapshot_retry_attempts"), DefaultSnapshotRetryAttempts)
	if err != nil {
		loadErrs = append(loadErrs, err)
	}
	kFactor, err := getEnvFloatOrDefault("RANKD_K_FACTOR", k.Float64("k_factor"), DefaultKFactor)
	if err != nil {
		loadErrs = append(loadErrs, err)
	}
	baseRating, err := getEnvFloatOrDefault("RANKD_BASE_RATING", k.Float64("base_rating"), DefaultBaseRating)
	if err != nil {
		loadErrs = append(loadErrs, err)
	}
	seed, err := getEnvSeed("RANKD_RANDOM_SEED", k)
	if err != nil {
		loadErrs = append(loadErrs, err)
	}

	cfg := &Config{
		DatabaseURL:             getEnvOrKoanf("DATABASE_URL", k, "database_url"),
		NBootstraps:             nBootstraps,
		KFactor:                 kFactor,
		BaseRating:              baseRating,
		RandomSeed:              seed,
		MinMatchesForRanking:    minMatches,
		MaxConcurrentScopes:     maxScopes,
		MaxConcurrentIterations: maxIterations,
		SnapshotRetryAttempts:   retryAttempts,
		LogLevel:                getEnvOrDefault("RANKD_LOG_LEVEL", k.String("log_level"), DefaultLogLevel),
	}

	errs := cfg.Validate()
	errs = append(loadErrs, errs...)

	return cfg, errs
}

// getEnvOrKoanf returns the environment variable value if set, otherwise
// the koanf value.
func getEnvOrKoanf(envKey string, k *koanf.Koanf, koanfKey string) string {
	if val := os.Getenv(envKey); val != "" {
		return val
	}
	return k.String(koanfKey)
}

// getEnvOrDefault returns the environment variable value if set, otherwise
// the koanf value, or default.
func getEnvOrDefault(envKey string, koanfVal string, defaultVal string) string {
	if val := os.Getenv(envKey); val != "" {
		return val
	}
	if koanfVal != "" {
		return koanfVal
	}
	return defaultVal
}

// getEnvIntOrDefault returns the environment variable as int if set,
// otherwise the koanf value, or default. Returns an error if the
// environment variable is set but cannot be parsed as an integer.
func getEnvIntOrDefault(envKey string, koanfVal int, defaultVal int) (int, error) {
	if val := os.Getenv(envKey); val != "" {
		i, err := strconv.Atoi(val)
		if err != nil {
			return 0, fmt.Errorf("%s: %w", envKey, ErrInvalidIntValue)
		}
		return i, nil
	}
	if koanfVal != 0 {
		return koanfVal, nil
	}
	return defaultVal, nil
}

// getEnvFloatOrDefault returns the environment variable as float64 if set,
// otherwise the koanf value, or default.
func getEnvFloatOrDefault(envKey string, koanfVal float64, defaultVal float64) (float64, error) {
	if val := os.Getenv(envKey); val != "" {
		f, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return 0, fmt.Errorf("%s must be a valid float: %w", envKey, err)
		}
		return f, nil
	}
	if koanfVal != 0 {
		return koanfVal, nil
	}
	return defaultVal, nil
}

// getEnvSeed parses the optional random seed. Absent everywhere means nil,
// which lets the engine seed from the wall clock.
func getEnvSeed(envKey string, k *koanf.Koanf) (*int64, error) {
	if val := os.Getenv(envKey); val != "" {
		i, err := strconv.ParseInt(val, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", envKey, ErrInvalidIntValue)
		}
		return &i, nil
	}
	if k.Exists("random_seed") {
		i := k.Int64("random_seed")
		return &i, nil
	}
	return nil, nil
}

// Validate checks that all configuration values are usable.
// Returns a slice of validation errors (empty if valid).
func (c *Config) Validate() []error {
	var errs []error

	if c.DatabaseURL == "" {
		errs = append(errs, ErrMissingDatabaseURL)
	}
	if c.NBootstraps < 1 {
		errs = append(errs, ErrInvalidNBootstraps)
	}
	if c.KFactor <= 0 {
		errs = append(errs, ErrInvalidKFactor)
	}
	if c.BaseRating <= 0 {
		errs = append(errs, ErrInvalidBaseRating)
	}
	if c.MinMatchesForRanking < 1 {
		errs = append(errs, ErrInvalidMinMatches)
	}
	if c.SnapshotRetryAttempts < 1 {
		errs = append(errs, ErrInvalidRetryAttempts)
	}

	return errs
}

// LogSummary returns a summary of the configuration suitable for logging.
// The database URL password is masked to prevent accidental exposure.
func (c *Config) LogSummary() map[string]string {
	seed := "<from clock>"
	if c.RandomSeed != nil {
		seed = strconv.FormatInt(*c.RandomSeed, 10)
	}
	return map[string]string{
		"database_url":              maskDatabaseURL(c.DatabaseURL),
		"n_bootstraps":              strconv.Itoa(c.NBootstraps),
		"k_factor":                  fmt.Sprintf("%g", c.KFactor),
		"base_rating":               fmt.Sprintf("%g", c.BaseRating),
		"random_seed":               seed,
		"min_matches_for_ranking":   strconv.Itoa(c.MinMatchesForRanking),
		"max_concurrent_scopes":     strconv.Itoa(c.MaxConcurrentScopes),
		"max_concurrent_iterations": strconv.Itoa(c.MaxConcurrentIterations),
		"snapshot_retry_attempts":   strconv.Itoa(c.SnapshotRetryAttempts),
		"log_level":                 c.LogLevel,
	}
}

// maskDatabaseURL masks the password in a database URL.
// Supports both postgres:// and postgresql:// schemes.
func maskDatabaseURL(s string) string {
	if s == "" {
		return "<not set>"
	}

	schemeEnd := strings.Index(s, "://")
	if schemeEnd == -1 {
		return "****"
	}

	rest := s[schemeEnd+3:]
	atIndex := strings.Index(rest, "@")
	if atIndex == -1 {
		return s // No credentials in URL
	}

	colonIndex := strings.Index(rest[:atIndex], ":")
	if colonIndex == -1 {
		return s // No password (only username)
	}

	scheme := s[:schemeEnd+3]
	user := rest[:colonIndex]
	hostAndPath := rest[atIndex:]

	return scheme + user + ":****" + hostAndPath
}
