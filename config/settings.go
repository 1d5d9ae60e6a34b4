// Package config provides simulator settings loaded from environment variables.
//
// Settings are created via New() which handles:
// - Environment variable parsing with validation
// - Default value application
// - Resolution mode lookup

package config

import (
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"strconv"
	"strings"

	"github.com/richinex/cutsim/model"
)

// Settings holds all application configuration.
type Settings struct {
	Simulation SimulationConfig
	Cache      CacheConfig
	Journal    string // journal database path, empty disables journaling
	LogLevel   slog.Level
}

// SimulationConfig holds tool path and surface computation settings.
type SimulationConfig struct {
	Threads        int
	RapidFeed      float64 // mm/min
	ResolutionMode model.ResolutionMode
	ReduceFactor   float64
}

// CacheConfig holds surface cache settings.
type CacheConfig struct {
	MemoryEntries int // 0 disables the memory tier
	Write         bool
	Compress      bool
}

// Defaults.
const (
	DefaultRapidFeed     = 10000.0
	DefaultReduceFactor  = 2.0
	DefaultMemoryEntries = 16
	DefaultJournal       = ".cutsim/journal.db"
)

// DefaultSimulation returns simulation settings without reading the environment.
func DefaultSimulation() SimulationConfig {
	return SimulationConfig{
		Threads:        runtime.NumCPU(),
		RapidFeed:      DefaultRapidFeed,
		ResolutionMode: model.ResolutionMedium,
		ReduceFactor:   DefaultReduceFactor,
	}
}

// New loads settings from environment variables.
// Returns an error naming the variable if any value is invalid.
func New() (Settings, error) {
	threads, err := getEnvInt("CUTSIM_THREADS", runtime.NumCPU())
	if err != nil {
		return Settings{}, err
	}
	if threads < 1 {
		return Settings{}, fmt.Errorf("invalid value for CUTSIM_THREADS: %d: must be at least 1", threads)
	}

	rapid, err := getEnvFloat64("CUTSIM_RAPID_FEED", DefaultRapidFeed)
	if err != nil {
		return Settings{}, err
	}
	if rapid <= 0 {
		return Settings{}, fmt.Errorf("invalid value for CUTSIM_RAPID_FEED: %g: must be positive", rapid)
	}

	mode, err := model.ParseResolutionMode(os.Getenv("CUTSIM_RESOLUTION_MODE"))
	if err != nil {
		return Settings{}, fmt.Errorf("invalid value for CUTSIM_RESOLUTION_MODE: %w", err)
	}

	factor, err := getEnvFloat64("CUTSIM_REDUCE_FACTOR", DefaultReduceFactor)
	if err != nil {
		return Settings{}, err
	}
	if factor <= 0 {
		return Settings{}, fmt.Errorf("invalid value for CUTSIM_REDUCE_FACTOR: %g: must be positive", factor)
	}

	entries, err := getEnvInt("CUTSIM_MEMORY_CACHE", DefaultMemoryEntries)
	if err != nil {
		return Settings{}, err
	}
	if entries < 0 {
		return Settings{}, fmt.Errorf("invalid value for CUTSIM_MEMORY_CACHE: %d: must not be negative", entries)
	}

	write, err := getEnvBool("CUTSIM_CACHE_WRITE", false)
	if err != nil {
		return Settings{}, err
	}

	compress, err := getEnvBool("CUTSIM_CACHE_COMPRESS", true)
	if err != nil {
		return Settings{}, err
	}

	level, err := getEnvLevel("CUTSIM_LOG_LEVEL", slog.LevelInfo)
	if err != nil {
		return Settings{}, err
	}

	journal, ok := os.LookupEnv("CUTSIM_JOURNAL")
	if !ok {
		journal = DefaultJournal
	}

	return Settings{
		Simulation: SimulationConfig{
			Threads:        threads,
			RapidFeed:      rapid,
			ResolutionMode: mode,
			ReduceFactor:   factor,
		},
		Cache: CacheConfig{
			MemoryEntries: entries,
			Write:         write,
			Compress:      compress,
		},
		Journal:  journal,
		LogLevel: level,
	}, nil
}

// MustNew loads settings from environment variables.
// Panics if environment variables are invalid.
// Use this only when configuration errors should be fatal.
func MustNew() Settings {
	settings, err := New()
	if err != nil {
		panic(fmt.Sprintf("config: %v", err))
	}
	return settings
}

// Environment variable helpers with proper error handling

func getEnvInt(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	i, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("invalid value for %s: %q: %w", key, val, err)
	}
	return i, nil
}

func getEnvFloat64(key string, defaultVal float64) (float64, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	f, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid value for %s: %q: %w", key, val, err)
	}
	return f, nil
}

func getEnvBool(key string, defaultVal bool) (bool, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return false, fmt.Errorf("invalid value for %s: %q: %w", key, val, err)
	}
	return b, nil
}

func getEnvLevel(key string, defaultVal slog.Level) (slog.Level, error) {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return defaultVal, nil
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(val)); err != nil {
		return 0, fmt.Errorf("invalid value for %s: %q: %w", key, val, err)
	}
	return level, nil
}
