package strata

import (
	"log/slog"
	"time"
)

// Config configures the Strata engine. The core never reads files or
// environment variables; callers construct a Config once at startup and pass
// it into New.
type Config struct {
	// DBPath is the path to the local SQLite database holding facts,
	// episodes, and deduplication records.
	DBPath string

	// VectorDir persists the chunk index under this directory. Empty keeps
	// the index in memory, so chunks do not survive a restart.
	VectorDir string

	// MinFactConfidence filters facts below this confidence at read time
	// and rejects candidates below it at write time. Defaults to 0.7.
	MinFactConfidence float64

	// MinEpisodeConfidence is the episode quality floor. Defaults to 0.6.
	MinEpisodeConfidence float64

	// MinChunkScore drops retrieved chunks below this similarity score.
	// Defaults to 0.2.
	MinChunkScore float64

	// NumExpansions caps query expansion variants. Defaults to 3.
	NumExpansions int

	// DedupWindowDays is the reinforcement window for learning candidates.
	// A candidate accepted strictly more than this many days ago is treated
	// as a fresh acceptance. Defaults to 7.
	DedupWindowDays int

	// AnalyzerWorkers bounds the async analysis pool. Defaults to 2.
	AnalyzerWorkers int

	// DailyTokenBudget caps extraction work per calendar day, measured in
	// whitespace-delimited tokens of analyzed text. Zero disables the gate.
	DailyTokenBudget int

	// StoreTimeout bounds every store read/write. Defaults to 5s.
	StoreTimeout time.Duration

	// EmbedTimeout bounds every embedding call. Defaults to 10s.
	EmbedTimeout time.Duration

	// ToolTimeout bounds a dispatched tool call end to end. Defaults to 30s.
	ToolTimeout time.Duration

	// ToolAllowLists restricts tool names per adapter ID. An adapter with no
	// entry may call every registered tool.
	ToolAllowLists map[string][]string

	// EmbedCacheEntries sizes the embedding cache. Zero disables caching.
	EmbedCacheEntries int64

	// Logger receives structured logs. Defaults to slog.Default().
	Logger *slog.Logger
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		DBPath:               "./data/strata.db",
		MinFactConfidence:    DefaultMinFactConfidence,
		MinEpisodeConfidence: DefaultMinEpisodeConfidence,
		MinChunkScore:        0.2,
		NumExpansions:        3,
		DedupWindowDays:      7,
		AnalyzerWorkers:      2,
		StoreTimeout:         5 * time.Second,
		EmbedTimeout:         10 * time.Second,
		ToolTimeout:          30 * time.Second,
		EmbedCacheEntries:    4096,
	}
}

// Validate checks the configuration for errors.
// Returns *ValidationError for invalid fields.
func (c *Config) Validate() error {
	if c.DBPath == "" {
		return &ValidationError{Field: "DBPath", Message: "required: path to SQLite database"}
	}
	if c.MinFactConfidence < ConfidenceMin || c.MinFactConfidence > ConfidenceMax {
		return &ValidationError{Field: "MinFactConfidence", Message: "must be in [0, 1]"}
	}
	if c.MinEpisodeConfidence < ConfidenceMin || c.MinEpisodeConfidence > ConfidenceMax {
		return &ValidationError{Field: "MinEpisodeConfidence", Message: "must be in [0, 1]"}
	}
	if c.NumExpansions < 1 {
		return &ValidationError{Field: "NumExpansions", Message: "must be at least 1"}
	}
	if c.DedupWindowDays < 1 {
		return &ValidationError{Field: "DedupWindowDays", Message: "must be at least 1"}
	}
	if c.AnalyzerWorkers < 1 {
		return &ValidationError{Field: "AnalyzerWorkers", Message: "must be at least 1"}
	}
	if c.DailyTokenBudget < 0 {
		return &ValidationError{Field: "DailyTokenBudget", Message: "must be non-negative"}
	}
	return nil
}

// WithDefaults fills in default values for unset fields.
func (c Config) WithDefaults() Config {
	defaults := DefaultConfig()

	if c.DBPath == "" {
		c.DBPath = defaults.DBPath
	}
	if c.MinFactConfidence == 0 {
		c.MinFactConfidence = defaults.MinFactConfidence
	}
	if c.MinEpisodeConfidence == 0 {
		c.MinEpisodeConfidence = defaults.MinEpisodeConfidence
	}
	if c.MinChunkScore == 0 {
		c.MinChunkScore = defaults.MinChunkScore
	}
	if c.NumExpansions == 0 {
		c.NumExpansions = defaults.NumExpansions
	}
	if c.DedupWindowDays == 0 {
		c.DedupWindowDays = defaults.DedupWindowDays
	}
	if c.AnalyzerWorkers == 0 {
		c.AnalyzerWorkers = defaults.AnalyzerWorkers
	}
	if c.StoreTimeout == 0 {
		c.StoreTimeout = defaults.StoreTimeout
	}
	if c.EmbedTimeout == 0 {
		c.EmbedTimeout = defaults.EmbedTimeout
	}
	if c.ToolTimeout == 0 {
		c.ToolTimeout = defaults.ToolTimeout
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}

	return c
}
