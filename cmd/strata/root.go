package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/hyperengineering/strata"
	"github.com/hyperengineering/strata/internal/store"
)

var (
	cfgFile        string
	cfgDBPath      string
	cfgVectorDir   string
	cfgOllamaURL   string
	cfgOllamaModel string
)

var rootCmd = &cobra.Command{
	Use:   "strata",
	Short: "Strata - tiered memory engine for coding agents",
	Long: `Strata is a memory engine for AI coding agents.

It keeps three tiers of memory per project: authoritative facts,
experience episodes, and semantically searchable document chunks.
Agents reach it over MCP (stdio) or HTTP.`,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to YAML config file (default: ./strata.yaml if present)")
	rootCmd.PersistentFlags().StringVar(&cfgDBPath, "db-path", "", "Path to local SQLite database (default: ./data/strata.db)")
	rootCmd.PersistentFlags().StringVar(&cfgVectorDir, "vector-dir", "", "Directory for the persistent chunk index (default: under the data root)")
	rootCmd.PersistentFlags().StringVar(&cfgOllamaURL, "ollama-url", "", "Ollama base URL for embeddings (default: hash embedder)")
	rootCmd.PersistentFlags().StringVar(&cfgOllamaModel, "ollama-model", "", "Ollama embedding model (default: nomic-embed-text)")
}

// fileConfig is the YAML shape of the config file. Everything is optional;
// flags and environment variables override file values.
type fileConfig struct {
	DBPath    string `yaml:"db_path"`
	VectorDir string `yaml:"vector_dir"`

	Ollama struct {
		URL        string `yaml:"url"`
		Model      string `yaml:"model"`
		Dimensions int    `yaml:"dimensions"`
	} `yaml:"ollama"`

	API struct {
		Addr string `yaml:"addr"`
		Key  string `yaml:"key"`
	} `yaml:"api"`

	MinFactConfidence    float64 `yaml:"min_fact_confidence"`
	MinEpisodeConfidence float64 `yaml:"min_episode_confidence"`
	MinChunkScore        float64 `yaml:"min_chunk_score"`
	NumExpansions        int     `yaml:"num_expansions"`
	DedupWindowDays      int     `yaml:"dedup_window_days"`
	AnalyzerWorkers      int     `yaml:"analyzer_workers"`
	DailyTokenBudget     int     `yaml:"daily_token_budget"`
	EmbedCacheEntries    int64   `yaml:"embed_cache_entries"`

	ToolAllowLists map[string][]string `yaml:"tool_allow_lists"`
}

func loadFileConfig() (fileConfig, error) {
	var fc fileConfig

	path := cfgFile
	if path == "" {
		if _, err := os.Stat("strata.yaml"); err == nil {
			path = "strata.yaml"
		} else {
			return fc, nil
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fc, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fc, fmt.Errorf("parse config %s: %w", path, err)
	}
	return fc, nil
}

// loadConfig merges the config file, environment, and flags, in increasing
// precedence, into the engine configuration plus CLI-level settings.
type cliConfig struct {
	Engine   strata.Config
	File     fileConfig
	APIAddr  string
	APIKey   string
	Ollama   string
	Model    string
	EmbedDim int
}

func loadConfig() (cliConfig, error) {
	fc, err := loadFileConfig()
	if err != nil {
		return cliConfig{}, err
	}

	cfg := strata.DefaultConfig()

	dbPathSet := false
	if fc.DBPath != "" {
		cfg.DBPath = fc.DBPath
		dbPathSet = true
	}
	if fc.VectorDir != "" {
		cfg.VectorDir = fc.VectorDir
	}
	if fc.MinFactConfidence != 0 {
		cfg.MinFactConfidence = fc.MinFactConfidence
	}
	if fc.MinEpisodeConfidence != 0 {
		cfg.MinEpisodeConfidence = fc.MinEpisodeConfidence
	}
	if fc.MinChunkScore != 0 {
		cfg.MinChunkScore = fc.MinChunkScore
	}
	if fc.NumExpansions != 0 {
		cfg.NumExpansions = fc.NumExpansions
	}
	if fc.DedupWindowDays != 0 {
		cfg.DedupWindowDays = fc.DedupWindowDays
	}
	if fc.AnalyzerWorkers != 0 {
		cfg.AnalyzerWorkers = fc.AnalyzerWorkers
	}
	if fc.DailyTokenBudget != 0 {
		cfg.DailyTokenBudget = fc.DailyTokenBudget
	}
	if fc.EmbedCacheEntries != 0 {
		cfg.EmbedCacheEntries = fc.EmbedCacheEntries
	}
	if fc.ToolAllowLists != nil {
		cfg.ToolAllowLists = fc.ToolAllowLists
	}

	cc := cliConfig{
		Engine:   cfg,
		File:     fc,
		APIAddr:  fc.API.Addr,
		APIKey:   fc.API.Key,
		Ollama:   fc.Ollama.URL,
		Model:    fc.Ollama.Model,
		EmbedDim: fc.Ollama.Dimensions,
	}

	// Environment overrides file values.
	if v := os.Getenv("STRATA_DB_PATH"); v != "" {
		cc.Engine.DBPath = v
		dbPathSet = true
	}
	if v := os.Getenv("STRATA_VECTOR_DIR"); v != "" {
		cc.Engine.VectorDir = v
	}
	if v := os.Getenv("STRATA_OLLAMA_URL"); v != "" {
		cc.Ollama = v
	}
	if v := os.Getenv("STRATA_OLLAMA_MODEL"); v != "" {
		cc.Model = v
	}
	if v := os.Getenv("STRATA_API_ADDR"); v != "" {
		cc.APIAddr = v
	}
	if v := os.Getenv("STRATA_API_KEY"); v != "" {
		cc.APIKey = v
	}

	// Flags override everything.
	if cfgDBPath != "" {
		cc.Engine.DBPath = cfgDBPath
		dbPathSet = true
	}
	if cfgVectorDir != "" {
		cc.Engine.VectorDir = cfgVectorDir
	}
	if cfgOllamaURL != "" {
		cc.Ollama = cfgOllamaURL
	}
	if cfgOllamaModel != "" {
		cc.Model = cfgOllamaModel
	}

	// Without an explicit path, data lives under the user's data root.
	// A database at the old ./data location is copied over once.
	if !dbPathSet {
		root := store.DefaultDataRoot()
		if _, err := store.MigrateLegacyDatabase("", root); err != nil {
			return cliConfig{}, err
		}
		cc.Engine.DBPath = store.DefaultDBPath()
	}
	if cc.Engine.VectorDir == "" {
		cc.Engine.VectorDir = store.DefaultVectorDir()
	}

	if cc.Model == "" {
		cc.Model = "nomic-embed-text"
	}
	if cc.EmbedDim == 0 {
		cc.EmbedDim = 768
	}
	if cc.APIAddr == "" {
		cc.APIAddr = ":8002"
	}

	return cc, nil
}

// Logs go to stderr so MCP stdio traffic on stdout stays clean.
func defaultLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, nil))
}

// buildEngine constructs the engine with the configured embedder. Without an
// Ollama URL the hash embedder is used, which keeps the engine fully offline.
func buildEngine(cc cliConfig) (*strata.Engine, error) {
	if cc.Engine.Logger == nil {
		cc.Engine.Logger = defaultLogger()
	}

	var embedder strata.Embedder
	if cc.Ollama != "" {
		embedder = strata.NewOllamaEmbedder(cc.Ollama, cc.Model, cc.EmbedDim)
	} else {
		embedder = strata.NewHashEmbedder(64)
	}

	engine, err := strata.New(cc.Engine, embedder)
	if err != nil {
		return nil, fmt.Errorf("initialize engine: %w", err)
	}
	return engine, nil
}
