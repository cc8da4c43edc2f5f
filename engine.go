package strata

import (
	"context"
	"fmt"
	"log/slog"
)

// Engine is the top-level facade: it owns the stores and the four core
// components and exposes them through the dispatch layer's tool registry.
type Engine struct {
	config    Config
	logger    *slog.Logger
	db        *DB
	facts     *FactStore
	episodes  *EpisodeStore
	dedup     *DedupStore
	chunks    *ChunkStore
	embedder  Embedder
	retriever *Retriever
	selector  *Selector
	ingester  *Ingester
	analyzer  *Analyzer
	dispatch  *Dispatcher
	adapters  *AdapterRegistry
}

// New creates an engine from the given configuration and embedder. The
// embedder is an external collaborator; pass NewHashEmbedder for offline
// development.
func New(cfg Config, embedder Embedder) (*Engine, error) {
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if embedder == nil {
		return nil, &ValidationError{Field: "Embedder", Message: "required"}
	}

	db, err := OpenDB(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}

	cached, err := NewCachedEmbedder(embedder, cfg.EmbedCacheEntries)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("engine: %w", err)
	}

	chunks := NewChunkStore()
	if cfg.VectorDir != "" {
		chunks, err = NewPersistentChunkStore(cfg.VectorDir)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("engine: %w", err)
		}
	}

	e := &Engine{
		config:   cfg,
		logger:   cfg.Logger,
		db:       db,
		chunks:   chunks,
		embedder: cached,
	}
	e.facts = NewFactStore(db)
	e.episodes = NewEpisodeStore(db)
	e.dedup = NewDedupStore(db, cfg.DedupWindowDays)
	e.retriever = NewRetriever(e.chunks, cached, cfg)
	e.selector = NewSelector(e.facts, e.episodes, e.retriever, cfg)
	e.ingester = NewIngester(e.chunks, cached, cfg)
	e.analyzer = NewAnalyzer(e.facts, e.episodes, e.dedup, cfg)
	e.dispatch = NewDispatcher(cfg)
	e.adapters = NewAdapterRegistry(cfg.Logger)

	e.registerTools()

	return e, nil
}

// Dispatcher returns the tool dispatch layer adapters bind to.
func (e *Engine) Dispatcher() *Dispatcher { return e.dispatch }

// Adapters returns the lifecycle hook registry.
func (e *Engine) Adapters() *AdapterRegistry { return e.adapters }

// Select runs a fused memory query across all tiers.
func (e *Engine) Select(ctx context.Context, params SelectParams) (*FusedResult, error) {
	return e.selector.Select(ctx, params)
}

// Retrieve runs a semantic search against the chunk tier only.
func (e *Engine) Retrieve(ctx context.Context, projectID, query string, topK int) (*RankedChunks, error) {
	return e.retriever.Retrieve(ctx, projectID, query, topK)
}

// Analyze extracts and stores learnings from one conversation turn.
func (e *Engine) Analyze(ctx context.Context, params AnalyzeParams) (*AnalyzeResult, error) {
	return e.analyzer.Analyze(ctx, params)
}

// AnalyzeAsync queues a conversation turn for background analysis.
func (e *Engine) AnalyzeAsync(params AnalyzeParams) {
	e.analyzer.AnalyzeAsync(params)
}

// Ingest chunks and stores one document.
func (e *Engine) Ingest(ctx context.Context, params IngestParams) (*IngestResult, error) {
	return e.ingester.Ingest(ctx, params)
}

// Facts exposes the fact store.
func (e *Engine) Facts() *FactStore { return e.facts }

// Episodes exposes the episode store.
func (e *Engine) Episodes() *EpisodeStore { return e.episodes }

// Stats returns store counts across the tiers.
func (e *Engine) Stats(ctx context.Context) (*EngineStats, error) {
	facts, err := e.facts.Count(ctx, "")
	if err != nil {
		return nil, err
	}
	episodes, err := e.episodes.Count(ctx, "")
	if err != nil {
		return nil, err
	}
	return &EngineStats{
		Facts:    facts,
		Episodes: episodes,
		Chunks:   e.chunks.Count(""),
	}, nil
}

// Health reports backing store availability.
func (e *Engine) Health(ctx context.Context) HealthStatus {
	status := HealthStatus{Healthy: true, StoreOK: true, VectorOK: true}

	if _, err := e.facts.Count(ctx, ""); err != nil {
		status.StoreOK = false
		status.Healthy = false
		status.Error = err.Error()
	}

	if err := e.chunks.Health(); err != nil {
		status.VectorOK = false
		status.Healthy = false
		if status.Error == "" {
			status.Error = err.Error()
		}
	}

	return status
}

// Close drains the analyzer pool and closes the database.
func (e *Engine) Close() error {
	e.analyzer.Close()
	return e.db.Close()
}
