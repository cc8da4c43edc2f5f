package strata

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// Retriever runs expanded queries against the chunk store and fuses the
// per-variant result sets into one ranked list.
type Retriever struct {
	chunks   *ChunkStore
	embedder Embedder
	logger   *slog.Logger

	numExpansions int
	minScore      float64
	embedTimeout  time.Duration
}

// NewRetriever creates a retriever over the chunk store and embedder.
func NewRetriever(chunks *ChunkStore, embedder Embedder, cfg Config) *Retriever {
	cfg = cfg.WithDefaults()
	return &Retriever{
		chunks:        chunks,
		embedder:      embedder,
		logger:        cfg.Logger,
		numExpansions: cfg.NumExpansions,
		minScore:      cfg.MinChunkScore,
		embedTimeout:  cfg.EmbedTimeout,
	}
}

// variantHits carries one variant's search outcome across the fan-in.
type variantHits struct {
	kind   string
	chunks []ScoredChunk
	err    error
}

// Retrieve embeds each query variant concurrently, searches the chunk store
// per variant, and merges the candidate sets: union by chunk ID, keeping the
// maximum score seen and counting how many variants agreed. Ranking is by
// variant agreement first, then max score. A failed variant is logged and
// skipped; the call only fails when every variant is lost.
func (r *Retriever) Retrieve(ctx context.Context, projectID, query string, topK int) (*RankedChunks, error) {
	if topK <= 0 {
		topK = 5
	}

	variants := ExpandQuery(query, r.numExpansions)
	if len(variants) == 0 {
		return &RankedChunks{Chunks: []ScoredChunk{}}, nil
	}

	hits := make([]variantHits, len(variants))
	var wg sync.WaitGroup
	for i, v := range variants {
		wg.Add(1)
		go func(i int, v QueryVariant) {
			defer wg.Done()
			hits[i] = r.searchVariant(ctx, projectID, v, topK)
		}(i, v)
	}
	wg.Wait()

	merged := make(map[string]*ScoredChunk)
	failed := 0
	for _, h := range hits {
		if h.err != nil {
			failed++
			r.logger.Warn("retrieval variant failed",
				"variant", h.kind, "project", projectID, "error", h.err)
			continue
		}
		for _, c := range h.chunks {
			if c.Score < r.minScore {
				continue
			}
			if existing, ok := merged[c.ID]; ok {
				existing.Variants++
				if c.Score > existing.Score {
					existing.Score = c.Score
				}
				continue
			}
			cc := c
			cc.Variants = 1
			merged[c.ID] = &cc
		}
	}

	if failed == len(variants) {
		return nil, &StoreError{Tier: TierChunk, Op: "retrieve", Err: hits[0].err}
	}

	ranked := make([]ScoredChunk, 0, len(merged))
	for _, c := range merged {
		ranked = append(ranked, *c)
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Variants != ranked[j].Variants {
			return ranked[i].Variants > ranked[j].Variants
		}
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score > ranked[j].Score
		}
		return ranked[i].ID < ranked[j].ID
	})
	if len(ranked) > topK {
		ranked = ranked[:topK]
	}

	return &RankedChunks{Chunks: ranked, Partial: failed > 0}, nil
}

func (r *Retriever) searchVariant(ctx context.Context, projectID string, v QueryVariant, topK int) variantHits {
	embedCtx, cancel := context.WithTimeout(ctx, r.embedTimeout)
	defer cancel()

	embedding, err := r.embedder.Embed(embedCtx, v.Text)
	if err != nil {
		return variantHits{kind: v.Kind, err: err}
	}

	chunks, err := r.chunks.Search(ctx, projectID, embedding, topK)
	if err != nil {
		return variantHits{kind: v.Kind, err: err}
	}
	return variantHits{kind: v.Kind, chunks: chunks}
}
