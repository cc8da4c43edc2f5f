package strata

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Ingester splits documents into overlapping word-window chunks, embeds
// them, and swaps them into the chunk store as an atomic per-document
// replacement.
type Ingester struct {
	chunks   *ChunkStore
	embedder Embedder
	logger   *slog.Logger

	chunkSize    int
	chunkOverlap int
	embedTimeout time.Duration
}

// NewIngester creates a document ingester.
func NewIngester(chunks *ChunkStore, embedder Embedder, cfg Config) *Ingester {
	cfg = cfg.WithDefaults()
	return &Ingester{
		chunks:       chunks,
		embedder:     embedder,
		logger:       cfg.Logger,
		chunkSize:    256,
		chunkOverlap: 32,
		embedTimeout: cfg.EmbedTimeout,
	}
}

// Ingest chunks, embeds, and stores one document. Re-ingesting a doc_id
// replaces its previous chunk set as a unit.
func (g *Ingester) Ingest(ctx context.Context, params IngestParams) (*IngestResult, error) {
	if params.ProjectID == "" {
		return nil, &ValidationError{Field: "ProjectID", Message: "required"}
	}
	if params.DocID == "" {
		return nil, &ValidationError{Field: "DocID", Message: "required"}
	}
	text := strings.TrimSpace(params.Text)
	if text == "" {
		return nil, ErrEmptyContent
	}

	pieces := chunkText(text, g.chunkSize, g.chunkOverlap)
	chunks := make([]Chunk, 0, len(pieces))
	for _, piece := range pieces {
		embedCtx, cancel := context.WithTimeout(ctx, g.embedTimeout)
		embedding, err := g.embedder.Embed(embedCtx, piece)
		cancel()
		if err != nil {
			// A document must land whole or not at all; a lost chunk would
			// break the replace-as-a-unit invariant.
			return nil, fmt.Errorf("embed chunk: %w", err)
		}
		chunks = append(chunks, Chunk{
			ID:         uuid.New().String(),
			Text:       piece,
			Embedding:  embedding,
			DocID:      params.DocID,
			SourcePath: params.SourcePath,
			ProjectID:  params.ProjectID,
		})
	}

	replaced, err := g.chunks.ReplaceDoc(ctx, params.ProjectID, params.DocID, chunks)
	if err != nil {
		return nil, err
	}

	g.logger.Info("ingested document",
		"project", params.ProjectID, "doc", params.DocID,
		"chunks", len(chunks), "replaced", replaced)

	return &IngestResult{
		DocID:    params.DocID,
		Chunks:   len(chunks),
		Replaced: replaced,
	}, nil
}

// chunkText splits input into word windows of size words with overlap words
// shared between neighbours.
func chunkText(input string, size, overlap int) []string {
	words := strings.Fields(input)
	if len(words) == 0 {
		return nil
	}
	if size <= 0 {
		size = 256
	}
	step := size - overlap
	if step <= 0 {
		step = size
	}

	chunks := make([]string, 0, (len(words)/step)+1)
	for start := 0; start < len(words); start += step {
		end := start + size
		if end > len(words) {
			end = len(words)
		}
		chunks = append(chunks, strings.Join(words[start:end], " "))
		if end == len(words) {
			break
		}
	}
	return chunks
}
