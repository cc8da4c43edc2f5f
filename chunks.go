package strata

import (
	"context"
	"fmt"
	"os"
	"sync"

	chromem "github.com/philippgille/chromem-go"
)

// ChunkStore holds document chunks and their vectors in an embedded
// chromem-go index, one collection per project. Chunks are immutable;
// re-ingesting a document replaces its chunk set as a unit, and readers
// never observe a half-replaced document.
type ChunkStore struct {
	db          *chromem.DB
	dir         string // empty for the in-memory store
	mu          sync.RWMutex
	collections map[string]*chromem.Collection

	// docMu serializes document replacement against reads per project.
	docMu   sync.Mutex
	perProj map[string]*sync.RWMutex
}

// NewChunkStore creates an in-memory chunk store.
func NewChunkStore() *ChunkStore {
	return &ChunkStore{
		db:          chromem.NewDB(),
		collections: make(map[string]*chromem.Collection),
		perProj:     make(map[string]*sync.RWMutex),
	}
}

// NewPersistentChunkStore creates a chunk store persisted under dir.
func NewPersistentChunkStore(dir string) (*ChunkStore, error) {
	db, err := chromem.NewPersistentDB(dir, false)
	if err != nil {
		return nil, fmt.Errorf("open chunk store: %w", err)
	}
	return &ChunkStore{
		db:          db,
		dir:         dir,
		collections: make(map[string]*chromem.Collection),
		perProj:     make(map[string]*sync.RWMutex),
	}, nil
}

// Health reports whether the store can keep serving. The in-memory store is
// always healthy; the persistent store checks its directory is still
// accessible, since every write lands there.
func (s *ChunkStore) Health() error {
	if s.dir == "" {
		return nil
	}
	if _, err := os.Stat(s.dir); err != nil {
		return &StoreError{Tier: TierChunk, Op: "health", Err: err}
	}
	return nil
}

func (s *ChunkStore) projectLock(projectID string) *sync.RWMutex {
	s.docMu.Lock()
	defer s.docMu.Unlock()

	mu, ok := s.perProj[projectID]
	if !ok {
		mu = &sync.RWMutex{}
		s.perProj[projectID] = mu
	}
	return mu
}

// getOrCreateCollection returns the collection for a project.
func (s *ChunkStore) getOrCreateCollection(projectID string) (*chromem.Collection, error) {
	s.mu.RLock()
	col, exists := s.collections[projectID]
	s.mu.RUnlock()

	if exists {
		return col, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Double-check after acquiring write lock
	if col, exists := s.collections[projectID]; exists {
		return col, nil
	}

	name := fmt.Sprintf("project_%s", projectID)
	col, err := s.db.GetOrCreateCollection(name, nil, nil)
	if err != nil {
		return nil, &StoreError{Tier: TierChunk, Op: "create collection", Err: err}
	}

	s.collections[projectID] = col
	return col, nil
}

// ReplaceDoc atomically replaces all chunks for chunks[0].DocID. Every chunk
// must carry an embedding and share the same project and document. Readers
// searching the project block until the swap completes.
func (s *ChunkStore) ReplaceDoc(ctx context.Context, projectID, docID string, chunks []Chunk) (replaced bool, err error) {
	if docID == "" {
		return false, &ValidationError{Field: "DocID", Message: "required"}
	}
	for i := range chunks {
		if chunks[i].DocID != docID {
			return false, &ValidationError{Field: "DocID", Message: "all chunks must share the document ID"}
		}
		if len(chunks[i].Embedding) == 0 {
			return false, &ValidationError{Field: "Embedding", Message: "required on every chunk"}
		}
	}

	col, err := s.getOrCreateCollection(projectID)
	if err != nil {
		return false, err
	}

	lock := s.projectLock(projectID)
	lock.Lock()
	defer lock.Unlock()

	// Drop the previous chunk set for this document, if any.
	prior := col.Count()
	if prior > 0 {
		if err := col.Delete(ctx, map[string]string{"doc_id": docID}, nil); err != nil {
			return false, &StoreError{Tier: TierChunk, Op: "delete doc", Err: err}
		}
		replaced = col.Count() < prior
	}

	for _, c := range chunks {
		doc := chromem.Document{
			ID:        c.ID,
			Content:   c.Text,
			Embedding: c.Embedding,
			Metadata: map[string]string{
				"doc_id":      c.DocID,
				"source_path": c.SourcePath,
				"project_id":  c.ProjectID,
			},
		}
		if err := col.AddDocument(ctx, doc); err != nil {
			return replaced, &StoreError{Tier: TierChunk, Op: "add chunk", Err: err}
		}
	}

	return replaced, nil
}

// DeleteDoc removes every chunk for a document.
func (s *ChunkStore) DeleteDoc(ctx context.Context, projectID, docID string) error {
	col, err := s.getOrCreateCollection(projectID)
	if err != nil {
		return err
	}

	lock := s.projectLock(projectID)
	lock.Lock()
	defer lock.Unlock()

	if col.Count() == 0 {
		return nil
	}
	if err := col.Delete(ctx, map[string]string{"doc_id": docID}, nil); err != nil {
		return &StoreError{Tier: TierChunk, Op: "delete doc", Err: err}
	}
	return nil
}

// Search returns up to k chunks ranked by cosine similarity to the query
// embedding. An empty index yields an empty, non-error result.
func (s *ChunkStore) Search(ctx context.Context, projectID string, embedding []float32, k int) ([]ScoredChunk, error) {
	col, err := s.getOrCreateCollection(projectID)
	if err != nil {
		return nil, err
	}

	lock := s.projectLock(projectID)
	lock.RLock()
	defer lock.RUnlock()

	count := col.Count()
	if count == 0 {
		return []ScoredChunk{}, nil
	}
	if k <= 0 {
		k = 5
	}
	// chromem rejects nResults greater than the collection size.
	if k > count {
		k = count
	}

	results, err := col.QueryEmbedding(ctx, embedding, k, nil, nil)
	if err != nil {
		return nil, &StoreError{Tier: TierChunk, Op: "query", Err: err}
	}

	scored := make([]ScoredChunk, 0, len(results))
	for _, r := range results {
		score := float64(r.Similarity)
		if score < 0 {
			score = 0
		}
		scored = append(scored, ScoredChunk{
			Chunk: Chunk{
				ID:         r.ID,
				Text:       r.Content,
				Embedding:  r.Embedding,
				DocID:      r.Metadata["doc_id"],
				SourcePath: r.Metadata["source_path"],
				ProjectID:  projectID,
			},
			Score:    score,
			Variants: 1,
		})
	}
	return scored, nil
}

// Count returns the number of chunks stored for a project; empty projectID
// counts every project.
func (s *ChunkStore) Count(projectID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if projectID != "" {
		if col, ok := s.collections[projectID]; ok {
			return col.Count()
		}
		return 0
	}

	total := 0
	for _, col := range s.collections {
		total += col.Count()
	}
	return total
}
