package strata

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"
)

// FactStore persists authoritative facts. Facts are unique per
// (project_id, scope, category, key); a write to an existing key overwrites
// value, confidence, and updated_at. Concurrent writes to the same key are
// serialized through a per-key mutex so the final value is always one
// writer's commit, never a merge.
type FactStore struct {
	db *DB

	keyMu sync.Mutex
	keys  map[string]*sync.Mutex
}

// NewFactStore creates a fact store over the shared database.
func NewFactStore(db *DB) *FactStore {
	return &FactStore{
		db:   db,
		keys: make(map[string]*sync.Mutex),
	}
}

// FactFilter narrows a fact query.
type FactFilter struct {
	Scopes        []Scope
	Categories    []string
	MinConfidence float64
	Keys          []string
}

func (s *FactStore) lockKey(lockID string) *sync.Mutex {
	s.keyMu.Lock()
	defer s.keyMu.Unlock()

	mu, ok := s.keys[lockID]
	if !ok {
		mu = &sync.Mutex{}
		s.keys[lockID] = mu
	}
	return mu
}

func factLockID(f *Fact) string {
	return strings.Join([]string{f.ProjectID, string(f.Scope), f.Category, f.Key}, "\x00")
}

// Put stores a fact, overwriting any existing value for the same key.
func (s *FactStore) Put(ctx context.Context, fact *Fact) error {
	if err := validateFact(fact); err != nil {
		return err
	}

	mu := s.lockKey(factLockID(fact))
	mu.Lock()
	defer mu.Unlock()

	s.db.mu.RLock()
	defer s.db.mu.RUnlock()
	if err := s.db.guard(); err != nil {
		return err
	}

	now := time.Now().UTC()
	fact.UpdatedAt = now
	if fact.CreatedAt.IsZero() {
		fact.CreatedAt = now
	}

	_, err := s.db.db.ExecContext(ctx, `
		INSERT INTO facts (project_id, scope, category, key, value, confidence, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (project_id, scope, category, key) DO UPDATE SET
			value = excluded.value,
			confidence = excluded.confidence,
			updated_at = excluded.updated_at
	`,
		fact.ProjectID,
		string(fact.Scope),
		fact.Category,
		fact.Key,
		fact.Value,
		fact.Confidence,
		fact.CreatedAt.Format(time.RFC3339),
		fact.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return &StoreError{Tier: TierFact, Op: "put", Err: err}
	}
	return nil
}

// Get retrieves a fact by its unique key.
func (s *FactStore) Get(ctx context.Context, projectID string, scope Scope, category, key string) (*Fact, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()
	if err := s.db.guard(); err != nil {
		return nil, err
	}

	row := s.db.db.QueryRowContext(ctx, `
		SELECT project_id, scope, category, key, value, confidence, created_at, updated_at
		FROM facts
		WHERE project_id = ? AND scope = ? AND category = ? AND key = ?
	`, projectID, string(scope), category, key)

	fact, err := scanFact(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, &StoreError{Tier: TierFact, Op: "get", Err: err}
	}
	return fact, nil
}

// Query retrieves facts matching the filter, ordered by confidence descending.
func (s *FactStore) Query(ctx context.Context, projectID string, filter FactFilter) ([]Fact, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()
	if err := s.db.guard(); err != nil {
		return nil, err
	}

	query := `
		SELECT project_id, scope, category, key, value, confidence, created_at, updated_at
		FROM facts WHERE project_id = ?
	`
	args := []any{projectID}

	if filter.MinConfidence > 0 {
		query += " AND confidence >= ?"
		args = append(args, filter.MinConfidence)
	}
	if len(filter.Scopes) > 0 {
		placeholders := make([]string, len(filter.Scopes))
		for i, sc := range filter.Scopes {
			placeholders[i] = "?"
			args = append(args, string(sc))
		}
		query += fmt.Sprintf(" AND scope IN (%s)", strings.Join(placeholders, ","))
	}
	if len(filter.Categories) > 0 {
		placeholders := make([]string, len(filter.Categories))
		for i, cat := range filter.Categories {
			placeholders[i] = "?"
			args = append(args, cat)
		}
		query += fmt.Sprintf(" AND category IN (%s)", strings.Join(placeholders, ","))
	}
	if len(filter.Keys) > 0 {
		placeholders := make([]string, len(filter.Keys))
		for i, k := range filter.Keys {
			placeholders[i] = "?"
			args = append(args, k)
		}
		query += fmt.Sprintf(" AND key IN (%s)", strings.Join(placeholders, ","))
	}

	query += " ORDER BY confidence DESC, key ASC"

	rows, err := s.db.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, &StoreError{Tier: TierFact, Op: "query", Err: err}
	}
	defer rows.Close()

	var results []Fact
	for rows.Next() {
		fact, err := scanFact(rows)
		if err != nil {
			return nil, &StoreError{Tier: TierFact, Op: "scan", Err: err}
		}
		results = append(results, *fact)
	}
	if err := rows.Err(); err != nil {
		return nil, &StoreError{Tier: TierFact, Op: "query", Err: err}
	}
	return results, nil
}

// Delete removes a fact by its unique key.
func (s *FactStore) Delete(ctx context.Context, projectID string, scope Scope, category, key string) error {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()
	if err := s.db.guard(); err != nil {
		return err
	}

	res, err := s.db.db.ExecContext(ctx, `
		DELETE FROM facts
		WHERE project_id = ? AND scope = ? AND category = ? AND key = ?
	`, projectID, string(scope), category, key)
	if err != nil {
		return &StoreError{Tier: TierFact, Op: "delete", Err: err}
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// Count returns the number of facts for a project; empty projectID counts all.
func (s *FactStore) Count(ctx context.Context, projectID string) (int, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()
	if err := s.db.guard(); err != nil {
		return 0, err
	}

	query := "SELECT COUNT(*) FROM facts"
	args := []any{}
	if projectID != "" {
		query += " WHERE project_id = ?"
		args = append(args, projectID)
	}

	var n int
	if err := s.db.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, &StoreError{Tier: TierFact, Op: "count", Err: err}
	}
	return n, nil
}

func validateFact(fact *Fact) error {
	if fact.Key == "" {
		return ErrEmptyKey
	}
	if fact.Value == "" {
		return ErrEmptyContent
	}
	if len(fact.Value) > MaxFactValueLength {
		return ErrContentTooLong
	}
	if !fact.Scope.IsValid() {
		return ErrInvalidScope
	}
	if fact.Confidence < ConfidenceMin || fact.Confidence > ConfidenceMax {
		return ErrInvalidConfidence
	}
	if fact.ProjectID == "" {
		return &ValidationError{Field: "ProjectID", Message: "required"}
	}
	if fact.Category == "" {
		return &ValidationError{Field: "Category", Message: "required"}
	}
	return nil
}

// scanner abstracts the Scan method shared by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanFact(sc scanner) (*Fact, error) {
	var (
		fact      Fact
		scope     string
		createdAt string
		updatedAt string
	)

	err := sc.Scan(
		&fact.ProjectID,
		&scope,
		&fact.Category,
		&fact.Key,
		&fact.Value,
		&fact.Confidence,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	fact.Scope = Scope(scope)
	fact.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	fact.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return &fact, nil
}
