package strata

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

// EpisodeStore persists advisory experience episodes. Episodes are
// append-only; nothing here updates an existing row.
type EpisodeStore struct {
	db *DB
}

// NewEpisodeStore creates an episode store over the shared database.
func NewEpisodeStore(db *DB) *EpisodeStore {
	return &EpisodeStore{db: db}
}

// EpisodeFilter narrows an episode query.
type EpisodeFilter struct {
	LessonTypes []LessonType
	MinQuality  float64
	Limit       int
}

// Append stores a new episode and returns it with its assigned ID.
func (s *EpisodeStore) Append(ctx context.Context, ep Episode) (*Episode, error) {
	if err := validateEpisode(&ep); err != nil {
		return nil, err
	}

	s.db.mu.RLock()
	defer s.db.mu.RUnlock()
	if err := s.db.guard(); err != nil {
		return nil, err
	}

	if ep.ID == "" {
		ep.ID = ulid.Make().String()
	}
	if ep.CreatedAt.IsZero() {
		ep.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.db.ExecContext(ctx, `
		INSERT INTO episodes (id, project_id, title, content, lesson_type, quality, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		ep.ID,
		ep.ProjectID,
		ep.Title,
		ep.Content,
		string(ep.LessonType),
		ep.Quality,
		ep.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return nil, &StoreError{Tier: TierEpisode, Op: "append", Err: err}
	}
	return &ep, nil
}

// Get retrieves an episode by ID.
func (s *EpisodeStore) Get(ctx context.Context, id string) (*Episode, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()
	if err := s.db.guard(); err != nil {
		return nil, err
	}

	row := s.db.db.QueryRowContext(ctx, `
		SELECT id, project_id, title, content, lesson_type, quality, created_at
		FROM episodes WHERE id = ?
	`, id)

	ep, err := scanEpisode(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, &StoreError{Tier: TierEpisode, Op: "get", Err: err}
	}
	return ep, nil
}

// Query retrieves episodes matching the filter, newest first.
func (s *EpisodeStore) Query(ctx context.Context, projectID string, filter EpisodeFilter) ([]Episode, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()
	if err := s.db.guard(); err != nil {
		return nil, err
	}

	query := `
		SELECT id, project_id, title, content, lesson_type, quality, created_at
		FROM episodes WHERE project_id = ?
	`
	args := []any{projectID}

	if filter.MinQuality > 0 {
		query += " AND quality >= ?"
		args = append(args, filter.MinQuality)
	}
	if len(filter.LessonTypes) > 0 {
		placeholders := make([]string, len(filter.LessonTypes))
		for i, lt := range filter.LessonTypes {
			placeholders[i] = "?"
			args = append(args, string(lt))
		}
		query += fmt.Sprintf(" AND lesson_type IN (%s)", strings.Join(placeholders, ","))
	}

	query += " ORDER BY created_at DESC, id DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, &StoreError{Tier: TierEpisode, Op: "query", Err: err}
	}
	defer rows.Close()

	var results []Episode
	for rows.Next() {
		ep, err := scanEpisode(rows)
		if err != nil {
			return nil, &StoreError{Tier: TierEpisode, Op: "scan", Err: err}
		}
		results = append(results, *ep)
	}
	if err := rows.Err(); err != nil {
		return nil, &StoreError{Tier: TierEpisode, Op: "query", Err: err}
	}
	return results, nil
}

// Delete removes an episode by ID.
func (s *EpisodeStore) Delete(ctx context.Context, id string) error {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()
	if err := s.db.guard(); err != nil {
		return err
	}

	res, err := s.db.db.ExecContext(ctx, `DELETE FROM episodes WHERE id = ?`, id)
	if err != nil {
		return &StoreError{Tier: TierEpisode, Op: "delete", Err: err}
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// Count returns the number of episodes for a project; empty projectID counts all.
func (s *EpisodeStore) Count(ctx context.Context, projectID string) (int, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()
	if err := s.db.guard(); err != nil {
		return 0, err
	}

	query := "SELECT COUNT(*) FROM episodes"
	args := []any{}
	if projectID != "" {
		query += " WHERE project_id = ?"
		args = append(args, projectID)
	}

	var n int
	if err := s.db.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, &StoreError{Tier: TierEpisode, Op: "count", Err: err}
	}
	return n, nil
}

func validateEpisode(ep *Episode) error {
	if ep.Title == "" {
		return &ValidationError{Field: "Title", Message: "required"}
	}
	if len(ep.Title) > MaxEpisodeTitleLength {
		return ErrContentTooLong
	}
	if ep.Content == "" {
		return ErrEmptyContent
	}
	if len(ep.Content) > MaxEpisodeContentLength {
		return ErrContentTooLong
	}
	if !ep.LessonType.IsValid() {
		return ErrInvalidLessonType
	}
	if ep.Quality < ConfidenceMin || ep.Quality > ConfidenceMax {
		return ErrInvalidConfidence
	}
	if ep.ProjectID == "" {
		return &ValidationError{Field: "ProjectID", Message: "required"}
	}
	return nil
}

func scanEpisode(sc scanner) (*Episode, error) {
	var (
		ep         Episode
		lessonType string
		createdAt  string
	)

	err := sc.Scan(
		&ep.ID,
		&ep.ProjectID,
		&ep.Title,
		&ep.Content,
		&lessonType,
		&ep.Quality,
		&createdAt,
	)
	if err != nil {
		return nil, err
	}

	ep.LessonType = LessonType(lessonType)
	ep.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return &ep, nil
}
