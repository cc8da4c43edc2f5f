package strata

import (
	"context"
	"database/sql"
	"strings"
	"sync"
	"time"
)

// Acceptance classifies the outcome of a deduplication check.
type Acceptance int

const (
	// AcceptNew means the identity has never been accepted before.
	AcceptNew Acceptance = iota
	// AcceptReinforced means the identity was last accepted more than the
	// configured window ago and counts as a fresh, independent acceptance.
	AcceptReinforced
	// RejectDuplicate means the identity was accepted today or within the
	// window and must not be persisted again.
	RejectDuplicate
)

// DedupStore tracks per-identity acceptance dates for learning candidates.
// A given identity is persisted at most once per calendar day; an identity
// last accepted strictly more than windowDays ago reinforces instead of
// duplicating. Concurrent read-modify-write for the same identity is
// serialized through a per-identity mutex.
type DedupStore struct {
	db         *DB
	windowDays int

	keyMu sync.Mutex
	keys  map[string]*sync.Mutex

	// now is swappable for boundary tests.
	now func() time.Time
}

// NewDedupStore creates a deduplication store over the shared database.
func NewDedupStore(db *DB, windowDays int) *DedupStore {
	if windowDays <= 0 {
		windowDays = 7
	}
	return &DedupStore{
		db:         db,
		windowDays: windowDays,
		keys:       make(map[string]*sync.Mutex),
		now:        time.Now,
	}
}

func (s *DedupStore) lockKey(projectID, identityKey string) *sync.Mutex {
	s.keyMu.Lock()
	defer s.keyMu.Unlock()

	id := strings.Join([]string{projectID, identityKey}, "\x00")
	mu, ok := s.keys[id]
	if !ok {
		mu = &sync.Mutex{}
		s.keys[id] = mu
	}
	return mu
}

// Check decides whether a candidate identity may be accepted now and, when
// it may, records today as the latest acceptance date in the same critical
// section.
func (s *DedupStore) Check(ctx context.Context, projectID, identityKey string) (Acceptance, error) {
	mu := s.lockKey(projectID, identityKey)
	mu.Lock()
	defer mu.Unlock()

	s.db.mu.RLock()
	defer s.db.mu.RUnlock()
	if err := s.db.guard(); err != nil {
		return RejectDuplicate, err
	}

	today := dateOnly(s.now().UTC())

	var lastStr string
	err := s.db.db.QueryRowContext(ctx, `
		SELECT last_accepted_date FROM dedup_records
		WHERE project_id = ? AND identity_key = ?
	`, projectID, identityKey).Scan(&lastStr)

	switch {
	case err == sql.ErrNoRows:
		if err := s.record(ctx, projectID, identityKey, today); err != nil {
			return RejectDuplicate, err
		}
		return AcceptNew, nil
	case err != nil:
		return RejectDuplicate, &StoreError{Tier: TierFact, Op: "dedup check", Err: err}
	}

	last, perr := time.Parse(dateLayout, lastStr)
	if perr != nil {
		// Unparseable record: treat as never accepted and repair it.
		if err := s.record(ctx, projectID, identityKey, today); err != nil {
			return RejectDuplicate, err
		}
		return AcceptNew, nil
	}

	elapsed := int(today.Sub(dateOnly(last)).Hours() / 24)
	if elapsed == 0 {
		return RejectDuplicate, nil
	}
	if elapsed > s.windowDays {
		if err := s.record(ctx, projectID, identityKey, today); err != nil {
			return RejectDuplicate, err
		}
		return AcceptReinforced, nil
	}
	// Different day but still inside the window: already known recently.
	return RejectDuplicate, nil
}

// Forget removes an identity's acceptance record. Callers use it to release
// a slot claimed by Check when the accepted candidate could not be persisted,
// so the failed write does not block the identity until the next day.
func (s *DedupStore) Forget(ctx context.Context, projectID, identityKey string) error {
	mu := s.lockKey(projectID, identityKey)
	mu.Lock()
	defer mu.Unlock()

	s.db.mu.RLock()
	defer s.db.mu.RUnlock()
	if err := s.db.guard(); err != nil {
		return err
	}

	if _, err := s.db.db.ExecContext(ctx, `
		DELETE FROM dedup_records
		WHERE project_id = ? AND identity_key = ?
	`, projectID, identityKey); err != nil {
		return &StoreError{Tier: TierFact, Op: "dedup forget", Err: err}
	}
	return nil
}

// Last returns the last acceptance date for an identity, or ErrNotFound.
func (s *DedupStore) Last(ctx context.Context, projectID, identityKey string) (*DedupRecord, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()
	if err := s.db.guard(); err != nil {
		return nil, err
	}

	var lastStr string
	err := s.db.db.QueryRowContext(ctx, `
		SELECT last_accepted_date FROM dedup_records
		WHERE project_id = ? AND identity_key = ?
	`, projectID, identityKey).Scan(&lastStr)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, &StoreError{Tier: TierFact, Op: "dedup get", Err: err}
	}

	last, _ := time.Parse(dateLayout, lastStr)
	return &DedupRecord{
		IdentityKey:  identityKey,
		ProjectID:    projectID,
		LastAccepted: last,
	}, nil
}

func (s *DedupStore) record(ctx context.Context, projectID, identityKey string, day time.Time) error {
	_, err := s.db.db.ExecContext(ctx, `
		INSERT INTO dedup_records (project_id, identity_key, last_accepted_date)
		VALUES (?, ?, ?)
		ON CONFLICT (project_id, identity_key) DO UPDATE SET
			last_accepted_date = excluded.last_accepted_date
	`, projectID, identityKey, day.Format(dateLayout))
	if err != nil {
		return &StoreError{Tier: TierFact, Op: "dedup record", Err: err}
	}
	return nil
}

const dateLayout = "2006-01-02"

func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
