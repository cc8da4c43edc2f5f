package strata

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestDedupStore_FirstAcceptanceIsNew(t *testing.T) {
	store := NewDedupStore(openTestDB(t), 7)

	got, err := store.Check(context.Background(), "proj", "fact:db:abc")
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if got != AcceptNew {
		t.Errorf("expected AcceptNew, got %v", got)
	}
}

// TestDedupStore_SameDayIsDuplicate verifies per-day idempotence: a second
// check on the same calendar day is rejected.
func TestDedupStore_SameDayIsDuplicate(t *testing.T) {
	store := NewDedupStore(openTestDB(t), 7)
	ctx := context.Background()

	if _, err := store.Check(ctx, "proj", "fact:db:abc"); err != nil {
		t.Fatalf("first Check failed: %v", err)
	}

	got, err := store.Check(ctx, "proj", "fact:db:abc")
	if err != nil {
		t.Fatalf("second Check failed: %v", err)
	}
	if got != RejectDuplicate {
		t.Errorf("expected RejectDuplicate on same day, got %v", got)
	}
}

// TestDedupStore_WindowBoundary pins the boundary rule: exactly windowDays
// since the last acceptance is still a duplicate; windowDays+1 reinforces.
func TestDedupStore_WindowBoundary(t *testing.T) {
	const windowDays = 7

	tests := []struct {
		name        string
		elapsedDays int
		want        Acceptance
	}{
		{"next day", 1, RejectDuplicate},
		{"inside window", 3, RejectDuplicate},
		{"exactly window", windowDays, RejectDuplicate},
		{"just past window", windowDays + 1, AcceptReinforced},
		{"well past window", 30, AcceptReinforced},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := NewDedupStore(openTestDB(t), windowDays)
			ctx := context.Background()

			base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
			store.now = func() time.Time { return base }

			if _, err := store.Check(ctx, "proj", "episode:workaround:x"); err != nil {
				t.Fatalf("initial Check failed: %v", err)
			}

			store.now = func() time.Time { return base.AddDate(0, 0, tt.elapsedDays) }

			got, err := store.Check(ctx, "proj", "episode:workaround:x")
			if err != nil {
				t.Fatalf("Check failed: %v", err)
			}
			if got != tt.want {
				t.Errorf("after %d days: expected %v, got %v", tt.elapsedDays, tt.want, got)
			}
		})
	}
}

// TestDedupStore_ReinforcementResetsWindow verifies that a reinforcement
// records a fresh acceptance date, so the next check the same day rejects.
func TestDedupStore_ReinforcementResetsWindow(t *testing.T) {
	store := NewDedupStore(openTestDB(t), 7)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return base }
	if _, err := store.Check(ctx, "proj", "fact:k:v"); err != nil {
		t.Fatalf("Check failed: %v", err)
	}

	store.now = func() time.Time { return base.AddDate(0, 0, 10) }
	got, err := store.Check(ctx, "proj", "fact:k:v")
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if got != AcceptReinforced {
		t.Fatalf("expected AcceptReinforced, got %v", got)
	}

	got, err = store.Check(ctx, "proj", "fact:k:v")
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if got != RejectDuplicate {
		t.Errorf("expected RejectDuplicate after reinforcement, got %v", got)
	}
}

func TestDedupStore_IdentitiesIndependent(t *testing.T) {
	store := NewDedupStore(openTestDB(t), 7)
	ctx := context.Background()

	if _, err := store.Check(ctx, "proj", "fact:a:1"); err != nil {
		t.Fatalf("Check failed: %v", err)
	}

	got, err := store.Check(ctx, "proj", "fact:b:2")
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if got != AcceptNew {
		t.Errorf("expected independent identity to be new, got %v", got)
	}

	got, err = store.Check(ctx, "other", "fact:a:1")
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if got != AcceptNew {
		t.Errorf("expected same identity in other project to be new, got %v", got)
	}
}

// TestDedupStore_ConcurrentChecksSameIdentity verifies that concurrent checks
// for one identity admit exactly one acceptance.
// TestDedupStore_ForgetReleasesSlot verifies that forgetting an identity
// makes it acceptable again the same day, for use when the accepted
// candidate's write fails downstream.
func TestDedupStore_ForgetReleasesSlot(t *testing.T) {
	store := NewDedupStore(openTestDB(t), 7)
	ctx := context.Background()

	if _, err := store.Check(ctx, "proj", "fact:db:abc"); err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if err := store.Forget(ctx, "proj", "fact:db:abc"); err != nil {
		t.Fatalf("Forget failed: %v", err)
	}

	if _, err := store.Last(ctx, "proj", "fact:db:abc"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Last after Forget = %v, want ErrNotFound", err)
	}

	got, err := store.Check(ctx, "proj", "fact:db:abc")
	if err != nil {
		t.Fatalf("Check after Forget failed: %v", err)
	}
	if got != AcceptNew {
		t.Errorf("expected AcceptNew after Forget, got %v", got)
	}
}

func TestDedupStore_ConcurrentChecksSameIdentity(t *testing.T) {
	store := NewDedupStore(openTestDB(t), 7)
	ctx := context.Background()

	const checkers = 10
	results := make([]Acceptance, checkers)

	var wg sync.WaitGroup
	for i := 0; i < checkers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			got, err := store.Check(ctx, "proj", "fact:race:1")
			if err != nil {
				t.Errorf("Check failed: %v", err)
				return
			}
			results[i] = got
		}(i)
	}
	wg.Wait()

	accepted := 0
	for _, r := range results {
		if r == AcceptNew {
			accepted++
		}
	}
	if accepted != 1 {
		t.Errorf("expected exactly 1 acceptance, got %d", accepted)
	}
}
