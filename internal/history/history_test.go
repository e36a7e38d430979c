package history

import (
	"context"
	"fmt"
	"testing"
	"time"
)

func archiveN(t *testing.T, s Store, n int) {
	t.Helper()
	for i := 1; i <= n; i++ {
		err := s.Archive(context.Background(), Turn{
			ID:          uint64(i),
			Transcript:  fmt.Sprintf("transcript %d", i),
			Outcome:     "completed",
			StartedAt:   time.Unix(int64(i), 0),
			CompletedAt: time.Unix(int64(i)+1, 0),
		})
		if err != nil {
			t.Fatalf("Archive turn %d: %v", i, err)
		}
	}
}

func TestMemStoreRecentNewestFirst(t *testing.T) {
	t.Parallel()

	s := NewMemStore(10)
	archiveN(t, s, 3)

	got, err := s.Recent(context.Background(), 2)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0].ID != 3 || got[1].ID != 2 {
		t.Errorf("ids = [%d %d], want [3 2]", got[0].ID, got[1].ID)
	}
}

func TestMemStoreEvictsOldest(t *testing.T) {
	t.Parallel()

	s := NewMemStore(3)
	archiveN(t, s, 5)

	if s.Len() != 3 {
		t.Fatalf("Len = %d, want 3", s.Len())
	}
	got, err := s.Recent(context.Background(), 0)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("len = %d, want 3", len(got))
	}
	if got[0].ID != 5 || got[2].ID != 3 {
		t.Errorf("retained ids = [%d .. %d], want [5 .. 3]", got[0].ID, got[2].ID)
	}
}

func TestMemStoreDefaultCapacity(t *testing.T) {
	t.Parallel()

	s := NewMemStore(0)
	archiveN(t, s, DefaultMemCapacity+5)

	if s.Len() != DefaultMemCapacity {
		t.Errorf("Len = %d, want %d", s.Len(), DefaultMemCapacity)
	}
}

func TestMemStoreRecentOnEmpty(t *testing.T) {
	t.Parallel()

	s := NewMemStore(5)
	got, err := s.Recent(context.Background(), 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("len = %d, want 0", len(got))
	}
}
