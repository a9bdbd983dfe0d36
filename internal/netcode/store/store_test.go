package store

import (
	"path/filepath"
	"testing"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "snapshots.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestPutGetRoundTrip(t *testing.T) {
	s := openTestStore(t)

	if err := s.Put(10, []byte{1, 2, 3}); err != nil {
		t.Fatalf("put: %v", err)
	}

	got, ok, err := s.Get(10)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !ok {
		t.Fatal("expected entry to exist")
	}
	if len(got) != 3 || got[0] != 1 || got[1] != 2 || got[2] != 3 {
		t.Fatalf("unexpected bytes: %v", got)
	}
}

func TestGetMissingReturnsFalse(t *testing.T) {
	s := openTestStore(t)
	_, ok, err := s.Get(999)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if ok {
		t.Fatal("expected no entry for unseeded frame")
	}
}

func TestLatestReflectsHighestFrame(t *testing.T) {
	s := openTestStore(t)
	s.Put(5, []byte("a"))
	s.Put(50, []byte("b"))
	s.Put(20, []byte("c"))

	frame, ok, err := s.Latest()
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if !ok || frame != 50 {
		t.Fatalf("expected latest frame 50, got %d (ok=%v)", frame, ok)
	}
}

func TestPruneDropsOlderFrames(t *testing.T) {
	s := openTestStore(t)
	s.Put(5, []byte("a"))
	s.Put(10, []byte("b"))
	s.Put(20, []byte("c"))

	if err := s.Prune(10); err != nil {
		t.Fatalf("prune: %v", err)
	}

	if _, ok, _ := s.Get(5); ok {
		t.Fatal("expected frame 5 pruned")
	}
	if _, ok, _ := s.Get(10); !ok {
		t.Fatal("expected frame 10 to survive prune (boundary is inclusive)")
	}
	if _, ok, _ := s.Get(20); !ok {
		t.Fatal("expected frame 20 to survive prune")
	}
}
