package dedup

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/user/deskhand/internal/types"
)

func TestMessageKey(t *testing.T) {
	a := MessageKey("whatsapp", "Alice", "urgent: call me back today please", 20)
	b := MessageKey("whatsapp", "Alice", "urgent: call me back tomorrow", 20)
	if a != b {
		t.Errorf("keys sharing a 20-char preview prefix must match: %s vs %s", a, b)
	}
	if c := MessageKey("whatsapp", "Alice", "different text", 20); c == a {
		t.Error("different preview must give a different key")
	}
	if d := MessageKey("linkedin", "Alice", "urgent: call me back today please", 20); d == a {
		t.Error("channel must be part of the key")
	}
	if !strings.HasPrefix(string(a), "whatsapp:") {
		t.Errorf("expected channel prefix, got %s", a)
	}
	if MessageKey("whatsapp", "Alice", "x", 0) != MessageKey("whatsapp", "Alice", "x", DefaultPreviewChars) {
		t.Error("zero preview chars should use the default")
	}
	// multi-byte runes are cut on rune boundaries
	if MessageKey("whatsapp", "Zoë", "😀😀😀", 2) != MessageKey("whatsapp", "Zoë", "😀😀🙂", 2) {
		t.Error("expected rune-based prefix")
	}
}

func TestEmailKey(t *testing.T) {
	if EmailKey("18c2f") != "email:18c2f" {
		t.Errorf("unexpected key %s", EmailKey("18c2f"))
	}
}

func exerciseSet(t *testing.T, s Set) {
	t.Helper()
	ctx := context.Background()
	key := types.DedupKey("whatsapp:abc")

	ok, err := s.Claim(ctx, key)
	if err != nil || !ok {
		t.Fatalf("first claim: ok=%v err=%v", ok, err)
	}
	ok, err = s.Claim(ctx, key)
	if err != nil || ok {
		t.Fatalf("second claim must fail: ok=%v err=%v", ok, err)
	}
	if has, _ := s.Contains(ctx, key); !has {
		t.Error("expected key to be present")
	}
	if err := s.Release(ctx, key); err != nil {
		t.Fatal(err)
	}
	if has, _ := s.Contains(ctx, key); has {
		t.Error("expected key to be released")
	}
	ok, _ = s.Claim(ctx, key)
	if !ok {
		t.Error("expected claim after release to succeed")
	}
	if n, _ := s.Len(ctx); n != 1 {
		t.Errorf("expected 1 key, got %d", n)
	}
}

func TestMemorySet(t *testing.T) {
	exerciseSet(t, NewMemorySet())
}

func TestSQLiteSet(t *testing.T) {
	s, err := OpenSQLite(filepath.Join(t.TempDir(), "dedup.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	defer s.Close()
	exerciseSet(t, s)
}

func TestSQLiteSet_Pragmas(t *testing.T) {
	s, err := OpenSQLite(filepath.Join(t.TempDir(), "dedup.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	var mode string
	if err := s.db.QueryRow("PRAGMA journal_mode").Scan(&mode); err != nil {
		t.Fatalf("PRAGMA journal_mode: %v", err)
	}
	if mode != "wal" {
		t.Errorf("journal_mode = %q, want %q", mode, "wal")
	}
	var timeout int
	if err := s.db.QueryRow("PRAGMA busy_timeout").Scan(&timeout); err != nil {
		t.Fatalf("PRAGMA busy_timeout: %v", err)
	}
	if timeout != 5000 {
		t.Errorf("busy_timeout = %d, want 5000", timeout)
	}
}

func TestSQLiteSet_SurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dedup.db")
	ctx := context.Background()

	s, err := OpenSQLite(path)
	if err != nil {
		t.Fatal(err)
	}
	if ok, _ := s.Claim(ctx, "email:1"); !ok {
		t.Fatal("expected first claim")
	}
	s.Close()

	s, err = OpenSQLite(path)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	if ok, _ := s.Claim(ctx, "email:1"); ok {
		t.Error("claim must be remembered across reopen")
	}

	n, err := s.Prune(ctx, time.Now().Add(time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("expected 1 pruned key, got %d", n)
	}
}

func TestMemorySet_ConcurrentClaims(t *testing.T) {
	s := NewMemorySet()
	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ok, _ := s.Claim(context.Background(), "linkedin:same"); ok {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if wins != 1 {
		t.Errorf("exactly one claim may win, got %d", wins)
	}
}
