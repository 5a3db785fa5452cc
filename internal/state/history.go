// internal/state/history.go
package state

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/user/deskhand/internal/types"
)

const dayLayout = "2006-01-02"

// History is the daily activity log. Each day is one JSON array in
// <dir>/<YYYY-MM-DD>.json; appends rewrite the file atomically.
type History struct {
	dir string
	now func() time.Time
	mu  sync.Mutex
}

// NewHistory creates a History writing into dir.
func NewHistory(dir string) *History {
	return &History{dir: dir, now: time.Now}
}

func (h *History) dayPath(day string) string {
	return filepath.Join(h.dir, day+".json")
}

// Append adds entry to the file for the entry's day. A zero timestamp is
// set to the current time.
func (h *History) Append(_ context.Context, entry *types.HistoryEntry) error {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = h.now()
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	day := entry.Timestamp.Format(dayLayout)
	entries, err := h.load(day)
	if err != nil {
		return err
	}
	entries = append(entries, entry)
	return h.save(day, entries)
}

// Day returns the entries recorded on the given date.
func (h *History) Day(_ context.Context, day time.Time) ([]*types.HistoryEntry, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	entries, err := h.load(day.Format(dayLayout))
	if err != nil {
		return nil, err
	}
	if entries == nil {
		return []*types.HistoryEntry{}, nil
	}
	return entries, nil
}

// Tail returns the last limit entries across all recorded days.
func (h *History) Tail(_ context.Context, limit int) ([]*types.HistoryEntry, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	files, err := filepath.Glob(filepath.Join(h.dir, "*.json"))
	if err != nil {
		return nil, fmt.Errorf("glob history: %w", err)
	}
	sort.Strings(files)

	var out []*types.HistoryEntry
	for i := len(files) - 1; i >= 0 && len(out) < limit; i-- {
		day := strings.TrimSuffix(filepath.Base(files[i]), ".json")
		entries, err := h.load(day)
		if err != nil {
			return nil, err
		}
		out = append(entries, out...)
	}
	if len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

// load reads one day file. Caller must hold the lock.
func (h *History) load(day string) ([]*types.HistoryEntry, error) {
	data, err := os.ReadFile(h.dayPath(day))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read history file: %w", err)
	}
	var entries []*types.HistoryEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("unmarshal history: %w", err)
	}
	return entries, nil
}

// save writes one day file using temp file + rename.
func (h *History) save(day string, entries []*types.HistoryEntry) error {
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal history: %w", err)
	}
	if err := os.MkdirAll(h.dir, 0o755); err != nil {
		return fmt.Errorf("create history dir: %w", err)
	}
	path := h.dayPath(day)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write temp history file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename temp history file: %w", err)
	}
	return nil
}
