package browser

import (
	"fmt"
	"os"
	"path/filepath"
)

// ProfileStore hands out one persistent browser profile directory per
// channel. Directories are created on first use and never removed; deleting
// one by hand forces a fresh login.
//
// Two processes must not use the same profile directory at the same time.
// Chromium locks the profile and the outcome is undefined.
type ProfileStore struct {
	root      string
	overrides map[string]string
}

// NewProfileStore creates a ProfileStore rooted at root.
func NewProfileStore(root string) *ProfileStore {
	return &ProfileStore{root: root, overrides: make(map[string]string)}
}

// Override pins channel to an explicit directory instead of root/<channel>.
func (s *ProfileStore) Override(channel, dir string) {
	if dir != "" {
		s.overrides[channel] = dir
	}
}

// Path returns the profile directory for channel without creating it.
func (s *ProfileStore) Path(channel string) string {
	if dir, ok := s.overrides[channel]; ok {
		return dir
	}
	return filepath.Join(s.root, channel)
}

// Dir returns the profile directory for channel, creating it if needed.
func (s *ProfileStore) Dir(channel string) (string, error) {
	dir := s.Path(channel)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("create profile dir: %w", err)
	}
	return dir, nil
}

// Exists reports whether a profile has been created for channel.
func (s *ProfileStore) Exists(channel string) bool {
	info, err := os.Stat(s.Path(channel))
	return err == nil && info.IsDir()
}
