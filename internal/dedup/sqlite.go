package dedup

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/user/deskhand/internal/types"
	_ "modernc.org/sqlite"
)

// SQLiteSet persists claimed keys so a restart does not re-ingest messages
// that are still visible.
type SQLiteSet struct {
	db *sql.DB
}

var _ Set = (*SQLiteSet)(nil)

// OpenSQLite opens (or creates) the ledger at path and runs migrations.
func OpenSQLite(path string) (*SQLiteSet, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", filepath.ToSlash(path))
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// one writer at a time
	db.SetMaxOpenConns(1)

	s := &SQLiteSet{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *SQLiteSet) migrate() error {
	_, err := s.db.Exec(`
	CREATE TABLE IF NOT EXISTS seen_keys (
		key TEXT PRIMARY KEY,
		claimed_at DATETIME NOT NULL
	);`)
	return err
}

func (s *SQLiteSet) Claim(ctx context.Context, key types.DedupKey) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO seen_keys (key, claimed_at) VALUES (?, ?)`,
		string(key), time.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("claim key: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("claim key: %w", err)
	}
	return n == 1, nil
}

func (s *SQLiteSet) Release(ctx context.Context, key types.DedupKey) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM seen_keys WHERE key = ?`, string(key)); err != nil {
		return fmt.Errorf("release key: %w", err)
	}
	return nil
}

func (s *SQLiteSet) Contains(ctx context.Context, key types.DedupKey) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM seen_keys WHERE key = ?`, string(key)).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("lookup key: %w", err)
	}
	return n > 0, nil
}

func (s *SQLiteSet) Len(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM seen_keys`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count keys: %w", err)
	}
	return n, nil
}

// Prune drops keys claimed before cutoff and returns how many were removed.
func (s *SQLiteSet) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM seen_keys WHERE claimed_at < ?`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("prune keys: %w", err)
	}
	return res.RowsAffected()
}

func (s *SQLiteSet) Close() error {
	return s.db.Close()
}
