package imagewarm

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/eringen/imagewarm/optimizer"
)

// Store wraps a SQLite database holding generated image variants, keyed by
// their canonical URL.
type Store struct {
	db *sql.DB
}

// NewStore opens (or creates) the SQLite database at path, ensures the data
// directory exists, and runs schema migrations.
func NewStore(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// WAL lets the image handler read while a transform writes; busy_timeout
	// makes writers wait instead of failing with SQLITE_BUSY.
	if _, err := db.Exec(`
		PRAGMA journal_mode=WAL;
		PRAGMA busy_timeout=5000;
		PRAGMA synchronous=NORMAL;
		PRAGMA cache_size=-8000;
	`); err != nil {
		db.Close()
		return nil, err
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(4)
	s := &Store{db: db}
	if err := s.ensureSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) ensureSchema() error {
	_, err := s.db.Exec(`
CREATE TABLE IF NOT EXISTS variants (
    key TEXT PRIMARY KEY,
    src TEXT NOT NULL,
    kind TEXT NOT NULL,
    data BLOB NOT NULL
);
CREATE INDEX IF NOT EXISTS variants_src ON variants (src);
`)
	return err
}

// Get returns the stored bytes of img. The boolean is false if img has not
// been stored.
func (s *Store) Get(ctx context.Context, img optimizer.CachedImage) ([]byte, bool, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, `SELECT data FROM variants WHERE key = ?`, img.Key()).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

// Put stores data for img. An existing entry is kept; variants are
// deterministic so the first write wins.
func (s *Store) Put(ctx context.Context, img optimizer.CachedImage, data []byte) error {
	_, err := s.db.ExecContext(ctx, `INSERT OR IGNORE INTO variants (key, src, kind, data) VALUES (?, ?, ?, ?)`,
		img.Key(), img.Src, string(img.Variant.Kind()), data)
	return err
}

// DeleteSource removes every stored variant of src and returns how many were
// removed.
func (s *Store) DeleteSource(ctx context.Context, src string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM variants WHERE src = ?`, src)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Count returns the number of stored variants.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM variants`).Scan(&n)
	return n, err
}
