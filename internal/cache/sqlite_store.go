package cache

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS stores (
	name       TEXT PRIMARY KEY,
	created_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS entries (
	store      TEXT NOT NULL,
	key        TEXT NOT NULL,
	payload    BLOB NOT NULL,
	updated_at INTEGER NOT NULL,
	PRIMARY KEY (store, key)
);
`

// NewSQLiteStorage 打开（或创建）path 指向的 SQLite 数据库作为缓存存储。
func NewSQLiteStorage(path string) (Storage, error) {
	if path == "" {
		return nil, errors.New("storage path required")
	}
	cleanPath := filepath.Clean(path)
	if err := os.MkdirAll(filepath.Dir(cleanPath), 0o755); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}

	dsn := cleanPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// 单连接串行化写入，避免 SQLITE_BUSY
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init sqlite schema: %w", err)
	}
	return &sqliteStorage{db: db, now: time.Now}, nil
}

type sqliteStorage struct {
	db  *sql.DB
	now func() time.Time
}

type sqliteStore struct {
	storage *sqliteStorage
	name    string
}

func (s *sqliteStorage) Open(ctx context.Context, name string) (Store, error) {
	if err := validateStoreName(name); err != nil {
		return nil, err
	}
	if err := s.ensureStore(ctx, s.db, name); err != nil {
		return nil, err
	}
	return &sqliteStore{storage: s, name: name}, nil
}

func (s *sqliteStorage) ensureStore(ctx context.Context, exec execer, name string) error {
	_, err := exec.ExecContext(ctx,
		`INSERT OR IGNORE INTO stores (name, created_at) VALUES (?, ?)`,
		name, s.now().UnixMilli())
	if err != nil {
		return fmt.Errorf("create store %s: %w", name, err)
	}
	return nil
}

func (s *sqliteStorage) Has(ctx context.Context, name string) (bool, error) {
	var found int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM stores WHERE name = ?`, name).Scan(&found)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *sqliteStorage) Names(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name FROM stores ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func (s *sqliteStorage) Delete(ctx context.Context, name string) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM entries WHERE store = ?`, name); err != nil {
		return false, fmt.Errorf("delete entries of %s: %w", name, err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM stores WHERE name = ?`, name)
	if err != nil {
		return false, fmt.Errorf("delete store %s: %w", name, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if err := tx.Commit(); err != nil {
		return false, err
	}
	return affected > 0, nil
}

func (s *sqliteStorage) Close() error {
	return s.db.Close()
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *sqliteStore) Name() string {
	return s.name
}

func (s *sqliteStore) Get(ctx context.Context, key string) (*Snapshot, error) {
	var payload []byte
	err := s.storage.db.QueryRowContext(ctx,
		`SELECT payload FROM entries WHERE store = ? AND key = ?`, s.name, key).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	snap, err := Decode(bytes.NewReader(payload))
	if err != nil {
		return nil, corrupted(err, s.name, key)
	}
	return snap, nil
}

func (s *sqliteStore) Put(ctx context.Context, key string, snap *Snapshot) error {
	if snap == nil {
		return errors.New("snapshot required")
	}
	var buf bytes.Buffer
	if err := snap.Encode(&buf); err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	tx, err := s.storage.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := s.storage.ensureStore(ctx, tx, s.name); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT OR REPLACE INTO entries (store, key, payload, updated_at) VALUES (?, ?, ?, ?)`,
		s.name, key, buf.Bytes(), s.storage.now().UnixMilli()); err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	return tx.Commit()
}

func (s *sqliteStore) Delete(ctx context.Context, key string) (bool, error) {
	res, err := s.storage.db.ExecContext(ctx,
		`DELETE FROM entries WHERE store = ? AND key = ?`, s.name, key)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

func (s *sqliteStore) Keys(ctx context.Context) ([]string, error) {
	rows, err := s.storage.db.QueryContext(ctx,
		`SELECT key FROM entries WHERE store = ? ORDER BY key`, s.name)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}
