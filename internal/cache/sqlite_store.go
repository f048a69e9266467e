package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"
	_ "modernc.org/sqlite"
)

// DatabaseName 是 StoragePath 下的默认库文件名。
const DatabaseName = "asset-cache.db"

const schemaVersion = 1

const schemaSQL = `
CREATE TABLE IF NOT EXISTS cached_assets (
	manifest_key TEXT PRIMARY KEY,
	path         TEXT NOT NULL,
	hash         TEXT NOT NULL,
	blob         BLOB NOT NULL,
	size         INTEGER NOT NULL,
	mtime        INTEGER NOT NULL,
	content_type TEXT NOT NULL,
	cached_at    INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_cached_assets_hash ON cached_assets(hash);
CREATE INDEX IF NOT EXISTS idx_cached_assets_cached_at ON cached_assets(cached_at);
CREATE INDEX IF NOT EXISTS idx_cached_assets_size ON cached_assets(size);
CREATE INDEX IF NOT EXISTS idx_cached_assets_path ON cached_assets(path);
CREATE TABLE IF NOT EXISTS manifest_info (
	version TEXT PRIMARY KEY
);
`

// SQLiteStore 以单个 SQLite 文件持久化资源，同键写入通过 entryLock 串行化。
type SQLiteStore struct {
	db       *sql.DB
	readOnly bool
	fileLock *flock.Flock
	now      func() time.Time

	mu    sync.Mutex
	locks map[string]*entryLock
}

type entryLock struct {
	mu   sync.Mutex
	refs int
}

// OpenWriter 以读写方式打开（必要时创建）缓存库，并独占 <path>.lock，
// 保证只有一个加载器进程写入。
func OpenWriter(path string) (*SQLiteStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("storage path required")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve storage path: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return nil, fmt.Errorf("create storage path: %w", err)
	}

	fl := flock.New(abs + ".lock")
	locked, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire store lock: %w", err)
	}
	if !locked {
		return nil, ErrLocked
	}

	dsn := "file:" + abs + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		_ = fl.Close()
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// 单连接避免同进程内的 SQLITE_BUSY。
	db.SetMaxOpenConns(1)

	store := newSQLiteStore(db, false)
	store.fileLock = fl
	if err := store.ensureSchema(context.Background()); err != nil {
		_ = store.Close()
		return nil, err
	}
	return store, nil
}

// OpenReader 以只读方式打开已存在的缓存库，供管理端做有效性探测。
func OpenReader(path string) (*SQLiteStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("storage path required")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve storage path: %w", err)
	}
	if _, err := os.Stat(abs); err != nil {
		return nil, fmt.Errorf("stat cache db: %w", err)
	}

	db, err := sql.Open("sqlite", "file:"+abs+"?mode=ro&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	store := newSQLiteStore(db, true)
	if err := store.ensureSchema(context.Background()); err != nil {
		_ = store.Close()
		return nil, err
	}
	return store, nil
}

func newSQLiteStore(db *sql.DB, readOnly bool) *SQLiteStore {
	return &SQLiteStore{
		db:       db,
		readOnly: readOnly,
		now:      time.Now,
		locks:    make(map[string]*entryLock),
	}
}

func (s *SQLiteStore) ensureSchema(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping sqlite db: %w", err)
	}

	var version int
	if err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	switch {
	case version == schemaVersion:
		return nil
	case version == 0 && !s.readOnly:
		if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
		if _, err := s.db.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", schemaVersion)); err != nil {
			return fmt.Errorf("write schema version: %w", err)
		}
		return nil
	default:
		return fmt.Errorf("%w: %d", ErrSchemaVersion, version)
	}
}

// Close 关闭数据库并释放写锁。
func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	err := s.db.Close()
	if s.fileLock != nil {
		if lockErr := s.fileLock.Close(); err == nil {
			err = lockErr
		}
	}
	return err
}

func (s *SQLiteStore) Get(ctx context.Context, key string) (*Record, error) {
	if key == "" {
		return nil, ErrNotFound
	}
	row := s.db.QueryRowContext(ctx,
		`SELECT manifest_key, path, hash, blob, size, mtime, content_type, cached_at
		 FROM cached_assets WHERE manifest_key = ?`, key)

	var (
		record   Record
		cachedAt int64
	)
	if err := row.Scan(
		&record.ManifestKey,
		&record.Path,
		&record.Hash,
		&record.Blob,
		&record.Size,
		&record.Mtime,
		&record.ContentType,
		&cachedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get cached asset: %w", err)
	}
	record.CachedAt = time.UnixMilli(cachedAt).UTC()
	return &record, nil
}

func (s *SQLiteStore) Put(ctx context.Context, record Record) (*Record, error) {
	if s.readOnly {
		return nil, ErrReadOnly
	}
	if record.ManifestKey == "" {
		return nil, errors.New("manifest key required")
	}
	unlock := s.lockEntry(record.ManifestKey)
	defer unlock()

	if record.ContentType == "" {
		record.ContentType = DefaultContentType
	}
	if record.Blob == nil {
		record.Blob = []byte{}
	}
	record.Size = int64(len(record.Blob))
	record.CachedAt = s.now().UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO cached_assets (manifest_key, path, hash, blob, size, mtime, content_type, cached_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(manifest_key) DO UPDATE SET
		    path = excluded.path,
		    hash = excluded.hash,
		    blob = excluded.blob,
		    size = excluded.size,
		    mtime = excluded.mtime,
		    content_type = excluded.content_type,
		    cached_at = excluded.cached_at`,
		record.ManifestKey,
		record.Path,
		record.Hash,
		record.Blob,
		record.Size,
		record.Mtime,
		record.ContentType,
		record.CachedAt.UnixMilli(),
	)
	if err != nil {
		return nil, fmt.Errorf("put cached asset: %w", err)
	}
	return &record, nil
}

func (s *SQLiteStore) Delete(ctx context.Context, key string) error {
	if s.readOnly {
		return ErrReadOnly
	}
	if key == "" {
		return nil
	}
	unlock := s.lockEntry(key)
	defer unlock()

	if _, err := s.db.ExecContext(ctx, `DELETE FROM cached_assets WHERE manifest_key = ?`, key); err != nil {
		return fmt.Errorf("delete cached asset: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Clear(ctx context.Context) error {
	if s.readOnly {
		return ErrReadOnly
	}
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM cached_assets`); err != nil {
			return fmt.Errorf("clear cached assets: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM manifest_info`); err != nil {
			return fmt.Errorf("clear manifest info: %w", err)
		}
		return nil
	})
}

func (s *SQLiteStore) Stats(ctx context.Context) (Stats, error) {
	var stats Stats
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(size), 0) FROM cached_assets`,
	).Scan(&stats.TotalAssets, &stats.TotalSize)
	if err != nil {
		return Stats{}, fmt.Errorf("cache stats: %w", err)
	}
	return stats, nil
}

func (s *SQLiteStore) ManifestVersion(ctx context.Context) (string, error) {
	var version string
	err := s.db.QueryRowContext(ctx, `SELECT version FROM manifest_info LIMIT 1`).Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read manifest version: %w", err)
	}
	return version, nil
}

func (s *SQLiteStore) SetManifestVersion(ctx context.Context, version string) error {
	if s.readOnly {
		return ErrReadOnly
	}
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM manifest_info`); err != nil {
			return fmt.Errorf("reset manifest info: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO manifest_info (version) VALUES (?)`, version); err != nil {
			return fmt.Errorf("write manifest info: %w", err)
		}
		return nil
	})
}

func (s *SQLiteStore) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func (s *SQLiteStore) lockEntry(key string) func() {
	s.mu.Lock()
	lock := s.locks[key]
	if lock == nil {
		lock = &entryLock{}
		s.locks[key] = lock
	}
	lock.refs++
	s.mu.Unlock()

	lock.mu.Lock()
	return func() {
		lock.mu.Unlock()
		s.mu.Lock()
		lock.refs--
		if lock.refs == 0 {
			delete(s.locks, key)
		}
		s.mu.Unlock()
	}
}
