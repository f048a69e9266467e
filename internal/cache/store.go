package cache

import (
	"context"
	"errors"
	"time"
)

// Record 是一条缓存的资源正文及其元数据，由 Store 独占持有。
type Record struct {
	ManifestKey string
	Path        string
	Hash        string
	Blob        []byte
	Size        int64
	Mtime       int64
	ContentType string
	CachedAt    time.Time
}

// Stats 汇总当前缓存规模。
type Stats struct {
	TotalAssets int   `json:"total_assets"`
	TotalSize   int64 `json:"total_size"`
}

// Reader 是只读探测所需的最小能力集，管理端仅依赖它。
type Reader interface {
	// Get 返回缓存记录；不存在时返回 ErrNotFound。
	Get(ctx context.Context, key string) (*Record, error)
	Stats(ctx context.Context) (Stats, error)
	// ManifestVersion 返回最近记录的清单版本，未记录时为空串。
	ManifestVersion(ctx context.Context) (string, error)
}

// Store 负责资源记录的持久化，不做任何 hash 校验。
type Store interface {
	Reader

	// Put 写入记录并刷新 CachedAt，同键覆盖写（last-write-wins），不保留历史。
	Put(ctx context.Context, record Record) (*Record, error)

	// Delete 删除记录，键不存在时不报错。
	Delete(ctx context.Context, key string) error

	// Clear 清空资源表与清单版本表。
	Clear(ctx context.Context) error

	SetManifestVersion(ctx context.Context, version string) error
	Close() error
}

var (
	// ErrNotFound 表示缓存不存在。
	ErrNotFound = errors.New("cache entry not found")
	// ErrReadOnly 表示在只读句柄上执行了写操作。
	ErrReadOnly = errors.New("cache store opened read-only")
	// ErrLocked 表示已有其他写入进程持有缓存库。
	ErrLocked = errors.New("cache store locked by another writer")
	// ErrSchemaVersion 表示数据库 schema 版本不受支持，需要换库而非迁移。
	ErrSchemaVersion = errors.New("unsupported cache schema version")
)
