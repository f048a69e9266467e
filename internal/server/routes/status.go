package routes

import (
	"context"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/assethub/assethub/internal/cache"
	"github.com/assethub/assethub/internal/manifest"
	"github.com/assethub/assethub/internal/version"
)

// StatusPath 是加载器状态探测接口，管理端据此判断加载器是否已激活。
const StatusPath = "/-/status"

// LoaderStatus 是状态接口读取加载器状态所需的能力，由 *loader.Loader 实现。
type LoaderStatus interface {
	Active() bool
	Manifest() *manifest.Manifest
	ManifestLoading() bool
}

// StatusPayload 是 GET /-/status 的响应体，管理端按同一结构解码。
type StatusPayload struct {
	Active          bool          `json:"active"`
	Ready           bool          `json:"ready"`
	Loading         bool          `json:"loading"`
	ManifestVersion string        `json:"manifest_version,omitempty"`
	AssetCount      int           `json:"asset_count"`
	Cache           *CachePayload `json:"cache,omitempty"`
	Version         string        `json:"version"`
}

// CachePayload 汇总共享缓存库的规模。
type CachePayload struct {
	cache.Stats
	TotalSizeHuman  string `json:"total_size_human"`
	ManifestVersion string `json:"manifest_version,omitempty"`
}

const statsTimeout = 2 * time.Second

// RegisterStatusRoutes 暴露 GET /-/status；store 为空时省略缓存统计。
func RegisterStatusRoutes(app *fiber.App, status LoaderStatus, store cache.Reader, logger *logrus.Logger) {
	if app == nil || status == nil {
		return
	}

	app.Get(StatusPath, func(c fiber.Ctx) error {
		current := status.Manifest()
		payload := StatusPayload{
			Active:     status.Active(),
			Ready:      current != nil,
			Loading:    status.ManifestLoading(),
			AssetCount: current.Len(),
			Version:    version.Full(),
		}
		if current != nil {
			payload.ManifestVersion = current.Version
		}
		if store != nil {
			ctx, cancel := context.WithTimeout(c.Context(), statsTimeout)
			defer cancel()
			if cachePayload, err := readCacheStats(ctx, store); err != nil {
				logger.WithFields(logrus.Fields{"action": "status"}).WithError(err).Warn("cache_stats_failed")
			} else {
				payload.Cache = cachePayload
			}
		}
		return c.JSON(payload)
	})
}

func readCacheStats(ctx context.Context, store cache.Reader) (*CachePayload, error) {
	stats, err := store.Stats(ctx)
	if err != nil {
		return nil, err
	}
	stored, err := store.ManifestVersion(ctx)
	if err != nil {
		return nil, err
	}
	return &CachePayload{
		Stats:           stats,
		TotalSizeHuman:  humanize.IBytes(uint64(stats.TotalSize)),
		ManifestVersion: stored,
	}, nil
}
