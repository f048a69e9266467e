package manager

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"

	"github.com/assethub/assethub/internal/cache"
	"github.com/assethub/assethub/internal/logging"
)

const bytesPerMB = 1024 * 1024

// CacheStatus 是单个路径的缓存探测结果。
type CacheStatus struct {
	Cached bool
	Valid  bool
	Size   int64
}

// Progress 在每个资源有结论（命中、下载成功或失败）后回调一次。
type Progress struct {
	LoadedAssets  int
	TotalAssets   int
	CurrentSizeMB float64
	TotalSizeMB   float64
	CurrentAsset  string
	Percentage    float64
}

// LoadResult 汇总一次批量加载，失败不足一半即视为成功。
type LoadResult struct {
	Success     bool
	Cached      int
	Downloaded  int
	Failed      int
	TotalSizeMB float64
}

// CheckAssetsCache 只读探测每个路径的缓存状态：有记录且清单存在即 Cached，hash 与清单一致才 Valid。
func (m *Manager) CheckAssetsCache(ctx context.Context, paths []string) map[string]CacheStatus {
	result := make(map[string]CacheStatus, len(paths))
	current := m.Manifest()
	for _, path := range paths {
		result[path] = CacheStatus{}
		if m.opts.Store == nil || current == nil {
			continue
		}
		key := m.keys.Key(path)
		if key == "" {
			continue
		}
		record, err := m.opts.Store.Get(ctx, key)
		if err != nil {
			if !errors.Is(err, cache.ErrNotFound) {
				m.logger.WithFields(logrus.Fields{
					"action":       "cache_check",
					"path":         path,
					"manifest_key": key,
				}).WithError(err).Warn("cache_get_failed")
			}
			continue
		}
		asset, ok := current.Lookup(key)
		result[path] = CacheStatus{
			Cached: true,
			Valid:  ok && cache.Matches(record, asset),
			Size:   record.Size,
		}
	}
	return result
}

// LoadAssets 顺序加载 paths：加载器模式下已有效的资源直接计为命中，其余逐个请求，单个失败不影响其余。
func (m *Manager) LoadAssets(ctx context.Context, paths []string, onProgress func(Progress)) LoadResult {
	total := len(paths)
	current := m.Manifest()
	loaderMode := m.IsLoaderActive()

	var status map[string]CacheStatus
	if loaderMode {
		status = m.CheckAssetsCache(ctx, paths)
	}

	var totalSize, loadedSize int64
	for _, path := range paths {
		if asset, ok := current.Lookup(m.keys.Key(path)); ok {
			totalSize += asset.Size
		}
	}

	result := LoadResult{}
	loaded := 0
	report := func(path string) {
		loaded++
		if onProgress == nil {
			return
		}
		onProgress(Progress{
			LoadedAssets:  loaded,
			TotalAssets:   total,
			CurrentSizeMB: toMB(loadedSize),
			TotalSizeMB:   toMB(totalSize),
			CurrentAsset:  path,
			Percentage:    float64(loaded) / float64(total) * 100,
		})
	}

	pending := make([]string, 0, len(paths))
	for _, path := range paths {
		if st := status[path]; st.Cached && st.Valid {
			asset, _ := current.Lookup(m.keys.Key(path))
			loadedSize += asset.Size
			result.Cached++
			report(path)
			continue
		}
		pending = append(pending, path)
	}

	for _, path := range pending {
		size, err := m.fetchAsset(ctx, path)
		if err != nil {
			result.Failed++
			m.logger.WithFields(logrus.Fields{
				"action": "asset_load",
				"path":   path,
				"mode":   string(m.Mode()),
			}).WithError(err).Warn("asset_load_failed")
			report(path)
			continue
		}
		if asset, ok := current.Lookup(m.keys.Key(path)); ok && asset.Size > 0 {
			size = asset.Size
		} else {
			// 清单未声明大小的资源以实际长度计入总量。
			totalSize += size
		}
		loadedSize += size
		result.Downloaded++
		report(path)
	}

	result.TotalSizeMB = toMB(totalSize)
	result.Success = total == 0 || result.Failed*2 < total

	fields := logging.SizeFields(totalSize)
	fields["action"] = "asset_load"
	fields["cached"] = result.Cached
	fields["downloaded"] = result.Downloaded
	fields["failed"] = result.Failed
	fields["success"] = result.Success
	m.logger.WithFields(fields).Info("assets_loaded")
	return result
}

// fetchAsset 带单资源超时地拉取并读完响应体，返回字节数。
func (m *Manager) fetchAsset(ctx context.Context, path string) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, m.opts.AssetTimeout)
	defer cancel()

	target, err := m.assetURL(path)
	if err != nil {
		return 0, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return 0, err
	}
	resp, err := m.opts.HTTPClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return 0, fmt.Errorf("status %d", resp.StatusCode)
	}
	// 读完正文，加载器才会把资源写入共享缓存。
	read, err := io.Copy(io.Discard, resp.Body)
	if err != nil {
		return 0, fmt.Errorf("read body: %w", err)
	}
	if resp.ContentLength > 0 {
		return resp.ContentLength, nil
	}
	return read, nil
}

func (m *Manager) assetURL(path string) (string, error) {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path, nil
	}
	base := m.opts.OriginURL
	if m.IsLoaderActive() {
		base = m.opts.LoaderURL
	}
	if base == "" {
		return "", fmt.Errorf("no base url for %s in %s mode", path, m.Mode())
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return base + path, nil
}

func toMB(bytes int64) float64 {
	return float64(bytes) / bytesPerMB
}

// Summary 以人类可读的形式描述结果，供命令行输出。
func (r LoadResult) Summary() string {
	return fmt.Sprintf("cached=%d downloaded=%d failed=%d size=%s success=%t",
		r.Cached, r.Downloaded, r.Failed, humanize.IBytes(uint64(r.TotalSizeMB*bytesPerMB)), r.Success)
}
