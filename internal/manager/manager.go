package manager

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/assethub/assethub/internal/assetkey"
	"github.com/assethub/assethub/internal/catalog"
	"github.com/assethub/assethub/internal/control"
	"github.com/assethub/assethub/internal/manifest"
	"github.com/assethub/assethub/internal/server/routes"
)

// Mode 表示资源从哪里取。
type Mode string

const (
	// ModeUnknown 表示尚未 Initialize。
	ModeUnknown Mode = ""
	// ModeLoader 经由已激活的加载器取资源，由加载器写共享缓存。
	ModeLoader Mode = "loader"
	// ModeDirect 直接访问源站，不做缓存短路。
	ModeDirect Mode = "direct"
)

// InitResult 汇总 Initialize 的结局，Manifest 永不为 nil。
type InitResult struct {
	Mode     Mode
	Manifest *manifest.Manifest
	// Outcome 取值 ready / exhausted / failed。
	Outcome  string
	Attempts int
	Fallback bool
}

// Manager 是预加载端的入口，Initialize 之后方可加载资源。
type Manager struct {
	opts   Options
	logger *logrus.Logger
	keys   assetkey.Memo

	mu       sync.RWMutex
	mode     Mode
	manifest *manifest.Manifest
}

// New 构造 Manager；没有任何地址时无法工作，直接报错。
func New(opts Options) (*Manager, error) {
	opts.LoaderURL = strings.TrimSuffix(opts.LoaderURL, "/")
	opts.OriginURL = strings.TrimSuffix(opts.OriginURL, "/")
	if opts.LoaderURL == "" && opts.OriginURL == "" {
		return nil, errors.New("loader url or origin url required")
	}
	opts.applyDefaults()
	return &Manager{opts: opts, logger: opts.Logger}, nil
}

// Initialize 探测加载器并取得清单；任何失败都退化为空清单，不返回错误。
func (m *Manager) Initialize(ctx context.Context) InitResult {
	fields := logrus.Fields{"action": "manager_init"}

	if m.probeLoader(ctx) {
		client := control.NewClient(
			control.NewHTTPTransport(m.opts.LoaderURL+routes.ControlPath, m.opts.HTTPClient),
			m.opts.MessageTimeout,
		)
		outcome := control.AwaitManifest(ctx, client, m.opts.Retry)
		switch outcome.Kind {
		case control.OutcomeReady:
			return m.finishInit(InitResult{
				Mode:     ModeLoader,
				Manifest: outcome.Manifest,
				Outcome:  outcome.Kind.String(),
				Attempts: outcome.Attempts,
			}, fields)
		case control.OutcomeFailed:
			// 加载器仍在应答，资源照常经由它获取。
			m.logger.WithFields(fields).WithError(outcome.Err).Warn("manifest_fallback")
			return m.finishInit(InitResult{
				Mode:     ModeLoader,
				Manifest: manifest.Fallback(),
				Outcome:  outcome.Kind.String(),
				Attempts: outcome.Attempts,
				Fallback: true,
			}, fields)
		default:
			// 控制通道无应答：加载器不可用，退化为直连。
			m.logger.WithFields(fields).WithError(outcome.Err).Warn("control_channel_exhausted")
			return m.initDirect(ctx, InitResult{Outcome: outcome.Kind.String(), Attempts: outcome.Attempts}, fields)
		}
	}

	return m.initDirect(ctx, InitResult{Outcome: control.OutcomeReady.String()}, fields)
}

// initDirect 从源站直接加载清单，失败时使用空清单。
func (m *Manager) initDirect(ctx context.Context, result InitResult, fields logrus.Fields) InitResult {
	result.Mode = ModeDirect
	loaded, err := m.loadDirectManifest(ctx)
	if err != nil {
		m.logger.WithFields(fields).WithError(err).Warn("manifest_fallback")
		result.Outcome = control.OutcomeFailed.String()
		result.Manifest = manifest.Fallback()
		result.Fallback = true
	} else {
		result.Manifest = loaded
	}
	return m.finishInit(result, fields)
}

func (m *Manager) finishInit(result InitResult, fields logrus.Fields) InitResult {
	m.mu.Lock()
	m.mode = result.Mode
	m.manifest = result.Manifest
	m.mu.Unlock()

	fields["mode"] = string(result.Mode)
	fields["outcome"] = result.Outcome
	fields["manifest_version"] = result.Manifest.Version
	fields["assets"] = result.Manifest.Len()
	m.logger.WithFields(fields).Info("manager_initialized")
	return result
}

// probeLoader 通过 GET /-/status 判断加载器是否存在且已激活。
func (m *Manager) probeLoader(ctx context.Context) bool {
	if m.opts.LoaderURL == "" {
		return false
	}
	probeCtx, cancel := context.WithTimeout(ctx, m.opts.MessageTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(probeCtx, http.MethodGet, m.opts.LoaderURL+routes.StatusPath, nil)
	if err != nil {
		return false
	}
	resp, err := m.opts.HTTPClient.Do(req)
	if err != nil {
		m.logger.WithFields(logrus.Fields{"action": "loader_probe"}).WithError(err).Info("loader_unreachable")
		return false
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return false
	}

	var status routes.StatusPayload
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&status); err != nil {
		return false
	}
	return status.Active
}

func (m *Manager) loadDirectManifest(ctx context.Context) (*manifest.Manifest, error) {
	if m.opts.ManifestURL == "" {
		return nil, errors.New("manifest url not configured")
	}
	client, err := manifest.NewClient(manifest.Options{
		URL:        m.opts.ManifestURL,
		HTTPClient: m.opts.HTTPClient,
		Logger:     m.logger,
	})
	if err != nil {
		return nil, err
	}
	if err := client.Load(ctx, "direct_mode"); err != nil {
		return nil, err
	}
	return client.Current(), nil
}

// Manifest 返回 Initialize 得到的清单，未初始化时为 nil。
func (m *Manager) Manifest() *manifest.Manifest {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.manifest
}

// Mode 返回当前工作模式。
func (m *Manager) Mode() Mode {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.mode
}

// IsLoaderActive 表示资源是否经由加载器获取。
func (m *Manager) IsLoaderActive() bool {
	return m.Mode() == ModeLoader
}

// ClearCache 请求加载器清空共享缓存；直连模式下没有可清理的对象，返回 false。
func (m *Manager) ClearCache(ctx context.Context) (bool, error) {
	if !m.IsLoaderActive() {
		return false, nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, m.opts.LoaderURL+routes.CachePath, nil)
	if err != nil {
		return false, err
	}
	resp, err := m.opts.HTTPClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("clear cache: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("clear cache: status %d", resp.StatusCode)
	}
	m.logger.WithFields(logrus.Fields{"action": "cache_clear"}).Info("cache_cleared")
	return true, nil
}

// GetAssetGroupsForScene 返回 general ∪ 场景优先分组 ∪ animations。
func (m *Manager) GetAssetGroupsForScene(scene string) []string {
	return m.opts.Catalog.GroupsForScene(scene)
}

// LoadSceneAssets 加载场景所需的全部资源；scene 为空时加载目录中的全部分组。
func (m *Manager) LoadSceneAssets(ctx context.Context, scene string, excludeGroups []string, onProgress func(Progress)) LoadResult {
	groups := m.opts.Catalog.AllGroups()
	if scene != "" {
		groups = m.GetAssetGroupsForScene(scene)
	}
	return m.LoadGroups(ctx, catalog.Exclude(groups, excludeGroups), onProgress)
}

// LoadGroups 展开分组为资源路径并加载。
func (m *Manager) LoadGroups(ctx context.Context, groups []string, onProgress func(Progress)) LoadResult {
	paths := m.opts.Catalog.PathsForGroups(groups)
	m.logger.WithFields(logrus.Fields{
		"action": "load_groups",
		"groups": groups,
		"assets": len(paths),
	}).Debug("groups_resolved")
	return m.LoadAssets(ctx, paths, onProgress)
}
