package loader

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/assethub/assethub/internal/cache"
	"github.com/assethub/assethub/internal/logging"
	"github.com/assethub/assethub/internal/manifest"
	"github.com/assethub/assethub/internal/server"
)

// 缓存命中时合成响应使用的头部。
const (
	CacheControlImmutable = "public, max-age=31536000"
	ServedFromHeader      = "X-Served-From"
	ServedFromCache       = "assethub-cache"
)

// Options 描述加载器依赖；Store 为空表示本次会话禁用缓存，请求全部直通。
type Options struct {
	Origin          string
	Manifest        *manifest.Client
	Store           cache.Store
	Client          *http.Client
	Logger          *logrus.Logger
	ExcludePrefixes []string
}

// Loader 是拦截层本体，实现 http.RoundTripper。
type Loader struct {
	origin   *url.URL
	manifest *manifest.Client
	store    cache.Store
	client   *http.Client
	logger   *logrus.Logger
	exclude  []string

	active atomic.Bool
}

var _ http.RoundTripper = (*Loader)(nil)

// New 校验依赖并构造加载器，构造后处于未激活状态。
func New(opts Options) (*Loader, error) {
	if opts.Manifest == nil {
		return nil, errors.New("manifest client is required")
	}
	origin, err := url.Parse(opts.Origin)
	if err != nil {
		return nil, fmt.Errorf("invalid origin: %w", err)
	}
	if origin.Scheme == "" || origin.Host == "" {
		return nil, fmt.Errorf("invalid origin: %q", opts.Origin)
	}
	client := opts.Client
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Loader{
		origin:   origin,
		manifest: opts.Manifest,
		store:    opts.Store,
		client:   client,
		logger:   logger,
		exclude:  append([]string(nil), opts.ExcludePrefixes...),
	}, nil
}

// Install 预加载清单；加载失败只记录日志，加载器以降级模式继续。
func (l *Loader) Install(ctx context.Context) error {
	if err := l.manifest.Load(ctx, "install"); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		l.logger.WithFields(logrus.Fields{"action": "loader_install"}).
			WithError(err).Warn("loader_degraded")
	}
	return nil
}

// Activate 等待在途的清单加载结束（没有清单时发起一次），之后才开始接管请求。
func (l *Loader) Activate(ctx context.Context) error {
	if l.manifest.Current() == nil || l.manifest.Loading() {
		if err := l.manifest.Load(ctx, "activate"); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			l.logger.WithFields(logrus.Fields{"action": "loader_activate"}).
				WithError(err).Warn("loader_degraded")
		}
	}
	l.active.Store(true)
	current := l.manifest.Current()
	l.logger.WithFields(logrus.Fields{
		"action":           "loader_activate",
		"manifest_version": versionOf(current),
		"assets":           current.Len(),
	}).Info("loader_activated")
	return nil
}

// Active 表示加载器是否已接管请求。
func (l *Loader) Active() bool {
	return l.active.Load()
}

// Manifest 返回当前持有的清单，可能为 nil。
func (l *Loader) Manifest() *manifest.Manifest {
	return l.manifest.Current()
}

// ManifestLoading 表示是否有清单加载在途。
func (l *Loader) ManifestLoading() bool {
	return l.manifest.Loading()
}

// RoundTrip 执行分类并分派到 managed/unmanaged/直通三条路径。
func (l *Loader) RoundTrip(req *http.Request) (*http.Response, error) {
	if !l.Active() {
		return l.forward(req)
	}

	if reason := manifest.RefreshReason(manifest.SignalFromRequest(req)); reason != "" {
		go l.refresh(reason)
	}

	if !Intercepts(req.Method, req.URL.Path, l.exclude) {
		return l.forward(req)
	}

	current := l.ensureManifest(req.Context(), req.URL.Path)
	class := Classify(current, req.Method, req.URL.Path, l.exclude)
	RecordClassification(req.Context(), class)
	switch class.Kind {
	case Managed:
		return l.serveManaged(req, class)
	case Unmanaged:
		return l.serveUnmanaged(req, class)
	default:
		return l.forward(req)
	}
}

func (l *Loader) ensureManifest(ctx context.Context, path string) *manifest.Manifest {
	if current := l.manifest.Current(); current != nil {
		return current
	}
	if err := l.manifest.Load(ctx, "request"); err != nil {
		l.logger.WithFields(logrus.Fields{"action": "loader_request", "path": path}).
			WithError(err).Warn("manifest_unavailable_passthrough")
	}
	return l.manifest.Current()
}

func (l *Loader) refresh(reason string) {
	if err := l.manifest.QueueForcedRefresh(context.Background(), reason); err != nil {
		l.logger.WithFields(logrus.Fields{"action": "manifest_refresh", "reason": reason}).
			WithError(err).Warn("manifest_refresh_failed")
	}
}

func (l *Loader) serveManaged(req *http.Request, class Classification) (*http.Response, error) {
	ctx := req.Context()
	fields := logrus.Fields{"action": "loader_managed", "manifest_key": class.Key, "path": req.URL.Path}

	if l.store != nil {
		record, err := l.store.Get(ctx, class.Key)
		switch {
		case err == nil:
			if cache.Matches(record, class.Asset) {
				l.logger.WithFields(fields).Debug("asset_cache_hit")
				return cachedResponse(req, record), nil
			}
			fields["stale_hash"] = record.Hash
			l.evict(ctx, class.Key, fields, "asset_stale_evicted")
		case errors.Is(err, cache.ErrNotFound):
		default:
			l.logger.WithFields(fields).WithError(err).Warn("cache_get_failed")
		}
	}

	resp, err := l.forward(req)
	if err != nil {
		return nil, err
	}
	// 只缓存完整正文：206 分片或带 Range 的请求若入库，会以截断内容冒充有效缓存。
	if resp.StatusCode != http.StatusOK || req.Header.Get("Range") != "" || l.store == nil {
		return resp, nil
	}

	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return nil, fmt.Errorf("read origin body: %w", err)
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = cache.DefaultContentType
	}
	_, err = l.store.Put(ctx, cache.Record{
		ManifestKey: class.Key,
		Path:        req.URL.Path,
		Hash:        class.Asset.Hash,
		Blob:        body,
		Mtime:       class.Asset.Mtime,
		ContentType: contentType,
	})
	if err != nil {
		l.logger.WithFields(fields).WithError(err).Warn("cache_put_failed")
	} else {
		fields["hash"] = class.Asset.Hash
		l.logger.WithFields(fields).WithFields(logging.SizeFields(int64(len(body)))).Info("asset_cached")
	}

	resp.Body = io.NopCloser(bytes.NewReader(body))
	resp.ContentLength = int64(len(body))
	resp.Header.Set("Content-Length", strconv.Itoa(len(body)))
	return resp, nil
}

func (l *Loader) serveUnmanaged(req *http.Request, class Classification) (*http.Response, error) {
	if l.store != nil {
		ctx := req.Context()
		fields := logrus.Fields{"action": "loader_unmanaged", "manifest_key": class.Key, "path": req.URL.Path}
		_, err := l.store.Get(ctx, class.Key)
		switch {
		case err == nil:
			l.evict(ctx, class.Key, fields, "unmanaged_purged")
		case errors.Is(err, cache.ErrNotFound):
		default:
			l.logger.WithFields(fields).WithError(err).Warn("cache_get_failed")
		}
	}
	return l.forward(req)
}

func (l *Loader) evict(ctx context.Context, key string, fields logrus.Fields, event string) {
	if err := l.store.Delete(ctx, key); err != nil {
		l.logger.WithFields(fields).WithError(err).Warn("cache_delete_failed")
		return
	}
	l.logger.WithFields(fields).Info(event)
}

// forward 将请求原样转发到源站，剥离 hop-by-hop 头并交由 Transport 处理压缩。
func (l *Loader) forward(req *http.Request) (*http.Response, error) {
	out, err := l.upstreamRequest(req)
	if err != nil {
		return nil, err
	}
	return l.client.Do(out)
}

func (l *Loader) upstreamRequest(req *http.Request) (*http.Request, error) {
	target := *l.origin
	base := strings.TrimSuffix(l.origin.Path, "/")
	target.Path = base + req.URL.Path
	if req.URL.RawPath != "" {
		target.RawPath = base + req.URL.RawPath
	} else {
		target.RawPath = ""
	}
	target.RawQuery = req.URL.RawQuery
	target.Fragment = ""

	body := req.Body
	if body == nil {
		body = http.NoBody
	}
	out, err := http.NewRequestWithContext(req.Context(), req.Method, target.String(), body)
	if err != nil {
		return nil, err
	}
	server.CopyHeaders(out.Header, req.Header)
	out.Header.Del("Accept-Encoding")
	out.Host = target.Host
	if req.ContentLength > 0 {
		out.ContentLength = req.ContentLength
	}
	return out, nil
}

func cachedResponse(req *http.Request, record *cache.Record) *http.Response {
	contentType := record.ContentType
	if contentType == "" {
		contentType = cache.DefaultContentType
	}
	header := make(http.Header)
	header.Set("Content-Type", contentType)
	header.Set("Content-Length", strconv.Itoa(len(record.Blob)))
	header.Set("Cache-Control", CacheControlImmutable)
	header.Set(ServedFromHeader, ServedFromCache)
	return &http.Response{
		Status:        "200 OK",
		StatusCode:    http.StatusOK,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        header,
		Body:          io.NopCloser(bytes.NewReader(record.Blob)),
		ContentLength: int64(len(record.Blob)),
		Request:       req,
	}
}

func versionOf(m *manifest.Manifest) string {
	if m == nil {
		return ""
	}
	return m.Version
}
