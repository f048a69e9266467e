package loader

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/assethub/assethub/internal/cache"
	"github.com/assethub/assethub/internal/manifest"
)

const heroKey = "texturesHeroPng"

type originStub struct {
	mu             sync.Mutex
	manifest       manifest.Manifest
	manifestStatus int
	bodies         map[string]string
	status         map[string]int
	hits           map[string]int
}

func newOriginStub(hash string) *originStub {
	return &originStub{
		manifest: manifest.Manifest{
			Version: "v-" + hash,
			Assets: map[string]manifest.Asset{
				heroKey: {Path: "/textures/hero.png", Hash: hash, Size: 10, Mtime: 1},
			},
		},
		bodies: map[string]string{"/textures/hero.png": "hero-bytes"},
		status: map[string]int{},
		hits:   map[string]int{},
	}
}

func (o *originStub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.hits[r.URL.Path]++

	if r.URL.Path == "/assets-manifest.json" {
		if o.manifestStatus != 0 {
			w.WriteHeader(o.manifestStatus)
			return
		}
		_ = json.NewEncoder(w).Encode(o.manifest)
		return
	}
	if status := o.status[r.URL.Path]; status != 0 {
		w.WriteHeader(status)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	http.ServeContent(w, r, r.URL.Path, time.Time{}, strings.NewReader(o.bodies[r.URL.Path]))
}

func (o *originStub) setHash(hash string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	asset := o.manifest.Assets[heroKey]
	asset.Hash = hash
	o.manifest.Assets = map[string]manifest.Asset{heroKey: asset}
	o.manifest.Version = "v-" + hash
}

func (o *originStub) hitCount(path string) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.hits[path]
}

type fixture struct {
	origin   *originStub
	server   *httptest.Server
	store    *cache.SQLiteStore
	manifest *manifest.Client
	loader   *Loader
}

func newFixture(t *testing.T, origin *originStub, activate bool) *fixture {
	t.Helper()

	srv := httptest.NewServer(origin)
	t.Cleanup(srv.Close)

	store, err := cache.OpenWriter(filepath.Join(t.TempDir(), cache.DatabaseName))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	mc, err := manifest.NewClient(manifest.Options{
		URL:        srv.URL + "/assets-manifest.json",
		HTTPClient: srv.Client(),
		Logger:     logger,
	})
	if err != nil {
		t.Fatalf("manifest client: %v", err)
	}

	l, err := New(Options{
		Origin:   srv.URL,
		Manifest: mc,
		Store:    store,
		Client:   srv.Client(),
		Logger:   logger,
	})
	if err != nil {
		t.Fatalf("new loader: %v", err)
	}
	if activate {
		ctx := context.Background()
		if err := l.Install(ctx); err != nil {
			t.Fatalf("install: %v", err)
		}
		if err := l.Activate(ctx); err != nil {
			t.Fatalf("activate: %v", err)
		}
	}
	return &fixture{origin: origin, server: srv, store: store, manifest: mc, loader: l}
}

func (f *fixture) get(t *testing.T, path string) (*http.Response, string) {
	t.Helper()
	return f.do(t, httptest.NewRequest(http.MethodGet, "http://assethub.local"+path, nil))
}

func (f *fixture) do(t *testing.T, req *http.Request) (*http.Response, string) {
	t.Helper()
	resp, err := f.loader.RoundTrip(req)
	if err != nil {
		t.Fatalf("round trip %s: %v", req.URL.Path, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp, string(body)
}

func TestManagedAssetCachedThenServedFromStore(t *testing.T) {
	f := newFixture(t, newOriginStub("abc"), true)

	resp, body := f.get(t, "/textures/hero.png")
	if resp.StatusCode != http.StatusOK || body != "hero-bytes" {
		t.Fatalf("unexpected first response: %d %q", resp.StatusCode, body)
	}
	if resp.Header.Get(ServedFromHeader) != "" {
		t.Fatalf("first response must come from origin")
	}
	if hits := f.origin.hitCount("/textures/hero.png"); hits != 1 {
		t.Fatalf("expected 1 origin fetch, got %d", hits)
	}
	record, err := f.store.Get(context.Background(), heroKey)
	if err != nil {
		t.Fatalf("expected record stored: %v", err)
	}
	if record.Hash != "abc" || record.ContentType != "image/png" || record.Path != "/textures/hero.png" {
		t.Fatalf("unexpected record: %+v", record)
	}

	resp, body = f.get(t, "/textures/hero.png?cb=2")
	if hits := f.origin.hitCount("/textures/hero.png"); hits != 1 {
		t.Fatalf("expected cache hit without origin fetch, got %d fetches", hits)
	}
	if resp.Header.Get(ServedFromHeader) != ServedFromCache {
		t.Fatalf("expected cache marker header, got %q", resp.Header.Get(ServedFromHeader))
	}
	if resp.Header.Get("Cache-Control") != CacheControlImmutable {
		t.Fatalf("unexpected cache-control %q", resp.Header.Get("Cache-Control"))
	}
	if resp.Header.Get("Content-Length") != "10" || body != "hero-bytes" {
		t.Fatalf("unexpected cached body %q (len header %s)", body, resp.Header.Get("Content-Length"))
	}
}

func TestManagedAssetRefetchedWhenHashChanges(t *testing.T) {
	f := newFixture(t, newOriginStub("abc"), true)
	f.get(t, "/textures/hero.png")

	f.origin.setHash("def")
	if err := f.manifest.Load(context.Background(), "test"); err != nil {
		t.Fatalf("reload manifest: %v", err)
	}

	resp, _ := f.get(t, "/textures/hero.png")
	if resp.Header.Get(ServedFromHeader) != "" {
		t.Fatalf("stale record must not be served")
	}
	if hits := f.origin.hitCount("/textures/hero.png"); hits != 2 {
		t.Fatalf("expected exactly one refetch, got %d fetches", hits)
	}
	record, err := f.store.Get(context.Background(), heroKey)
	if err != nil {
		t.Fatalf("expected refreshed record: %v", err)
	}
	if record.Hash != "def" {
		t.Fatalf("expected hash def, got %s", record.Hash)
	}

	f.get(t, "/textures/hero.png")
	if hits := f.origin.hitCount("/textures/hero.png"); hits != 2 {
		t.Fatalf("expected refreshed record to serve, got %d fetches", hits)
	}
}

func TestUnmanagedAssetPurgesRecordAndNeverCaches(t *testing.T) {
	origin := newOriginStub("abc")
	origin.bodies["/old/logo.png"] = "logo"
	f := newFixture(t, origin, true)

	ctx := context.Background()
	if _, err := f.store.Put(ctx, cache.Record{ManifestKey: "oldLogoPng", Path: "/old/logo.png", Hash: "zzz", Blob: []byte("old")}); err != nil {
		t.Fatalf("seed record: %v", err)
	}

	for i := 0; i < 2; i++ {
		resp, body := f.get(t, "/old/logo.png")
		if resp.Header.Get(ServedFromHeader) != "" || body != "logo" {
			t.Fatalf("unmanaged asset served from cache: %q", body)
		}
	}
	if hits := f.origin.hitCount("/old/logo.png"); hits != 2 {
		t.Fatalf("expected every unmanaged request to reach origin, got %d", hits)
	}
	if _, err := f.store.Get(ctx, "oldLogoPng"); !errors.Is(err, cache.ErrNotFound) {
		t.Fatalf("expected stale record purged, got %v", err)
	}
}

func TestFailedOriginResponseIsNotCached(t *testing.T) {
	origin := newOriginStub("abc")
	origin.status["/textures/hero.png"] = http.StatusNotFound
	f := newFixture(t, origin, true)

	resp, _ := f.get(t, "/textures/hero.png")
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected origin status to pass through, got %d", resp.StatusCode)
	}
	if _, err := f.store.Get(context.Background(), heroKey); !errors.Is(err, cache.ErrNotFound) {
		t.Fatalf("failed response must not be cached, got %v", err)
	}
}

func TestRangeRequestIsNeverCached(t *testing.T) {
	f := newFixture(t, newOriginStub("abc"), true)

	req := httptest.NewRequest(http.MethodGet, "http://assethub.local/textures/hero.png", nil)
	req.Header.Set("Range", "bytes=0-3")
	resp, body := f.do(t, req)
	if resp.StatusCode != http.StatusPartialContent || body != "hero" {
		t.Fatalf("expected partial origin response, got %d %q", resp.StatusCode, body)
	}
	if _, err := f.store.Get(context.Background(), heroKey); !errors.Is(err, cache.ErrNotFound) {
		t.Fatalf("partial body must not be cached, got %v", err)
	}

	resp, body = f.get(t, "/textures/hero.png")
	if resp.StatusCode != http.StatusOK || body != "hero-bytes" || resp.Header.Get(ServedFromHeader) != "" {
		t.Fatalf("full request must reach origin, got %d %q", resp.StatusCode, body)
	}
	resp, body = f.get(t, "/textures/hero.png")
	if resp.Header.Get(ServedFromHeader) != ServedFromCache || body != "hero-bytes" {
		t.Fatalf("full body should be cached, got %q", body)
	}
	if hits := f.origin.hitCount("/textures/hero.png"); hits != 2 {
		t.Fatalf("expected 2 origin fetches, got %d", hits)
	}
}

func TestRoundTripRecordsClassification(t *testing.T) {
	origin := newOriginStub("abc")
	origin.bodies["/old/logo.png"] = "logo"
	f := newFixture(t, origin, true)

	cases := map[string]Classification{
		"/textures/hero.png": {Kind: Managed, Key: heroKey},
		"/old/logo.png":      {Kind: Unmanaged, Key: "oldLogoPng"},
		"/api/profile":       {Kind: Passthrough},
	}
	for path, want := range cases {
		req := httptest.NewRequest(http.MethodGet, "http://assethub.local"+path, nil)
		ctx, got := WithClassification(req.Context())
		f.do(t, req.WithContext(ctx))
		if got.Kind != want.Kind || got.Key != want.Key {
			t.Fatalf("%s: expected %s/%q, got %s/%q", path, want.Kind, want.Key, got.Kind, got.Key)
		}
	}
}

func TestInactiveLoaderPassesThrough(t *testing.T) {
	f := newFixture(t, newOriginStub("abc"), false)

	f.get(t, "/textures/hero.png")
	f.get(t, "/textures/hero.png")
	if hits := f.origin.hitCount("/textures/hero.png"); hits != 2 {
		t.Fatalf("expected passthrough before activation, got %d fetches", hits)
	}
	if _, err := f.store.Get(context.Background(), heroKey); !errors.Is(err, cache.ErrNotFound) {
		t.Fatalf("inactive loader must not write, got %v", err)
	}
}

func TestMissingManifestDegradesToPassthrough(t *testing.T) {
	origin := newOriginStub("abc")
	origin.manifestStatus = http.StatusInternalServerError
	f := newFixture(t, origin, true)

	if !f.loader.Active() {
		t.Fatalf("activation must not be blocked by manifest failure")
	}
	resp, body := f.get(t, "/textures/hero.png")
	if resp.StatusCode != http.StatusOK || body != "hero-bytes" {
		t.Fatalf("expected passthrough response, got %d %q", resp.StatusCode, body)
	}
	if _, err := f.store.Get(context.Background(), heroKey); !errors.Is(err, cache.ErrNotFound) {
		t.Fatalf("nothing may be cached without a manifest, got %v", err)
	}
}

func TestForcedReloadNavigationRefreshesManifest(t *testing.T) {
	origin := newOriginStub("abc")
	origin.bodies["/index.html"] = "<html></html>"
	f := newFixture(t, origin, true)
	before := f.origin.hitCount("/assets-manifest.json")

	req := httptest.NewRequest(http.MethodGet, "http://assethub.local/index.html", nil)
	req.Header.Set("Sec-Fetch-Mode", "navigate")
	req.Header.Set("Cache-Control", "no-cache")
	resp, err := f.loader.RoundTrip(req)
	if err != nil {
		t.Fatalf("round trip: %v", err)
	}
	resp.Body.Close()

	deadline := time.Now().Add(2 * time.Second)
	for f.origin.hitCount("/assets-manifest.json") == before {
		if time.Now().After(deadline) {
			t.Fatalf("expected forced manifest refresh")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestClassify(t *testing.T) {
	m := &manifest.Manifest{Assets: map[string]manifest.Asset{heroKey: {Hash: "abc"}}}

	cases := []struct {
		name   string
		method string
		path   string
		extra  []string
		want   Kind
	}{
		{"managed", http.MethodGet, "/textures/hero.png", nil, Managed},
		{"unmanaged", http.MethodGet, "/textures/other.png", nil, Unmanaged},
		{"post", http.MethodPost, "/textures/hero.png", nil, Passthrough},
		{"api", http.MethodGet, "/api/scores", nil, Passthrough},
		{"source", http.MethodGet, "/src/main.ts", nil, Passthrough},
		{"underscore", http.MethodGet, "/_next/chunk.js", nil, Passthrough},
		{"vite", http.MethodGet, "/@vite/client", nil, Passthrough},
		{"fs", http.MethodGet, "/@fs/tmp/x.js", nil, Passthrough},
		{"diagnostics", http.MethodGet, "/-/status", nil, Passthrough},
		{"worker", http.MethodGet, "/game-worker.js", nil, Passthrough},
		{"manifest", http.MethodGet, "/assets-manifest.json", nil, Passthrough},
		{"html", http.MethodGet, "/index.html", nil, Passthrough},
		{"root", http.MethodGet, "/", nil, Passthrough},
		{"extra prefix", http.MethodGet, "/textures/hero.png", []string{"/textures/"}, Passthrough},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Classify(m, tc.method, tc.path, tc.extra)
			if got.Kind != tc.want {
				t.Fatalf("classify %s %s: want %s, got %s", tc.method, tc.path, tc.want, got.Kind)
			}
			if got.Kind == Managed && got.Asset.Hash != "abc" {
				t.Fatalf("managed classification must carry asset descriptor")
			}
		})
	}

	if got := Classify(nil, http.MethodGet, "/textures/hero.png", nil); got.Kind != Passthrough {
		t.Fatalf("nil manifest must pass through, got %s", got.Kind)
	}
}
