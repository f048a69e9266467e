package config

import (
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadWithDefaults(t *testing.T) {
	cfg, err := Load(fixture("valid.toml"))
	if err != nil {
		t.Fatalf("Load 返回错误: %v", err)
	}
	g := cfg.Global
	if g.ListenPort != 5080 {
		t.Fatalf("ListenPort 应当被解析, got %d", g.ListenPort)
	}
	if !filepath.IsAbs(g.StoragePath) {
		t.Fatalf("StoragePath 应转换为绝对路径: %s", g.StoragePath)
	}
	if g.Upstream != "https://game.example.com" {
		t.Fatalf("Upstream 末尾斜杠应被去除: %s", g.Upstream)
	}
	if g.ManifestURL() != "https://game.example.com/assets-manifest.json" {
		t.Fatalf("清单地址错误: %s", g.ManifestURL())
	}
	if g.UpstreamTimeout.DurationValue() != 20*time.Second {
		t.Fatalf("纯数字应按秒解析, got %s", g.UpstreamTimeout.DurationValue())
	}
	if g.RefreshDebounce.DurationValue() != time.Second {
		t.Fatalf("RefreshDebounce 默认应为 1s")
	}
	if len(g.ExcludePrefixes) != 1 || g.ExcludePrefixes[0] != "/socket/" {
		t.Fatalf("ExcludePrefixes 解析错误: %v", g.ExcludePrefixes)
	}

	m := cfg.Manager
	if m.LoaderURL != "http://127.0.0.1:5080" {
		t.Fatalf("LoaderURL 默认应指向本机监听端口: %s", m.LoaderURL)
	}
	if m.CatalogPath != filepath.Join("testdata", "catalog.toml") {
		t.Fatalf("CatalogPath 应相对配置文件解析: %s", m.CatalogPath)
	}
	if m.AssetTimeout.DurationValue() != 5*time.Second {
		t.Fatalf("AssetTimeout 解析错误")
	}
	if m.ManifestAttempts != DefaultManifestAttempts {
		t.Fatalf("ManifestAttempts 默认应为 %d", DefaultManifestAttempts)
	}
	if m.ManifestRetryInterval.DurationValue() != 250*time.Millisecond {
		t.Fatalf("ManifestRetryInterval 解析错误")
	}
	if m.MessageTimeout.DurationValue() != DefaultMessageTimeout {
		t.Fatalf("MessageTimeout 默认应为 2s")
	}
}

func TestValidateRejectsMissingUpstream(t *testing.T) {
	if _, err := Load(fixture("missing.toml")); err == nil {
		t.Fatalf("缺少 Upstream 的配置应返回错误")
	}
}

func TestValidateEnforcesListenPortRange(t *testing.T) {
	cfg := validConfig()
	cfg.Global.ListenPort = 70000
	if err := cfg.Validate(); err == nil {
		t.Fatalf("ListenPort 超出范围应当报错")
	}
}

func TestValidateFieldErrors(t *testing.T) {
	testCases := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"manifest path", func(c *Config) { c.Global.ManifestPath = "assets.json" }, "Global.ManifestPath"},
		{"exclude prefix", func(c *Config) { c.Global.ExcludePrefixes = []string{"api"} }, "Global.ExcludePrefixes"},
		{"debounce", func(c *Config) { c.Global.RefreshDebounce = 0 }, "Global.RefreshDebounce"},
		{"asset timeout", func(c *Config) { c.Manager.AssetTimeout = 0 }, "Manager.AssetTimeout"},
		{"attempts", func(c *Config) { c.Manager.ManifestAttempts = -1 }, "Manager.ManifestAttempts"},
		{"message timeout", func(c *Config) { c.Manager.MessageTimeout = 0 }, "Manager.MessageTimeout"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig()
			tc.mutate(cfg)
			err := cfg.Validate()
			var fieldErr FieldError
			if !errors.As(err, &fieldErr) {
				t.Fatalf("expected FieldError, got %v", err)
			}
			if fieldErr.Field != tc.field {
				t.Fatalf("expected field %s, got %s", tc.field, fieldErr.Field)
			}
		})
	}
}

func TestValidateRejectsNonHTTPUpstream(t *testing.T) {
	cfg := validConfig()
	cfg.Global.Upstream = "ftp://assets.local"
	if err := cfg.Validate(); err == nil {
		t.Fatalf("非 http/https 上游应报错")
	}
	cfg = validConfig()
	cfg.Manager.LoaderURL = "127.0.0.1:5000"
	if err := cfg.Validate(); err == nil {
		t.Fatalf("缺少协议头的 LoaderURL 应报错")
	}
}

func validConfig() *Config {
	return &Config{
		Global: GlobalConfig{
			ListenPort:      5000,
			StoragePath:     "./data",
			Upstream:        "https://game.example.com",
			ManifestPath:    DefaultManifestPath,
			UpstreamTimeout: Duration(time.Second),
			RefreshDebounce: Duration(time.Second),
		},
		Manager: ManagerConfig{
			LoaderURL:             "http://127.0.0.1:5000",
			AssetTimeout:          Duration(time.Second),
			ManifestAttempts:      3,
			ManifestRetryInterval: Duration(time.Millisecond),
			MessageTimeout:        Duration(time.Second),
		},
	}
}
