package config

import (
	"errors"
	"testing"
)

func TestLoadFailsWithMissingFile(t *testing.T) {
	if _, err := Load(fixture("absent.toml")); err == nil {
		t.Fatalf("不存在的配置文件应返回错误")
	}
}

func TestLoadRejectsInvalidDuration(t *testing.T) {
	cfg := `
LogLevel = "info"
StoragePath = "./data"
Upstream = "https://game.example.com"
UpstreamTimeout = "boom"
`
	path := writeTempConfig(t, cfg)
	if _, err := Load(path); err == nil {
		t.Fatalf("无效 Duration 应失败")
	}
}

func TestLoadRejectsLegacyHubSections(t *testing.T) {
	cfg := `
StoragePath = "./data"
Upstream = "https://game.example.com"

[[Hub]]
Name = "docker"
Domain = "docker.local"
`
	path := writeTempConfig(t, cfg)
	_, err := Load(path)
	var fieldErr FieldError
	if !errors.As(err, &fieldErr) || fieldErr.Field != "Hub" {
		t.Fatalf("[[Hub]] 段应被拒绝, got %v", err)
	}
}

func TestLoadKeepsAbsoluteCatalogPath(t *testing.T) {
	cfg := `
StoragePath = "./data"
Upstream = "http://localhost:3000"

[Manager]
CatalogPath = "/etc/assethub/catalog.toml"
LoaderURL = "http://loader.internal:5000/"
`
	cfgPath := writeTempConfig(t, cfg)
	loaded, err := Load(cfgPath)
	if err != nil {
		t.Fatalf("Load 返回错误: %v", err)
	}
	if loaded.Manager.CatalogPath != "/etc/assethub/catalog.toml" {
		t.Fatalf("绝对路径不应被改写: %s", loaded.Manager.CatalogPath)
	}
	if loaded.Manager.LoaderURL != "http://loader.internal:5000" {
		t.Fatalf("LoaderURL 末尾斜杠应被去除: %s", loaded.Manager.LoaderURL)
	}
}
