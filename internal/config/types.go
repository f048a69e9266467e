package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Duration 提供更灵活的反序列化能力，同时兼容纯秒整数与 Go Duration 字符串。
type Duration time.Duration

// UnmarshalText 使 Viper 可以识别诸如 "30s"、"500ms" 或纯数字秒值等配置写法。
func (d *Duration) UnmarshalText(text []byte) error {
	raw := strings.TrimSpace(string(text))
	if raw == "" {
		*d = Duration(0)
		return nil
	}
	if parsed, err := time.ParseDuration(raw); err == nil {
		*d = Duration(parsed)
		return nil
	}
	if seconds, err := strconv.ParseInt(raw, 10, 64); err == nil {
		*d = Duration(time.Duration(seconds) * time.Second)
		return nil
	}
	return fmt.Errorf("invalid duration value: %s", raw)
}

// DurationValue 返回真实的 time.Duration，便于调用方计算。
func (d Duration) DurationValue() time.Duration {
	return time.Duration(d)
}

// GlobalConfig 描述加载器进程的运行参数。
type GlobalConfig struct {
	ListenPort      int      `mapstructure:"ListenPort"`
	LogLevel        string   `mapstructure:"LogLevel"`
	LogFormat       string   `mapstructure:"LogFormat"`
	LogFilePath     string   `mapstructure:"LogFilePath"`
	LogMaxSize      int      `mapstructure:"LogMaxSize"`
	LogMaxBackups   int      `mapstructure:"LogMaxBackups"`
	LogCompress     bool     `mapstructure:"LogCompress"`
	StoragePath     string   `mapstructure:"StoragePath"`
	Upstream        string   `mapstructure:"Upstream"`
	ManifestPath    string   `mapstructure:"ManifestPath"`
	UpstreamTimeout Duration `mapstructure:"UpstreamTimeout"`
	RefreshDebounce Duration `mapstructure:"RefreshDebounce"`
	ExcludePrefixes []string `mapstructure:"ExcludePrefixes"`
}

// ManagerConfig 描述预加载端（assetctl preload）的行为。
type ManagerConfig struct {
	LoaderURL             string   `mapstructure:"LoaderURL"`
	CatalogPath           string   `mapstructure:"CatalogPath"`
	AssetTimeout          Duration `mapstructure:"AssetTimeout"`
	ManifestAttempts      int      `mapstructure:"ManifestAttempts"`
	ManifestRetryInterval Duration `mapstructure:"ManifestRetryInterval"`
	MessageTimeout        Duration `mapstructure:"MessageTimeout"`
}

// Config 是 TOML 文件映射的整体结构。
type Config struct {
	Global  GlobalConfig  `mapstructure:",squash"`
	Manager ManagerConfig `mapstructure:"Manager"`
}

// ManifestURL 返回源站清单的完整地址。
func (g GlobalConfig) ManifestURL() string {
	return strings.TrimSuffix(g.Upstream, "/") + g.ManifestPath
}
