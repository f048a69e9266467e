package config

import (
	"fmt"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// 默认值与单进程部署对齐：加载器监听 5000，管理端直接访问本机。
const (
	DefaultListenPort            = 5000
	DefaultManifestPath          = "/assets-manifest.json"
	DefaultUpstreamTimeout       = 30 * time.Second
	DefaultRefreshDebounce       = time.Second
	DefaultAssetTimeout          = 10 * time.Second
	DefaultManifestAttempts      = 15
	DefaultManifestRetryInterval = 500 * time.Millisecond
	DefaultMessageTimeout        = 2 * time.Second
)

// Load 读取并解析 TOML 配置文件，同时注入默认值与校验逻辑。
func Load(path string) (*Config, error) {
	if path == "" {
		path = "config.toml"
	}

	v := viper.New()
	v.SetConfigFile(path)
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("读取配置失败: %w", err)
	}

	if err := rejectLegacyHubs(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(durationDecodeHook())); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	applyGlobalDefaults(&cfg.Global)
	applyManagerDefaults(&cfg.Manager, cfg.Global)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	absStorage, err := filepath.Abs(cfg.Global.StoragePath)
	if err != nil {
		return nil, fmt.Errorf("无法解析缓存目录: %w", err)
	}
	cfg.Global.StoragePath = absStorage

	if cfg.Manager.CatalogPath != "" && !filepath.IsAbs(cfg.Manager.CatalogPath) {
		// 相对路径以配置文件所在目录为基准。
		cfg.Manager.CatalogPath = filepath.Join(filepath.Dir(path), cfg.Manager.CatalogPath)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ListenPort", DefaultListenPort)
	v.SetDefault("LogLevel", "info")
	v.SetDefault("LogFormat", "json")
	v.SetDefault("LogFilePath", "")
	v.SetDefault("LogMaxSize", 100)
	v.SetDefault("LogMaxBackups", 10)
	v.SetDefault("LogCompress", true)
	v.SetDefault("StoragePath", "./storage")
	v.SetDefault("ManifestPath", DefaultManifestPath)
	v.SetDefault("UpstreamTimeout", "30s")
	v.SetDefault("RefreshDebounce", "1s")
	v.SetDefault("Manager.AssetTimeout", "10s")
	v.SetDefault("Manager.ManifestAttempts", DefaultManifestAttempts)
	v.SetDefault("Manager.ManifestRetryInterval", "500ms")
	v.SetDefault("Manager.MessageTimeout", "2s")
}

func applyGlobalDefaults(g *GlobalConfig) {
	if g.ListenPort == 0 {
		g.ListenPort = DefaultListenPort
	}
	if strings.TrimSpace(g.ManifestPath) == "" {
		g.ManifestPath = DefaultManifestPath
	}
	if g.UpstreamTimeout.DurationValue() == 0 {
		g.UpstreamTimeout = Duration(DefaultUpstreamTimeout)
	}
	if g.RefreshDebounce.DurationValue() == 0 {
		g.RefreshDebounce = Duration(DefaultRefreshDebounce)
	}
	g.Upstream = strings.TrimSuffix(strings.TrimSpace(g.Upstream), "/")
}

func applyManagerDefaults(m *ManagerConfig, g GlobalConfig) {
	if strings.TrimSpace(m.LoaderURL) == "" {
		m.LoaderURL = fmt.Sprintf("http://127.0.0.1:%d", g.ListenPort)
	}
	m.LoaderURL = strings.TrimSuffix(m.LoaderURL, "/")
	if m.AssetTimeout.DurationValue() == 0 {
		m.AssetTimeout = Duration(DefaultAssetTimeout)
	}
	if m.ManifestAttempts == 0 {
		m.ManifestAttempts = DefaultManifestAttempts
	}
	if m.ManifestRetryInterval.DurationValue() == 0 {
		m.ManifestRetryInterval = Duration(DefaultManifestRetryInterval)
	}
	if m.MessageTimeout.DurationValue() == 0 {
		m.MessageTimeout = Duration(DefaultMessageTimeout)
	}
}

func durationDecodeHook() mapstructure.DecodeHookFunc {
	targetType := reflect.TypeOf(Duration(0))

	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != targetType {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			if v == "" {
				return Duration(0), nil
			}
			if parsed, err := time.ParseDuration(v); err == nil {
				return Duration(parsed), nil
			}
			if seconds, err := strconv.ParseFloat(v, 64); err == nil {
				return Duration(time.Duration(seconds * float64(time.Second))), nil
			}
			return nil, fmt.Errorf("无法解析 Duration 字段: %s", v)
		case int:
			return Duration(time.Duration(v) * time.Second), nil
		case int64:
			return Duration(time.Duration(v) * time.Second), nil
		case float64:
			return Duration(time.Duration(v * float64(time.Second))), nil
		case time.Duration:
			return Duration(v), nil
		case Duration:
			return v, nil
		default:
			return nil, fmt.Errorf("不支持的 Duration 类型: %T", v)
		}
	}
}

// rejectLegacyHubs 拒绝多 Hub 代理时代的 [[Hub]] 段，加载器只服务单一源站。
func rejectLegacyHubs(v *viper.Viper) error {
	if v.IsSet("Hub") {
		return newFieldError("Hub", "不再支持多 Hub 配置，请改用全局 Upstream")
	}
	return nil
}
