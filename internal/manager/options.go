package manager

import (
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/assethub/assethub/internal/cache"
	"github.com/assethub/assethub/internal/catalog"
	"github.com/assethub/assethub/internal/config"
	"github.com/assethub/assethub/internal/control"
	"github.com/assethub/assethub/internal/server"
)

// Options 描述 Manager 的依赖，零值字段取默认。
type Options struct {
	// LoaderURL 是加载器的根地址，例如 http://127.0.0.1:5000。
	LoaderURL string
	// OriginURL 是源站根地址，直连模式下资源从这里取。
	OriginURL string
	// ManifestURL 是源站清单的完整地址，直连模式使用。
	ManifestURL string

	Catalog *catalog.Catalog
	// Store 为只读缓存句柄；为 nil 时所有资源都视为未缓存。
	Store cache.Reader

	HTTPClient     *http.Client
	Logger         *logrus.Logger
	AssetTimeout   time.Duration
	MessageTimeout time.Duration
	Retry          control.RetryPolicy
}

// OptionsFromConfig 按配置文件填充 Options，Catalog 与 Store 由调用方另行打开。
func OptionsFromConfig(cfg *config.Config) Options {
	if cfg == nil {
		return Options{}
	}
	return Options{
		LoaderURL:      cfg.Manager.LoaderURL,
		OriginURL:      cfg.Global.Upstream,
		ManifestURL:    cfg.Global.ManifestURL(),
		HTTPClient:     server.NewManifestClient(cfg),
		AssetTimeout:   cfg.Manager.AssetTimeout.DurationValue(),
		MessageTimeout: cfg.Manager.MessageTimeout.DurationValue(),
		Retry: control.RetryPolicy{
			MaxAttempts: cfg.Manager.ManifestAttempts,
			Interval:    cfg.Manager.ManifestRetryInterval.DurationValue(),
		},
	}
}

func (o *Options) applyDefaults() {
	if o.HTTPClient == nil {
		o.HTTPClient = &http.Client{}
	}
	if o.Logger == nil {
		o.Logger = logrus.StandardLogger()
	}
	if o.AssetTimeout <= 0 {
		o.AssetTimeout = config.DefaultAssetTimeout
	}
	if o.MessageTimeout <= 0 {
		o.MessageTimeout = control.DefaultMessageTimeout
	}
	if o.Retry.Logger == nil {
		o.Retry.Logger = o.Logger
	}
}
