package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Validate 针对语义级别做进一步校验，防止非法配置启动服务。
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("配置为空")
	}

	g := c.Global
	if g.ListenPort <= 0 || g.ListenPort > 65535 {
		return newFieldError("Global.ListenPort", "必须在 1-65535")
	}
	if g.StoragePath == "" {
		return newFieldError("Global.StoragePath", "不能为空")
	}
	if g.LogMaxSize < 0 || g.LogMaxBackups < 0 {
		return newFieldError("Global.LogMaxSize/LogMaxBackups", "不能为负数")
	}
	if err := validateUpstream(g.Upstream); err != nil {
		return fmt.Errorf("Global.Upstream: %w", err)
	}
	if !strings.HasPrefix(g.ManifestPath, "/") {
		return newFieldError("Global.ManifestPath", "必须以 / 开头")
	}
	if g.UpstreamTimeout.DurationValue() <= 0 {
		return newFieldError("Global.UpstreamTimeout", "必须大于 0")
	}
	if g.RefreshDebounce.DurationValue() <= 0 {
		return newFieldError("Global.RefreshDebounce", "必须大于 0")
	}
	for _, prefix := range g.ExcludePrefixes {
		if !strings.HasPrefix(prefix, "/") {
			return newFieldError("Global.ExcludePrefixes", fmt.Sprintf("前缀必须以 / 开头: %q", prefix))
		}
	}

	m := c.Manager
	if m.LoaderURL != "" {
		if err := validateUpstream(m.LoaderURL); err != nil {
			return fmt.Errorf("%s: %w", managerField("LoaderURL"), err)
		}
	}
	if m.AssetTimeout.DurationValue() <= 0 {
		return newFieldError(managerField("AssetTimeout"), "必须大于 0")
	}
	if m.ManifestAttempts <= 0 {
		return newFieldError(managerField("ManifestAttempts"), "必须大于 0")
	}
	if m.ManifestRetryInterval.DurationValue() <= 0 {
		return newFieldError(managerField("ManifestRetryInterval"), "必须大于 0")
	}
	if m.MessageTimeout.DurationValue() <= 0 {
		return newFieldError(managerField("MessageTimeout"), "必须大于 0")
	}
	return nil
}

func validateUpstream(raw string) error {
	if raw == "" {
		return errors.New("缺少上游地址")
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("仅支持 http/https，上游: %s", raw)
	}
	if parsed.Host == "" {
		return fmt.Errorf("上游缺少 Host: %s", raw)
	}
	return nil
}
