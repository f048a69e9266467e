package logging

import (
	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"
)

// BaseFields 构建 action + 配置路径等基础字段，便于不同入口复用。
func BaseFields(action, configPath string) logrus.Fields {
	return logrus.Fields{
		"action":     action,
		"configPath": configPath,
	}
}

// RequestFields 提供路径、缓存键、分类与命中状态，供拦截请求日志复用。
func RequestFields(path, manifestKey, class string, cacheHit bool) logrus.Fields {
	fields := logrus.Fields{
		"path":      path,
		"class":     class,
		"cache_hit": cacheHit,
	}
	if manifestKey != "" {
		fields["manifest_key"] = manifestKey
	}
	return fields
}

// SizeFields 以原始字节数和易读形式同时记录大小。
func SizeFields(bytes int64) logrus.Fields {
	if bytes < 0 {
		bytes = 0
	}
	return logrus.Fields{
		"bytes": bytes,
		"size":  humanize.IBytes(uint64(bytes)),
	}
}
