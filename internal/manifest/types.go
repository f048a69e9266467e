package manifest

import "time"

// Asset 描述清单中单个资源，Hash 是判断本地缓存是否最新的唯一依据。
type Asset struct {
	Path  string `json:"path"`
	Hash  string `json:"hash"`
	Size  int64  `json:"size"`
	Mtime int64  `json:"mtime"`
}

// Manifest 是一次加载得到的完整清单，加载后视为不可变，新清单整体替换旧清单。
type Manifest struct {
	Version     string           `json:"version"`
	GeneratedAt int64            `json:"generatedAt"`
	Assets      map[string]Asset `json:"assets"`
}

// FallbackVersion 标记在清单不可用时使用的空清单。
const FallbackVersion = "fallback"

// Fallback 返回空清单，使下游逻辑退化为“无可管理资源”而无需特殊分支。
func Fallback() *Manifest {
	return &Manifest{
		Version:     FallbackVersion,
		GeneratedAt: time.Now().UnixMilli(),
		Assets:      map[string]Asset{},
	}
}

// Lookup 按缓存键查询资源描述；m 为 nil 时视为空清单。
func (m *Manifest) Lookup(key string) (Asset, bool) {
	if m == nil || key == "" {
		return Asset{}, false
	}
	asset, ok := m.Assets[key]
	return asset, ok
}

// Len 返回清单中的资源数量。
func (m *Manifest) Len() int {
	if m == nil {
		return 0
	}
	return len(m.Assets)
}

// IsFallback 表示该清单是否为降级用的空清单。
func (m *Manifest) IsFallback() bool {
	return m != nil && m.Version == FallbackVersion
}
