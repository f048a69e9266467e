package loader

import (
	"context"
	"net/http"
	"strings"

	"github.com/assethub/assethub/internal/assetkey"
	"github.com/assethub/assethub/internal/manifest"
)

// Kind 是请求分类结果。
type Kind int

const (
	// Passthrough 表示请求不经缓存，直接转发到源站。
	Passthrough Kind = iota
	// Managed 表示键存在于清单中，按 hash 校验后走缓存。
	Managed
	// Unmanaged 表示可拦截但不在清单中，清理旧记录后回源，永不缓存。
	Unmanaged
)

func (k Kind) String() string {
	switch k {
	case Managed:
		return "managed"
	case Unmanaged:
		return "unmanaged"
	default:
		return "passthrough"
	}
}

// Classification 是分类步骤的带标签结果，仅 Managed 时 Asset 有效。
type Classification struct {
	Kind  Kind
	Key   string
	Asset manifest.Asset
}

var excludedPrefixes = []string{"/api/", "/src/", "/_", "/@vite/", "/@fs/", "/-/"}

var excludedFragments = []string{"worker.js", "manifest.json", ".html"}

// Intercepts 判断请求是否进入缓存逻辑；extra 为配置追加的排除前缀。
func Intercepts(method, path string, extra []string) bool {
	if method != http.MethodGet {
		return false
	}
	for _, prefix := range excludedPrefixes {
		if strings.HasPrefix(path, prefix) {
			return false
		}
	}
	for _, prefix := range extra {
		if prefix != "" && strings.HasPrefix(path, prefix) {
			return false
		}
	}
	for _, fragment := range excludedFragments {
		if strings.Contains(path, fragment) {
			return false
		}
	}
	return true
}

// Classify 按“排除 → 清单命中 → 未托管”的顺序分类，m 为 nil 时一律直通。
func Classify(m *manifest.Manifest, method, path string, extra []string) Classification {
	if !Intercepts(method, path, extra) || m == nil {
		return Classification{Kind: Passthrough}
	}
	key := assetkey.FromPath(path)
	if key == "" {
		return Classification{Kind: Passthrough}
	}
	if asset, ok := m.Lookup(key); ok {
		return Classification{Kind: Managed, Key: key, Asset: asset}
	}
	return Classification{Kind: Unmanaged, Key: key}
}

type classificationKey struct{}

// WithClassification 返回带记录槽的 ctx，RoundTrip 会把本次实际采用的分类写入槽中。
// 槽的初值为 Passthrough，未被拦截的请求保持不变。
func WithClassification(ctx context.Context) (context.Context, *Classification) {
	slot := &Classification{Kind: Passthrough}
	return context.WithValue(ctx, classificationKey{}, slot), slot
}

// RecordClassification 把分类写入 ctx 中的记录槽；没有槽时什么也不做。
func RecordClassification(ctx context.Context, class Classification) {
	if slot, ok := ctx.Value(classificationKey{}).(*Classification); ok {
		*slot = class
	}
}
