package assetkey

import (
	"net/url"
	"strings"
	"sync"
)

// FromURL 将绝对 URL 或站内路径映射为缓存键；解析失败返回空串，调用方需将其视为不可缓存。
func FromURL(raw string) string {
	if strings.TrimSpace(raw) == "" {
		return ""
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	// url.Parse 已完成百分号解码，Path 即解码后的路径。
	return FromPath(parsed.Path)
}

// FromPath 对已解码的路径执行 camelCase 扁平化，生成器与加载器共用同一算法。
func FromPath(p string) string {
	p = strings.TrimPrefix(p, "/")
	// [A-Za-z0-9_/-] 之外的字符替换为 "_" 后再按 / _ - 切分，
	// 等价于按任意非字母数字字符切分。
	segments := strings.FieldsFunc(p, func(r rune) bool {
		return !isAlnum(r)
	})

	var b strings.Builder
	b.Grow(len(p))
	for i, seg := range segments {
		if i == 0 {
			b.WriteString(strings.ToLower(seg))
			continue
		}
		b.WriteString(strings.ToUpper(seg[:1]))
		b.WriteString(strings.ToLower(seg[1:]))
	}
	return b.String()
}

func isAlnum(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
}

// Memo 按原始 URL 记忆派生结果，避免重复检查同一资源时反复计算。
type Memo struct {
	keys sync.Map
}

// Key 返回 raw 对应的缓存键，首次计算后复用。
func (m *Memo) Key(raw string) string {
	if value, ok := m.keys.Load(raw); ok {
		return value.(string)
	}
	key := FromURL(raw)
	m.keys.Store(raw, key)
	return key
}
