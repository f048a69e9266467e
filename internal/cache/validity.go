package cache

import "github.com/assethub/assethub/internal/manifest"

// DefaultContentType 用于上游未声明 Content-Type 的资源。
const DefaultContentType = "application/octet-stream"

// Matches 判断缓存记录是否仍对应清单中的资源版本，hash 相等是唯一标准。
// 加载器与管理端必须共用这一规则，否则两边会反复争抢同一行。
func Matches(record *Record, asset manifest.Asset) bool {
	return record != nil && record.Hash == asset.Hash
}
