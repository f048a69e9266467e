package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// fixture 返回 testdata 下的样例配置路径。
func fixture(name string) string {
	return filepath.Join("testdata", name)
}

// writeTempConfig 写出一份临时 assethub 配置；content 首尾空白会被去除。
func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "assethub.toml")
	if err := os.WriteFile(path, []byte(strings.TrimSpace(content)+"\n"), 0o600); err != nil {
		t.Fatalf("写入临时配置失败: %v", err)
	}
	return path
}
