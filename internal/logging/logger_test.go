package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/assethub/assethub/internal/config"
)

func TestConfigureDefaultsToStdout(t *testing.T) {
	logger, err := InitLogger(config.GlobalConfig{LogLevel: "info"})
	if err != nil {
		t.Fatalf("配置失败: %v", err)
	}
	if logger.Out != os.Stdout {
		t.Fatalf("未指定文件时应输出到 stdout")
	}
	if _, ok := logger.Formatter.(*logrus.JSONFormatter); !ok {
		t.Fatalf("默认应使用 JSON 格式")
	}
}

func TestInitLoggerFallbackOnPermissionDenied(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("root 不受目录权限限制")
	}
	dir := t.TempDir()
	blocked := filepath.Join(dir, "blocked")
	if err := os.Mkdir(blocked, 0o755); err != nil {
		t.Fatalf("创建目录失败: %v", err)
	}
	if err := os.Chmod(blocked, 0o000); err != nil {
		t.Fatalf("设置目录权限失败: %v", err)
	}
	t.Cleanup(func() { _ = os.Chmod(blocked, 0o755) })

	cfg := config.GlobalConfig{
		LogLevel:    "info",
		LogFilePath: filepath.Join(blocked, "sub", "assethub.log"),
	}
	logger, err := InitLogger(cfg)
	if err != nil {
		t.Fatalf("初始化不应失败: %v", err)
	}
	if logger.Out != os.Stdout {
		t.Fatalf("fallback 时应退回 stdout")
	}
}

func TestConfigureCreatesRotatingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "assethub.log")
	logger, err := InitLogger(config.GlobalConfig{LogLevel: "debug", LogFilePath: path})
	if err != nil {
		t.Fatalf("配置失败: %v", err)
	}
	logger.Info("test")
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("预期创建日志文件: %v", err)
	}
}

func TestInitLoggerRejectsUnknownFormat(t *testing.T) {
	if _, err := InitLogger(config.GlobalConfig{LogLevel: "info", LogFormat: "xml"}); err == nil {
		t.Fatalf("未知格式应报错")
	}
	logger, err := InitLogger(config.GlobalConfig{LogLevel: "info", LogFormat: "text"})
	if err != nil {
		t.Fatalf("text 格式应可用: %v", err)
	}
	if _, ok := logger.Formatter.(*logrus.TextFormatter); !ok {
		t.Fatalf("应使用 TextFormatter")
	}
}

func TestRequestFieldsOmitEmptyKey(t *testing.T) {
	var buf bytes.Buffer
	logger := logrus.New()
	logger.SetOutput(&buf)
	logger.SetFormatter(&logrus.JSONFormatter{})

	logger.WithFields(RequestFields("/", "", "passthrough", false)).Info("proxy_complete")
	logger.WithFields(RequestFields("/textures/hero.png", "texturesHeroPng", "managed", true)).
		WithFields(SizeFields(2048)).Info("proxy_complete")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("预期两行日志，实际 %d", len(lines))
	}
	var first, second map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &first); err != nil {
		t.Fatalf("解析日志失败: %v", err)
	}
	if err := json.Unmarshal([]byte(lines[1]), &second); err != nil {
		t.Fatalf("解析日志失败: %v", err)
	}
	if _, ok := first["manifest_key"]; ok {
		t.Fatalf("空缓存键不应输出")
	}
	if second["manifest_key"] != "texturesHeroPng" || second["cache_hit"] != true {
		t.Fatalf("字段缺失: %v", second)
	}
	if second["size"] != "2.0 KiB" {
		t.Fatalf("大小格式错误: %v", second["size"])
	}
}
