package main

import (
	"strings"
	"testing"
)

func TestParseCLIFlagsPriority(t *testing.T) {
	t.Setenv("ASSETHUB_CONFIG", "/tmp/env.toml")

	opts, err := parseCLIFlags([]string{})
	if err != nil {
		t.Fatalf("解析失败: %v", err)
	}
	if opts.configPath != "/tmp/env.toml" {
		t.Fatalf("应优先使用环境变量，得到 %s", opts.configPath)
	}

	opts, err = parseCLIFlags([]string{"--config", "/tmp/flag.toml"})
	if err != nil {
		t.Fatalf("解析失败: %v", err)
	}
	if opts.configPath != "/tmp/flag.toml" {
		t.Fatalf("flag 应高于环境变量，得到 %s", opts.configPath)
	}
}

func TestParseCLIFlagsDefaultPath(t *testing.T) {
	t.Setenv("ASSETHUB_CONFIG", "")
	opts, err := parseCLIFlags([]string{"-check-config"})
	if err != nil {
		t.Fatalf("解析失败: %v", err)
	}
	if opts.configPath != "config.toml" || !opts.checkOnly {
		t.Fatalf("默认值错误: %+v", opts)
	}
}

func TestRunCheckConfigSuccess(t *testing.T) {
	_, errOut := captureOutput(t)
	code := run(cliOptions{configPath: configFixture("valid.toml"), checkOnly: true})
	if code != 0 {
		t.Fatalf("期望退出码 0，得到 %d: %s", code, errOut.String())
	}
}

func TestRunCheckConfigFailure(t *testing.T) {
	_, errOut := captureOutput(t)
	code := run(cliOptions{configPath: configFixture("missing.toml"), checkOnly: true})
	if code == 0 {
		t.Fatalf("无效配置应返回非零退出码")
	}
	if !strings.Contains(errOut.String(), "Upstream") {
		t.Fatalf("错误输出应指出 Upstream 字段: %s", errOut.String())
	}
}

func TestRunVersionOutput(t *testing.T) {
	out, _ := captureOutput(t)
	code := run(cliOptions{showVersion: true})
	if code != 0 {
		t.Fatalf("version 模式应成功退出，得到 %d", code)
	}
	if !strings.Contains(out.String(), "assethub") {
		t.Fatalf("version 输出应包含 assethub 标识")
	}
}
