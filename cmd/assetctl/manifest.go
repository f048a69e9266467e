package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"

	"github.com/assethub/assethub/internal/manifest"
)

// runManifest 扫描静态目录并写出清单 JSON。
func runManifest(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("manifest", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	dir := fs.String("dir", "public", "静态资源根目录")
	out := fs.String("out", "", "清单输出路径（默认 <dir>/assets-manifest.json，- 表示标准输出）")
	version := fs.Int("version", 1, "hash 前缀版本，递增可使全部客户端重新下载")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(stdErr, "解析参数失败: %v\n", err)
		return 2
	}

	generated, err := manifest.Generate(ctx, *dir, manifest.GenerateOptions{Version: *version})
	if err != nil {
		fmt.Fprintf(stdErr, "生成清单失败: %v\n", err)
		return 1
	}
	data, err := json.MarshalIndent(generated, "", "  ")
	if err != nil {
		fmt.Fprintf(stdErr, "编码清单失败: %v\n", err)
		return 1
	}
	data = append(data, '\n')

	target := *out
	if target == "" {
		target = filepath.Join(*dir, "assets-manifest.json")
	}
	if target == "-" {
		_, _ = stdOut.Write(data)
		return 0
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		fmt.Fprintf(stdErr, "创建输出目录失败: %v\n", err)
		return 1
	}
	if err := os.WriteFile(target, data, 0o644); err != nil {
		fmt.Fprintf(stdErr, "写入清单失败: %v\n", err)
		return 1
	}

	var total int64
	for _, asset := range generated.Assets {
		total += asset.Size
	}
	fmt.Fprintf(stdOut, "manifest %s: %d assets, %s, version %s\n",
		target, generated.Len(), humanize.IBytes(uint64(total)), generated.Version)
	return 0
}
