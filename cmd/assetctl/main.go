// Command assetctl generates asset manifests and preloads scene assets
// through a running assethub loader (or straight from the origin when no
// loader is active).
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
)

var (
	stdOut io.Writer = os.Stdout
	stdErr io.Writer = os.Stderr
)

const usage = `用法:
  assetctl manifest -dir public [-out public/assets-manifest.json] [-version 1]
  assetctl preload  [-config config.toml] [-scene Tavern] [-exclude a,b] [-background]`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:])
	stop()
	os.Exit(code)
}

// run 分发子命令并返回退出码。
func run(ctx context.Context, args []string) int {
	if len(args) == 0 {
		fmt.Fprintln(stdErr, usage)
		return 2
	}
	switch args[0] {
	case "manifest":
		return runManifest(ctx, args[1:])
	case "preload":
		return runPreload(ctx, args[1:])
	case "-h", "--help", "help":
		fmt.Fprintln(stdOut, usage)
		return 0
	default:
		fmt.Fprintf(stdErr, "未知子命令 %q\n%s\n", args[0], usage)
		return 2
	}
}
