package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/assethub/assethub/internal/cache"
	"github.com/assethub/assethub/internal/config"
	"github.com/assethub/assethub/internal/control"
	"github.com/assethub/assethub/internal/loader"
	"github.com/assethub/assethub/internal/logging"
	"github.com/assethub/assethub/internal/manifest"
	"github.com/assethub/assethub/internal/proxy"
	"github.com/assethub/assethub/internal/server"
	"github.com/assethub/assethub/internal/server/routes"
	"github.com/assethub/assethub/internal/version"
)

// cliOptions 汇总 CLI 标志解析后的结果，便于在测试中注入。
type cliOptions struct {
	configPath  string
	checkOnly   bool
	showVersion bool
}

var (
	stdOut io.Writer = os.Stdout
	stdErr io.Writer = os.Stderr
)

const shutdownTimeout = 10 * time.Second

func main() {
	opts, err := parseCLIFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintln(stdErr, err.Error())
		os.Exit(2)
	}
	os.Exit(run(opts))
}

// run 根据解析到的 CLI 选项执行业务流程，并返回退出码，方便测试。
func run(opts cliOptions) int {
	if opts.showVersion {
		printVersion()
		return 0
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		fmt.Fprintf(stdErr, "加载配置失败: %v\n", err)
		return 1
	}

	logger, err := logging.InitLogger(cfg.Global)
	if err != nil {
		fmt.Fprintf(stdErr, "初始化日志失败: %v\n", err)
		return 1
	}

	if opts.checkOnly {
		fields := logging.BaseFields("check_config", opts.configPath)
		fields["upstream"] = cfg.Global.Upstream
		fields["manifest_url"] = cfg.Global.ManifestURL()
		fields["exclude_prefixes"] = len(cfg.Global.ExcludePrefixes)
		fields["result"] = "ok"
		logger.WithFields(fields).Info("配置校验通过")
		return 0
	}

	// 启动顺序：配置 → 日志 → 缓存库 → 清单客户端 → 加载器 → Fiber server。
	svc, err := buildService(cfg, logger)
	if err != nil {
		fmt.Fprintf(stdErr, "初始化加载器失败: %v\n", err)
		return 1
	}
	defer svc.close()

	fields := logging.BaseFields("startup", opts.configPath)
	fields["listen_port"] = cfg.Global.ListenPort
	fields["upstream"] = cfg.Global.Upstream
	fields["cache_enabled"] = svc.store != nil
	fields["version"] = version.Full()
	logger.WithFields(fields).Info("配置加载完成")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := svc.serve(ctx, cfg.Global.ListenPort); err != nil {
		fmt.Fprintf(stdErr, "HTTP 服务启动失败: %v\n", err)
		return 1
	}
	return 0
}

// parseCLIFlags 解析 CLI 参数，并结合环境变量计算最终的配置路径。
func parseCLIFlags(args []string) (cliOptions, error) {
	fs := flag.NewFlagSet("assethub", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	var (
		configFlag string
		checkOnly  bool
		showVer    bool
	)

	fs.StringVar(&configFlag, "config", "", "配置文件路径（默认 ./config.toml，可被 ASSETHUB_CONFIG 覆盖）")
	fs.BoolVar(&checkOnly, "check-config", false, "仅校验配置后退出")
	fs.BoolVar(&showVer, "version", false, "显示版本信息")

	if err := fs.Parse(args); err != nil {
		return cliOptions{}, fmt.Errorf("解析参数失败: %w", err)
	}

	path := os.Getenv("ASSETHUB_CONFIG")
	if configFlag != "" {
		path = configFlag
	}
	if path == "" {
		path = "config.toml"
	}

	return cliOptions{
		configPath:  path,
		checkOnly:   checkOnly,
		showVersion: showVer,
	}, nil
}

// service 持有一次进程生命周期内共享的组件。
type service struct {
	app       *fiber.App
	loader    *loader.Loader
	manifests *manifest.Client
	store     cache.Store
	logger    *logrus.Logger
}

func buildService(cfg *config.Config, logger *logrus.Logger) (*service, error) {
	// 缓存库打不开时仅关闭缓存，资源仍可直连源站。
	var store cache.Store
	writer, err := cache.OpenWriter(filepath.Join(cfg.Global.StoragePath, cache.DatabaseName))
	if err != nil {
		logger.WithFields(logging.BaseFields("cache_open", cfg.Global.StoragePath)).
			WithError(err).Warn("cache_disabled")
	} else {
		store = writer
	}

	manifests, err := manifest.NewClient(manifest.Options{
		URL:             cfg.Global.ManifestURL(),
		HTTPClient:      server.NewManifestClient(cfg),
		Logger:          logger,
		RefreshDebounce: cfg.Global.RefreshDebounce.DurationValue(),
		OnLoaded: func(m *manifest.Manifest) {
			if store == nil {
				return
			}
			if err := store.SetManifestVersion(context.Background(), m.Version); err != nil {
				logger.WithFields(logrus.Fields{"action": "manifest_version"}).WithError(err).Warn("manifest_version_failed")
			}
		},
	})
	if err != nil {
		closeStore(store)
		return nil, err
	}

	assetLoader, err := loader.New(loader.Options{
		Origin:          cfg.Global.Upstream,
		Manifest:        manifests,
		Store:           store,
		Client:          server.NewUpstreamClient(cfg),
		Logger:          logger,
		ExcludePrefixes: cfg.Global.ExcludePrefixes,
	})
	if err != nil {
		closeStore(store)
		return nil, err
	}

	app, err := server.NewApp(server.AppOptions{
		Logger: logger,
		Proxy:  proxy.NewHandler(assetLoader, logger),
	})
	if err != nil {
		closeStore(store)
		return nil, err
	}
	routes.RegisterControlRoutes(app, control.NewResponder(manifests, logger))
	routes.RegisterStatusRoutes(app, assetLoader, store, logger)
	routes.RegisterCacheRoutes(app, store, logger)

	return &service{
		app:       app,
		loader:    assetLoader,
		manifests: manifests,
		store:     store,
		logger:    logger,
	}, nil
}

// start 依次执行 Install 与 Activate，与监听并行。
func (svc *service) start(ctx context.Context) error {
	if err := svc.loader.Install(ctx); err != nil {
		return err
	}
	return svc.loader.Activate(ctx)
}

func (svc *service) serve(ctx context.Context, port int) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		svc.logger.WithFields(logrus.Fields{
			"action": "listen",
			"port":   port,
		}).Info("Fiber 服务启动")
		return svc.app.Listen(fmt.Sprintf(":%d", port), fiber.ListenConfig{DisableStartupMessage: true})
	})
	g.Go(func() error {
		err := svc.start(ctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return svc.app.ShutdownWithContext(shutdownCtx)
	})

	return g.Wait()
}

func (svc *service) close() {
	closeStore(svc.store)
}

func closeStore(store cache.Store) {
	if store != nil {
		_ = store.Close()
	}
}
