package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/assethub/assethub/internal/cache"
	"github.com/assethub/assethub/internal/catalog"
	"github.com/assethub/assethub/internal/config"
	"github.com/assethub/assethub/internal/logging"
	"github.com/assethub/assethub/internal/manager"
	"github.com/assethub/assethub/internal/readiness"
)

type preloadOptions struct {
	configPath string
	scene      string
	exclude    []string
	background bool
}

func parsePreloadFlags(args []string) (preloadOptions, error) {
	fs := flag.NewFlagSet("preload", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	var (
		opts    preloadOptions
		exclude string
	)
	fs.StringVar(&opts.configPath, "config", "", "配置文件路径（默认 ./config.toml，可被 ASSETHUB_CONFIG 覆盖）")
	fs.StringVar(&opts.scene, "scene", "", "场景名，留空加载全部分组")
	fs.StringVar(&exclude, "exclude", "", "逗号分隔的排除分组")
	fs.BoolVar(&opts.background, "background", false, "场景加载完成后继续加载其余分组")
	if err := fs.Parse(args); err != nil {
		return preloadOptions{}, fmt.Errorf("解析参数失败: %w", err)
	}

	for _, g := range strings.Split(exclude, ",") {
		if g = strings.TrimSpace(g); g != "" {
			opts.exclude = append(opts.exclude, g)
		}
	}
	if opts.configPath == "" {
		opts.configPath = os.Getenv("ASSETHUB_CONFIG")
	}
	if opts.configPath == "" {
		opts.configPath = "config.toml"
	}
	return opts, nil
}

// runPreload 初始化 Manager 并加载场景资源，进度同时喂给 readiness.Tracker。
func runPreload(ctx context.Context, args []string) int {
	opts, err := parsePreloadFlags(args)
	if err != nil {
		fmt.Fprintln(stdErr, err.Error())
		return 2
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
	if cfg.Manager.CatalogPath == "" {
		fmt.Fprintln(stdErr, "未配置 Manager.CatalogPath")
		return 1
	}
	cat, err := catalog.Load(cfg.Manager.CatalogPath)
	if err != nil {
		fmt.Fprintf(stdErr, "加载资源目录失败: %v\n", err)
		return 1
	}

	store := openReader(cfg, logger)
	if store != nil {
		defer store.Close()
	}

	mgrOpts := manager.OptionsFromConfig(cfg)
	mgrOpts.Catalog = cat
	mgrOpts.Logger = logger
	if store != nil {
		mgrOpts.Store = store
	}
	mgr, err := manager.New(mgrOpts)
	if err != nil {
		fmt.Fprintf(stdErr, "初始化管理器失败: %v\n", err)
		return 1
	}

	initResult := mgr.Initialize(ctx)
	fmt.Fprintf(stdOut, "mode=%s manifest=%s assets=%d\n", initResult.Mode, initResult.Manifest.Version, initResult.Manifest.Len())

	result := loadScene(ctx, mgr, opts, logger)
	fmt.Fprintf(stdOut, "scene %q: %s\n", opts.scene, result.Summary())

	if opts.background {
		skip := append(mgr.GetAssetGroupsForScene(opts.scene), opts.exclude...)
		groups := catalog.Exclude(cat.AllGroups(), skip)
		rest := mgr.LoadGroups(ctx, groups, nil)
		fmt.Fprintf(stdOut, "background %v: %s\n", groups, rest.Summary())
	}

	if !result.Success {
		return 1
	}
	return 0
}

// loadScene 加载场景资源；readiness 看门狗强制就绪时取消剩余加载。
func loadScene(ctx context.Context, mgr *manager.Manager, opts preloadOptions, logger *logrus.Logger) manager.LoadResult {
	loadCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	tracker := readiness.NewTracker(readiness.Options{
		Logger: logger,
		OnChange: func(s readiness.State) {
			logger.WithFields(logrus.Fields{
				"action":  "readiness",
				"overall": fmt.Sprintf("%.1f", s.Overall),
				"ready":   s.Ready,
			}).Debug("readiness_changed")
		},
	})
	// 命令行没有数据同步阶段。
	tracker.FinishData()
	tracker.Start()
	defer tracker.Stop()

	go func() {
		select {
		case <-tracker.Done():
			if state := tracker.State(); state.Forced {
				logger.WithFields(logrus.Fields{"action": "preload", "reason": state.Reason}).
					Warn("preload_cut_short")
				cancel()
			}
		case <-loadCtx.Done():
		}
	}()

	result := mgr.LoadSceneAssets(loadCtx, opts.scene, opts.exclude, func(p manager.Progress) {
		tracker.SetAssetProgress(p.Percentage)
		logger.WithFields(logrus.Fields{
			"action":  "preload",
			"asset":   p.CurrentAsset,
			"loaded":  p.LoadedAssets,
			"total":   p.TotalAssets,
			"percent": fmt.Sprintf("%.1f", p.Percentage),
		}).Debug("asset_progress")
	})
	tracker.SetAssetProgress(100)
	return result
}

// openReader 以只读方式打开共享缓存库；打不开时返回 nil，所有资源视为未缓存。
func openReader(cfg *config.Config, logger *logrus.Logger) *cache.SQLiteStore {
	path := filepath.Join(cfg.Global.StoragePath, cache.DatabaseName)
	store, err := cache.OpenReader(path)
	if err != nil {
		level := logrus.WarnLevel
		if errors.Is(err, os.ErrNotExist) {
			level = logrus.InfoLevel
		}
		logger.WithFields(logging.BaseFields("cache_open", path)).WithError(err).Log(level, "cache_unavailable")
		return nil
	}
	return store
}
