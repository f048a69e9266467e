package manifest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/assethub/assethub/internal/assetkey"
)

// ErrKeyCollision 表示两个不同文件派生出了相同的缓存键。
var ErrKeyCollision = errors.New("manifest key collision")

// GenerateOptions 控制清单生成。
type GenerateOptions struct {
	// Version 写入每个 hash 的前缀，递增即可强制所有客户端重新下载。
	Version int
	// Concurrency 限制并行哈希的文件数，默认 GOMAXPROCS。
	Concurrency int
	Now         func() time.Time
}

type scannedFile struct {
	abs string
	rel string
}

// Generate 扫描 root 下的静态资源并生成清单。
func Generate(ctx context.Context, root string, opts GenerateOptions) (*Manifest, error) {
	if opts.Version <= 0 {
		opts.Version = 1
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = runtime.GOMAXPROCS(0)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	files, err := scanAssets(root)
	if err != nil {
		return nil, err
	}

	assets := make([]Asset, len(files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Concurrency)
	for i, file := range files {
		g.Go(func() error {
			asset, err := describeFile(gctx, file, opts.Version)
			if err != nil {
				return err
			}
			assets[i] = asset
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	manifest := &Manifest{
		GeneratedAt: opts.Now().UnixMilli(),
		Assets:      make(map[string]Asset, len(assets)),
	}
	hashes := make([]string, 0, len(assets))
	for _, asset := range assets {
		key := assetkey.FromPath(asset.Path)
		if key == "" {
			continue
		}
		if prior, exists := manifest.Assets[key]; exists {
			return nil, fmt.Errorf("%w: %s and %s -> %s", ErrKeyCollision, prior.Path, asset.Path, key)
		}
		manifest.Assets[key] = asset
		hashes = append(hashes, asset.Hash)
	}
	manifest.Version = versionHash(opts.Version, hashes)
	return manifest, nil
}

func scanAssets(root string) ([]scannedFile, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("stat asset root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("asset root %s is not a directory", root)
	}

	var files []scannedFile
	err = filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		name := d.Name()
		if d.IsDir() {
			if p != root && (strings.HasPrefix(name, ".") || name == "node_modules") {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		// 清单与 worker 脚本自身不进入清单。
		if strings.HasPrefix(name, ".") || strings.Contains(name, "worker") || strings.Contains(name, "manifest") {
			return nil
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		files = append(files, scannedFile{abs: p, rel: filepath.ToSlash(rel)})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan assets: %w", err)
	}
	return files, nil
}

func describeFile(ctx context.Context, file scannedFile, version int) (Asset, error) {
	if err := ctx.Err(); err != nil {
		return Asset{}, err
	}
	f, err := os.Open(file.abs)
	if err != nil {
		return Asset{}, fmt.Errorf("open %s: %w", file.rel, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return Asset{}, fmt.Errorf("stat %s: %w", file.rel, err)
	}

	sum := sha256.New()
	if _, err := io.Copy(sum, f); err != nil {
		return Asset{}, fmt.Errorf("hash %s: %w", file.rel, err)
	}
	digest := hex.EncodeToString(sum.Sum(nil))

	return Asset{
		Path:  "/" + file.rel,
		Hash:  fmt.Sprintf("v%d_%s", version, digest[:16]),
		Size:  info.Size(),
		Mtime: info.ModTime().UnixMilli(),
	}, nil
}

func versionHash(version int, hashes []string) string {
	sorted := append([]string(nil), hashes...)
	sort.Strings(sorted)
	sum := sha256.Sum256([]byte(fmt.Sprintf("v%d_%s", version, strings.Join(sorted, ""))))
	return hex.EncodeToString(sum[:])[:12]
}
