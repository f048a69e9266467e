package catalog

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/viper"
)

// 所有场景都会包含的两个基础分组。
const (
	GroupGeneral    = "general"
	GroupAnimations = "animations"
)

// Texture 是一张静态贴图及其所属分组。
type Texture struct {
	Path   string   `mapstructure:"Path"`
	Groups []string `mapstructure:"Groups"`
}

// Spritesheet 描述逐帧动画目录，帧文件为 <Path>/frame_NNN.ktx2。
type Spritesheet struct {
	Name       string `mapstructure:"Name"`
	Path       string `mapstructure:"Path"`
	FrameCount int    `mapstructure:"FrameCount"`
}

// Catalog 是场景优先级表与资源清单的整体映射。
type Catalog struct {
	Scenes       map[string][]string `mapstructure:"Scenes"`
	Textures     []Texture           `mapstructure:"Textures"`
	Spritesheets []Spritesheet       `mapstructure:"Spritesheets"`
}

// Load 读取 TOML 目录文件并规范化场景/分组名。
func Load(path string) (*Catalog, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("catalog path required")
	}
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("读取资源目录失败: %w", err)
	}

	var c Catalog
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("解析资源目录失败: %w", err)
	}
	c.normalize()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Catalog) normalize() {
	scenes := make(map[string][]string, len(c.Scenes))
	for name, groups := range c.Scenes {
		scenes[normalizeName(name)] = normalizeAll(groups)
	}
	c.Scenes = scenes
	for i := range c.Textures {
		c.Textures[i].Groups = normalizeAll(c.Textures[i].Groups)
	}
}

// Validate 检查路径与帧数，避免展开出无效资源地址。
func (c *Catalog) Validate() error {
	for i, tex := range c.Textures {
		if !strings.HasPrefix(tex.Path, "/") {
			return fmt.Errorf("Textures[%d].Path: 必须以 / 开头: %q", i, tex.Path)
		}
		if len(tex.Groups) == 0 {
			return fmt.Errorf("Textures[%d].Groups: 不能为空", i)
		}
	}
	for i, sheet := range c.Spritesheets {
		if sheet.FrameCount < 0 {
			return fmt.Errorf("Spritesheets[%d].FrameCount: 不能为负数", i)
		}
		if sheet.FrameCount > 0 && !strings.HasPrefix(sheet.Path, "/") {
			return fmt.Errorf("Spritesheets[%d].Path: 必须以 / 开头: %q", i, sheet.Path)
		}
	}
	return nil
}

// GroupsForScene 返回 general ∪ 场景优先分组 ∪ animations，保序去重；未知场景只含两个基础分组。
func (c *Catalog) GroupsForScene(scene string) []string {
	groups := []string{GroupGeneral}
	if c != nil {
		groups = append(groups, c.Scenes[normalizeName(scene)]...)
	}
	groups = append(groups, GroupAnimations)
	return dedupe(groups)
}

// AllGroups 返回目录中出现过的全部分组，general 在前、animations 在后，其余按字母序。
func (c *Catalog) AllGroups() []string {
	seen := map[string]struct{}{GroupGeneral: {}, GroupAnimations: {}}
	var middle []string
	add := func(group string) {
		if _, ok := seen[group]; ok {
			return
		}
		seen[group] = struct{}{}
		middle = append(middle, group)
	}
	if c != nil {
		for _, groups := range c.Scenes {
			for _, g := range groups {
				add(g)
			}
		}
		for _, tex := range c.Textures {
			for _, g := range tex.Groups {
				add(g)
			}
		}
	}
	sort.Strings(middle)
	result := append([]string{GroupGeneral}, middle...)
	return append(result, GroupAnimations)
}

// SceneNames 返回已配置的场景名（小写、排序）。
func (c *Catalog) SceneNames() []string {
	if c == nil {
		return nil
	}
	names := make([]string, 0, len(c.Scenes))
	for name := range c.Scenes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// PathsForGroups 展开分组为资源路径：贴图按分组筛选，animations 展开为逐帧路径，整体保序去重。
func (c *Catalog) PathsForGroups(groups []string) []string {
	if c == nil || len(groups) == 0 {
		return nil
	}
	wanted := make(map[string]struct{}, len(groups))
	for _, g := range groups {
		wanted[normalizeName(g)] = struct{}{}
	}

	var paths []string
	for _, tex := range c.Textures {
		for _, g := range tex.Groups {
			if _, ok := wanted[g]; ok {
				paths = append(paths, tex.Path)
				break
			}
		}
	}
	if _, ok := wanted[GroupAnimations]; ok {
		for _, sheet := range c.Spritesheets {
			paths = append(paths, FramePaths(sheet)...)
		}
	}
	return dedupe(paths)
}

// FramePaths 返回动画的逐帧路径，帧号从 1 开始并补零到三位。
func FramePaths(sheet Spritesheet) []string {
	if sheet.Path == "" || sheet.FrameCount <= 0 {
		return nil
	}
	base := strings.TrimSuffix(sheet.Path, "/")
	frames := make([]string, 0, sheet.FrameCount)
	for frame := 1; frame <= sheet.FrameCount; frame++ {
		frames = append(frames, fmt.Sprintf("%s/frame_%03d.ktx2", base, frame))
	}
	return frames
}

// Exclude 从 groups 中移除 excluded，保持原顺序。
func Exclude(groups, excluded []string) []string {
	if len(excluded) == 0 {
		return groups
	}
	drop := make(map[string]struct{}, len(excluded))
	for _, g := range excluded {
		drop[normalizeName(g)] = struct{}{}
	}
	result := make([]string, 0, len(groups))
	for _, g := range groups {
		if _, ok := drop[normalizeName(g)]; !ok {
			result = append(result, g)
		}
	}
	return result
}

func normalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func normalizeAll(names []string) []string {
	result := make([]string, 0, len(names))
	for _, name := range names {
		if n := normalizeName(name); n != "" {
			result = append(result, n)
		}
	}
	return result
}

func dedupe(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	result := make([]string, 0, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		result = append(result, v)
	}
	return result
}
