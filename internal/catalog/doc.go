// Package catalog loads the static scene → asset-group table and the texture
// and spritesheet inventories that the orchestration manager expands into
// concrete asset paths. The catalog is plain TOML read through viper; scene and
// group names are matched case-insensitively.
package catalog
