// Package assetkey derives the stable cache keys shared by the manifest
// generator, the interception loader and the orchestration manager. A key is
// a camelCase flattening of the URL path, so every component addressing the
// same asset lands on the same cache row. The transform is lossy: two paths
// that differ only in punctuation collapse onto one key, and nothing here
// defends against that.
package assetkey
