// Package manifest holds the authoritative asset manifest and the client that
// keeps it current. The manifest is fetched read-only from the origin, always
// bypassing HTTP caches, and is replaced wholesale on every successful load.
// Only one load is ever in flight; concurrent callers join it. Forced
// refreshes triggered by hard reloads are debounced so a burst of navigations
// does not turn into a burst of manifest requests.
//
// Generate builds the same document from a directory of static assets and is
// used by the assetctl build step.
package manifest
