// Package loader implements the fetch-interception layer: an http.RoundTripper
// that sits in front of the asset origin, classifies every request against the
// current asset manifest, and serves hash-validated bodies from the shared
// SQLite cache. Managed assets are fetched once per manifest hash and persisted;
// unmanaged assets purge any stale record and always go to the origin; anything
// excluded (non-GET, API routes, dev-server paths, HTML, the manifest itself)
// passes straight through. The loader is the only writer of the cache store.
package loader
