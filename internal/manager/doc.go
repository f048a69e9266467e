// Package manager is the preload-side API that makes sure a scene's assets
// are available before the game needs them.
//
// Initialize probes the loader's status endpoint. When the loader is active
// the manager asks it for the manifest over the control channel and fetches
// assets through it, so the loader populates the shared cache. Otherwise the
// manager runs in direct mode: it loads the manifest from the origin itself
// and fetches every asset straight from the origin. Every operation returns
// a usable result in either mode.
package manager
