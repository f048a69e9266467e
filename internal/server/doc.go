// Package server hosts the Fiber HTTP service in front of the asset origin:
// the request-ID middleware, JSON error rendering, and the shared upstream
// http.Client. Every non-diagnostic request is handed to a ProxyHandler (the
// interception loader adapter); paths under /-/ fall through to the control,
// status, and cache routes registered by the routes package.
package server
