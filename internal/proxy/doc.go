// Package proxy adapts the interception loader to Fiber: each request is
// converted into a *http.Request, sent through the loader's RoundTrip, and the
// resulting response is streamed back with hop-by-hop headers removed and one
// structured log line per request.
package proxy
