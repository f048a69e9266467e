// Package readiness turns asset-load progress and data-sync progress into a
// single weighted readiness signal.
//
// A Tracker reports ready once every asset is loaded and data sync has
// finished. Two watchdogs bound the wait: if assets are still under half
// done after AssetWatchdog, they are treated as complete; once assets are
// complete, ready is forced after DataWatchdog even if data sync never
// finishes. Callers that drive a load pass can cancel it when the tracker
// reports a forced ready.
package readiness
