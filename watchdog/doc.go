// Package watchdog implements the live-status watchdog.
//
// A Watchdog polls a platform.StatusChecker on a fixed interval and keeps a
// single belief (Offline or Live). Only edges fire callbacks: OnLive once per
// Offline→Live change and OnOffline once per Live→Offline change. While the
// belief is Live the watchdog keeps at most one platform.Session open,
// retrying Connect on every poll until it succeeds.
//
// Between polls the loop also drains the open session's events. A
// stream-ended event, a disconnect, or a control code accepted by the
// stream-end predicate ends the live run immediately instead of waiting for
// the next poll to notice.
//
// The loop is the only owner of belief and session; no locking is needed for
// them. Snapshot exists for readers on other goroutines (the status server).
package watchdog
