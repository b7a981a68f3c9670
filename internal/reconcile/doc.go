// Package reconcile owns the surface reconcile loop.
//
// Ownership boundary:
// - draining the anchor provider's event stream
// - classification and geometry dispatch
// - every registry mutation (single writer)
//
// Ordering:
// - events for one identity are applied in delivery order, never coalesced
// - with Workers > 1 builds run on per-identity lanes
// - mutations always funnel through the writer goroutine
//
// Failure policy:
// - only session start failures leave Run, as *SessionError
// - geometry failures and malformed events drop that event and nothing else
//
// The loop does not own the scene host; it reaches it only through the
// registry's attach/detach calls.
package reconcile
