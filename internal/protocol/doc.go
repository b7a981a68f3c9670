// Package protocol owns the surface event wire contract.
//
// Ownership boundary:
// - frame header primitives
// - tlv payload primitives
// - surface event schema and semantic validation
//
// The reconcile core never sees frames; provider adapters and the journal
// translate at the edge.
package protocol
