// Package session owns the provider session handshake.
//
// Ownership boundary:
// - start / start.ack control messages (newline-delimited JSON)
// - dial and handshake timeout defaults
//
// After an accepted start.ack the connection carries protocol frames only.
package session
