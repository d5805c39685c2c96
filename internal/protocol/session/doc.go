// Package session owns the client side of one ABX transport exchange.
//
// Ownership boundary:
// - TCP dial with connect timeout
// - single-call sends and exact-length receives
// - end-of-stream detection (ErrStreamClosed)
// - idempotent teardown
// - connect retry backoff
package session
