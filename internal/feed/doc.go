// Package feed drives one ABX fetch run.
//
// A run streams every record once, scans [1, max sequence] for holes, and
// recovers each hole with its own one-shot resend exchange. Records live in a
// Session owned by the caller; Snapshot orders them for export.
package feed
