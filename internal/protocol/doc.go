// Package protocol groups the ABX wire contract.
//
// Ownership boundary:
// - frame: 2-byte request and 17-byte record codecs
// - session: one TCP exchange (dial, send, receive-exactly, close)
//
// All integers on the wire are big-endian signed 32-bit. There is no length
// prefix, checksum or version negotiation.
package protocol
