// Package frame encodes ABX request frames and decodes record frames.
//
// Request (client->server, 2 bytes): call_type, resend_seq.
// Record (server->client, 17 bytes): symbol[4] side[1] quantity[4] price[4] sequence[4].
package frame
