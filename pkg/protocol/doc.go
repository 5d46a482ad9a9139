// Package protocol implements the binary wire format between a remote loom
// session and its client. The server streams committed host mutations as
// patch frames; the client sends input as event frames. All multi-byte
// integers are big-endian, variable-length integers use LEB128
// (protobuf-style uvarint), and strings are uvarint-length-prefixed UTF-8.
//
// Every message is a frame:
//
//	┌────────────┬────────────┬────────────────────────┐
//	│ type (1B)  │ flags (1B) │ payload length (2B BE) │
//	├────────────┴────────────┴────────────────────────┤
//	│ payload (up to 65535 bytes)                      │
//	└──────────────────────────────────────────────────┘
//
// A connection opens with a Hello/Welcome handshake, after which the server
// sends numbered patch batches and the client acknowledges them by sequence
// number. Decoders never trust length prefixes: allocations and collection
// counts are capped so a malicious peer cannot force large allocations out
// of a small frame.
package protocol
