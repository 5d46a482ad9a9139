// Package remote serves loom trees over websockets. Each connection owns a
// session: a root mounted against a wire backend that turns committed host
// mutations into binary patch frames, and an event loop that feeds decoded
// client events back into the root.
//
// The HTTP surface is a chi router exposing the websocket endpoint, a
// Prometheus /metrics handler, and a health probe. Sessions that lose their
// connection stay resumable for a configurable window; unacknowledged patch
// batches are retained (optionally in SQL or S3) and replayed on resume.
package remote
