// Package stdio is the single-connection stdio transport. It reads
// newline-delimited JSON-RPC frames from an io.Reader, dispatches them
// through the shared RPC engine, and writes response frames to an io.Writer.
// Stdout carries the wire protocol, so servers using this transport must log
// elsewhere.
package stdio
