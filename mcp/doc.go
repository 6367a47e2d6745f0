// Package mcp defines the wire-level types for the subset of the Model
// Context Protocol that cratedocs speaks: initialization, ping, and the
// tools capability. The types mirror the protocol schema; they carry no
// behavior beyond JSON marshaling.
package mcp
