// Package streaminghttp is the multiplexed HTTP transport. It implements the
// MCP HTTP+SSE surface:
//
//   - GET  /sse                  opens a session and returns the hanging
//     event stream; the first event ("endpoint") carries the session-scoped
//     POST URI.
//   - POST /sse?sessionId=TOKEN  submits one JSON-RPC message and returns
//     202 Accepted; the response is delivered as a "message" event on the
//     session's stream.
//   - DELETE /sse?sessionId=TOKEN closes the session.
//
// Sessions live in a sessions.Hub; protocol semantics live in the shared
// engine. Event ids are monotonic per session and the stream honors
// Last-Event-ID resume.
package streaminghttp
