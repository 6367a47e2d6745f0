// Package sessions implements the multiplexed transport's session hub: a
// process-local table of logical conversations, each identified by an opaque
// token and owning an ordered outbound message queue.
//
// Exactly one Hub owns all sessions in a process. Sessions are independent:
// publishing or draining one token never blocks another, and the token table
// itself is sharded so that distinct tokens do not contend on a single lock.
package sessions
