// Package rpc is the client side of the framed correlation transport.
//
// Ownership boundary:
// - Conn owns the stream: the write half behind a mutex, the read half in the dispatch goroutine
// - the mailbox registry is the only state both halves touch
// - dialing, retry backoff, and correlation token generation
//
// A Conn is dead once its dispatch loop stops, whatever the cause. Callers
// watch Done and Err and build reconnection on top if they need it.
package rpc
