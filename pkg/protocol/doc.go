// Package protocol defines the messages exchanged between a remote
// interceptor and an interceptor server, and the Peer that carries them
// over a WebSocket.
//
// After the upgrade the server sends a connected message carrying the
// session id and the base URL application traffic should target. From then
// on both sides exchange JSON text frames:
//
//	client -> server  call    configure handlers, check times, list requests
//	server -> client  reply   the answer to a call, same id
//	server -> client  invoke  run a Go callback (predicate, delay, response)
//	client -> server  result  the answer to an invoke, same id
//
// Every call and invoke is completed exactly once. When the connection ends,
// every pending call fails with ErrSessionClosed.
package protocol
