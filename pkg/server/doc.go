// Package server implements the interceptor server used by remote
// interceptors.
//
// A remote interceptor opens a WebSocket session at protocol.Path. The
// server assigns the session a base URL of the form
// http://host:port/<sessionID>; application traffic sent under that prefix
// is dispatched to the handlers the session declared. Handler state lives
// here, while Go callbacks (computed restrictions, delays and response
// factories) stay in the client process and are invoked over the session
// connection.
//
// Sessions end when their connection closes; their handlers go with them.
package server
