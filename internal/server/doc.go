// Package server hosts the service's network surfaces: the WebSocket
// endpoint carrying the recording protocol and the HTTP API for
// monitoring and management.
//
// Each WebSocket connection runs one read loop and one write pump; the
// write pump is the connection's only writer. Requests are dispatched to
// the session coordinator and acknowledged exactly once per request id.
// Events fan out through the Hub to every connection in a session's
// broadcast group.
package server
