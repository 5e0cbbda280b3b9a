// Package duplex is the client's bidirectional transport: request/ack
// correlation and server-pushed event subscriptions over one WebSocket
// connection, with bounded reconnection when the link drops.
package duplex
