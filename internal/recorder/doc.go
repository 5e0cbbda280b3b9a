// Package recorder drives a recording session from the client side: it owns
// the capture source, the chunk buffer, and the client's mirror of the
// session state. The server's view of the session is authoritative; the
// recorder converges on it through status events.
package recorder
