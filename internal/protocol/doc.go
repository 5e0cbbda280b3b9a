// Package protocol defines the JSON wire format for the recording duplex
// channel: request/acknowledgement envelopes correlated by id, and named
// events broadcast to per-session groups.
package protocol
