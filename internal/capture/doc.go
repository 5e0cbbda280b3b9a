// Package capture produces the client's outbound audio chunks. A Source
// pushes small PCM fragments at the capture cadence; the ChunkBuffer
// accumulates them and hands off one indexed chunk per flush interval.
package capture
