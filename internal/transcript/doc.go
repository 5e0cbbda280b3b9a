// Package transcript assembles live transcription fragments into the
// running transcript text on the client.
package transcript
