// Package audio provides PCM-16 sample/byte conversion and WAV encoding for
// chunks handed to the transcription capability.
package audio
