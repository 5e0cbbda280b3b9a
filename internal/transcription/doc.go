// Package transcription implements the HTTP client for the transcription
// capability: given audio bytes, return text and a confidence score. Requests
// are rate limited and retried with exponential backoff.
package transcription
