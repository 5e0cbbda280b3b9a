// Package session implements the server-side authority for recording
// sessions: the coordinator state machine, connection-to-session binding,
// chunk validation and recovery, and the post-stop summarization job.
package session
