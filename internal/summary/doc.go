// Package summary implements the summarization capability: given a full
// transcript, return a structured summary with key points, action items,
// and decisions.
package summary
