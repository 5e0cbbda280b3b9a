// Package store persists recording sessions, transcript fragments, and
// summaries in SQLite via GORM. The coordinator is the only writer; status
// transitions never regress a session out of a terminal state.
package store
