// Package store persists the workflow document edited through the API.
//
// Four backends share the Store interface: an in-memory store for tests,
// an atomic file store (JSON or YAML by extension), a GORM backed SQL
// store that keeps a revision history, and a Redis store. Open selects
// one from config and Instrument adds per-operation timeouts and metrics.
package store
