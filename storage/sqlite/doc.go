// Package sqlite implements storage.Store on a single SQLite database file
// using the pure Go modernc.org/sqlite driver.
//
// Documents live in a documents table keyed by the ID of their source.
// Index snapshots are stored whole in a snapshots table. The schema is
// applied from embedded migrations when the store is opened.
package sqlite
