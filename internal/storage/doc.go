// Package storage persists reminder records.
//
// The scheduler never reads it directly: the reminder service writes a
// record in lockstep with each Schedule or Cancel, and reloads active
// records on start.
package storage
