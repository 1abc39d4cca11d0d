// Package storage provides the GORM implementation of core.Storage.
//
// GormStorage runs on SQLite and PostgreSQL. On PostgreSQL the Lock*
// methods take FOR UPDATE row locks; on SQLite the database file lock
// serialises writers. Every status update is guarded by the expected current
// status, and driver serialization failures are reported as core.ErrConflict
// so callers can retry.
//
// Most users should import the root package github.com/MapColonies/jobnik
// which provides NewGormStorage() and OpenStorage().
package storage
