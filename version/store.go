// Package version stores numbered, immutable snapshots of project fields.
//
// Each project has an append-only history. Version numbers start at 1 and
// strictly increase; a recorded snapshot is never changed or removed. One
// version may be marked stable; it is the default when a resolution does
// not ask for a specific version.
//
// Two stores are provided: MemoryStore for tests and embedded use, and
// SQLiteStore for durable histories.
package version

import (
	"context"
	"errors"
	"maps"
	"time"
)

// Sentinel errors returned by stores.
var (
	// ErrVersionNotFound indicates the requested version was never recorded.
	ErrVersionNotFound = errors.New("version not found")

	// ErrClosed indicates the store was closed.
	ErrClosed = errors.New("version store closed")

	// ErrEmptyProject indicates an empty project name.
	ErrEmptyProject = errors.New("empty project name")

	// ErrHistoryExists indicates a rename target that already has versions.
	ErrHistoryExists = errors.New("version history already exists")
)

// ValueMap is a snapshot of a project's fields. A missing key means the
// field was not tracked in that version; a present key with a nil value is
// an explicit null.
type ValueMap map[string]any

// Lookup returns the value recorded for field. tracked is false when the
// snapshot does not contain the field at all.
func (m ValueMap) Lookup(field string) (value any, tracked bool) {
	value, tracked = m[field]
	return value, tracked
}

// Clone returns a shallow copy.
func (m ValueMap) Clone() ValueMap {
	if m == nil {
		return nil
	}
	return maps.Clone(m)
}

// Info describes one recorded version.
type Info struct {
	// Number is the version number, starting at 1.
	Number int `json:"number"`

	// Created is when the version was recorded.
	Created time.Time `json:"created"`

	// Digest is the BLAKE3 digest of the snapshot's canonical encoding.
	Digest string `json:"digest"`

	// Stable reports whether this is the project's stable version.
	Stable bool `json:"stable"`
}

// Store is a per-project append-only version history.
//
// Implementations must be safe for concurrent use. A reader running
// concurrently with Record observes either the history before or after the
// append, never a partial one.
type Store interface {
	// Record appends a snapshot and returns the new version.
	Record(ctx context.Context, project string, values ValueMap) (Info, error)

	// Values returns the snapshot of version n. ok is false when the
	// project has no such version.
	Values(ctx context.Context, project string, n int) (values ValueMap, ok bool, err error)

	// Stable returns the stable version. When no version was ever marked
	// stable, the latest version is reported. ok is false when the project
	// has no versions.
	Stable(ctx context.Context, project string) (n int, ok bool, err error)

	// Latest returns the most recently recorded version.
	Latest(ctx context.Context, project string) (n int, ok bool, err error)

	// SetStable marks version n stable. It fails with ErrVersionNotFound if
	// n was never recorded.
	SetStable(ctx context.Context, project string, n int) error

	// List returns every version of the project, oldest first.
	List(ctx context.Context, project string) ([]Info, error)

	// Rename moves the history of oldName, stable marker included, to
	// newName. Renaming a project without versions is a no-op. It fails
	// with ErrHistoryExists if newName already has versions.
	Rename(ctx context.Context, oldName, newName string) error

	// Close releases resources. Further calls fail with ErrClosed.
	Close() error
}
