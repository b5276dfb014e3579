// Package persist keeps small multi-field records that must survive a process
// restart. Every write replaces the whole record, so readers never observe a
// mix of fields from two writes.
package persist

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("record not found")

// Store is a namespaced key/value record store.
type Store interface {
	// Save replaces the record at ns with fields. ttl <= 0 keeps it until removed.
	Save(ctx context.Context, ns string, fields map[string]string, ttl time.Duration) error
	// Load returns the record at ns or ErrNotFound.
	Load(ctx context.Context, ns string) (map[string]string, error)
	// Remove deletes the record at ns. Removing a missing record is not an error.
	Remove(ctx context.Context, ns string) error
	// Ping checks that the backend is reachable.
	Ping(ctx context.Context) error
}
