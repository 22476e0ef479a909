// Package docstore is a small transactional document store addressed by
// slash-separated paths ("plans/{planId}/events/{eventId}").
//
// Documents are JSON objects. Every mutation that reads before it writes
// runs inside RunTx: the callback may be invoked more than once, and a
// commit only succeeds if nothing the callback read has changed since.
package docstore

import (
	"context"
	"errors"
	"strings"
)

var (
	ErrAlreadyExists = errors.New("document already exists")
	ErrConflict      = errors.New("transaction conflict")
	ErrInvalidPath   = errors.New("invalid document path")
)

// Data is the JSON object stored at a path.
type Data = map[string]any

// Doc is a document as read from the store.
type Doc struct {
	Path     string
	Data     Data
	Revision int64
}

// ID is the last path segment.
func (d *Doc) ID() string {
	return ID(d.Path)
}

// Store is the non-transactional surface plus the transaction runner.
// Get returns a nil *Doc and nil error when the document does not exist.
type Store interface {
	Get(ctx context.Context, path string) (*Doc, error)
	// Create writes data at path only if nothing is there yet, and returns
	// ErrAlreadyExists otherwise.
	Create(ctx context.Context, path string, data Data) error
	Query(ctx context.Context, q Query) ([]*Doc, error)
	// RunTx runs fn atomically. fn may be retried on conflict, so it must
	// not have side effects outside tx. An error returned by fn aborts the
	// transaction and is returned unchanged.
	RunTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	Close() error
}

// Tx is a read-then-write transaction. Reads observe the transaction's
// own earlier writes.
type Tx interface {
	Get(ctx context.Context, path string) (*Doc, error)
	// Set replaces the document at path.
	Set(ctx context.Context, path string, data Data) error
	// Merge shallow-merges data into the document at path, creating it if
	// missing.
	Merge(ctx context.Context, path string, data Data) error
	Delete(ctx context.Context, path string) error
}

// Join builds a path from segments.
func Join(segments ...string) string {
	return strings.Join(segments, "/")
}

// Collection returns the collection part of a document path.
func Collection(path string) string {
	i := strings.LastIndex(path, "/")
	if i < 0 {
		return ""
	}
	return path[:i]
}

// ID returns the document id part of a path.
func ID(path string) string {
	return path[strings.LastIndex(path, "/")+1:]
}

// ValidatePath checks that path names a document: an even number of
// non-empty segments.
func ValidatePath(path string) error {
	segs := strings.Split(path, "/")
	if len(segs) < 2 || len(segs)%2 != 0 {
		return ErrInvalidPath
	}
	for _, s := range segs {
		if s == "" {
			return ErrInvalidPath
		}
	}
	return nil
}
