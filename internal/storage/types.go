package storage

import (
	"context"
	"errors"
	"iter"
	"time"
)

var (
	ErrNotFound    = errors.New("storage: document not found")
	ErrClosed      = errors.New("storage: store closed")
	ErrInvalidPath = errors.New("storage: invalid path")
	// ErrCorrupt marks a stored body that no longer decodes. List and
	// CollectionGroup report it per document through Snapshot.Err.
	ErrCorrupt = errors.New("storage: corrupt document")
)

// Config configures storage.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
	// CompactEvery is the number of journal writes between snapshots (file only).
	CompactEvery int
}

// Doc is a document body. Values are JSON-compatible; integers read back as
// json.Number so 64-bit ids survive a round trip.
type Doc map[string]any

// Snapshot is a document as read from the store.
type Snapshot struct {
	Path       string
	ID         string
	Collection string
	Data       Doc
	CreatedAt  time.Time
	UpdatedAt  time.Time
	// Err wraps ErrCorrupt when Data could not be decoded; Data is nil then.
	Err error
}

type sentinel int

const (
	serverTimestamp sentinel = iota + 1
	deleteField
)

// ServerTimestamp, as a field value, is replaced by the store's clock on write.
var ServerTimestamp any = serverTimestamp

// DeleteField, as a field value in a merge write, removes the field.
var DeleteField any = deleteField

type setOptions struct {
	merge bool
}

type SetOption func(*setOptions)

// Merge makes Set update only the given fields of an existing document.
func Merge() SetOption { return func(o *setOptions) { o.merge = true } }

// Store is the persistence API used by the records layer.
type Store interface {
	Get(ctx context.Context, path string) (Snapshot, error)
	// Set creates or replaces the document at path. With Merge, only the
	// given fields change and DeleteField removes a field.
	Set(ctx context.Context, path string, data Doc, opts ...SetOption) error
	// Add creates a document with a fresh id in collection and returns the id.
	Add(ctx context.Context, collection string, data Doc) (string, error)
	// Delete removes the document at path. Deleting a missing document is not an error.
	Delete(ctx context.Context, path string) error
	// List and CollectionGroup return undecodable documents with Snapshot.Err
	// set; the error result is reserved for failures of the read itself.
	List(ctx context.Context, collection string) ([]Snapshot, error)
	// CollectionGroup yields every document whose collection is named group.
	CollectionGroup(ctx context.Context, group string) iter.Seq2[Snapshot, error]
	Close() error
}
