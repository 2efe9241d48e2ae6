package docstore

import (
	"context"
	"io"
)

// MaxBatchSize is the largest number of writes a single Batch may commit.
const MaxBatchSize = 500

// Query selects every document of one collection.
type Query struct {
	// Collection is the collection path.
	Collection string
	// OrderBy names the field to order by. Documents without the field sort
	// after those that have it. When empty, documents are returned in
	// storage order.
	OrderBy string
	// Descending reverses the order of OrderBy. Ties always fall back to
	// ascending storage order.
	Descending bool
}

// Metadata describes the provenance of a snapshot.
type Metadata struct {
	// HasPendingWrites is true when the snapshot reflects local writes the
	// backend has not yet acknowledged.
	HasPendingWrites bool
	// FromCache is true when the snapshot was served from a local cache
	// before the backend confirmed it.
	FromCache bool
}

// QuerySnapshot is the full result of a watched query.
type QuerySnapshot struct {
	Docs     []Document
	Metadata Metadata
}

// DocSnapshot is the current state of a watched document.
type DocSnapshot struct {
	// Doc is nil when the document does not exist.
	Doc      *Document
	Metadata Metadata
}

// Exists reports whether the snapshot holds a document.
func (s DocSnapshot) Exists() bool { return s.Doc != nil }

// SetOption modifies the behavior of Set.
type SetOption int

// MergeAll merges the payload into the existing document instead of
// replacing it.
const MergeAll SetOption = 1

// IsMerge reports whether opts request a merge.
func IsMerge(opts ...SetOption) bool {
	for _, o := range opts {
		if o == MergeAll {
			return true
		}
	}
	return false
}

// Reader reads documents.
type Reader interface {
	// Get returns the document at path or an error matching ErrNotFound.
	Get(ctx context.Context, path string) (*Document, error)
	// Query returns all documents of a collection in query order.
	Query(ctx context.Context, q Query) ([]Document, error)
}

// Writer writes documents.
type Writer interface {
	Set(ctx context.Context, path string, data Doc, opts ...SetOption) error
	Update(ctx context.Context, path string, fields Doc) error
	Delete(ctx context.Context, path string) error
	// Batch starts an atomic group of writes.
	Batch() *Batch
}

// Watcher opens standing subscriptions.
type Watcher interface {
	WatchQuery(ctx context.Context, q Query, fn func(QuerySnapshot)) (*Subscription, error)
	WatchDoc(ctx context.Context, path string, fn func(DocSnapshot)) (*Subscription, error)
}

// Store is a hierarchical document store.
type Store interface {
	Reader
	Writer
	Watcher
	io.Closer
}
