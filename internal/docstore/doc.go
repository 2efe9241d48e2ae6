// Package docstore defines the boundary between the journal sync layer and a
// hierarchical multi-document store.
//
// # Paths
//
// Documents are addressed by slash separated paths that alternate collection
// and document segments:
//
//	owner/u1/trades            collection
//	owner/u1/trades/trade_x    document
//
// # Writes
//
// A Store supports three kinds of writes, each usable on its own or inside an
// atomic Batch:
//
//   - Set replaces a document, or merges into it with MergeAll. Merging only
//     touches the fields present in the payload; nested maps are merged
//     recursively.
//   - Update replaces the named top-level fields of an existing document and
//     fails with ErrNotFound when the document does not exist.
//   - Delete removes a document. Deleting a missing document succeeds.
//
// Field values may be one of the sentinels ServerTimestamp,
// DefaultServerTimestamp or DeleteField; adapters resolve them at commit time.
//
// # Watches
//
// WatchQuery and WatchDoc open standing subscriptions. The handler is called
// with the full current result on every change, together with Metadata that
// tells whether the snapshot includes unacknowledged local writes and whether
// it was served from a local cache. Handlers of one subscription are never
// called concurrently. Every watch returns a *Subscription that must be
// cancelled by the caller.
//
// # Errors
//
// Adapters translate driver failures into *Error values carrying a Code, so
// callers can use errors.Is with ErrNotFound, ErrInvalidArgument,
// ErrUnavailable, ErrAborted or ErrClosed regardless of the backend.
package docstore
