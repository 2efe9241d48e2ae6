// Package offline adds latency compensation to a docstore.Store.
//
// Writes are applied to a local overlay and echoed to open watches before
// the backend acknowledges them; those snapshots carry
// Metadata.HasPendingWrites. When the backend acknowledges a write the
// overlay entry is dropped and watches are refreshed from the backend, so
// resolved server timestamps replace the local estimates. When the backend
// rejects a write the overlay entry is dropped and watches fall back to the
// last confirmed state.
//
// Watches start from the local cache when it already holds data for their
// target; those snapshots carry Metadata.FromCache until the backend
// delivers its first snapshot.
//
// The overlay lives in memory only. Writes that fail are reported to the
// caller and are not retried.
package offline

import (
	"bytes"
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mschirtzinger/tradejournal/internal/docstore"
)

// Store wraps a backend docstore.Store.
type Store struct {
	backend docstore.Store
	logger  *zap.Logger
	now     func() time.Time

	mu        sync.Mutex
	cache     map[string]docstore.Document // confirmed documents by path
	pending   []*mutation
	nextMut   int64
	listeners map[*listener]struct{}
}

var _ docstore.Store = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

// WithClock sets the clock used to estimate server timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New returns a Store that forwards to backend.
func New(backend docstore.Store, opts ...Option) *Store {
	s := &Store{
		backend:   backend,
		logger:    zap.NewNop(),
		now:       time.Now,
		cache:     make(map[string]docstore.Document),
		listeners: make(map[*listener]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(zap.String("store", "offline"))
	return s
}

// mutation is a write the backend has not acknowledged yet.
type mutation struct {
	id     int64
	writes []docstore.Write
	at     time.Time // local estimate for server timestamps
}

// Close closes the backend.
func (s *Store) Close() error {
	return s.backend.Close()
}

// Get reads through to the backend. When the backend is unavailable and the
// document is held in the cache, the cached view is returned.
func (s *Store) Get(ctx context.Context, path string) (*docstore.Document, error) {
	doc, err := s.backend.Get(ctx, path)
	if err == nil || !docstore.IsTransient(err) {
		return doc, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.coveredLocked(path, "") {
		return nil, err
	}
	docs := s.viewLocked(docstore.Parent(path), path)
	if len(docs) == 0 {
		return nil, docstore.NewError("get", path, docstore.CodeNotFound, nil)
	}
	return &docs[0], nil
}

// Query reads through to the backend, falling back to the cached view of
// the collection when the backend is unavailable.
func (s *Store) Query(ctx context.Context, q docstore.Query) ([]docstore.Document, error) {
	docs, err := s.backend.Query(ctx, q)
	if err == nil || !docstore.IsTransient(err) {
		return docs, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.coveredLocked("", q.Collection) {
		return nil, err
	}
	docs = s.viewLocked(q.Collection, "")
	docstore.SortDocuments(docs, q)
	return docs, nil
}

// Set writes through the overlay.
func (s *Store) Set(ctx context.Context, path string, data docstore.Doc, opts ...docstore.SetOption) error {
	if err := docstore.CheckDocPath("set", path); err != nil {
		return err
	}
	w := docstore.Write{Op: docstore.OpSet, Path: path, Data: data, Merge: docstore.IsMerge(opts...)}
	return s.apply(ctx, []docstore.Write{w}, func(ctx context.Context) error {
		return s.backend.Set(ctx, path, data, opts...)
	})
}

// Update writes through the overlay. An update of a document missing from
// the local view is not echoed locally; the backend decides.
func (s *Store) Update(ctx context.Context, path string, fields docstore.Doc) error {
	if err := docstore.CheckDocPath("update", path); err != nil {
		return err
	}
	w := docstore.Write{Op: docstore.OpUpdate, Path: path, Data: fields}
	return s.apply(ctx, []docstore.Write{w}, func(ctx context.Context) error {
		return s.backend.Update(ctx, path, fields)
	})
}

// Delete writes through the overlay.
func (s *Store) Delete(ctx context.Context, path string) error {
	if err := docstore.CheckDocPath("delete", path); err != nil {
		return err
	}
	w := docstore.Write{Op: docstore.OpDelete, Path: path}
	return s.apply(ctx, []docstore.Write{w}, func(ctx context.Context) error {
		return s.backend.Delete(ctx, path)
	})
}

// Batch returns a batch whose writes are echoed together and committed to
// the backend atomically.
func (s *Store) Batch() *docstore.Batch {
	return docstore.NewBatch(func(ctx context.Context, writes []docstore.Write) error {
		return s.apply(ctx, writes, func(ctx context.Context) error {
			b := s.backend.Batch()
			for _, w := range writes {
				b.Add(w)
			}
			return b.Commit(ctx)
		})
	})
}

// apply records writes as pending, echoes them, runs commit and then
// settles the overlay. The echo is captured for every affected watch before
// the backend sees the write, so a fast acknowledgement cannot hide it.
func (s *Store) apply(ctx context.Context, writes []docstore.Write, commit func(context.Context) error) error {
	s.mu.Lock()
	s.nextMut++
	m := &mutation{id: s.nextMut, writes: writes, at: s.now().UTC()}
	s.pending = append(s.pending, m)
	for l := range s.affectedLocked(writes) {
		l.enqueueLocked()
	}
	s.mu.Unlock()

	err := commit(ctx)
	if err != nil {
		s.logger.Debug("write rejected, rolling back local view",
			zap.Int("writes", len(writes)), zap.Error(err))
	} else {
		s.refresh(ctx, writes)
	}

	s.mu.Lock()
	for i, p := range s.pending {
		if p.id == m.id {
			s.pending = append(s.pending[:i], s.pending[i+1:]...)
			break
		}
	}
	s.mu.Unlock()
	s.signal(writes)

	return err
}

// refresh re-reads acknowledged targets that open watches depend on, so the
// cache holds the backend's resolved values before the overlay entry goes.
func (s *Store) refresh(ctx context.Context, writes []docstore.Write) {
	collections := make(map[string]struct{})
	docs := make(map[string]struct{})

	s.mu.Lock()
	for _, w := range writes {
		coll := docstore.Parent(w.Path)
		if s.coveredLocked("", coll) {
			collections[coll] = struct{}{}
		} else if s.coveredLocked(w.Path, "") {
			docs[w.Path] = struct{}{}
		}
	}
	s.mu.Unlock()

	for coll := range collections {
		fresh, err := s.backend.Query(ctx, docstore.Query{Collection: coll})
		if err != nil {
			s.logger.Warn("failed to refresh collection after write", zap.String("collection", coll), zap.Error(err))
			continue
		}
		s.mu.Lock()
		s.replaceCollectionLocked(coll, fresh)
		s.mu.Unlock()
	}

	for path := range docs {
		doc, err := s.backend.Get(ctx, path)
		if err != nil && !docstore.IsTransient(err) && docstore.CodeOf(err) != docstore.CodeNotFound {
			s.logger.Warn("failed to refresh document after write", zap.String("path", path), zap.Error(err))
			continue
		}
		if docstore.IsTransient(err) {
			continue
		}
		s.mu.Lock()
		s.replaceDocLocked(path, doc)
		s.mu.Unlock()
	}
}

func (s *Store) replaceCollectionLocked(coll string, docs []docstore.Document) {
	for path := range s.cache {
		if docstore.Parent(path) == coll {
			delete(s.cache, path)
		}
	}
	for _, d := range docs {
		s.cache[d.Path] = d.Clone()
	}
}

func (s *Store) replaceDocLocked(path string, doc *docstore.Document) {
	if doc == nil {
		delete(s.cache, path)
		return
	}
	s.cache[path] = doc.Clone()
}

// viewLocked returns the documents of coll as seen locally: the cache with
// every pending write applied in order. When path is set only that document
// is returned.
func (s *Store) viewLocked(coll, path string) []docstore.Document {
	view := make(map[string]docstore.Document)
	for p, d := range s.cache {
		if (path == "" && docstore.Parent(p) == coll) || p == path {
			view[p] = d.Clone()
		}
	}

	for _, m := range s.pending {
		for _, w := range m.writes {
			if (path == "" && docstore.Parent(w.Path) != coll) || (path != "" && w.Path != path) {
				continue
			}
			applyLocal(view, w, m)
		}
	}

	docs := make([]docstore.Document, 0, len(view))
	for _, d := range view {
		docs = append(docs, d)
	}
	docstore.SortDocuments(docs, docstore.Query{Collection: coll})
	return docs
}

// pendingLocked reports whether a pending write touches coll or path.
func (s *Store) pendingLocked(coll, path string) bool {
	for _, m := range s.pending {
		for _, w := range m.writes {
			if (path != "" && w.Path == path) || (path == "" && docstore.Parent(w.Path) == coll) {
				return true
			}
		}
	}
	return false
}

// applyLocal applies one pending write to the local view. Writes the
// backend would reject, such as updates of missing documents, are skipped.
func applyLocal(view map[string]docstore.Document, w docstore.Write, m *mutation) {
	existing, found := view[w.Path]
	next, exists, err := docstore.ApplyWrite(existing.Data, found, w, m.at)
	if err != nil {
		return
	}
	if !exists {
		delete(view, w.Path)
		return
	}
	if !found {
		existing = docstore.Document{
			Path:       w.Path,
			ID:         docstore.Base(w.Path),
			Seq:        math.MaxInt64/2 + m.id,
			CreateTime: m.at,
		}
	}
	existing.Data = next
	existing.UpdateTime = m.at
	view[w.Path] = existing
}

func sameSnapshot(a, b []byte) bool { return a != nil && bytes.Equal(a, b) }

func metadataKey(md docstore.Metadata) string {
	return fmt.Sprintf("%t/%t", md.HasPendingWrites, md.FromCache)
}
