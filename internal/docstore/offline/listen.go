package offline

import (
	"context"

	"github.com/mschirtzinger/tradejournal/internal/docstore"
)

// listener is one open watch. Query watches set only coll; document
// watches set path and use its parent as coll.
type listener struct {
	coll   string
	path   string
	synced bool // guarded by Store.mu; set once the backend delivered
	notify chan struct{}

	// queued holds snapshots captured by writers, oldest first. Guarded by
	// Store.mu.
	queued []snapshot

	// captureLocked builds the current local snapshot with Store.mu held.
	captureLocked func() snapshot
}

// snapshot is a rendered view: a fingerprint and a function that hands it to
// the handler.
type snapshot struct {
	fingerprint []byte
	deliver     func()
}

// enqueueLocked captures the current view for later delivery and wakes the
// listener.
func (l *listener) enqueueLocked() {
	l.queued = append(l.queued, l.captureLocked())
	l.signal()
}

func (l *listener) signal() {
	select {
	case l.notify <- struct{}{}:
	default:
	}
}

func (l *listener) targets(path string) bool {
	if l.path != "" {
		return path == l.path
	}
	return docstore.Parent(path) == l.coll
}

// WatchQuery watches a collection through the local view.
func (s *Store) WatchQuery(ctx context.Context, q docstore.Query, fn func(docstore.QuerySnapshot)) (*docstore.Subscription, error) {
	if err := docstore.CheckCollectionPath("watch", q.Collection); err != nil {
		return nil, err
	}

	l := &listener{coll: q.Collection, notify: make(chan struct{}, 1)}
	l.captureLocked = func() snapshot {
		docs := s.viewLocked(q.Collection, "")
		md := docstore.Metadata{
			HasPendingWrites: s.pendingLocked(q.Collection, ""),
			FromCache:        !l.synced,
		}
		docstore.SortDocuments(docs, q)
		return snapshot{
			fingerprint: append(docstore.Fingerprint(docs), metadataKey(md)...),
			deliver: func() {
				fn(docstore.QuerySnapshot{Docs: docs, Metadata: md})
			},
		}
	}

	return s.listen(ctx, l, func(ctx context.Context) (*docstore.Subscription, error) {
		return s.backend.WatchQuery(ctx, q, func(snap docstore.QuerySnapshot) {
			s.mu.Lock()
			s.replaceCollectionLocked(q.Collection, snap.Docs)
			if !snap.Metadata.FromCache {
				l.synced = true
			}
			s.mu.Unlock()
			s.signalCollection(q.Collection)
		})
	})
}

// WatchDoc watches a single document through the local view.
func (s *Store) WatchDoc(ctx context.Context, path string, fn func(docstore.DocSnapshot)) (*docstore.Subscription, error) {
	if err := docstore.CheckDocPath("watch", path); err != nil {
		return nil, err
	}

	coll := docstore.Parent(path)
	l := &listener{coll: coll, path: path, notify: make(chan struct{}, 1)}
	l.captureLocked = func() snapshot {
		docs := s.viewLocked(coll, path)
		md := docstore.Metadata{
			HasPendingWrites: s.pendingLocked("", path),
			FromCache:        !l.synced,
		}
		snap := docstore.DocSnapshot{Metadata: md}
		if len(docs) > 0 {
			snap.Doc = &docs[0]
		}
		return snapshot{
			fingerprint: append(docstore.Fingerprint(docs), metadataKey(md)...),
			deliver:     func() { fn(snap) },
		}
	}

	return s.listen(ctx, l, func(ctx context.Context) (*docstore.Subscription, error) {
		return s.backend.WatchDoc(ctx, path, func(snap docstore.DocSnapshot) {
			s.mu.Lock()
			s.replaceDocLocked(path, snap.Doc)
			if !snap.Metadata.FromCache {
				l.synced = true
			}
			s.mu.Unlock()
			s.signalPath(path)
		})
	})
}

// listen registers l, opens the backend watch and starts delivery. When the
// cache already holds data for the target, a cached snapshot is delivered
// without waiting for the backend.
func (s *Store) listen(ctx context.Context, l *listener, open func(context.Context) (*docstore.Subscription, error)) (*docstore.Subscription, error) {
	ctx, cancel := context.WithCancel(ctx)
	sub := docstore.NewSubscription(cancel)

	s.mu.Lock()
	s.listeners[l] = struct{}{}
	warm := s.hasDataLocked(l)
	s.mu.Unlock()

	backend, err := open(ctx)
	if err != nil {
		s.unregister(l)
		cancel()
		return nil, err
	}
	if warm {
		l.signal()
	}

	go s.run(ctx, l, sub, backend)
	return sub, nil
}

// run delivers snapshots of l until the caller cancels or the backend
// watch ends. Queued snapshots go out before the current view, and
// identical consecutive snapshots are delivered once.
func (s *Store) run(ctx context.Context, l *listener, sub, backend *docstore.Subscription) {
	var last []byte
	for {
		select {
		case <-ctx.Done():
			backend.Cancel()
			s.unregister(l)
			sub.Finish(nil)
			return
		case <-backend.Done():
			s.unregister(l)
			sub.Finish(backend.Err())
			return
		case <-l.notify:
			s.mu.Lock()
			snaps := append(l.queued, l.captureLocked())
			l.queued = nil
			s.mu.Unlock()

			for _, snap := range snaps {
				if sameSnapshot(last, snap.fingerprint) {
					continue
				}
				last = snap.fingerprint
				if sub.Active() {
					snap.deliver()
				}
			}
		}
	}
}

func (s *Store) unregister(l *listener) {
	s.mu.Lock()
	delete(s.listeners, l)
	s.mu.Unlock()
}

// hasDataLocked reports whether the cache or the overlay holds anything
// for l's target.
func (s *Store) hasDataLocked(l *listener) bool {
	for p := range s.cache {
		if l.targets(p) {
			return true
		}
	}
	return s.pendingLocked(l.coll, l.path)
}

// coveredLocked reports whether a synced watch keeps the cache current for
// the document at path or for the collection coll.
func (s *Store) coveredLocked(path, coll string) bool {
	for l := range s.listeners {
		if !l.synced {
			continue
		}
		if coll != "" && l.path == "" && l.coll == coll {
			return true
		}
		if path != "" && l.targets(path) {
			return true
		}
	}
	return false
}

// signal wakes every listener affected by writes.
func (s *Store) signal(writes []docstore.Write) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for l := range s.affectedLocked(writes) {
		l.signal()
	}
}

func (s *Store) affectedLocked(writes []docstore.Write) map[*listener]struct{} {
	out := make(map[*listener]struct{})
	for l := range s.listeners {
		for _, w := range writes {
			if l.targets(w.Path) {
				out[l] = struct{}{}
				break
			}
		}
	}
	return out
}

func (s *Store) signalPath(path string) {
	s.signal([]docstore.Write{{Path: path}})
}

// signalCollection wakes the listeners of coll and of its documents.
func (s *Store) signalCollection(coll string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for l := range s.listeners {
		if l.coll == coll {
			l.signal()
		}
	}
}
