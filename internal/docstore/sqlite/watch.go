package sqlite

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mschirtzinger/tradejournal/internal/docstore"
)

// hub fans commit notifications out to watches. Each watch owns a one-slot
// dirty channel; signals coalesce while the watch is busy re-reading.
type hub struct {
	mu      sync.RWMutex
	clients map[*client]struct{}
}

type client struct {
	collection string
	dirty      chan struct{}
}

func newHub() *hub {
	return &hub{clients: make(map[*client]struct{})}
}

func (h *hub) register(collection string) *client {
	c := &client{collection: collection, dirty: make(chan struct{}, 1)}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	return c
}

func (h *hub) unregister(c *client) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
}

// notify signals every client watching one of the given collections.
func (h *hub) notify(collections map[string]struct{}) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		if _, ok := collections[c.collection]; ok {
			c.signal()
		}
	}
}

// notifyAll signals every client.
func (h *hub) notifyAll() {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		c.signal()
	}
}

// count returns the number of registered clients.
func (h *hub) count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (c *client) signal() {
	select {
	case c.dirty <- struct{}{}:
	default:
	}
}

// loadFunc reads the current state of a watch target. It returns a
// fingerprint of that state and a function that hands it to the handler.
type loadFunc func(ctx context.Context) (fingerprint []byte, deliver func(), err error)

// WatchQuery delivers the full result of q now and after every change to
// the collection.
func (s *Store) WatchQuery(ctx context.Context, q docstore.Query, fn func(docstore.QuerySnapshot)) (*docstore.Subscription, error) {
	if err := docstore.CheckCollectionPath("watch", q.Collection); err != nil {
		return nil, err
	}
	return s.watch(ctx, q.Collection, func(ctx context.Context) ([]byte, func(), error) {
		docs, err := s.Query(ctx, q)
		if err != nil {
			return nil, nil, err
		}
		return docstore.Fingerprint(docs), func() {
			fn(docstore.QuerySnapshot{Docs: docs})
		}, nil
	})
}

// WatchDoc delivers the document at path now and after every change to it.
func (s *Store) WatchDoc(ctx context.Context, path string, fn func(docstore.DocSnapshot)) (*docstore.Subscription, error) {
	if err := docstore.CheckDocPath("watch", path); err != nil {
		return nil, err
	}
	return s.watch(ctx, docstore.Parent(path), func(ctx context.Context) ([]byte, func(), error) {
		doc, err := s.Get(ctx, path)
		if errors.Is(err, docstore.ErrNotFound) {
			return []byte{}, func() { fn(docstore.DocSnapshot{}) }, nil
		}
		if err != nil {
			return nil, nil, err
		}
		return docstore.Fingerprint([]docstore.Document{*doc}), func() {
			fn(docstore.DocSnapshot{Doc: doc})
		}, nil
	})
}

// watch runs the delivery loop of one subscription. The first read is
// always delivered; later reads only when the fingerprint changed.
func (s *Store) watch(ctx context.Context, collection string, load loadFunc) (*docstore.Subscription, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, docstore.NewError("watch", collection, docstore.CodeClosed, nil)
	}
	s.wg.Add(1)
	s.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	sub := docstore.NewSubscription(cancel)
	c := s.hub.register(collection)
	logger := s.logger.With(zap.String("collection", collection))

	stop := func(err error) {
		s.hub.unregister(c)
		sub.Finish(err)
	}

	go func() {
		defer s.wg.Done()

		var last []byte
		delivered := false
		for {
			fingerprint, deliver, err := load(ctx)
			switch {
			case err != nil && ctx.Err() != nil:
				stop(nil)
				return
			case err != nil && docstore.IsTransient(err):
				logger.Warn("watch read failed, retrying", zap.Error(err))
				time.AfterFunc(s.config.RetryDelay, c.signal)
			case err != nil:
				logger.Error("watch stopped", zap.Error(err))
				stop(err)
				return
			case !delivered || !bytes.Equal(fingerprint, last):
				last, delivered = fingerprint, true
				if sub.Active() {
					deliver()
				}
			}

			select {
			case <-ctx.Done():
				stop(nil)
				return
			case <-s.done:
				stop(docstore.NewError("watch", collection, docstore.CodeClosed, nil))
				return
			case <-c.dirty:
			}
		}
	}()

	return sub, nil
}

// poll signals every watch periodically so remote changes are picked up.
func (s *Store) poll(interval time.Duration) {
	defer s.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.hub.notifyAll()
		}
	}
}
