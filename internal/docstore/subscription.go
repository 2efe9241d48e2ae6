package docstore

import (
	"sync"
	"sync/atomic"
)

// Subscription is the handle of a standing watch.
//
// After Cancel returns, the handler is not invoked again except for a call
// that was already in progress; wait on Done to be sure it has returned.
// Cancel may be called from inside the handler.
type Subscription struct {
	cancel    func()
	cancelled atomic.Bool
	once      sync.Once
	done      chan struct{}

	mu  sync.Mutex
	err error
}

// NewSubscription returns an active subscription whose Cancel calls cancel.
// Store implementations call Finish when their delivery loop exits.
func NewSubscription(cancel func()) *Subscription {
	return &Subscription{cancel: cancel, done: make(chan struct{})}
}

// Cancel stops delivery. It is safe to call more than once.
func (s *Subscription) Cancel() {
	s.cancelled.Store(true)
	if s.cancel != nil {
		s.cancel()
	}
}

// Active reports whether the subscription may still deliver snapshots.
func (s *Subscription) Active() bool {
	if s.cancelled.Load() {
		return false
	}
	select {
	case <-s.done:
		return false
	default:
		return true
	}
}

// Done is closed when the subscription has stopped delivering, either
// because it was cancelled or because the store failed.
func (s *Subscription) Done() <-chan struct{} { return s.done }

// Err returns the error that ended the subscription, or nil if it was
// cancelled or is still running.
func (s *Subscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Finish marks the subscription as stopped with the given error. Only the
// first call has an effect.
func (s *Subscription) Finish(err error) {
	s.once.Do(func() {
		if s.cancelled.Load() {
			err = nil
		}
		s.mu.Lock()
		s.err = err
		s.mu.Unlock()
		close(s.done)
		if s.cancel != nil {
			s.cancel()
		}
	})
}
