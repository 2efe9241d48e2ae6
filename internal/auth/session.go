// Package auth provides the signed-in owner of a journal.
//
// A Session holds the current owner id and tells watchers when it changes.
// Journal subscriptions are scoped to one owner, so callers use Follow to
// re-subscribe after every sign-in and drop subscriptions on sign-out.
package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// ErrNoOwner is returned when signing in without an owner id.
var ErrNoOwner = errors.New("owner id is required")

// Session tracks the signed-in owner.
type Session struct {
	logger *zap.Logger

	mu       sync.Mutex
	owner    string
	watchers map[chan string]struct{}
}

// NewSession returns a signed-out session.
func NewSession(logger *zap.Logger) *Session {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Session{
		logger:   logger,
		watchers: make(map[chan string]struct{}),
	}
}

// OwnerID returns the signed-in owner id, or "" when signed out.
func (s *Session) OwnerID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.owner
}

// SignIn sets the owner id.
func (s *Session) SignIn(ownerID string) error {
	if ownerID == "" {
		return ErrNoOwner
	}
	s.set(ownerID)
	s.logger.Info("signed in", zap.String("owner", ownerID))
	return nil
}

// SignInWithToken verifies a session token and signs in as its subject.
func (s *Session) SignInWithToken(v *TokenVerifier, token string) error {
	ownerID, err := v.OwnerID(token)
	if err != nil {
		return err
	}
	return s.SignIn(ownerID)
}

// SignOut clears the owner id.
func (s *Session) SignOut() {
	s.set("")
	s.logger.Info("signed out")
}

func (s *Session) set(ownerID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.owner == ownerID {
		return
	}
	s.owner = ownerID
	for ch := range s.watchers {
		publish(ch, ownerID)
	}
}

// publish replaces any value the watcher has not read yet.
func publish(ch chan string, ownerID string) {
	select {
	case <-ch:
	default:
	}
	ch <- ownerID
}

// Changes returns a channel that receives the current owner id and then
// every change. A slow reader only sees the latest value. The channel is
// closed when ctx is done.
func (s *Session) Changes(ctx context.Context) <-chan string {
	ch := make(chan string, 1)

	s.mu.Lock()
	s.watchers[ch] = struct{}{}
	publish(ch, s.owner)
	s.mu.Unlock()

	context.AfterFunc(ctx, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.watchers, ch)
		close(ch)
	})
	return ch
}

// Follow calls start for the signed-in owner and again after every change
// of owner. The context passed to start is cancelled when the owner changes
// or signs out, so watches opened with it end with the session. Follow
// blocks until ctx is done or start fails.
func (s *Session) Follow(ctx context.Context, start func(ctx context.Context, ownerID string) error) error {
	cancel := context.CancelFunc(func() {})
	defer func() { cancel() }()

	for ownerID := range s.Changes(ctx) {
		cancel()
		cancel = func() {}
		if ownerID == "" {
			continue
		}
		ownerCtx, ownerCancel := context.WithCancel(ctx)
		cancel = ownerCancel
		if err := start(ownerCtx, ownerID); err != nil {
			return fmt.Errorf("failed to start for owner %q: %w", ownerID, err)
		}
	}
	return nil
}
