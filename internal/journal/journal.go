// Package journal keeps an owner's trade journal records in a document store.
//
// The Service exposes save, update, delete and subscribe operations for
// trades, accounts, strategies and tags, save and subscribe for the
// settings and profile singletons, and bulk upload of records that so far
// existed only on the device. Every operation is scoped to an owner id and
// blocks until the store acknowledges or rejects it; nothing is retried.
package journal

import (
	"time"

	"go.uber.org/zap"

	"github.com/mschirtzinger/tradejournal/internal/docstore"
	"github.com/mschirtzinger/tradejournal/internal/journal/ident"
)

// DefaultBatchSize is the number of records committed per upload batch.
const DefaultBatchSize = 400

// Service reads and writes journal records.
type Service struct {
	store     docstore.Store
	logger    *zap.Logger
	ids       *ident.Generator
	batchSize int
	now       func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// WithBatchSize sets the number of records per upload batch. Values outside
// 1..docstore.MaxBatchSize are clamped.
func WithBatchSize(n int) Option {
	return func(s *Service) { s.batchSize = n }
}

// WithIDGenerator sets the generator for new record ids.
func WithIDGenerator(g *ident.Generator) Option {
	return func(s *Service) { s.ids = g }
}

// WithClock sets the clock used for migration timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// New returns a Service backed by store.
func New(store docstore.Store, opts ...Option) *Service {
	s := &Service{
		store:     store,
		logger:    zap.NewNop(),
		ids:       &ident.Generator{},
		batchSize: DefaultBatchSize,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.batchSize < 1 {
		s.batchSize = 1
	}
	if s.batchSize > docstore.MaxBatchSize {
		s.batchSize = docstore.MaxBatchSize
	}
	return s
}

// BatchSize returns the number of records per upload batch.
func (s *Service) BatchSize() int { return s.batchSize }
