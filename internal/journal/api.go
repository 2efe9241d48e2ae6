package journal

import (
	"context"

	"go.uber.org/zap"

	"github.com/mschirtzinger/tradejournal/internal/docstore"
	"github.com/mschirtzinger/tradejournal/internal/journal/paths"
	"github.com/mschirtzinger/tradejournal/internal/journal/schema"
)

// ===== Trades =====

// SaveTrade creates or merges a trade and returns it with its final id.
// Fields left at their zero value are not written, so values stored by
// earlier saves are kept.
func (s *Service) SaveTrade(ctx context.Context, ownerID string, t schema.Trade) (schema.Trade, error) {
	return saveRecord(ctx, s, "saveTrade", ownerID, t)
}

// UpdateTrade overwrites the given fields of an existing trade.
func (s *Service) UpdateTrade(ctx context.Context, ownerID, id string, fields map[string]any) error {
	return updateRecord(ctx, s, "updateTrade", schema.KindTrade, ownerID, id, fields)
}

// DeleteTrade removes a trade. Deleting a missing trade succeeds.
func (s *Service) DeleteTrade(ctx context.Context, ownerID, id string) error {
	return deleteRecord(ctx, s, "deleteTrade", schema.KindTrade, ownerID, id)
}

// SubscribeToTrades delivers the owner's trades, newest createdAt first, on
// every change.
func (s *Service) SubscribeToTrades(ctx context.Context, ownerID string, fn func(Snapshot[schema.Trade])) (*docstore.Subscription, error) {
	return subscribeRecords[schema.Trade](ctx, s, "subscribeToTrades", ownerID, fn)
}

// UploadLocalTrades uploads trades recorded while offline.
func (s *Service) UploadLocalTrades(ctx context.Context, ownerID string, trades []schema.Trade) ([]schema.Trade, error) {
	return uploadRecords(ctx, s, "uploadLocalTrades", ownerID, trades)
}

// ===== Accounts =====

// SaveAccount merge-writes an account and returns it with its final id.
func (s *Service) SaveAccount(ctx context.Context, ownerID string, a schema.Account) (schema.Account, error) {
	return saveRecord(ctx, s, "saveAccount", ownerID, a)
}

// UpdateAccount changes only the given fields of an existing account.
func (s *Service) UpdateAccount(ctx context.Context, ownerID, id string, fields map[string]any) error {
	return updateRecord(ctx, s, "updateAccount", schema.KindAccount, ownerID, id, fields)
}

// DeleteAccount removes an account. Deleting a missing id succeeds.
func (s *Service) DeleteAccount(ctx context.Context, ownerID, id string) error {
	return deleteRecord(ctx, s, "deleteAccount", schema.KindAccount, ownerID, id)
}

// SubscribeToAccounts delivers all of the owner's accounts on every change.
func (s *Service) SubscribeToAccounts(ctx context.Context, ownerID string, fn func(Snapshot[schema.Account])) (*docstore.Subscription, error) {
	return subscribeRecords[schema.Account](ctx, s, "subscribeToAccounts", ownerID, fn)
}

// UploadLocalAccounts uploads accounts kept on the device, in batches.
func (s *Service) UploadLocalAccounts(ctx context.Context, ownerID string, accounts []schema.Account) ([]schema.Account, error) {
	return uploadRecords(ctx, s, "uploadLocalAccounts", ownerID, accounts)
}

// ===== Strategies =====

// SaveStrategy merge-writes a strategy and returns it with its final id.
func (s *Service) SaveStrategy(ctx context.Context, ownerID string, st schema.Strategy) (schema.Strategy, error) {
	return saveRecord(ctx, s, "saveStrategy", ownerID, st)
}

// UpdateStrategy changes only the given fields of an existing strategy.
func (s *Service) UpdateStrategy(ctx context.Context, ownerID, id string, fields map[string]any) error {
	return updateRecord(ctx, s, "updateStrategy", schema.KindStrategy, ownerID, id, fields)
}

// DeleteStrategy removes a strategy. Deleting a missing id succeeds.
func (s *Service) DeleteStrategy(ctx context.Context, ownerID, id string) error {
	return deleteRecord(ctx, s, "deleteStrategy", schema.KindStrategy, ownerID, id)
}

// SubscribeToStrategies delivers all of the owner's strategies on every change.
func (s *Service) SubscribeToStrategies(ctx context.Context, ownerID string, fn func(Snapshot[schema.Strategy])) (*docstore.Subscription, error) {
	return subscribeRecords[schema.Strategy](ctx, s, "subscribeToStrategies", ownerID, fn)
}

// UploadLocalStrategies uploads strategies kept on the device, in batches.
func (s *Service) UploadLocalStrategies(ctx context.Context, ownerID string, strategies []schema.Strategy) ([]schema.Strategy, error) {
	return uploadRecords(ctx, s, "uploadLocalStrategies", ownerID, strategies)
}

// ===== Tags =====

// SaveTag merge-writes a tag and returns it with its final id.
func (s *Service) SaveTag(ctx context.Context, ownerID string, t schema.Tag) (schema.Tag, error) {
	return saveRecord(ctx, s, "saveTag", ownerID, t)
}

// UpdateTag changes only the given fields of an existing tag.
func (s *Service) UpdateTag(ctx context.Context, ownerID, id string, fields map[string]any) error {
	return updateRecord(ctx, s, "updateTag", schema.KindTag, ownerID, id, fields)
}

// DeleteTag removes a tag. Trades that reference it are left unchanged.
func (s *Service) DeleteTag(ctx context.Context, ownerID, id string) error {
	return deleteRecord(ctx, s, "deleteTag", schema.KindTag, ownerID, id)
}

// SubscribeToTags delivers all of the owner's tags on every change.
func (s *Service) SubscribeToTags(ctx context.Context, ownerID string, fn func(Snapshot[schema.Tag])) (*docstore.Subscription, error) {
	return subscribeRecords[schema.Tag](ctx, s, "subscribeToTags", ownerID, fn)
}

// UploadLocalTags uploads tags kept on the device, in batches.
func (s *Service) UploadLocalTags(ctx context.Context, ownerID string, tags []schema.Tag) ([]schema.Tag, error) {
	return uploadRecords(ctx, s, "uploadLocalTags", ownerID, tags)
}

// ===== Singletons =====

// SaveSettings merges settings into the owner's settings document,
// creating it if needed.
func (s *Service) SaveSettings(ctx context.Context, ownerID string, settings schema.Settings) error {
	return saveSingleton(ctx, s, "saveSettings", ownerID, &settings)
}

// SubscribeToSettings delivers the owner's settings on every change.
func (s *Service) SubscribeToSettings(ctx context.Context, ownerID string, fn func(ValueSnapshot[schema.Settings])) (*docstore.Subscription, error) {
	return subscribeSingleton(ctx, s, "subscribeToSettings", ownerID, fn)
}

// SaveProfile merges profile into the owner's profile document, creating it
// if needed.
func (s *Service) SaveProfile(ctx context.Context, ownerID string, profile schema.Profile) error {
	return saveSingleton(ctx, s, "saveProfile", ownerID, &profile)
}

// SubscribeToProfile delivers the owner's profile on every change.
func (s *Service) SubscribeToProfile(ctx context.Context, ownerID string, fn func(ValueSnapshot[schema.Profile])) (*docstore.Subscription, error) {
	return subscribeSingleton(ctx, s, "subscribeToProfile", ownerID, fn)
}

// singleton is the pointer type of a settings or profile struct.
type singleton[T any] interface {
	*T
	schema.Record
	Meta() *schema.Bookkeeping
}

func saveSingleton(ctx context.Context, s *Service, op string, ownerID string, rec interface {
	schema.Record
	Meta() *schema.Bookkeeping
}) error {
	kind := rec.Kind()
	if err := checkOwner(op, kind, ownerID); err != nil {
		return err
	}
	if err := rec.Validate(); err != nil {
		return s.fail(op, kind, ownerID, paths.SingletonID, err)
	}
	rec.Meta().OwnerID = ownerID
	if err := s.store.Set(ctx, paths.Singleton(ownerID, kind), document(ownerID, rec), docstore.MergeAll); err != nil {
		return s.fail(op, kind, ownerID, paths.SingletonID, err)
	}
	s.logger.Debug("saved record", zap.String("owner", ownerID), zap.String("kind", string(kind)))
	return nil
}

func subscribeSingleton[T any, P singleton[T]](ctx context.Context, s *Service, op string, ownerID string, fn func(ValueSnapshot[T])) (*docstore.Subscription, error) {
	kind := P(new(T)).Kind()
	if err := checkOwner(op, kind, ownerID); err != nil {
		return nil, err
	}
	sub, err := s.store.WatchDoc(ctx, paths.Singleton(ownerID, kind), func(ds docstore.DocSnapshot) {
		snap := ValueSnapshot[T]{
			HasPendingWrites: ds.Metadata.HasPendingWrites,
			FromCache:        ds.Metadata.FromCache,
		}
		if ds.Doc != nil {
			var v T
			if err := schema.Decode(ds.Doc.Data, P(&v)); err != nil {
				s.logger.Warn("skipping undecodable document", zap.String("path", ds.Doc.Path), zap.Error(err))
			} else {
				snap.Value = &v
			}
		}
		fn(snap)
	})
	if err != nil {
		return nil, s.fail(op, kind, ownerID, paths.SingletonID, err)
	}
	return sub, nil
}
