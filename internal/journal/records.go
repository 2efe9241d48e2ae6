package journal

import (
	"context"

	"go.uber.org/zap"

	"github.com/mschirtzinger/tradejournal/internal/docstore"
	"github.com/mschirtzinger/tradejournal/internal/journal/paths"
	"github.com/mschirtzinger/tradejournal/internal/journal/payload"
	"github.com/mschirtzinger/tradejournal/internal/journal/schema"
)

// record is the pointer type of a collection record struct.
type record[T any] interface {
	*T
	schema.Record
	RecordID() string
	SetRecordID(id string)
	Meta() *schema.Bookkeeping
}

// Snapshot is the state of a watched collection.
type Snapshot[T any] struct {
	Records []T
	// HasPendingWrites is true while the snapshot includes local writes the
	// store has not acknowledged.
	HasPendingWrites bool
	// FromCache is true when the snapshot came from the local cache rather
	// than a confirmed store round trip.
	FromCache bool
}

// ValueSnapshot is the state of a watched singleton. Value is nil when the
// document does not exist.
type ValueSnapshot[T any] struct {
	Value            *T
	HasPendingWrites bool
	FromCache        bool
}

// document converts a record to its normalized document form.
func document(ownerID string, rec schema.Record) docstore.Doc {
	doc := payload.Normalize(rec.ToDoc(), ownerID, payload.Options{
		StampCreatedAt: rec.Kind() == schema.KindTrade,
	})
	doc[schema.FieldUpdatedAt] = docstore.ServerTimestamp
	return doc
}

func saveRecord[T any, P record[T]](ctx context.Context, s *Service, op string, ownerID string, rec T) (T, error) {
	p := P(&rec)
	kind := p.Kind()
	if err := checkOwner(op, kind, ownerID); err != nil {
		return rec, err
	}
	if err := p.Validate(); err != nil {
		return rec, s.fail(op, kind, ownerID, p.RecordID(), err)
	}
	if p.RecordID() == "" {
		p.SetRecordID(s.ids.New(kind))
	}
	id := p.RecordID()
	if err := checkID(op, kind, ownerID, id); err != nil {
		return rec, err
	}
	p.Meta().OwnerID = ownerID

	path := paths.Doc(ownerID, kind, id)
	if err := s.store.Set(ctx, path, document(ownerID, p), docstore.MergeAll); err != nil {
		return rec, s.fail(op, kind, ownerID, id, err)
	}
	s.logger.Debug("saved record",
		zap.String("owner", ownerID), zap.String("kind", string(kind)), zap.String("id", id))
	return rec, nil
}

func updateRecord(ctx context.Context, s *Service, op string, kind schema.Kind, ownerID, id string, fields map[string]any) error {
	if err := checkOwner(op, kind, ownerID); err != nil {
		return err
	}
	if err := checkID(op, kind, ownerID, id); err != nil {
		return err
	}
	patch, err := schema.Patch(kind, payload.Strip(fields))
	if err != nil {
		return s.fail(op, kind, ownerID, id, err)
	}
	doc := payload.Normalize(patch, ownerID, payload.Options{})
	doc[schema.FieldUpdatedAt] = docstore.ServerTimestamp

	if err := s.store.Update(ctx, paths.Doc(ownerID, kind, id), doc); err != nil {
		return s.fail(op, kind, ownerID, id, err)
	}
	s.logger.Debug("updated record",
		zap.String("owner", ownerID), zap.String("kind", string(kind)), zap.String("id", id),
		zap.Int("count", len(patch)))
	return nil
}

func deleteRecord(ctx context.Context, s *Service, op string, kind schema.Kind, ownerID, id string) error {
	if err := checkOwner(op, kind, ownerID); err != nil {
		return err
	}
	if err := checkID(op, kind, ownerID, id); err != nil {
		return err
	}
	if err := s.store.Delete(ctx, paths.Doc(ownerID, kind, id)); err != nil {
		return s.fail(op, kind, ownerID, id, err)
	}
	s.logger.Debug("deleted record",
		zap.String("owner", ownerID), zap.String("kind", string(kind)), zap.String("id", id))
	return nil
}

// decodeRecord builds a record from a stored document. Documents that do
// not decode are logged and skipped.
func decodeRecord[T any, P record[T]](s *Service, doc docstore.Document) (T, bool) {
	var rec T
	p := P(&rec)
	if err := schema.Decode(doc.Data, p); err != nil {
		s.logger.Warn("skipping undecodable document", zap.String("path", doc.Path), zap.Error(err))
		return rec, false
	}
	p.SetRecordID(doc.ID)
	return rec, true
}

func subscribeRecords[T any, P record[T]](ctx context.Context, s *Service, op string, ownerID string, fn func(Snapshot[T])) (*docstore.Subscription, error) {
	kind := P(new(T)).Kind()
	if err := checkOwner(op, kind, ownerID); err != nil {
		return nil, err
	}
	q := docstore.Query{Collection: paths.Collection(ownerID, kind)}
	if kind == schema.KindTrade {
		q.OrderBy = schema.FieldCreatedAt
		q.Descending = true
	}
	sub, err := s.store.WatchQuery(ctx, q, func(qs docstore.QuerySnapshot) {
		records := make([]T, 0, len(qs.Docs))
		for _, doc := range qs.Docs {
			if rec, ok := decodeRecord[T, P](s, doc); ok {
				records = append(records, rec)
			}
		}
		fn(Snapshot[T]{
			Records:          records,
			HasPendingWrites: qs.Metadata.HasPendingWrites,
			FromCache:        qs.Metadata.FromCache,
		})
	})
	if err != nil {
		return nil, s.fail(op, kind, ownerID, "", err)
	}
	return sub, nil
}
