package journal

import (
	"context"

	"go.uber.org/zap"

	"github.com/mschirtzinger/tradejournal/internal/docstore"
	"github.com/mschirtzinger/tradejournal/internal/journal/paths"
)

// uploadRecords writes local records in atomic batches of s.batchSize.
//
// Every record is validated before the first batch is sent. Existing ids are
// kept and missing ones generated. Each record is stamped with the same
// migratedAt time, taken from the service clock so the returned records
// carry it too. A failed batch stops the upload; earlier batches stay
// committed and the error is a *PartialMigrationError.
func uploadRecords[T any, P record[T]](ctx context.Context, s *Service, op string, ownerID string, records []T) ([]T, error) {
	kind := P(new(T)).Kind()
	if err := checkOwner(op, kind, ownerID); err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return []T{}, nil
	}

	out := make([]T, len(records))
	copy(out, records)
	for i := range out {
		p := P(&out[i])
		if id := p.RecordID(); id != "" {
			if err := checkID(op, kind, ownerID, id); err != nil {
				return nil, err
			}
		}
		if err := p.Validate(); err != nil {
			return nil, s.fail(op, kind, ownerID, p.RecordID(), err)
		}
	}

	migratedAt := s.now().UTC()
	ids := make([]string, len(out))
	docs := make([]docstore.Doc, len(out))
	for i := range out {
		p := P(&out[i])
		if p.RecordID() == "" {
			p.SetRecordID(s.ids.New(kind))
		}
		meta := p.Meta()
		meta.OwnerID = ownerID
		meta.MigratedAt = migratedAt
		ids[i] = p.RecordID()
		docs[i] = document(ownerID, p)
	}

	logger := s.logger.With(zap.String("owner", ownerID), zap.String("kind", string(kind)))
	var committed []BatchResult
	for start, index := 0, 0; start < len(out); start, index = start+s.batchSize, index+1 {
		end := min(start+s.batchSize, len(out))

		b := s.store.Batch()
		for i := start; i < end; i++ {
			b.Set(paths.Doc(ownerID, kind, ids[i]), docs[i], docstore.MergeAll)
		}
		if err := b.Commit(ctx); err != nil {
			logger.Warn("upload batch failed",
				zap.Int("batch", index), zap.Int("count", end-start), zap.Error(err))
			return nil, &PartialMigrationError{
				Kind:         kind,
				OwnerID:      ownerID,
				Committed:    committed,
				FailedBatch:  index,
				RemainingIDs: ids[start:],
				Err:          s.fail(op, kind, ownerID, ids[start], err),
				remaining:    out[start:],
			}
		}
		committed = append(committed, BatchResult{
			Index:   index,
			Count:   end - start,
			FirstID: ids[start],
			LastID:  ids[end-1],
		})
		logger.Info("upload batch committed", zap.Int("batch", index), zap.Int("count", end-start))
	}
	return out, nil
}
