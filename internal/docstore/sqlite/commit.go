package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/mschirtzinger/tradejournal/internal/docstore"
)

// commit applies writes in one transaction and notifies watchers of every
// touched collection once the transaction has committed.
func (s *Store) commit(ctx context.Context, op string, writes []docstore.Write) error {
	if s.isClosed() {
		return docstore.NewError(op, "", docstore.CodeClosed, nil)
	}

	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return classify(op, "", fmt.Errorf("failed to begin transaction: %w", err))
	}
	defer tx.Rollback()

	now := s.config.Now().UTC()
	stamp := now.Format(timeLayout)
	touched := make(map[string]struct{}, 1)

	for _, w := range writes {
		existing, found, err := loadData(ctx, tx, w.Path)
		if err != nil {
			return classify(op, w.Path, err)
		}

		next, exists, err := docstore.ApplyWrite(existing, found, w, now)
		if err != nil {
			return err
		}

		switch {
		case exists:
			data, err := docstore.EncodeJSON(next)
			if err != nil {
				var de *docstore.Error
				if errors.As(err, &de) {
					de.Op, de.Path = op, w.Path
					return de
				}
				return docstore.NewError(op, w.Path, docstore.CodeInvalidArgument, err)
			}
			if err := upsert(ctx, tx, w.Path, string(data), stamp); err != nil {
				return classify(op, w.Path, err)
			}
		case found:
			if _, err := tx.ExecContext(ctx, `DELETE FROM documents WHERE path = ?`, w.Path); err != nil {
				return classify(op, w.Path, fmt.Errorf("failed to delete document: %w", err))
			}
		}
		touched[docstore.Parent(w.Path)] = struct{}{}
	}

	if err := tx.Commit(); err != nil {
		return classify(op, "", fmt.Errorf("failed to commit transaction: %w", err))
	}

	s.hub.notify(touched)
	return nil
}

func loadData(ctx context.Context, tx *sql.Tx, path string) (docstore.Doc, bool, error) {
	var data string
	err := tx.QueryRowContext(ctx, `SELECT data FROM documents WHERE path = ?`, path).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read document: %w", err)
	}
	doc, err := docstore.DecodeJSON([]byte(data))
	if err != nil {
		return nil, false, err
	}
	return doc, true, nil
}

func upsert(ctx context.Context, tx *sql.Tx, path, data, stamp string) error {
	query := `
	INSERT INTO documents (path, collection, doc_id, data, create_time, update_time)
	VALUES (?, ?, ?, ?, ?, ?)
	ON CONFLICT(path) DO UPDATE SET
		data = excluded.data,
		update_time = excluded.update_time
	`

	_, err := tx.ExecContext(ctx, query,
		path,
		docstore.Parent(path),
		docstore.Base(path),
		data,
		stamp,
		stamp,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert document: %w", err)
	}
	return nil
}
