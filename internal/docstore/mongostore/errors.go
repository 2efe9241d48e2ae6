package mongostore

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/mongo"

	"github.com/mschirtzinger/tradejournal/internal/docstore"
)

// classify maps driver errors onto docstore codes. Errors that are already
// classified pass through unchanged.
func classify(op, path string, err error) error {
	if err == nil {
		return nil
	}
	var de *docstore.Error
	if errors.As(err, &de) {
		return err
	}

	code := docstore.CodeInternal
	var cmdErr mongo.CommandError
	switch {
	case errors.Is(err, mongo.ErrNoDocuments):
		code = docstore.CodeNotFound
	case errors.Is(err, mongo.ErrClientDisconnected):
		code = docstore.CodeClosed
	case mongo.IsNetworkError(err), mongo.IsTimeout(err):
		code = docstore.CodeUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		code = docstore.CodeUnavailable
	case errors.Is(err, context.Canceled):
		code = docstore.CodeAborted
	case errors.As(err, &cmdErr) && cmdErr.HasErrorLabel("TransientTransactionError"):
		code = docstore.CodeAborted
	}
	return docstore.NewError(op, path, code, err)
}
