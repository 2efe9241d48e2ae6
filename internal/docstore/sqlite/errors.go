package sqlite

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"net"

	"github.com/ncruces/go-sqlite3"

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

	var netErr net.Error
	code := docstore.CodeInternal
	switch {
	case errors.Is(err, sqlite3.BUSY), errors.Is(err, sqlite3.LOCKED):
		code = docstore.CodeUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		code = docstore.CodeUnavailable
	case errors.Is(err, context.Canceled):
		code = docstore.CodeAborted
	case errors.Is(err, sql.ErrConnDone), errors.Is(err, driver.ErrBadConn):
		code = docstore.CodeUnavailable
	case errors.As(err, &netErr):
		code = docstore.CodeUnavailable
	}
	return docstore.NewError(op, path, code, err)
}
