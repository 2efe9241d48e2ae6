package journal

import (
	"errors"
	"fmt"
	"strings"

	"github.com/mschirtzinger/tradejournal/internal/docstore"
	"github.com/mschirtzinger/tradejournal/internal/journal/schema"
)

// Error classes. Every *Error returned by a Service matches exactly one of
// them with errors.Is. A *PartialMigrationError matches ErrPartialMigration
// and also the class of the failed batch.
var (
	// ErrValidation means the payload was rejected before any store call.
	ErrValidation = errors.New("invalid record")

	// ErrNotFound means the update target does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrTransient means the store was unavailable or aborted the
	// operation. The call may be repeated.
	ErrTransient = errors.New("store temporarily unavailable")

	// ErrUnauthenticated means the call carried no owner id.
	ErrUnauthenticated = errors.New("no signed-in owner")

	// ErrPartialMigration means an upload stopped after some batches were
	// committed. The error is a *PartialMigrationError.
	ErrPartialMigration = errors.New("migration partially committed")

	// ErrStore covers every other store failure.
	ErrStore = errors.New("store failure")
)

var (
	errMissingID = errors.New("record id is required")
	errBadID     = errors.New("must be a single path segment")
)

// Error annotates a failed operation with the entity kind and owner.
type Error struct {
	Op      string
	Kind    schema.Kind
	OwnerID string
	ID      string
	Class   error // one of the Err* classes
	Err     error // underlying cause, may be nil
}

func (e *Error) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "journal: %s %s owner=%q", e.Op, e.Kind, e.OwnerID)
	if e.ID != "" {
		fmt.Fprintf(&b, " id=%q", e.ID)
	}
	b.WriteString(": ")
	b.WriteString(e.Class.Error())
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Class}
	}
	return []error{e.Class, e.Err}
}

// classOf maps an error from the store or the schema to an error class.
func classOf(err error) error {
	var verr *schema.ValidationError
	if errors.As(err, &verr) {
		return ErrValidation
	}
	switch docstore.CodeOf(err) {
	case docstore.CodeNotFound:
		return ErrNotFound
	case docstore.CodeInvalidArgument:
		return ErrValidation
	case docstore.CodeUnavailable, docstore.CodeAborted:
		return ErrTransient
	}
	return ErrStore
}

func (s *Service) fail(op string, kind schema.Kind, ownerID, id string, err error) error {
	return &Error{Op: op, Kind: kind, OwnerID: ownerID, ID: id, Class: classOf(err), Err: err}
}

func checkOwner(op string, kind schema.Kind, ownerID string) error {
	if ownerID == "" {
		return &Error{Op: op, Kind: kind, Class: ErrUnauthenticated}
	}
	if !validSegment(ownerID) {
		return &Error{Op: op, Kind: kind, OwnerID: ownerID, Class: ErrValidation,
			Err: fmt.Errorf("owner id %w", errBadID)}
	}
	return nil
}

// checkID rejects ids that would not name a document directly inside the
// kind's collection.
func checkID(op string, kind schema.Kind, ownerID, id string) error {
	if id == "" {
		return &Error{Op: op, Kind: kind, OwnerID: ownerID, Class: ErrValidation, Err: errMissingID}
	}
	if !validSegment(id) {
		return &Error{Op: op, Kind: kind, OwnerID: ownerID, ID: id, Class: ErrValidation,
			Err: fmt.Errorf("record id %w", errBadID)}
	}
	return nil
}

func validSegment(s string) bool {
	return s != "." && s != ".." && !strings.Contains(s, "/")
}

// BatchResult describes one committed upload batch.
type BatchResult struct {
	Index   int
	Count   int
	FirstID string
	LastID  string
}

// PartialMigrationError reports an upload that stopped at a failed batch.
// Batches before it stay committed; Unmigrated returns the records that
// still need uploading.
type PartialMigrationError struct {
	Kind         schema.Kind
	OwnerID      string
	Committed    []BatchResult
	FailedBatch  int
	RemainingIDs []string
	Err          error

	remaining any // []T of the upload
}

func (e *PartialMigrationError) Error() string {
	return fmt.Sprintf("journal: upload %s owner=%q: batch %d failed after %d committed, %d records remaining: %v",
		e.Kind, e.OwnerID, e.FailedBatch, len(e.Committed), len(e.RemainingIDs), e.Err)
}

func (e *PartialMigrationError) Is(target error) bool { return target == ErrPartialMigration }

func (e *PartialMigrationError) Unwrap() error { return e.Err }

// Unmigrated returns the records a failed upload did not commit, with the
// ids and timestamps they were assigned, so the caller can upload them
// again. It returns nil if err is not a *PartialMigrationError for []T.
func Unmigrated[T any](err error) []T {
	var pme *PartialMigrationError
	if !errors.As(err, &pme) {
		return nil
	}
	records, _ := pme.remaining.([]T)
	return records
}
