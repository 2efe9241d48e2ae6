package docstore

import (
	"context"
	"fmt"
)

// WriteOp is the kind of a buffered write.
type WriteOp int

const (
	OpSet WriteOp = iota + 1
	OpUpdate
	OpDelete
)

func (op WriteOp) String() string {
	switch op {
	case OpSet:
		return "set"
	case OpUpdate:
		return "update"
	case OpDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// Write is one buffered write.
type Write struct {
	Op    WriteOp
	Path  string
	Data  Doc
	Merge bool
}

// CommitFunc applies writes atomically.
type CommitFunc func(ctx context.Context, writes []Write) error

// Batch buffers writes and applies them atomically on Commit: either every
// write is applied or none is.
type Batch struct {
	writes []Write
	commit CommitFunc
}

// NewBatch returns an empty batch that commits through fn.
func NewBatch(fn CommitFunc) *Batch {
	return &Batch{commit: fn}
}

// Set adds a set write.
func (b *Batch) Set(path string, data Doc, opts ...SetOption) *Batch {
	return b.Add(Write{Op: OpSet, Path: path, Data: data, Merge: IsMerge(opts...)})
}

// Update adds an update write.
func (b *Batch) Update(path string, fields Doc) *Batch {
	return b.Add(Write{Op: OpUpdate, Path: path, Data: fields})
}

// Delete adds a delete write.
func (b *Batch) Delete(path string) *Batch {
	return b.Add(Write{Op: OpDelete, Path: path})
}

// Add appends a write.
func (b *Batch) Add(w Write) *Batch {
	b.writes = append(b.writes, w)
	return b
}

// Len returns the number of buffered writes.
func (b *Batch) Len() int { return len(b.writes) }

// Writes returns the buffered writes.
func (b *Batch) Writes() []Write { return b.writes }

// Commit applies the buffered writes. An empty batch commits nothing.
func (b *Batch) Commit(ctx context.Context) error {
	if len(b.writes) == 0 {
		return nil
	}
	if len(b.writes) > MaxBatchSize {
		return NewError("commit", "", CodeInvalidArgument,
			fmt.Errorf("batch has %d writes, limit is %d", len(b.writes), MaxBatchSize))
	}
	for _, w := range b.writes {
		if err := CheckDocPath("commit", w.Path); err != nil {
			return err
		}
	}
	return b.commit(ctx, b.writes)
}
