// internal/app/system/batch/batch.go
package batch

import (
	"context"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// DefaultLimit is the per-commit operation cap. The server rejects batches
// above 500 operations; 450 leaves headroom for retried writes the driver
// may add to a batch.
const DefaultLimit = 450

// Result reports how far a chunked commit got. When an error is returned
// alongside, Committed < Attempted and the committed prefix stays applied:
// rollback is not provided and retry policy belongs to the caller.
type Result struct {
	Attempted int
	Committed int
	Chunks    int
}

// Writer commits arbitrarily long lists of write models against a single
// collection by splitting them into bounded, sequentially committed chunks.
type Writer struct {
	limit int
}

// NewWriter returns a Writer with the given per-chunk limit.
// Non-positive limits fall back to DefaultLimit.
func NewWriter(limit int) *Writer {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &Writer{limit: limit}
}

// Limit returns the per-chunk operation cap.
func (w *Writer) Limit() int { return w.limit }

// Commit writes ops to coll in unordered chunks of at most Limit operations.
// Chunks are committed one after another; the first failing chunk stops the
// sequence and the error is returned together with the counts so far.
func (w *Writer) Commit(ctx context.Context, coll *mongo.Collection, ops []mongo.WriteModel) (Result, error) {
	res := Result{Attempted: len(ops)}
	if len(ops) == 0 {
		return res, nil
	}

	opts := options.BulkWrite().SetOrdered(false)
	for start := 0; start < len(ops); start += w.limit {
		end := start + w.limit
		if end > len(ops) {
			end = len(ops)
		}
		chunk := ops[start:end]

		res.Chunks++
		if _, err := coll.BulkWrite(ctx, chunk, opts); err != nil {
			return res, err
		}
		res.Committed += len(chunk)
	}
	return res, nil
}
