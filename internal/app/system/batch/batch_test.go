package batch

import (
	"testing"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/dalemusser/attendhub/internal/testutil"
)

func TestCommitEmpty(t *testing.T) {
	w := NewWriter(10)

	res, err := w.Commit(testutil.TestContext(t), nil, nil)
	if err != nil {
		t.Fatalf("Commit(empty) error: %v", err)
	}
	if res.Attempted != 0 || res.Committed != 0 || res.Chunks != 0 {
		t.Errorf("Commit(empty) = %+v, want zeros", res)
	}
}

func TestNewWriterFallback(t *testing.T) {
	if got := NewWriter(0).Limit(); got != DefaultLimit {
		t.Errorf("NewWriter(0).Limit() = %d, want %d", got, DefaultLimit)
	}
	if got := NewWriter(-5).Limit(); got != DefaultLimit {
		t.Errorf("NewWriter(-5).Limit() = %d, want %d", got, DefaultLimit)
	}
	if got := NewWriter(7).Limit(); got != 7 {
		t.Errorf("NewWriter(7).Limit() = %d, want 7", got)
	}
}

func TestCommitChunksAtLimit(t *testing.T) {
	ctx := testutil.TestContext(t)
	db := testutil.SetupTestDB(t)
	coll := db.Collection("batch_test")

	const limit = 10
	w := NewWriter(limit)

	// One over the limit forces a second chunk.
	ops := make([]mongo.WriteModel, 0, limit+1)
	for i := 0; i < limit+1; i++ {
		ops = append(ops, mongo.NewInsertOneModel().SetDocument(bson.M{"n": i}))
	}

	res, err := w.Commit(ctx, coll, ops)
	if err != nil {
		t.Fatalf("Commit error: %v", err)
	}
	if res.Attempted != limit+1 || res.Committed != limit+1 {
		t.Errorf("result = %+v, want attempted=committed=%d", res, limit+1)
	}
	if res.Chunks != 2 {
		t.Errorf("chunks = %d, want 2", res.Chunks)
	}

	n, err := coll.CountDocuments(ctx, bson.M{})
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != limit+1 {
		t.Errorf("documents written = %d, want %d", n, limit+1)
	}
}

func TestCommitExactMultiple(t *testing.T) {
	ctx := testutil.TestContext(t)
	db := testutil.SetupTestDB(t)
	coll := db.Collection("batch_test")

	w := NewWriter(5)
	ops := make([]mongo.WriteModel, 0, 10)
	for i := 0; i < 10; i++ {
		ops = append(ops, mongo.NewInsertOneModel().SetDocument(bson.M{"n": i}))
	}

	res, err := w.Commit(ctx, coll, ops)
	if err != nil {
		t.Fatalf("Commit error: %v", err)
	}
	if res.Chunks != 2 {
		t.Errorf("chunks = %d, want 2 (no empty trailing chunk)", res.Chunks)
	}
	if res.Committed != 10 {
		t.Errorf("committed = %d, want 10", res.Committed)
	}
}
