package events

import (
	"context"
	"errors"
	"testing"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"github.com/dalemusser/attendhub/internal/domain/models"
)

type recordingHandler struct {
	name string
	got  []Event
	err  error
}

func (h *recordingHandler) Name() string { return h.name }

func (h *recordingHandler) Handle(ctx context.Context, ev Event) error {
	h.got = append(h.got, ev)
	return h.err
}

func TestDispatchContinuesPastFailingHandler(t *testing.T) {
	failing := &recordingHandler{name: "failing", err: errors.New("boom")}
	healthy := &recordingHandler{name: "healthy"}

	w := NewWatcher(nil, zap.NewNop(), failing, healthy)
	ev := Event{Op: OpCreate, DocID: primitive.NewObjectID(), After: &models.Member{FullName: "X"}}
	w.Dispatch(context.Background(), ev)

	if len(failing.got) != 1 {
		t.Errorf("failing handler saw %d events, want 1", len(failing.got))
	}
	if len(healthy.got) != 1 {
		t.Errorf("healthy handler saw %d events after earlier failure, want 1", len(healthy.got))
	}
}

func TestToEvent(t *testing.T) {
	id := primitive.NewObjectID()
	after := &models.Member{FullName: "A"}
	before := &models.Member{FullName: "B"}

	cd := changeDoc{OperationType: "insert", FullDocument: after}
	cd.DocumentKey.ID = id
	ev := toEvent(cd)
	if ev.Op != OpCreate || ev.After != after || ev.DocID != id {
		t.Errorf("insert mapped to %+v", ev)
	}

	cd = changeDoc{OperationType: "delete", FullDocument: after, BeforeChange: before}
	ev = toEvent(cd)
	if ev.Op != OpDelete || ev.After != nil || ev.Before != before {
		t.Errorf("delete mapped to %+v (after image must be dropped)", ev)
	}
	if ev.Doc() != before {
		t.Error("Doc() should fall back to the before image on delete")
	}

	cd = changeDoc{OperationType: "replace", FullDocument: after, BeforeChange: before}
	ev = toEvent(cd)
	if ev.Op != OpUpdate {
		t.Errorf("replace mapped to %v, want update", ev.Op)
	}
}
