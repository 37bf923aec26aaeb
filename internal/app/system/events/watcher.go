// internal/app/system/events/watcher.go
package events

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/dalemusser/attendhub/internal/domain/models"
)

// Handler reacts to one member-record change. Handlers run independently:
// one handler's error never stops delivery to the others, and delivery is
// at-least-once (the stream may replay events after a reconnect), so
// handlers must tolerate duplicates.
type Handler interface {
	Name() string
	Handle(ctx context.Context, ev Event) error
}

// Watcher tails the members change stream and dispatches each event to
// every registered handler.
type Watcher struct {
	coll     *mongo.Collection
	handlers []Handler
	log      *zap.Logger

	stopCh chan struct{}
	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// NewWatcher creates a watcher over the given members collection.
func NewWatcher(coll *mongo.Collection, logger *zap.Logger, handlers ...Handler) *Watcher {
	return &Watcher{
		coll:     coll,
		handlers: handlers,
		log:      logger,
		stopCh:   make(chan struct{}),
	}
}

// Start begins tailing the change stream in the background.
func (w *Watcher) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	w.cancel = cancel
	w.wg.Add(1)
	go w.run(ctx)
	w.log.Info("member event watcher started", zap.String("collection", w.coll.Name()))
}

// Stop terminates the stream and waits for the loop to exit.
func (w *Watcher) Stop() {
	close(w.stopCh)
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
	w.log.Info("member event watcher stopped")
}

func (w *Watcher) run(ctx context.Context) {
	defer w.wg.Done()

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 500 * time.Millisecond
	bo.MaxInterval = 30 * time.Second

	var resume bson.Raw
	for {
		select {
		case <-w.stopCh:
			return
		default:
		}

		token, err := w.watchOnce(ctx, resume)
		if token != nil {
			resume = token
			bo.Reset()
		}
		if err == nil || ctx.Err() != nil {
			return
		}

		wait := bo.NextBackOff()
		w.log.Warn("change stream interrupted, reconnecting",
			zap.Duration("backoff", wait),
			zap.Error(err))
		select {
		case <-w.stopCh:
			return
		case <-time.After(wait):
		}
	}
}

// changeDoc is the wire shape of one change-stream document.
type changeDoc struct {
	OperationType string         `bson:"operationType"`
	FullDocument  *models.Member `bson:"fullDocument"`
	BeforeChange  *models.Member `bson:"fullDocumentBeforeChange"`
	DocumentKey   struct {
		ID primitive.ObjectID `bson:"_id"`
	} `bson:"documentKey"`
}

func (w *Watcher) watchOnce(ctx context.Context, resume bson.Raw) (bson.Raw, error) {
	opts := options.ChangeStream().
		SetFullDocument(options.UpdateLookup).
		SetFullDocumentBeforeChange(options.WhenAvailable)
	if resume != nil {
		opts.SetResumeAfter(resume)
	}

	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{
			"operationType": bson.M{"$in": []string{"insert", "update", "replace", "delete"}},
		}}},
	}

	cs, err := w.coll.Watch(ctx, pipeline, opts)
	if err != nil {
		return nil, err
	}
	defer cs.Close(ctx)

	var token bson.Raw
	for cs.Next(ctx) {
		var cd changeDoc
		if err := cs.Decode(&cd); err != nil {
			w.log.Error("failed to decode change event", zap.Error(err))
			continue
		}
		w.Dispatch(ctx, toEvent(cd))
		token = cs.ResumeToken()
	}
	return token, cs.Err()
}

func toEvent(cd changeDoc) Event {
	ev := Event{DocID: cd.DocumentKey.ID, Before: cd.BeforeChange, After: cd.FullDocument}
	switch cd.OperationType {
	case "insert":
		ev.Op = OpCreate
	case "delete":
		ev.Op = OpDelete
		ev.After = nil
	default:
		ev.Op = OpUpdate
	}
	return ev
}

// Dispatch delivers one event to every handler in order, logging failures
// and carrying on so one handler cannot starve the others. Exposed so the
// bulk operations and tests can feed events without a live stream.
func (w *Watcher) Dispatch(ctx context.Context, ev Event) {
	for _, h := range w.handlers {
		if err := h.Handle(ctx, ev); err != nil {
			w.log.Error("event handler failed",
				zap.String("handler", h.Name()),
				zap.String("op", ev.Op.String()),
				zap.String("doc_id", ev.DocID.Hex()),
				zap.Error(err))
		}
	}
}
