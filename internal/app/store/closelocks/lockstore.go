// internal/app/store/closelocks/lockstore.go
package lockstore

import (
	"context"
	"time"

	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/dalemusser/attendhub/internal/domain/models"
)

type Store struct {
	c *mongo.Collection
}

func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("daily_close_locks")}
}

// Exists reports whether (orgID, date) was already closed.
func (s *Store) Exists(ctx context.Context, orgID primitive.ObjectID, date string) (bool, error) {
	err := s.c.FindOne(ctx, bson.M{"org_id": orgID, "date": date}).Err()
	if err == mongo.ErrNoDocuments {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Acquire writes the lock for (orgID, date). A concurrent run may have won
// the race on the unique index; that duplicate is the lock doing its job,
// not a failure.
func (s *Store) Acquire(ctx context.Context, orgID primitive.ObjectID, date string, marked int) error {
	_, err := s.c.InsertOne(ctx, models.DailyCloseLock{
		ID:       primitive.NewObjectID(),
		OrgID:    orgID,
		Date:     date,
		ClosedAt: time.Now().UTC(),
		Marked:   marked,
	})
	if err != nil && wafflemongo.IsDup(err) {
		return nil
	}
	return err
}
