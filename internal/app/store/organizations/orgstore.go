// internal/app/store/organizations/orgstore.go
package orgstore

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/dalemusser/attendhub/internal/domain/models"
)

type Store struct {
	c *mongo.Collection
}

func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("organizations")}
}

// Collection exposes the underlying collection for batched writes.
func (s *Store) Collection() *mongo.Collection { return s.c }

// Get loads one organization by id.
func (s *Store) Get(ctx context.Context, id primitive.ObjectID) (models.Organization, error) {
	var org models.Organization
	err := s.c.FindOne(ctx, bson.M{"_id": id}).Decode(&org)
	return org, err
}

// ListAll returns every organization. The sync engine treats each one as an
// independent tenant; there is no paging because the job sweeps all of them.
func (s *Store) ListAll(ctx context.Context) ([]models.Organization, error) {
	cur, err := s.c.Find(ctx, bson.M{})
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var orgs []models.Organization
	if err := cur.All(ctx, &orgs); err != nil {
		return nil, err
	}
	return orgs, nil
}

// IncrementMemberCount applies a signed delta to the denormalized counter
// with a single atomic $inc. Never read-modify-write.
func (s *Store) IncrementMemberCount(ctx context.Context, id primitive.ObjectID, delta int64) error {
	_, err := s.c.UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{
			"$inc": bson.M{"member_count": delta},
			"$set": bson.M{"updated_at": time.Now().UTC()},
		})
	return err
}

// SetMemberCount overwrites the counter with an exact value. Used by the
// recompute path to correct drift.
func (s *Store) SetMemberCount(ctx context.Context, id primitive.ObjectID, n int64) error {
	_, err := s.c.UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{"$set": bson.M{"member_count": n, "updated_at": time.Now().UTC()}})
	return err
}

// CountOverwriteModel is the batched form of SetMemberCount.
func (s *Store) CountOverwriteModel(id primitive.ObjectID, n int64) mongo.WriteModel {
	return mongo.NewUpdateOneModel().
		SetFilter(bson.M{"_id": id}).
		SetUpdate(bson.M{"$set": bson.M{"member_count": n, "updated_at": time.Now().UTC()}})
}
