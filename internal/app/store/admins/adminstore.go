// internal/app/store/admins/adminstore.go
//
// Admin profiles live in the shared users collection. This store covers the
// slices of it the sync engine needs: the owner pairing behind the mirror
// mapping, ministry subscriptions, and the denormalized per-admin member
// counts.
package adminstore

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
	return &Store{c: db.Collection("users")}
}

// Collection exposes the underlying collection for batched writes.
func (s *Store) Collection() *mongo.Collection { return s.c }

// Get loads one user by id.
func (s *Store) Get(ctx context.Context, id primitive.ObjectID) (models.User, error) {
	var u models.User
	err := s.c.FindOne(ctx, bson.M{"_id": id}).Decode(&u)
	return u, err
}

// ListAdmins returns every administrator profile.
func (s *Store) ListAdmins(ctx context.Context) ([]models.User, error) {
	cur, err := s.c.Find(ctx, bson.M{"role": models.RoleAdmin})
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var admins []models.User
	if err := cur.All(ctx, &admins); err != nil {
		return nil, err
	}
	return admins, nil
}

// IncrementManagedCounts applies a signed delta to every admin profile that
// manages orgID. One UpdateMany: the filter is the per-event re-query and
// each matched document gets its own atomic $inc.
func (s *Store) IncrementManagedCounts(ctx context.Context, orgID primitive.ObjectID, delta int64) (int64, error) {
	res, err := s.c.UpdateMany(ctx,
		bson.M{"role": models.RoleAdmin, "managed_org_ids": orgID},
		bson.M{
			"$inc": bson.M{"member_count": delta},
			"$set": bson.M{"updated_at": time.Now().UTC()},
		})
	if err != nil {
		return 0, err
	}
	return res.ModifiedCount, nil
}

// MirrorOrgsForMinistry resolves the mirror set for one ministry label: the
// distinct mirror orgs of admins subscribed to it. Always answered by a
// fresh query — subscriptions change independently of member writes, so a
// cached edge list would go stale.
func (s *Store) MirrorOrgsForMinistry(ctx context.Context, ministry string) ([]primitive.ObjectID, error) {
	filter := bson.M{
		"role":          models.RoleAdmin,
		"ministries":    ministry,
		"mirror_org_id": bson.M{"$ne": nil},
	}
	raw, err := s.c.Distinct(ctx, "mirror_org_id", filter)
	if err != nil {
		return nil, err
	}

	out := make([]primitive.ObjectID, 0, len(raw))
	for _, v := range raw {
		if id, ok := v.(primitive.ObjectID); ok {
			out = append(out, id)
		}
	}
	return out, nil
}

// CountOverwriteModel is the batched overwrite of one admin's counter,
// used by the recompute path.
func (s *Store) CountOverwriteModel(id primitive.ObjectID, n int64) mongo.WriteModel {
	return mongo.NewUpdateOneModel().
		SetFilter(bson.M{"_id": id}).
		SetUpdate(bson.M{"$set": bson.M{"member_count": n, "updated_at": time.Now().UTC()}})
}
