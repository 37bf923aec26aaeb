// internal/app/store/members/memberstore.go
package memberstore

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/dalemusser/attendhub/internal/domain/models"
)

// activeFilter matches countable records: is_active absent or not false.
func activeFilter(orgID primitive.ObjectID) bson.M {
	return bson.M{"org_id": orgID, "is_active": bson.M{"$ne": false}}
}

type Store struct {
	c *mongo.Collection
}

func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("members")}
}

// Collection exposes the underlying collection for batched writes and the
// change-stream watcher.
func (s *Store) Collection() *mongo.Collection { return s.c }

// Get loads the record for (orgID, memberID) — the logical identity shared
// between a source copy and its mirrors.
func (s *Store) Get(ctx context.Context, orgID, memberID primitive.ObjectID) (models.Member, error) {
	var m models.Member
	err := s.c.FindOne(ctx, bson.M{"org_id": orgID, "member_id": memberID}).Decode(&m)
	return m, err
}

// CountActive returns the exact number of countable records in one org.
// This is the ground truth the recompute path writes back into counters.
func (s *Store) CountActive(ctx context.Context, orgID primitive.ObjectID) (int64, error) {
	return s.c.CountDocuments(ctx, activeFilter(orgID))
}

// ListActiveUnfrozen returns the members the daily close job considers.
func (s *Store) ListActiveUnfrozen(ctx context.Context, orgID primitive.ObjectID) ([]models.Member, error) {
	f := activeFilter(orgID)
	f["is_frozen"] = bson.M{"$ne": true}
	return s.list(ctx, f)
}

// ListActiveWithMinistry returns active records carrying any ministry label,
// i.e. everything that qualifies for mirroring out of orgID.
func (s *Store) ListActiveWithMinistry(ctx context.Context, orgID primitive.ObjectID) ([]models.Member, error) {
	f := activeFilter(orgID)
	f["ministry"] = bson.M{"$nin": bson.A{nil, ""}}
	return s.list(ctx, f)
}

// ListActiveByMinistry returns active records in orgID with one specific
// ministry label.
func (s *Store) ListActiveByMinistry(ctx context.Context, orgID primitive.ObjectID, ministry string) ([]models.Member, error) {
	f := activeFilter(orgID)
	f["ministry"] = ministry
	return s.list(ctx, f)
}

func (s *Store) list(ctx context.Context, filter bson.M) ([]models.Member, error) {
	cur, err := s.c.Find(ctx, filter)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []models.Member
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// DeleteInactive removes every record explicitly marked inactive, across
// all orgs. Irreversible; only the purge maintenance operation calls it.
func (s *Store) DeleteInactive(ctx context.Context) (int64, error) {
	res, err := s.c.DeleteMany(ctx, bson.M{"is_active": false})
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}

// MirrorUpsertModel builds the merge-upsert that lands a transformed copy
// of src in mirrorOrg, keyed by the shared member_id. The group reference
// only means something inside the source org's structure, so it is cleared;
// is_active is cleared too because only countable records are mirrored and
// absent means active. tag carries the provenance fields.
func (s *Store) MirrorUpsertModel(mirrorOrg primitive.ObjectID, src models.Member, tag bson.M, now time.Time) mongo.WriteModel {
	set := bson.M{
		"full_name":    src.FullName,
		"full_name_ci": src.FullNameCI,
		"phone":        src.Phone,
		"email":        src.Email,
		"ministry":     src.Ministry,
		"is_frozen":    src.IsFrozen,
		"updated_at":   now,
	}
	for k, v := range tag {
		set[k] = v
	}
	return mongo.NewUpdateOneModel().
		SetFilter(bson.M{"org_id": mirrorOrg, "member_id": src.MemberID}).
		SetUpdate(bson.M{
			"$set":         set,
			"$unset":       bson.M{"group_id": "", "is_active": ""},
			"$setOnInsert": bson.M{"created_at": now},
		}).
		SetUpsert(true)
}

// MirrorDeleteModel removes the copy of memberID from mirrorOrg.
func (s *Store) MirrorDeleteModel(mirrorOrg, memberID primitive.ObjectID) mongo.WriteModel {
	return mongo.NewDeleteOneModel().
		SetFilter(bson.M{"org_id": mirrorOrg, "member_id": memberID})
}

// ApplyReverseFields writes the allow-listed field set back onto the source
// org's record. No upsert: reverse sync updates what exists and never
// creates or deletes on the source side. Returns whether a record matched.
func (s *Store) ApplyReverseFields(ctx context.Context, sourceOrg, memberID primitive.ObjectID, fields bson.M) (bool, error) {
	res, err := s.c.UpdateOne(ctx,
		bson.M{"org_id": sourceOrg, "member_id": memberID},
		bson.M{"$set": fields})
	if err != nil {
		return false, err
	}
	return res.MatchedCount > 0, nil
}
