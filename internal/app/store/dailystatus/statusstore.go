// internal/app/store/dailystatus/statusstore.go
package statusstore

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
	return &Store{c: db.Collection("daily_statuses")}
}

// Collection exposes the underlying collection for batched writes.
func (s *Store) Collection() *mongo.Collection { return s.c }

// Get loads the record for one (org, member, date).
func (s *Store) Get(ctx context.Context, orgID, memberID primitive.ObjectID, date string) (models.DailyStatus, error) {
	var ds models.DailyStatus
	err := s.c.FindOne(ctx, bson.M{"org_id": orgID, "member_id": memberID, "date": date}).Decode(&ds)
	return ds, err
}

// StatusesForDate returns member_id → status for everything already
// recorded on one org-local date.
func (s *Store) StatusesForDate(ctx context.Context, orgID primitive.ObjectID, date string) (map[primitive.ObjectID]string, error) {
	cur, err := s.c.Find(ctx, bson.M{"org_id": orgID, "date": date})
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	out := make(map[primitive.ObjectID]string)
	for cur.Next(ctx) {
		var row struct {
			MemberID primitive.ObjectID `bson:"member_id"`
			Status   string             `bson:"status"`
		}
		if err := cur.Decode(&row); err != nil {
			return nil, err
		}
		out[row.MemberID] = row.Status
	}
	return out, cur.Err()
}

// MissedUpsertModel builds the merge-write that closes one member's date as
// missed. Keyed by (org, member, date), so re-running it after a partial
// batch failure converges on the same document.
func (s *Store) MissedUpsertModel(orgID, memberID primitive.ObjectID, date string, now time.Time) mongo.WriteModel {
	return mongo.NewUpdateOneModel().
		SetFilter(bson.M{"org_id": orgID, "member_id": memberID, "date": date}).
		SetUpdate(bson.M{
			"$set": bson.M{
				"status":     models.StatusMissed,
				"marked_by":  models.MarkedBySystem,
				"updated_at": now,
			},
			"$setOnInsert": bson.M{"created_at": now},
		}).
		SetUpsert(true)
}
