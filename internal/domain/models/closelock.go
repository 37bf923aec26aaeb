// internal/domain/models/closelock.go
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// DailyCloseLock marks one (org, local date) as fully closed. The lock is
// written only after every missed-status chunk committed, so its absence
// means the next tick may safely reprocess the date.
type DailyCloseLock struct {
	ID       primitive.ObjectID `bson:"_id,omitempty"`
	OrgID    primitive.ObjectID `bson:"org_id"`
	Date     string             `bson:"date"`
	ClosedAt time.Time          `bson:"closed_at"`
	Marked   int                `bson:"marked"` // members transitioned to missed
}
