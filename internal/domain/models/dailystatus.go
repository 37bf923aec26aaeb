// internal/domain/models/dailystatus.go
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Daily status values. Missed is terminal for a given date; Prayed is the
// "present" state the close job must never overwrite.
const (
	StatusUndecided = "undecided"
	StatusPrayed    = "prayed"
	StatusMissed    = "missed"
)

// Actor markers for daily status writes.
const (
	MarkedByMember = "member"
	MarkedBySystem = "system"
)

// DailyStatus is one member's state for one local calendar date.
// Identity is (org_id, member_id, date); Date is the org-local calendar
// date formatted as "2006-01-02". Records are created by member check-ins
// or by the daily close job, and are never deleted by the job.
type DailyStatus struct {
	ID       primitive.ObjectID `bson:"_id,omitempty"`
	OrgID    primitive.ObjectID `bson:"org_id"`
	MemberID primitive.ObjectID `bson:"member_id"`
	Date     string             `bson:"date"`
	Status   string             `bson:"status"`
	MarkedBy string             `bson:"marked_by,omitempty"`

	CreatedAt time.Time `bson:"created_at"`
	UpdatedAt time.Time `bson:"updated_at"`
}
