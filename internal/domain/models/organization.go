// internal/domain/models/organization.go
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Organization is one tenant: an isolated partition of the member and
// daily-status data. MemberCount is denormalized and maintained by the
// counter engine; everything else is written by admin tooling.
type Organization struct {
	ID          primitive.ObjectID `bson:"_id"`
	Name        string             `bson:"name"`
	NameCI      string             `bson:"name_ci"` // lowercase, diacritics-stripped
	OwnerID     primitive.ObjectID `bson:"owner_id"`
	MemberCount int64              `bson:"member_count"`
	Settings    OrgSettings        `bson:"settings"`
	Status      string             `bson:"status"`
	CreatedAt   time.Time          `bson:"created_at"`
	UpdatedAt   time.Time          `bson:"updated_at"`
}

// OrgSettings holds per-organization configuration. TimeZone is an IANA
// zone name ("Asia/Seoul"); empty means the service default applies.
type OrgSettings struct {
	TimeZone string       `bson:"time_zone,omitempty"`
	Features *OrgFeatures `bson:"features,omitempty"`
}

// OrgFeatures are opt-out flags. A nil pointer (field absent in the
// document) means the feature is enabled.
type OrgFeatures struct {
	MirrorSync *bool `bson:"mirror_sync,omitempty"`
	DailyClose *bool `bson:"daily_close,omitempty"`
}

// MirrorSyncEnabled reports whether mirror sync is on for this org.
func (o *Organization) MirrorSyncEnabled() bool {
	f := o.Settings.Features
	return f == nil || f.MirrorSync == nil || *f.MirrorSync
}

// DailyCloseEnabled reports whether the daily close job processes this org.
func (o *Organization) DailyCloseEnabled() bool {
	f := o.Settings.Features
	return f == nil || f.DailyClose == nil || *f.DailyClose
}
