// internal/domain/models/user.go
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// RoleAdmin is the role string for administrator profiles.
const RoleAdmin = "admin"

// User represents admins and regular accounts in the shared users
// collection. Only admin profiles matter to the sync engine:
//
//   - DefaultOrgID / MirrorOrgID form the owner pairing: writes in
//     DefaultOrgID fan out to mirror orgs, and MirrorOrgID is the org this
//     admin's ministry subscriptions deliver into.
//   - Ministries lists the ministry labels this admin subscribes to.
//   - ManagedOrgIDs are the orgs whose member counts this profile
//     aggregates in its own denormalized MemberCount.
type User struct {
	ID         primitive.ObjectID `bson:"_id,omitempty"`
	FullName   string             `bson:"full_name"`
	FullNameCI string             `bson:"full_name_ci"` // lowercase, diacritics-stripped
	Email      string             `bson:"email"`
	Role       string             `bson:"role"` // admin | member
	Status     string             `bson:"status,omitempty"`

	DefaultOrgID  *primitive.ObjectID  `bson:"default_org_id,omitempty"`
	MirrorOrgID   *primitive.ObjectID  `bson:"mirror_org_id,omitempty"`
	ManagedOrgIDs []primitive.ObjectID `bson:"managed_org_ids,omitempty"`
	Ministries    []string             `bson:"ministries,omitempty"`
	MemberCount   int64                `bson:"member_count"`

	CreatedAt time.Time `bson:"created_at"`
	UpdatedAt time.Time `bson:"updated_at"`
}
