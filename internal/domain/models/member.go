// internal/domain/models/member.go
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Sync origin markers stamped by the mirror engine. A write carrying a
// freshly stamped marker must not re-trigger sync in the opposite direction.
const (
	OriginMirror = "mirror" // written into a mirror org by forward sync
	OriginSource = "source" // written into a source org by reverse sync
)

// SyncMeta records where and when a synced write was produced.
type SyncMeta struct {
	OrgID primitive.ObjectID `bson:"org_id"`
	At    time.Time          `bson:"at"`
}

// Member is one member record inside one organization.
//
// MemberID is the logical identity: the source copy and every mirror copy
// of the same person share it, so mirror writes are upserts keyed by
// (org_id, member_id) and never mint new ids. A mirror copy additionally
// carries SyncedFrom; a source copy touched by reverse sync carries
// SyncedBack.
type Member struct {
	ID       primitive.ObjectID `bson:"_id,omitempty"`
	MemberID primitive.ObjectID `bson:"member_id"`
	OrgID    primitive.ObjectID `bson:"org_id"`

	FullName   string `bson:"full_name"`
	FullNameCI string `bson:"full_name_ci"`
	Phone      string `bson:"phone,omitempty"`
	Email      string `bson:"email,omitempty"`

	// Ministry is the mirror-selection label; empty means the record is
	// not mirrored anywhere.
	Ministry string `bson:"ministry,omitempty"`

	// GroupID is a cell/group reference that only has meaning inside the
	// source org's structure. Cleared on mirror copies.
	GroupID *primitive.ObjectID `bson:"group_id,omitempty"`

	// IsActive is tri-state on the wire: absent counts as active, so the
	// countable rule is "not explicitly false".
	IsActive *bool `bson:"is_active,omitempty"`
	IsFrozen bool  `bson:"is_frozen,omitempty"`

	SyncedFrom *SyncMeta `bson:"synced_from,omitempty"`
	SyncedBack *SyncMeta `bson:"synced_back,omitempty"`
	SyncOrigin string    `bson:"sync_origin,omitempty"`

	CreatedAt time.Time `bson:"created_at"`
	UpdatedAt time.Time `bson:"updated_at"`
}

// Countable reports whether this record contributes to member counts:
// true unless is_active is explicitly false.
func (m *Member) Countable() bool {
	return m.IsActive == nil || *m.IsActive
}

// IsMirrorCopy reports whether this record was produced by forward sync.
func (m *Member) IsMirrorCopy() bool {
	return m.SyncedFrom != nil
}
