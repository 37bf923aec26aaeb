// internal/app/system/provenance/provenance.go
//
// Provenance tags mark writes produced by the mirror engine so that the
// change-stream handlers can recognize their own output and not react to
// it. The tag is a data field, not a transactional fence: skipping is
// advisory and exactly-once is not guaranteed.
package provenance

import (
	"time"

	"github.com/dalemusser/attendhub/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Direction of a sync step.
type Direction int

const (
	// Forward is source org → mirror orgs.
	Forward Direction = iota
	// Reverse is mirror org → source org.
	Reverse
)

func (d Direction) String() string {
	if d == Reverse {
		return "reverse"
	}
	return "forward"
}

// MirrorFields returns the fields stamped on a forward-sync upsert into a
// mirror org: where the copy came from and that the engine wrote it.
func MirrorFields(sourceOrg primitive.ObjectID, at time.Time) bson.M {
	return bson.M{
		"synced_from": bson.M{"org_id": sourceOrg, "at": at},
		"sync_origin": models.OriginMirror,
	}
}

// SourceFields is the reverse-direction equivalent, stamped on the source
// document when allow-listed fields are propagated back from a mirror.
func SourceFields(mirrorOrg primitive.ObjectID, at time.Time) bson.M {
	return bson.M{
		"synced_back": bson.M{"org_id": mirrorOrg, "at": at},
		"sync_origin": models.OriginSource,
	}
}

// ShouldSkip reports whether the write that produced this change event was
// itself emitted by the engine running in the opposite direction of dir,
// in which case the handler must not react to it.
//
// "Freshly stamped" means the opposite direction's tag is present on the
// after image and was absent, or carried a different timestamp, on the
// before image. Comparing against the before image keeps later manual
// edits to a tagged document syncing normally: those writes leave the tag
// untouched.
func ShouldSkip(dir Direction, before, after *models.Member) bool {
	if after == nil {
		return false
	}
	switch dir {
	case Forward:
		// A reverse-sync write into the source org must not fan back out.
		return after.SyncOrigin == models.OriginSource && freshlyStamped(tagOf(before, Reverse), after.SyncedBack)
	case Reverse:
		// A forward-sync write into a mirror org must not sync back.
		return after.SyncOrigin == models.OriginMirror && freshlyStamped(tagOf(before, Forward), after.SyncedFrom)
	}
	return false
}

// IsEngineWrite reports whether the triggering write was produced by the
// mirror engine in either direction. The counter engine uses this to keep
// engine writes out of the incremental counts; drift on mirror-side
// counters is reconciled by the periodic recompute.
func IsEngineWrite(before, after *models.Member) bool {
	return ShouldSkip(Forward, before, after) || ShouldSkip(Reverse, before, after)
}

func tagOf(m *models.Member, dir Direction) *models.SyncMeta {
	if m == nil {
		return nil
	}
	if dir == Forward {
		return m.SyncedFrom
	}
	return m.SyncedBack
}

func freshlyStamped(before, after *models.SyncMeta) bool {
	if after == nil {
		return false
	}
	return before == nil || !before.At.Equal(after.At)
}
