// internal/app/sync/mirror/mirror.go
//
// The mirror engine copies member records between organizations based on
// ministry subscriptions. A write in a source org fans out to every mirror
// org subscribed to the record's ministry; a write to a mirror copy sends a
// small allow-listed field set back to the source. Provenance tags keep the
// two directions from feeding each other.
package mirror

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"

	adminstore "github.com/dalemusser/attendhub/internal/app/store/admins"
	memberstore "github.com/dalemusser/attendhub/internal/app/store/members"
	orgstore "github.com/dalemusser/attendhub/internal/app/store/organizations"
	"github.com/dalemusser/attendhub/internal/app/system/batch"
	"github.com/dalemusser/attendhub/internal/app/system/events"
	"github.com/dalemusser/attendhub/internal/app/system/provenance"
	"github.com/dalemusser/attendhub/internal/domain/models"
)

// ErrNotSource is returned by the bulk operations when the named org has no
// owner pairing that makes it a mirror source.
var ErrNotSource = errors.New("organization is not a mirror source")

type Engine struct {
	orgs    *orgstore.Store
	admins  *adminstore.Store
	members *memberstore.Store
	writer  *batch.Writer
	log     *zap.Logger
	now     func() time.Time
}

func New(orgs *orgstore.Store, admins *adminstore.Store, members *memberstore.Store, writer *batch.Writer, logger *zap.Logger) *Engine {
	return &Engine{
		orgs:    orgs,
		admins:  admins,
		members: members,
		writer:  writer,
		log:     logger,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (e *Engine) Name() string { return "mirror-sync" }

// Handle routes one change event. Documents carrying synced_from are mirror
// copies and take the reverse path; everything else is a candidate for
// forward fan-out.
func (e *Engine) Handle(ctx context.Context, ev events.Event) error {
	doc := ev.Doc()
	if doc == nil {
		return nil
	}
	if doc.IsMirrorCopy() {
		return e.handleReverse(ctx, ev)
	}
	return e.handleForward(ctx, ev)
}

/* ------------------------------- forward -------------------------------- */

// mapping is the resolved owner→tenant relationship for one source org.
type mapping struct {
	org   models.Organization
	owner models.User
}

// sourceMapping resolves org.owner_id → admin profile → pairing, and
// reports whether orgID is the pairing's source. Absent owner, absent
// profile, or a missing pairing are opt-out states, not errors.
func (e *Engine) sourceMapping(ctx context.Context, orgID primitive.ObjectID) (mapping, bool, error) {
	org, err := e.orgs.Get(ctx, orgID)
	if err == mongo.ErrNoDocuments {
		return mapping{}, false, nil
	}
	if err != nil {
		return mapping{}, false, fmt.Errorf("load org: %w", err)
	}

	owner, err := e.admins.Get(ctx, org.OwnerID)
	if err == mongo.ErrNoDocuments {
		return mapping{}, false, nil
	}
	if err != nil {
		return mapping{}, false, fmt.Errorf("load owner profile: %w", err)
	}

	if owner.DefaultOrgID == nil || *owner.DefaultOrgID != orgID || owner.MirrorOrgID == nil {
		return mapping{}, false, nil
	}
	return mapping{org: org, owner: owner}, true, nil
}

// mirrorSet resolves the orgs subscribed to one ministry, excluding the
// source itself. Always a fresh query; subscriptions change independently
// of member writes.
func (e *Engine) mirrorSet(ctx context.Context, ministry string, sourceOrg primitive.ObjectID) ([]primitive.ObjectID, error) {
	ids, err := e.admins.MirrorOrgsForMinistry(ctx, ministry)
	if err != nil {
		return nil, fmt.Errorf("resolve mirror set for %q: %w", ministry, err)
	}
	out := ids[:0]
	for _, id := range ids {
		if id != sourceOrg {
			out = append(out, id)
		}
	}
	return out, nil
}

func (e *Engine) handleForward(ctx context.Context, ev events.Event) error {
	if provenance.ShouldSkip(provenance.Forward, ev.Before, ev.After) {
		e.log.Debug("skipping reverse-sync write",
			zap.String("doc_id", ev.DocID.Hex()))
		return nil
	}

	orgID := ev.Doc().OrgID
	m, ok, err := e.sourceMapping(ctx, orgID)
	if err != nil {
		return err
	}
	if !ok || !m.org.MirrorSyncEnabled() {
		return nil
	}

	before, after := ev.Before, ev.After
	qualifies := ev.Op != events.OpDelete && after != nil &&
		after.Countable() && after.Ministry != ""

	var ops []mongo.WriteModel
	now := e.now()

	if !qualifies {
		// Deleted, deactivated, or ministry cleared: pull the copy out of
		// the previous ministry's mirrors.
		prev := previousMinistry(before, after)
		if prev == "" {
			return nil
		}
		set, err := e.mirrorSet(ctx, prev, orgID)
		if err != nil {
			return err
		}
		memberID := ev.Doc().MemberID
		for _, mirrorOrg := range set {
			ops = append(ops, e.members.MirrorDeleteModel(mirrorOrg, memberID))
		}
	} else {
		cur, err := e.mirrorSet(ctx, after.Ministry, orgID)
		if err != nil {
			return err
		}
		tag := provenance.MirrorFields(orgID, now)
		for _, mirrorOrg := range cur {
			ops = append(ops, e.members.MirrorUpsertModel(mirrorOrg, *after, tag, now))
		}

		// Ministry changed: also remove the copy from old-ministry mirrors
		// that are not subscribed to the new one.
		if before != nil && before.Ministry != "" && before.Ministry != after.Ministry {
			old, err := e.mirrorSet(ctx, before.Ministry, orgID)
			if err != nil {
				return err
			}
			keep := make(map[primitive.ObjectID]bool, len(cur))
			for _, id := range cur {
				keep[id] = true
			}
			for _, mirrorOrg := range old {
				if !keep[mirrorOrg] {
					ops = append(ops, e.members.MirrorDeleteModel(mirrorOrg, after.MemberID))
				}
			}
		}
	}

	if len(ops) == 0 {
		return nil
	}
	res, err := e.writer.Commit(ctx, e.members.Collection(), ops)
	if err != nil {
		return fmt.Errorf("commit mirror fan-out (%d/%d applied): %w", res.Committed, res.Attempted, err)
	}

	e.log.Info("mirror fan-out applied",
		zap.String("source_org", orgID.Hex()),
		zap.String("member_id", ev.Doc().MemberID.Hex()),
		zap.String("op", ev.Op.String()),
		zap.Int("writes", res.Committed))
	return nil
}

// previousMinistry picks the label whose mirrors held the record before
// this event.
func previousMinistry(before, after *models.Member) string {
	if before != nil && before.Ministry != "" {
		return before.Ministry
	}
	if after != nil {
		return after.Ministry
	}
	return ""
}

/* ------------------------------- reverse -------------------------------- */

func (e *Engine) handleReverse(ctx context.Context, ev events.Event) error {
	// Reverse sync never deletes the source record.
	if ev.Op == events.OpDelete || ev.After == nil {
		return nil
	}
	if provenance.ShouldSkip(provenance.Reverse, ev.Before, ev.After) {
		e.log.Debug("skipping forward-sync write",
			zap.String("doc_id", ev.DocID.Hex()))
		return nil
	}

	after := ev.After
	fields := reverseFields(ev.Before, after)
	if len(fields) == 0 {
		return nil
	}

	now := e.now()
	for k, v := range provenance.SourceFields(after.OrgID, now) {
		fields[k] = v
	}
	fields["updated_at"] = now

	sourceOrg := after.SyncedFrom.OrgID
	matched, err := e.members.ApplyReverseFields(ctx, sourceOrg, after.MemberID, fields)
	if err != nil {
		return fmt.Errorf("reverse sync to org %s: %w", sourceOrg.Hex(), err)
	}
	if !matched {
		e.log.Warn("reverse sync found no source record",
			zap.String("source_org", sourceOrg.Hex()),
			zap.String("member_id", after.MemberID.Hex()))
		return nil
	}

	e.log.Info("reverse sync applied",
		zap.String("mirror_org", after.OrgID.Hex()),
		zap.String("source_org", sourceOrg.Hex()),
		zap.String("member_id", after.MemberID.Hex()))
	return nil
}

// reverseFields is the allow-list: only these fields flow from a mirror
// copy back to its source, and only when they actually changed.
func reverseFields(before, after *models.Member) bson.M {
	fields := bson.M{}
	changed := func(get func(*models.Member) string) (string, bool) {
		v := get(after)
		if before == nil || get(before) != v {
			return v, true
		}
		return v, false
	}

	if v, ok := changed(func(m *models.Member) string { return m.FullName }); ok {
		fields["full_name"] = v
		fields["full_name_ci"] = after.FullNameCI
	}
	if v, ok := changed(func(m *models.Member) string { return m.Phone }); ok {
		fields["phone"] = v
	}
	if v, ok := changed(func(m *models.Member) string { return m.Email }); ok {
		fields["email"] = v
	}
	if v, ok := changed(func(m *models.Member) string { return m.Ministry }); ok {
		fields["ministry"] = v
	}
	return fields
}

/* --------------------------- bulk operations ----------------------------- */

// BulkResult summarizes one backfill or cross-ministry sync.
type BulkResult struct {
	Members int          `json:"members"`
	Writes  int          `json:"writes"`
	Batch   batch.Result `json:"batch"`
}

// Backfill re-mirrors every qualifying member of one source org. Used when
// a new mirror relationship is established; safe to run repeatedly because
// every write is an upsert keyed by (org_id, member_id).
func (e *Engine) Backfill(ctx context.Context, orgID primitive.ObjectID) (BulkResult, error) {
	var res BulkResult

	m, ok, err := e.sourceMapping(ctx, orgID)
	if err != nil {
		return res, err
	}
	if !ok {
		return res, ErrNotSource
	}
	if !m.org.MirrorSyncEnabled() {
		return res, nil
	}

	members, err := e.members.ListActiveWithMinistry(ctx, orgID)
	if err != nil {
		return res, fmt.Errorf("list members: %w", err)
	}
	res.Members = len(members)

	// One mirror-set query per distinct ministry within this operation.
	sets := make(map[string][]primitive.ObjectID)
	now := e.now()
	tag := provenance.MirrorFields(orgID, now)

	var ops []mongo.WriteModel
	for _, member := range members {
		set, seen := sets[member.Ministry]
		if !seen {
			set, err = e.mirrorSet(ctx, member.Ministry, orgID)
			if err != nil {
				return res, err
			}
			sets[member.Ministry] = set
		}
		for _, mirrorOrg := range set {
			ops = append(ops, e.members.MirrorUpsertModel(mirrorOrg, member, tag, now))
		}
	}

	res.Writes = len(ops)
	res.Batch, err = e.writer.Commit(ctx, e.members.Collection(), ops)
	if err != nil {
		return res, fmt.Errorf("commit backfill: %w", err)
	}

	e.log.Info("mirror backfill complete",
		zap.String("source_org", orgID.Hex()),
		zap.Int("members", res.Members),
		zap.Int("writes", res.Writes))
	return res, nil
}

// CrossMinistrySync re-mirrors every qualifying member of every source org
// for one ministry. Used when a new mirror org subscribes to that ministry.
func (e *Engine) CrossMinistrySync(ctx context.Context, ministry string) (BulkResult, error) {
	var res BulkResult

	orgs, err := e.orgs.ListAll(ctx)
	if err != nil {
		return res, fmt.Errorf("list orgs: %w", err)
	}

	now := e.now()
	var ops []mongo.WriteModel
	for _, org := range orgs {
		m, ok, err := e.sourceMapping(ctx, org.ID)
		if err != nil {
			return res, err
		}
		if !ok || !m.org.MirrorSyncEnabled() {
			continue
		}

		set, err := e.mirrorSet(ctx, ministry, org.ID)
		if err != nil {
			return res, err
		}
		if len(set) == 0 {
			continue
		}

		members, err := e.members.ListActiveByMinistry(ctx, org.ID, ministry)
		if err != nil {
			return res, fmt.Errorf("list members of org %s: %w", org.ID.Hex(), err)
		}
		res.Members += len(members)

		tag := provenance.MirrorFields(org.ID, now)
		for _, member := range members {
			for _, mirrorOrg := range set {
				ops = append(ops, e.members.MirrorUpsertModel(mirrorOrg, member, tag, now))
			}
		}
	}

	res.Writes = len(ops)
	res.Batch, err = e.writer.Commit(ctx, e.members.Collection(), ops)
	if err != nil {
		return res, fmt.Errorf("commit cross-ministry sync: %w", err)
	}

	e.log.Info("cross-ministry sync complete",
		zap.String("ministry", ministry),
		zap.Int("members", res.Members),
		zap.Int("writes", res.Writes))
	return res, nil
}

var _ events.Handler = (*Engine)(nil)
