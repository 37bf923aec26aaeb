// internal/app/sync/counters/counters.go
//
// The counter engine keeps the denormalized member counts on organizations
// and admin profiles in step with member-record changes. Deltas are derived
// purely from the before/after pair of one event, so a duplicate delivery
// re-applies the same delta; that drift risk is accepted and corrected by
// RecomputeAll.
package counters

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"

	adminstore "github.com/dalemusser/attendhub/internal/app/store/admins"
	memberstore "github.com/dalemusser/attendhub/internal/app/store/members"
	orgstore "github.com/dalemusser/attendhub/internal/app/store/organizations"
	"github.com/dalemusser/attendhub/internal/app/system/batch"
	"github.com/dalemusser/attendhub/internal/app/system/events"
	"github.com/dalemusser/attendhub/internal/app/system/provenance"
)

type Engine struct {
	orgs    *orgstore.Store
	admins  *adminstore.Store
	members *memberstore.Store
	writer  *batch.Writer
	log     *zap.Logger
}

func New(orgs *orgstore.Store, admins *adminstore.Store, members *memberstore.Store, writer *batch.Writer, logger *zap.Logger) *Engine {
	return &Engine{orgs: orgs, admins: admins, members: members, writer: writer, log: logger}
}

func (e *Engine) Name() string { return "counter-maintenance" }

// Delta maps one change event onto the signed counter adjustment:
// records count unless is_active is explicitly false, and only changes in
// countable-ness move the counters.
func Delta(ev events.Event) int64 {
	switch ev.Op {
	case events.OpCreate:
		if ev.After != nil && ev.After.Countable() {
			return 1
		}
	case events.OpDelete:
		if ev.Before != nil && ev.Before.Countable() {
			return -1
		}
	case events.OpUpdate:
		if ev.Before == nil || ev.After == nil {
			return 0
		}
		was, is := ev.Before.Countable(), ev.After.Countable()
		switch {
		case !was && is:
			return 1
		case was && !is:
			return -1
		}
	}
	return 0
}

// Handle applies the event's delta to the owning org and to every admin
// profile managing it. Writes produced by the mirror engine are skipped so
// the two handlers never feed each other.
func (e *Engine) Handle(ctx context.Context, ev events.Event) error {
	if provenance.IsEngineWrite(ev.Before, ev.After) {
		e.log.Debug("skipping engine-originated write",
			zap.String("doc_id", ev.DocID.Hex()))
		return nil
	}

	doc := ev.Doc()
	if doc == nil {
		// Delete without a pre-image: nothing to derive a delta from.
		e.log.Warn("member event without document images",
			zap.String("op", ev.Op.String()),
			zap.String("doc_id", ev.DocID.Hex()))
		return nil
	}

	d := Delta(ev)
	if d == 0 {
		return nil
	}

	if err := e.orgs.IncrementMemberCount(ctx, doc.OrgID, d); err != nil {
		return fmt.Errorf("increment org counter: %w", err)
	}
	admins, err := e.admins.IncrementManagedCounts(ctx, doc.OrgID, d)
	if err != nil {
		return fmt.Errorf("increment admin counters: %w", err)
	}

	e.log.Info("member count adjusted",
		zap.String("org_id", doc.OrgID.Hex()),
		zap.String("member_id", doc.MemberID.Hex()),
		zap.Int64("delta", d),
		zap.Int64("admins", admins))
	return nil
}

// RecomputeResult reports how many counters a recompute overwrote.
type RecomputeResult struct {
	Orgs   int `json:"orgs"`
	Admins int `json:"admins"`
}

// RecomputeAll replaces every counter with the exact count of countable
// records: the ground truth the incremental path drifts away from when
// events are missed or redelivered.
func (e *Engine) RecomputeAll(ctx context.Context) (RecomputeResult, error) {
	var res RecomputeResult

	orgs, err := e.orgs.ListAll(ctx)
	if err != nil {
		return res, fmt.Errorf("list orgs: %w", err)
	}

	counts := make(map[string]int64, len(orgs))
	orgOps := make([]mongo.WriteModel, 0, len(orgs))
	for _, org := range orgs {
		n, err := e.members.CountActive(ctx, org.ID)
		if err != nil {
			return res, fmt.Errorf("count members for org %s: %w", org.ID.Hex(), err)
		}
		counts[org.ID.Hex()] = n
		orgOps = append(orgOps, e.orgs.CountOverwriteModel(org.ID, n))
	}
	if _, err := e.writer.Commit(ctx, e.orgs.Collection(), orgOps); err != nil {
		return res, fmt.Errorf("overwrite org counters: %w", err)
	}
	res.Orgs = len(orgOps)

	admins, err := e.admins.ListAdmins(ctx)
	if err != nil {
		return res, fmt.Errorf("list admins: %w", err)
	}
	adminOps := make([]mongo.WriteModel, 0, len(admins))
	for _, a := range admins {
		var total int64
		for _, orgID := range a.ManagedOrgIDs {
			total += counts[orgID.Hex()]
		}
		adminOps = append(adminOps, e.admins.CountOverwriteModel(a.ID, total))
	}
	if _, err := e.writer.Commit(ctx, e.admins.Collection(), adminOps); err != nil {
		return res, fmt.Errorf("overwrite admin counters: %w", err)
	}
	res.Admins = len(adminOps)

	e.log.Info("member counts recomputed",
		zap.Int("orgs", res.Orgs),
		zap.Int("admins", res.Admins))
	return res, nil
}

// PurgeResult reports what an inactive-member purge removed.
type PurgeResult struct {
	Deleted   int64           `json:"deleted"`
	Recompute RecomputeResult `json:"recompute"`
}

// PurgeInactive deletes every record explicitly marked inactive across all
// orgs, then recomputes the counters. Irreversible; meant to be invoked
// deliberately by an operator, never on a schedule.
func (e *Engine) PurgeInactive(ctx context.Context) (PurgeResult, error) {
	var res PurgeResult

	deleted, err := e.members.DeleteInactive(ctx)
	if err != nil {
		return res, fmt.Errorf("delete inactive members: %w", err)
	}
	res.Deleted = deleted
	e.log.Info("inactive members purged", zap.Int64("deleted", deleted))

	rc, err := e.RecomputeAll(ctx)
	if err != nil {
		return res, err
	}
	res.Recompute = rc
	return res, nil
}

var _ events.Handler = (*Engine)(nil)
