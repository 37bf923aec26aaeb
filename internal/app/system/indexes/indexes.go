// internal/app/system/indexes/indexes.go
package indexes

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

/*
EnsureAll is called at startup. Each ensure* function is idempotent.
We aggregate errors so any problem is visible and startup can fail fast.

The unique indexes here are load-bearing: (org_id, member_id) on members is
the mirror identity, (org_id, date) on daily_close_locks is the
exactly-once close guard, and (org_id, date, member_id) on daily_statuses
keeps the close job's merge-writes convergent.
*/
func EnsureAll(ctx context.Context, db *mongo.Database, logger *zap.Logger) error {
	var problems []string

	if err := ensureOrganizations(ctx, db, logger); err != nil {
		problems = append(problems, "organizations: "+err.Error())
	}
	if err := ensureUsers(ctx, db, logger); err != nil {
		problems = append(problems, "users: "+err.Error())
	}
	if err := ensureMembers(ctx, db, logger); err != nil {
		problems = append(problems, "members: "+err.Error())
	}
	if err := ensureDailyStatuses(ctx, db, logger); err != nil {
		problems = append(problems, "daily_statuses: "+err.Error())
	}
	if err := ensureCloseLocks(ctx, db, logger); err != nil {
		problems = append(problems, "daily_close_locks: "+err.Error())
	}

	if len(problems) > 0 {
		return errors.New(strings.Join(problems, "; "))
	}
	return nil
}

/* -------------------------------------------------------------------------- */
/* Core helper: reconcile a set of desired indexes for one collection         */
/* -------------------------------------------------------------------------- */

type existingIndex struct {
	Name   string `bson:"name"`
	Key    bson.D `bson:"key"`
	Unique *bool  `bson:"unique,omitempty"`
}

func keySig(keys bson.D) string {
	parts := make([]string, 0, len(keys))
	for _, kv := range keys {
		parts = append(parts, fmt.Sprintf("%s:%v", kv.Key, kv.Value))
	}
	return strings.Join(parts, ", ")
}

func sameBoolPtr(a, b *bool) bool {
	av := false
	bv := false
	if a != nil {
		av = *a
	}
	if b != nil {
		bv = *b
	}
	return av == bv
}

// Best-effort duplicate-detector (works cross-vendors)
func isDuplicateKeyErr(err error) bool {
	if err == nil {
		return false
	}
	var we mongo.WriteException
	if errors.As(err, &we) {
		for _, e := range we.WriteErrors {
			if e.Code == 11000 { // E11000 duplicate key error index
				return true
			}
		}
	}
	var ce mongo.CommandError
	if errors.As(err, &ce) && ce.Code == 11000 {
		return true
	}
	s := err.Error()
	return strings.Contains(s, "E11000") || strings.Contains(strings.ToLower(s), "duplicate key")
}

func ensureIndexSet(ctx context.Context, coll *mongo.Collection, logger *zap.Logger, models []mongo.IndexModel) error {
	// Load existing indexes once per collection.
	existing := map[string]existingIndex{} // sig -> index
	cur, err := coll.Indexes().List(ctx)
	if err == nil {
		defer cur.Close(ctx)
		for cur.Next(ctx) {
			var idx existingIndex
			if err := cur.Decode(&idx); err != nil {
				logger.Warn("failed to decode existing index",
					zap.String("collection", coll.Name()),
					zap.Error(err))
				continue
			}
			existing[keySig(idx.Key)] = idx
		}
	}

	var errs []string
	for _, m := range models {
		var desiredName string
		var desiredUnique *bool
		if m.Options != nil {
			if m.Options.Name != nil {
				desiredName = *m.Options.Name
			}
			if m.Options.Unique != nil {
				desiredUnique = m.Options.Unique
			}
		}
		desiredSig := keySig(m.Keys.(bson.D))
		start := time.Now()

		if ex, ok := existing[desiredSig]; ok {
			if sameBoolPtr(desiredUnique, ex.Unique) {
				continue
			}
			// Options mismatch (e.g., upgrading to unique). Drop & recreate.
			if _, err := coll.Indexes().DropOne(ctx, ex.Name); err != nil {
				errs = append(errs, fmt.Sprintf("%s(%s): drop failed: %v", coll.Name(), desiredName, err))
				continue
			}
		}

		if _, err := coll.Indexes().CreateOne(ctx, m); err != nil {
			if isDuplicateKeyErr(err) && desiredUnique != nil && *desiredUnique {
				errs = append(errs, fmt.Sprintf("%s(%s): cannot create unique index (duplicates present)", coll.Name(), desiredName))
			} else {
				errs = append(errs, fmt.Sprintf("%s(%s): %v", coll.Name(), desiredName, err))
			}
			continue
		}
		logger.Info("index ensured",
			zap.String("collection", coll.Name()),
			zap.String("name", desiredName),
			zap.String("keys", desiredSig),
			zap.Bool("unique", desiredUnique != nil && *desiredUnique),
			zap.String("took", time.Since(start).String()))
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

/* -------------------------------------------------------------------------- */
/* Collection-specific index sets                                             */
/* -------------------------------------------------------------------------- */

func ensureOrganizations(ctx context.Context, db *mongo.Database, logger *zap.Logger) error {
	c := db.Collection("organizations")
	return ensureIndexSet(ctx, c, logger, []mongo.IndexModel{
		// Enforce global uniqueness of organization names (case/diacritics folded).
		{
			Keys:    bson.D{{Key: "name_ci", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("uniq_orgs_nameci"),
		},
		// Owner → org lookup for the provenance mapping.
		{
			Keys:    bson.D{{Key: "owner_id", Value: 1}},
			Options: options.Index().SetName("idx_orgs_owner"),
		},
	})
}

func ensureUsers(ctx context.Context, db *mongo.Database, logger *zap.Logger) error {
	c := db.Collection("users")
	return ensureIndexSet(ctx, c, logger, []mongo.IndexModel{
		// Email must be unique across all users (global, cross-org)
		{
			Keys:    bson.D{{Key: "email", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("uniq_users_email"),
		},
		// Mirror-set resolution: admins subscribed to a ministry with a
		// mirror org configured.
		{
			Keys: bson.D{
				{Key: "role", Value: 1},
				{Key: "ministries", Value: 1},
				{Key: "mirror_org_id", Value: 1},
			},
			Options: options.Index().SetName("idx_users_role_ministries_mirror"),
		},
		// Admin counter fan-out: which admins manage a given org.
		{
			Keys: bson.D{
				{Key: "role", Value: 1},
				{Key: "managed_org_ids", Value: 1},
			},
			Options: options.Index().SetName("idx_users_role_managed_orgs"),
		},
	})
}

func ensureMembers(ctx context.Context, db *mongo.Database, logger *zap.Logger) error {
	c := db.Collection("members")
	return ensureIndexSet(ctx, c, logger, []mongo.IndexModel{
		// Mirror identity: one record per logical member per org. The
		// mirror engines' keyed upserts depend on this.
		{
			Keys: bson.D{
				{Key: "org_id", Value: 1},
				{Key: "member_id", Value: 1},
			},
			Options: options.Index().SetUnique(true).SetName("uniq_members_org_member"),
		},
		// Ministry-scoped scans (forward sync, backfill).
		{
			Keys: bson.D{
				{Key: "org_id", Value: 1},
				{Key: "ministry", Value: 1},
			},
			Options: options.Index().SetName("idx_members_org_ministry"),
		},
		// Active-member scans (counts, daily close, purge).
		{
			Keys: bson.D{
				{Key: "org_id", Value: 1},
				{Key: "is_active", Value: 1},
			},
			Options: options.Index().SetName("idx_members_org_active"),
		},
	})
}

func ensureDailyStatuses(ctx context.Context, db *mongo.Database, logger *zap.Logger) error {
	c := db.Collection("daily_statuses")
	return ensureIndexSet(ctx, c, logger, []mongo.IndexModel{
		// One status per member per org-local day; close-job upserts merge
		// into this identity.
		{
			Keys: bson.D{
				{Key: "org_id", Value: 1},
				{Key: "date", Value: 1},
				{Key: "member_id", Value: 1},
			},
			Options: options.Index().SetUnique(true).SetName("uniq_status_org_date_member"),
		},
	})
}

func ensureCloseLocks(ctx context.Context, db *mongo.Database, logger *zap.Logger) error {
	c := db.Collection("daily_close_locks")
	return ensureIndexSet(ctx, c, logger, []mongo.IndexModel{
		// At most one close per org per local date; the duplicate-key error
		// on insert is how concurrent closers lose the race.
		{
			Keys: bson.D{
				{Key: "org_id", Value: 1},
				{Key: "date", Value: 1},
			},
			Options: options.Index().SetUnique(true).SetName("uniq_close_org_date"),
		},
	})
}
