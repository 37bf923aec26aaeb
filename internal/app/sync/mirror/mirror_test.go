package mirror

import (
	"context"
	"errors"
	"testing"
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
	"github.com/dalemusser/attendhub/internal/domain/models"
	"github.com/dalemusser/attendhub/internal/testutil"
)

// scenario is one wired mirror topology: a source org whose owner pairs it
// with ownMirror, plus a second admin subscribed to "youth" delivering into
// subMirror.
type scenario struct {
	engine    *Engine
	f         *testutil.Fixtures
	source    models.Organization
	ownMirror models.Organization
	subMirror models.Organization
}

func setupScenario(t *testing.T) (context.Context, *scenario) {
	t.Helper()
	ctx := testutil.TestContext(t)
	db := testutil.SetupTestDB(t)
	f := testutil.NewFixtures(t, db)

	source := f.CreateOrganization(ctx, "Source Org", "Asia/Seoul")
	ownMirror := f.CreateOrganization(ctx, "Owner Mirror", "Asia/Seoul")
	subMirror := f.CreateOrganization(ctx, "Subscriber Mirror", "America/Chicago")

	owner := f.CreateAdmin(ctx, testutil.AdminSpec{
		FullName:     "Owner Admin",
		Email:        "owner@example.com",
		DefaultOrgID: &source.ID,
		MirrorOrgID:  &ownMirror.ID,
		Ministries:   []string{"youth"},
	})
	f.SetOrgOwner(ctx, source.ID, owner.ID)

	f.CreateAdmin(ctx, testutil.AdminSpec{
		FullName:    "Subscriber Admin",
		Email:       "sub@example.com",
		MirrorOrgID: &subMirror.ID,
		Ministries:  []string{"youth"},
	})

	engine := New(
		orgstore.New(db),
		adminstore.New(db),
		memberstore.New(db),
		batch.NewWriter(batch.DefaultLimit),
		zap.NewNop(),
	)
	return ctx, &scenario{engine: engine, f: f, source: source, ownMirror: ownMirror, subMirror: subMirror}
}

func (s *scenario) mirrorCopy(ctx context.Context, t *testing.T, orgID, memberID primitive.ObjectID) (models.Member, bool) {
	t.Helper()
	m, err := s.engine.members.Get(ctx, orgID, memberID)
	if err == mongo.ErrNoDocuments {
		return models.Member{}, false
	}
	if err != nil {
		t.Fatalf("load mirror copy: %v", err)
	}
	return m, true
}

func TestForwardFanOut(t *testing.T) {
	ctx, s := setupScenario(t)

	groupID := primitive.NewObjectID()
	src := s.f.CreateMember(ctx, s.source.ID, testutil.MemberSpec{
		FullName: "Kim Minji",
		Phone:    "010-1111-2222",
		Ministry: "youth",
	})
	// Give the source record a group reference; it must not travel.
	if _, err := s.f.DB().Collection("members").UpdateByID(ctx, src.ID,
		bson.M{"$set": bson.M{"group_id": groupID}}); err != nil {
		t.Fatalf("set group: %v", err)
	}
	src.GroupID = &groupID

	ev := events.Event{Op: events.OpCreate, DocID: src.ID, After: &src}
	if err := s.engine.Handle(ctx, ev); err != nil {
		t.Fatalf("Handle: %v", err)
	}

	for _, orgID := range []primitive.ObjectID{s.ownMirror.ID, s.subMirror.ID} {
		copy, ok := s.mirrorCopy(ctx, t, orgID, src.MemberID)
		if !ok {
			t.Fatalf("no mirror copy in org %s", orgID.Hex())
		}
		if copy.FullName != "Kim Minji" || copy.Phone != "010-1111-2222" {
			t.Errorf("copy fields = %q/%q, want source values", copy.FullName, copy.Phone)
		}
		if copy.GroupID != nil {
			t.Error("group_id must be cleared on mirror copies")
		}
		if copy.SyncedFrom == nil || copy.SyncedFrom.OrgID != s.source.ID {
			t.Errorf("synced_from = %+v, want source org tag", copy.SyncedFrom)
		}
		if copy.SyncOrigin != models.OriginMirror {
			t.Errorf("sync_origin = %q, want %q", copy.SyncOrigin, models.OriginMirror)
		}
	}

	// The source org itself must never receive a copy of its own record.
	if _, err := s.engine.members.Get(ctx, s.source.ID, src.MemberID); err != nil {
		t.Fatalf("source record lost: %v", err)
	}
}

func TestForwardUpsertIsIdempotent(t *testing.T) {
	ctx, s := setupScenario(t)

	src := s.f.CreateMember(ctx, s.source.ID, testutil.MemberSpec{FullName: "Lee Areum", Ministry: "youth"})
	ev := events.Event{Op: events.OpCreate, DocID: src.ID, After: &src}

	// At-least-once delivery: the same event twice must not duplicate the
	// copy; the (org_id, member_id) upsert converges.
	if err := s.engine.Handle(ctx, ev); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if err := s.engine.Handle(ctx, ev); err != nil {
		t.Fatalf("Handle (redelivery): %v", err)
	}

	n, err := s.f.DB().Collection("members").CountDocuments(ctx,
		bson.M{"org_id": s.ownMirror.ID, "member_id": src.MemberID})
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 1 {
		t.Errorf("mirror copies = %d, want 1", n)
	}
}

func TestForwardMinistryChangeMovesCopy(t *testing.T) {
	ctx, s := setupScenario(t)

	// A third admin subscribed only to "choir".
	choirMirror := s.f.CreateOrganization(ctx, "Choir Mirror", "Asia/Seoul")
	s.f.CreateAdmin(ctx, testutil.AdminSpec{
		FullName:    "Choir Admin",
		Email:       "choir@example.com",
		MirrorOrgID: &choirMirror.ID,
		Ministries:  []string{"choir"},
	})

	src := s.f.CreateMember(ctx, s.source.ID, testutil.MemberSpec{FullName: "Park Jisoo", Ministry: "youth"})
	if err := s.engine.Handle(ctx, events.Event{Op: events.OpCreate, DocID: src.ID, After: &src}); err != nil {
		t.Fatalf("Handle create: %v", err)
	}
	if _, ok := s.mirrorCopy(ctx, t, s.subMirror.ID, src.MemberID); !ok {
		t.Fatal("expected copy in youth mirror before the move")
	}

	moved := src
	moved.Ministry = "choir"
	if err := s.engine.Handle(ctx, events.Event{Op: events.OpUpdate, DocID: src.ID, Before: &src, After: &moved}); err != nil {
		t.Fatalf("Handle update: %v", err)
	}

	if _, ok := s.mirrorCopy(ctx, t, s.subMirror.ID, src.MemberID); ok {
		t.Error("copy must be removed from youth-only mirror after ministry change")
	}
	if _, ok := s.mirrorCopy(ctx, t, choirMirror.ID, src.MemberID); !ok {
		t.Error("copy must appear in choir mirror after ministry change")
	}
}

func TestForwardDeleteRemovesCopies(t *testing.T) {
	ctx, s := setupScenario(t)

	src := s.f.CreateMember(ctx, s.source.ID, testutil.MemberSpec{FullName: "Choi Hana", Ministry: "youth"})
	if err := s.engine.Handle(ctx, events.Event{Op: events.OpCreate, DocID: src.ID, After: &src}); err != nil {
		t.Fatalf("Handle create: %v", err)
	}

	if err := s.engine.Handle(ctx, events.Event{Op: events.OpDelete, DocID: src.ID, Before: &src}); err != nil {
		t.Fatalf("Handle delete: %v", err)
	}

	for _, orgID := range []primitive.ObjectID{s.ownMirror.ID, s.subMirror.ID} {
		if _, ok := s.mirrorCopy(ctx, t, orgID, src.MemberID); ok {
			t.Errorf("copy in org %s must be removed after source delete", orgID.Hex())
		}
	}
}

func TestForwardSkipsReverseSyncWrite(t *testing.T) {
	ctx, s := setupScenario(t)

	// The after image looks like what reverse sync just wrote onto the
	// source record: fresh synced_back, origin source.
	src := s.f.CreateMember(ctx, s.source.ID, testutil.MemberSpec{FullName: "Jang Wooj", Ministry: "youth"})
	tagged := src
	tagged.SyncOrigin = models.OriginSource
	tagged.SyncedBack = &models.SyncMeta{OrgID: s.ownMirror.ID, At: time.Now().UTC()}

	ev := events.Event{Op: events.OpUpdate, DocID: src.ID, Before: &src, After: &tagged}
	if err := s.engine.Handle(ctx, ev); err != nil {
		t.Fatalf("Handle: %v", err)
	}

	if _, ok := s.mirrorCopy(ctx, t, s.ownMirror.ID, src.MemberID); ok {
		t.Error("reverse-sync write must not fan back out to mirrors")
	}
}

func TestReversePropagatesAllowlist(t *testing.T) {
	ctx, s := setupScenario(t)

	src := s.f.CreateMember(ctx, s.source.ID, testutil.MemberSpec{
		FullName: "Yoon Seoyeon",
		Phone:    "010-0000-0000",
		Ministry: "youth",
	})
	copyBefore := s.f.CreateMirrorMember(ctx, s.ownMirror.ID, s.source.ID, src)

	// Someone edits the phone number on the mirror copy.
	copyAfter := copyBefore
	copyAfter.Phone = "010-9999-8888"

	ev := events.Event{Op: events.OpUpdate, DocID: copyBefore.ID, Before: &copyBefore, After: &copyAfter}
	if err := s.engine.Handle(ctx, ev); err != nil {
		t.Fatalf("Handle: %v", err)
	}

	got, err := s.engine.members.Get(ctx, s.source.ID, src.MemberID)
	if err != nil {
		t.Fatalf("load source record: %v", err)
	}
	if got.Phone != "010-9999-8888" {
		t.Errorf("source phone = %q, want propagated value", got.Phone)
	}
	if got.SyncedBack == nil || got.SyncedBack.OrgID != s.ownMirror.ID {
		t.Errorf("synced_back = %+v, want mirror org tag", got.SyncedBack)
	}
	if got.SyncOrigin != models.OriginSource {
		t.Errorf("sync_origin = %q, want %q", got.SyncOrigin, models.OriginSource)
	}
}

func TestReverseIgnoresDeleteAndFreshForwardWrite(t *testing.T) {
	ctx, s := setupScenario(t)

	src := s.f.CreateMember(ctx, s.source.ID, testutil.MemberSpec{FullName: "Han Jiwoo", Ministry: "youth"})
	copy := s.f.CreateMirrorMember(ctx, s.ownMirror.ID, s.source.ID, src)

	// Deleting a mirror copy must not delete or touch the source.
	if err := s.engine.Handle(ctx, events.Event{Op: events.OpDelete, DocID: copy.ID, Before: &copy}); err != nil {
		t.Fatalf("Handle delete: %v", err)
	}
	got, err := s.engine.members.Get(ctx, s.source.ID, src.MemberID)
	if err != nil {
		t.Fatalf("source record lost: %v", err)
	}
	if got.SyncedBack != nil {
		t.Error("mirror delete must not stamp the source")
	}

	// A freshly forward-synced copy (no before image, fresh synced_from)
	// must not bounce back.
	if err := s.engine.Handle(ctx, events.Event{Op: events.OpCreate, DocID: copy.ID, After: &copy}); err != nil {
		t.Fatalf("Handle create: %v", err)
	}
	got, _ = s.engine.members.Get(ctx, s.source.ID, src.MemberID)
	if got.SyncedBack != nil {
		t.Error("forward-sync write must not trigger reverse sync")
	}
}

func TestBackfill(t *testing.T) {
	ctx, s := setupScenario(t)

	s.f.CreateMember(ctx, s.source.ID, testutil.MemberSpec{FullName: "B1", Ministry: "youth"})
	s.f.CreateMember(ctx, s.source.ID, testutil.MemberSpec{FullName: "B2", Ministry: "youth"})
	s.f.CreateMember(ctx, s.source.ID, testutil.MemberSpec{FullName: "No Ministry"})
	inactive := false
	s.f.CreateMember(ctx, s.source.ID, testutil.MemberSpec{FullName: "Inactive", Ministry: "youth", IsActive: &inactive})

	res, err := s.engine.Backfill(ctx, s.source.ID)
	if err != nil {
		t.Fatalf("Backfill: %v", err)
	}
	if res.Members != 2 {
		t.Errorf("members = %d, want 2 (ministry-less and inactive excluded)", res.Members)
	}
	// Two members fanned out to two mirror orgs.
	if res.Writes != 4 {
		t.Errorf("writes = %d, want 4", res.Writes)
	}

	// Idempotence: running again converges with no extra documents.
	if _, err := s.engine.Backfill(ctx, s.source.ID); err != nil {
		t.Fatalf("Backfill (again): %v", err)
	}
	n, err := s.f.DB().Collection("members").CountDocuments(ctx, bson.M{"org_id": s.ownMirror.ID})
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 2 {
		t.Errorf("mirror org documents = %d, want 2", n)
	}
}

func TestBackfillRejectsNonSource(t *testing.T) {
	ctx, s := setupScenario(t)

	_, err := s.engine.Backfill(ctx, s.ownMirror.ID)
	if !errors.Is(err, ErrNotSource) {
		t.Errorf("Backfill(mirror org) error = %v, want ErrNotSource", err)
	}
}

func TestCrossMinistrySync(t *testing.T) {
	ctx, s := setupScenario(t)

	s.f.CreateMember(ctx, s.source.ID, testutil.MemberSpec{FullName: "C1", Ministry: "youth"})
	s.f.CreateMember(ctx, s.source.ID, testutil.MemberSpec{FullName: "C2", Ministry: "choir"})

	res, err := s.engine.CrossMinistrySync(ctx, "youth")
	if err != nil {
		t.Fatalf("CrossMinistrySync: %v", err)
	}
	if res.Members != 1 {
		t.Errorf("members = %d, want 1 (only the youth record)", res.Members)
	}

	if _, ok := s.mirrorCopy(ctx, t, s.subMirror.ID, mustMemberID(ctx, t, s, "C1")); !ok {
		t.Error("youth record must land in subscriber mirror")
	}
	if _, ok := s.mirrorCopy(ctx, t, s.subMirror.ID, mustMemberID(ctx, t, s, "C2")); ok {
		t.Error("choir record must not land in youth mirrors")
	}
}

func mustMemberID(ctx context.Context, t *testing.T, s *scenario, fullName string) primitive.ObjectID {
	t.Helper()
	var m models.Member
	err := s.f.DB().Collection("members").FindOne(ctx,
		bson.M{"org_id": s.source.ID, "full_name": fullName}).Decode(&m)
	if err != nil {
		t.Fatalf("find member %q: %v", fullName, err)
	}
	return m.MemberID
}
