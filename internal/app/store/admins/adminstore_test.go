package adminstore

import (
	"testing"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/dalemusser/attendhub/internal/testutil"
)

func TestMirrorOrgsForMinistry(t *testing.T) {
	ctx := testutil.TestContext(t)
	db := testutil.SetupTestDB(t)
	f := testutil.NewFixtures(t, db)
	s := New(db)

	youthMirror := primitive.NewObjectID()
	choirMirror := primitive.NewObjectID()

	f.CreateAdmin(ctx, testutil.AdminSpec{
		FullName: "Youth Admin", Email: "y@example.com",
		MirrorOrgID: &youthMirror, Ministries: []string{"youth"},
	})
	f.CreateAdmin(ctx, testutil.AdminSpec{
		FullName: "Choir Admin", Email: "c@example.com",
		MirrorOrgID: &choirMirror, Ministries: []string{"choir"},
	})
	// Subscribed but no mirror org configured: contributes nothing.
	f.CreateAdmin(ctx, testutil.AdminSpec{
		FullName: "No Mirror", Email: "n@example.com",
		Ministries: []string{"youth"},
	})
	// Second youth subscriber sharing the same mirror org: distinct set.
	f.CreateAdmin(ctx, testutil.AdminSpec{
		FullName: "Youth Admin 2", Email: "y2@example.com",
		MirrorOrgID: &youthMirror, Ministries: []string{"youth", "choir"},
	})

	ids, err := s.MirrorOrgsForMinistry(ctx, "youth")
	if err != nil {
		t.Fatalf("MirrorOrgsForMinistry: %v", err)
	}
	if len(ids) != 1 || ids[0] != youthMirror {
		t.Errorf("youth mirror set = %v, want exactly [%s]", ids, youthMirror.Hex())
	}

	ids, err = s.MirrorOrgsForMinistry(ctx, "choir")
	if err != nil {
		t.Fatalf("MirrorOrgsForMinistry: %v", err)
	}
	if len(ids) != 2 {
		t.Errorf("choir mirror set = %v, want both mirror orgs", ids)
	}

	ids, err = s.MirrorOrgsForMinistry(ctx, "nobody")
	if err != nil {
		t.Fatalf("MirrorOrgsForMinistry: %v", err)
	}
	if len(ids) != 0 {
		t.Errorf("unsubscribed ministry set = %v, want empty", ids)
	}
}

func TestIncrementManagedCounts(t *testing.T) {
	ctx := testutil.TestContext(t)
	db := testutil.SetupTestDB(t)
	f := testutil.NewFixtures(t, db)
	s := New(db)

	orgID := primitive.NewObjectID()
	otherOrg := primitive.NewObjectID()

	managing := f.CreateAdmin(ctx, testutil.AdminSpec{FullName: "Managing", Email: "m@example.com"})
	f.SetManagedOrgs(ctx, managing.ID, orgID, otherOrg)
	bystander := f.CreateAdmin(ctx, testutil.AdminSpec{FullName: "Bystander", Email: "b@example.com"})
	f.SetManagedOrgs(ctx, bystander.ID, otherOrg)

	modified, err := s.IncrementManagedCounts(ctx, orgID, 2)
	if err != nil {
		t.Fatalf("IncrementManagedCounts: %v", err)
	}
	if modified != 1 {
		t.Errorf("modified = %d, want 1", modified)
	}

	got, err := s.Get(ctx, managing.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.MemberCount != 2 {
		t.Errorf("managing admin count = %d, want 2", got.MemberCount)
	}

	got, _ = s.Get(ctx, bystander.ID)
	if got.MemberCount != 0 {
		t.Errorf("bystander count = %d, want 0", got.MemberCount)
	}
}
