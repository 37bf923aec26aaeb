package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/dalemusser/attendhub/internal/domain/models"
	"github.com/dalemusser/waffle/pantry/text"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

// Fixtures provides helper methods for creating test data.
type Fixtures struct {
	db *mongo.Database
	t  *testing.T
}

// NewFixtures creates a new Fixtures instance for the given test database.
func NewFixtures(t *testing.T, db *mongo.Database) *Fixtures {
	t.Helper()
	return &Fixtures{db: db, t: t}
}

// DB returns the underlying database for direct access in tests.
func (f *Fixtures) DB() *mongo.Database {
	return f.db
}

// CreateOrganization creates a test organization in the given timezone.
// Returns the created organization with its generated ID.
func (f *Fixtures) CreateOrganization(ctx context.Context, name, tz string) models.Organization {
	f.t.Helper()

	now := time.Now().UTC()
	org := models.Organization{
		ID:     primitive.NewObjectID(),
		Name:   name,
		NameCI: text.Fold(name),
		Settings: models.OrgSettings{
			TimeZone: tz,
		},
		Status:    "active",
		CreatedAt: now,
		UpdatedAt: now,
	}

	_, err := f.db.Collection("organizations").InsertOne(ctx, org)
	if err != nil {
		f.t.Fatalf("failed to create test organization: %v", err)
	}

	return org
}

// CreateOwnedOrganization creates an organization owned by the given admin
// and records it in the admin's managed set.
func (f *Fixtures) CreateOwnedOrganization(ctx context.Context, name, tz string, owner models.User) models.Organization {
	f.t.Helper()

	org := f.CreateOrganization(ctx, name, tz)
	_, err := f.db.Collection("organizations").UpdateByID(ctx, org.ID,
		map[string]any{"$set": map[string]any{"owner_id": owner.ID}})
	if err != nil {
		f.t.Fatalf("failed to set organization owner: %v", err)
	}
	org.OwnerID = owner.ID

	_, err = f.db.Collection("users").UpdateByID(ctx, owner.ID,
		map[string]any{"$addToSet": map[string]any{"managed_org_ids": org.ID}})
	if err != nil {
		f.t.Fatalf("failed to add managed org to owner: %v", err)
	}
	return org
}

// AdminSpec describes the admin profile a test needs.
type AdminSpec struct {
	FullName     string
	Email        string
	DefaultOrgID *primitive.ObjectID
	MirrorOrgID  *primitive.ObjectID
	Ministries   []string
}

// CreateAdmin creates a test admin user from the spec.
func (f *Fixtures) CreateAdmin(ctx context.Context, spec AdminSpec) models.User {
	f.t.Helper()

	now := time.Now().UTC()
	user := models.User{
		ID:           primitive.NewObjectID(),
		FullName:     spec.FullName,
		FullNameCI:   text.Fold(spec.FullName),
		Email:        spec.Email,
		Role:         models.RoleAdmin,
		Status:       "active",
		DefaultOrgID: spec.DefaultOrgID,
		MirrorOrgID:  spec.MirrorOrgID,
		Ministries:   spec.Ministries,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	_, err := f.db.Collection("users").InsertOne(ctx, user)
	if err != nil {
		f.t.Fatalf("failed to create test admin: %v", err)
	}

	return user
}

// SetOrgOwner points an existing organization at its owner admin.
func (f *Fixtures) SetOrgOwner(ctx context.Context, orgID, ownerID primitive.ObjectID) {
	f.t.Helper()
	_, err := f.db.Collection("organizations").UpdateByID(ctx, orgID,
		map[string]any{"$set": map[string]any{"owner_id": ownerID}})
	if err != nil {
		f.t.Fatalf("failed to set organization owner: %v", err)
	}
}

// SetManagedOrgs replaces an admin's managed-org set.
func (f *Fixtures) SetManagedOrgs(ctx context.Context, adminID primitive.ObjectID, orgIDs ...primitive.ObjectID) {
	f.t.Helper()
	_, err := f.db.Collection("users").UpdateByID(ctx, adminID,
		map[string]any{"$set": map[string]any{"managed_org_ids": orgIDs}})
	if err != nil {
		f.t.Fatalf("failed to set managed orgs: %v", err)
	}
}

// MemberSpec describes a member record a test needs; zero values get
// sensible defaults (active, unfrozen, no ministry).
type MemberSpec struct {
	MemberID primitive.ObjectID // zero means generate one
	FullName string
	Phone    string
	Email    string
	Ministry string
	IsActive *bool
	IsFrozen bool
}

// CreateMember creates a source member record in the given organization.
func (f *Fixtures) CreateMember(ctx context.Context, orgID primitive.ObjectID, spec MemberSpec) models.Member {
	f.t.Helper()

	if spec.MemberID.IsZero() {
		spec.MemberID = primitive.NewObjectID()
	}
	now := time.Now().UTC()
	m := models.Member{
		ID:         primitive.NewObjectID(),
		MemberID:   spec.MemberID,
		OrgID:      orgID,
		FullName:   spec.FullName,
		FullNameCI: text.Fold(spec.FullName),
		Phone:      spec.Phone,
		Email:      spec.Email,
		Ministry:   spec.Ministry,
		IsActive:   spec.IsActive,
		IsFrozen:   spec.IsFrozen,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	_, err := f.db.Collection("members").InsertOne(ctx, m)
	if err != nil {
		f.t.Fatalf("failed to create test member: %v", err)
	}

	return m
}

// CreateMirrorMember creates a mirror copy of src in mirrorOrg, tagged as
// synced from sourceOrg the way the forward sync writes it.
func (f *Fixtures) CreateMirrorMember(ctx context.Context, mirrorOrg, sourceOrg primitive.ObjectID, src models.Member) models.Member {
	f.t.Helper()

	now := time.Now().UTC()
	m := models.Member{
		ID:         primitive.NewObjectID(),
		MemberID:   src.MemberID,
		OrgID:      mirrorOrg,
		FullName:   src.FullName,
		FullNameCI: src.FullNameCI,
		Phone:      src.Phone,
		Email:      src.Email,
		Ministry:   src.Ministry,
		IsFrozen:   src.IsFrozen,
		SyncedFrom: &models.SyncMeta{OrgID: sourceOrg, At: now},
		SyncOrigin: models.OriginMirror,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	_, err := f.db.Collection("members").InsertOne(ctx, m)
	if err != nil {
		f.t.Fatalf("failed to create test mirror member: %v", err)
	}

	return m
}

// CreateDailyStatus writes a status record for the member on the given
// org-local date.
func (f *Fixtures) CreateDailyStatus(ctx context.Context, orgID, memberID primitive.ObjectID, date, status, markedBy string) models.DailyStatus {
	f.t.Helper()

	now := time.Now().UTC()
	ds := models.DailyStatus{
		ID:        primitive.NewObjectID(),
		OrgID:     orgID,
		MemberID:  memberID,
		Date:      date,
		Status:    status,
		MarkedBy:  markedBy,
		CreatedAt: now,
		UpdatedAt: now,
	}

	_, err := f.db.Collection("daily_statuses").InsertOne(ctx, ds)
	if err != nil {
		f.t.Fatalf("failed to create test daily status: %v", err)
	}

	return ds
}
