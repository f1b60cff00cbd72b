package repositories

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/edupartner/edupartner_backend/models"
)

// OrganizationRepository reads and maintains partner organizations and
// their memberships.
type OrganizationRepository struct {
	orgs    *mongo.Collection
	members *mongo.Collection
}

// NewOrganizationRepository creates an organization repository.
func NewOrganizationRepository(db *mongo.Database) *OrganizationRepository {
	return &OrganizationRepository{
		orgs:    db.Collection("organizations"),
		members: db.Collection("organization_members"),
	}
}

// ActiveMembership resolves the commissionable membership for a buyer, if
// any. A buyer with no active/registered membership, or whose organization
// is inactive, yields (nil, nil, nil) - not an error, per the reconciler's
// contract.
func (r *OrganizationRepository) ActiveMembership(ctx context.Context, userID primitive.ObjectID) (*models.OrganizationMember, *models.Organization, error) {
	var member models.OrganizationMember
	err := r.members.FindOne(ctx, bson.M{
		"userId": userID,
		"status": bson.M{"$in": models.CommissionableMemberStatuses},
	}).Decode(&member)
	if err == mongo.ErrNoDocuments {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to look up organization membership: %w", err)
	}

	var org models.Organization
	err = r.orgs.FindOne(ctx, bson.M{
		"_id":      member.OrganizationID,
		"isActive": true,
	}).Decode(&org)
	if err == mongo.ErrNoDocuments {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load organization: %w", err)
	}

	return &member, &org, nil
}

// CreateOrganization stores a new partner organization.
func (r *OrganizationRepository) CreateOrganization(ctx context.Context, org *models.Organization) error {
	if org.ID.IsZero() {
		org.ID = primitive.NewObjectID()
	}
	now := time.Now().UTC()
	org.CreatedAt = now
	org.UpdatedAt = now
	if org.PayoutSchedule == "" {
		org.PayoutSchedule = models.PeriodTypeMonthly
	}

	_, err := r.orgs.InsertOne(ctx, org)
	if err != nil {
		return fmt.Errorf("failed to create organization: %w", err)
	}
	return nil
}

// FindOrganization loads one organization by id.
func (r *OrganizationRepository) FindOrganization(ctx context.Context, id primitive.ObjectID) (*models.Organization, error) {
	var org models.Organization
	err := r.orgs.FindOne(ctx, bson.M{"_id": id}).Decode(&org)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load organization: %w", err)
	}
	return &org, nil
}

// AddMember attaches a user to an organization. A user belongs to at most
// one organization; the unique userId index rejects double enrollment.
func (r *OrganizationRepository) AddMember(ctx context.Context, member *models.OrganizationMember) error {
	if member.ID.IsZero() {
		member.ID = primitive.NewObjectID()
	}
	now := time.Now().UTC()
	member.JoinedAt = now
	member.UpdatedAt = now
	if member.Status == "" {
		member.Status = models.MemberStatusInvited
	}

	_, err := r.members.InsertOne(ctx, member)
	if err != nil {
		return fmt.Errorf("failed to add organization member: %w", err)
	}
	return nil
}

// UpdateMemberStatus changes a member's status.
func (r *OrganizationRepository) UpdateMemberStatus(ctx context.Context, orgID, userID primitive.ObjectID, status string) (bool, error) {
	res, err := r.members.UpdateOne(ctx,
		bson.M{"organizationId": orgID, "userId": userID},
		bson.M{"$set": bson.M{"status": status, "updatedAt": time.Now().UTC()}},
	)
	if err != nil {
		return false, fmt.Errorf("failed to update member status: %w", err)
	}
	return res.MatchedCount == 1, nil
}

// ListMembers returns all members of an organization.
func (r *OrganizationRepository) ListMembers(ctx context.Context, orgID primitive.ObjectID) ([]models.OrganizationMember, error) {
	cursor, err := r.members.Find(ctx, bson.M{"organizationId": orgID})
	if err != nil {
		return nil, fmt.Errorf("failed to list organization members: %w", err)
	}
	defer cursor.Close(ctx)

	var members []models.OrganizationMember
	if err := cursor.All(ctx, &members); err != nil {
		return nil, fmt.Errorf("failed to decode organization members: %w", err)
	}
	return members, nil
}
