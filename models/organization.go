package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Membership statuses. Only active and registered members generate
// commission for their organization.
const (
	MemberStatusActive     = "active"
	MemberStatusRegistered = "registered"
	MemberStatusInvited    = "invited"
	MemberStatusRemoved    = "removed"
)

// CommissionableMemberStatuses are the membership states that qualify a
// buyer's purchases for the organization's revenue share.
var CommissionableMemberStatuses = []string{MemberStatusActive, MemberStatusRegistered}

// Organization is a partner organization earning revenue share on its
// members' package purchases.
type Organization struct {
	ID                    primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Name                  string             `bson:"name" json:"name"`
	ContactEmail          string             `bson:"contactEmail" json:"contactEmail"`
	CommissionRatePercent float64            `bson:"commissionRatePercent" json:"commissionRatePercent"`
	MinimumGuarantee      float64            `bson:"minimumGuarantee" json:"minimumGuarantee"`
	MemberDiscountPercent float64            `bson:"memberDiscountPercent" json:"memberDiscountPercent"`
	PayoutSchedule        string             `bson:"payoutSchedule" json:"payoutSchedule"` // daily, weekly, monthly
	IsActive              bool               `bson:"isActive" json:"isActive"`
	CreatedAt             time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt             time.Time          `bson:"updatedAt" json:"updatedAt"`
}

// OrganizationMember maps a user to an organization with a membership
// status.
type OrganizationMember struct {
	ID             primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	OrganizationID primitive.ObjectID `bson:"organizationId" json:"organizationId"`
	UserID         primitive.ObjectID `bson:"userId" json:"userId"`
	Status         string             `bson:"status" json:"status"`
	JoinedAt       time.Time          `bson:"joinedAt" json:"joinedAt"`
	UpdatedAt      time.Time          `bson:"updatedAt" json:"updatedAt"`
}

// CreateOrganizationRequest is the admin payload for registering a partner
// organization.
type CreateOrganizationRequest struct {
	Name                  string  `json:"name" validate:"required"`
	ContactEmail          string  `json:"contactEmail" validate:"required,email"`
	CommissionRatePercent float64 `json:"commissionRatePercent" validate:"gte=0,lte=100"`
	MinimumGuarantee      float64 `json:"minimumGuarantee" validate:"gte=0"`
	MemberDiscountPercent float64 `json:"memberDiscountPercent" validate:"gte=0,lte=100"`
	PayoutSchedule        string  `json:"payoutSchedule" validate:"omitempty,oneof=daily weekly monthly"`
}

// AddMemberRequest attaches a user to an organization.
type AddMemberRequest struct {
	UserID string `json:"userId" validate:"required"`
	Status string `json:"status" validate:"omitempty,oneof=active registered invited removed"`
}

// UpdateMemberStatusRequest changes a member's status.
type UpdateMemberStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=active registered invited removed"`
}
