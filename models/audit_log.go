package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// CommissionAuditLog records one ledger status transition for the staff
// audit trail. Written on every transition, including payout finalization.
type CommissionAuditLog struct {
	ID             primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	LedgerID       primitive.ObjectID `bson:"ledgerId" json:"ledgerId"`
	OrganizationID primitive.ObjectID `bson:"organizationId" json:"organizationId"`
	FromStatus     string             `bson:"fromStatus" json:"fromStatus"`
	ToStatus       string             `bson:"toStatus" json:"toStatus"`
	Actor          string             `bson:"actor" json:"actor"`
	Amount         float64            `bson:"amount" json:"amount"`
	PeriodStart    time.Time          `bson:"periodStart" json:"periodStart"`
	PeriodEnd      time.Time          `bson:"periodEnd" json:"periodEnd"`
	Notes          string             `bson:"notes,omitempty" json:"notes,omitempty"`
	CreatedAt      time.Time          `bson:"createdAt" json:"createdAt"`
}
