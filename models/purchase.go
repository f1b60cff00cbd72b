package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Purchase statuses. A purchase transitions from pending to captured or
// failed exactly once and is never mutated afterwards.
const (
	PurchaseStatusPending  = "pending"
	PurchaseStatusCaptured = "captured"
	PurchaseStatusFailed   = "failed"
)

// Purchase is one buyer's package purchase routed through the payment
// gateway. ExternalID correlates gateway callbacks with the purchase.
type Purchase struct {
	ID         primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	ExternalID int64              `bson:"externalId" json:"externalId"`
	BuyerID    primitive.ObjectID `bson:"buyerId" json:"buyerId"`
	PackageID  primitive.ObjectID `bson:"packageId" json:"packageId"`
	Amount     float64            `bson:"amount" json:"amount"`
	Status     string             `bson:"status" json:"status"`
	CollectURL string             `bson:"collectUrl,omitempty" json:"collectUrl,omitempty"`
	PayerPhone string             `bson:"payerPhone,omitempty" json:"payerPhone,omitempty"`
	CreatedAt  time.Time          `bson:"createdAt" json:"createdAt"`
	CapturedAt *time.Time         `bson:"capturedAt,omitempty" json:"capturedAt,omitempty"`
}

// PriceAdjustment is the discount audit record written when a discount
// program applies to a purchase. Commission is computed on FinalPrice when
// one exists.
type PriceAdjustment struct {
	ID            primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	PurchaseID    primitive.ObjectID `bson:"purchaseId" json:"purchaseId"`
	OriginalPrice float64            `bson:"originalPrice" json:"originalPrice"`
	FinalPrice    float64            `bson:"finalPrice" json:"finalPrice"`
	Reason        string             `bson:"reason" json:"reason"`
	CreatedAt     time.Time          `bson:"createdAt" json:"createdAt"`
}

// Enrollment grants a buyer access to a package after a captured purchase.
type Enrollment struct {
	ID         primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	UserID     primitive.ObjectID `bson:"userId" json:"userId"`
	PackageID  primitive.ObjectID `bson:"packageId" json:"packageId"`
	PurchaseID primitive.ObjectID `bson:"purchaseId" json:"purchaseId"`
	GrantedAt  time.Time          `bson:"grantedAt" json:"grantedAt"`
}

// CreatePurchaseRequest initiates a gateway payment for a package.
type CreatePurchaseRequest struct {
	PackageID string `json:"packageId" validate:"required"`
}
