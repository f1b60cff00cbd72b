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

// PurchaseRepository persists purchases, their discount audit records, and
// the enrollments granted on capture.
type PurchaseRepository struct {
	purchases   *mongo.Collection
	adjustments *mongo.Collection
	enrollments *mongo.Collection
	packages    *mongo.Collection
	users       *mongo.Collection
}

// NewPurchaseRepository creates a purchase repository.
func NewPurchaseRepository(db *mongo.Database) *PurchaseRepository {
	return &PurchaseRepository{
		purchases:   db.Collection("purchases"),
		adjustments: db.Collection("price_adjustments"),
		enrollments: db.Collection("enrollments"),
		packages:    db.Collection("packages"),
		users:       db.Collection("users"),
	}
}

// InsertPurchase stores a new pending purchase.
func (r *PurchaseRepository) InsertPurchase(ctx context.Context, purchase *models.Purchase) error {
	_, err := r.purchases.InsertOne(ctx, purchase)
	if err != nil {
		return fmt.Errorf("failed to insert purchase: %w", err)
	}
	return nil
}

// FindByExternalID resolves a purchase from the gateway correlation id.
// Returns nil when unknown - gateway events for unknown purchases are
// dropped, not retried.
func (r *PurchaseRepository) FindByExternalID(ctx context.Context, externalID int64) (*models.Purchase, error) {
	var purchase models.Purchase
	err := r.purchases.FindOne(ctx, bson.M{"externalId": externalID}).Decode(&purchase)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find purchase by external id: %w", err)
	}
	return &purchase, nil
}

// FindByID loads one purchase.
func (r *PurchaseRepository) FindByID(ctx context.Context, id primitive.ObjectID) (*models.Purchase, error) {
	var purchase models.Purchase
	err := r.purchases.FindOne(ctx, bson.M{"_id": id}).Decode(&purchase)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find purchase: %w", err)
	}
	return &purchase, nil
}

// CapturePurchase transitions a purchase to captured exactly once. Returns
// true only for the call that performed the transition; concurrent webhook
// and synchronous-verification deliveries see false and skip the grant.
func (r *PurchaseRepository) CapturePurchase(ctx context.Context, id primitive.ObjectID, payerPhone string) (bool, error) {
	now := time.Now().UTC()
	res, err := r.purchases.UpdateOne(ctx,
		bson.M{"_id": id, "status": bson.M{"$ne": models.PurchaseStatusCaptured}},
		bson.M{"$set": bson.M{
			"status":     models.PurchaseStatusCaptured,
			"capturedAt": now,
			"payerPhone": payerPhone,
		}},
	)
	if err != nil {
		return false, fmt.Errorf("failed to capture purchase: %w", err)
	}
	return res.ModifiedCount == 1, nil
}

// MarkFailed records a failed gateway collect.
func (r *PurchaseRepository) MarkFailed(ctx context.Context, externalID int64) error {
	_, err := r.purchases.UpdateOne(ctx,
		bson.M{"externalId": externalID, "status": models.PurchaseStatusPending},
		bson.M{"$set": bson.M{"status": models.PurchaseStatusFailed}},
	)
	if err != nil {
		return fmt.Errorf("failed to mark purchase failed: %w", err)
	}
	return nil
}

// GrantEnrollment gives the buyer access to the purchased package.
func (r *PurchaseRepository) GrantEnrollment(ctx context.Context, purchase *models.Purchase) error {
	enrollment := models.Enrollment{
		ID:         primitive.NewObjectID(),
		UserID:     purchase.BuyerID,
		PackageID:  purchase.PackageID,
		PurchaseID: purchase.ID,
		GrantedAt:  time.Now().UTC(),
	}
	_, err := r.enrollments.InsertOne(ctx, enrollment)
	if err != nil {
		return fmt.Errorf("failed to grant enrollment: %w", err)
	}
	return nil
}

// InsertPriceAdjustment writes the discount audit record for a purchase.
func (r *PurchaseRepository) InsertPriceAdjustment(ctx context.Context, adjustment *models.PriceAdjustment) error {
	if adjustment.ID.IsZero() {
		adjustment.ID = primitive.NewObjectID()
	}
	adjustment.CreatedAt = time.Now().UTC()
	_, err := r.adjustments.InsertOne(ctx, adjustment)
	if err != nil {
		return fmt.Errorf("failed to insert price adjustment: %w", err)
	}
	return nil
}

// FinalPrice returns the commissionable price for a purchase: the discount
// audit record's final price when one exists, the raw purchase amount
// otherwise.
func (r *PurchaseRepository) FinalPrice(ctx context.Context, purchase *models.Purchase) (float64, error) {
	var adjustment models.PriceAdjustment
	err := r.adjustments.FindOne(ctx, bson.M{"purchaseId": purchase.ID}).Decode(&adjustment)
	if err == mongo.ErrNoDocuments {
		return purchase.Amount, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to load price adjustment: %w", err)
	}
	return adjustment.FinalPrice, nil
}

// FindPackage loads an active package for purchase creation.
func (r *PurchaseRepository) FindPackage(ctx context.Context, id primitive.ObjectID) (*models.Package, error) {
	var pkg models.Package
	err := r.packages.FindOne(ctx, bson.M{"_id": id, "isActive": true}).Decode(&pkg)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load package: %w", err)
	}
	return &pkg, nil
}

// BuyerName returns the buyer's display name for ledger line items.
func (r *PurchaseRepository) BuyerName(ctx context.Context, userID primitive.ObjectID) (string, error) {
	var user models.User
	err := r.users.FindOne(ctx, bson.M{"_id": userID}).Decode(&user)
	if err == mongo.ErrNoDocuments {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to load buyer: %w", err)
	}
	return user.FullName, nil
}

// PackageName returns the package name for ledger line items.
func (r *PurchaseRepository) PackageName(ctx context.Context, id primitive.ObjectID) (string, error) {
	var pkg models.Package
	err := r.packages.FindOne(ctx, bson.M{"_id": id}).Decode(&pkg)
	if err == mongo.ErrNoDocuments {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to load package: %w", err)
	}
	return pkg.Name, nil
}
