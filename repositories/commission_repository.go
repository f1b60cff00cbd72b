package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/edupartner/edupartner_backend/models"
)

var (
	// ErrOpenLedgerExists signals that another writer opened the ledger for
	// this organization and period first. The caller retries the merge.
	ErrOpenLedgerExists = errors.New("open ledger already exists for this organization and period")

	// ErrLedgerNotFound is returned when no ledger matches the given id.
	ErrLedgerNotFound = errors.New("commission ledger not found")

	// ErrLedgerAlreadyPaid rejects payout finalization of a paid ledger.
	ErrLedgerAlreadyPaid = errors.New("commission ledger is already paid")

	// ErrStatusConflict is returned when a conditional status update lost
	// to a concurrent writer.
	ErrStatusConflict = errors.New("ledger status changed concurrently")
)

// CommissionRepository persists commission ledgers and their audit trail.
type CommissionRepository struct {
	ledgers *mongo.Collection
	audits  *mongo.Collection
}

// NewCommissionRepository creates a ledger repository over the database.
func NewCommissionRepository(db *mongo.Database) *CommissionRepository {
	return &CommissionRepository{
		ledgers: db.Collection("commission_ledgers"),
		audits:  db.Collection("commission_audit_logs"),
	}
}

// ContainsPurchase reports whether any ledger, open or closed, already
// carries a line item for the purchase. This query backs the reconciler's
// at-most-once guarantee and is served by the lineItems.purchaseId index.
func (r *CommissionRepository) ContainsPurchase(ctx context.Context, purchaseID primitive.ObjectID) (bool, error) {
	err := r.ledgers.FindOne(ctx,
		bson.M{"lineItems.purchaseId": purchaseID},
		options.FindOne().SetProjection(bson.M{"_id": 1}),
	).Err()
	if err == mongo.ErrNoDocuments {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check ledger line items: %w", err)
	}
	return true, nil
}

// AppendLineItem merges a purchase into the open ledger for the
// organization's period in a single conditional document write. The filter
// requires an open status and the purchase id to be absent, so a duplicate
// delivery or a payout racing the append can never double-count; the
// pipeline recomputes the aggregates atomically with the append. Returns
// false when no open ledger matched (none exists, or this purchase is
// already in it).
func (r *CommissionRepository) AppendLineItem(ctx context.Context, orgID primitive.ObjectID, periodType string, periodStart, periodEnd time.Time, item models.CommissionLineItem) (bool, error) {
	now := time.Now().UTC()
	payout := models.CommissionPayout{
		PurchaseID: item.PurchaseID,
		Amount:     item.CommissionAmount,
		Status:     models.PayoutStatusPending,
	}

	filter := bson.M{
		"organizationId":       orgID,
		"periodType":           periodType,
		"periodStart":          periodStart,
		"periodEnd":            periodEnd,
		"status":               bson.M{"$in": models.OpenLedgerStatuses},
		"lineItems.purchaseId": bson.M{"$ne": item.PurchaseID},
	}

	update := mongo.Pipeline{
		bson.D{{Key: "$set", Value: bson.D{
			{Key: "lineItems", Value: bson.D{{Key: "$concatArrays", Value: bson.A{
				"$lineItems", bson.A{bson.D{{Key: "$literal", Value: item}}},
			}}}},
			{Key: "payouts", Value: bson.D{{Key: "$concatArrays", Value: bson.A{
				"$payouts", bson.A{bson.D{{Key: "$literal", Value: payout}}},
			}}}},
			{Key: "totalSales", Value: bson.D{{Key: "$round", Value: bson.A{
				bson.D{{Key: "$add", Value: bson.A{"$totalSales", item.Amount}}}, 2,
			}}}},
			{Key: "lineItemCount", Value: bson.D{{Key: "$add", Value: bson.A{"$lineItemCount", 1}}}},
			{Key: "totalCommission", Value: bson.D{{Key: "$round", Value: bson.A{
				bson.D{{Key: "$add", Value: bson.A{"$totalCommission", item.CommissionAmount}}}, 2,
			}}}},
			{Key: "finalAmount", Value: bson.D{{Key: "$max", Value: bson.A{
				bson.D{{Key: "$round", Value: bson.A{
					bson.D{{Key: "$add", Value: bson.A{"$totalCommission", item.CommissionAmount, "$bonusAmount"}}}, 2,
				}}},
				"$minimumGuarantee",
			}}}},
			{Key: "calculatedAt", Value: now},
			{Key: "updatedAt", Value: now},
			{Key: "revision", Value: bson.D{{Key: "$add", Value: bson.A{"$revision", 1}}}},
		}}},
	}

	res, err := r.ledgers.UpdateOne(ctx, filter, update)
	if err != nil {
		return false, fmt.Errorf("failed to append ledger line item: %w", err)
	}
	return res.MatchedCount == 1, nil
}

// InsertLedger opens a new ledger document. The partial unique index on
// (organizationId, periodType, periodStart, periodEnd) over open statuses
// turns a create race into ErrOpenLedgerExists.
func (r *CommissionRepository) InsertLedger(ctx context.Context, ledger *models.CommissionLedger) error {
	_, err := r.ledgers.InsertOne(ctx, ledger)
	if mongo.IsDuplicateKeyError(err) {
		return ErrOpenLedgerExists
	}
	if err != nil {
		return fmt.Errorf("failed to insert commission ledger: %w", err)
	}
	return nil
}

// FindByID loads one ledger.
func (r *CommissionRepository) FindByID(ctx context.Context, id primitive.ObjectID) (*models.CommissionLedger, error) {
	var ledger models.CommissionLedger
	err := r.ledgers.FindOne(ctx, bson.M{"_id": id}).Decode(&ledger)
	if err == mongo.ErrNoDocuments {
		return nil, ErrLedgerNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load commission ledger: %w", err)
	}
	return &ledger, nil
}

// MarkPaid finalizes a ledger payout: one conditional update sets the
// ledger status, the audit stamps, the payment-details mirror, and flips
// every embedded payout to paid with the same transaction metadata. The
// status guard makes the transition mutually exclusive with an in-flight
// reconciler append (whose filter requires an open status) and rejects a
// second finalization without touching the first call's metadata.
func (r *CommissionRepository) MarkPaid(ctx context.Context, id primitive.ObjectID, actor string, details models.PaymentDetails) (*models.CommissionLedger, error) {
	now := time.Now().UTC()
	details.PaidAt = &now

	filter := bson.M{
		"_id":    id,
		"status": bson.M{"$ne": models.LedgerStatusPaid},
	}
	update := bson.M{
		"$set": bson.M{
			"status":                     models.LedgerStatusPaid,
			"processedBy":                actor,
			"processedAt":                now,
			"updatedAt":                  now,
			"paymentDetails":             details,
			"payouts.$[].status":         models.PayoutStatusPaid,
			"payouts.$[].transactionRef": details.TransactionRef,
			"payouts.$[].paymentMethod":  details.PaymentMethod,
			"payouts.$[].notes":          details.Notes,
			"payouts.$[].paidAt":         now,
		},
		"$inc": bson.M{"revision": 1},
	}

	var ledger models.CommissionLedger
	err := r.ledgers.FindOneAndUpdate(ctx, filter, update,
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&ledger)
	if err == mongo.ErrNoDocuments {
		// Distinguish "missing" from "already paid" for the admin caller.
		if _, findErr := r.FindByID(ctx, id); findErr != nil {
			return nil, findErr
		}
		return nil, ErrLedgerAlreadyPaid
	}
	if err != nil {
		return nil, fmt.Errorf("failed to mark ledger paid: %w", err)
	}
	return &ledger, nil
}

// UpdateStatus moves a ledger from an expected current status to a new one.
// The caller validates the transition against the central table first; the
// conditional filter turns a concurrent change into ErrStatusConflict.
func (r *CommissionRepository) UpdateStatus(ctx context.Context, id primitive.ObjectID, fromStatus, toStatus string) (*models.CommissionLedger, error) {
	now := time.Now().UTC()
	filter := bson.M{"_id": id, "status": fromStatus}
	update := bson.M{
		"$set": bson.M{"status": toStatus, "updatedAt": now},
		"$inc": bson.M{"revision": 1},
	}

	var ledger models.CommissionLedger
	err := r.ledgers.FindOneAndUpdate(ctx, filter, update,
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&ledger)
	if err == mongo.ErrNoDocuments {
		if _, findErr := r.FindByID(ctx, id); findErr != nil {
			return nil, findErr
		}
		return nil, ErrStatusConflict
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update ledger status: %w", err)
	}
	return &ledger, nil
}

// LedgerFilter narrows the admin ledger listing.
type LedgerFilter struct {
	Status         string
	OrganizationID primitive.ObjectID
	From           *time.Time
	To             *time.Time
	Page           int64
	Limit          int64
}

// List returns a page of ledgers plus the total match count, newest first.
func (r *CommissionRepository) List(ctx context.Context, f LedgerFilter) ([]models.CommissionLedger, int64, error) {
	filter := bson.M{}
	if f.Status != "" {
		filter["status"] = f.Status
	}
	if !f.OrganizationID.IsZero() {
		filter["organizationId"] = f.OrganizationID
	}
	if f.From != nil || f.To != nil {
		window := bson.M{}
		if f.From != nil {
			window["$gte"] = *f.From
		}
		if f.To != nil {
			window["$lt"] = *f.To
		}
		filter["periodStart"] = window
	}

	total, err := r.ledgers.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count commission ledgers: %w", err)
	}

	page := f.Page
	if page < 1 {
		page = 1
	}
	limit := f.Limit
	if limit < 1 || limit > 100 {
		limit = 20
	}

	cursor, err := r.ledgers.Find(ctx, filter, options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: -1}}).
		SetSkip((page-1)*limit).
		SetLimit(limit))
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list commission ledgers: %w", err)
	}
	defer cursor.Close(ctx)

	var ledgers []models.CommissionLedger
	if err := cursor.All(ctx, &ledgers); err != nil {
		return nil, 0, fmt.Errorf("failed to decode commission ledgers: %w", err)
	}
	return ledgers, total, nil
}

// LedgerStatusSummary is one row of the dashboard summary aggregation.
type LedgerStatusSummary struct {
	Status          string  `bson:"_id" json:"status"`
	Count           int64   `bson:"count" json:"count"`
	TotalSales      float64 `bson:"totalSales" json:"totalSales"`
	TotalCommission float64 `bson:"totalCommission" json:"totalCommission"`
	FinalAmount     float64 `bson:"finalAmount" json:"finalAmount"`
}

// Summary groups ledger counts and amounts by status.
func (r *CommissionRepository) Summary(ctx context.Context) ([]LedgerStatusSummary, error) {
	pipeline := mongo.Pipeline{
		bson.D{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: "$status"},
			{Key: "count", Value: bson.D{{Key: "$sum", Value: 1}}},
			{Key: "totalSales", Value: bson.D{{Key: "$sum", Value: "$totalSales"}}},
			{Key: "totalCommission", Value: bson.D{{Key: "$sum", Value: "$totalCommission"}}},
			{Key: "finalAmount", Value: bson.D{{Key: "$sum", Value: "$finalAmount"}}},
		}}},
		bson.D{{Key: "$sort", Value: bson.D{{Key: "_id", Value: 1}}}},
	}

	cursor, err := r.ledgers.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate ledger summary: %w", err)
	}
	defer cursor.Close(ctx)

	var rows []LedgerStatusSummary
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, fmt.Errorf("failed to decode ledger summary: %w", err)
	}
	return rows, nil
}

// InsertAuditLog records one status transition in the audit trail.
func (r *CommissionRepository) InsertAuditLog(ctx context.Context, entry models.CommissionAuditLog) error {
	if entry.ID.IsZero() {
		entry.ID = primitive.NewObjectID()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	_, err := r.audits.InsertOne(ctx, entry)
	if err != nil {
		return fmt.Errorf("failed to insert commission audit log: %w", err)
	}
	return nil
}
