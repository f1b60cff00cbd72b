package models

import (
	"math"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Ledger statuses. A ledger is "open" (eligible to receive new line items)
// while pending or processed; paid ledgers are frozen.
const (
	LedgerStatusPending   = "pending"
	LedgerStatusProcessed = "processed"
	LedgerStatusPaid      = "paid"
	LedgerStatusDisputed  = "disputed"
)

// Payout statuses for the per-purchase payout sub-ledger.
const (
	PayoutStatusPending  = "pending"
	PayoutStatusPaid     = "paid"
	PayoutStatusDisputed = "disputed"
)

// Period types supported by the commission schedule.
const (
	PeriodTypeDaily   = "daily"
	PeriodTypeWeekly  = "weekly"
	PeriodTypeMonthly = "monthly"
)

// OpenLedgerStatuses are the statuses under which a ledger may still be
// merged into. Once a ledger is paid, a new ledger for the same
// organization and period is opened instead.
var OpenLedgerStatuses = []string{LedgerStatusPending, LedgerStatusProcessed}

// allowedTransitions is the single source of truth for ledger status
// changes. paid is terminal except for the administrative dispute override.
var allowedTransitions = map[string][]string{
	LedgerStatusPending:   {LedgerStatusProcessed, LedgerStatusPaid, LedgerStatusDisputed},
	LedgerStatusProcessed: {LedgerStatusPaid, LedgerStatusDisputed},
	LedgerStatusDisputed:  {LedgerStatusPending, LedgerStatusProcessed},
	LedgerStatusPaid:      {LedgerStatusDisputed},
}

// CanTransitionLedgerStatus reports whether a ledger may move from one
// status to another.
func CanTransitionLedgerStatus(from, to string) bool {
	for _, allowed := range allowedTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// IsValidLedgerStatus reports whether s is a known ledger status.
func IsValidLedgerStatus(s string) bool {
	switch s {
	case LedgerStatusPending, LedgerStatusProcessed, LedgerStatusPaid, LedgerStatusDisputed:
		return true
	}
	return false
}

// CommissionLineItem is one purchase's contribution to a ledger.
type CommissionLineItem struct {
	PurchaseID       primitive.ObjectID `bson:"purchaseId" json:"purchaseId"`
	BuyerID          primitive.ObjectID `bson:"buyerId" json:"buyerId"`
	BuyerName        string             `bson:"buyerName" json:"buyerName"`
	PackageName      string             `bson:"packageName" json:"packageName"`
	Amount           float64            `bson:"amount" json:"amount"`
	CommissionAmount float64            `bson:"commissionAmount" json:"commissionAmount"`
	PurchaseDate     time.Time          `bson:"purchaseDate" json:"purchaseDate"`
}

// CommissionPayout mirrors a line item with its own payment metadata.
// Payouts transition to paid together with the parent ledger.
type CommissionPayout struct {
	PurchaseID     primitive.ObjectID `bson:"purchaseId" json:"purchaseId"`
	Amount         float64            `bson:"amount" json:"amount"`
	Status         string             `bson:"status" json:"status"`
	TransactionRef string             `bson:"transactionRef,omitempty" json:"transactionRef,omitempty"`
	PaymentMethod  string             `bson:"paymentMethod,omitempty" json:"paymentMethod,omitempty"`
	Notes          string             `bson:"notes,omitempty" json:"notes,omitempty"`
	PaidAt         *time.Time         `bson:"paidAt,omitempty" json:"paidAt,omitempty"`
}

// PaymentDetails is the legacy ledger-level mirror of the payout metadata.
// It is always derived from the payouts array, never maintained on its own.
type PaymentDetails struct {
	TransactionRef string     `bson:"transactionRef,omitempty" json:"transactionRef,omitempty"`
	PaymentMethod  string     `bson:"paymentMethod,omitempty" json:"paymentMethod,omitempty"`
	Notes          string     `bson:"notes,omitempty" json:"notes,omitempty"`
	PaidAt         *time.Time `bson:"paidAt,omitempty" json:"paidAt,omitempty"`
}

// CommissionLedger is the aggregate record of commission owed to one
// organization for one period. The tuple (organizationId, periodType,
// periodStart, periodEnd) identifies at most one OPEN ledger at a time;
// paid ledgers for the same period may coexist with a newly opened one.
type CommissionLedger struct {
	ID             primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	OrganizationID primitive.ObjectID `bson:"organizationId" json:"organizationId"`
	PeriodType     string             `bson:"periodType" json:"periodType"`
	PeriodStart    time.Time          `bson:"periodStart" json:"periodStart"`
	PeriodEnd      time.Time          `bson:"periodEnd" json:"periodEnd"`
	Status         string             `bson:"status" json:"status"`

	LineItems []CommissionLineItem `bson:"lineItems" json:"lineItems"`
	Payouts   []CommissionPayout   `bson:"payouts" json:"payouts"`

	TotalSales            float64 `bson:"totalSales" json:"totalSales"`
	LineItemCount         int     `bson:"lineItemCount" json:"lineItemCount"`
	CommissionRatePercent float64 `bson:"commissionRatePercent" json:"commissionRatePercent"`
	TotalCommission       float64 `bson:"totalCommission" json:"totalCommission"`
	BonusAmount           float64 `bson:"bonusAmount" json:"bonusAmount"`
	MinimumGuarantee      float64 `bson:"minimumGuarantee" json:"minimumGuarantee"`
	FinalAmount           float64 `bson:"finalAmount" json:"finalAmount"`

	PaymentDetails *PaymentDetails `bson:"paymentDetails,omitempty" json:"paymentDetails,omitempty"`

	CalculatedAt time.Time  `bson:"calculatedAt" json:"calculatedAt"`
	ProcessedBy  string     `bson:"processedBy,omitempty" json:"processedBy,omitempty"`
	ProcessedAt  *time.Time `bson:"processedAt,omitempty" json:"processedAt,omitempty"`

	Revision  int64     `bson:"revision" json:"-"`
	CreatedAt time.Time `bson:"createdAt" json:"createdAt"`
	UpdatedAt time.Time `bson:"updatedAt" json:"updatedAt"`
}

// RoundMoney rounds a monetary amount to two decimals.
func RoundMoney(v float64) float64 {
	return math.Round(v*100) / 100
}

// CommissionFor computes the commission owed on a final purchase price at
// the given percentage rate.
func CommissionFor(finalPrice, ratePercent float64) float64 {
	return RoundMoney(finalPrice * ratePercent / 100)
}

// LedgerFinalAmount applies the minimum-guarantee floor to the commission
// total plus bonus.
func LedgerFinalAmount(totalCommission, bonus, minimumGuarantee float64) float64 {
	return math.Max(RoundMoney(totalCommission+bonus), minimumGuarantee)
}

// PeriodBoundsFor returns the calendar-aligned [start, end) window that
// contains t for the given period type. Bounds are computed in UTC; weekly
// periods start on Monday.
func PeriodBoundsFor(t time.Time, periodType string) (time.Time, time.Time) {
	t = t.UTC()
	switch periodType {
	case PeriodTypeDaily:
		start := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
		return start, start.AddDate(0, 0, 1)
	case PeriodTypeWeekly:
		daysSinceMonday := (int(t.Weekday()) + 6) % 7
		start := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC).
			AddDate(0, 0, -daysSinceMonday)
		return start, start.AddDate(0, 0, 7)
	default: // monthly
		start := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
		return start, start.AddDate(0, 1, 0)
	}
}

// NewCommissionLedger opens a fresh pending ledger for an organization's
// period, seeded with its first line item and a matching pending payout.
// The organization's commission terms are snapshotted at creation.
func NewCommissionLedger(org Organization, periodType string, periodStart, periodEnd time.Time, item CommissionLineItem) *CommissionLedger {
	now := time.Now().UTC()
	payout := CommissionPayout{
		PurchaseID: item.PurchaseID,
		Amount:     item.CommissionAmount,
		Status:     PayoutStatusPending,
	}
	return &CommissionLedger{
		ID:                    primitive.NewObjectID(),
		OrganizationID:        org.ID,
		PeriodType:            periodType,
		PeriodStart:           periodStart,
		PeriodEnd:             periodEnd,
		Status:                LedgerStatusPending,
		LineItems:             []CommissionLineItem{item},
		Payouts:               []CommissionPayout{payout},
		TotalSales:            item.Amount,
		LineItemCount:         1,
		CommissionRatePercent: org.CommissionRatePercent,
		TotalCommission:       item.CommissionAmount,
		BonusAmount:           0,
		MinimumGuarantee:      org.MinimumGuarantee,
		FinalAmount:           LedgerFinalAmount(item.CommissionAmount, 0, org.MinimumGuarantee),
		CalculatedAt:          now,
		Revision:              1,
		CreatedAt:             now,
		UpdatedAt:             now,
	}
}

// DerivedPaymentDetails builds the ledger-level payment mirror from the
// first payout entry. Returns nil while no payout carries payment metadata.
func (l *CommissionLedger) DerivedPaymentDetails() *PaymentDetails {
	if len(l.Payouts) == 0 {
		return nil
	}
	first := l.Payouts[0]
	if first.TransactionRef == "" && first.PaymentMethod == "" && first.PaidAt == nil {
		return nil
	}
	return &PaymentDetails{
		TransactionRef: first.TransactionRef,
		PaymentMethod:  first.PaymentMethod,
		Notes:          first.Notes,
		PaidAt:         first.PaidAt,
	}
}

// ContainsPurchase reports whether the ledger already carries a line item
// for the purchase.
func (l *CommissionLedger) ContainsPurchase(purchaseID primitive.ObjectID) bool {
	for _, item := range l.LineItems {
		if item.PurchaseID == purchaseID {
			return true
		}
	}
	return false
}

// MarkPaidRequest is the admin payload for finalizing a ledger payout.
type MarkPaidRequest struct {
	TransactionRef string `json:"transactionRef"`
	PaymentMethod  string `json:"paymentMethod" validate:"required"`
	Notes          string `json:"notes"`
}

// UpdateLedgerStatusRequest is the admin payload for dispute-workflow
// status changes outside the paid path.
type UpdateLedgerStatusRequest struct {
	Status string `json:"status" validate:"required"`
}
