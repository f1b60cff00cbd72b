package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestCanTransitionLedgerStatus(t *testing.T) {
	allowed := []struct{ from, to string }{
		{LedgerStatusPending, LedgerStatusProcessed},
		{LedgerStatusPending, LedgerStatusPaid},
		{LedgerStatusPending, LedgerStatusDisputed},
		{LedgerStatusProcessed, LedgerStatusPaid},
		{LedgerStatusProcessed, LedgerStatusDisputed},
		{LedgerStatusDisputed, LedgerStatusPending},
		{LedgerStatusDisputed, LedgerStatusProcessed},
		{LedgerStatusPaid, LedgerStatusDisputed},
	}
	for _, tc := range allowed {
		assert.True(t, CanTransitionLedgerStatus(tc.from, tc.to), "%s -> %s should be allowed", tc.from, tc.to)
	}

	denied := []struct{ from, to string }{
		{LedgerStatusPaid, LedgerStatusPending},
		{LedgerStatusPaid, LedgerStatusProcessed},
		{LedgerStatusPaid, LedgerStatusPaid},
		{LedgerStatusProcessed, LedgerStatusPending},
		{LedgerStatusDisputed, LedgerStatusPaid},
		{LedgerStatusPending, LedgerStatusPending},
		{"bogus", LedgerStatusPaid},
	}
	for _, tc := range denied {
		assert.False(t, CanTransitionLedgerStatus(tc.from, tc.to), "%s -> %s should be denied", tc.from, tc.to)
	}
}

func TestIsValidLedgerStatus(t *testing.T) {
	for _, s := range []string{LedgerStatusPending, LedgerStatusProcessed, LedgerStatusPaid, LedgerStatusDisputed} {
		assert.True(t, IsValidLedgerStatus(s))
	}
	assert.False(t, IsValidLedgerStatus(""))
	assert.False(t, IsValidLedgerStatus("open"))
}

func TestCommissionFor(t *testing.T) {
	assert.Equal(t, 100.0, CommissionFor(1000, 10))
	assert.Equal(t, 150.0, CommissionFor(500, 30))
	assert.Equal(t, 0.0, CommissionFor(1000, 0))
	// Rounds half cents to two decimals.
	assert.Equal(t, 3.33, CommissionFor(33.33, 10))
}

func TestLedgerFinalAmount(t *testing.T) {
	// Guarantee floor applies while commission plus bonus is below it.
	assert.Equal(t, 200.0, LedgerFinalAmount(150, 0, 200))
	// Above the floor, commission plus bonus wins.
	assert.Equal(t, 260.0, LedgerFinalAmount(250, 10, 200))
	assert.Equal(t, 0.0, LedgerFinalAmount(0, 0, 0))
}

func TestPeriodBoundsFor(t *testing.T) {
	// 2026-03-18 is a Wednesday.
	at := time.Date(2026, 3, 18, 14, 30, 0, 0, time.UTC)

	start, end := PeriodBoundsFor(at, PeriodTypeMonthly)
	assert.Equal(t, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), start)
	assert.Equal(t, time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC), end)

	start, end = PeriodBoundsFor(at, PeriodTypeWeekly)
	assert.Equal(t, time.Date(2026, 3, 16, 0, 0, 0, 0, time.UTC), start)
	assert.Equal(t, time.Date(2026, 3, 23, 0, 0, 0, 0, time.UTC), end)

	start, end = PeriodBoundsFor(at, PeriodTypeDaily)
	assert.Equal(t, time.Date(2026, 3, 18, 0, 0, 0, 0, time.UTC), start)
	assert.Equal(t, time.Date(2026, 3, 19, 0, 0, 0, 0, time.UTC), end)

	// Unknown period types fall back to monthly.
	start, end = PeriodBoundsFor(at, "")
	assert.Equal(t, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), start)
	assert.Equal(t, time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC), end)

	// A Sunday belongs to the week that started the previous Monday.
	sunday := time.Date(2026, 3, 22, 23, 59, 59, 0, time.UTC)
	start, _ = PeriodBoundsFor(sunday, PeriodTypeWeekly)
	assert.Equal(t, time.Date(2026, 3, 16, 0, 0, 0, 0, time.UTC), start)
}

func TestNewCommissionLedger(t *testing.T) {
	org := Organization{
		ID:                    primitive.NewObjectID(),
		CommissionRatePercent: 10,
		MinimumGuarantee:      500,
	}
	item := CommissionLineItem{
		PurchaseID:       primitive.NewObjectID(),
		BuyerID:          primitive.NewObjectID(),
		Amount:           1000,
		CommissionAmount: 100,
		PurchaseDate:     time.Now().UTC(),
	}
	start, end := PeriodBoundsFor(item.PurchaseDate, PeriodTypeMonthly)

	ledger := NewCommissionLedger(org, PeriodTypeMonthly, start, end, item)

	assert.Equal(t, LedgerStatusPending, ledger.Status)
	assert.Equal(t, org.ID, ledger.OrganizationID)
	require.Len(t, ledger.LineItems, 1)
	require.Len(t, ledger.Payouts, 1)
	assert.Equal(t, item.PurchaseID, ledger.Payouts[0].PurchaseID)
	assert.Equal(t, PayoutStatusPending, ledger.Payouts[0].Status)
	assert.Equal(t, 100.0, ledger.Payouts[0].Amount)
	assert.Equal(t, 1000.0, ledger.TotalSales)
	assert.Equal(t, 1, ledger.LineItemCount)
	assert.Equal(t, 100.0, ledger.TotalCommission)
	assert.Equal(t, 10.0, ledger.CommissionRatePercent)
	assert.Equal(t, int64(1), ledger.Revision)
	// Minimum guarantee floors the final amount.
	assert.Equal(t, 500.0, ledger.FinalAmount)
	assert.True(t, ledger.ContainsPurchase(item.PurchaseID))
	assert.False(t, ledger.ContainsPurchase(primitive.NewObjectID()))
}

func TestDerivedPaymentDetails(t *testing.T) {
	ledger := &CommissionLedger{}
	assert.Nil(t, ledger.DerivedPaymentDetails())

	ledger.Payouts = []CommissionPayout{{Status: PayoutStatusPending}}
	assert.Nil(t, ledger.DerivedPaymentDetails())

	paidAt := time.Now().UTC()
	ledger.Payouts = []CommissionPayout{{
		Status:         PayoutStatusPaid,
		TransactionRef: "TXN1",
		PaymentMethod:  "bank_transfer",
		Notes:          "march payout",
		PaidAt:         &paidAt,
	}}
	details := ledger.DerivedPaymentDetails()
	require.NotNil(t, details)
	assert.Equal(t, "TXN1", details.TransactionRef)
	assert.Equal(t, "bank_transfer", details.PaymentMethod)
	assert.Equal(t, "march payout", details.Notes)
	assert.Equal(t, &paidAt, details.PaidAt)
}
