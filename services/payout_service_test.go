package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/edupartner/edupartner_backend/models"
	"github.com/edupartner/edupartner_backend/repositories"
)

// fakePayoutStore mirrors the conditional-write behavior of the Mongo
// repository: MarkPaid flips the ledger and every payout in one step and
// rejects a second call, UpdateStatus only matches the expected previous
// status.
type fakePayoutStore struct {
	ledgers map[primitive.ObjectID]*models.CommissionLedger
	audits  []models.CommissionAuditLog
}

func newFakePayoutStore(ledgers ...*models.CommissionLedger) *fakePayoutStore {
	s := &fakePayoutStore{ledgers: make(map[primitive.ObjectID]*models.CommissionLedger)}
	for _, l := range ledgers {
		s.ledgers[l.ID] = l
	}
	return s
}

func (s *fakePayoutStore) FindByID(ctx context.Context, id primitive.ObjectID) (*models.CommissionLedger, error) {
	ledger, ok := s.ledgers[id]
	if !ok {
		return nil, repositories.ErrLedgerNotFound
	}
	copied := *ledger
	return &copied, nil
}

func (s *fakePayoutStore) MarkPaid(ctx context.Context, id primitive.ObjectID, actor string, details models.PaymentDetails) (*models.CommissionLedger, error) {
	ledger, ok := s.ledgers[id]
	if !ok {
		return nil, repositories.ErrLedgerNotFound
	}
	if ledger.Status == models.LedgerStatusPaid {
		return nil, repositories.ErrLedgerAlreadyPaid
	}
	now := time.Now().UTC()
	details.PaidAt = &now
	ledger.Status = models.LedgerStatusPaid
	ledger.ProcessedBy = actor
	ledger.ProcessedAt = &now
	ledger.PaymentDetails = &details
	for i := range ledger.Payouts {
		ledger.Payouts[i].Status = models.PayoutStatusPaid
		ledger.Payouts[i].TransactionRef = details.TransactionRef
		ledger.Payouts[i].PaymentMethod = details.PaymentMethod
		ledger.Payouts[i].Notes = details.Notes
		ledger.Payouts[i].PaidAt = &now
	}
	ledger.Revision++
	copied := *ledger
	return &copied, nil
}

func (s *fakePayoutStore) UpdateStatus(ctx context.Context, id primitive.ObjectID, fromStatus, toStatus string) (*models.CommissionLedger, error) {
	ledger, ok := s.ledgers[id]
	if !ok {
		return nil, repositories.ErrLedgerNotFound
	}
	if ledger.Status != fromStatus {
		return nil, repositories.ErrStatusConflict
	}
	ledger.Status = toStatus
	ledger.Revision++
	copied := *ledger
	return &copied, nil
}

func (s *fakePayoutStore) InsertAuditLog(ctx context.Context, entry models.CommissionAuditLog) error {
	s.audits = append(s.audits, entry)
	return nil
}

func twoPayoutLedger() *models.CommissionLedger {
	org := models.Organization{ID: primitive.NewObjectID(), CommissionRatePercent: 10}
	start, end := models.PeriodBoundsFor(time.Now().UTC(), models.PeriodTypeMonthly)
	first := models.CommissionLineItem{PurchaseID: primitive.NewObjectID(), Amount: 1000, CommissionAmount: 100}
	ledger := models.NewCommissionLedger(org, models.PeriodTypeMonthly, start, end, first)
	ledger.LineItems = append(ledger.LineItems, models.CommissionLineItem{
		PurchaseID: primitive.NewObjectID(), Amount: 500, CommissionAmount: 50,
	})
	ledger.Payouts = append(ledger.Payouts, models.CommissionPayout{
		PurchaseID: ledger.LineItems[1].PurchaseID, Amount: 50, Status: models.PayoutStatusPending,
	})
	ledger.TotalCommission = 150
	ledger.FinalAmount = 150
	return ledger
}

func TestMarkLedgerPaid(t *testing.T) {
	ledger := twoPayoutLedger()
	store := newFakePayoutStore(ledger)
	notifier := &recordingNotifier{}
	svc := NewPayoutService(store, notifier)

	paid, err := svc.MarkLedgerPaid(context.Background(), ledger.ID, "admin@edupartner.online", models.MarkPaidRequest{
		TransactionRef: "TXN1",
		PaymentMethod:  "bank_transfer",
		Notes:          "march payout",
	})
	require.NoError(t, err)

	assert.Equal(t, models.LedgerStatusPaid, paid.Status)
	assert.Equal(t, "admin@edupartner.online", paid.ProcessedBy)
	require.NotNil(t, paid.PaymentDetails)
	assert.Equal(t, "TXN1", paid.PaymentDetails.TransactionRef)

	// Every payout is paid together with the ledger; a paid ledger with a
	// pending payout must never be observable.
	for _, payout := range paid.Payouts {
		assert.Equal(t, models.PayoutStatusPaid, payout.Status)
		assert.Equal(t, "TXN1", payout.TransactionRef)
		require.NotNil(t, payout.PaidAt)
	}

	require.Len(t, store.audits, 1)
	assert.Equal(t, models.LedgerStatusPending, store.audits[0].FromStatus)
	assert.Equal(t, models.LedgerStatusPaid, store.audits[0].ToStatus)
	assert.Equal(t, []string{"ledger_paid"}, notifier.events)
}

func TestMarkLedgerPaidGeneratesTransactionRef(t *testing.T) {
	ledger := twoPayoutLedger()
	store := newFakePayoutStore(ledger)
	svc := NewPayoutService(store, nil)

	paid, err := svc.MarkLedgerPaid(context.Background(), ledger.ID, "admin", models.MarkPaidRequest{
		PaymentMethod: "cash",
	})
	require.NoError(t, err)
	require.NotNil(t, paid.PaymentDetails)
	assert.NotEmpty(t, paid.PaymentDetails.TransactionRef)
}

func TestMarkLedgerPaidRejectsSecondCall(t *testing.T) {
	ledger := twoPayoutLedger()
	store := newFakePayoutStore(ledger)
	svc := NewPayoutService(store, nil)

	_, err := svc.MarkLedgerPaid(context.Background(), ledger.ID, "admin", models.MarkPaidRequest{
		TransactionRef: "TXN1",
		PaymentMethod:  "bank_transfer",
	})
	require.NoError(t, err)

	_, err = svc.MarkLedgerPaid(context.Background(), ledger.ID, "admin", models.MarkPaidRequest{
		TransactionRef: "TXN2",
		PaymentMethod:  "cash",
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, repositories.ErrLedgerAlreadyPaid))

	// The first finalization's metadata survives the rejected retry.
	assert.Equal(t, "TXN1", store.ledgers[ledger.ID].PaymentDetails.TransactionRef)
	require.Len(t, store.audits, 1)
}

func TestMarkLedgerPaidUnknownLedger(t *testing.T) {
	store := newFakePayoutStore()
	svc := NewPayoutService(store, nil)

	_, err := svc.MarkLedgerPaid(context.Background(), primitive.NewObjectID(), "admin", models.MarkPaidRequest{
		PaymentMethod: "cash",
	})
	assert.True(t, errors.Is(err, repositories.ErrLedgerNotFound))
}

func TestUpdateLedgerStatus(t *testing.T) {
	ledger := twoPayoutLedger()
	store := newFakePayoutStore(ledger)
	notifier := &recordingNotifier{}
	svc := NewPayoutService(store, notifier)

	updated, err := svc.UpdateLedgerStatus(context.Background(), ledger.ID, "admin", models.LedgerStatusProcessed)
	require.NoError(t, err)
	assert.Equal(t, models.LedgerStatusProcessed, updated.Status)

	updated, err = svc.UpdateLedgerStatus(context.Background(), ledger.ID, "admin", models.LedgerStatusDisputed)
	require.NoError(t, err)
	assert.Equal(t, models.LedgerStatusDisputed, updated.Status)

	// Disputes resolve back into the open states.
	updated, err = svc.UpdateLedgerStatus(context.Background(), ledger.ID, "admin", models.LedgerStatusPending)
	require.NoError(t, err)
	assert.Equal(t, models.LedgerStatusPending, updated.Status)

	require.Len(t, store.audits, 3)
	assert.Equal(t, []string{"ledger_status_changed", "ledger_status_changed", "ledger_status_changed"}, notifier.events)
}

func TestUpdateLedgerStatusRejectsInvalidMoves(t *testing.T) {
	ledger := twoPayoutLedger()
	ledger.Status = models.LedgerStatusProcessed
	store := newFakePayoutStore(ledger)
	svc := NewPayoutService(store, nil)

	_, err := svc.UpdateLedgerStatus(context.Background(), ledger.ID, "admin", models.LedgerStatusPending)
	assert.True(t, errors.Is(err, ErrInvalidTransition))

	_, err = svc.UpdateLedgerStatus(context.Background(), ledger.ID, "admin", "archived")
	assert.True(t, errors.Is(err, ErrUnknownStatus))

	// paid only ever happens through the finalizer.
	_, err = svc.UpdateLedgerStatus(context.Background(), ledger.ID, "admin", models.LedgerStatusPaid)
	assert.True(t, errors.Is(err, ErrPaidViaFinalizer))

	assert.Empty(t, store.audits)
	assert.Equal(t, models.LedgerStatusProcessed, store.ledgers[ledger.ID].Status)
}
