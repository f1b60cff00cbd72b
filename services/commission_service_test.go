package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/edupartner/edupartner_backend/models"
	"github.com/edupartner/edupartner_backend/repositories"
)

// fakeDirectory resolves every buyer to the same organization, or to no
// membership at all when org is nil.
type fakeDirectory struct {
	member *models.OrganizationMember
	org    *models.Organization
}

func (d *fakeDirectory) ActiveMembership(ctx context.Context, userID primitive.ObjectID) (*models.OrganizationMember, *models.Organization, error) {
	return d.member, d.org, nil
}

type fakePriceBook struct {
	prices map[primitive.ObjectID]float64
}

func (p *fakePriceBook) FinalPrice(ctx context.Context, purchase *models.Purchase) (float64, error) {
	if price, ok := p.prices[purchase.ID]; ok {
		return price, nil
	}
	return purchase.Amount, nil
}

func (p *fakePriceBook) BuyerName(ctx context.Context, userID primitive.ObjectID) (string, error) {
	return "Test Buyer", nil
}

func (p *fakePriceBook) PackageName(ctx context.Context, id primitive.ObjectID) (string, error) {
	return "Test Package", nil
}

// fakeLedgerStore mimics the conditional-write semantics of the Mongo
// repository: appends only match an open ledger without the purchase, and
// inserts fail while an open ledger exists for the period.
type fakeLedgerStore struct {
	mu      sync.Mutex
	ledgers []*models.CommissionLedger

	// appendDeferred makes the first n appends miss even when an open
	// ledger exists, simulating a racing writer landing between the append
	// and the insert.
	appendDeferred int
}

func (s *fakeLedgerStore) ContainsPurchase(ctx context.Context, purchaseID primitive.ObjectID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, l := range s.ledgers {
		if l.ContainsPurchase(purchaseID) {
			return true, nil
		}
	}
	return false, nil
}

func (s *fakeLedgerStore) openLedger(orgID primitive.ObjectID, periodStart time.Time) *models.CommissionLedger {
	for _, l := range s.ledgers {
		if l.OrganizationID == orgID && l.PeriodStart.Equal(periodStart) &&
			(l.Status == models.LedgerStatusPending || l.Status == models.LedgerStatusProcessed) {
			return l
		}
	}
	return nil
}

func (s *fakeLedgerStore) AppendLineItem(ctx context.Context, orgID primitive.ObjectID, periodType string, periodStart, periodEnd time.Time, item models.CommissionLineItem) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.appendDeferred > 0 {
		s.appendDeferred--
		return false, nil
	}
	ledger := s.openLedger(orgID, periodStart)
	if ledger == nil || ledger.ContainsPurchase(item.PurchaseID) {
		return false, nil
	}
	ledger.LineItems = append(ledger.LineItems, item)
	ledger.Payouts = append(ledger.Payouts, models.CommissionPayout{
		PurchaseID: item.PurchaseID,
		Amount:     item.CommissionAmount,
		Status:     models.PayoutStatusPending,
	})
	ledger.TotalSales = models.RoundMoney(ledger.TotalSales + item.Amount)
	ledger.LineItemCount++
	ledger.TotalCommission = models.RoundMoney(ledger.TotalCommission + item.CommissionAmount)
	ledger.FinalAmount = models.LedgerFinalAmount(ledger.TotalCommission, ledger.BonusAmount, ledger.MinimumGuarantee)
	ledger.Revision++
	return true, nil
}

func (s *fakeLedgerStore) InsertLedger(ctx context.Context, ledger *models.CommissionLedger) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.openLedger(ledger.OrganizationID, ledger.PeriodStart) != nil {
		return repositories.ErrOpenLedgerExists
	}
	s.ledgers = append(s.ledgers, ledger)
	return nil
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []string
}

func (n *recordingNotifier) BroadcastLedgerEvent(eventType string, data interface{}) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, eventType)
}

func testOrganization() *models.Organization {
	return &models.Organization{
		ID:                    primitive.NewObjectID(),
		Name:                  "Acme Academy",
		CommissionRatePercent: 10,
		MinimumGuarantee:      0,
		PayoutSchedule:        models.PeriodTypeMonthly,
		IsActive:              true,
	}
}

func capturedPurchase(amount float64) *models.Purchase {
	capturedAt := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	return &models.Purchase{
		ID:         primitive.NewObjectID(),
		BuyerID:    primitive.NewObjectID(),
		PackageID:  primitive.NewObjectID(),
		Amount:     amount,
		Status:     models.PurchaseStatusCaptured,
		CapturedAt: &capturedAt,
	}
}

func newTestService(store *fakeLedgerStore, org *models.Organization, notifier Notifier) *CommissionService {
	var member *models.OrganizationMember
	if org != nil {
		member = &models.OrganizationMember{
			ID:             primitive.NewObjectID(),
			OrganizationID: org.ID,
			Status:         models.MemberStatusActive,
		}
	}
	return NewCommissionService(
		&fakeDirectory{member: member, org: org},
		&fakePriceBook{},
		store,
		notifier,
	)
}

func TestReconcilePurchaseOpensLedger(t *testing.T) {
	store := &fakeLedgerStore{}
	notifier := &recordingNotifier{}
	org := testOrganization()
	svc := newTestService(store, org, notifier)

	purchase := capturedPurchase(1000)
	require.NoError(t, svc.ReconcilePurchase(context.Background(), purchase))

	require.Len(t, store.ledgers, 1)
	ledger := store.ledgers[0]
	assert.Equal(t, models.LedgerStatusPending, ledger.Status)
	assert.Equal(t, 100.0, ledger.TotalCommission)
	assert.Equal(t, 100.0, ledger.FinalAmount)
	require.Len(t, ledger.Payouts, 1)
	assert.Equal(t, models.PayoutStatusPending, ledger.Payouts[0].Status)
	assert.Equal(t, []string{"ledger_opened"}, notifier.events)
}

func TestReconcilePurchaseMergesIntoOpenLedger(t *testing.T) {
	store := &fakeLedgerStore{}
	notifier := &recordingNotifier{}
	org := testOrganization()
	svc := newTestService(store, org, notifier)

	first := capturedPurchase(1000)
	second := capturedPurchase(500)
	require.NoError(t, svc.ReconcilePurchase(context.Background(), first))
	require.NoError(t, svc.ReconcilePurchase(context.Background(), second))

	require.Len(t, store.ledgers, 1)
	ledger := store.ledgers[0]
	assert.Equal(t, 2, ledger.LineItemCount)
	assert.Equal(t, 1500.0, ledger.TotalSales)
	assert.Equal(t, 150.0, ledger.TotalCommission)
	assert.Equal(t, 150.0, ledger.FinalAmount)
	assert.Len(t, ledger.Payouts, 2)
	assert.Equal(t, []string{"ledger_opened", "ledger_merged"}, notifier.events)
}

func TestReconcilePurchaseDuplicateDeliveryIsNoOp(t *testing.T) {
	store := &fakeLedgerStore{}
	org := testOrganization()
	svc := newTestService(store, org, nil)

	purchase := capturedPurchase(1000)
	require.NoError(t, svc.ReconcilePurchase(context.Background(), purchase))
	require.NoError(t, svc.ReconcilePurchase(context.Background(), purchase))
	require.NoError(t, svc.ReconcilePurchase(context.Background(), purchase))

	require.Len(t, store.ledgers, 1)
	ledger := store.ledgers[0]
	assert.Equal(t, 1, ledger.LineItemCount)
	assert.Equal(t, 100.0, ledger.TotalCommission)
}

func TestReconcilePurchaseConcurrentDeliveries(t *testing.T) {
	store := &fakeLedgerStore{}
	org := testOrganization()
	svc := newTestService(store, org, nil)

	purchase := capturedPurchase(1000)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, svc.ReconcilePurchase(context.Background(), purchase))
		}()
	}
	wg.Wait()

	require.Len(t, store.ledgers, 1)
	assert.Equal(t, 1, store.ledgers[0].LineItemCount)
	assert.Equal(t, 100.0, store.ledgers[0].TotalCommission)
}

func TestReconcilePurchaseOpensNewLedgerAfterPaid(t *testing.T) {
	store := &fakeLedgerStore{}
	org := testOrganization()
	svc := newTestService(store, org, nil)

	first := capturedPurchase(1000)
	require.NoError(t, svc.ReconcilePurchase(context.Background(), first))
	require.Len(t, store.ledgers, 1)

	// Paying the ledger freezes it; the next purchase in the same period
	// opens a second ledger rather than mutating paid history.
	store.ledgers[0].Status = models.LedgerStatusPaid

	second := capturedPurchase(2000)
	require.NoError(t, svc.ReconcilePurchase(context.Background(), second))

	require.Len(t, store.ledgers, 2)
	assert.Equal(t, 100.0, store.ledgers[0].TotalCommission)
	assert.Equal(t, models.LedgerStatusPaid, store.ledgers[0].Status)
	assert.Equal(t, 200.0, store.ledgers[1].TotalCommission)
	assert.Equal(t, models.LedgerStatusPending, store.ledgers[1].Status)
}

func TestReconcilePurchaseSkipsNonMembers(t *testing.T) {
	store := &fakeLedgerStore{}
	svc := newTestService(store, nil, nil)

	require.NoError(t, svc.ReconcilePurchase(context.Background(), capturedPurchase(1000)))
	assert.Empty(t, store.ledgers)
}

func TestReconcilePurchaseIgnoresUncaptured(t *testing.T) {
	store := &fakeLedgerStore{}
	org := testOrganization()
	svc := newTestService(store, org, nil)

	purchase := capturedPurchase(1000)
	purchase.Status = models.PurchaseStatusPending

	require.NoError(t, svc.ReconcilePurchase(context.Background(), purchase))
	assert.Empty(t, store.ledgers)
	require.NoError(t, svc.ReconcilePurchase(context.Background(), nil))
}

func TestReconcilePurchaseRetriesAfterLosingCreateRace(t *testing.T) {
	store := &fakeLedgerStore{}
	org := testOrganization()
	svc := newTestService(store, org, nil)

	// Seed the open ledger but make the first append miss, so the service
	// loses the insert race and must retry the append.
	seeded := capturedPurchase(1000)
	require.NoError(t, svc.ReconcilePurchase(context.Background(), seeded))
	store.appendDeferred = 1

	purchase := capturedPurchase(500)
	require.NoError(t, svc.ReconcilePurchase(context.Background(), purchase))

	require.Len(t, store.ledgers, 1)
	assert.Equal(t, 2, store.ledgers[0].LineItemCount)
	assert.Equal(t, 150.0, store.ledgers[0].TotalCommission)
}

func TestReconcilePurchaseContentionExhaustion(t *testing.T) {
	store := &fakeLedgerStore{appendDeferred: maxReconcileAttempts}
	org := testOrganization()
	svc := newTestService(store, org, nil)

	// Every append misses while an open ledger blocks every insert: the
	// bounded retry loop must give up instead of spinning.
	blocker := models.NewCommissionLedger(*org, models.PeriodTypeMonthly,
		time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC),
		models.CommissionLineItem{PurchaseID: primitive.NewObjectID()})
	store.ledgers = append(store.ledgers, blocker)

	err := svc.ReconcilePurchase(context.Background(), capturedPurchase(1000))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrReconcileContention))
}

func TestReconcilePurchaseUsesOrganizationSchedule(t *testing.T) {
	store := &fakeLedgerStore{}
	org := testOrganization()
	org.PayoutSchedule = models.PeriodTypeWeekly
	svc := newTestService(store, org, nil)

	require.NoError(t, svc.ReconcilePurchase(context.Background(), capturedPurchase(1000)))

	require.Len(t, store.ledgers, 1)
	ledger := store.ledgers[0]
	assert.Equal(t, models.PeriodTypeWeekly, ledger.PeriodType)
	// 2026-03-10 is a Tuesday; the week starts Monday 2026-03-09.
	assert.Equal(t, time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC), ledger.PeriodStart)
	assert.Equal(t, time.Date(2026, 3, 16, 0, 0, 0, 0, time.UTC), ledger.PeriodEnd)
}

func TestReconcilePurchaseAppliesMinimumGuarantee(t *testing.T) {
	store := &fakeLedgerStore{}
	org := testOrganization()
	org.MinimumGuarantee = 500
	svc := newTestService(store, org, nil)

	require.NoError(t, svc.ReconcilePurchase(context.Background(), capturedPurchase(1000)))

	require.Len(t, store.ledgers, 1)
	assert.Equal(t, 100.0, store.ledgers[0].TotalCommission)
	assert.Equal(t, 500.0, store.ledgers[0].FinalAmount)
}
