package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/edupartner/edupartner_backend/models"
	"github.com/edupartner/edupartner_backend/repositories"
)

// ErrReconcileContention is returned when the bounded retry loop exhausts
// without landing the purchase in a ledger. The commission is not lost:
// the purchase remains unrecorded and a repair run can reconcile it later.
var ErrReconcileContention = errors.New("commission reconciliation retries exhausted")

const (
	maxReconcileAttempts = 4
	reconcileBackoffBase = 25 * time.Millisecond
)

// MembershipDirectory resolves a buyer's commissionable organization
// membership.
type MembershipDirectory interface {
	ActiveMembership(ctx context.Context, userID primitive.ObjectID) (*models.OrganizationMember, *models.Organization, error)
}

// PriceBook answers pricing and display lookups for ledger line items.
type PriceBook interface {
	FinalPrice(ctx context.Context, purchase *models.Purchase) (float64, error)
	BuyerName(ctx context.Context, userID primitive.ObjectID) (string, error)
	PackageName(ctx context.Context, id primitive.ObjectID) (string, error)
}

// LedgerStore is the persistence surface the reconciler needs: the global
// idempotency probe, the conditional single-document append, and the
// open-a-new-ledger insert that fails when another writer won the race.
type LedgerStore interface {
	ContainsPurchase(ctx context.Context, purchaseID primitive.ObjectID) (bool, error)
	AppendLineItem(ctx context.Context, orgID primitive.ObjectID, periodType string, periodStart, periodEnd time.Time, item models.CommissionLineItem) (bool, error)
	InsertLedger(ctx context.Context, ledger *models.CommissionLedger) error
}

// Notifier pushes commission events to connected admin dashboards.
type Notifier interface {
	BroadcastLedgerEvent(eventType string, data interface{})
}

// CommissionService converts captured purchases into commission-ledger
// mutations. It is the idempotency boundary for purchase events: the
// webhook and the synchronous verification path both call it, possibly
// concurrently for the same purchase.
type CommissionService struct {
	members  MembershipDirectory
	prices   PriceBook
	ledgers  LedgerStore
	notifier Notifier
}

// NewCommissionService creates the reconciler.
func NewCommissionService(members MembershipDirectory, prices PriceBook, ledgers LedgerStore, notifier Notifier) *CommissionService {
	return &CommissionService{
		members:  members,
		prices:   prices,
		ledgers:  ledgers,
		notifier: notifier,
	}
}

// ReconcilePurchase records a captured purchase in its organization's open
// ledger for the purchase's period, opening a new ledger when none is open.
// At most one ledger ever contains the purchase, regardless of duplicate or
// concurrent deliveries. Callers on the payment pathway must contain the
// returned error: a missed commission is recoverable, a failed payment
// callback is not.
func (s *CommissionService) ReconcilePurchase(ctx context.Context, purchase *models.Purchase) error {
	if purchase == nil || purchase.Status != models.PurchaseStatusCaptured {
		return nil
	}

	member, org, err := s.members.ActiveMembership(ctx, purchase.BuyerID)
	if err != nil {
		return fmt.Errorf("membership lookup for purchase %s: %w", purchase.ID.Hex(), err)
	}
	if member == nil || org == nil {
		log.Printf("Commission: purchase %s has no commissionable membership, skipping", purchase.ID.Hex())
		return nil
	}

	recorded, err := s.ledgers.ContainsPurchase(ctx, purchase.ID)
	if err != nil {
		return fmt.Errorf("idempotency check for purchase %s: %w", purchase.ID.Hex(), err)
	}
	if recorded {
		log.Printf("Commission: purchase %s already recorded, skipping duplicate delivery", purchase.ID.Hex())
		return nil
	}

	finalPrice, err := s.prices.FinalPrice(ctx, purchase)
	if err != nil {
		return fmt.Errorf("final price for purchase %s: %w", purchase.ID.Hex(), err)
	}
	commission := models.CommissionFor(finalPrice, org.CommissionRatePercent)

	capturedAt := time.Now().UTC()
	if purchase.CapturedAt != nil {
		capturedAt = purchase.CapturedAt.UTC()
	}

	periodType := org.PayoutSchedule
	if periodType == "" {
		periodType = models.PeriodTypeMonthly
	}
	periodStart, periodEnd := models.PeriodBoundsFor(capturedAt, periodType)

	buyerName, err := s.prices.BuyerName(ctx, purchase.BuyerID)
	if err != nil {
		log.Printf("Commission: buyer name lookup failed for purchase %s: %v", purchase.ID.Hex(), err)
	}
	packageName, err := s.prices.PackageName(ctx, purchase.PackageID)
	if err != nil {
		log.Printf("Commission: package name lookup failed for purchase %s: %v", purchase.ID.Hex(), err)
	}

	item := models.CommissionLineItem{
		PurchaseID:       purchase.ID,
		BuyerID:          purchase.BuyerID,
		BuyerName:        buyerName,
		PackageName:      packageName,
		Amount:           finalPrice,
		CommissionAmount: commission,
		PurchaseDate:     capturedAt,
	}

	for attempt := 1; attempt <= maxReconcileAttempts; attempt++ {
		merged, err := s.ledgers.AppendLineItem(ctx, org.ID, periodType, periodStart, periodEnd, item)
		if err != nil {
			return fmt.Errorf("ledger append for purchase %s: %w", purchase.ID.Hex(), err)
		}
		if merged {
			log.Printf("Commission: purchase %s merged into open %s ledger for organization %s (%.2f)",
				purchase.ID.Hex(), periodType, org.ID.Hex(), commission)
			s.notify("ledger_merged", map[string]interface{}{
				"organizationId":   org.ID.Hex(),
				"purchaseId":       purchase.ID.Hex(),
				"commissionAmount": commission,
			})
			return nil
		}

		// The append matched nothing: either no open ledger exists, or a
		// concurrent delivery already recorded this purchase in it.
		recorded, err := s.ledgers.ContainsPurchase(ctx, purchase.ID)
		if err != nil {
			return fmt.Errorf("idempotency recheck for purchase %s: %w", purchase.ID.Hex(), err)
		}
		if recorded {
			log.Printf("Commission: purchase %s recorded by a concurrent delivery", purchase.ID.Hex())
			return nil
		}

		ledger := models.NewCommissionLedger(*org, periodType, periodStart, periodEnd, item)
		err = s.ledgers.InsertLedger(ctx, ledger)
		if err == nil {
			log.Printf("Commission: opened %s ledger %s for organization %s with purchase %s (%.2f)",
				periodType, ledger.ID.Hex(), org.ID.Hex(), purchase.ID.Hex(), commission)
			s.notify("ledger_opened", map[string]interface{}{
				"ledgerId":         ledger.ID.Hex(),
				"organizationId":   org.ID.Hex(),
				"purchaseId":       purchase.ID.Hex(),
				"commissionAmount": commission,
			})
			return nil
		}
		if !errors.Is(err, repositories.ErrOpenLedgerExists) {
			return fmt.Errorf("ledger insert for purchase %s: %w", purchase.ID.Hex(), err)
		}

		// Another writer opened the period's ledger between our append and
		// insert; back off and retry the append against it.
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt) * reconcileBackoffBase):
		}
	}

	return fmt.Errorf("purchase %s for organization %s: %w", purchase.ID.Hex(), org.ID.Hex(), ErrReconcileContention)
}

func (s *CommissionService) notify(eventType string, data interface{}) {
	if s.notifier != nil {
		s.notifier.BroadcastLedgerEvent(eventType, data)
	}
}
