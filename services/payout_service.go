package services

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/edupartner/edupartner_backend/models"
)

var (
	// ErrUnknownStatus rejects a status outside the ledger taxonomy.
	ErrUnknownStatus = errors.New("unknown ledger status")

	// ErrInvalidTransition rejects a status change the transition table
	// does not allow.
	ErrInvalidTransition = errors.New("ledger status transition not allowed")

	// ErrPaidViaFinalizer directs the paid transition through
	// MarkLedgerPaid, which carries the payment metadata.
	ErrPaidViaFinalizer = errors.New("use the payout finalizer to mark a ledger paid")
)

// PayoutStore is the persistence surface of the payout finalizer.
type PayoutStore interface {
	FindByID(ctx context.Context, id primitive.ObjectID) (*models.CommissionLedger, error)
	MarkPaid(ctx context.Context, id primitive.ObjectID, actor string, details models.PaymentDetails) (*models.CommissionLedger, error)
	UpdateStatus(ctx context.Context, id primitive.ObjectID, fromStatus, toStatus string) (*models.CommissionLedger, error)
	InsertAuditLog(ctx context.Context, entry models.CommissionAuditLog) error
}

// PayoutService owns ledger status transitions: payout finalization and
// the dispute workflow. All transitions are validated against the central
// table and recorded in the audit trail.
type PayoutService struct {
	ledgers  PayoutStore
	notifier Notifier
}

// NewPayoutService creates the payout finalizer.
func NewPayoutService(ledgers PayoutStore, notifier Notifier) *PayoutService {
	return &PayoutService{ledgers: ledgers, notifier: notifier}
}

// MarkLedgerPaid finalizes a ledger payout. Preconditions: the ledger
// exists and is not already paid. The underlying store transitions the
// ledger and every embedded payout in one conditional write, so a paid
// ledger can never be observed with a pending payout, and a second call
// is rejected without touching the first call's metadata.
func (s *PayoutService) MarkLedgerPaid(ctx context.Context, id primitive.ObjectID, actor string, req models.MarkPaidRequest) (*models.CommissionLedger, error) {
	transactionRef := req.TransactionRef
	if transactionRef == "" {
		transactionRef = uuid.NewString()
	}

	previous, err := s.ledgers.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	ledger, err := s.ledgers.MarkPaid(ctx, id, actor, models.PaymentDetails{
		TransactionRef: transactionRef,
		PaymentMethod:  req.PaymentMethod,
		Notes:          req.Notes,
	})
	if err != nil {
		return nil, err
	}

	s.audit(ctx, ledger, previous.Status, actor, req.Notes)
	s.notify("ledger_paid", map[string]interface{}{
		"ledgerId":       ledger.ID.Hex(),
		"organizationId": ledger.OrganizationID.Hex(),
		"finalAmount":    ledger.FinalAmount,
		"transactionRef": transactionRef,
	})

	log.Printf("Commission: ledger %s marked paid by %s (final amount %.2f, ref %s)",
		ledger.ID.Hex(), actor, ledger.FinalAmount, transactionRef)
	return ledger, nil
}

// UpdateLedgerStatus moves a ledger along the dispute workflow
// (pending/processed <-> disputed, pending -> processed, paid -> disputed
// as the administrative override). The paid transition is reserved for
// MarkLedgerPaid.
func (s *PayoutService) UpdateLedgerStatus(ctx context.Context, id primitive.ObjectID, actor, newStatus string) (*models.CommissionLedger, error) {
	if !models.IsValidLedgerStatus(newStatus) {
		return nil, fmt.Errorf("%q: %w", newStatus, ErrUnknownStatus)
	}
	if newStatus == models.LedgerStatusPaid {
		return nil, ErrPaidViaFinalizer
	}

	current, err := s.ledgers.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !models.CanTransitionLedgerStatus(current.Status, newStatus) {
		return nil, fmt.Errorf("%s -> %s: %w", current.Status, newStatus, ErrInvalidTransition)
	}

	ledger, err := s.ledgers.UpdateStatus(ctx, id, current.Status, newStatus)
	if err != nil {
		return nil, err
	}

	s.audit(ctx, ledger, current.Status, actor, "")
	s.notify("ledger_status_changed", map[string]interface{}{
		"ledgerId":       ledger.ID.Hex(),
		"organizationId": ledger.OrganizationID.Hex(),
		"fromStatus":     current.Status,
		"toStatus":       newStatus,
	})

	log.Printf("Commission: ledger %s status %s -> %s by %s", ledger.ID.Hex(), current.Status, newStatus, actor)
	return ledger, nil
}

// audit records the transition; a failed audit write is logged, not
// surfaced, because the transition itself already committed.
func (s *PayoutService) audit(ctx context.Context, ledger *models.CommissionLedger, fromStatus, actor, notes string) {
	err := s.ledgers.InsertAuditLog(ctx, models.CommissionAuditLog{
		LedgerID:       ledger.ID,
		OrganizationID: ledger.OrganizationID,
		FromStatus:     fromStatus,
		ToStatus:       ledger.Status,
		Actor:          actor,
		Amount:         ledger.FinalAmount,
		PeriodStart:    ledger.PeriodStart,
		PeriodEnd:      ledger.PeriodEnd,
		Notes:          notes,
	})
	if err != nil {
		log.Printf("Commission: audit log write failed for ledger %s: %v", ledger.ID.Hex(), err)
	}
}

func (s *PayoutService) notify(eventType string, data interface{}) {
	if s.notifier != nil {
		s.notifier.BroadcastLedgerEvent(eventType, data)
	}
}
