// controllers/payment_webhook_controller.go
package controllers

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/edupartner/edupartner_backend/models"
	"github.com/edupartner/edupartner_backend/repositories"
	"github.com/edupartner/edupartner_backend/services"
	"github.com/edupartner/edupartner_backend/utils"
)

// SignatureHeader carries the gateway's HMAC-SHA256 over the raw body.
const SignatureHeader = "X-PayGate-Signature"

// PaymentWebhookController ingests payment-captured notifications from the
// gateway. The gateway delivers at least once; duplicates are expected and
// safe because the commission reconciler, not this handler, is the
// idempotency boundary.
type PaymentWebhookController struct {
	purchases   *repositories.PurchaseRepository
	commissions *services.CommissionService
	secret      string
}

// NewPaymentWebhookController creates a webhook controller
func NewPaymentWebhookController(purchases *repositories.PurchaseRepository, commissions *services.CommissionService) *PaymentWebhookController {
	secret := os.Getenv("PAYGATE_WEBHOOK_SECRET")
	if secret == "" {
		log.Printf("Warning: PAYGATE_WEBHOOK_SECRET is not set; all webhook deliveries will be rejected")
	}
	return &PaymentWebhookController{
		purchases:   purchases,
		commissions: commissions,
		secret:      secret,
	}
}

// HandlePaymentCaptured processes one gateway delivery: verify the
// signature over the exact raw body, capture the purchase exactly once,
// grant the enrollment, then hand off to the commission reconciler.
// Reconciler failures never fail this handler - the payer's purchase
// succeeded regardless of commissioning.
func (wc *PaymentWebhookController) HandlePaymentCaptured(c echo.Context) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return c.JSON(http.StatusBadRequest, models.Response{
			Status:  http.StatusBadRequest,
			Message: "Failed to read request body",
		})
	}

	signature := c.Request().Header.Get(SignatureHeader)
	if !utils.VerifySignature(wc.secret, body, signature) {
		log.Printf("Webhook: rejected delivery with bad or missing signature")
		return c.JSON(http.StatusUnauthorized, models.Response{
			Status:  http.StatusUnauthorized,
			Message: "Invalid webhook signature",
		})
	}

	var event models.PaymentCapturedEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return c.JSON(http.StatusBadRequest, models.Response{
			Status:  http.StatusBadRequest,
			Message: "Invalid event payload",
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	log.Printf("Webhook: processing %s delivery %s for externalId %d", event.Event, event.DeliveryID, event.ExternalID)

	purchase, err := wc.purchases.FindByExternalID(ctx, event.ExternalID)
	if err != nil {
		log.Printf("Webhook: purchase lookup failed for externalId %d: %v", event.ExternalID, err)
		return c.JSON(http.StatusInternalServerError, models.Response{
			Status:  http.StatusInternalServerError,
			Message: "Database error",
		})
	}
	if purchase == nil {
		// Gateway events are at-least-once; an unknown purchase is dropped,
		// not retried.
		log.Printf("Webhook: no purchase for externalId %d, dropping event", event.ExternalID)
		return c.JSON(http.StatusOK, models.Response{
			Status:  http.StatusOK,
			Message: "Event dropped: purchase not found",
		})
	}

	if event.Status != "success" {
		log.Printf("Webhook: collect for externalId %d finished with status %s", event.ExternalID, event.Status)
		if err := wc.purchases.MarkFailed(ctx, event.ExternalID); err != nil {
			log.Printf("Webhook: failed to mark purchase failed: %v", err)
		}
		return c.JSON(http.StatusOK, models.Response{
			Status:  http.StatusOK,
			Message: "Payment not successful",
		})
	}

	captured, err := wc.purchases.CapturePurchase(ctx, purchase.ID, event.PayerPhone)
	if err != nil {
		log.Printf("Webhook: failed to capture purchase %s: %v", purchase.ID.Hex(), err)
		return c.JSON(http.StatusInternalServerError, models.Response{
			Status:  http.StatusInternalServerError,
			Message: "Failed to process payment",
		})
	}
	if captured {
		log.Printf("Webhook: purchase %s captured", purchase.ID.Hex())
		if err := wc.purchases.GrantEnrollment(ctx, purchase); err != nil {
			log.Printf("Webhook: failed to grant enrollment for purchase %s: %v", purchase.ID.Hex(), err)
		}
	} else {
		log.Printf("Webhook: purchase %s already captured, duplicate delivery", purchase.ID.Hex())
	}

	// Reload so the reconciler sees the captured status and timestamp. The
	// reconciler runs on every delivery, duplicate or not: it is the
	// at-most-once boundary, and the synchronous verification path may be
	// racing this handler.
	purchase, err = wc.purchases.FindByExternalID(ctx, event.ExternalID)
	if err != nil || purchase == nil {
		log.Printf("Webhook: failed to reload purchase for externalId %d: %v", event.ExternalID, err)
		return c.JSON(http.StatusOK, models.Response{
			Status:  http.StatusOK,
			Message: "Payment processed",
		})
	}

	if err := wc.commissions.ReconcilePurchase(ctx, purchase); err != nil {
		// Contained by design: a missed commission is a recoverable
		// data-quality issue, a failed payment webhook is not.
		log.Printf("Webhook: commission reconciliation failed for purchase %s: %v", purchase.ID.Hex(), err)
	}

	return c.JSON(http.StatusOK, models.Response{
		Status:  http.StatusOK,
		Message: "Payment processed",
	})
}
