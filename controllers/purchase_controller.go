// controllers/purchase_controller.go
package controllers

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/labstack/echo/v4"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/edupartner/edupartner_backend/middleware"
	"github.com/edupartner/edupartner_backend/models"
	"github.com/edupartner/edupartner_backend/repositories"
	"github.com/edupartner/edupartner_backend/services"
)

// PurchaseController handles package purchases and the synchronous
// payment-verification path.
type PurchaseController struct {
	purchases   *repositories.PurchaseRepository
	orgs        *repositories.OrganizationRepository
	commissions *services.CommissionService
	gateway     *services.PayGateService
}

// NewPurchaseController creates a new purchase controller
func NewPurchaseController(purchases *repositories.PurchaseRepository, orgs *repositories.OrganizationRepository, commissions *services.CommissionService, gateway *services.PayGateService) *PurchaseController {
	return &PurchaseController{
		purchases:   purchases,
		orgs:        orgs,
		commissions: commissions,
		gateway:     gateway,
	}
}

// CreatePurchase initiates a gateway payment for a learning package. When
// the buyer's organization runs a member discount program, the discounted
// price is recorded as a price adjustment - the audit record commission is
// later computed from.
func (pc *PurchaseController) CreatePurchase(c echo.Context) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	claims := middleware.GetUserFromToken(c)
	buyerID, err := primitive.ObjectIDFromHex(claims.UserID)
	if err != nil {
		return c.JSON(http.StatusBadRequest, models.Response{
			Status:  http.StatusBadRequest,
			Message: "Invalid user ID",
		})
	}

	var req models.CreatePurchaseRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, models.Response{
			Status:  http.StatusBadRequest,
			Message: "Invalid request body",
		})
	}
	if err := c.Validate(&req); err != nil {
		return c.JSON(http.StatusBadRequest, models.Response{
			Status:  http.StatusBadRequest,
			Message: "Package ID is required",
		})
	}

	packageID, err := primitive.ObjectIDFromHex(req.PackageID)
	if err != nil {
		return c.JSON(http.StatusBadRequest, models.Response{
			Status:  http.StatusBadRequest,
			Message: "Invalid package ID format",
		})
	}

	pkg, err := pc.purchases.FindPackage(ctx, packageID)
	if err != nil {
		log.Printf("Purchase: package lookup failed: %v", err)
		return c.JSON(http.StatusInternalServerError, models.Response{
			Status:  http.StatusInternalServerError,
			Message: "Failed to verify package",
		})
	}
	if pkg == nil {
		return c.JSON(http.StatusNotFound, models.Response{
			Status:  http.StatusNotFound,
			Message: "Package not found or inactive",
		})
	}

	// Apply the organization's member discount, if any.
	finalPrice := pkg.Price
	var discountReason string
	_, org, err := pc.orgs.ActiveMembership(ctx, buyerID)
	if err != nil {
		log.Printf("Purchase: membership lookup failed: %v", err)
	} else if org != nil && org.MemberDiscountPercent > 0 {
		finalPrice = models.RoundMoney(pkg.Price * (100 - org.MemberDiscountPercent) / 100)
		discountReason = fmt.Sprintf("%s member discount (%.0f%%)", org.Name, org.MemberDiscountPercent)
	}

	purchase := &models.Purchase{
		ID:        primitive.NewObjectID(),
		BuyerID:   buyerID,
		PackageID: packageID,
		Amount:    pkg.Price,
		Status:    models.PurchaseStatusPending,
		CreatedAt: time.Now().UTC(),
	}
	purchase.ExternalID = int64(purchase.ID.Timestamp().Unix())

	baseURL := os.Getenv("BASE_URL")
	if baseURL == "" {
		baseURL = "https://edupartner.online"
	}
	appURL := os.Getenv("APP_URL")
	if appURL == "" {
		appURL = baseURL
	}

	amount := finalPrice
	gatewayReq := models.PayGateRequest{
		Amount:             &amount,
		Currency:           "USD",
		Invoice:            fmt.Sprintf("Package purchase - %s", pkg.Name),
		ExternalID:         &purchase.ExternalID,
		SuccessCallbackURL: fmt.Sprintf("%s/api/paygate/webhook", baseURL),
		FailureCallbackURL: fmt.Sprintf("%s/api/paygate/webhook", baseURL),
		SuccessRedirectURL: fmt.Sprintf("%s/payment-success?purchaseId=%s", appURL, purchase.ID.Hex()),
		FailureRedirectURL: fmt.Sprintf("%s/payment-failed?purchaseId=%s", appURL, purchase.ID.Hex()),
	}

	collectURL, err := pc.gateway.PostPayment(gatewayReq)
	if err != nil {
		log.Printf("Purchase: failed to create gateway payment: %v", err)
		return c.JSON(http.StatusInternalServerError, models.Response{
			Status:  http.StatusInternalServerError,
			Message: fmt.Sprintf("Failed to initiate payment: %v", err),
		})
	}
	purchase.CollectURL = collectURL

	if err := pc.purchases.InsertPurchase(ctx, purchase); err != nil {
		log.Printf("Purchase: failed to save purchase: %v", err)
		return c.JSON(http.StatusInternalServerError, models.Response{
			Status:  http.StatusInternalServerError,
			Message: "Failed to create purchase",
		})
	}

	if discountReason != "" {
		err := pc.purchases.InsertPriceAdjustment(ctx, &models.PriceAdjustment{
			PurchaseID:    purchase.ID,
			OriginalPrice: pkg.Price,
			FinalPrice:    finalPrice,
			Reason:        discountReason,
		})
		if err != nil {
			log.Printf("Purchase: failed to record price adjustment for %s: %v", purchase.ID.Hex(), err)
		}
	}

	log.Printf("Purchase: payment created for purchase %s: %s", purchase.ID.Hex(), collectURL)

	return c.JSON(http.StatusCreated, models.Response{
		Status:  http.StatusCreated,
		Message: "Payment initiated successfully. Please complete the payment to access your package.",
		Data: map[string]interface{}{
			"purchaseId":  purchase.ID,
			"package":     pkg,
			"amount":      pkg.Price,
			"finalAmount": finalPrice,
			"collectUrl":  collectURL,
			"externalId":  purchase.ExternalID,
		},
	})
}

// VerifyPurchasePayment is the synchronous verification path: it queries
// the gateway for the collect status and, on success, performs the same
// capture + reconcile as the webhook. The two paths deliberately race; the
// reconciler is the idempotency boundary.
func (pc *PurchaseController) VerifyPurchasePayment(c echo.Context) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	purchaseID, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, models.Response{
			Status:  http.StatusBadRequest,
			Message: "Invalid purchase ID format",
		})
	}

	purchase, err := pc.purchases.FindByID(ctx, purchaseID)
	if err != nil {
		log.Printf("Verify: purchase lookup failed: %v", err)
		return c.JSON(http.StatusInternalServerError, models.Response{
			Status:  http.StatusInternalServerError,
			Message: "Database error",
		})
	}
	if purchase == nil {
		return c.JSON(http.StatusNotFound, models.Response{
			Status:  http.StatusNotFound,
			Message: "Purchase not found",
		})
	}

	claims := middleware.GetUserFromToken(c)
	if claims.UserID != purchase.BuyerID.Hex() {
		return c.JSON(http.StatusForbidden, models.Response{
			Status:  http.StatusForbidden,
			Message: "You do not have access to this purchase",
		})
	}

	if purchase.Status != models.PurchaseStatusCaptured {
		status, phone, err := pc.gateway.GetPaymentStatus("USD", purchase.ExternalID)
		if err != nil {
			log.Printf("Verify: failed to check gateway status for purchase %s: %v", purchase.ID.Hex(), err)
			return c.JSON(http.StatusInternalServerError, models.Response{
				Status:  http.StatusInternalServerError,
				Message: "Failed to verify payment",
			})
		}
		if status != "success" {
			return c.JSON(http.StatusBadRequest, models.Response{
				Status:  http.StatusBadRequest,
				Message: fmt.Sprintf("Payment not successful, status: %s", status),
			})
		}

		captured, err := pc.purchases.CapturePurchase(ctx, purchase.ID, phone)
		if err != nil {
			log.Printf("Verify: failed to capture purchase %s: %v", purchase.ID.Hex(), err)
			return c.JSON(http.StatusInternalServerError, models.Response{
				Status:  http.StatusInternalServerError,
				Message: "Failed to process payment",
			})
		}
		if captured {
			log.Printf("Verify: purchase %s captured via synchronous verification", purchase.ID.Hex())
			if err := pc.purchases.GrantEnrollment(ctx, purchase); err != nil {
				log.Printf("Verify: failed to grant enrollment for purchase %s: %v", purchase.ID.Hex(), err)
			}
		}

		purchase, err = pc.purchases.FindByID(ctx, purchaseID)
		if err != nil || purchase == nil {
			log.Printf("Verify: failed to reload purchase %s: %v", purchaseID.Hex(), err)
			return c.JSON(http.StatusInternalServerError, models.Response{
				Status:  http.StatusInternalServerError,
				Message: "Database error",
			})
		}
	}

	if err := pc.commissions.ReconcilePurchase(ctx, purchase); err != nil {
		log.Printf("Verify: commission reconciliation failed for purchase %s: %v", purchase.ID.Hex(), err)
	}

	return c.JSON(http.StatusOK, models.Response{
		Status:  http.StatusOK,
		Message: "Payment verified",
		Data:    purchase,
	})
}
