// controllers/commission_controller.go
package controllers

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/labstack/echo/v4"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/edupartner/edupartner_backend/middleware"
	"github.com/edupartner/edupartner_backend/models"
	"github.com/edupartner/edupartner_backend/repositories"
	"github.com/edupartner/edupartner_backend/services"
)

const summaryCacheKey = "commission:summary"
const summaryCacheTTL = 60 * time.Second

// CommissionController is the admin surface over the commission ledgers:
// listing, payout finalization, the dispute workflow, and the dashboard
// summary.
type CommissionController struct {
	ledgers *repositories.CommissionRepository
	payouts *services.PayoutService
	cache   *redis.Client
}

// NewCommissionController creates a new commission controller
func NewCommissionController(ledgers *repositories.CommissionRepository, payouts *services.PayoutService, cache *redis.Client) *CommissionController {
	return &CommissionController{
		ledgers: ledgers,
		payouts: payouts,
		cache:   cache,
	}
}

// GetCommissionLedgers lists ledgers filtered by status, organization, and
// period date range, paginated.
func (cc *CommissionController) GetCommissionLedgers(c echo.Context) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	filter := repositories.LedgerFilter{
		Status: c.QueryParam("status"),
	}

	if filter.Status != "" && !models.IsValidLedgerStatus(filter.Status) {
		return c.JSON(http.StatusBadRequest, models.Response{
			Status:  http.StatusBadRequest,
			Message: "Unknown ledger status",
		})
	}

	if orgParam := c.QueryParam("organizationId"); orgParam != "" {
		orgID, err := primitive.ObjectIDFromHex(orgParam)
		if err != nil {
			return c.JSON(http.StatusBadRequest, models.Response{
				Status:  http.StatusBadRequest,
				Message: "Invalid organization ID format",
			})
		}
		filter.OrganizationID = orgID
	}

	if fromParam := c.QueryParam("from"); fromParam != "" {
		from, err := time.Parse(time.RFC3339, fromParam)
		if err != nil {
			return c.JSON(http.StatusBadRequest, models.Response{
				Status:  http.StatusBadRequest,
				Message: "Invalid from date, expected RFC3339",
			})
		}
		filter.From = &from
	}
	if toParam := c.QueryParam("to"); toParam != "" {
		to, err := time.Parse(time.RFC3339, toParam)
		if err != nil {
			return c.JSON(http.StatusBadRequest, models.Response{
				Status:  http.StatusBadRequest,
				Message: "Invalid to date, expected RFC3339",
			})
		}
		filter.To = &to
	}

	filter.Page, _ = strconv.ParseInt(c.QueryParam("page"), 10, 64)
	filter.Limit, _ = strconv.ParseInt(c.QueryParam("limit"), 10, 64)

	ledgers, total, err := cc.ledgers.List(ctx, filter)
	if err != nil {
		log.Printf("Commission: ledger listing failed: %v", err)
		return c.JSON(http.StatusInternalServerError, models.Response{
			Status:  http.StatusInternalServerError,
			Message: "Failed to retrieve commission ledgers",
		})
	}

	return c.JSON(http.StatusOK, models.Response{
		Status:  http.StatusOK,
		Message: "Commission ledgers retrieved successfully",
		Data: map[string]interface{}{
			"ledgers": ledgers,
			"total":   total,
		},
	})
}

// GetCommissionLedger returns one ledger with its line items and payouts.
func (cc *CommissionController) GetCommissionLedger(c echo.Context) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	id, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, models.Response{
			Status:  http.StatusBadRequest,
			Message: "Invalid ledger ID format",
		})
	}

	ledger, err := cc.ledgers.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, repositories.ErrLedgerNotFound) {
			return c.JSON(http.StatusNotFound, models.Response{
				Status:  http.StatusNotFound,
				Message: "Commission ledger not found",
			})
		}
		log.Printf("Commission: ledger lookup failed: %v", err)
		return c.JSON(http.StatusInternalServerError, models.Response{
			Status:  http.StatusInternalServerError,
			Message: "Failed to retrieve commission ledger",
		})
	}

	return c.JSON(http.StatusOK, models.Response{
		Status:  http.StatusOK,
		Message: "Commission ledger retrieved successfully",
		Data:    ledger,
	})
}

// MarkCommissionPaid finalizes a ledger payout. A second call on the same
// ledger is rejected and the first call's payment metadata is untouched.
func (cc *CommissionController) MarkCommissionPaid(c echo.Context) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	id, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, models.Response{
			Status:  http.StatusBadRequest,
			Message: "Invalid ledger ID format",
		})
	}

	var req models.MarkPaidRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, models.Response{
			Status:  http.StatusBadRequest,
			Message: "Invalid request body",
		})
	}
	if err := c.Validate(&req); err != nil {
		return c.JSON(http.StatusBadRequest, models.Response{
			Status:  http.StatusBadRequest,
			Message: "Payment method is required",
		})
	}

	claims := middleware.GetUserFromToken(c)
	ledger, err := cc.payouts.MarkLedgerPaid(ctx, id, claims.Email, req)
	if err != nil {
		switch {
		case errors.Is(err, repositories.ErrLedgerNotFound):
			return c.JSON(http.StatusNotFound, models.Response{
				Status:  http.StatusNotFound,
				Message: "Commission ledger not found",
			})
		case errors.Is(err, repositories.ErrLedgerAlreadyPaid):
			return c.JSON(http.StatusConflict, models.Response{
				Status:  http.StatusConflict,
				Message: "Commission ledger is already paid",
			})
		default:
			log.Printf("Commission: payout finalization failed for ledger %s: %v", id.Hex(), err)
			return c.JSON(http.StatusInternalServerError, models.Response{
				Status:  http.StatusInternalServerError,
				Message: "Failed to mark commission paid",
			})
		}
	}

	cc.invalidateSummary(ctx)

	return c.JSON(http.StatusOK, models.Response{
		Status:  http.StatusOK,
		Message: "Commission marked as paid",
		Data:    ledger,
	})
}

// UpdateCommissionStatus moves a ledger along the dispute workflow.
func (cc *CommissionController) UpdateCommissionStatus(c echo.Context) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	id, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, models.Response{
			Status:  http.StatusBadRequest,
			Message: "Invalid ledger ID format",
		})
	}

	var req models.UpdateLedgerStatusRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, models.Response{
			Status:  http.StatusBadRequest,
			Message: "Invalid request body",
		})
	}
	if err := c.Validate(&req); err != nil {
		return c.JSON(http.StatusBadRequest, models.Response{
			Status:  http.StatusBadRequest,
			Message: "Status is required",
		})
	}

	claims := middleware.GetUserFromToken(c)
	ledger, err := cc.payouts.UpdateLedgerStatus(ctx, id, claims.Email, req.Status)
	if err != nil {
		switch {
		case errors.Is(err, repositories.ErrLedgerNotFound):
			return c.JSON(http.StatusNotFound, models.Response{
				Status:  http.StatusNotFound,
				Message: "Commission ledger not found",
			})
		case errors.Is(err, services.ErrUnknownStatus), errors.Is(err, services.ErrPaidViaFinalizer):
			return c.JSON(http.StatusBadRequest, models.Response{
				Status:  http.StatusBadRequest,
				Message: err.Error(),
			})
		case errors.Is(err, services.ErrInvalidTransition), errors.Is(err, repositories.ErrStatusConflict):
			return c.JSON(http.StatusConflict, models.Response{
				Status:  http.StatusConflict,
				Message: err.Error(),
			})
		default:
			log.Printf("Commission: status update failed for ledger %s: %v", id.Hex(), err)
			return c.JSON(http.StatusInternalServerError, models.Response{
				Status:  http.StatusInternalServerError,
				Message: "Failed to update commission status",
			})
		}
	}

	cc.invalidateSummary(ctx)

	return c.JSON(http.StatusOK, models.Response{
		Status:  http.StatusOK,
		Message: "Commission status updated",
		Data:    ledger,
	})
}

// GetCommissionSummary returns ledger counts and amounts grouped by
// status for dashboards. The aggregation result is cached briefly.
func (cc *CommissionController) GetCommissionSummary(c echo.Context) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if cc.cache != nil {
		cached, err := cc.cache.Get(ctx, summaryCacheKey).Result()
		if err == nil && cached != "" {
			return c.JSON(http.StatusOK, models.Response{
				Status:  http.StatusOK,
				Message: "Commission summary retrieved successfully",
				Data:    json.RawMessage(cached),
			})
		}
	}

	rows, err := cc.ledgers.Summary(ctx)
	if err != nil {
		log.Printf("Commission: summary aggregation failed: %v", err)
		return c.JSON(http.StatusInternalServerError, models.Response{
			Status:  http.StatusInternalServerError,
			Message: "Failed to retrieve commission summary",
		})
	}

	if cc.cache != nil {
		if payload, err := json.Marshal(rows); err == nil {
			if err := cc.cache.Set(ctx, summaryCacheKey, payload, summaryCacheTTL).Err(); err != nil {
				log.Printf("Commission: failed to cache summary: %v", err)
			}
		}
	}

	return c.JSON(http.StatusOK, models.Response{
		Status:  http.StatusOK,
		Message: "Commission summary retrieved successfully",
		Data:    rows,
	})
}

func (cc *CommissionController) invalidateSummary(ctx context.Context) {
	if cc.cache == nil {
		return
	}
	if err := cc.cache.Del(ctx, summaryCacheKey).Err(); err != nil {
		log.Printf("Commission: failed to invalidate summary cache: %v", err)
	}
}
