// controllers/organization_controller.go
package controllers

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/edupartner/edupartner_backend/models"
	"github.com/edupartner/edupartner_backend/repositories"
)

// OrganizationController is the admin surface for partner organizations
// and their memberships.
type OrganizationController struct {
	orgs *repositories.OrganizationRepository
}

// NewOrganizationController creates a new organization controller
func NewOrganizationController(orgs *repositories.OrganizationRepository) *OrganizationController {
	return &OrganizationController{orgs: orgs}
}

// CreateOrganization registers a partner organization with its commission
// terms.
func (oc *OrganizationController) CreateOrganization(c echo.Context) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var req models.CreateOrganizationRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, models.Response{
			Status:  http.StatusBadRequest,
			Message: "Invalid request body",
		})
	}
	if err := c.Validate(&req); err != nil {
		return c.JSON(http.StatusBadRequest, models.Response{
			Status:  http.StatusBadRequest,
			Message: "Validation failed: " + err.Error(),
		})
	}

	org := &models.Organization{
		Name:                  req.Name,
		ContactEmail:          req.ContactEmail,
		CommissionRatePercent: req.CommissionRatePercent,
		MinimumGuarantee:      req.MinimumGuarantee,
		MemberDiscountPercent: req.MemberDiscountPercent,
		PayoutSchedule:        req.PayoutSchedule,
		IsActive:              true,
	}

	if err := oc.orgs.CreateOrganization(ctx, org); err != nil {
		log.Printf("Organization: failed to create organization: %v", err)
		return c.JSON(http.StatusInternalServerError, models.Response{
			Status:  http.StatusInternalServerError,
			Message: "Failed to create organization",
		})
	}

	return c.JSON(http.StatusCreated, models.Response{
		Status:  http.StatusCreated,
		Message: "Organization created successfully",
		Data:    org,
	})
}

// GetOrganization returns one organization by id.
func (oc *OrganizationController) GetOrganization(c echo.Context) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	id, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, models.Response{
			Status:  http.StatusBadRequest,
			Message: "Invalid organization ID format",
		})
	}

	org, err := oc.orgs.FindOrganization(ctx, id)
	if err != nil {
		log.Printf("Organization: lookup failed: %v", err)
		return c.JSON(http.StatusInternalServerError, models.Response{
			Status:  http.StatusInternalServerError,
			Message: "Failed to retrieve organization",
		})
	}
	if org == nil {
		return c.JSON(http.StatusNotFound, models.Response{
			Status:  http.StatusNotFound,
			Message: "Organization not found",
		})
	}

	return c.JSON(http.StatusOK, models.Response{
		Status:  http.StatusOK,
		Message: "Organization retrieved successfully",
		Data:    org,
	})
}

// AddMember attaches a user to an organization.
func (oc *OrganizationController) AddMember(c echo.Context) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	orgID, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, models.Response{
			Status:  http.StatusBadRequest,
			Message: "Invalid organization ID format",
		})
	}

	var req models.AddMemberRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, models.Response{
			Status:  http.StatusBadRequest,
			Message: "Invalid request body",
		})
	}
	if err := c.Validate(&req); err != nil {
		return c.JSON(http.StatusBadRequest, models.Response{
			Status:  http.StatusBadRequest,
			Message: "Validation failed: " + err.Error(),
		})
	}

	userID, err := primitive.ObjectIDFromHex(req.UserID)
	if err != nil {
		return c.JSON(http.StatusBadRequest, models.Response{
			Status:  http.StatusBadRequest,
			Message: "Invalid user ID format",
		})
	}

	org, err := oc.orgs.FindOrganization(ctx, orgID)
	if err != nil {
		log.Printf("Organization: lookup failed: %v", err)
		return c.JSON(http.StatusInternalServerError, models.Response{
			Status:  http.StatusInternalServerError,
			Message: "Failed to verify organization",
		})
	}
	if org == nil {
		return c.JSON(http.StatusNotFound, models.Response{
			Status:  http.StatusNotFound,
			Message: "Organization not found",
		})
	}

	member := &models.OrganizationMember{
		OrganizationID: orgID,
		UserID:         userID,
		Status:         req.Status,
	}
	if err := oc.orgs.AddMember(ctx, member); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return c.JSON(http.StatusConflict, models.Response{
				Status:  http.StatusConflict,
				Message: "User already belongs to an organization",
			})
		}
		log.Printf("Organization: failed to add member: %v", err)
		return c.JSON(http.StatusInternalServerError, models.Response{
			Status:  http.StatusInternalServerError,
			Message: "Failed to add member",
		})
	}

	return c.JSON(http.StatusCreated, models.Response{
		Status:  http.StatusCreated,
		Message: "Member added successfully",
		Data:    member,
	})
}

// UpdateMemberStatus changes a membership status. Moving a member out of
// active/registered stops new commission for them; line items already on
// a ledger are unaffected.
func (oc *OrganizationController) UpdateMemberStatus(c echo.Context) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	orgID, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, models.Response{
			Status:  http.StatusBadRequest,
			Message: "Invalid organization ID format",
		})
	}
	userID, err := primitive.ObjectIDFromHex(c.Param("userId"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, models.Response{
			Status:  http.StatusBadRequest,
			Message: "Invalid user ID format",
		})
	}

	var req models.UpdateMemberStatusRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, models.Response{
			Status:  http.StatusBadRequest,
			Message: "Invalid request body",
		})
	}
	if err := c.Validate(&req); err != nil {
		return c.JSON(http.StatusBadRequest, models.Response{
			Status:  http.StatusBadRequest,
			Message: "Validation failed: " + err.Error(),
		})
	}

	updated, err := oc.orgs.UpdateMemberStatus(ctx, orgID, userID, req.Status)
	if err != nil {
		log.Printf("Organization: failed to update member status: %v", err)
		return c.JSON(http.StatusInternalServerError, models.Response{
			Status:  http.StatusInternalServerError,
			Message: "Failed to update member status",
		})
	}
	if !updated {
		return c.JSON(http.StatusNotFound, models.Response{
			Status:  http.StatusNotFound,
			Message: "Membership not found",
		})
	}

	return c.JSON(http.StatusOK, models.Response{
		Status:  http.StatusOK,
		Message: "Member status updated",
	})
}

// GetMembers lists all members of an organization.
func (oc *OrganizationController) GetMembers(c echo.Context) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	orgID, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, models.Response{
			Status:  http.StatusBadRequest,
			Message: "Invalid organization ID format",
		})
	}

	members, err := oc.orgs.ListMembers(ctx, orgID)
	if err != nil {
		log.Printf("Organization: failed to list members: %v", err)
		return c.JSON(http.StatusInternalServerError, models.Response{
			Status:  http.StatusInternalServerError,
			Message: "Failed to retrieve members",
		})
	}

	return c.JSON(http.StatusOK, models.Response{
		Status:  http.StatusOK,
		Message: "Members retrieved successfully",
		Data:    members,
	})
}
