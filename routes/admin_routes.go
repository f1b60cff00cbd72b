package routes

import (
	"github.com/labstack/echo/v4"

	"github.com/edupartner/edupartner_backend/controllers"
	"github.com/edupartner/edupartner_backend/middleware"
)

// RegisterAdminRoutes sets up the commission and organization management
// routes. Everything here requires an admin or super admin token.
func RegisterAdminRoutes(e *echo.Echo, commissionController *controllers.CommissionController, organizationController *controllers.OrganizationController) {
	admin := e.Group("/api/admin")
	admin.Use(middleware.JWTMiddleware())
	admin.Use(middleware.RequireUserType("admin", "super_admin"))

	// Commission ledger routes
	admin.GET("/commissions", commissionController.GetCommissionLedgers)
	admin.GET("/commissions/summary", commissionController.GetCommissionSummary)
	admin.GET("/commissions/:id", commissionController.GetCommissionLedger)
	admin.POST("/commissions/:id/pay", commissionController.MarkCommissionPaid)
	admin.PUT("/commissions/:id/status", commissionController.UpdateCommissionStatus)

	// Organization routes
	admin.POST("/organizations", organizationController.CreateOrganization)
	admin.GET("/organizations/:id", organizationController.GetOrganization)
	admin.GET("/organizations/:id/members", organizationController.GetMembers)
	admin.POST("/organizations/:id/members", organizationController.AddMember)
	admin.PUT("/organizations/:id/members/:userId/status", organizationController.UpdateMemberStatus)
}
