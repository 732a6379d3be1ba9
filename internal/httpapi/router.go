package httpapi

import (
	"github.com/gin-gonic/gin"
)

// NewRouter registers every route on a fresh engine. Courier routes are
// served under both the legacy /deliveryboy and the /curior prefixes.
func NewRouter(h *Handler, secret []byte) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), RequestID(), Logger())

	r.GET("/healthz", h.health)

	legacy := r.Group("/deliveryboy", RequireRole(secret, RoleCourier))
	legacy.POST("/deliver/:id", h.confirmDelivery)

	courier := r.Group("/curior", RequireRole(secret, RoleCourier))
	{
		courier.POST("/orders/:id/pickup", h.confirmPickup)
		courier.POST("/orders/:id/transit", h.markInTransit)
		courier.POST("/orders/:id/deliver", h.confirmDelivery)
		courier.POST("/orders/:id/cod", h.collectCOD)
		courier.GET("/settlements", h.listSettlements)
	}

	seller := r.Group("/seller", RequireRole(secret, RoleSeller))
	seller.GET("/wallet", h.sellerWallet)

	admin := r.Group("/admin", RequireRole(secret, RoleAdmin))
	{
		admin.POST("/orders/:id/payout", h.processPayout)
		admin.POST("/orders/:id/fulfill", h.processDelivery)
		admin.POST("/orders/:id/assign", h.assignCourier)
		admin.POST("/orders/:id/cancel", h.cancelOrder)
		admin.POST("/orders/:id/return", h.returnOrder)
		admin.POST("/couriers/:id/settle", h.settleCourier)

		if h.PayoutReconciler != nil {
			admin.POST("/reconcile/payouts", h.reconcilePayouts)
		}
		if h.ReferralReconciler != nil {
			admin.POST("/reconcile/referrals", h.reconcileReferrals)
		}
	}

	return r
}
