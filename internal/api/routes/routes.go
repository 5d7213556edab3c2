package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/gocomet/afya-transport/internal/api/handlers"
	"github.com/gocomet/afya-transport/pkg/metrics"
	"github.com/newrelic/go-agent/v3/integrations/nrgin"
	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SetupRoutes configures all API routes
func SetupRoutes(r *gin.Engine, h *handlers.Handlers, nrApp *newrelic.Application) {
	// Add New Relic middleware if enabled
	if nrApp != nil {
		r.Use(nrgin.Middleware(nrApp))
	}
	r.Use(metrics.Middleware())

	r.GET("/health", h.Health)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API v1 routes
	v1 := r.Group("/v1")
	{
		// WebSocket connection
		v1.GET("/ws", h.HandleWebSocket)

		// Transport request endpoints
		requests := v1.Group("/requests")
		{
			requests.POST("", h.CreateRequest)
			requests.GET("/open", h.ListOpenRequests)
			requests.GET("/:id", h.GetRequest)
			requests.GET("/:id/candidates", h.ListRequestCandidates)
			requests.POST("/:id/auto-assign", h.AutoAssign)
			requests.POST("/:id/accept", h.AcceptRequest)
			requests.POST("/:id/reject", h.RejectRequest)
			requests.POST("/:id/start", h.StartRide)
			requests.POST("/:id/complete", h.CompleteRide)
			requests.POST("/:id/cancel", h.CancelRequest)
			requests.POST("/:id/rating", h.RateRide)
		}

		// Rider endpoints
		riders := v1.Group("/riders")
		{
			riders.POST("", h.RegisterRider)
			riders.GET("/nearby", h.ListNearbyRiders)
			riders.GET("/:id", h.GetRider)
			riders.POST("/:id/location", h.UpdateRiderLocation)
			riders.POST("/:id/status", h.SetRiderOnline)
			riders.GET("/:id/stats", h.GetRiderStats)
		}

		// Per-user views
		users := v1.Group("/users/:id")
		{
			users.GET("/requests", h.ListUserRequests)
			users.GET("/wallet", h.GetWallet)
			users.POST("/wallet", h.OpenWallet)
			users.GET("/transactions", h.ListTransactions)
			users.GET("/loans", h.ListLoans)
			users.GET("/credit-profile", h.GetCreditProfile)
			users.POST("/credit-profile/refresh", h.RefreshCreditProfile)
		}

		// Wallet endpoints
		transactions := v1.Group("/transactions")
		{
			transactions.POST("", h.RecordTransaction)
			transactions.GET("/:id", h.GetTransaction)
		}

		loans := v1.Group("/loans")
		{
			loans.POST("", h.ApplyForLoan)
			loans.GET("/:id", h.GetLoan)
			loans.POST("/:id/approve", h.ApproveLoan)
			loans.POST("/:id/reject", h.RejectLoan)
			loans.POST("/:id/disburse", h.DisburseLoan)
			loans.POST("/:id/payments", h.MakeLoanPayment)
		}

		v1.GET("/audit/:key", h.GetAuditTrail)
	}
}
