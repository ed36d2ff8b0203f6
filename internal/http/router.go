// README: HTTP route registration.
package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"giftwave/internal/http/handlers"
	"giftwave/internal/http/middleware"
)

func registerRoutes(r *gin.Engine, deps ServerDeps, limited, auth gin.HandlerFunc) {
	authHandler := handlers.NewAuthHandler(deps.Accounts)
	otpHandler := handlers.NewOTPHandler(deps.OTP)
	orderHandler := handlers.NewOrderHandler(deps.Order)
	riderHandler := handlers.NewRiderHandler(deps.Order, deps.Matching, deps.Dispatcher)
	adminHandler := handlers.NewAdminHandler(deps.Accounts, deps.Order, deps.Reputation)
	pricingHandler := handlers.NewPricingHandler(deps.Pricing)
	safetyHandler := handlers.NewSafetyHandler(deps.Safety)

	api := r.Group("/api")

	public := api.Group("", limited)
	public.POST("/auth/senders", authHandler.RegisterSender)
	public.POST("/auth/riders/start", authHandler.StartRider)
	public.POST("/auth/riders/complete", authHandler.CompleteRider)
	public.POST("/auth/signin", authHandler.SignIn)
	public.GET("/auth/session", authHandler.Session)
	public.POST("/otp", otpHandler.Generate)
	public.POST("/otp/:id/verify", otpHandler.Verify)
	public.POST("/otp/:id/resend", otpHandler.Resend)
	public.GET("/pricing/quote", pricingHandler.Quote)

	private := api.Group("", auth)
	private.POST("/me/profile-image", authHandler.ProfileImage)
	private.POST("/safety/alerts", safetyHandler.RaiseAlert)
	private.GET("/safety/alerts", safetyHandler.MyAlerts)
	private.POST("/safety/reports", safetyHandler.SubmitReport)
	private.GET("/safety/reports", safetyHandler.MyReports)

	orders := private.Group("/orders")
	orders.POST("", middleware.RequireRole("sender"), orderHandler.Create)
	orders.GET("", orderHandler.List)
	orders.GET("/:id", orderHandler.Get)
	orders.POST("/:id/payment", orderHandler.ConfirmPayment)
	orders.POST("/:id/dispute", orderHandler.Dispute)
	orders.POST("/:id/rating", orderHandler.Rate)
	orders.POST("/:id/cancel", orderHandler.Cancel)

	riders := private.Group("/riders", middleware.RequireRole("rider"))
	riders.GET("/orders/available", riderHandler.ListAvailable)
	riders.GET("/orders", riderHandler.ListMine)
	riders.POST("/orders/:id/claim", riderHandler.Claim)
	riders.POST("/orders/:id/price", riderHandler.ConfirmPrice)
	riders.POST("/orders/:id/deliver", riderHandler.Deliver)
	riders.POST("/orders/:id/media", riderHandler.AttachMedia)
	riders.PUT("/presence", riderHandler.UpdatePresence)
	riders.DELETE("/presence", riderHandler.RemovePresence)
	riders.GET("/earnings", riderHandler.Earnings)

	admin := private.Group("/admin", middleware.RequireRole("admin"))
	admin.GET("/riders", adminHandler.ListRiders)
	admin.POST("/riders/:id/review", adminHandler.ReviewRider)
	admin.POST("/riders/:id/reputation", adminHandler.RecomputeReputation)
	admin.POST("/users/:id/block", adminHandler.Block)
	admin.POST("/users/:id/unblock", adminHandler.Unblock)
	admin.GET("/orders/pending", adminHandler.PendingOrders)
	admin.POST("/orders/:id/refund", adminHandler.Refund)
	admin.GET("/safety/alerts", safetyHandler.Alerts)
	admin.POST("/safety/alerts/:id/resolve", safetyHandler.ResolveAlert)
	admin.GET("/reports", safetyHandler.Reports)
	admin.POST("/reports/:id/review", safetyHandler.ReviewReport)

	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "OK")
	})
}
