package routes

import (
	"shipping-gateway/controllers"

	"github.com/gin-gonic/gin"
)

// RegisterRoutes sets up all API routes.
func RegisterRoutes(r *gin.Engine, sc *controllers.ShippingController) {
	r.GET("/health", sc.Health)

	api := r.Group("/api")

	api.POST("/rates", sc.GetRates)
	api.POST("/purchase", sc.PurchaseLabel)
	api.POST("/validate", sc.ValidateAddress)

	api.GET("/history", sc.History)
	api.GET("/track/:provider/:tracking_number", sc.TrackShipment)
}
