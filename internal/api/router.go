package api

import (
	"sales-engine/pkg/logger"
	"sales-engine/pkg/middleware"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// NewRouter builds the gin engine with the standard middleware chain and
// the engine's routes.
func NewRouter(handler *Handler, log *zap.Logger) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(logger.GinMiddleware(log))

	router.GET("/health", handler.Health)

	v1 := router.Group("/api/v1")
	{
		v1.GET("/products", handler.ListProducts)
		v1.POST("/cart/validate", handler.ValidateCart)
		v1.GET("/events", handler.StreamEvents)

		sales := v1.Group("/sales")
		{
			sales.POST("", handler.CommitSale)
			sales.GET("/pending", handler.ListPendingSales)
			sales.POST("/sync", handler.SyncPending)
			sales.GET("/:id", handler.GetSale)
		}
	}

	return router
}
