// internal/api/api.go
package api

import (
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/replenlabs/supplyengine/internal/api/handlers"
	"github.com/replenlabs/supplyengine/internal/api/middleware"
	"github.com/replenlabs/supplyengine/internal/service"
)

type Services struct {
	EngineService *service.EngineService
}

func NewRouter(services *Services, allowedOrigins []string) *gin.Engine {
	router := gin.New()

	router.Use(middleware.Logger())
	router.Use(middleware.Recovery())
	defaultOrigins := []string{"http://localhost:3000", "http://127.0.0.1:3000"}
	corsConfig := cors.Config{
		AllowOrigins:     defaultOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(allowedOrigins) > 0 {
		normalizedOrigins, allowAll := normalizeAllowedOrigins(allowedOrigins)
		if allowAll {
			corsConfig.AllowOrigins = nil
			corsConfig.AllowOriginFunc = func(origin string) bool { return true }
		} else if len(normalizedOrigins) > 0 {
			corsConfig.AllowOrigins = normalizedOrigins
		}
	}
	router.Use(cors.New(corsConfig))

	apiGroup := router.Group("/api/v1")

	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	if services != nil && services.EngineService != nil {
		engineHandler := handlers.NewEngineHandler(services.EngineService)

		runGroup := apiGroup.Group("/runs")
		{
			runGroup.POST("", engineHandler.SubmitRun)
			runGroup.GET("/:id", engineHandler.GetRun)
		}

		productGroup := apiGroup.Group("/products")
		{
			productGroup.POST("", engineHandler.CreateProduct)
			productGroup.GET("/:sku", engineHandler.GetProduct)
			productGroup.GET("/:sku/inventory", engineHandler.GetInventory)
			productGroup.PUT("/:sku/inventory", engineHandler.PutInventory)
			productGroup.GET("/:sku/forecast", engineHandler.GetForecast)
		}

		apiGroup.GET("/anomalies", engineHandler.GetAnomalies)

		poGroup := apiGroup.Group("/purchase-orders")
		{
			poGroup.GET("/:id", engineHandler.GetPurchaseOrder)
			poGroup.POST("/:id/deliver", engineHandler.DeliverPurchaseOrder)
			poGroup.POST("/:id/cancel", engineHandler.CancelPurchaseOrder)
		}
	}

	return router
}

func normalizeAllowedOrigins(origins []string) ([]string, bool) {
	var (
		parsed   []string
		allowAll bool
	)
	for _, origin := range origins {
		parts := strings.Split(origin, ",")
		for _, part := range parts {
			trimmed := strings.TrimSpace(part)
			if trimmed == "" {
				continue
			}
			if trimmed == "*" {
				allowAll = true
				continue
			}
			parsed = append(parsed, trimmed)
		}
	}
	return parsed, allowAll
}
