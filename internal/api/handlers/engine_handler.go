// internal/api/handlers/engine_handler.go
package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/replenlabs/supplyengine/internal/domain"
	"github.com/replenlabs/supplyengine/internal/engine"
	"github.com/replenlabs/supplyengine/internal/service"
	"github.com/replenlabs/supplyengine/internal/store"
)

type EngineHandler struct {
	engineService *service.EngineService
}

func NewEngineHandler(engineService *service.EngineService) *EngineHandler {
	return &EngineHandler{engineService: engineService}
}

type submitRunRequest struct {
	SKU         string   `json:"sku" binding:"required"`
	Stages      []string `json:"stages"`
	DeadlineSec int      `json:"deadline_seconds"`
}

// SubmitRun enqueues a pipeline run for a SKU and returns its run id.
func (h *EngineHandler) SubmitRun(c *gin.Context) {
	var req submitRunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	item := engine.WorkItem{SKU: req.SKU}
	for _, s := range req.Stages {
		stage, err := engine.ParseStage(s)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		item.Stages = append(item.Stages, stage)
	}
	if req.DeadlineSec > 0 {
		item.Deadline = time.Now().Add(time.Duration(req.DeadlineSec) * time.Second)
	}

	runID, err := h.engineService.Submit(c.Request.Context(), item)
	if err != nil {
		log.Error().Err(err).Str("sku", req.SKU).Msg("failed to submit run")
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"run_id": runID})
}

// GetRun returns the current result for a run id.
func (h *EngineHandler) GetRun(c *gin.Context) {
	res, err := h.engineService.GetResult(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "run not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch run"})
		return
	}
	c.JSON(http.StatusOK, res)
}

// CreateProduct onboards a product.
func (h *EngineHandler) CreateProduct(c *gin.Context) {
	var p domain.Product
	if err := c.ShouldBindJSON(&p); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if err := h.engineService.OnboardProduct(c.Request.Context(), &p); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, p)
}

// GetProduct returns a product by SKU.
func (h *EngineHandler) GetProduct(c *gin.Context) {
	p, err := h.engineService.GetProduct(c.Request.Context(), c.Param("sku"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "product not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch product"})
		return
	}
	c.JSON(http.StatusOK, p)
}

// GetInventory lists the per-warehouse stock for a SKU.
func (h *EngineHandler) GetInventory(c *gin.Context) {
	records, err := h.engineService.ListInventory(c.Request.Context(), c.Param("sku"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch inventory"})
		return
	}
	c.JSON(http.StatusOK, records)
}

// PutInventory creates or replaces a stock level for seeding and corrections.
func (h *EngineHandler) PutInventory(c *gin.Context) {
	var inv domain.InventoryRecord
	if err := c.ShouldBindJSON(&inv); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	inv.SKU = c.Param("sku")
	if err := h.engineService.SetInventory(c.Request.Context(), &inv); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, inv)
}

// GetForecast returns the latest forecast for a SKU.
func (h *EngineHandler) GetForecast(c *gin.Context) {
	f, err := h.engineService.LatestForecast(c.Request.Context(), c.Param("sku"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "no forecast for sku"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch forecast"})
		return
	}
	c.JSON(http.StatusOK, f)
}

// GetAnomalies lists anomalies, optionally filtered by SKU.
func (h *EngineHandler) GetAnomalies(c *gin.Context) {
	anomalies, err := h.engineService.ListAnomalies(c.Request.Context(), c.Query("sku"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch anomalies"})
		return
	}
	c.JSON(http.StatusOK, anomalies)
}

// GetPurchaseOrder returns a purchase order by id.
func (h *EngineHandler) GetPurchaseOrder(c *gin.Context) {
	po, err := h.engineService.GetPurchaseOrder(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "purchase order not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch purchase order"})
		return
	}
	c.JSON(http.StatusOK, po)
}

// DeliverPurchaseOrder marks a PO delivered and receives stock.
func (h *EngineHandler) DeliverPurchaseOrder(c *gin.Context) {
	po, err := h.engineService.DeliverPO(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "purchase order not found"})
			return
		}
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, po)
}

// CancelPurchaseOrder cancels a pending or confirmed PO.
func (h *EngineHandler) CancelPurchaseOrder(c *gin.Context) {
	po, err := h.engineService.CancelPO(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "purchase order not found"})
			return
		}
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, po)
}
