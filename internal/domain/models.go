// internal/domain/models.go
package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product holds the replenishment parameters for a SKU. Products are created
// on onboarding and archived rather than deleted.
type Product struct {
	SKU                string    `json:"sku"`
	Name               string    `json:"name"`
	ReorderPoint       float64   `json:"reorder_point"`
	SafetyStock        float64   `json:"safety_stock"`
	LeadTimeDays       int       `json:"lead_time_days"`
	OrderingCost       float64   `json:"ordering_cost"`
	HoldingCostPerUnit float64   `json:"holding_cost_per_unit"`
	UnitPrice          float64   `json:"unit_price"`
	Archived           bool      `json:"archived"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// InventoryRecord is one (sku, warehouse) stock level. Version is the
// optimistic-lock token carried by the record store.
type InventoryRecord struct {
	SKU         string    `json:"sku"`
	WarehouseID string    `json:"warehouse_id"`
	Quantity    int       `json:"quantity"`
	Capacity    int       `json:"capacity"`
	Version     int64     `json:"version"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// SalesHistoryEntry is an append-only demand observation.
type SalesHistoryEntry struct {
	SKU         string    `json:"sku"`
	WarehouseID string    `json:"warehouse_id,omitempty"`
	Date        time.Time `json:"date"`
	Quantity    float64   `json:"quantity"`
	Revenue     float64   `json:"revenue"`
}

// Forecast is immutable once generated; later runs supersede it and the
// latest GeneratedAt wins.
type Forecast struct {
	ForecastID    string    `json:"forecast_id"`
	SKU           string    `json:"sku"`
	RunID         string    `json:"run_id"`
	HorizonDays   int       `json:"horizon_days"`
	PointEstimate float64   `json:"point_estimate"`
	CI80Low       float64   `json:"ci80_low"`
	CI80High      float64   `json:"ci80_high"`
	CI95Low       float64   `json:"ci95_low"`
	CI95High      float64   `json:"ci95_high"`
	LowConfidence bool      `json:"low_confidence"`
	SkippedRows   int       `json:"skipped_rows,omitempty"`
	GeneratedAt   time.Time `json:"generated_at"`
}

// AvgDailyDemand is the forecast demand rate per day.
func (f *Forecast) AvgDailyDemand() float64 {
	if f.HorizonDays <= 0 {
		return 0
	}
	return f.PointEstimate / float64(f.HorizonDays)
}

// Supplier is read-only input to procurement; mutated out-of-band.
type Supplier struct {
	SupplierID       string          `json:"supplier_id"`
	Name             string          `json:"name"`
	UnitPrice        decimal.Decimal `json:"unit_price"`
	ReliabilityScore float64         `json:"reliability_score"` // 0..1
	LeadTimeDays     int             `json:"lead_time_days"`
	MinOrderQty      int             `json:"min_order_qty"`
}

// SupplierMetric is a recent delivery-performance observation used by
// anomaly detection, compared against the trailing ReliabilityScore.
type SupplierMetric struct {
	SupplierID       string  `json:"supplier_id"`
	ReliabilityScore float64 `json:"reliability_score"`
	RecentOnTimeRate float64 `json:"recent_on_time_rate"`
}

// PurchaseOrder is created by the procurement stage. Status transitions are
// driven by delivery-tracking events outside the engine.
type PurchaseOrder struct {
	POID             string          `json:"po_id"`
	SKU              string          `json:"sku"`
	RunID            string          `json:"run_id"`
	SupplierID       string          `json:"supplier_id"`
	WarehouseID      string          `json:"warehouse_id"`
	Quantity         int             `json:"quantity"`
	UnitPrice        decimal.Decimal `json:"unit_price"`
	TotalPrice       decimal.Decimal `json:"total_price"`
	Status           POStatus        `json:"status"`
	ExpectedDelivery time.Time       `json:"expected_delivery"`
	MinOrderAdjusted bool            `json:"min_order_adjusted"`
	AdjustmentNote   string          `json:"adjustment_note,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
}

// Anomaly is immutable once detected.
type Anomaly struct {
	AnomalyID   string          `json:"anomaly_id"`
	SKU         string          `json:"sku"`
	Kind        AnomalyKind     `json:"kind"`
	Severity    AnomalySeverity `json:"severity"`
	Description string          `json:"description"`
	DetectedAt  time.Time       `json:"detected_at"`
}

// KPIReport aggregates the run outputs that close the control loop.
type KPIReport struct {
	SKU                 string    `json:"sku"`
	RunID               string    `json:"run_id"`
	InventoryTurnover   float64   `json:"inventory_turnover"`
	ForecastAccuracyPct float64   `json:"forecast_accuracy_pct"`
	SupplierReliability float64   `json:"supplier_reliability"`
	AnomalyCount        int       `json:"anomaly_count"`
	RecommendedSpend    float64   `json:"recommended_spend"`
	GeneratedAt         time.Time `json:"generated_at"`
}
