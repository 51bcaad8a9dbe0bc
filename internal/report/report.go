// internal/report/report.go
package report

import (
	"context"
	"math"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/replenlabs/supplyengine/internal/domain"
	"github.com/replenlabs/supplyengine/internal/engine/optimize"
)

// Payload is what gets handed to the external report renderer.
type Payload struct {
	KPIs        domain.KPIReport `json:"kpis"`
	GeneratedAt time.Time        `json:"generated_at"`
}

// Publisher delivers report payloads to an external consumer.
type Publisher interface {
	Publish(ctx context.Context, payload *Payload) error
}

// BuildInput collects the stage outputs the reporting stage aggregates.
type BuildInput struct {
	SKU             string
	RunID           string
	Forecast        *domain.Forecast
	Optimization    *optimize.Result
	PurchaseOrder   *domain.PurchaseOrder // nil when no reorder was recommended
	Anomalies       []domain.Anomaly
	SupplierMetrics []domain.SupplierMetric
	PrevForecast    *domain.Forecast // forecast the previous run generated
	RealizedDemand  float64          // demand observed since the previous forecast
}

// Build computes the run KPIs: inventory turnover, forecast accuracy against
// realized demand, average supplier reliability, anomaly count, and the spend
// this run recommends.
func Build(in BuildInput) *domain.KPIReport {
	kpi := &domain.KPIReport{
		SKU:          in.SKU,
		RunID:        in.RunID,
		AnomalyCount: len(in.Anomalies),
		GeneratedAt:  time.Now().UTC(),
	}

	if in.Forecast != nil && in.Optimization != nil {
		annualDemand := in.Forecast.AvgDailyDemand() * 365
		kpi.InventoryTurnover = annualDemand / math.Max(float64(in.Optimization.TotalOnHand), 1)
	}

	if in.PrevForecast != nil && in.RealizedDemand > 0 {
		ape := math.Abs(in.PrevForecast.PointEstimate-in.RealizedDemand) / in.RealizedDemand
		kpi.ForecastAccuracyPct = math.Max(0, 1-ape) * 100
	}

	if len(in.SupplierMetrics) > 0 {
		var sum float64
		for _, m := range in.SupplierMetrics {
			sum += m.RecentOnTimeRate
		}
		kpi.SupplierReliability = sum / float64(len(in.SupplierMetrics))
	}

	if in.PurchaseOrder != nil {
		kpi.RecommendedSpend, _ = in.PurchaseOrder.TotalPrice.Float64()
	}

	return kpi
}

// LogPublisher writes the report to the process log. It is the default sink
// when no object storage is configured.
type LogPublisher struct{}

func (LogPublisher) Publish(ctx context.Context, payload *Payload) error {
	log.Info().
		Str("sku", payload.KPIs.SKU).
		Str("run_id", payload.KPIs.RunID).
		Float64("turnover", payload.KPIs.InventoryTurnover).
		Float64("forecast_accuracy_pct", payload.KPIs.ForecastAccuracyPct).
		Float64("supplier_reliability", payload.KPIs.SupplierReliability).
		Int("anomalies", payload.KPIs.AnomalyCount).
		Float64("recommended_spend", payload.KPIs.RecommendedSpend).
		Msg("report published")
	return nil
}
