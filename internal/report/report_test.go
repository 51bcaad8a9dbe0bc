// internal/report/report_test.go
package report

import (
	"math"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/replenlabs/supplyengine/internal/domain"
	"github.com/replenlabs/supplyengine/internal/engine/optimize"
)

func TestBuildKPIs(t *testing.T) {
	in := BuildInput{
		SKU:   "SKU-1",
		RunID: "run-1",
		Forecast: &domain.Forecast{
			SKU: "SKU-1", PointEstimate: 300, HorizonDays: 30,
		},
		Optimization: &optimize.Result{TotalOnHand: 100},
		PurchaseOrder: &domain.PurchaseOrder{
			TotalPrice: decimal.NewFromInt(1620),
		},
		Anomalies: []domain.Anomaly{{AnomalyID: "a1"}, {AnomalyID: "a2"}},
		SupplierMetrics: []domain.SupplierMetric{
			{SupplierID: "sup-a", RecentOnTimeRate: 0.90},
			{SupplierID: "sup-b", RecentOnTimeRate: 0.80},
		},
		PrevForecast:   &domain.Forecast{PointEstimate: 330},
		RealizedDemand: 300,
	}

	kpi := Build(in)

	// 10 units/day * 365 over 100 on hand.
	wantTurnover := 10.0 * 365 / 100
	if math.Abs(kpi.InventoryTurnover-wantTurnover) > 1e-9 {
		t.Errorf("turnover = %f, want %f", kpi.InventoryTurnover, wantTurnover)
	}

	// 10% absolute percentage error gives 90% accuracy.
	if math.Abs(kpi.ForecastAccuracyPct-90) > 1e-9 {
		t.Errorf("accuracy = %f, want 90", kpi.ForecastAccuracyPct)
	}

	if math.Abs(kpi.SupplierReliability-0.85) > 1e-9 {
		t.Errorf("reliability = %f, want 0.85", kpi.SupplierReliability)
	}
	if kpi.AnomalyCount != 2 {
		t.Errorf("anomaly count = %d, want 2", kpi.AnomalyCount)
	}
	if math.Abs(kpi.RecommendedSpend-1620) > 1e-9 {
		t.Errorf("spend = %f, want 1620", kpi.RecommendedSpend)
	}
}

func TestBuildMissingInputs(t *testing.T) {
	kpi := Build(BuildInput{SKU: "SKU-1", RunID: "run-1"})

	if kpi.InventoryTurnover != 0 || kpi.ForecastAccuracyPct != 0 ||
		kpi.SupplierReliability != 0 || kpi.RecommendedSpend != 0 {
		t.Errorf("missing inputs must yield zero KPIs, got %+v", kpi)
	}
	if kpi.GeneratedAt.IsZero() {
		t.Error("report must be timestamped")
	}
}

func TestBuildWildlyWrongForecastClampsAtZero(t *testing.T) {
	kpi := Build(BuildInput{
		SKU:            "SKU-1",
		RunID:          "run-1",
		PrevForecast:   &domain.Forecast{PointEstimate: 1000},
		RealizedDemand: 100,
	})
	if kpi.ForecastAccuracyPct != 0 {
		t.Errorf("accuracy = %f, want clamp at 0", kpi.ForecastAccuracyPct)
	}
}
