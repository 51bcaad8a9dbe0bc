// internal/engine/anomaly/detect_test.go
package anomaly

import (
	"strings"
	"testing"
	"time"

	"github.com/replenlabs/supplyengine/internal/domain"
)

func baseInput() Input {
	return Input{
		SKU:          "SKU-1",
		LeadTimeDays: 7,
		Forecast:     &domain.Forecast{SKU: "SKU-1", PointEstimate: 100, HorizonDays: 30},
		CurrentTotal: 100,
		DetectedAt:   time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC),
	}
}

func findKind(anomalies []domain.Anomaly, kind domain.AnomalyKind) *domain.Anomaly {
	for i := range anomalies {
		if anomalies[i].Kind == kind {
			return &anomalies[i]
		}
	}
	return nil
}

func TestDetectNoAnomalies(t *testing.T) {
	out := Detect(baseInput(), DefaultThresholds())
	if len(out) != 0 {
		t.Errorf("expected clean input to produce no anomalies, got %+v", out)
	}
}

func TestDetectInventoryDeviation(t *testing.T) {
	cases := []struct {
		name         string
		currentTotal int
		wantSeverity domain.AnomalySeverity
	}{
		// 50 vs forecast 100 is a 50% deviation; 50 units at 100/30 per day
		// covers 15 days, beyond the 7-day lead time.
		{name: "medium when stock covers lead time", currentTotal: 50, wantSeverity: domain.SeverityMedium},
		// 10 units covers 3 days, a stockout lands inside the lead time.
		{name: "high when stockout within lead time", currentTotal: 10, wantSeverity: domain.SeverityHigh},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			in := baseInput()
			in.CurrentTotal = tc.currentTotal

			out := Detect(in, DefaultThresholds())
			a := findKind(out, domain.AnomalyInventoryDeviation)
			if a == nil {
				t.Fatalf("expected inventory deviation anomaly, got %+v", out)
			}
			if a.Severity != tc.wantSeverity {
				t.Errorf("severity = %s, want %s", a.Severity, tc.wantSeverity)
			}
			if !strings.Contains(a.Description, "forecast") {
				t.Errorf("description should name the forecast value: %q", a.Description)
			}
		})
	}
}

func TestDetectInventoryWithinThreshold(t *testing.T) {
	in := baseInput()
	in.CurrentTotal = 85 // 15% deviation, under the 20% threshold

	if out := Detect(in, DefaultThresholds()); findKind(out, domain.AnomalyInventoryDeviation) != nil {
		t.Errorf("15%% deviation should not fire at a 20%% threshold: %+v", out)
	}
}

func TestDetectDemandSpike(t *testing.T) {
	cases := []struct {
		name         string
		realized     float64
		wantSeverity domain.AnomalySeverity
		wantFire     bool
	}{
		{name: "under threshold", realized: 125, wantFire: false},
		{name: "medium spike", realized: 140, wantFire: true, wantSeverity: domain.SeverityMedium},
		{name: "high above double", realized: 250, wantFire: true, wantSeverity: domain.SeverityHigh},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			in := baseInput()
			in.RollingAvgDemand = 100
			in.RealizedDemand = tc.realized

			out := Detect(in, DefaultThresholds())
			a := findKind(out, domain.AnomalyDemandSpike)
			if !tc.wantFire {
				if a != nil {
					t.Errorf("spike should not fire for realized %f: %+v", tc.realized, a)
				}
				return
			}
			if a == nil {
				t.Fatalf("expected demand spike anomaly for realized %f", tc.realized)
			}
			if a.Severity != tc.wantSeverity {
				t.Errorf("severity = %s, want %s", a.Severity, tc.wantSeverity)
			}
		})
	}
}

func TestDetectSupplierDegradation(t *testing.T) {
	in := baseInput()
	in.SupplierMetrics = []domain.SupplierMetric{
		{SupplierID: "sup-ok", ReliabilityScore: 0.95, RecentOnTimeRate: 0.90},
		{SupplierID: "sup-bad", ReliabilityScore: 0.95, RecentOnTimeRate: 0.70},
		{SupplierID: "sup-worse", ReliabilityScore: 0.95, RecentOnTimeRate: 0.55},
	}

	out := Detect(in, DefaultThresholds())

	if a := findKind(out, domain.AnomalySupplierDegradation); a == nil {
		t.Fatal("expected supplier degradation anomalies")
	}

	var degradations []domain.Anomaly
	for _, a := range out {
		if a.Kind == domain.AnomalySupplierDegradation {
			degradations = append(degradations, a)
		}
	}
	if len(degradations) != 2 {
		t.Fatalf("expected 2 degradation anomalies, got %d", len(degradations))
	}
	// Ordered by supplier id.
	if !strings.Contains(degradations[0].Description, "sup-bad") {
		t.Errorf("first degradation should name sup-bad: %q", degradations[0].Description)
	}
	if degradations[0].Severity != domain.SeverityMedium {
		t.Errorf("25pp drop should be medium, got %s", degradations[0].Severity)
	}
	if degradations[1].Severity != domain.SeverityHigh {
		t.Errorf("40pp drop should be high, got %s", degradations[1].Severity)
	}
}

func TestDetectShrinkage(t *testing.T) {
	cases := []struct {
		name         string
		currentTotal int
		wantFire     bool
		wantSeverity domain.AnomalySeverity
	}{
		// Snapshot 100, outflow 20: 80 expected.
		{name: "accounted for", currentTotal: 80, wantFire: false},
		{name: "small loss", currentTotal: 70, wantFire: true, wantSeverity: domain.SeverityMedium},
		{name: "large loss", currentTotal: 50, wantFire: true, wantSeverity: domain.SeverityHigh},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			in := baseInput()
			in.Forecast = nil // isolate the shrinkage detector
			in.HasSnapshot = true
			in.SnapshotTotal = 100
			in.RecordedOutflow = 20
			in.CurrentTotal = tc.currentTotal

			out := Detect(in, DefaultThresholds())
			a := findKind(out, domain.AnomalyShrinkage)
			if !tc.wantFire {
				if a != nil {
					t.Errorf("no shrinkage expected: %+v", a)
				}
				return
			}
			if a == nil {
				t.Fatal("expected shrinkage anomaly")
			}
			if a.Severity != tc.wantSeverity {
				t.Errorf("severity = %s, want %s", a.Severity, tc.wantSeverity)
			}
			if !strings.Contains(a.Description, "unaccounted") {
				t.Errorf("description should quantify the missing units: %q", a.Description)
			}
		})
	}
}

func TestDetectDeterministicOrder(t *testing.T) {
	in := baseInput()
	in.CurrentTotal = 10
	in.RollingAvgDemand = 100
	in.RealizedDemand = 300
	in.HasSnapshot = true
	in.SnapshotTotal = 100
	in.RecordedOutflow = 10
	in.SupplierMetrics = []domain.SupplierMetric{
		{SupplierID: "sup-b", ReliabilityScore: 0.9, RecentOnTimeRate: 0.6},
		{SupplierID: "sup-a", ReliabilityScore: 0.9, RecentOnTimeRate: 0.6},
	}

	first := Detect(in, DefaultThresholds())
	second := Detect(in, DefaultThresholds())

	if len(first) != len(second) {
		t.Fatalf("detection count changed: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i].Kind != second[i].Kind || first[i].Severity != second[i].Severity ||
			first[i].Description != second[i].Description {
			t.Errorf("anomaly %d differs between runs: %+v vs %+v", i, first[i], second[i])
		}
	}

	wantKinds := []domain.AnomalyKind{
		domain.AnomalyInventoryDeviation,
		domain.AnomalyDemandSpike,
		domain.AnomalySupplierDegradation, // sup-a
		domain.AnomalySupplierDegradation, // sup-b
		domain.AnomalyShrinkage,
	}
	if len(first) != len(wantKinds) {
		t.Fatalf("expected %d anomalies, got %d: %+v", len(wantKinds), len(first), first)
	}
	for i, kind := range wantKinds {
		if first[i].Kind != kind {
			t.Errorf("anomaly %d kind = %s, want %s", i, first[i].Kind, kind)
		}
	}
	if !strings.Contains(first[2].Description, "sup-a") {
		t.Errorf("supplier anomalies should be ordered by id, got %q first", first[2].Description)
	}
}
