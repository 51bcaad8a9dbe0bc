// internal/engine/anomaly/detect.go
package anomaly

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/replenlabs/supplyengine/internal/domain"
)

// Thresholds are the deviation limits each detector fires at.
type Thresholds struct {
	InventoryDeviationPct float64 // |current-forecast| relative to forecast
	DemandSpikePct        float64 // realized demand vs rolling average
	SupplierDegradationPP float64 // on-time rate drop, in rate points
}

// DefaultThresholds matches the documented detection contract.
func DefaultThresholds() Thresholds {
	return Thresholds{
		InventoryDeviationPct: 0.20,
		DemandSpikePct:        0.30,
		SupplierDegradationPP: 0.15,
	}
}

// Input carries everything the detectors look at. All fields are plain
// values; detection is a single deterministic pass with no storage access.
type Input struct {
	SKU              string
	LeadTimeDays     int
	Forecast         *domain.Forecast
	CurrentTotal     int
	RealizedDemand   float64 // demand observed over the recent window
	RollingAvgDemand float64 // trailing average over the same window length
	HasSnapshot      bool
	SnapshotTotal    int     // on-hand total at the previous run
	RecordedOutflow  float64 // sales + transfers recorded since the snapshot
	SupplierMetrics  []domain.SupplierMetric
	DetectedAt       time.Time
}

// Detect classifies deviations between current and expected values. Identical
// inputs produce the same anomalies in the same order; every description
// names the triggering metric values so consumers can act without re-querying.
func Detect(in Input, th Thresholds) []domain.Anomaly {
	var out []domain.Anomaly

	emit := func(kind domain.AnomalyKind, severity domain.AnomalySeverity, description string) {
		out = append(out, domain.Anomaly{
			AnomalyID:   uuid.NewString(),
			SKU:         in.SKU,
			Kind:        kind,
			Severity:    severity,
			Description: description,
			DetectedAt:  in.DetectedAt,
		})
	}

	if in.Forecast != nil {
		point := in.Forecast.PointEstimate
		deviation := math.Abs(float64(in.CurrentTotal)-point) / math.Max(point, 1)
		if deviation > th.InventoryDeviationPct {
			severity := domain.SeverityMedium
			avgDaily := in.Forecast.AvgDailyDemand()
			if float64(in.CurrentTotal) < point && avgDaily > 0 &&
				float64(in.CurrentTotal)/avgDaily < float64(in.LeadTimeDays) {
				severity = domain.SeverityHigh
			}
			emit(domain.AnomalyInventoryDeviation, severity, fmt.Sprintf(
				"inventory %d deviates %.1f%% from forecast %.1f (threshold %.0f%%)",
				in.CurrentTotal, deviation*100, point, th.InventoryDeviationPct*100))
		}
	}

	if in.RollingAvgDemand > 0 && in.RealizedDemand > in.RollingAvgDemand*(1+th.DemandSpikePct) {
		excess := (in.RealizedDemand/in.RollingAvgDemand - 1) * 100
		severity := domain.SeverityMedium
		if in.RealizedDemand > in.RollingAvgDemand*2 {
			severity = domain.SeverityHigh
		}
		emit(domain.AnomalyDemandSpike, severity, fmt.Sprintf(
			"realized demand %.1f exceeds rolling average %.1f by %.1f%% (threshold %.0f%%)",
			in.RealizedDemand, in.RollingAvgDemand, excess, th.DemandSpikePct*100))
	}

	metrics := append([]domain.SupplierMetric(nil), in.SupplierMetrics...)
	sort.Slice(metrics, func(i, j int) bool { return metrics[i].SupplierID < metrics[j].SupplierID })
	for _, m := range metrics {
		drop := m.ReliabilityScore - m.RecentOnTimeRate
		if drop > th.SupplierDegradationPP {
			severity := domain.SeverityMedium
			if drop > 2*th.SupplierDegradationPP {
				severity = domain.SeverityHigh
			}
			emit(domain.AnomalySupplierDegradation, severity, fmt.Sprintf(
				"supplier %s on-time rate %.2f dropped %.0fpp below trailing reliability %.2f (threshold %.0fpp)",
				m.SupplierID, m.RecentOnTimeRate, drop*100, m.ReliabilityScore, th.SupplierDegradationPP*100))
		}
	}

	if in.HasSnapshot {
		expected := float64(in.SnapshotTotal) - in.RecordedOutflow
		missing := expected - float64(in.CurrentTotal)
		if missing >= 1 {
			severity := domain.SeverityMedium
			if in.SnapshotTotal > 0 && missing/float64(in.SnapshotTotal) > 0.2 {
				severity = domain.SeverityHigh
			}
			emit(domain.AnomalyShrinkage, severity, fmt.Sprintf(
				"inventory fell from %d to %d with only %.0f units of recorded sales/transfers; %.0f units unaccounted",
				in.SnapshotTotal, in.CurrentTotal, in.RecordedOutflow, missing))
		}
	}

	return out
}
