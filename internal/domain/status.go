// internal/domain/status.go
package domain

// POStatus tracks a purchase order through its lifecycle.
type POStatus string

const (
	POPending   POStatus = "pending"
	POConfirmed POStatus = "confirmed"
	PODelivered POStatus = "delivered"
	POCancelled POStatus = "cancelled"
)

// ValidPOTransition reports whether a status change is allowed.
func ValidPOTransition(from, to POStatus) bool {
	switch from {
	case POPending:
		return to == POConfirmed || to == PODelivered || to == POCancelled
	case POConfirmed:
		return to == PODelivered || to == POCancelled
	default:
		return false
	}
}

// AnomalyKind classifies a detected deviation.
type AnomalyKind string

const (
	AnomalyInventoryDeviation  AnomalyKind = "inventory_deviation"
	AnomalyDemandSpike         AnomalyKind = "demand_spike"
	AnomalySupplierDegradation AnomalyKind = "supplier_degradation"
	AnomalyShrinkage           AnomalyKind = "shrinkage"
)

// AnomalySeverity grades how urgently an anomaly needs attention.
type AnomalySeverity string

const (
	SeverityLow    AnomalySeverity = "low"
	SeverityMedium AnomalySeverity = "medium"
	SeverityHigh   AnomalySeverity = "high"
)

// SeverityAtLeast reports whether s is at or above the given floor.
func SeverityAtLeast(s, floor AnomalySeverity) bool {
	rank := map[AnomalySeverity]int{SeverityLow: 0, SeverityMedium: 1, SeverityHigh: 2}
	return rank[s] >= rank[floor]
}
