// internal/engine/procure/procure.go
package procure

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/replenlabs/supplyengine/internal/domain"
)

// Weights control the supplier score trade-off. Lower price and lead time
// score higher, higher reliability scores higher.
type Weights struct {
	Price       float64
	LeadTime    float64
	Reliability float64
}

func DefaultWeights() Weights {
	return Weights{Price: 0.4, LeadTime: 0.3, Reliability: 0.3}
}

// ErrNoSuppliers rejects procurement when the candidate list is empty. This
// is the one validation failure the stage propagates instead of absorbing.
var ErrNoSuppliers = fmt.Errorf("procure: no candidate suppliers")

// SelectSupplier scores each candidate and returns the best one. Ties are
// broken by lowest supplier_id so repeated runs pick the same supplier.
func SelectSupplier(candidates []domain.Supplier, w Weights) (*domain.Supplier, error) {
	if len(candidates) == 0 {
		return nil, ErrNoSuppliers
	}

	minPrice := candidates[0].UnitPrice
	minLead := candidates[0].LeadTimeDays
	for _, s := range candidates[1:] {
		if s.UnitPrice.LessThan(minPrice) {
			minPrice = s.UnitPrice
		}
		if s.LeadTimeDays < minLead {
			minLead = s.LeadTimeDays
		}
	}

	var best *domain.Supplier
	var bestScore float64
	for i := range candidates {
		s := &candidates[i]
		score := score(s, minPrice, minLead, w)
		if best == nil || score > bestScore || (score == bestScore && s.SupplierID < best.SupplierID) {
			best = s
			bestScore = score
		}
	}
	return best, nil
}

// score normalizes each dimension against the best candidate so the weighted
// sum stays in [0, 1] regardless of absolute prices or lead times.
func score(s *domain.Supplier, minPrice decimal.Decimal, minLead int, w Weights) float64 {
	priceScore := 1.0
	if s.UnitPrice.IsPositive() {
		ratio, _ := minPrice.Div(s.UnitPrice).Float64()
		priceScore = ratio
	}

	leadScore := 1.0
	if s.LeadTimeDays > 0 {
		leadScore = float64(minLead) / float64(s.LeadTimeDays)
	}

	return w.Price*priceScore + w.LeadTime*leadScore + w.Reliability*s.ReliabilityScore
}

// CreateOrder builds a purchase order for the recommended quantity from the
// best-scoring supplier. A quantity below the supplier's minimum is raised to
// it and the adjustment is annotated on the order rather than applied
// silently or rejected.
func CreateOrder(sku, runID, warehouseID string, quantity int, candidates []domain.Supplier, w Weights) (*domain.PurchaseOrder, error) {
	supplier, err := SelectSupplier(candidates, w)
	if err != nil {
		return nil, err
	}

	po := &domain.PurchaseOrder{
		POID:        uuid.NewString(),
		SKU:         sku,
		RunID:       runID,
		SupplierID:  supplier.SupplierID,
		WarehouseID: warehouseID,
		Quantity:    quantity,
		UnitPrice:   supplier.UnitPrice,
		Status:      domain.POPending,
		CreatedAt:   time.Now().UTC(),
	}

	if quantity < supplier.MinOrderQty {
		po.Quantity = supplier.MinOrderQty
		po.MinOrderAdjusted = true
		po.AdjustmentNote = fmt.Sprintf("quantity raised from %d to supplier minimum %d", quantity, supplier.MinOrderQty)
	}

	po.TotalPrice = supplier.UnitPrice.Mul(decimal.NewFromInt(int64(po.Quantity)))
	po.ExpectedDelivery = time.Now().UTC().AddDate(0, 0, supplier.LeadTimeDays)
	return po, nil
}
