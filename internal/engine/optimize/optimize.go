// internal/engine/optimize/optimize.go
package optimize

import (
	"math"

	"github.com/rs/zerolog/log"

	"github.com/replenlabs/supplyengine/internal/domain"
)

// costEpsilon replaces non-positive ordering/holding costs so the EOQ stays
// defined. The substitution is surfaced as a data-quality flag, not an error.
const costEpsilon = 0.01

// lowConfidenceSafetyFactor widens the safety stock when the forecast came
// from empty or mostly-malformed history.
const lowConfidenceSafetyFactor = 1.5

// Result is the optimization stage output for one SKU.
type Result struct {
	EOQ                 float64    `json:"eoq"`
	ReorderPoint        float64    `json:"reorder_point"`
	RecommendedQuantity int        `json:"recommended_quantity"`
	TotalOnHand         int        `json:"total_on_hand"`
	CostAdjusted        bool       `json:"cost_adjusted"`
	LowConfidence       bool       `json:"low_confidence,omitempty"`
	Transfers           []Transfer `json:"transfers,omitempty"`
}

// Transfer moves quantity units between warehouses.
type Transfer struct {
	From     string `json:"from"`
	To       string `json:"to"`
	Quantity int    `json:"quantity"`
}

// Optimize computes the economic order quantity, the reorder point, the
// reorder recommendation, and (for multi-warehouse SKUs) a redistribution
// plan. demandWeights are each warehouse's share of forecast regional demand;
// nil means equal shares.
func Optimize(product *domain.Product, fc *domain.Forecast, inventory []domain.InventoryRecord, demandWeights map[string]float64) *Result {
	res := &Result{}

	orderingCost := product.OrderingCost
	holdingCost := product.HoldingCostPerUnit
	if orderingCost <= 0 {
		log.Warn().Str("sku", product.SKU).Float64("ordering_cost", orderingCost).
			Msg("non-positive ordering cost, substituting epsilon")
		orderingCost = costEpsilon
		res.CostAdjusted = true
	}
	if holdingCost <= 0 {
		log.Warn().Str("sku", product.SKU).Float64("holding_cost", holdingCost).
			Msg("non-positive holding cost, substituting epsilon")
		holdingCost = costEpsilon
		res.CostAdjusted = true
	}

	avgDaily := fc.AvgDailyDemand()
	annualDemand := avgDaily * 365

	safetyStock := product.SafetyStock
	if fc.LowConfidence {
		safetyStock *= lowConfidenceSafetyFactor
		res.LowConfidence = true
		log.Warn().Str("sku", product.SKU).Float64("safety_stock", safetyStock).
			Msg("low-confidence forecast, widening safety margin")
	}

	res.EOQ = math.Sqrt(2 * annualDemand * orderingCost / holdingCost)
	res.ReorderPoint = avgDaily*float64(product.LeadTimeDays) + safetyStock

	for _, inv := range inventory {
		res.TotalOnHand += inv.Quantity
	}

	// Reorder trigger: purchase EOQ units iff stock is strictly below the
	// reorder point.
	if float64(res.TotalOnHand) < res.ReorderPoint {
		res.RecommendedQuantity = int(math.Ceil(res.EOQ))
	}

	if len(inventory) > 1 {
		res.Transfers = planRedistribution(inventory, demandWeights)
	}

	return res
}
