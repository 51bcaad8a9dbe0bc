// internal/engine/optimize/redistribute.go
package optimize

import (
	"math"
	"sort"

	"github.com/replenlabs/supplyengine/internal/domain"
)

// planRedistribution computes the transfers that move the current allocation
// to a target allocation proportional to each warehouse's demand share,
// subject to capacity ceilings. Total moved quantity equals the total target
// deficit, which is the minimum any plan can achieve; all orderings are by
// warehouse id ascending so the plan is deterministic.
func planRedistribution(inventory []domain.InventoryRecord, demandWeights map[string]float64) []Transfer {
	warehouses := append([]domain.InventoryRecord(nil), inventory...)
	sort.Slice(warehouses, func(i, j int) bool { return warehouses[i].WarehouseID < warehouses[j].WarehouseID })

	total := 0
	for _, w := range warehouses {
		total += w.Quantity
	}
	if total == 0 {
		return nil
	}

	targets := targetAllocation(warehouses, demandWeights, total)

	// Surplus warehouses feed deficit warehouses, both walked in id order.
	type flow struct {
		id  string
		qty int
	}
	var surpluses, deficits []flow
	for i, w := range warehouses {
		diff := w.Quantity - targets[i]
		switch {
		case diff > 0:
			surpluses = append(surpluses, flow{id: w.WarehouseID, qty: diff})
		case diff < 0:
			deficits = append(deficits, flow{id: w.WarehouseID, qty: -diff})
		}
	}

	var transfers []Transfer
	si, di := 0, 0
	for si < len(surpluses) && di < len(deficits) {
		move := surpluses[si].qty
		if deficits[di].qty < move {
			move = deficits[di].qty
		}
		transfers = append(transfers, Transfer{
			From:     surpluses[si].id,
			To:       deficits[di].id,
			Quantity: move,
		})
		surpluses[si].qty -= move
		deficits[di].qty -= move
		if surpluses[si].qty == 0 {
			si++
		}
		if deficits[di].qty == 0 {
			di++
		}
	}
	return transfers
}

// targetAllocation splits total units across warehouses proportionally to
// their demand weights using largest-remainder rounding, then clamps to
// capacity and reassigns any overflow in warehouse-id order.
func targetAllocation(warehouses []domain.InventoryRecord, demandWeights map[string]float64, total int) []int {
	n := len(warehouses)

	weights := make([]float64, n)
	var weightSum float64
	for i, w := range warehouses {
		wt := 1.0
		if demandWeights != nil {
			if v, ok := demandWeights[w.WarehouseID]; ok && v > 0 {
				wt = v
			} else {
				wt = 0
			}
		}
		weights[i] = wt
		weightSum += wt
	}
	if weightSum <= 0 {
		for i := range weights {
			weights[i] = 1
		}
		weightSum = float64(n)
	}

	// Largest-remainder apportionment, remainder ties broken by position
	// (warehouses are already sorted by id).
	targets := make([]int, n)
	remainders := make([]float64, n)
	assigned := 0
	for i := range warehouses {
		exact := float64(total) * weights[i] / weightSum
		targets[i] = int(math.Floor(exact))
		remainders[i] = exact - float64(targets[i])
		assigned += targets[i]
	}
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return remainders[order[a]] > remainders[order[b]] })
	for k := 0; assigned < total; k++ {
		targets[order[k%n]]++
		assigned++
	}

	// Clamp to capacity; overflow falls through to warehouses with headroom
	// in id order. If every warehouse is at capacity the remainder stays
	// where the id order puts it, since the stock exists regardless.
	overflow := 0
	for i, w := range warehouses {
		if w.Capacity > 0 && targets[i] > w.Capacity {
			overflow += targets[i] - w.Capacity
			targets[i] = w.Capacity
		}
	}
	for i := 0; overflow > 0 && i < n; i++ {
		if warehouses[i].Capacity <= 0 {
			targets[i] += overflow
			overflow = 0
			break
		}
		headroom := warehouses[i].Capacity - targets[i]
		if headroom > 0 {
			add := headroom
			if overflow < add {
				add = overflow
			}
			targets[i] += add
			overflow -= add
		}
	}
	if overflow > 0 {
		targets[0] += overflow
	}
	return targets
}
