// internal/engine/forecast/forecast.go
package forecast

import (
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/replenlabs/supplyengine/internal/domain"
)

// Two-sided normal quantiles for the interval bounds.
const (
	z80 = 1.2816
	z95 = 1.9600
)

// Holt smoothing coefficients. Level reacts faster than trend so a few noisy
// periods do not swing the slope.
const (
	alpha = 0.3
	beta  = 0.1
)

// Generate produces a demand forecast over horizonDays from the SKU's sales
// history. It never fails for valid (possibly empty) input: malformed entries
// are skipped and counted, an empty or mostly-malformed history yields a
// conservative low-confidence forecast that downstream stages widen their
// safety margins for.
func Generate(sku string, history []domain.SalesHistoryEntry, horizonDays int) *domain.Forecast {
	if horizonDays < 1 {
		horizonDays = 1
	}

	f := &domain.Forecast{
		ForecastID:  uuid.NewString(),
		SKU:         sku,
		HorizonDays: horizonDays,
		GeneratedAt: time.Now().UTC(),
	}

	valid, skipped := sanitize(history)
	f.SkippedRows = skipped
	if skipped > 0 {
		log.Warn().Str("sku", sku).Int("skipped", skipped).Int("total", len(history)).
			Msg("malformed sales entries skipped")
	}

	if len(valid) == 0 {
		f.LowConfidence = true
		return f
	}
	if skipped*2 > len(history) {
		f.LowConfidence = true
	}

	sort.Slice(valid, func(i, j int) bool { return valid[i].Date.Before(valid[j].Date) })

	periodDays := medianGapDays(valid)
	quantities := make([]float64, len(valid))
	for i, e := range valid {
		quantities[i] = e.Quantity
	}

	factors := seasonalFactors(valid, periodDays)
	deseason := make([]float64, len(quantities))
	for i := range quantities {
		deseason[i] = quantities[i] / factorFor(factors, valid[i].Date)
	}

	level, trend, stderrPeriod := fitHolt(deseason)

	// Project period by period over the horizon, re-applying the seasonal
	// factor of each projected date and clipping negative periods at zero.
	lastDate := valid[len(valid)-1].Date
	var point float64
	remaining := float64(horizonDays)
	step := 1
	for remaining > 0 {
		fraction := math.Min(remaining, float64(periodDays)) / float64(periodDays)
		projected := (level + trend*float64(step)) * factorFor(factors, lastDate.AddDate(0, 0, step*periodDays))
		point += math.Max(0, projected) * fraction
		remaining -= float64(periodDays)
		step++
	}

	nPeriods := float64(horizonDays) / float64(periodDays)
	stderrTotal := stderrPeriod * math.Sqrt(nPeriods)

	f.PointEstimate = point
	f.CI80Low = math.Max(0, point-z80*stderrTotal)
	f.CI80High = point + z80*stderrTotal
	f.CI95Low = math.Max(0, point-z95*stderrTotal)
	f.CI95High = point + z95*stderrTotal
	return f
}

// sanitize drops entries the stage cannot use: negative quantities, NaN or
// infinite quantities, and zero dates.
func sanitize(history []domain.SalesHistoryEntry) (valid []domain.SalesHistoryEntry, skipped int) {
	valid = make([]domain.SalesHistoryEntry, 0, len(history))
	for _, e := range history {
		if e.Date.IsZero() || e.Quantity < 0 || math.IsNaN(e.Quantity) || math.IsInf(e.Quantity, 0) {
			skipped++
			continue
		}
		valid = append(valid, e)
	}
	return valid, skipped
}

// medianGapDays infers the sampling period of the history: daily feeds give
// 1, weekly exports 7, monthly rollups about 30.
func medianGapDays(entries []domain.SalesHistoryEntry) int {
	if len(entries) < 2 {
		return 1
	}
	gaps := make([]int, 0, len(entries)-1)
	for i := 1; i < len(entries); i++ {
		gap := int(entries[i].Date.Sub(entries[i-1].Date).Hours() / 24)
		if gap > 0 {
			gaps = append(gaps, gap)
		}
	}
	if len(gaps) == 0 {
		return 1
	}
	sort.Ints(gaps)
	gap := gaps[len(gaps)/2]
	if gap < 1 {
		gap = 1
	}
	return gap
}

// seasonalFactors returns multiplicative day-of-week factors when the history
// is daily and spans at least two full weeks. Coarser periods return nil;
// inventing a seasonal cycle from a handful of monthly rollups does more harm
// than good.
func seasonalFactors(entries []domain.SalesHistoryEntry, periodDays int) map[time.Weekday]float64 {
	if periodDays != 1 || len(entries) < 14 {
		return nil
	}
	span := entries[len(entries)-1].Date.Sub(entries[0].Date)
	if span < 14*24*time.Hour {
		return nil
	}

	var total float64
	sums := make(map[time.Weekday]float64)
	counts := make(map[time.Weekday]int)
	for _, e := range entries {
		wd := e.Date.Weekday()
		sums[wd] += e.Quantity
		counts[wd]++
		total += e.Quantity
	}
	overall := total / float64(len(entries))
	if overall <= 0 {
		return nil
	}

	factors := make(map[time.Weekday]float64, len(sums))
	for wd, sum := range sums {
		factors[wd] = (sum / float64(counts[wd])) / overall
	}
	return factors
}

func factorFor(factors map[time.Weekday]float64, date time.Time) float64 {
	if factors == nil {
		return 1
	}
	f, ok := factors[date.Weekday()]
	if !ok || f <= 0 {
		return 1
	}
	return f
}

// fitHolt runs double exponential smoothing over the per-period quantities
// and returns the final level, trend, and the standard error of the one-step
// residuals.
func fitHolt(series []float64) (level, trend, stderr float64) {
	level = series[0]
	trend = 0
	if len(series) == 1 {
		return level, trend, 0
	}

	var sumSq float64
	residuals := 0
	for i := 1; i < len(series); i++ {
		predicted := level + trend
		err := series[i] - predicted
		sumSq += err * err
		residuals++

		prevLevel := level
		level = alpha*series[i] + (1-alpha)*(level+trend)
		trend = beta*(level-prevLevel) + (1-beta)*trend
	}

	if residuals > 1 {
		stderr = math.Sqrt(sumSq / float64(residuals-1))
	}
	return level, trend, stderr
}
