// internal/engine/forecast/forecast_test.go
package forecast

import (
	"math"
	"testing"
	"time"

	"github.com/replenlabs/supplyengine/internal/domain"
)

func dailyHistory(t *testing.T, days int, qty func(day int) float64) []domain.SalesHistoryEntry {
	t.Helper()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	entries := make([]domain.SalesHistoryEntry, 0, days)
	for i := 0; i < days; i++ {
		entries = append(entries, domain.SalesHistoryEntry{
			SKU:      "SKU-1",
			Date:     base.AddDate(0, 0, i),
			Quantity: qty(i),
		})
	}
	return entries
}

func TestGenerateEmptyHistory(t *testing.T) {
	f := Generate("SKU-1", nil, 30)

	if !f.LowConfidence {
		t.Error("expected low confidence for empty history")
	}
	if f.PointEstimate != 0 {
		t.Errorf("expected zero point estimate, got %f", f.PointEstimate)
	}
	if f.HorizonDays != 30 {
		t.Errorf("expected horizon 30, got %d", f.HorizonDays)
	}
}

func TestGenerateConstantDailyDemand(t *testing.T) {
	history := dailyHistory(t, 30, func(int) float64 { return 10 })
	f := Generate("SKU-1", history, 30)

	if f.LowConfidence {
		t.Error("constant full history should not be low confidence")
	}
	if math.Abs(f.PointEstimate-300) > 1e-6 {
		t.Errorf("expected point estimate 300, got %f", f.PointEstimate)
	}
	// Zero residual variance collapses the intervals onto the point.
	if math.Abs(f.CI80Low-300) > 1e-6 || math.Abs(f.CI95High-300) > 1e-6 {
		t.Errorf("expected degenerate intervals at 300, got [%f, %f]", f.CI80Low, f.CI95High)
	}
}

func TestGenerateIntervalNesting(t *testing.T) {
	history := dailyHistory(t, 60, func(day int) float64 { return 10 + float64(day%7) })
	f := Generate("SKU-1", history, 30)

	if f.CI95Low > f.CI80Low {
		t.Errorf("95%% low %f above 80%% low %f", f.CI95Low, f.CI80Low)
	}
	if f.CI80Low > f.PointEstimate || f.PointEstimate > f.CI80High {
		t.Errorf("point %f outside 80%% interval [%f, %f]", f.PointEstimate, f.CI80Low, f.CI80High)
	}
	if f.CI80High > f.CI95High {
		t.Errorf("80%% high %f above 95%% high %f", f.CI80High, f.CI95High)
	}
	for _, v := range []float64{f.PointEstimate, f.CI80Low, f.CI95Low} {
		if v < 0 {
			t.Errorf("forecast value %f below zero", v)
		}
	}
}

func TestGenerateMonthlyRollups(t *testing.T) {
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	var history []domain.SalesHistoryEntry
	for i := 0; i < 12; i++ {
		history = append(history, domain.SalesHistoryEntry{
			SKU:      "SKU-1",
			Date:     base.Add(time.Duration(i) * 30 * 24 * time.Hour),
			Quantity: 100,
		})
	}

	f := Generate("SKU-1", history, 30)
	if math.Abs(f.PointEstimate-100) > 1e-6 {
		t.Errorf("expected one 30-day period worth of demand (100), got %f", f.PointEstimate)
	}
	if got := f.AvgDailyDemand(); math.Abs(got-100.0/30.0) > 1e-6 {
		t.Errorf("expected avg daily demand %f, got %f", 100.0/30.0, got)
	}
}

func TestGenerateSkipsMalformedEntries(t *testing.T) {
	good := dailyHistory(t, 10, func(int) float64 { return 5 })
	history := append(good,
		domain.SalesHistoryEntry{SKU: "SKU-1", Date: good[0].Date, Quantity: -3},
		domain.SalesHistoryEntry{SKU: "SKU-1", Date: good[0].Date, Quantity: math.NaN()},
		domain.SalesHistoryEntry{SKU: "SKU-1", Quantity: 5}, // zero date
	)

	f := Generate("SKU-1", history, 30)
	if f.SkippedRows != 3 {
		t.Errorf("expected 3 skipped rows, got %d", f.SkippedRows)
	}
	if f.LowConfidence {
		t.Error("minority of malformed rows should not flag low confidence")
	}
	if f.PointEstimate <= 0 {
		t.Errorf("expected positive forecast from surviving rows, got %f", f.PointEstimate)
	}
}

func TestGenerateMostlyMalformedFlagsLowConfidence(t *testing.T) {
	history := []domain.SalesHistoryEntry{
		{SKU: "SKU-1", Date: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), Quantity: 5},
		{SKU: "SKU-1", Quantity: 5},
		{SKU: "SKU-1", Date: time.Date(2026, 1, 3, 0, 0, 0, 0, time.UTC), Quantity: -1},
		{SKU: "SKU-1", Date: time.Date(2026, 1, 4, 0, 0, 0, 0, time.UTC), Quantity: math.Inf(1)},
	}

	f := Generate("SKU-1", history, 30)
	if f.SkippedRows != 3 {
		t.Errorf("expected 3 skipped rows, got %d", f.SkippedRows)
	}
	if !f.LowConfidence {
		t.Error("expected low confidence when most rows are malformed")
	}
}

func TestGenerateNeverNegative(t *testing.T) {
	// Steeply declining demand pushes the Holt projection below zero.
	history := dailyHistory(t, 20, func(day int) float64 { return math.Max(0, 100-float64(day)*20) })

	f := Generate("SKU-1", history, 60)
	if f.PointEstimate < 0 || f.CI80Low < 0 || f.CI95Low < 0 {
		t.Errorf("forecast produced negative values: point=%f ci80low=%f ci95low=%f",
			f.PointEstimate, f.CI80Low, f.CI95Low)
	}
}

func TestMedianGapDays(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cases := []struct {
		name string
		gaps []int
		want int
	}{
		{name: "daily", gaps: []int{1, 1, 1, 1}, want: 1},
		{name: "weekly", gaps: []int{7, 7, 7}, want: 7},
		{name: "mixed", gaps: []int{1, 7, 7, 7, 30}, want: 7},
		{name: "single entry", gaps: nil, want: 1},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			entries := []domain.SalesHistoryEntry{{Date: base}}
			d := base
			for _, g := range tc.gaps {
				d = d.AddDate(0, 0, g)
				entries = append(entries, domain.SalesHistoryEntry{Date: d})
			}
			if got := medianGapDays(entries); got != tc.want {
				t.Errorf("medianGapDays = %d, want %d", got, tc.want)
			}
		})
	}
}
