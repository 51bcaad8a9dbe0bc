// internal/store/records_test.go
package store

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/replenlabs/supplyengine/internal/domain"
)

func newTestCatalog(t *testing.T) *Catalog {
	t.Helper()
	return NewCatalog(NewMemoryStore())
}

func TestCatalogProductRoundTrip(t *testing.T) {
	c := newTestCatalog(t)
	ctx := context.Background()

	p := &domain.Product{SKU: "SKU-1", Name: "Beans", OrderingCost: 50, HoldingCostPerUnit: 2}
	if err := c.SaveProduct(ctx, p); err != nil {
		t.Fatal(err)
	}

	got, err := c.GetProduct(ctx, "SKU-1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Name != "Beans" || got.OrderingCost != 50 {
		t.Errorf("round trip mangled product: %+v", got)
	}
	if got.CreatedAt.IsZero() {
		t.Error("SaveProduct must stamp CreatedAt")
	}

	if _, err := c.GetProduct(ctx, "SKU-404"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestCatalogMutateInventoryConcurrent(t *testing.T) {
	c := newTestCatalog(t)
	ctx := context.Background()

	if err := c.PutInventory(ctx, &domain.InventoryRecord{SKU: "SKU-1", WarehouseID: "wh-a", Quantity: 0}); err != nil {
		t.Fatal(err)
	}

	const writers = 20
	var wg sync.WaitGroup
	errCh := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.MutateInventory(ctx, "SKU-1", "wh-a", 100, func(inv *domain.InventoryRecord) error {
				inv.Quantity++
				return nil
			})
			if err != nil {
				errCh <- err
			}
		}()
	}
	wg.Wait()
	close(errCh)
	for err := range errCh {
		t.Fatal(err)
	}

	inv, err := c.GetInventory(ctx, "SKU-1", "wh-a")
	if err != nil {
		t.Fatal(err)
	}
	if inv.Quantity != writers {
		t.Errorf("quantity = %d, want %d: lost updates under contention", inv.Quantity, writers)
	}
}

func TestCatalogMutateInventoryExhaustsRetries(t *testing.T) {
	kv := NewMemoryStore()
	c := NewCatalog(&alwaysConflictKV{KV: kv, prefix: "inventory:"})
	ctx := context.Background()

	if err := NewCatalog(kv).PutInventory(ctx, &domain.InventoryRecord{SKU: "SKU-1", WarehouseID: "wh-a", Quantity: 5}); err != nil {
		t.Fatal(err)
	}

	_, err := c.MutateInventory(ctx, "SKU-1", "wh-a", 3, func(inv *domain.InventoryRecord) error {
		inv.Quantity++
		return nil
	})
	if !errors.Is(err, ErrConflict) {
		t.Errorf("expected ErrConflict after exhausted retries, got %v", err)
	}
}

// alwaysConflictKV rejects every write under prefix to simulate a permanently
// contended record.
type alwaysConflictKV struct {
	KV
	prefix string
}

func (s *alwaysConflictKV) ConditionalPut(ctx context.Context, key string, value []byte, expected int64) (int64, error) {
	if strings.HasPrefix(key, s.prefix) {
		return 0, ErrConflict
	}
	return s.KV.ConditionalPut(ctx, key, value, expected)
}

func (s *alwaysConflictKV) Put(ctx context.Context, key string, value []byte) error {
	if strings.HasPrefix(key, s.prefix) {
		return ErrConflict
	}
	return s.KV.Put(ctx, key, value)
}

func TestCatalogSalesHistorySorted(t *testing.T) {
	c := newTestCatalog(t)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	for _, offset := range []int{5, 1, 3} {
		entry := &domain.SalesHistoryEntry{SKU: "SKU-1", Date: base.AddDate(0, 0, offset), Quantity: float64(offset)}
		if err := c.AppendSales(ctx, entry); err != nil {
			t.Fatal(err)
		}
	}

	history, err := c.SalesHistory(ctx, "SKU-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(history) != 3 {
		t.Fatalf("history length = %d, want 3", len(history))
	}
	for i := 1; i < len(history); i++ {
		if history[i].Date.Before(history[i-1].Date) {
			t.Errorf("history not sorted by date: %v before %v", history[i].Date, history[i-1].Date)
		}
	}
}

func TestCatalogForecastLineage(t *testing.T) {
	c := newTestCatalog(t)
	ctx := context.Background()

	older := &domain.Forecast{ForecastID: "f1", SKU: "SKU-1", RunID: "run-1",
		GeneratedAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	newer := &domain.Forecast{ForecastID: "f2", SKU: "SKU-1", RunID: "run-2",
		GeneratedAt: time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)}
	for _, f := range []*domain.Forecast{older, newer} {
		if err := c.SaveForecast(ctx, f); err != nil {
			t.Fatal(err)
		}
	}

	latest, err := c.LatestForecast(ctx, "SKU-1")
	if err != nil {
		t.Fatal(err)
	}
	if latest.ForecastID != "f2" {
		t.Errorf("latest = %s, want f2", latest.ForecastID)
	}

	prev, err := c.PreviousForecast(ctx, "SKU-1", "run-2")
	if err != nil {
		t.Fatal(err)
	}
	if prev.ForecastID != "f1" {
		t.Errorf("previous = %s, want f1", prev.ForecastID)
	}

	if _, err := c.PreviousForecast(ctx, "SKU-1", "run-1"); err != nil {
		t.Errorf("excluding run-1 should still find f2, got %v", err)
	}
	if _, err := c.PreviousForecast(ctx, "SKU-404", "run-1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for unknown sku, got %v", err)
	}

	// Forecasts are create-only.
	if err := c.SaveForecast(ctx, older); !errors.Is(err, ErrConflict) {
		t.Errorf("expected ErrConflict rewriting a forecast, got %v", err)
	}
}

func TestCatalogPOStatusTransitions(t *testing.T) {
	c := newTestCatalog(t)
	ctx := context.Background()

	po := &domain.PurchaseOrder{POID: "po-1", SKU: "SKU-1", Status: domain.POPending}
	if err := c.SavePO(ctx, po); err != nil {
		t.Fatal(err)
	}

	if _, err := c.UpdatePOStatus(ctx, "po-1", domain.POConfirmed); err != nil {
		t.Fatal(err)
	}
	if _, err := c.UpdatePOStatus(ctx, "po-1", domain.PODelivered); err != nil {
		t.Fatal(err)
	}

	// Delivered is terminal.
	if _, err := c.UpdatePOStatus(ctx, "po-1", domain.POCancelled); err == nil {
		t.Error("expected invalid transition from delivered to cancelled")
	}
}

func TestCatalogRunStageIdempotent(t *testing.T) {
	c := newTestCatalog(t)
	ctx := context.Background()

	type payload struct {
		N int `json:"n"`
	}

	if err := c.SaveRunStage(ctx, "run-1", "forecast", payload{N: 1}); err != nil {
		t.Fatal(err)
	}
	// First writer wins; a duplicate write is absorbed.
	if err := c.SaveRunStage(ctx, "run-1", "forecast", payload{N: 2}); err != nil {
		t.Fatal(err)
	}

	var got payload
	found, err := c.GetRunStage(ctx, "run-1", "forecast", &got)
	if err != nil {
		t.Fatal(err)
	}
	if !found || got.N != 1 {
		t.Errorf("stage output = (%v, %+v), want first writer's payload", found, got)
	}

	found, err = c.GetRunStage(ctx, "run-1", "optimize", &got)
	if err != nil {
		t.Fatal(err)
	}
	if found {
		t.Error("missing stage must report found=false")
	}
}
