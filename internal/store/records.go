// internal/store/records.go
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/replenlabs/supplyengine/internal/domain"
)

// Catalog is the typed layer over the raw KV contract. All engine reads and
// writes of domain records go through it; values are JSON-encoded.
type Catalog struct {
	kv KV
}

func NewCatalog(kv KV) *Catalog {
	return &Catalog{kv: kv}
}

// KV exposes the underlying store for callers that need raw access.
func (c *Catalog) KV() KV { return c.kv }

func (c *Catalog) getJSON(ctx context.Context, key string, out any) (int64, error) {
	rec, err := c.kv.Get(ctx, key)
	if err != nil {
		return 0, err
	}
	if err := json.Unmarshal(rec.Value, out); err != nil {
		return 0, fmt.Errorf("decode %s: %w", key, err)
	}
	return rec.Version, nil
}

func (c *Catalog) putJSON(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return c.kv.Put(ctx, key, data)
}

func (c *Catalog) conditionalPutJSON(ctx context.Context, key string, v any, expected int64) (int64, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return 0, fmt.Errorf("encode %s: %w", key, err)
	}
	return c.kv.ConditionalPut(ctx, key, data, expected)
}

// --- Products ---

func (c *Catalog) SaveProduct(ctx context.Context, p *domain.Product) error {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	p.UpdatedAt = time.Now().UTC()
	return c.putJSON(ctx, ProductKey(p.SKU), p)
}

func (c *Catalog) GetProduct(ctx context.Context, sku string) (*domain.Product, error) {
	var p domain.Product
	if _, err := c.getJSON(ctx, ProductKey(sku), &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// UpdateProductParams rewrites a product's reorder parameters through a
// conditional write so concurrent optimization runs cannot clobber each other.
func (c *Catalog) UpdateProductParams(ctx context.Context, sku string, reorderPoint, safetyStock float64) error {
	rec, err := c.kv.Get(ctx, ProductKey(sku))
	if err != nil {
		return err
	}
	var p domain.Product
	if err := json.Unmarshal(rec.Value, &p); err != nil {
		return fmt.Errorf("decode product %s: %w", sku, err)
	}
	p.ReorderPoint = reorderPoint
	p.SafetyStock = safetyStock
	p.UpdatedAt = time.Now().UTC()
	_, err = c.conditionalPutJSON(ctx, ProductKey(sku), &p, rec.Version)
	return err
}

// --- Inventory ---

func (c *Catalog) GetInventory(ctx context.Context, sku, warehouseID string) (*domain.InventoryRecord, error) {
	var inv domain.InventoryRecord
	version, err := c.getJSON(ctx, InventoryKey(sku, warehouseID), &inv)
	if err != nil {
		return nil, err
	}
	inv.Version = version
	return &inv, nil
}

func (c *Catalog) ListInventory(ctx context.Context, sku string) ([]domain.InventoryRecord, error) {
	recs, err := c.kv.Scan(ctx, InventoryPrefix(sku))
	if err != nil {
		return nil, err
	}
	out := make([]domain.InventoryRecord, 0, len(recs))
	for _, rec := range recs {
		var inv domain.InventoryRecord
		if err := json.Unmarshal(rec.Value, &inv); err != nil {
			return nil, fmt.Errorf("decode %s: %w", rec.Key, err)
		}
		inv.Version = rec.Version
		out = append(out, inv)
	}
	return out, nil
}

// PutInventory creates or unconditionally replaces an inventory record. For
// engine writes use MutateInventory; this exists for seeding and ingestion.
func (c *Catalog) PutInventory(ctx context.Context, inv *domain.InventoryRecord) error {
	inv.UpdatedAt = time.Now().UTC()
	return c.putJSON(ctx, InventoryKey(inv.SKU, inv.WarehouseID), inv)
}

// MutateInventory applies fn to the current record under optimistic
// concurrency: read, mutate, conditional write carrying the read version.
// On conflict it re-reads and recomputes, up to maxAttempts, then surfaces
// ErrConflict for the orchestrator to escalate.
func (c *Catalog) MutateInventory(ctx context.Context, sku, warehouseID string, maxAttempts int, fn func(*domain.InventoryRecord) error) (*domain.InventoryRecord, error) {
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		rec, err := c.kv.Get(ctx, InventoryKey(sku, warehouseID))
		if err != nil {
			return nil, err
		}
		var inv domain.InventoryRecord
		if err := json.Unmarshal(rec.Value, &inv); err != nil {
			return nil, fmt.Errorf("decode inventory %s/%s: %w", sku, warehouseID, err)
		}
		inv.Version = rec.Version

		if err := fn(&inv); err != nil {
			return nil, err
		}
		inv.UpdatedAt = time.Now().UTC()

		newVersion, err := c.conditionalPutJSON(ctx, InventoryKey(sku, warehouseID), &inv, rec.Version)
		if err == nil {
			inv.Version = newVersion
			return &inv, nil
		}
		if !errors.Is(err, ErrConflict) {
			return nil, err
		}
		lastErr = err
	}
	return nil, lastErr
}

// --- Sales history ---

// AppendSales stores a sales observation under a unique key. History is
// append-only; entries are never rewritten.
func (c *Catalog) AppendSales(ctx context.Context, entry *domain.SalesHistoryEntry) error {
	key := SalesKey(entry.SKU, entry.Date, uuid.NewString()[:8])
	return c.putJSON(ctx, key, entry)
}

func (c *Catalog) SalesHistory(ctx context.Context, sku string) ([]domain.SalesHistoryEntry, error) {
	recs, err := c.kv.Scan(ctx, SalesPrefix(sku))
	if err != nil {
		return nil, err
	}
	out := make([]domain.SalesHistoryEntry, 0, len(recs))
	for _, rec := range recs {
		var entry domain.SalesHistoryEntry
		if err := json.Unmarshal(rec.Value, &entry); err != nil {
			return nil, fmt.Errorf("decode %s: %w", rec.Key, err)
		}
		out = append(out, entry)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

// --- Suppliers ---

func (c *Catalog) UpsertSupplier(ctx context.Context, s *domain.Supplier) error {
	return c.putJSON(ctx, SupplierKey(s.SupplierID), s)
}

func (c *Catalog) ListSuppliers(ctx context.Context) ([]domain.Supplier, error) {
	recs, err := c.kv.Scan(ctx, supplierPrefix)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Supplier, 0, len(recs))
	for _, rec := range recs {
		var s domain.Supplier
		if err := json.Unmarshal(rec.Value, &s); err != nil {
			return nil, fmt.Errorf("decode %s: %w", rec.Key, err)
		}
		out = append(out, s)
	}
	return out, nil
}

func (c *Catalog) PutSupplierMetric(ctx context.Context, m *domain.SupplierMetric) error {
	return c.putJSON(ctx, SupplierMetricKey(m.SupplierID), m)
}

func (c *Catalog) ListSupplierMetrics(ctx context.Context) ([]domain.SupplierMetric, error) {
	recs, err := c.kv.Scan(ctx, metricPrefix)
	if err != nil {
		return nil, err
	}
	out := make([]domain.SupplierMetric, 0, len(recs))
	for _, rec := range recs {
		var m domain.SupplierMetric
		if err := json.Unmarshal(rec.Value, &m); err != nil {
			return nil, fmt.Errorf("decode %s: %w", rec.Key, err)
		}
		out = append(out, m)
	}
	return out, nil
}

// --- Forecasts ---

// SaveForecast creates the forecast record; forecasts are immutable and
// superseded rather than overwritten, so creation uses expected version 0.
func (c *Catalog) SaveForecast(ctx context.Context, f *domain.Forecast) error {
	_, err := c.conditionalPutJSON(ctx, ForecastKey(f.SKU, f.ForecastID), f, 0)
	return err
}

// LatestForecast returns the most recent forecast for a SKU by GeneratedAt,
// or ErrNotFound when none exists.
func (c *Catalog) LatestForecast(ctx context.Context, sku string) (*domain.Forecast, error) {
	recs, err := c.kv.Scan(ctx, ForecastPrefix(sku))
	if err != nil {
		return nil, err
	}
	var latest *domain.Forecast
	for _, rec := range recs {
		var f domain.Forecast
		if err := json.Unmarshal(rec.Value, &f); err != nil {
			return nil, fmt.Errorf("decode %s: %w", rec.Key, err)
		}
		if latest == nil || f.GeneratedAt.After(latest.GeneratedAt) {
			fc := f
			latest = &fc
		}
	}
	if latest == nil {
		return nil, ErrNotFound
	}
	return latest, nil
}

// PreviousForecast returns the most recent forecast not generated by the
// given run, so reporting can score the prior prediction against realized
// demand.
func (c *Catalog) PreviousForecast(ctx context.Context, sku, excludeRunID string) (*domain.Forecast, error) {
	recs, err := c.kv.Scan(ctx, ForecastPrefix(sku))
	if err != nil {
		return nil, err
	}
	var latest *domain.Forecast
	for _, rec := range recs {
		var f domain.Forecast
		if err := json.Unmarshal(rec.Value, &f); err != nil {
			return nil, fmt.Errorf("decode %s: %w", rec.Key, err)
		}
		if f.RunID == excludeRunID {
			continue
		}
		if latest == nil || f.GeneratedAt.After(latest.GeneratedAt) {
			fc := f
			latest = &fc
		}
	}
	if latest == nil {
		return nil, ErrNotFound
	}
	return latest, nil
}

// --- Purchase orders ---

func (c *Catalog) SavePO(ctx context.Context, po *domain.PurchaseOrder) error {
	_, err := c.conditionalPutJSON(ctx, POKey(po.POID), po, 0)
	return err
}

func (c *Catalog) GetPO(ctx context.Context, id string) (*domain.PurchaseOrder, int64, error) {
	var po domain.PurchaseOrder
	version, err := c.getJSON(ctx, POKey(id), &po)
	if err != nil {
		return nil, 0, err
	}
	return &po, version, nil
}

// UpdatePOStatus transitions a purchase order, rejecting invalid transitions
// and racing writers alike.
func (c *Catalog) UpdatePOStatus(ctx context.Context, id string, to domain.POStatus) (*domain.PurchaseOrder, error) {
	po, version, err := c.GetPO(ctx, id)
	if err != nil {
		return nil, err
	}
	if !domain.ValidPOTransition(po.Status, to) {
		return nil, fmt.Errorf("purchase order %s: invalid transition %s -> %s", id, po.Status, to)
	}
	po.Status = to
	if _, err := c.conditionalPutJSON(ctx, POKey(id), po, version); err != nil {
		return nil, err
	}
	return po, nil
}

// --- Anomalies ---

func (c *Catalog) SaveAnomaly(ctx context.Context, a *domain.Anomaly) error {
	_, err := c.conditionalPutJSON(ctx, AnomalyKey(a.AnomalyID), a, 0)
	return err
}

func (c *Catalog) ListAnomalies(ctx context.Context, sku string) ([]domain.Anomaly, error) {
	recs, err := c.kv.Scan(ctx, anomalyPrefix)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Anomaly, 0, len(recs))
	for _, rec := range recs {
		var a domain.Anomaly
		if err := json.Unmarshal(rec.Value, &a); err != nil {
			return nil, fmt.Errorf("decode %s: %w", rec.Key, err)
		}
		if sku == "" || a.SKU == sku {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DetectedAt.Before(out[j].DetectedAt) })
	return out, nil
}

// --- Run stage outputs ---

// SaveRunStage persists a stage output keyed by (run_id, stage). The first
// writer wins; a concurrent duplicate is treated as already-persisted so
// stage outputs stay idempotent.
func (c *Catalog) SaveRunStage(ctx context.Context, runID, stage string, payload any) error {
	_, err := c.conditionalPutJSON(ctx, RunKey(runID, stage), payload, 0)
	if errors.Is(err, ErrConflict) {
		return nil
	}
	return err
}

// GetRunStage loads a persisted stage output into out, reporting whether it
// existed.
func (c *Catalog) GetRunStage(ctx context.Context, runID, stage string, out any) (bool, error) {
	_, err := c.getJSON(ctx, RunKey(runID, stage), out)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// SaveRunResult stores the final structured result for a run (overwritten on
// state transitions, last write wins).
func (c *Catalog) SaveRunResult(ctx context.Context, runID string, result any) error {
	return c.putJSON(ctx, RunKey(runID, "result"), result)
}

func (c *Catalog) GetRunResult(ctx context.Context, runID string, out any) (bool, error) {
	_, err := c.getJSON(ctx, RunKey(runID, "result"), out)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// --- Stock snapshots (shrinkage detection input) ---

// StockSnapshot records the total on-hand quantity observed at the end of a
// run, so the next run can reconcile decreases against sales and transfers.
type StockSnapshot struct {
	SKU        string    `json:"sku"`
	Total      int       `json:"total"`
	ObservedAt time.Time `json:"observed_at"`
}

func (c *Catalog) SaveStockSnapshot(ctx context.Context, snap *StockSnapshot) error {
	return c.putJSON(ctx, SnapshotKey(snap.SKU), snap)
}

func (c *Catalog) GetStockSnapshot(ctx context.Context, sku string) (*StockSnapshot, error) {
	var snap StockSnapshot
	if _, err := c.getJSON(ctx, SnapshotKey(sku), &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}
