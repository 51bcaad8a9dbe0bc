// internal/engine/stages.go
package engine

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/replenlabs/supplyengine/internal/domain"
	"github.com/replenlabs/supplyengine/internal/engine/anomaly"
	"github.com/replenlabs/supplyengine/internal/engine/forecast"
	"github.com/replenlabs/supplyengine/internal/engine/optimize"
	"github.com/replenlabs/supplyengine/internal/engine/procure"
	"github.com/replenlabs/supplyengine/internal/report"
	"github.com/replenlabs/supplyengine/internal/store"
)

// stageFunc is the single typed interface every stage implements. Each stage
// persists its output under (run_id, stage) before the orchestrator advances,
// and reuses a persisted output when one exists so resumed runs never
// recompute or duplicate records.
type stageFunc func(ctx context.Context, rc *runContext) error

// runContext carries the work item and the accumulated stage outputs through
// one run. Optimizing and Detecting run concurrently, so all writes to the
// result's id slices go through the locked helpers below.
type runContext struct {
	item      WorkItem
	product   *domain.Product
	history   []domain.SalesHistoryEntry
	inventory []domain.InventoryRecord
	forecast  *domain.Forecast
	opt       *optimize.Result
	anomalies []domain.Anomaly
	po        *domain.PurchaseOrder

	mu     sync.Mutex
	result *RunResult
}

func (rc *runContext) recordUpdated(keys ...string) {
	rc.mu.Lock()
	rc.result.UpdatedRecords = append(rc.result.UpdatedRecords, keys...)
	rc.mu.Unlock()
}

func (rc *runContext) recordAnomalyID(id string) {
	rc.mu.Lock()
	rc.result.AnomalyIDs = append(rc.result.AnomalyIDs, id)
	rc.mu.Unlock()
}

func (o *Orchestrator) buildStageTable() map[StageKind]stageFunc {
	return map[StageKind]stageFunc{
		StageForecast: o.stageForecast,
		StageOptimize: o.stageOptimize,
		StageDetect:   o.stageDetect,
		StageProcure:  o.stageProcure,
		StageReport:   o.stageReport,
	}
}

// --- Forecasting ---

func (o *Orchestrator) stageForecast(ctx context.Context, rc *runContext) error {
	var persisted domain.Forecast
	ok, err := o.catalog.GetRunStage(ctx, rc.item.RunID, string(StageForecast), &persisted)
	if err != nil {
		return err
	}
	if ok {
		rc.forecast = &persisted
		rc.result.ForecastID = persisted.ForecastID
		log.Debug().Str("run_id", rc.item.RunID).Str("forecast_id", persisted.ForecastID).
			Msg("reusing persisted forecast")
		return nil
	}

	fc := forecast.Generate(rc.item.SKU, rc.history, o.cfg.HorizonDays)
	fc.RunID = rc.item.RunID

	wctx := commitCtx(ctx)
	if err := o.withRetry(wctx, "save forecast", func(c context.Context) error {
		err := o.catalog.SaveForecast(c, fc)
		if errors.Is(err, store.ErrConflict) {
			return nil // a resumed twin already created it
		}
		return err
	}); err != nil {
		return err
	}
	if err := o.withRetry(wctx, "persist forecast stage", func(c context.Context) error {
		return o.catalog.SaveRunStage(c, rc.item.RunID, string(StageForecast), fc)
	}); err != nil {
		return err
	}

	rc.forecast = fc
	rc.result.ForecastID = fc.ForecastID
	rc.recordUpdated(store.ForecastKey(fc.SKU, fc.ForecastID))
	return nil
}

// --- Optimization ---

// optimizeOutput is what the optimization stage persists: the recommendation
// plus a marker that its transfers were already applied, so a resume does not
// move stock twice.
type optimizeOutput struct {
	Result           *optimize.Result `json:"result"`
	TransfersApplied bool             `json:"transfers_applied"`
}

func (o *Orchestrator) stageOptimize(ctx context.Context, rc *runContext) error {
	var persisted optimizeOutput
	ok, err := o.catalog.GetRunStage(ctx, rc.item.RunID, string(StageOptimize), &persisted)
	if err != nil {
		return err
	}
	if ok {
		rc.opt = persisted.Result
		return nil
	}

	weights := warehouseDemandWeights(rc.history, 90)
	res := optimize.Optimize(rc.product, rc.forecast, rc.inventory, weights)

	wctx := commitCtx(ctx)
	for _, tr := range res.Transfers {
		if err := o.applyTransfer(wctx, rc, tr); err != nil {
			return err
		}
	}

	// Feed the computed reorder point back into the product record so the
	// next run starts from current parameters.
	if err := o.updateProductParams(wctx, rc, res.ReorderPoint); err != nil {
		return err
	}

	if err := o.withRetry(wctx, "persist optimize stage", func(c context.Context) error {
		return o.catalog.SaveRunStage(c, rc.item.RunID, string(StageOptimize),
			optimizeOutput{Result: res, TransfersApplied: true})
	}); err != nil {
		return err
	}

	rc.opt = res
	return nil
}

func (o *Orchestrator) applyTransfer(ctx context.Context, rc *runContext, tr optimize.Transfer) error {
	moved := tr.Quantity
	_, err := o.catalog.MutateInventory(ctx, rc.item.SKU, tr.From, o.cfg.ConflictRetries,
		func(inv *domain.InventoryRecord) error {
			if inv.Quantity < moved {
				moved = inv.Quantity // stock changed under us; move what is there
			}
			inv.Quantity -= moved
			return nil
		})
	if err != nil {
		return err
	}
	_, err = o.catalog.MutateInventory(ctx, rc.item.SKU, tr.To, o.cfg.ConflictRetries,
		func(inv *domain.InventoryRecord) error {
			inv.Quantity += moved
			return nil
		})
	if err != nil {
		return err
	}

	rc.recordUpdated(store.InventoryKey(rc.item.SKU, tr.From), store.InventoryKey(rc.item.SKU, tr.To))
	log.Info().Str("sku", rc.item.SKU).Str("from", tr.From).Str("to", tr.To).
		Int("quantity", moved).Msg("redistribution transfer applied")
	return nil
}

func (o *Orchestrator) updateProductParams(ctx context.Context, rc *runContext, reorderPoint float64) error {
	var lastErr error
	for attempt := 0; attempt < o.cfg.ConflictRetries; attempt++ {
		lastErr = o.catalog.UpdateProductParams(ctx, rc.item.SKU, reorderPoint, rc.product.SafetyStock)
		if lastErr == nil {
			rc.product.ReorderPoint = reorderPoint
			rc.recordUpdated(store.ProductKey(rc.item.SKU))
			return nil
		}
		if !errors.Is(lastErr, store.ErrConflict) {
			return lastErr
		}
	}
	return lastErr
}

// --- Anomaly detection ---

func (o *Orchestrator) stageDetect(ctx context.Context, rc *runContext) error {
	var persisted []domain.Anomaly
	ok, err := o.catalog.GetRunStage(ctx, rc.item.RunID, string(StageDetect), &persisted)
	if err != nil {
		return err
	}
	if ok {
		rc.anomalies = persisted
		for _, a := range persisted {
			rc.recordAnomalyID(a.AnomalyID)
		}
		return nil
	}

	total := 0
	for _, inv := range rc.inventory {
		total += inv.Quantity
	}

	now := time.Now().UTC()
	in := anomaly.Input{
		SKU:              rc.item.SKU,
		LeadTimeDays:     rc.product.LeadTimeDays,
		Forecast:         rc.forecast,
		CurrentTotal:     total,
		RealizedDemand:   windowDemand(rc.history, now.AddDate(0, 0, -30)),
		RollingAvgDemand: rollingAverageDemand(rc.history, now, 30),
		DetectedAt:       now,
	}

	if snap, err := o.catalog.GetStockSnapshot(ctx, rc.item.SKU); err == nil {
		in.HasSnapshot = true
		in.SnapshotTotal = snap.Total
		in.RecordedOutflow = windowDemand(rc.history, snap.ObservedAt)
	} else if !errors.Is(err, store.ErrNotFound) {
		return err
	}

	metrics, err := o.catalog.ListSupplierMetrics(ctx)
	if err != nil {
		return err
	}
	in.SupplierMetrics = metrics

	anomalies := anomaly.Detect(in, anomaly.Thresholds{
		InventoryDeviationPct: o.cfg.InventoryDeviationPct,
		DemandSpikePct:        o.cfg.DemandSpikePct,
		SupplierDegradationPP: o.cfg.SupplierDegradationPP,
	})

	wctx := commitCtx(ctx)
	for i := range anomalies {
		a := &anomalies[i]
		if err := o.withRetry(wctx, "save anomaly", func(c context.Context) error {
			err := o.catalog.SaveAnomaly(c, a)
			if errors.Is(err, store.ErrConflict) {
				return nil
			}
			return err
		}); err != nil {
			return err
		}
		rc.recordAnomalyID(a.AnomalyID)
		rc.recordUpdated(store.AnomalyKey(a.AnomalyID))
	}

	if err := o.withRetry(wctx, "persist detect stage", func(c context.Context) error {
		return o.catalog.SaveRunStage(c, rc.item.RunID, string(StageDetect), anomalies)
	}); err != nil {
		return err
	}

	// Record the on-hand total this run observed; the next run reconciles
	// decreases against recorded sales to catch shrinkage.
	if err := o.withRetry(wctx, "save stock snapshot", func(c context.Context) error {
		return o.catalog.SaveStockSnapshot(c, &store.StockSnapshot{
			SKU: rc.item.SKU, Total: total, ObservedAt: now,
		})
	}); err != nil {
		return err
	}

	// Delivery is at-least-once; consumers dedupe by anomaly_id.
	for i := range anomalies {
		a := &anomalies[i]
		if !domain.SeverityAtLeast(a.Severity, domain.SeverityMedium) {
			continue
		}
		if err := o.notifier.Notify(wctx, a); err != nil {
			log.Error().Err(err).Str("anomaly_id", a.AnomalyID).Msg("anomaly notification failed")
		}
	}

	rc.anomalies = anomalies
	return nil
}

// --- Procurement ---

func (o *Orchestrator) stageProcure(ctx context.Context, rc *runContext) error {
	var persisted domain.PurchaseOrder
	ok, err := o.catalog.GetRunStage(ctx, rc.item.RunID, string(StageProcure), &persisted)
	if err != nil {
		return err
	}
	if ok {
		rc.po = &persisted
		rc.result.POID = persisted.POID
		return nil
	}

	suppliers, err := o.catalog.ListSuppliers(ctx)
	if err != nil {
		return err
	}
	if len(suppliers) == 0 {
		return &ValidationError{Stage: StageProcure, Msg: "no candidate suppliers for " + rc.item.SKU}
	}

	po, err := procure.CreateOrder(rc.item.SKU, rc.item.RunID, receivingWarehouse(rc.inventory),
		rc.opt.RecommendedQuantity, suppliers, procure.Weights{
			Price:       o.cfg.PriceWeight,
			LeadTime:    o.cfg.LeadTimeWeight,
			Reliability: o.cfg.ReliabilityWeight,
		})
	if err != nil {
		return &ValidationError{Stage: StageProcure, Msg: err.Error()}
	}

	wctx := commitCtx(ctx)
	if err := o.withRetry(wctx, "save purchase order", func(c context.Context) error {
		err := o.catalog.SavePO(c, po)
		if errors.Is(err, store.ErrConflict) {
			return nil
		}
		return err
	}); err != nil {
		return err
	}
	if err := o.withRetry(wctx, "persist procure stage", func(c context.Context) error {
		return o.catalog.SaveRunStage(c, rc.item.RunID, string(StageProcure), po)
	}); err != nil {
		return err
	}

	rc.po = po
	rc.result.POID = po.POID
	rc.recordUpdated(store.POKey(po.POID))
	return nil
}

// receivingWarehouse picks the emptiest warehouse as the delivery target,
// ties broken by id.
func receivingWarehouse(inventory []domain.InventoryRecord) string {
	if len(inventory) == 0 {
		return "main"
	}
	best := inventory[0]
	for _, inv := range inventory[1:] {
		if inv.Quantity < best.Quantity ||
			(inv.Quantity == best.Quantity && inv.WarehouseID < best.WarehouseID) {
			best = inv
		}
	}
	return best.WarehouseID
}

// --- Reporting ---

func (o *Orchestrator) stageReport(ctx context.Context, rc *runContext) error {
	var persisted domain.KPIReport
	ok, err := o.catalog.GetRunStage(ctx, rc.item.RunID, string(StageReport), &persisted)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}

	metrics, err := o.catalog.ListSupplierMetrics(ctx)
	if err != nil {
		return err
	}

	in := report.BuildInput{
		SKU:             rc.item.SKU,
		RunID:           rc.item.RunID,
		Forecast:        rc.forecast,
		Optimization:    rc.opt,
		PurchaseOrder:   rc.po,
		Anomalies:       rc.anomalies,
		SupplierMetrics: metrics,
	}
	if prev, err := o.catalog.PreviousForecast(ctx, rc.item.SKU, rc.item.RunID); err == nil {
		in.PrevForecast = prev
		in.RealizedDemand = windowDemand(rc.history, prev.GeneratedAt)
	} else if !errors.Is(err, store.ErrNotFound) {
		return err
	}

	kpi := report.Build(in)

	wctx := commitCtx(ctx)
	payload := &report.Payload{KPIs: *kpi, GeneratedAt: kpi.GeneratedAt}
	if err := o.withRetry(wctx, "publish report", func(c context.Context) error {
		return o.publisher.Publish(c, payload)
	}); err != nil {
		log.Error().Err(err).Str("run_id", rc.item.RunID).Msg("report publish failed")
	}

	return o.withRetry(wctx, "persist report stage", func(c context.Context) error {
		return o.catalog.SaveRunStage(c, rc.item.RunID, string(StageReport), kpi)
	})
}

// --- History helpers ---

// warehouseDemandWeights derives each warehouse's share of recent demand from
// the sales history. Entries without a warehouse are ignored; nil means no
// per-warehouse signal and the caller falls back to equal shares.
func warehouseDemandWeights(history []domain.SalesHistoryEntry, days int) map[string]float64 {
	cutoff := time.Now().UTC().AddDate(0, 0, -days)
	weights := make(map[string]float64)
	for _, e := range history {
		if e.WarehouseID == "" || e.Date.Before(cutoff) {
			continue
		}
		weights[e.WarehouseID] += e.Quantity
	}
	if len(weights) == 0 {
		return nil
	}
	return weights
}

// windowDemand sums recorded sales since the given time.
func windowDemand(history []domain.SalesHistoryEntry, since time.Time) float64 {
	var total float64
	for _, e := range history {
		if e.Quantity > 0 && !e.Date.Before(since) {
			total += e.Quantity
		}
	}
	return total
}

// rollingAverageDemand averages demand per windowDays-sized window over the
// history before the most recent window, giving the baseline a spike is
// measured against.
func rollingAverageDemand(history []domain.SalesHistoryEntry, now time.Time, windowDays int) float64 {
	if len(history) == 0 {
		return 0
	}
	sorted := append([]domain.SalesHistoryEntry(nil), history...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Date.Before(sorted[j].Date) })

	windowStart := now.AddDate(0, 0, -windowDays)
	var priorTotal float64
	earliest := sorted[0].Date
	for _, e := range sorted {
		if e.Quantity > 0 && e.Date.Before(windowStart) {
			priorTotal += e.Quantity
		}
	}

	priorDays := windowStart.Sub(earliest).Hours() / 24
	if priorDays < float64(windowDays) {
		return 0 // not enough history for a baseline
	}
	windows := priorDays / float64(windowDays)
	return priorTotal / windows
}
