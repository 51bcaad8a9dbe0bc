// internal/service/engine_service.go
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/replenlabs/supplyengine/internal/config"
	"github.com/replenlabs/supplyengine/internal/domain"
	"github.com/replenlabs/supplyengine/internal/engine"
	"github.com/replenlabs/supplyengine/internal/store"
)

var ErrQueueClosed = errors.New("engine queue closed")

// EngineService fronts the orchestrator with a worker pool and exposes the
// catalog operations the API needs. Submit is asynchronous; results are read
// back by run id.
type EngineService struct {
	catalog *store.Catalog
	orch    *engine.Orchestrator
	cfg     config.Engine

	jobs   chan engine.WorkItem
	wg     sync.WaitGroup
	mu     sync.Mutex
	closed bool
}

func NewEngineService(catalog *store.Catalog, orch *engine.Orchestrator, cfg config.Engine) *EngineService {
	return &EngineService{
		catalog: catalog,
		orch:    orch,
		cfg:     cfg,
		jobs:    make(chan engine.WorkItem, 64),
	}
}

// Start launches the worker pool. Workers run until Stop closes the queue.
func (s *EngineService) Start(ctx context.Context) {
	workerCount := s.cfg.WorkerCount
	if workerCount < 1 {
		workerCount = 1
	}
	for i := 0; i < workerCount; i++ {
		s.wg.Add(1)
		go func(workerID int) {
			defer s.wg.Done()
			for item := range s.jobs {
				if _, err := s.orch.Run(ctx, item); err != nil {
					log.Error().Err(err).Int("worker", workerID).
						Str("run_id", item.RunID).Msg("run could not be recorded")
				}
			}
		}(i)
	}
	log.Info().Int("workers", workerCount).Msg("engine workers started")
}

// Stop drains the queue and waits for in-flight runs to reach a terminal
// state.
func (s *EngineService) Stop() {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.jobs)
	}
	s.mu.Unlock()
	s.wg.Wait()
}

// Submit validates a work item, assigns it a run id, and enqueues it. The
// pending result is persisted immediately so GetResult never 404s a run that
// was accepted.
func (s *EngineService) Submit(ctx context.Context, item engine.WorkItem) (string, error) {
	if item.SKU == "" {
		return "", fmt.Errorf("sku is required")
	}
	if _, err := s.catalog.GetProduct(ctx, item.SKU); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", fmt.Errorf("unknown product %s", item.SKU)
		}
		return "", err
	}
	if item.RunID == "" {
		item.RunID = uuid.NewString()
	}

	pending := &engine.RunResult{RunID: item.RunID, SKU: item.SKU, State: engine.StatePending}
	if err := s.catalog.SaveRunResult(ctx, item.RunID, pending); err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return "", ErrQueueClosed
	}
	s.jobs <- item
	return item.RunID, nil
}

// RunSync executes a work item on the calling goroutine, bypassing the queue.
// The CLI uses this.
func (s *EngineService) RunSync(ctx context.Context, item engine.WorkItem) (*engine.RunResult, error) {
	return s.orch.Run(ctx, item)
}

func (s *EngineService) GetResult(ctx context.Context, runID string) (*engine.RunResult, error) {
	var res engine.RunResult
	found, err := s.catalog.GetRunResult(ctx, runID, &res)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, store.ErrNotFound
	}
	return &res, nil
}

// --- Catalog passthroughs ---

func (s *EngineService) OnboardProduct(ctx context.Context, p *domain.Product) error {
	if p.SKU == "" {
		return fmt.Errorf("sku is required")
	}
	if p.OrderingCost <= 0 || p.HoldingCostPerUnit <= 0 {
		return fmt.Errorf("ordering cost and holding cost must be positive")
	}
	return s.catalog.SaveProduct(ctx, p)
}

func (s *EngineService) GetProduct(ctx context.Context, sku string) (*domain.Product, error) {
	return s.catalog.GetProduct(ctx, sku)
}

func (s *EngineService) SetInventory(ctx context.Context, inv *domain.InventoryRecord) error {
	if inv.SKU == "" || inv.WarehouseID == "" {
		return fmt.Errorf("sku and warehouse_id are required")
	}
	if inv.Quantity < 0 {
		return fmt.Errorf("quantity must be non-negative")
	}
	return s.catalog.PutInventory(ctx, inv)
}

func (s *EngineService) ListInventory(ctx context.Context, sku string) ([]domain.InventoryRecord, error) {
	return s.catalog.ListInventory(ctx, sku)
}

func (s *EngineService) RecordSale(ctx context.Context, entry *domain.SalesHistoryEntry) error {
	if entry.SKU == "" {
		return fmt.Errorf("sku is required")
	}
	if entry.Date.IsZero() {
		return fmt.Errorf("date is required")
	}
	return s.catalog.AppendSales(ctx, entry)
}

func (s *EngineService) UpsertSupplier(ctx context.Context, sup *domain.Supplier) error {
	if sup.SupplierID == "" {
		return fmt.Errorf("supplier_id is required")
	}
	return s.catalog.UpsertSupplier(ctx, sup)
}

func (s *EngineService) RecordSupplierMetric(ctx context.Context, m *domain.SupplierMetric) error {
	if m.SupplierID == "" {
		return fmt.Errorf("supplier_id is required")
	}
	return s.catalog.PutSupplierMetric(ctx, m)
}

func (s *EngineService) LatestForecast(ctx context.Context, sku string) (*domain.Forecast, error) {
	return s.catalog.LatestForecast(ctx, sku)
}

func (s *EngineService) ListAnomalies(ctx context.Context, sku string) ([]domain.Anomaly, error) {
	return s.catalog.ListAnomalies(ctx, sku)
}

func (s *EngineService) GetPurchaseOrder(ctx context.Context, id string) (*domain.PurchaseOrder, error) {
	po, _, err := s.catalog.GetPO(ctx, id)
	return po, err
}

// DeliverPO marks a purchase order delivered and receives its quantity into
// the target warehouse under optimistic concurrency.
func (s *EngineService) DeliverPO(ctx context.Context, id string) (*domain.PurchaseOrder, error) {
	po, err := s.catalog.UpdatePOStatus(ctx, id, domain.PODelivered)
	if err != nil {
		return nil, err
	}
	_, err = s.catalog.MutateInventory(ctx, po.SKU, po.WarehouseID, s.cfg.ConflictRetries, func(inv *domain.InventoryRecord) error {
		inv.Quantity += po.Quantity
		return nil
	})
	if errors.Is(err, store.ErrNotFound) {
		// Receiving into a warehouse with no record yet creates one.
		err = s.catalog.PutInventory(ctx, &domain.InventoryRecord{
			SKU:         po.SKU,
			WarehouseID: po.WarehouseID,
			Quantity:    po.Quantity,
		})
	}
	if err != nil {
		return nil, fmt.Errorf("receive po %s: %w", id, err)
	}
	log.Info().Str("po_id", id).Str("sku", po.SKU).Str("warehouse", po.WarehouseID).
		Int("quantity", po.Quantity).Msg("purchase order delivered")
	return po, nil
}

// CancelPO cancels a pending or confirmed purchase order.
func (s *EngineService) CancelPO(ctx context.Context, id string) (*domain.PurchaseOrder, error) {
	return s.catalog.UpdatePOStatus(ctx, id, domain.POCancelled)
}
