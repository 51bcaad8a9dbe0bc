// internal/engine/orchestrator.go
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/replenlabs/supplyengine/internal/config"
	"github.com/replenlabs/supplyengine/internal/notify"
	"github.com/replenlabs/supplyengine/internal/report"
	"github.com/replenlabs/supplyengine/internal/store"
)

// Orchestrator sequences the pipeline stages for one work item:
//
//	Pending -> Forecasting -> {Optimizing || Detecting} -> Procuring -> Reporting -> Done
//
// with Error and TimedOut terminals. Optimizing and Detecting run
// concurrently since neither consumes the other's output; they join before
// Procuring. Every stage output is persisted before the state machine
// advances, so a crashed or re-submitted run resumes from the last persisted
// stage instead of recomputing.
type Orchestrator struct {
	catalog   *store.Catalog
	cfg       config.Engine
	notifier  notify.Notifier
	publisher report.Publisher
	stages    map[StageKind]stageFunc
}

func New(catalog *store.Catalog, cfg config.Engine, notifier notify.Notifier, publisher report.Publisher) *Orchestrator {
	if notifier == nil {
		notifier = notify.LogNotifier{}
	}
	if publisher == nil {
		publisher = report.LogPublisher{}
	}
	o := &Orchestrator{
		catalog:   catalog,
		cfg:       cfg,
		notifier:  notifier,
		publisher: publisher,
	}
	o.stages = o.buildStageTable()
	return o
}

// Run executes a work item to a terminal state. Stage failures are attached
// to the returned result, never dropped; the error return is reserved for the
// orchestrator being unable to operate at all (for example the run result
// cannot be persisted).
func (o *Orchestrator) Run(ctx context.Context, item WorkItem) (*RunResult, error) {
	if item.RunID == "" {
		item.RunID = uuid.NewString()
	}

	deadline := item.Deadline
	if deadline.IsZero() {
		deadline = time.Now().Add(o.cfg.RunDeadline)
	}
	ctx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	rc := &runContext{
		item: item,
		result: &RunResult{
			RunID:     item.RunID,
			SKU:       item.SKU,
			State:     StatePending,
			StartedAt: time.Now().UTC(),
		},
	}

	log.Info().Str("run_id", item.RunID).Str("sku", item.SKU).Msg("run started")

	if err := o.loadBaseState(ctx, rc); err != nil {
		return o.finish(ctx, rc, err)
	}

	needForecast := rc.item.wants(StageForecast) || rc.item.wants(StageOptimize) ||
		rc.item.wants(StageDetect) || rc.item.wants(StageProcure) || rc.item.wants(StageReport)
	if needForecast {
		if err := o.runStage(ctx, rc, StageForecast, StateForecasting); err != nil {
			return o.finish(ctx, rc, err)
		}
	}

	// Optimizing and Detecting only need current state plus the forecast;
	// fan out and join before procurement.
	runOptimize := rc.item.wants(StageOptimize) || rc.item.wants(StageProcure)
	runDetect := rc.item.wants(StageDetect)
	if runOptimize || runDetect {
		if err := checkDeadline(ctx); err != nil {
			return o.finish(ctx, rc, err)
		}
		state := StateOptimizing
		if !runOptimize {
			state = StateDetecting
		}
		o.setState(ctx, rc, state)

		g, gctx := errgroup.WithContext(ctx)
		if runOptimize {
			g.Go(func() error { return o.stages[StageOptimize](gctx, rc) })
		}
		if runDetect {
			g.Go(func() error { return o.stages[StageDetect](gctx, rc) })
		}
		if err := g.Wait(); err != nil {
			return o.finish(ctx, rc, err)
		}
	}

	// Procurement only fires when optimization recommends a reorder.
	if rc.item.wants(StageProcure) && rc.opt != nil && rc.opt.RecommendedQuantity > 0 {
		if err := o.runStage(ctx, rc, StageProcure, StateProcuring); err != nil {
			return o.finish(ctx, rc, err)
		}
	}

	if rc.item.wants(StageReport) {
		if err := o.runStage(ctx, rc, StageReport, StateReporting); err != nil {
			return o.finish(ctx, rc, err)
		}
	}

	return o.finish(ctx, rc, nil)
}

func (o *Orchestrator) runStage(ctx context.Context, rc *runContext, stage StageKind, state RunState) error {
	if err := checkDeadline(ctx); err != nil {
		return err
	}
	o.setState(ctx, rc, state)
	return o.stages[stage](ctx, rc)
}

// loadBaseState reads the product, sales history, and inventory the stages
// share. A missing product is a configuration failure for this work item.
func (o *Orchestrator) loadBaseState(ctx context.Context, rc *runContext) error {
	err := o.withRetry(ctx, "load product", func(c context.Context) error {
		p, err := o.catalog.GetProduct(c, rc.item.SKU)
		if err != nil {
			return err
		}
		rc.product = p
		return nil
	})
	if errors.Is(err, store.ErrNotFound) {
		return &ConfigError{Msg: "unknown product " + rc.item.SKU}
	}
	if err != nil {
		return err
	}
	if rc.product.Archived {
		return &ConfigError{Msg: "product " + rc.item.SKU + " is archived"}
	}

	if err := o.withRetry(ctx, "load sales history", func(c context.Context) error {
		history, err := o.catalog.SalesHistory(c, rc.item.SKU)
		if err != nil {
			return err
		}
		rc.history = history
		return nil
	}); err != nil {
		return err
	}

	return o.withRetry(ctx, "load inventory", func(c context.Context) error {
		inventory, err := o.catalog.ListInventory(c, rc.item.SKU)
		if err != nil {
			return err
		}
		rc.inventory = inventory
		return nil
	})
}

// checkDeadline gates each stage transition. An expired run deadline surfaces
// as DeadlineExceeded, an external cancellation as Canceled; finish maps the
// two to distinct terminal outcomes.
func checkDeadline(ctx context.Context) error {
	return ctx.Err()
}

// setState records a state transition. Persisting the intermediate result is
// best effort; the terminal write in finish is the authoritative one.
func (o *Orchestrator) setState(ctx context.Context, rc *runContext, state RunState) {
	rc.result.State = state
	if err := o.catalog.SaveRunResult(commitCtx(ctx), rc.item.RunID, rc.result); err != nil {
		log.Warn().Err(err).Str("run_id", rc.item.RunID).Str("state", string(state)).
			Msg("could not persist state transition")
	}
}

// finish drives the run to its terminal state and persists the result.
func (o *Orchestrator) finish(ctx context.Context, rc *runContext, runErr error) (*RunResult, error) {
	res := rc.result
	res.CompletedAt = time.Now().UTC()

	switch {
	case runErr == nil:
		res.State = StateDone
	case errors.Is(runErr, context.DeadlineExceeded):
		prior := res.State
		res.State = StateTimedOut
		res.Error = "deadline exceeded in state " + string(prior)
	case errors.Is(runErr, context.Canceled):
		prior := res.State
		res.State = StateError
		res.Error = "run cancelled in state " + string(prior)
	case errors.Is(runErr, store.ErrConflict):
		res.State = StateError
		res.Error = fmt.Sprintf("conflict retries exhausted: %v", runErr)
	default:
		res.State = StateError
		res.Error = runErr.Error()
	}

	if err := o.withRetry(commitCtx(ctx), "persist run result", func(c context.Context) error {
		return o.catalog.SaveRunResult(c, rc.item.RunID, res)
	}); err != nil {
		return res, fmt.Errorf("persist result for run %s: %w", rc.item.RunID, err)
	}

	evt := log.Info()
	if res.State != StateDone {
		evt = log.Error()
	}
	evt.Str("run_id", res.RunID).Str("sku", res.SKU).Str("state", string(res.State)).
		Str("error", res.Error).Dur("elapsed", res.CompletedAt.Sub(res.StartedAt)).
		Msg("run finished")
	return res, nil
}
