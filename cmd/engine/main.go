// cmd/engine/main.go
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"

	"github.com/replenlabs/supplyengine/internal/config"
	"github.com/replenlabs/supplyengine/internal/domain"
	"github.com/replenlabs/supplyengine/internal/engine"
	"github.com/replenlabs/supplyengine/internal/notify"
	"github.com/replenlabs/supplyengine/internal/report"
	"github.com/replenlabs/supplyengine/internal/store"
	"github.com/replenlabs/supplyengine/pkg/logger"

	"github.com/shopspring/decimal"
)

func main() {
	_ = godotenv.Load()

	app := &cli.App{
		Name:  "engine",
		Usage: "run replenishment pipelines from the command line",
		Commands: []*cli.Command{
			{
				Name:  "run",
				Usage: "execute a pipeline run for a SKU and print the result",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "sku", Required: true, Usage: "product SKU to process"},
					&cli.StringSliceFlag{Name: "stage",
						Usage: fmt.Sprintf("restrict to specific stages (repeatable; any of %v)", engine.AllStages())},
					&cli.DurationFlag{Name: "deadline", Value: 2 * time.Minute, Usage: "run deadline"},
				},
				Action: runPipeline,
			},
			{
				Name:   "seed",
				Usage:  "load demo products, inventory, sales, and suppliers into the store",
				Action: seedStore,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		logger.Log.Fatal().Err(err).Msg("engine command failed")
	}
}

func buildOrchestrator(cfg *config.Config) (*engine.Orchestrator, *store.Catalog, error) {
	kv, err := store.Open(cfg.Store)
	if err != nil {
		return nil, nil, err
	}
	catalog := store.NewCatalog(kv)
	orch := engine.New(catalog, cfg.Engine, notify.LogNotifier{}, report.LogPublisher{})
	return orch, catalog, nil
}

func runPipeline(c *cli.Context) error {
	cfg := config.Load()
	logger.SetLevel(cfg.Server.Mode)

	orch, _, err := buildOrchestrator(cfg)
	if err != nil {
		return err
	}

	item := engine.WorkItem{
		SKU:      c.String("sku"),
		Deadline: time.Now().Add(c.Duration("deadline")),
	}
	for _, s := range c.StringSlice("stage") {
		stage, err := engine.ParseStage(s)
		if err != nil {
			return err
		}
		item.Stages = append(item.Stages, stage)
	}

	res, err := orch.Run(c.Context, item)
	if err != nil {
		return err
	}

	out, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func seedStore(c *cli.Context) error {
	cfg := config.Load()
	logger.SetLevel(cfg.Server.Mode)

	_, catalog, err := buildOrchestrator(cfg)
	if err != nil {
		return err
	}
	ctx := c.Context

	products := []domain.Product{
		{SKU: "SKU-1001", Name: "Espresso Beans 1kg", LeadTimeDays: 7, SafetyStock: 40,
			OrderingCost: 50, HoldingCostPerUnit: 2, UnitPrice: 18.5},
		{SKU: "SKU-2040", Name: "Oat Milk 12-pack", LeadTimeDays: 4, SafetyStock: 25,
			OrderingCost: 35, HoldingCostPerUnit: 1.2, UnitPrice: 24},
	}
	for i := range products {
		if err := catalog.SaveProduct(ctx, &products[i]); err != nil {
			return err
		}
	}

	inventory := []domain.InventoryRecord{
		{SKU: "SKU-1001", WarehouseID: "wh-east", Quantity: 120, Capacity: 500},
		{SKU: "SKU-1001", WarehouseID: "wh-west", Quantity: 30, Capacity: 300},
		{SKU: "SKU-2040", WarehouseID: "wh-east", Quantity: 80, Capacity: 400},
	}
	for i := range inventory {
		if err := catalog.PutInventory(ctx, &inventory[i]); err != nil {
			return err
		}
	}

	now := time.Now().UTC().Truncate(24 * time.Hour)
	for _, p := range products {
		for day := 120; day > 0; day-- {
			qty := 8 + float64(day%5)
			entry := domain.SalesHistoryEntry{
				SKU:      p.SKU,
				Date:     now.AddDate(0, 0, -day),
				Quantity: qty,
				Revenue:  qty * p.UnitPrice,
			}
			if err := catalog.AppendSales(ctx, &entry); err != nil {
				return err
			}
		}
	}

	suppliers := []domain.Supplier{
		{SupplierID: "sup-acme", Name: "Acme Wholesale", UnitPrice: decimal.NewFromFloat(16.20),
			ReliabilityScore: 0.94, LeadTimeDays: 6, MinOrderQty: 50},
		{SupplierID: "sup-nort", Name: "Northbay Trading", UnitPrice: decimal.NewFromFloat(15.40),
			ReliabilityScore: 0.81, LeadTimeDays: 11, MinOrderQty: 100},
	}
	for i := range suppliers {
		if err := catalog.UpsertSupplier(ctx, &suppliers[i]); err != nil {
			return err
		}
		metric := domain.SupplierMetric{
			SupplierID:       suppliers[i].SupplierID,
			ReliabilityScore: suppliers[i].ReliabilityScore,
			RecentOnTimeRate: suppliers[i].ReliabilityScore,
		}
		if err := catalog.PutSupplierMetric(ctx, &metric); err != nil {
			return err
		}
	}

	logger.Log.Info().Int("products", len(products)).Int("suppliers", len(suppliers)).
		Msg("seed data loaded")
	return nil
}
