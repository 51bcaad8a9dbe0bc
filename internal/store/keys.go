// internal/store/keys.go
package store

import (
	"fmt"
	"time"
)

// Key layout. Prefix scans rely on these being stable.
const (
	productPrefix  = "product:"
	invPrefix      = "inventory:"
	salesPrefix    = "sales:"
	supplierPrefix = "supplier:"
	metricPrefix   = "supplier_metric:"
	forecastPrefix = "forecast:"
	poPrefix       = "po:"
	anomalyPrefix  = "anomaly:"
	runPrefix      = "run:"
	snapshotPrefix = "snapshot:"
)

func ProductKey(sku string) string { return productPrefix + sku }

func InventoryKey(sku, warehouseID string) string {
	return fmt.Sprintf("%s%s:%s", invPrefix, sku, warehouseID)
}

func InventoryPrefix(sku string) string { return invPrefix + sku + ":" }

func SalesKey(sku string, date time.Time, id string) string {
	return fmt.Sprintf("%s%s:%s:%s", salesPrefix, sku, date.UTC().Format("20060102"), id)
}

func SalesPrefix(sku string) string { return salesPrefix + sku + ":" }

func SupplierKey(id string) string { return supplierPrefix + id }

func SupplierMetricKey(id string) string { return metricPrefix + id }

func ForecastKey(sku, forecastID string) string {
	return fmt.Sprintf("%s%s:%s", forecastPrefix, sku, forecastID)
}

func ForecastPrefix(sku string) string { return forecastPrefix + sku + ":" }

func POKey(id string) string { return poPrefix + id }

func AnomalyKey(id string) string { return anomalyPrefix + id }

// RunKey addresses a persisted stage output, keyed by (run_id, stage) so
// re-running a work item resumes instead of recomputing.
func RunKey(runID, part string) string {
	return fmt.Sprintf("%s%s:%s", runPrefix, runID, part)
}

func SnapshotKey(sku string) string { return snapshotPrefix + sku }
