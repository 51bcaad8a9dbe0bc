// internal/engine/types.go
package engine

import (
	"fmt"
	"time"
)

// StageKind is the closed set of pipeline stages. Dispatch goes through a
// static lookup table built at startup; there is no runtime reflection.
type StageKind string

const (
	StageForecast StageKind = "forecast"
	StageOptimize StageKind = "optimize"
	StageDetect   StageKind = "detect"
	StageProcure  StageKind = "procure"
	StageReport   StageKind = "report"
)

// AllStages returns every stage in dependency order.
func AllStages() []StageKind {
	return []StageKind{StageForecast, StageOptimize, StageDetect, StageProcure, StageReport}
}

// ParseStage validates a stage name from an external trigger.
func ParseStage(s string) (StageKind, error) {
	switch StageKind(s) {
	case StageForecast, StageOptimize, StageDetect, StageProcure, StageReport:
		return StageKind(s), nil
	}
	return "", fmt.Errorf("unknown stage %q", s)
}

// RunState is the orchestrator state machine position for a work item.
type RunState string

const (
	StatePending     RunState = "pending"
	StateForecasting RunState = "forecasting"
	StateOptimizing  RunState = "optimizing"
	StateDetecting   RunState = "detecting"
	StateProcuring   RunState = "procuring"
	StateReporting   RunState = "reporting"
	StateDone        RunState = "done"
	StateError       RunState = "error"
	StateTimedOut    RunState = "timed_out"
)

// Terminal reports whether the state machine has finished.
func (s RunState) Terminal() bool {
	return s == StateDone || s == StateError || s == StateTimedOut
}

// WorkItem is one unit of orchestration work: one SKU, one run.
type WorkItem struct {
	SKU      string      `json:"sku"`
	Stages   []StageKind `json:"stages,omitempty"` // empty means all stages
	Deadline time.Time   `json:"deadline,omitempty"`
	RunID    string      `json:"run_id"`
}

func (w WorkItem) wants(stage StageKind) bool {
	if len(w.Stages) == 0 {
		return true
	}
	for _, s := range w.Stages {
		if s == stage {
			return true
		}
	}
	return false
}

// RunResult is the structured outcome surfaced per work item: final state,
// ids of every record the run created or updated, and any failure. Failures
// are always attached here, never silently dropped.
type RunResult struct {
	RunID          string    `json:"run_id"`
	SKU            string    `json:"sku"`
	State          RunState  `json:"state"`
	ForecastID     string    `json:"forecast_id,omitempty"`
	POID           string    `json:"po_id,omitempty"`
	AnomalyIDs     []string  `json:"anomaly_ids,omitempty"`
	UpdatedRecords []string  `json:"updated_records,omitempty"`
	Error          string    `json:"error,omitempty"`
	StartedAt      time.Time `json:"started_at"`
	CompletedAt    time.Time `json:"completed_at,omitempty"`
}
