// internal/engine/errors.go
package engine

import "fmt"

// ValidationError marks malformed stage input. Forecasting absorbs these
// locally; procurement propagates one when the supplier list is empty.
type ValidationError struct {
	Stage StageKind
	Msg   string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: validation: %s", e.Stage, e.Msg)
}

// ConfigError marks bad configuration or master data without a safe default.
// It terminates the affected work item only, never the orchestrator process.
type ConfigError struct {
	Msg string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("configuration: %s", e.Msg)
}
