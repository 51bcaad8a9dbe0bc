// internal/engine/retry.go
package engine

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/replenlabs/supplyengine/internal/store"
)

// withRetry runs fn, retrying transient storage failures with exponential
// backoff up to the configured attempt count. Conflicts and other errors
// return immediately; conflict retry is a re-read-and-recompute loop that
// lives where the recomputation does (store.Catalog.MutateInventory and the
// product parameter update).
func (o *Orchestrator) withRetry(ctx context.Context, op string, fn func(context.Context) error) error {
	backoff := o.cfg.RetryBackoff
	var err error
	for attempt := 0; ; attempt++ {
		err = fn(ctx)
		if err == nil || !store.IsTransient(err) {
			return err
		}
		if attempt+1 >= o.cfg.TransientRetries {
			return err
		}
		log.Warn().Err(err).Str("op", op).Int("attempt", attempt+1).
			Dur("backoff", backoff).Msg("transient store failure, retrying")
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return ctx.Err()
		}
		backoff *= 2
	}
}

// commitCtx detaches a write from the run deadline so an expired work item
// never interrupts a store operation mid-write. The deadline is checked
// between stages instead.
func commitCtx(ctx context.Context) context.Context {
	return context.WithoutCancel(ctx)
}
