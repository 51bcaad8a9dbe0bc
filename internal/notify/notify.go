// internal/notify/notify.go
package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/replenlabs/supplyengine/internal/domain"
)

// Notifier receives newly detected medium/high anomalies. Delivery is
// at-least-once; consumers dedupe by anomaly_id.
type Notifier interface {
	Notify(ctx context.Context, a *domain.Anomaly) error
}

// LogNotifier is the default sink when no alerting transport is configured.
type LogNotifier struct{}

func (LogNotifier) Notify(ctx context.Context, a *domain.Anomaly) error {
	log.Warn().
		Str("anomaly_id", a.AnomalyID).
		Str("sku", a.SKU).
		Str("kind", string(a.Kind)).
		Str("severity", string(a.Severity)).
		Msg(a.Description)
	return nil
}

// RedisNotifier publishes anomalies to a pub/sub channel for external
// alerting consumers.
type RedisNotifier struct {
	client  *redis.Client
	channel string
}

func NewRedisNotifier(client *redis.Client, channel string) *RedisNotifier {
	return &RedisNotifier{client: client, channel: channel}
}

func (n *RedisNotifier) Notify(ctx context.Context, a *domain.Anomaly) error {
	data, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("encode anomaly: %w", err)
	}
	if err := n.client.Publish(ctx, n.channel, data).Err(); err != nil {
		return fmt.Errorf("publish anomaly %s: %w", a.AnomalyID, err)
	}
	return nil
}
