// internal/report/minio.go
package report

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/replenlabs/supplyengine/internal/config"
)

// ObjectPublisher uploads report payloads as JSON objects to an S3-compatible
// bucket, one object per run.
type ObjectPublisher struct {
	client *minio.Client
	bucket string
}

func NewObjectPublisher(cfg config.Report) (*ObjectPublisher, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("report sink endpoint must be provided")
	}
	if cfg.AccessKey == "" || cfg.SecretKey == "" {
		return nil, fmt.Errorf("report sink credentials must be provided")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("report sink bucket must be provided")
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("report sink client: %w", err)
	}

	return &ObjectPublisher{client: client, bucket: cfg.Bucket}, nil
}

func (p *ObjectPublisher) Publish(ctx context.Context, payload *Payload) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}

	key := fmt.Sprintf("reports/%s/%s.json", payload.KPIs.SKU, payload.KPIs.RunID)
	_, err = p.client.PutObject(ctx, p.bucket, key, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: "application/json"})
	if err != nil {
		return fmt.Errorf("upload report %s: %w", key, err)
	}
	return nil
}
