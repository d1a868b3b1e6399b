// Package alertredis publishes alerts to a Redis list for downstream
// consumers.
package alertredis

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"

	"hostwatch/internal/logger"
	"hostwatch/pkg/models"
)

// Config configures Redis access for alert publishing.
type Config struct {
	Addr     string
	Password string
	DB       int
	Key      string
}

// Writer pushes serialized alerts onto a Redis list.
type Writer struct {
	client *redis.Client
	key    string
}

// NewWriter connects to Redis and verifies the connection before returning.
func NewWriter(cfg Config) (*Writer, error) {
	if strings.TrimSpace(cfg.Addr) == "" {
		cfg.Addr = "127.0.0.1:6379"
	}
	if strings.TrimSpace(cfg.Key) == "" {
		cfg.Key = "hostwatch:alerts"
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis alert sink: %w", err)
	}

	logger.Infof("Alert redis writer initialized: %s key=%s", cfg.Addr, cfg.Key)
	return &Writer{client: client, key: strings.TrimSpace(cfg.Key)}, nil
}

// Publish appends one alert to the list.
func (w *Writer) Publish(ctx context.Context, alert *models.Alert) error {
	if alert == nil {
		return nil
	}
	data, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("failed to encode alert %s: %w", alert.AlertID, err)
	}
	if err := w.client.RPush(ctx, w.key, data).Err(); err != nil {
		return fmt.Errorf("failed to publish alert %s: %w", alert.AlertID, err)
	}
	return nil
}

// Close closes Redis resources.
func (w *Writer) Close() error {
	if w == nil || w.client == nil {
		return nil
	}
	return w.client.Close()
}
