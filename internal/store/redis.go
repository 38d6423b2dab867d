package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"fleet-monitor/realtime/internal/config"
	"fleet-monitor/realtime/internal/domain"
)

const (
	stateTTL         = 30 * time.Second
	telemetryChannel = "fleet:telemetry"
	alertsChannel    = "fleet:alerts"
)

type RedisStore struct {
	client *redis.Client
	logger *slog.Logger
}

func NewRedisStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.RedisAddr,
		Password:     cfg.RedisPassword,
		DB:           cfg.RedisDB,
		PoolSize:     20,
		MinIdleConns: 5,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisStore{client: client, logger: logger}, nil
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}

func (r *RedisStore) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func stateKey(vehicleID string) string {
	return fmt.Sprintf("vehicle:%s:state", vehicleID)
}

func apiKeyKey(apiKey string) string {
	return fmt.Sprintf("vehicle:auth:%s", apiKey)
}

// CacheState writes the latest packet of a vehicle into a short-lived hash
// and publishes it for out-of-process consumers.
func (r *RedisStore) CacheState(ctx context.Context, p *domain.TelemetryPacket) error {
	stateData := make(map[string]interface{}, len(p.Data)+3)
	for name, v := range p.Data {
		stateData["m:"+name] = v
	}
	stateData["vehicle_id"] = p.VehicleID
	stateData["timestamp"] = p.Timestamp
	stateData["received_at"] = time.Now().UnixMilli()

	pubPayload, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	key := stateKey(p.VehicleID)

	pipe := r.client.Pipeline()
	pipe.Del(ctx, key)
	pipe.HSet(ctx, key, stateData)
	pipe.Expire(ctx, key, stateTTL)
	pipe.Publish(ctx, telemetryChannel, pubPayload)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis pipeline failed: %w", err)
	}
	return nil
}

// LatestState returns the cached packet, or ErrNotFound once it expired.
func (r *RedisStore) LatestState(ctx context.Context, vehicleID string) (*domain.TelemetryRecord, error) {
	fields, err := r.client.HGetAll(ctx, stateKey(vehicleID)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis get state failed: %w", err)
	}
	if len(fields) == 0 {
		return nil, ErrNotFound
	}

	rec := &domain.TelemetryRecord{VehicleID: vehicleID, Data: domain.Metrics{}}
	for k, v := range fields {
		switch {
		case k == "timestamp":
			rec.Timestamp, _ = strconv.ParseInt(v, 10, 64)
		case k == "received_at":
			ms, _ := strconv.ParseInt(v, 10, 64)
			rec.ReceivedAt = time.UnixMilli(ms).UTC()
		case len(k) > 2 && k[:2] == "m:":
			if f, err := strconv.ParseFloat(v, 64); err == nil {
				rec.Data[k[2:]] = f
			}
		}
	}
	return rec, nil
}

func (r *RedisStore) GetAPIKey(ctx context.Context, apiKey string) (string, error) {
	val, err := r.client.Get(ctx, apiKeyKey(apiKey)).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("redis get api key failed: %w", err)
	}
	return val, nil
}

// SeedAPIKeys stores permanent api key → owner mappings.
func (r *RedisStore) SeedAPIKeys(ctx context.Context, keys map[string]string) error {
	pipe := r.client.Pipeline()
	for apiKey, owner := range keys {
		pipe.Set(ctx, apiKeyKey(apiKey), owner, 0)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("seed api keys: %w", err)
	}
	return nil
}

// AlertCreated implements alerting.Notifier by publishing on fleet:alerts.
func (r *RedisStore) AlertCreated(ctx context.Context, a *domain.Alert) {
	r.publishAlert(ctx, map[string]interface{}{
		"event":        "alert_created",
		"alert_id":     a.ID,
		"vehicle_id":   a.VehicleID,
		"alert_type":   a.Type,
		"severity":     string(a.Severity),
		"message":      a.Message,
		"triggered_at": a.CreatedAt.Unix(),
	})
}

// AlertResolved implements alerting.Notifier.
func (r *RedisStore) AlertResolved(ctx context.Context, vehicleID, alertType string) {
	r.publishAlert(ctx, map[string]interface{}{
		"event":       "alert_resolved",
		"vehicle_id":  vehicleID,
		"alert_type":  alertType,
		"resolved_at": time.Now().Unix(),
	})
}

func (r *RedisStore) publishAlert(ctx context.Context, payload map[string]interface{}) {
	raw, _ := json.Marshal(payload)
	if err := r.client.Publish(ctx, alertsChannel, raw).Err(); err != nil {
		r.logger.Warn("alert publish failed", "vehicle_id", payload["vehicle_id"], "err", err)
	}
}
