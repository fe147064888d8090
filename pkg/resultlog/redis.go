package resultlog

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Config - настройки публикации результатов прогонов в Redis
type Config struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`

	// TTL ключа состояния в секундах
	TTL int `yaml:"ttl"`
}

// ImportResult представляет итог прогона импорта, публикуемый в Redis
// после завершения (успешного или с ошибкой).
//
// Redis-ключи:
//
//	SET  caseimport:run:<id>:state  <JSON>  EX <ttl>  — для GET-запросов оркестратора
//	PUB  caseimport:run:<id>                          — для event-driven маршрутизации
type ImportResult struct {
	RunID         string    `json:"run_id"`
	FileName      string    `json:"file_name"`
	Stage         string    `json:"stage"`  // стадия, на которой прогон завершился
	Status        string    `json:"status"` // "success" | "failed"
	StartedAt     time.Time `json:"started_at"`
	FinishedAt    time.Time `json:"finished_at"`
	DurationMs    int64     `json:"duration_ms"`
	RowsValidated int       `json:"rows_validated"`
	RowsDeployed  int       `json:"rows_deployed"`
	Error         *string   `json:"error,omitempty"`
}

// RedisPublisher публикует итоги прогонов импорта в Redis
type RedisPublisher struct {
	client *redis.Client
	config Config
}

// NewRedisPublisher создает publisher на основе конфигурации
func NewRedisPublisher(config Config) *RedisPublisher {
	client := redis.NewClient(&redis.Options{
		Addr:     config.Address,
		Password: config.Password,
		DB:       config.DB,
	})
	return &RedisPublisher{client: client, config: config}
}

// Publish публикует итог прогона:
//   - SET caseimport:run:<id>:state <JSON> EX <ttl>  → для опроса (polling)
//   - PUBLISH caseimport:run:<id> <JSON>             → для подписки (pub/sub)
//
// Вызывается независимо от результата (success или failed).
// execErr == nil означает успешное завершение.
func (p *RedisPublisher) Publish(ctx context.Context, result ImportResult, execErr error) error {
	if execErr != nil {
		result.Status = "failed"
		errStr := execErr.Error()
		result.Error = &errStr
	} else {
		result.Status = "success"
	}
	result.DurationMs = result.FinishedAt.Sub(result.StartedAt).Milliseconds()

	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}

	stateKey := fmt.Sprintf("caseimport:run:%s:state", result.RunID)
	eventChannel := fmt.Sprintf("caseimport:run:%s", result.RunID)
	ttl := time.Duration(p.config.TTL) * time.Second

	// SET ключ с TTL — оркестратор может GET для получения последнего состояния
	if err := p.client.Set(ctx, stateKey, payload, ttl).Err(); err != nil {
		return fmt.Errorf("redis SET failed: %w", err)
	}

	// PUBLISH событие — оркестратор может SUBSCRIBE для event-driven маршрутизации
	if err := p.client.Publish(ctx, eventChannel, payload).Err(); err != nil {
		return fmt.Errorf("redis PUBLISH failed: %w", err)
	}

	return nil
}

// Close закрывает соединение с Redis
func (p *RedisPublisher) Close() error {
	return p.client.Close()
}
