package retry

import (
	"fmt"
	"time"
)

// BackoffStrategy определяет стратегию задержки между повторами
type BackoffStrategy string

const (
	BackoffConstant    BackoffStrategy = "constant"
	BackoffLinear      BackoffStrategy = "linear"
	BackoffExponential BackoffStrategy = "exponential"
)

// Config — конфигурация повторов записи батча.
// Повторяются только транзиентные сбои соединения с приемником;
// окончательный отказ батча фиксируется в итоге деплоя.
type Config struct {
	// Enabled включает механизм повторов
	Enabled bool `yaml:"enabled"`

	// MaxAttempts — максимум попыток, включая первую (0 = без лимита)
	MaxAttempts int `yaml:"max_attempts"`

	// InitialDelay — задержка перед первым повтором
	InitialDelay time.Duration `yaml:"initial_delay"`

	// MaxDelay — потолок задержки
	MaxDelay time.Duration `yaml:"max_delay"`

	BackoffStrategy   BackoffStrategy `yaml:"backoff_strategy"`
	BackoffMultiplier float64         `yaml:"backoff_multiplier"`

	// Jitter (0.0-1.0) размывает задержку, чтобы повторные батчи
	// не били в приемник синхронно
	Jitter float64 `yaml:"jitter"`

	// RetryableErrors — подстроки ошибок, подлежащих повтору
	// (пусто = повторять любые ошибки)
	RetryableErrors []string `yaml:"retryable_errors"`

	// OnRetry вызывается перед каждым повтором
	OnRetry func(attempt int, err error, delay time.Duration) `yaml:"-"`
}

// DefaultConfig — консервативные значения для записи батчей
func DefaultConfig() Config {
	return Config{
		Enabled:           true,
		MaxAttempts:       3,
		InitialDelay:      500 * time.Millisecond,
		MaxDelay:          10 * time.Second,
		BackoffStrategy:   BackoffExponential,
		BackoffMultiplier: 2.0,
		Jitter:            0.2,
	}
}

// Validate проверяет корректность конфигурации
func (c *Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.MaxAttempts < 0 {
		return fmt.Errorf("max attempts cannot be negative")
	}
	if c.InitialDelay < 0 {
		return fmt.Errorf("initial delay cannot be negative")
	}
	if c.MaxDelay > 0 && c.MaxDelay < c.InitialDelay {
		return fmt.Errorf("max delay %v is less than initial delay %v", c.MaxDelay, c.InitialDelay)
	}
	if c.BackoffStrategy == "" {
		c.BackoffStrategy = BackoffExponential
	}
	switch c.BackoffStrategy {
	case BackoffConstant, BackoffLinear, BackoffExponential:
	default:
		return fmt.Errorf("unknown backoff strategy: %q", c.BackoffStrategy)
	}
	if c.BackoffStrategy == BackoffExponential && c.BackoffMultiplier <= 1 {
		c.BackoffMultiplier = 2.0
	}
	if c.Jitter < 0 || c.Jitter > 1 {
		return fmt.Errorf("jitter must be in 0.0..1.0, got %g", c.Jitter)
	}
	return nil
}
