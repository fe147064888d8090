package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/ruslano69/caseimport/pkg/audit"
	"github.com/ruslano69/caseimport/pkg/core/schema"
	"github.com/ruslano69/caseimport/pkg/deploy"
	"github.com/ruslano69/caseimport/pkg/resultlog"
	"github.com/ruslano69/caseimport/pkg/retry"
	"github.com/ruslano69/caseimport/pkg/sink"
	"github.com/ruslano69/caseimport/pkg/validation"
)

// Config — конфигурация caseimport
type Config struct {
	// Sink — приемник данных деплоя
	Sink sink.Config `yaml:"sink"`

	// Schema — целевая схема; пусто = встроенная схема settlement cases
	Schema []schema.Table `yaml:"schema"`

	// Validation — настройки валидации
	Validation validation.Settings `yaml:"validation"`

	// Deploy — настройки деплоя
	Deploy deploy.Settings `yaml:"deploy"`

	// Retry — повторы записи батчей
	Retry retry.Config `yaml:"retry"`

	// Audit — журнал операций (пустой file_path = отключен)
	Audit audit.FileAppenderConfig `yaml:"audit"`

	// ResultLog — публикация итогов прогонов в Redis (nil = отключена)
	ResultLog *resultlog.Config `yaml:"result_log"`

	// LogLevel — уровень логирования zerolog: debug, info, warn, error
	LogLevel string `yaml:"log_level"`
}

// loadConfig читает и валидирует YAML конфиг
func loadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %q: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	applyDefaults(&cfg)

	if cfg.Sink.Type == "" {
		return nil, fmt.Errorf("sink: type is required")
	}
	if cfg.Sink.Type != "memory" && cfg.Sink.DSN == "" {
		return nil, fmt.Errorf("sink: dsn is required for type %q", cfg.Sink.Type)
	}
	if err := cfg.Validation.Validate(); err != nil {
		return nil, fmt.Errorf("validation settings: %w", err)
	}
	if err := cfg.Deploy.Validate(); err != nil {
		return nil, fmt.Errorf("deploy settings: %w", err)
	}
	if err := cfg.Retry.Validate(); err != nil {
		return nil, fmt.Errorf("retry settings: %w", err)
	}
	if cfg.ResultLog != nil && cfg.ResultLog.Address == "" {
		return nil, fmt.Errorf("result_log: address is required")
	}

	return &cfg, nil
}

// defaultConfig — конфигурация без файла: SQLite приемник, встроенная схема
func defaultConfig() *Config {
	cfg := &Config{
		Sink: sink.Config{Type: "sqlite", DSN: "file:caseimport.db"},
	}
	applyDefaults(cfg)
	return cfg
}

func applyDefaults(cfg *Config) {
	if cfg.Validation.BatchSize == 0 {
		cfg.Validation = validation.DefaultSettings()
	}
	if cfg.Deploy.BatchSize == 0 {
		cfg.Deploy = deploy.DefaultSettings()
	}
	if cfg.Retry.MaxAttempts == 0 && !cfg.Retry.Enabled {
		cfg.Retry = retry.DefaultConfig()
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if len(cfg.Schema) == 0 {
		cfg.Schema = defaultSchema()
	}
	if cfg.ResultLog != nil && cfg.ResultLog.TTL == 0 {
		cfg.ResultLog.TTL = 3600
	}
}

// defaultSchema — встроенная схема settlement cases.
// Используется когда конфиг не задает собственную целевую схему.
func defaultSchema() []schema.Table {
	return []schema.Table{
		{
			Name: "settlement_cases",
			Fields: []schema.Field{
				{Name: "case_number", Type: schema.TypeReferenceID, Required: true, MaxLength: 50},
				{Name: "claimant_name", Type: schema.TypeText, Required: true, MaxLength: 200},
				{Name: "email", Type: schema.TypeEmail, MaxLength: 254},
				{Name: "phone", Type: schema.TypePhone, MaxLength: 20},
				{Name: "address", Type: schema.TypeText, MaxLength: 500},
				{Name: "postal_code", Type: schema.TypePostalCode, MaxLength: 10},
				{Name: "settlement_amount", Type: schema.TypeDecimal},
				{Name: "filed_date", Type: schema.TypeDate},
				{Name: "status", Type: schema.TypeEnum, EnumValues: []string{"open", "pending", "settled", "closed"}},
				{Name: "ssn", Type: schema.TypeText, MaxLength: 11},
			},
		},
	}
}
