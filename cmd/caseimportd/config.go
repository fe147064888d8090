package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/ruslano69/caseimport/pkg/core/schema"
	"github.com/ruslano69/caseimport/pkg/deploy"
	"github.com/ruslano69/caseimport/pkg/sink"
	"github.com/ruslano69/caseimport/pkg/validation"
)

// DaemonConfig — конфигурация caseimportd
type DaemonConfig struct {
	Server     ServerSection       `yaml:"server"`
	Sink       sink.Config         `yaml:"sink"`
	Schema     []schema.Table      `yaml:"schema"`
	Validation validation.Settings `yaml:"validation"`
	Deploy     deploy.Settings     `yaml:"deploy"`
	LogLevel   string              `yaml:"log_level"`

	// UploadDir — каталог, из которого разрешено читать загружаемые файлы
	UploadDir string `yaml:"upload_dir"`
}

// ServerSection — параметры HTTP сервера
type ServerSection struct {
	Name string `yaml:"name"` // имя инстанса в статусе
	Port int    `yaml:"port"` // HTTP порт, по умолчанию 8080
}

// loadConfig читает и валидирует YAML конфиг
func loadConfig(path string) (*DaemonConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %q: %w", path, err)
	}

	var cfg DaemonConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if cfg.Sink.Type == "" {
		return nil, fmt.Errorf("sink: type is required")
	}
	if cfg.Sink.Type != "memory" && cfg.Sink.DSN == "" {
		return nil, fmt.Errorf("sink: dsn is required for type %q", cfg.Sink.Type)
	}
	if len(cfg.Schema) == 0 {
		return nil, fmt.Errorf("schema: at least one target table is required")
	}

	if cfg.Validation.BatchSize == 0 {
		cfg.Validation = validation.DefaultSettings()
	}
	if cfg.Deploy.BatchSize == 0 {
		cfg.Deploy = deploy.DefaultSettings()
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.Name == "" {
		cfg.Server.Name = "caseimportd"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.UploadDir == "" {
		cfg.UploadDir = "."
	}

	return &cfg, nil
}
