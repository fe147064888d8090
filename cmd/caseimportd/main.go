// caseimportd — HTTP сервис импорта settlement cases.
//
// Оркестратор создает прогон, двигает его по стадиям и опрашивает
// прогресс; метрики отдаются в формате Prometheus на /metrics.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"

	// Регистрация приемников в фабрике
	_ "github.com/ruslano69/caseimport/pkg/sink/mssql"
	_ "github.com/ruslano69/caseimport/pkg/sink/mysql"
	_ "github.com/ruslano69/caseimport/pkg/sink/postgres"
	_ "github.com/ruslano69/caseimport/pkg/sink/sqlite"
)

func main() {
	configFile := flag.String("config", "", "path to server config YAML (required)")
	port := flag.Int("port", 0, "HTTP port, overrides config value")
	flag.Parse()

	if *configFile == "" {
		fmt.Fprintln(os.Stderr, "Usage: caseimportd --config <name>.yaml [--port 8080]")
		os.Exit(1)
	}

	cfg, err := loadConfig(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	if *port > 0 {
		cfg.Server.Port = *port
	}

	lvl, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		Level(lvl).
		With().Timestamp().Str("service", cfg.Server.Name).Logger()

	if err := runServer(cfg, log); err != nil {
		log.Fatal().Err(err).Msg("server error")
	}
}
