// caseimport — импорт табличных выгрузок settlement cases в целевую БД.
//
// Команды:
//
//	caseimport -file cases.csv -profile              анализ колонок
//	caseimport -file cases.csv -validate             профиль + привязка + валидация
//	caseimport -file cases.csv -deploy -yes          полный прогон с деплоем
//	caseimport -file cases.csv -report report.csv    валидация + выгрузка отчета
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/ruslano69/caseimport/pkg/audit"
	"github.com/ruslano69/caseimport/pkg/core/schema"
	"github.com/ruslano69/caseimport/pkg/deploy"
	"github.com/ruslano69/caseimport/pkg/mapping"
	"github.com/ruslano69/caseimport/pkg/pipeline"
	"github.com/ruslano69/caseimport/pkg/profiler"
	"github.com/ruslano69/caseimport/pkg/progress"
	"github.com/ruslano69/caseimport/pkg/report"
	"github.com/ruslano69/caseimport/pkg/resultlog"
	"github.com/ruslano69/caseimport/pkg/sink"
	"github.com/ruslano69/caseimport/pkg/validation"

	// Регистрация приемников в фабрике
	_ "github.com/ruslano69/caseimport/pkg/sink/mssql"
	_ "github.com/ruslano69/caseimport/pkg/sink/mysql"
	_ "github.com/ruslano69/caseimport/pkg/sink/postgres"
	_ "github.com/ruslano69/caseimport/pkg/sink/sqlite"
)

const version = "1.2.0"

func main() {
	var (
		configPath  = flag.String("config", "", "path to YAML config (optional)")
		filePath    = flag.String("file", "", "input file (.csv or .xlsx)")
		doProfile   = flag.Bool("profile", false, "profile columns and exit")
		doValidate  = flag.Bool("validate", false, "profile, auto-map and validate")
		doDeploy    = flag.Bool("deploy", false, "full run including deployment")
		reportPath  = flag.String("report", "", "write run report to this CSV file")
		yes         = flag.Bool("yes", false, "confirm all deployment acknowledgements")
		showVersion = flag.Bool("version", false, "print version and exit")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("caseimport %s\n", version)
		return
	}
	if *filePath == "" {
		fmt.Fprintln(os.Stderr, "Usage: caseimport -file <cases.csv> [-config import.yaml] -profile|-validate|-deploy [-report out.csv] [-yes]")
		os.Exit(1)
	}

	var cfg *Config
	var err error
	if *configPath != "" {
		cfg, err = loadConfig(*configPath)
		if err != nil {
			fatal("Failed to load config: %v", err)
		}
	} else {
		cfg = defaultConfig()
	}

	log := newLogger(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log, *filePath, *doProfile, *doValidate, *doDeploy, *reportPath, *yes); err != nil {
		log.Error().Err(err).Msg("run failed")
		os.Exit(1)
	}
}

func newLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		Level(lvl).
		With().Timestamp().Logger()
}

func run(ctx context.Context, cfg *Config, log zerolog.Logger, filePath string, doProfile, doValidate, doDeploy bool, reportPath string, yes bool) error {
	registry, err := schema.NewRegistry(cfg.Schema...)
	if err != nil {
		return fmt.Errorf("invalid target schema: %w", err)
	}

	snk, err := sink.New(ctx, cfg.Sink)
	if err != nil {
		return err
	}
	defer snk.Close(ctx)

	p, err := pipeline.New(registry, snk, log)
	if err != nil {
		return err
	}

	if cfg.Audit.FilePath != "" {
		fa, err := audit.NewFileAppender(cfg.Audit)
		if err != nil {
			return fmt.Errorf("failed to open audit log: %w", err)
		}
		auditLog := audit.NewLogger(fa)
		defer auditLog.Close()
		p.SetAuditLogger(auditLog)
	}

	started := time.Now()
	if err := p.Upload(filePath); err != nil {
		return err
	}

	profiles, err := p.Profile()
	if err != nil {
		return err
	}

	if doProfile && !doValidate && !doDeploy && reportPath == "" {
		printProfiles(profiles)
		return nil
	}

	mappings, err := p.AutoMap()
	if err != nil {
		return err
	}
	printMappings(mappings)

	// Прогресс валидации: опрос раз в секунду, сглаженный вывод
	estimate := progress.Estimate(p.Source().TotalRows(), cfg.Validation)
	fmt.Printf("Estimated validation time: %s\n", estimate.Round(time.Second))

	poller := progress.NewPoller(time.Second, p.Progress, func(pct float64) {
		fmt.Printf("\rValidating... %.0f%%", pct)
	})
	poller.Start(ctx, estimate)

	vr, err := p.Validate(ctx, cfg.Validation)
	poller.Stop()
	fmt.Println()
	if err != nil {
		return err
	}
	printValidation(vr)

	if reportPath != "" {
		if err := report.WriteFile(reportPath, p.Source(), p.Mappings(), vr); err != nil {
			return err
		}
		fmt.Printf("Report written to %s\n", reportPath)
	}

	if !doDeploy {
		return nil
	}

	if !yes {
		return fmt.Errorf("deployment requires explicit confirmation: pass -yes after reviewing the validation summary")
	}
	conf := deploy.Confirmations{
		DataReviewed:       true,
		MappingsVerified:   true,
		SettingsConfirmed:  true,
		ImpactAcknowledged: true,
	}

	outcome, err := p.Deploy(ctx, cfg.Deploy, conf)

	if cfg.ResultLog != nil {
		publisher := resultlog.NewRedisPublisher(*cfg.ResultLog)
		defer publisher.Close()

		result := resultlog.ImportResult{
			FileName:   filePath,
			Stage:      string(p.Stage()),
			StartedAt:  started,
			FinishedAt: time.Now(),
		}
		if vr != nil {
			result.RowsValidated = vr.RowsExamined
		}
		if outcome != nil {
			result.RunID = outcome.RunID
			result.RowsDeployed = outcome.RecordsDeployed
		}
		if pubErr := publisher.Publish(ctx, result, err); pubErr != nil {
			log.Warn().Err(pubErr).Msg("failed to publish run result")
		}
	}

	if err != nil {
		return err
	}
	printOutcome(outcome)
	if !outcome.Success {
		return fmt.Errorf("deployment finished with %d failed batches", len(outcome.Failures))
	}
	return nil
}

func printProfiles(profiles []profiler.Profile) {
	fmt.Printf("%-20s %-14s %-6s %-12s %-10s\n", "COLUMN", "TYPE", "CONF", "COMPLETE", "QUALITY")
	for _, prof := range profiles {
		fmt.Printf("%-20s %-14s %-6.2f %-12.2f %-10s\n",
			prof.Column, prof.Type, prof.Confidence, prof.Completeness, prof.Quality)
		for _, issue := range prof.Issues {
			fmt.Printf("    issue: %s\n", issue)
		}
	}
}

func printMappings(mappings []mapping.FieldMapping) {
	fmt.Printf("%-20s %-22s %-18s %s\n", "SOURCE COLUMN", "TARGET TABLE", "TARGET FIELD", "CONF")
	for _, m := range mappings {
		if m.IsMapped() {
			fmt.Printf("%-20s %-22s %-18s %.2f\n", m.SourceColumn, m.TargetTable, m.TargetField, m.Confidence)
		} else {
			fmt.Printf("%-20s %-22s %-18s\n", m.SourceColumn, "(unmapped)", "")
		}
	}
}

func printValidation(vr *validation.Report) {
	fmt.Printf("Rows examined: %d", vr.RowsExamined)
	if vr.Sampled {
		fmt.Print(" (sampled)")
	}
	if vr.Cutoff {
		fmt.Print(" (stopped at error cutoff)")
	}
	fmt.Println()
	for _, r := range vr.Results {
		fmt.Printf("  %-20s records=%d valid=%d errors=%d warnings=%d\n",
			r.Field, r.Records, r.ValidRecords, len(r.Errors), len(r.Warnings))
		for _, e := range r.Errors {
			fmt.Printf("      error: %s\n", e)
		}
		for _, w := range r.Warnings {
			fmt.Printf("      warning: %s\n", w)
		}
	}
	if vr.Duplicates != nil && len(vr.Duplicates.Groups) > 0 {
		fmt.Printf("Duplicates: %d groups (%s mode, action=%s)\n",
			len(vr.Duplicates.Groups), vr.Duplicates.Mode, vr.Duplicates.Action)
	}
}

func printOutcome(o *deploy.Outcome) {
	status := "SUCCESS"
	if !o.Success {
		status = "FAILED"
		if o.RollbackTriggered {
			status = "ROLLED BACK"
		}
	}
	fmt.Printf("Deployment %s: %d records in %s (run %s)\n",
		status, o.RecordsDeployed, o.Duration.Round(time.Millisecond), o.RunID)
	for _, f := range o.Failures {
		fmt.Printf("  failed batch %d on %s (%d rows): %s\n", f.Batch, f.Table, f.Rows, f.Reason)
	}
}

func fatal(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
