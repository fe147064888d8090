// Package pipeline связывает этапы импорта в единый прогон.
//
// Прогон движется по линейной последовательности стадий
// upload → staging → mapping → validation → review → deploy.
// Переходы охраняются: нельзя войти в validation без привязок,
// навигация заблокирована пока идет валидация или деплой.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ruslano69/caseimport/pkg/audit"
	"github.com/ruslano69/caseimport/pkg/core/schema"
	"github.com/ruslano69/caseimport/pkg/core/table"
	"github.com/ruslano69/caseimport/pkg/deploy"
	"github.com/ruslano69/caseimport/pkg/ingest"
	"github.com/ruslano69/caseimport/pkg/mapping"
	"github.com/ruslano69/caseimport/pkg/profiler"
	"github.com/ruslano69/caseimport/pkg/progress"
	"github.com/ruslano69/caseimport/pkg/retry"
	"github.com/ruslano69/caseimport/pkg/sink"
	"github.com/ruslano69/caseimport/pkg/validation"
)

// Stage - именованная стадия прогона импорта
type Stage string

const (
	StageUpload     Stage = "upload"
	StageStaging    Stage = "staging"
	StageMapping    Stage = "mapping"
	StageValidation Stage = "validation"
	StageReview     Stage = "review"
	StageDeploy     Stage = "deploy"
)

// stageOrder - линейный порядок стадий
var stageOrder = []Stage{StageUpload, StageStaging, StageMapping, StageValidation, StageReview, StageDeploy}

// ErrBusy - навигация и запуски заблокированы: идет валидация или деплой
var ErrBusy = errors.New("pipeline is busy: a run is in progress")

// TransitionError - переход между стадиями отклонен охраной
type TransitionError struct {
	From   Stage
	To     Stage
	Reason string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot move from %s to %s: %s", e.From, e.To, e.Reason)
}

// Pipeline - один прогон импорта. Не предназначен для переиспользования:
// после деплоя прогон завершен, новый импорт начинается с нового Pipeline.
type Pipeline struct {
	log      zerolog.Logger
	registry *schema.Registry
	resolver *mapping.Resolver
	profiler *profiler.Profiler
	engine   *validation.Engine
	coord    *deploy.Coordinator
	audit    *audit.Logger

	mu    sync.Mutex
	stage Stage
	busy  bool

	src      *table.Source
	profiles []profiler.Profile
	mappings []mapping.FieldMapping
	report   *validation.Report
	outcome  *deploy.Outcome
	estimate time.Duration
}

// New создает прогон импорта поверх схемы и приемника
func New(registry *schema.Registry, snk sink.Sink, log zerolog.Logger) (*Pipeline, error) {
	coord, err := deploy.NewCoordinator(snk, retry.DefaultConfig(), log)
	if err != nil {
		return nil, err
	}
	return &Pipeline{
		log:      log,
		registry: registry,
		resolver: mapping.NewResolver(registry),
		profiler: profiler.NewWithOverrides(profiler.DefaultOverrides()),
		engine:   validation.NewEngine(),
		coord:    coord,
		stage:    StageUpload,
	}, nil
}

// SetAuditLogger подключает журнал операций (опционально)
func (p *Pipeline) SetAuditLogger(l *audit.Logger) {
	p.audit = l
}

// Stage возвращает текущую стадию
func (p *Pipeline) Stage() Stage {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stage
}

// Next переходит на следующую стадию, если охрана пропускает
func (p *Pipeline) Next() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.busy {
		return ErrBusy
	}

	i := stageIndex(p.stage)
	if i < 0 || i == len(stageOrder)-1 {
		return &TransitionError{From: p.stage, To: p.stage, Reason: "already at the last stage"}
	}
	next := stageOrder[i+1]
	if reason := p.guard(next); reason != "" {
		return &TransitionError{From: p.stage, To: next, Reason: reason}
	}
	p.stage = next
	return nil
}

// Back возвращается на предыдущую стадию
func (p *Pipeline) Back() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.busy {
		return ErrBusy
	}

	i := stageIndex(p.stage)
	if i <= 0 {
		return &TransitionError{From: p.stage, To: p.stage, Reason: "already at the first stage"}
	}
	p.stage = stageOrder[i-1]
	return nil
}

// guard возвращает причину запрета входа на стадию (пусто = можно)
func (p *Pipeline) guard(to Stage) string {
	switch to {
	case StageStaging:
		if p.src == nil {
			return "no file uploaded"
		}
	case StageMapping:
		if len(p.profiles) == 0 {
			return "columns have not been profiled"
		}
	case StageValidation:
		if mapping.MappedCount(p.mappings) == 0 {
			return "no columns are mapped"
		}
	case StageReview:
		if p.report == nil {
			return "validation has not been run"
		}
	case StageDeploy:
		if p.report == nil {
			return "validation has not been run"
		}
	}
	return ""
}

func stageIndex(s Stage) int {
	for i, st := range stageOrder {
		if st == s {
			return i
		}
	}
	return -1
}

func (p *Pipeline) beginRun() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.busy {
		return ErrBusy
	}
	p.busy = true
	return nil
}

func (p *Pipeline) endRun() {
	p.mu.Lock()
	p.busy = false
	p.mu.Unlock()
}

// Upload загружает файл и создает источник прогона
func (p *Pipeline) Upload(path string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.busy {
		return ErrBusy
	}

	src, err := ingest.FromFile(path)
	if err != nil {
		if p.audit != nil {
			entry := audit.NewEntry(audit.OpUpload, audit.StatusFailure).
				WithError(err).
				WithFileName(path)
			p.audit.Log(context.Background(), entry)
		}
		return err
	}

	p.src = src
	p.profiles = nil
	p.mappings = nil
	p.report = nil
	p.stage = StageStaging

	p.log.Info().Str("file", src.Meta().FileName).Int("rows", src.TotalRows()).Msg("file uploaded")
	if p.audit != nil {
		entry := audit.NewEntry(audit.OpUpload, audit.StatusSuccess).
			WithFileName(src.Meta().FileName).
			WithRecordsAffected(int64(src.TotalRows()))
		p.audit.Log(context.Background(), entry)
	}
	return nil
}

// Profile анализирует колонки источника
func (p *Pipeline) Profile() ([]profiler.Profile, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.busy {
		return nil, ErrBusy
	}
	if p.src == nil {
		return nil, fmt.Errorf("no source uploaded")
	}

	p.profiles = p.profiler.Analyze(p.src)
	p.stage = StageMapping
	return p.profiles, nil
}

// AutoMap строит привязки колонок по профилям
func (p *Pipeline) AutoMap() ([]mapping.FieldMapping, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.busy {
		return nil, ErrBusy
	}
	if len(p.profiles) == 0 {
		return nil, fmt.Errorf("columns have not been profiled")
	}

	p.mappings = p.resolver.AutoMap(p.profiles)
	return p.mappings, nil
}

// UpdateMapping изменяет одну привязку (действие оператора)
func (p *Pipeline) UpdateMapping(sourceColumn, targetTable, targetField string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.busy {
		return ErrBusy
	}
	return p.resolver.Update(p.mappings, sourceColumn, targetTable, targetField)
}

// Mappings возвращает текущие привязки
func (p *Pipeline) Mappings() []mapping.FieldMapping {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.mappings
}

// Validate запускает валидацию. Блокирует навигацию на время прогона;
// прогресс движка доступен через Progress().
func (p *Pipeline) Validate(ctx context.Context, settings validation.Settings) (*validation.Report, error) {
	if err := p.beginRun(); err != nil {
		return nil, err
	}
	defer p.endRun()

	p.mu.Lock()
	src := p.src
	mappings := p.mappings
	p.mu.Unlock()

	if src == nil {
		return nil, fmt.Errorf("no source uploaded")
	}
	if mapping.MappedCount(mappings) == 0 {
		return nil, fmt.Errorf("no columns are mapped")
	}

	estimate := progress.Estimate(src.TotalRows(), settings)
	start := time.Now()

	report, err := p.engine.Validate(ctx, src, mappings, settings)
	if err != nil {
		if p.audit != nil {
			p.audit.LogFailure(context.Background(), audit.OpValidate, err)
		}
		return nil, err
	}

	p.mu.Lock()
	p.report = report
	p.estimate = estimate
	p.stage = StageReview
	p.mu.Unlock()

	p.log.Info().
		Int("rows", report.RowsExamined).
		Int("blocking_errors", report.BlockingErrors()).
		Bool("cutoff", report.Cutoff).
		Dur("elapsed", time.Since(start)).
		Msg("validation finished")
	if p.audit != nil {
		entry := audit.NewEntry(audit.OpValidate, audit.StatusSuccess).
			WithRecordsAffected(int64(report.RowsExamined)).
			WithDuration(time.Since(start))
		p.audit.Log(context.Background(), entry)
	}
	return report, nil
}

// Deploy фиксирует валидированные строки в приемнике
func (p *Pipeline) Deploy(ctx context.Context, settings deploy.Settings, conf deploy.Confirmations) (*deploy.Outcome, error) {
	if err := p.beginRun(); err != nil {
		return nil, err
	}
	defer p.endRun()

	p.mu.Lock()
	src := p.src
	mappings := p.mappings
	report := p.report
	p.mu.Unlock()

	if src == nil {
		return nil, fmt.Errorf("no source uploaded")
	}

	outcome, err := p.coord.Deploy(ctx, src, mappings, report, settings, conf)
	if err != nil {
		if p.audit != nil {
			p.audit.LogFailure(context.Background(), audit.OpDeploy, err)
		}
		return nil, err
	}

	p.mu.Lock()
	p.outcome = outcome
	p.stage = StageDeploy
	p.mu.Unlock()

	if p.audit != nil {
		status := audit.StatusSuccess
		if !outcome.Success {
			status = audit.StatusPartial
			if outcome.RollbackTriggered {
				status = audit.StatusFailure
			}
		}
		entry := audit.NewEntry(audit.OpDeploy, status).
			WithRunID(outcome.RunID).
			WithRecordsAffected(int64(outcome.RecordsDeployed)).
			WithDuration(outcome.Duration)
		p.audit.Log(context.Background(), entry)
	}
	return outcome, nil
}

// Progress возвращает прогресс активного прогона (0-100):
// валидация на стадиях до review, деплой после
func (p *Pipeline) Progress() int {
	p.mu.Lock()
	stage := p.stage
	p.mu.Unlock()

	if stage == StageReview || stage == StageDeploy {
		if v := p.coord.Progress(); v > 0 {
			return v
		}
	}
	return p.engine.Progress()
}

// Estimate возвращает оценку длительности последней валидации
func (p *Pipeline) Estimate() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.estimate
}

// Source возвращает загруженный источник (nil до upload)
func (p *Pipeline) Source() *table.Source {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.src
}

// Report возвращает отчет последней валидации (nil до первого прогона)
func (p *Pipeline) Report() *validation.Report {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.report
}

// Outcome возвращает итог деплоя (nil до деплоя)
func (p *Pipeline) Outcome() *deploy.Outcome {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.outcome
}

// Profiles возвращает профили колонок
func (p *Pipeline) Profiles() []profiler.Profile {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.profiles
}
