// Package deploy фиксирует валидированные строки в приемнике данных.
//
// Координатор пишет батчами, опционально снимает снапшоты целевых таблиц
// и при сбое откатывает прогон целиком либо фиксирует частичный итог.
// Деплой никогда не теряет сбойный батч молча: все сбои перечислены
// в итоге прогона.
package deploy

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/ruslano69/caseimport/pkg/core/table"
	"github.com/ruslano69/caseimport/pkg/mapping"
	"github.com/ruslano69/caseimport/pkg/retry"
	"github.com/ruslano69/caseimport/pkg/sink"
	"github.com/ruslano69/caseimport/pkg/validation"
)

// ErrRunInProgress - попытка запустить второй деплой, пока первый не завершен
var ErrRunInProgress = errors.New("deployment run already in progress")

// AbortError - деплой отклонен до первой записи: не выполнены предусловия
type AbortError struct {
	Reasons []string
}

func (e *AbortError) Error() string {
	return "deployment aborted: " + strings.Join(e.Reasons, "; ")
}

// BatchFailure - сбой записи одного батча
type BatchFailure struct {
	Table  string
	Batch  int
	Rows   int
	Reason string
}

// Outcome - итог прогона деплоя.
// Прогон либо полностью зафиксирован, либо полностью откачен,
// либо итог перечисляет сбойные батчи (частичный успех).
type Outcome struct {
	Success           bool
	RunID             string
	RecordsDeployed   int
	DuplicatesSkipped int
	Failures          []BatchFailure
	RollbackTriggered bool
	Duration          time.Duration
	Notes             string
}

// Revalidator - необязательный хук перепроверки данных перед записью.
// Возвращенный отчет заменяет переданный в Deploy для гейтинга.
type Revalidator func(ctx context.Context) (*validation.Report, error)

// Coordinator выполняет прогоны деплоя.
// Одновременно допускается не более одного активного прогона.
type Coordinator struct {
	sink       sink.Sink
	retryer    *retry.Retryer
	log        zerolog.Logger
	revalidate Revalidator

	mu       sync.Mutex
	running  bool
	progress atomic.Int64
}

// NewCoordinator создает координатор деплоя поверх приемника
func NewCoordinator(s sink.Sink, retryCfg retry.Config, log zerolog.Logger) (*Coordinator, error) {
	r, err := retry.NewRetryer(retryCfg)
	if err != nil {
		return nil, err
	}
	return &Coordinator{sink: s, retryer: r, log: log}, nil
}

// SetRevalidator задает хук перепроверки (используется при settings.Revalidate)
func (c *Coordinator) SetRevalidator(fn Revalidator) {
	c.revalidate = fn
}

// Progress возвращает прогресс текущего прогона (0-100).
// Безопасно вызывать из другой горутины.
func (c *Coordinator) Progress() int {
	return int(c.progress.Load())
}

func (c *Coordinator) begin() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return ErrRunInProgress
	}
	c.running = true
	c.progress.Store(0)
	return nil
}

func (c *Coordinator) end() {
	c.mu.Lock()
	c.running = false
	c.mu.Unlock()
}

// tablePlan - план записи в одну целевую таблицу
type tablePlan struct {
	table   string
	columns []string
	srcCols []int
}

// Deploy записывает валидированные строки в приемник.
//
// Предусловия (проверяются до первой записи): отчет валидации без
// блокирующих ошибок, хотя бы одна привязанная колонка, все
// подтверждения оператора. Невыполненное предусловие возвращает
// *AbortError, запись не начинается.
func (c *Coordinator) Deploy(
	ctx context.Context,
	src *table.Source,
	mappings []mapping.FieldMapping,
	report *validation.Report,
	settings Settings,
	conf Confirmations,
) (*Outcome, error) {
	if err := c.begin(); err != nil {
		return nil, err
	}
	defer c.end()

	if err := settings.Validate(); err != nil {
		return nil, fmt.Errorf("invalid deployment settings: %w", err)
	}

	if settings.Revalidate && c.revalidate != nil {
		fresh, err := c.revalidate(ctx)
		if err != nil {
			return nil, fmt.Errorf("revalidation failed: %w", err)
		}
		report = fresh
	}

	if abort := checkPreconditions(mappings, report, conf); abort != nil {
		c.log.Warn().Strs("reasons", abort.Reasons).Msg("deployment aborted")
		return nil, abort
	}

	plans, err := buildPlans(src, mappings)
	if err != nil {
		return nil, err
	}

	runID := fmt.Sprintf("run-%d", time.Now().UnixNano())
	outcome := &Outcome{RunID: runID, Notes: settings.Notes}
	start := time.Now()

	rowIdx := report.KeptRows
	if rowIdx == nil {
		rowIdx = make([]int, src.TotalRows())
		for i := range rowIdx {
			rowIdx[i] = i
		}
	}

	if settings.CheckDuplicates {
		rowIdx, outcome.DuplicatesSkipped = dedupRows(src, report, plans, rowIdx)
	}

	c.log.Info().
		Str("run_id", runID).
		Int("rows", len(rowIdx)).
		Int("tables", len(plans)).
		Int("batch_size", settings.BatchSize).
		Msg("deployment started")

	// Подготовка таблиц: создание, снапшот, очистка при замене.
	// Снапшот обязателен для отката режима замены.
	snapshots := make(map[string]*sink.Snapshot)
	needBackup := settings.BackupBeforeWrite || (settings.ReplaceExisting && settings.RollbackOnError)
	for _, p := range plans {
		if err := c.sink.EnsureTable(ctx, p.table, p.columns); err != nil {
			c.rollback(ctx, plans, snapshots, runID)
			return nil, fmt.Errorf("failed to prepare table %s: %w", p.table, err)
		}
		if needBackup {
			snap, err := c.sink.Backup(ctx, p.table)
			if err != nil {
				c.rollback(ctx, plans, snapshots, runID)
				return nil, fmt.Errorf("failed to backup table %s: %w", p.table, err)
			}
			snapshots[p.table] = snap
		}
		if settings.ReplaceExisting {
			if err := c.sink.Truncate(ctx, p.table); err != nil {
				c.rollback(ctx, plans, snapshots, runID)
				return nil, fmt.Errorf("failed to truncate table %s: %w", p.table, err)
			}
		}
	}

	totalWrites := len(plans) * len(rowIdx)
	written := 0

	for _, p := range plans {
		for batchStart, batchNum := 0, 1; batchStart < len(rowIdx); batchStart, batchNum = batchStart+settings.BatchSize, batchNum+1 {
			// Отмена идет тем же путем отката, что и сбой батча
			if ctx.Err() != nil {
				if settings.RollbackOnError && written > 0 {
					c.rollback(ctx, plans, snapshots, runID)
					outcome.RollbackTriggered = true
					outcome.RecordsDeployed = 0
				}
				outcome.Duration = time.Since(start)
				return outcome, fmt.Errorf("deployment cancelled: %w", ctx.Err())
			}

			end := batchStart + settings.BatchSize
			if end > len(rowIdx) {
				end = len(rowIdx)
			}

			batch := sink.Batch{
				Table:   p.table,
				Columns: p.columns,
				Rows:    projectRows(src, report, p, rowIdx[batchStart:end]),
				RunID:   runID,
			}

			err := c.retryer.Do(ctx, func(ctx context.Context) error {
				return c.sink.WriteBatch(ctx, batch)
			})
			if err != nil {
				failure := BatchFailure{Table: p.table, Batch: batchNum, Rows: len(batch.Rows), Reason: err.Error()}
				outcome.Failures = append(outcome.Failures, failure)
				c.log.Error().
					Str("run_id", runID).
					Str("table", p.table).
					Int("batch", batchNum).
					Err(err).
					Msg("batch write failed")

				if settings.RollbackOnError {
					if rbErr := c.rollback(ctx, plans, snapshots, runID); rbErr != nil {
						outcome.Duration = time.Since(start)
						return outcome, fmt.Errorf("rollback failed after batch %d: %w", batchNum, rbErr)
					}
					outcome.RollbackTriggered = true
					outcome.RecordsDeployed = 0
					outcome.Duration = time.Since(start)
					return outcome, nil
				}
				// Откат отключен: сбой зафиксирован, продолжаем
				written += len(batch.Rows)
				continue
			}

			outcome.RecordsDeployed += len(batch.Rows)
			written += len(batch.Rows)
			if totalWrites > 0 {
				c.progress.Store(int64(written * 100 / totalWrites))
			}
		}
	}

	outcome.Success = len(outcome.Failures) == 0
	outcome.Duration = time.Since(start)
	c.progress.Store(100)

	c.log.Info().
		Str("run_id", runID).
		Bool("success", outcome.Success).
		Int("records", outcome.RecordsDeployed).
		Int("failures", len(outcome.Failures)).
		Dur("duration", outcome.Duration).
		Msg("deployment finished")

	return outcome, nil
}

// checkPreconditions проверяет предусловия деплоя
func checkPreconditions(mappings []mapping.FieldMapping, report *validation.Report, conf Confirmations) *AbortError {
	var reasons []string

	if report == nil {
		reasons = append(reasons, "source has not been validated")
	} else if n := report.BlockingErrors(); n > 0 {
		reasons = append(reasons, fmt.Sprintf("%d blocking validation errors", n))
	}

	mapped := 0
	for _, m := range mappings {
		if m.IsMapped() {
			mapped++
		}
	}
	if mapped == 0 {
		reasons = append(reasons, "no mapped fields")
	}

	if missing := conf.Missing(); len(missing) > 0 {
		reasons = append(reasons, "missing confirmations: "+strings.Join(missing, ", "))
	}

	if len(reasons) > 0 {
		return &AbortError{Reasons: reasons}
	}
	return nil
}

// buildPlans группирует привязанные колонки по целевым таблицам,
// сохраняя порядок первого появления
func buildPlans(src *table.Source, mappings []mapping.FieldMapping) ([]tablePlan, error) {
	var plans []tablePlan
	index := make(map[string]int)

	for _, m := range mappings {
		if !m.IsMapped() {
			continue
		}
		col, ok := src.ColumnIndex(m.SourceColumn)
		if !ok {
			return nil, fmt.Errorf("mapped column %q not found in source", m.SourceColumn)
		}
		i, ok := index[m.TargetTable]
		if !ok {
			i = len(plans)
			index[m.TargetTable] = i
			plans = append(plans, tablePlan{table: m.TargetTable})
		}
		plans[i].columns = append(plans[i].columns, m.TargetField)
		plans[i].srcCols = append(plans[i].srcCols, col)
	}

	if len(plans) == 0 {
		return nil, fmt.Errorf("no mapped fields to deploy")
	}
	return plans, nil
}

// rowValues возвращает значения строки с учетом склеенных дубликатов
func rowValues(src *table.Source, report *validation.Report, idx int) []string {
	if report != nil && report.MergedRows != nil {
		if merged, ok := report.MergedRows[idx]; ok {
			return merged
		}
	}
	return src.RawRow(idx)
}

// projectRows проецирует исходные строки на колонки плана
func projectRows(src *table.Source, report *validation.Report, p tablePlan, idx []int) [][]string {
	rows := make([][]string, 0, len(idx))
	for _, i := range idx {
		values := rowValues(src, report, i)
		row := make([]string, len(p.srcCols))
		for j, col := range p.srcCols {
			if col < len(values) {
				row[j] = values[col]
			}
		}
		rows = append(rows, row)
	}
	return rows
}

// dedupRows отбрасывает строки, идентичные по всем привязанным колонкам
// (первое вхождение остается)
func dedupRows(src *table.Source, report *validation.Report, plans []tablePlan, idx []int) ([]int, int) {
	seen := make(map[string]bool, len(idx))
	kept := make([]int, 0, len(idx))
	skipped := 0

	for _, i := range idx {
		values := rowValues(src, report, i)
		var sb strings.Builder
		for _, p := range plans {
			for _, col := range p.srcCols {
				if col < len(values) {
					sb.WriteString(values[col])
				}
				sb.WriteByte(0x1f)
			}
		}
		key := sb.String()
		if seen[key] {
			skipped++
			continue
		}
		seen[key] = true
		kept = append(kept, i)
	}
	return kept, skipped
}

// rollback откатывает прогон: таблицы со снапшотом восстанавливаются,
// остальные очищаются от строк прогона по run ID
func (c *Coordinator) rollback(ctx context.Context, plans []tablePlan, snapshots map[string]*sink.Snapshot, runID string) error {
	// Откат должен пройти и при отмененном контексте
	rbCtx := context.WithoutCancel(ctx)

	var firstErr error
	for _, p := range plans {
		var err error
		if snap, ok := snapshots[p.table]; ok {
			err = c.sink.Restore(rbCtx, snap)
		} else {
			err = c.sink.DeleteRows(rbCtx, p.table, runID)
		}
		if err != nil {
			c.log.Error().Str("table", p.table).Err(err).Msg("rollback failed for table")
			if firstErr == nil {
				firstErr = fmt.Errorf("rollback of table %s: %w", p.table, err)
			}
		}
	}
	return firstErr
}
