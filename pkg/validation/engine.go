// Package validation runs configurable per-field validation and duplicate
// detection over a loaded source. The engine reports incremental progress
// through a thread-safe counter and enforces at most one active run.
package validation

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/ruslano69/caseimport/pkg/core/table"
	"github.com/ruslano69/caseimport/pkg/mapping"
)

// ErrRunInProgress — второй запуск на том же движке отклоняется, не ставится в очередь
var ErrRunInProgress = errors.New("validation run already in progress")

// ctxCheckInterval — как часто проверять отмену внутри скана строк
const ctxCheckInterval = 1024

// Result — результат валидации одного привязанного поля
type Result struct {
	Field        string
	Errors       []string
	Warnings     []string
	Records      int
	ValidRecords int
}

// Report — полный результат запуска валидации.
// Всегда перечислим целиком: при срабатывании MaxErrors возвращаются
// уже посчитанные результаты с Cutoff=true, это не ошибка.
type Report struct {
	Results      []Result
	Duplicates   *DuplicateReport
	RowsExamined int
	Sampled      bool
	Cutoff       bool

	// KeptRows — строки, остающиеся в результате после политик
	// remove_row / skip / merge, в исходном порядке
	KeptRows []int

	// MergedRows — склеенные строки (действие merge): индекс первой
	// строки группы -> итоговые значения
	MergedRows map[int][]string
}

// Result возвращает результат по имени поля
func (r *Report) Result(field string) *Result {
	for i := range r.Results {
		if r.Results[i].Field == field {
			return &r.Results[i]
		}
	}
	return nil
}

// BlockingErrors — количество ошибок, блокирующих деплой
func (r *Report) BlockingErrors() int {
	n := 0
	for i := range r.Results {
		n += len(r.Results[i].Errors)
	}
	if r.Duplicates != nil {
		n += len(r.Duplicates.Errors)
	}
	return n
}

// boundColumn — привязанная колонка с индексом в источнике
type boundColumn struct {
	fm  *mapping.FieldMapping
	col int
}

// Engine выполняет запуски валидации.
// Прогресс (0-100) читается из другой горутины через Progress().
type Engine struct {
	mu       sync.Mutex
	running  bool
	progress atomic.Int64
}

// NewEngine создает движок валидации
func NewEngine() *Engine {
	return &Engine{}
}

// Progress возвращает текущий прогресс запуска (0-100).
// Безопасно для конкурентного чтения; 100 означает истинное завершение.
func (e *Engine) Progress() int {
	return int(e.progress.Load())
}

// begin захватывает флаг активного запуска
func (e *Engine) begin() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running {
		return ErrRunInProgress
	}
	e.running = true
	e.progress.Store(0)
	return nil
}

func (e *Engine) end() {
	e.mu.Lock()
	e.running = false
	e.mu.Unlock()
}

// Validate выполняет полный проход: нормализация и политика пропусков,
// типовые валидаторы по привязанным полям, поиск дубликатов.
// Порядок фаз фиксированный, прогресс: 0-20 / 20-70 / 70-100.
func (e *Engine) Validate(ctx context.Context, src *table.Source, mappings []mapping.FieldMapping, s Settings) (*Report, error) {
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("invalid validation settings: %w", err)
	}
	if err := e.begin(); err != nil {
		return nil, err
	}
	defer e.end()

	report := &Report{}

	// Привязанные колонки и их индексы в источнике
	var bound []boundColumn
	for i := range mappings {
		m := &mappings[i]
		if !m.IsMapped() {
			continue
		}
		col, ok := src.ColumnIndex(m.SourceColumn)
		if !ok {
			return nil, fmt.Errorf("mapped column %q not found in source", m.SourceColumn)
		}
		bound = append(bound, boundColumn{fm: m, col: col})
	}
	if len(bound) == 0 {
		return nil, fmt.Errorf("no mapped columns to validate")
	}

	report.Results = make([]Result, len(bound))
	for i, b := range bound {
		report.Results[i] = Result{Field: b.fm.TargetField}
	}

	totalErrors := 0
	maxErrors := s.MaxErrors
	addError := func(result *Result, msg string) bool {
		result.Errors = append(result.Errors, msg)
		totalErrors++
		if maxErrors > 0 && totalErrors >= maxErrors {
			report.Cutoff = true
			return false
		}
		return true
	}

	// Фаза 1: политика пропусков по всему набору строк.
	// MissingDefault подставляет значение через accessor, не меняя источник.
	removed := make(map[int]bool)
	cellValue := func(row, col int) string {
		v := src.Row(row)[col].Raw
		if src.Row(row)[col].IsNull() && s.MissingData == MissingDefault {
			return s.DefaultValue
		}
		return normalizeValue(s, v)
	}

	total := src.TotalRows()
missingScan:
	for row := 0; row < total; row++ {
		if row%ctxCheckInterval == 0 && ctx.Err() != nil {
			return nil, ctx.Err()
		}
		for i, b := range bound {
			if !src.Row(row)[b.col].IsNull() {
				continue
			}
			switch s.MissingData {
			case MissingError:
				if !addError(&report.Results[i], fmt.Sprintf("row %d: missing value", row+1)) {
					break missingScan
				}
			case MissingRemoveRow:
				removed[row] = true
			}
		}
	}
	e.progress.Store(20)

	// Эффективный набор строк: без удаленных, с опциональной выборкой
	var effective []int
	stride := 1
	if s.SampleValidation && s.SamplePercent < 100 {
		stride = 100 / s.SamplePercent
		report.Sampled = true
	}
	kept := 0
	for row := 0; row < total; row++ {
		if removed[row] {
			continue
		}
		if kept%stride == 0 {
			effective = append(effective, row)
		}
		kept++
	}
	report.RowsExamined = len(effective)

	// Фаза 2: типовые валидаторы по полям.
	// Выключенный валидатор не сканирует строки вовсе.
	if !report.Cutoff {
	fieldScan:
		for i, b := range bound {
			result := &report.Results[i]
			result.Records = len(effective)
			result.ValidRecords = len(effective)

			v := validatorFor(b.fm, s)
			strict := s.Strict && (b.fm.MaxLength > 0 || len(b.fm.EnumValues) > 0)
			if v == nil && !strict {
				e.progress.Store(int64(20 + 50*(i+1)/len(bound)))
				continue
			}

			for n, row := range effective {
				if n%ctxCheckInterval == 0 && ctx.Err() != nil {
					return nil, ctx.Err()
				}

				value := cellValue(row, b.col)
				if value == "" {
					continue // пропуски обработаны политикой выше
				}

				if v != nil && !v.check(value) {
					result.ValidRecords--
					if !addError(result, fmt.Sprintf("row %d: invalid %s: %q", row+1, v.name, value)) {
						break fieldScan
					}
					continue
				}

				if strict {
					if b.fm.MaxLength > 0 && len(value) > b.fm.MaxLength {
						result.ValidRecords--
						if !addError(result, fmt.Sprintf("row %d: value exceeds max length %d", row+1, b.fm.MaxLength)) {
							break fieldScan
						}
						continue
					}
					if len(b.fm.EnumValues) > 0 && !containsValue(b.fm.EnumValues, value) {
						result.ValidRecords--
						if !addError(result, fmt.Sprintf("row %d: %q is not an allowed value", row+1, value)) {
							break fieldScan
						}
					}
				}
			}

			e.progress.Store(int64(20 + 50*(i+1)/len(bound)))
		}
	}
	e.progress.Store(70)

	// Фаза 3: поиск дубликатов
	dropped := make(map[int]bool)
	if s.CheckDuplicates && !report.Cutoff {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		dup, err := e.detectDuplicates(src, s, bound, effective)
		if err != nil {
			return nil, err
		}
		report.Duplicates = dup

		switch dup.Action {
		case ActionSkip:
			for _, g := range dup.Groups {
				for _, r := range g.Rows[1:] {
					dropped[r] = true
				}
			}
		case ActionMerge:
			report.MergedRows = mergeGroups(src, dup.Groups)
			for _, g := range dup.Groups {
				for _, r := range g.Rows[1:] {
					dropped[r] = true
				}
			}
		case ActionError:
			for _, g := range dup.Groups {
				dup.Errors = append(dup.Errors, describeGroup(g))
				totalErrors++
				if maxErrors > 0 && totalErrors >= maxErrors {
					report.Cutoff = true
					break
				}
			}
		case ActionFlag:
			for _, g := range dup.Groups {
				dup.Warnings = append(dup.Warnings, describeGroup(g))
			}
			if len(dup.Groups) > 0 {
				warn := fmt.Sprintf("%d duplicate groups detected (%d extra rows)", len(dup.Groups), dup.DuplicateRows)
				for i := range report.Results {
					if containsValue(dup.Columns, bound[i].fm.SourceColumn) {
						report.Results[i].Warnings = append(report.Results[i].Warnings, warn)
					}
				}
			}
		}
	}

	// Итоговый набор строк
	for row := 0; row < total; row++ {
		if !removed[row] && !dropped[row] {
			report.KeptRows = append(report.KeptRows, row)
		}
	}

	e.progress.Store(100)
	return report, nil
}

// detectDuplicates выполняет поиск в настроенном режиме
func (e *Engine) detectDuplicates(src *table.Source, s Settings, bound []boundColumn, effective []int) (*DuplicateReport, error) {
	// Колонки поиска: настроенный список либо все привязанные
	columns := s.DuplicateColumns
	if len(columns) == 0 {
		for _, b := range bound {
			columns = append(columns, b.fm.SourceColumn)
		}
	}
	sort.Strings(columns)

	cols, err := columnIndices(src, columns)
	if err != nil {
		return nil, err
	}

	dup := &DuplicateReport{
		Mode:    s.DuplicateMode,
		Action:  s.DuplicateAction,
		Columns: columns,
	}

	switch s.DuplicateMode {
	case ModeExact:
		dup.Groups = detectExact(src, s, cols, effective)
	case ModeFuzzy:
		dup.Expensive = true
		dup.Groups = detectFuzzy(src, s, cols, effective)
	case ModeCustom:
		exactCols, err := columnIndices(src, s.ExactColumns)
		if err != nil {
			return nil, err
		}
		dup.Groups = detectCustom(src, s, exactCols, cols, effective)
	}

	for _, g := range dup.Groups {
		dup.DuplicateRows += len(g.Rows) - 1
	}
	return dup, nil
}

func columnIndices(src *table.Source, names []string) ([]int, error) {
	cols := make([]int, len(names))
	for i, name := range names {
		idx, ok := src.ColumnIndex(name)
		if !ok {
			return nil, fmt.Errorf("duplicate check column %q not found in source", name)
		}
		cols[i] = idx
	}
	return cols, nil
}

func containsValue(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
