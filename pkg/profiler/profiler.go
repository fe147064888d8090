// Package profiler infers a semantic type, confidence and quality tier
// for every column of a loaded source. Profiling never fails a run:
// format problems are accumulated as counted issue strings.
package profiler

import (
	"fmt"

	"github.com/ruslano69/caseimport/pkg/core/schema"
	"github.com/ruslano69/caseimport/pkg/core/table"
)

const (
	// maxSamples — сколько значений сохраняется в профиле для оператора
	maxSamples = 8

	// detectLimit — сколько значений анализируют детекторы типов
	detectLimit = 100
)

// Profile — результат профилирования одной колонки.
// Создается профилировщиком, дальше только читается.
type Profile struct {
	Column       string
	Type         schema.FieldType
	Confidence   float64
	Patterns     []string
	Samples      []string
	NullCount    int
	Completeness float64
	Uniqueness   float64
	Issues       []string
	Quality      Tier
}

// Profiler выполняет анализ колонок источника
type Profiler struct {
	overrides []OverrideRule
}

// New создает профилировщик со стандартными override-правилами
func New() *Profiler {
	return &Profiler{overrides: DefaultOverrides()}
}

// NewWithOverrides создает профилировщик с заданным списком правил.
// Правила применяются в порядке списка, первое сработавшее побеждает.
func NewWithOverrides(overrides []OverrideRule) *Profiler {
	return &Profiler{overrides: overrides}
}

// Analyze строит профиль для каждой колонки источника.
// Результат детерминирован и не зависит от порядка колонок.
func (p *Profiler) Analyze(src *table.Source) []Profile {
	headers := src.Headers()
	profiles := make([]Profile, len(headers))
	for i, name := range headers {
		cells, _ := src.Column(name)
		profiles[i] = p.profileColumn(name, cells)
	}
	return profiles
}

// profileColumn анализирует одну колонку
func (p *Profiler) profileColumn(name string, cells []table.Cell) Profile {
	prof := Profile{Column: name}

	var nonNull []string
	distinct := make(map[string]bool)
	for _, c := range cells {
		if c.IsNull() {
			prof.NullCount++
			continue
		}
		v := trimmed(c.Raw)
		nonNull = append(nonNull, v)
		distinct[v] = true
	}

	total := len(cells)
	if total > 0 {
		prof.Completeness = float64(len(nonNull)) / float64(total)
	}
	if len(nonNull) > 0 {
		prof.Uniqueness = float64(len(distinct)) / float64(len(nonNull))
	}

	for _, v := range nonNull {
		if len(prof.Samples) >= maxSamples {
			break
		}
		prof.Samples = append(prof.Samples, v)
	}

	// Наивная классификация по выборке значений
	sample := nonNull
	if len(sample) > detectLimit {
		sample = sample[:detectLimit]
	}
	prof.Type, prof.Confidence, prof.Patterns = detectType(sample, len(distinct))

	// Override-правила имеют приоритет над детекторами:
	// наивные детекторы путают форматы (ZIP против телефона, код против даты)
	for _, rule := range p.overrides {
		if forced, ok := rule.Apply(name, sample); ok {
			if forced != prof.Type {
				prof.Patterns = append(prof.Patterns, "override:"+rule.Name)
			}
			prof.Type = forced
			prof.Confidence = formatValidRatio(forced, sample)
			break
		}
	}

	// Проверка формата по всем значениям: считаем нарушения, не падаем
	if invalid := countFormatViolations(prof.Type, nonNull); invalid > 0 {
		prof.Issues = append(prof.Issues,
			fmt.Sprintf("%d values fail %s format", invalid, prof.Type))
	}
	if prof.NullCount > 0 && prof.Completeness < 0.9 {
		prof.Issues = append(prof.Issues,
			fmt.Sprintf("%d empty values (%.0f%% complete)", prof.NullCount, prof.Completeness*100))
	}

	prof.Quality = qualityTier(len(prof.Issues), prof.Completeness, prof.Confidence)

	return prof
}

// formatValidRatio — доля значений, проходящих проверку формата типа
func formatValidRatio(t schema.FieldType, values []string) float64 {
	if len(values) == 0 {
		return 0
	}
	invalid := countFormatViolations(t, values)
	return float64(len(values)-invalid) / float64(len(values))
}
