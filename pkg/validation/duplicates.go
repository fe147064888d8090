package validation

import (
	"fmt"
	"strings"

	"github.com/zeebo/xxh3"

	"github.com/ruslano69/caseimport/pkg/core/table"
)

// keySeparator не встречается в пользовательских данных
const keySeparator = "\x1f"

// DuplicateGroup — одна группа строк, признанных дубликатами.
// Rows содержит индексы строк источника в порядке появления.
type DuplicateGroup struct {
	Key  string
	Rows []int
}

// DuplicateReport — итог поиска дубликатов одного запуска
type DuplicateReport struct {
	Mode          DuplicateMode
	Action        DuplicateAction
	Columns       []string
	Groups        []DuplicateGroup
	DuplicateRows int  // строки сверх первой в каждой группе
	Expensive     bool // fuzzy-путь, квадратичная стоимость
	Warnings      []string
	Errors        []string
}

// detectExact группирует строки по хеш-ключу нормализованных значений.
// Один проход + hash map, стоимость почти линейная. Детерминирован:
// повторный запуск на тех же данных дает те же группы.
func detectExact(src *table.Source, s Settings, cols []int, rows []int) []DuplicateGroup {
	groups := make(map[uint64][]int)
	var order []uint64
	keys := make(map[uint64]string)

	for _, r := range rows {
		joined := joinNormalized(src, s, cols, r)
		h := xxh3.HashString(joined)
		if _, seen := groups[h]; !seen {
			order = append(order, h)
			keys[h] = joined
		}
		groups[h] = append(groups[h], r)
	}

	var result []DuplicateGroup
	for _, h := range order {
		if len(groups[h]) > 1 {
			result = append(result, DuplicateGroup{Key: keys[h], Rows: groups[h]})
		}
	}
	return result
}

// detectFuzzy группирует строки по похожести значений выше порога.
// Попарное сравнение с представителем группы — в худшем случае квадратично;
// вызывающая сторона получает Expensive=true в отчете.
func detectFuzzy(src *table.Source, s Settings, cols []int, rows []int) []DuplicateGroup {
	type bucket struct {
		rep  string
		rows []int
	}
	var buckets []*bucket

	for _, r := range rows {
		joined := joinNormalized(src, s, cols, r)

		matched := false
		for _, b := range buckets {
			if similarityPercent(joined, b.rep) >= s.FuzzyThreshold {
				b.rows = append(b.rows, r)
				matched = true
				break
			}
		}
		if !matched {
			buckets = append(buckets, &bucket{rep: joined, rows: []int{r}})
		}
	}

	var result []DuplicateGroup
	for _, b := range buckets {
		if len(b.rows) > 1 {
			result = append(result, DuplicateGroup{Key: b.rep, Rows: b.rows})
		}
	}
	return result
}

// detectCustom: строки дубликаты только если все exact-колонки совпадают
// дословно И fuzzy-колонки похожи выше порога. Остальные колонки игнорируются.
func detectCustom(src *table.Source, s Settings, exactCols, fuzzyCols []int, rows []int) []DuplicateGroup {
	// Сначала группируем по точному ключу, потом fuzzy внутри каждой группы
	exactBuckets := make(map[string][]int)
	var order []string
	for _, r := range rows {
		key := joinNormalized(src, s, exactCols, r)
		if _, seen := exactBuckets[key]; !seen {
			order = append(order, key)
		}
		exactBuckets[key] = append(exactBuckets[key], r)
	}

	var result []DuplicateGroup
	for _, key := range order {
		members := exactBuckets[key]
		if len(members) < 2 {
			continue
		}
		if len(fuzzyCols) == 0 {
			result = append(result, DuplicateGroup{Key: key, Rows: members})
			continue
		}
		for _, g := range detectFuzzy(src, s, fuzzyCols, members) {
			g.Key = key + keySeparator + g.Key
			result = append(result, g)
		}
	}
	return result
}

// joinNormalized строит ключ сравнения из значений указанных колонок
func joinNormalized(src *table.Source, s Settings, cols []int, row int) string {
	parts := make([]string, len(cols))
	cells := src.Row(row)
	for i, c := range cols {
		parts[i] = normalizeValue(s, cells[c].Raw)
	}
	return strings.Join(parts, keySeparator)
}

// mergeGroups склеивает каждую группу дубликатов в одну строку.
// Tie-break детерминированный: побеждает первое вхождение, его пустые
// поля заполняются из последующих строк группы ("first wins, gaps filled").
func mergeGroups(src *table.Source, groups []DuplicateGroup) map[int][]string {
	merged := make(map[int][]string, len(groups))
	for _, g := range groups {
		base := append([]string(nil), src.RawRow(g.Rows[0])...)
		for _, r := range g.Rows[1:] {
			row := src.RawRow(r)
			for i := range base {
				if strings.TrimSpace(base[i]) == "" && strings.TrimSpace(row[i]) != "" {
					base[i] = row[i]
				}
			}
		}
		merged[g.Rows[0]] = base
	}
	return merged
}

// similarityPercent — похожесть двух ключей в процентах (0-100) по
// расстоянию Левенштейна. Ключи сравниваются дословно: нормализация
// регистра и пробелов уже применена настройками запуска, разделитель
// колонок остается значимым и не дает значениям перетекать между колонками.
func similarityPercent(a, b string) int {
	if a == b {
		return 100
	}
	if len(a) == 0 || len(b) == 0 {
		return 0
	}

	ra := []rune(a)
	rb := []rune(b)

	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for j := 0; j <= len(rb); j++ {
		prev[j] = j
	}
	for i := 1; i <= len(ra); i++ {
		curr[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			curr[j] = minDist(curr[j-1]+1, prev[j]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}

	dist := prev[len(rb)]
	maxLen := len(ra)
	if len(rb) > maxLen {
		maxLen = len(rb)
	}
	return (maxLen - dist) * 100 / maxLen
}

func minDist(a, b, c int) int {
	m := a
	if b < m {
		m = b
	}
	if c < m {
		m = c
	}
	return m
}

// describeGroup — человекочитаемое описание группы для отчета
func describeGroup(g DuplicateGroup) string {
	rows := make([]string, len(g.Rows))
	for i, r := range g.Rows {
		rows[i] = fmt.Sprintf("%d", r+1)
	}
	return fmt.Sprintf("rows %s are duplicates", strings.Join(rows, ", "))
}
