package table

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Kind определяет тип значения ячейки.
// Присваивается один раз при загрузке файла — downstream-валидаторы
// работают с уже типизированными значениями, без повторного парсинга.
type Kind int

const (
	KindNull Kind = iota
	KindText
	KindNumber
	KindDate
	KindBool
)

// String возвращает имя типа ячейки
func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindText:
		return "text"
	case KindNumber:
		return "number"
	case KindDate:
		return "date"
	case KindBool:
		return "boolean"
	default:
		return "unknown"
	}
}

// Cell представляет одно типизированное значение таблицы.
// Raw всегда содержит исходную строку из файла.
type Cell struct {
	Kind   Kind
	Raw    string
	Number float64   // заполнено при KindNumber
	Bool   bool      // заполнено при KindBool
	Time   time.Time // заполнено при KindDate
}

// dateLayouts — форматы дат, распознаваемые при загрузке
var dateLayouts = []string{
	"2006-01-02",
	"01/02/2006",
	"1/2/2006",
	"2006-01-02T15:04:05Z07:00",
	"2006-01-02 15:04:05",
	"02.01.2006",
}

// ParseCell определяет тип значения и создает ячейку.
// Пустая строка и "NULL" считаются null-значением.
func ParseCell(raw string) Cell {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" || strings.EqualFold(trimmed, "null") {
		return Cell{Kind: KindNull, Raw: raw}
	}

	switch strings.ToLower(trimmed) {
	case "true", "false":
		return Cell{Kind: KindBool, Raw: raw, Bool: strings.EqualFold(trimmed, "true")}
	}

	// Числа с ведущим нулем ("01001") остаются текстом:
	// это почти всегда идентификатор или почтовый индекс
	if !hasLeadingZero(trimmed) {
		if n, err := strconv.ParseFloat(trimmed, 64); err == nil {
			return Cell{Kind: KindNumber, Raw: raw, Number: n}
		}
	}

	if t, ok := ParseDate(trimmed); ok {
		return Cell{Kind: KindDate, Raw: raw, Time: t}
	}

	return Cell{Kind: KindText, Raw: raw}
}

// ParseDate пытается распарсить значение как календарную дату
func ParseDate(value string) (time.Time, bool) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// hasLeadingZero проверяет ведущий ноль в числовой строке
func hasLeadingZero(s string) bool {
	if strings.HasPrefix(s, "-") {
		s = s[1:]
	}
	return len(s) > 1 && s[0] == '0' && s[1] != '.'
}

// IsNull проверяет является ли ячейка null-значением
func (c Cell) IsNull() bool {
	return c.Kind == KindNull
}

// String возвращает исходное строковое представление
func (c Cell) String() string {
	return c.Raw
}

// Metadata содержит метаданные загруженного файла
type Metadata struct {
	FileName   string
	FileSize   int64
	UploadedAt time.Time
}

// Source представляет загруженный табличный источник.
// После создания не изменяется — один Source на один запуск импорта.
type Source struct {
	headers []string
	index   map[string]int
	rows    [][]Cell
	meta    Metadata
}

// NewSource создает источник из заголовков и строк.
// Заголовки должны быть уникальны, каждая строка — той же длины что и заголовки.
func NewSource(headers []string, rows [][]Cell, meta Metadata) (*Source, error) {
	if len(headers) == 0 {
		return nil, fmt.Errorf("source has no columns")
	}

	index := make(map[string]int, len(headers))
	for i, h := range headers {
		if h == "" {
			return nil, fmt.Errorf("column %d has empty name", i)
		}
		if _, exists := index[h]; exists {
			return nil, fmt.Errorf("duplicate column name: %q", h)
		}
		index[h] = i
	}

	for i, row := range rows {
		if len(row) != len(headers) {
			return nil, fmt.Errorf("row %d has %d values, expected %d", i, len(row), len(headers))
		}
	}

	return &Source{
		headers: append([]string(nil), headers...),
		index:   index,
		rows:    rows,
		meta:    meta,
	}, nil
}

// Headers возвращает копию списка заголовков
func (s *Source) Headers() []string {
	return append([]string(nil), s.headers...)
}

// TotalRows возвращает количество строк данных
func (s *Source) TotalRows() int {
	return len(s.rows)
}

// Row возвращает строку по индексу
func (s *Source) Row(i int) []Cell {
	return s.rows[i]
}

// ColumnIndex возвращает индекс колонки по имени
func (s *Source) ColumnIndex(name string) (int, bool) {
	i, ok := s.index[name]
	return i, ok
}

// Column возвращает все значения одной колонки
func (s *Source) Column(name string) ([]Cell, bool) {
	i, ok := s.index[name]
	if !ok {
		return nil, false
	}
	col := make([]Cell, len(s.rows))
	for r, row := range s.rows {
		col[r] = row[i]
	}
	return col, true
}

// Meta возвращает метаданные файла
func (s *Source) Meta() Metadata {
	return s.meta
}

// RawRow возвращает строку как []string (исходные значения)
func (s *Source) RawRow(i int) []string {
	row := s.rows[i]
	values := make([]string, len(row))
	for j, c := range row {
		values[j] = c.Raw
	}
	return values
}
