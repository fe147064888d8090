package schema

import (
	"fmt"
	"sync"
)

// Field описывает одно поле целевой таблицы
type Field struct {
	Name       string    `yaml:"name"`
	Type       FieldType `yaml:"type"`
	Required   bool      `yaml:"required"`
	MaxLength  int       `yaml:"max_length"`
	EnumValues []string  `yaml:"enum_values,omitempty"`
	Custom     bool      `yaml:"-"` // добавлено оператором во время запуска
}

// Table описывает целевую таблицу
type Table struct {
	Name   string  `yaml:"name"`
	Fields []Field `yaml:"fields"`
}

// Registry — реестр целевой схемы.
// Отдает описание таблиц для маппинга и принимает пользовательские поля.
// Существующие поля никогда не изменяются, только append.
type Registry struct {
	mu     sync.RWMutex
	tables map[string]*Table
	order  []string
}

// NewRegistry создает реестр из набора таблиц
func NewRegistry(tables ...Table) (*Registry, error) {
	r := &Registry{
		tables: make(map[string]*Table, len(tables)),
	}

	for _, t := range tables {
		if t.Name == "" {
			return nil, fmt.Errorf("table name is required")
		}
		if _, exists := r.tables[t.Name]; exists {
			return nil, fmt.Errorf("duplicate table: %q", t.Name)
		}

		seen := make(map[string]bool, len(t.Fields))
		for _, f := range t.Fields {
			if f.Name == "" {
				return nil, fmt.Errorf("table %q: field name is required", t.Name)
			}
			if !IsValidType(f.Type) {
				return nil, fmt.Errorf("table %q field %q: unknown type %q", t.Name, f.Name, f.Type)
			}
			if seen[f.Name] {
				return nil, fmt.Errorf("table %q: duplicate field %q", t.Name, f.Name)
			}
			seen[f.Name] = true
		}

		tc := t
		tc.Fields = append([]Field(nil), t.Fields...)
		r.tables[t.Name] = &tc
		r.order = append(r.order, t.Name)
	}

	return r, nil
}

// Tables возвращает все таблицы в порядке регистрации (копии)
func (r *Registry) Tables() []Table {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Table, 0, len(r.order))
	for _, name := range r.order {
		t := r.tables[name]
		tc := *t
		tc.Fields = append([]Field(nil), t.Fields...)
		result = append(result, tc)
	}
	return result
}

// Table возвращает таблицу по имени
func (r *Registry) Table(name string) (Table, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.tables[name]
	if !ok {
		return Table{}, false
	}
	tc := *t
	tc.Fields = append([]Field(nil), t.Fields...)
	return tc, true
}

// Field возвращает поле таблицы по имени
func (r *Registry) Field(tableName, fieldName string) (Field, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.tables[tableName]
	if !ok {
		return Field{}, false
	}
	for _, f := range t.Fields {
		if f.Name == fieldName {
			return f, true
		}
	}
	return Field{}, false
}

// AddCustomField добавляет пользовательское поле в существующую таблицу.
// Поле помечается как Custom и всегда добавляется в конец.
func (r *Registry) AddCustomField(tableName string, f Field) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.tables[tableName]
	if !ok {
		return fmt.Errorf("unknown table: %q", tableName)
	}
	if f.Name == "" {
		return fmt.Errorf("field name is required")
	}
	if !IsValidType(f.Type) {
		return fmt.Errorf("unknown field type: %q", f.Type)
	}
	for _, existing := range t.Fields {
		if existing.Name == f.Name {
			return fmt.Errorf("field %q already exists in table %q", f.Name, tableName)
		}
	}

	f.Custom = true
	t.Fields = append(t.Fields, f)
	return nil
}

// FieldRef — ссылка на поле таблицы
type FieldRef struct {
	Table string
	Field string
}

// RequiredFields возвращает все обязательные поля всех таблиц
func (r *Registry) RequiredFields() []FieldRef {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var required []FieldRef
	for _, name := range r.order {
		for _, f := range r.tables[name].Fields {
			if f.Required {
				required = append(required, FieldRef{Table: name, Field: f.Name})
			}
		}
	}
	return required
}
