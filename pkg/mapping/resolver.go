// Package mapping binds source columns to (table, field) pairs of the
// target schema. Auto-suggestion uses name similarity plus profile/schema
// type compatibility; anything below the confidence threshold stays
// unmapped for the operator to resolve.
package mapping

import (
	"fmt"

	"github.com/ruslano69/caseimport/pkg/core/schema"
	"github.com/ruslano69/caseimport/pkg/profiler"
)

// autoMapThreshold — минимальная уверенность для автоматической привязки
const autoMapThreshold = 0.7

// FieldMapping связывает исходную колонку с полем целевой схемы.
// Инвариант: TargetTable и TargetField либо оба заполнены, либо оба пусты.
type FieldMapping struct {
	SourceColumn string
	TargetTable  string
	TargetField  string
	Required     bool
	Confidence   float64
	Validated    bool

	// Характеристики целевого поля, чтобы движку валидации
	// не нужен был доступ к реестру схемы
	TargetType schema.FieldType
	MaxLength  int
	EnumValues []string
}

// IsMapped проверяет привязана ли колонка
func (m *FieldMapping) IsMapped() bool {
	return m.TargetTable != "" && m.TargetField != ""
}

// Resolver строит и обновляет маппинги относительно реестра схемы
type Resolver struct {
	registry *schema.Registry
	synonyms map[string][]string
}

// NewResolver создает resolver для реестра целевой схемы
func NewResolver(registry *schema.Registry) *Resolver {
	return &Resolver{
		registry: registry,
		synonyms: defaultSynonyms(),
	}
}

// defaultSynonyms — таблица синонимов имен колонок, встречающихся в выгрузках
func defaultSynonyms() map[string][]string {
	return map[string][]string{
		"zip":        {"postalcode", "zipcode", "zip"},
		"phone":      {"phonenumber", "telephone", "tel", "mobile"},
		"email":      {"emailaddress", "mail"},
		"name":       {"fullname", "claimantname"},
		"firstname":  {"fname", "givenname"},
		"lastname":   {"lname", "surname", "familyname"},
		"amount":     {"settlementamount", "total", "sum"},
		"casenumber": {"caseno", "casenum", "caseid", "referencenumber"},
		"date":       {"fileddate", "filingdate", "createdat"},
		"ssn":        {"socialsecuritynumber", "socialsecurity"},
	}
}

// AutoMap создает маппинг для каждого профиля колонки.
// Привязка выставляется только при уверенности выше порога,
// иначе колонка остается непривязанной.
func (r *Resolver) AutoMap(profiles []profiler.Profile) []FieldMapping {
	tables := r.registry.Tables()
	mappings := make([]FieldMapping, len(profiles))

	// Каждое поле схемы привязываем не более одного раза —
	// берем лучшую исходную колонку для него
	taken := make(map[string]bool)

	for i, prof := range profiles {
		mappings[i] = FieldMapping{SourceColumn: prof.Column}

		var bestTable, bestField string
		var bestScore float64
		var bestRequired bool

		for _, t := range tables {
			for _, f := range t.Fields {
				key := t.Name + "." + f.Name
				if taken[key] {
					continue
				}

				score := r.matchScore(prof, f)
				if score > bestScore {
					bestScore = score
					bestTable = t.Name
					bestField = f.Name
					bestRequired = f.Required
				}
			}
		}

		if bestScore >= autoMapThreshold {
			f, _ := r.registry.Field(bestTable, bestField)
			mappings[i].TargetTable = bestTable
			mappings[i].TargetField = bestField
			mappings[i].Required = bestRequired
			mappings[i].Confidence = bestScore
			mappings[i].TargetType = f.Type
			mappings[i].MaxLength = f.MaxLength
			mappings[i].EnumValues = f.EnumValues
			taken[bestTable+"."+bestField] = true
		}
	}

	return mappings
}

// matchScore оценивает соответствие профиля колонки полю схемы [0,1]
func (r *Resolver) matchScore(prof profiler.Profile, f schema.Field) float64 {
	nameScore := r.nameScore(prof.Column, f.Name)
	if nameScore == 0 {
		return 0
	}

	// Несовместимость типов режет уверенность, но не обнуляет:
	// профиль мог ошибиться, имя остается сильным сигналом
	if !schema.Compatible(prof.Type, f.Type) {
		nameScore *= 0.5
	}

	return nameScore
}

// nameScore — похожесть имен: точное совпадение, синонимы, Левенштейн
func (r *Resolver) nameScore(source, target string) float64 {
	ns := Normalize(source)
	nt := Normalize(target)

	if ns == nt {
		return 1.0
	}

	for canonical, aliases := range r.synonyms {
		if nt == canonical || containsString(aliases, nt) {
			if ns == canonical || containsString(aliases, ns) {
				return 0.95
			}
		}
	}

	sim := float64(Similarity(ns, nt)) / 100
	if sim < 0.5 {
		return 0
	}
	return sim
}

// Update устанавливает или сбрасывает привязку одной колонки.
// Пустые table и field сбрасывают маппинг; частичная привязка запрещена.
func (r *Resolver) Update(mappings []FieldMapping, sourceColumn, targetTable, targetField string) error {
	if (targetTable == "") != (targetField == "") {
		return fmt.Errorf("target table and field must be set together")
	}

	idx := -1
	for i := range mappings {
		if mappings[i].SourceColumn == sourceColumn {
			idx = i
			break
		}
	}
	if idx < 0 {
		return fmt.Errorf("unknown source column: %q", sourceColumn)
	}

	if targetTable == "" {
		mappings[idx] = FieldMapping{SourceColumn: sourceColumn}
		return nil
	}

	f, ok := r.registry.Field(targetTable, targetField)
	if !ok {
		return fmt.Errorf("field %s.%s does not exist in target schema", targetTable, targetField)
	}

	mappings[idx].TargetTable = targetTable
	mappings[idx].TargetField = targetField
	mappings[idx].Required = f.Required
	mappings[idx].Confidence = 1.0 // ручная привязка оператора
	mappings[idx].Validated = false
	mappings[idx].TargetType = f.Type
	mappings[idx].MaxLength = f.MaxLength
	mappings[idx].EnumValues = f.EnumValues
	return nil
}

// AddCustomField добавляет пользовательское поле в реестр схемы
func (r *Resolver) AddCustomField(tableName string, f schema.Field) error {
	return r.registry.AddCustomField(tableName, f)
}

// MissingRequired возвращает обязательные поля схемы без привязанной колонки.
// Непустой результат блокирует деплой.
func (r *Resolver) MissingRequired(mappings []FieldMapping) []*schema.MappingError {
	mapped := make(map[string]bool)
	for _, m := range mappings {
		if m.IsMapped() {
			mapped[m.TargetTable+"."+m.TargetField] = true
		}
	}

	var missing []*schema.MappingError
	for _, ref := range r.registry.RequiredFields() {
		if !mapped[ref.Table+"."+ref.Field] {
			missing = append(missing, &schema.MappingError{Table: ref.Table, Field: ref.Field})
		}
	}
	return missing
}

// MappedCount возвращает число привязанных колонок
func MappedCount(mappings []FieldMapping) int {
	n := 0
	for i := range mappings {
		if mappings[i].IsMapped() {
			n++
		}
	}
	return n
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
