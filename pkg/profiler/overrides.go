package profiler

import (
	"regexp"
	"strings"

	"github.com/ruslano69/caseimport/pkg/core/schema"
)

// OverrideRule — именованное правило, форсирующее тип колонки.
// Правила чистые: (имя колонки, выборка значений) -> (тип, сработало).
// Применяются в порядке приоритета, первое сработавшее побеждает,
// поэтому прецедентность явная и тестируется изолированно.
type OverrideRule struct {
	Name  string
	Apply func(column string, samples []string) (schema.FieldType, bool)
}

var (
	// Имена колонок с почтовыми индексами: zip, zip_code, postal_code, zipcode
	postalNameRegex = regexp.MustCompile(`(?i)(^|[_\s])(zip|postal)|zipcode`)

	// Имена колонок-идентификаторов: id, case_id, reference, case_number
	referenceNameRegex = regexp.MustCompile(`(?i)(^id$|[_\s]id$|^ref([_\s]|$)|reference|[_\s]number$|^number$|[_\s]code$|^code$)`)
)

// DefaultOverrides возвращает стандартный набор правил в порядке приоритета
func DefaultOverrides() []OverrideRule {
	return []OverrideRule{
		{Name: "postal_name", Apply: postalNameOverride},
		{Name: "reference_id", Apply: referenceIDOverride},
	}
}

// postalNameOverride форсирует postal_code для колонок с почтовыми именами.
// Пятизначные ZIP и пятизначные телефоноподобные числа иначе неразличимы.
func postalNameOverride(column string, samples []string) (schema.FieldType, bool) {
	if postalNameRegex.MatchString(column) {
		return schema.TypePostalCode, true
	}
	return "", false
}

// referenceIDOverride форсирует text для идентификаторов и кодов-ссылок.
// Короткие числоподобные коды ("CA-2024-001") регулярно принимаются
// детекторами за даты.
func referenceIDOverride(column string, samples []string) (schema.FieldType, bool) {
	if referenceNameRegex.MatchString(strings.TrimSpace(column)) {
		return schema.TypeText, true
	}

	if len(samples) == 0 {
		return "", false
	}
	matched := 0
	for _, v := range samples {
		if referenceCodeRegex.MatchString(v) {
			matched++
		}
	}
	if float64(matched)/float64(len(samples)) >= 0.6 {
		return schema.TypeText, true
	}
	return "", false
}
