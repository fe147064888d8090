package profiler

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/ruslano69/caseimport/pkg/core/schema"
	"github.com/ruslano69/caseimport/pkg/core/table"
)

// Предкомпилированные шаблоны детекторов
var (
	emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

	// Почтовые индексы: US 5/9 цифр, канадский, британский
	postalUSRegex = regexp.MustCompile(`^\d{5}(-\d{4})?$`)
	postalCARegex = regexp.MustCompile(`^[A-Za-z]\d[A-Za-z] ?\d[A-Za-z]\d$`)
	postalUKRegex = regexp.MustCompile(`^[A-Za-z]{1,2}\d[A-Za-z\d]? ?\d[A-Za-z]{2}$`)

	// Валютная сумма: опциональный $, разделители тысяч, до двух знаков после точки
	currencyRegex = regexp.MustCompile(`^-?\$?-?\d{1,3}(,\d{3})*(\.\d{1,2})?$`)

	// Код-ссылка вида CA-2024-001: 2-3 буквы, год, числовой суффикс
	referenceCodeRegex = regexp.MustCompile(`^[A-Za-z]{2,3}-\d{4}-\d+$`)
)

// detector — наивный детектор одного типа
type detector struct {
	tag   string
	typ   schema.FieldType
	match func(string) bool
}

// Порядок детекторов задает приоритет при равных долях совпадений:
// более специфичные форматы стоят раньше
var detectors = []detector{
	{"boolean", schema.TypeBoolean, isBooleanValue},
	{"email", schema.TypeEmail, func(v string) bool { return emailRegex.MatchString(v) }},
	{"postal_code", schema.TypePostalCode, isPostalShaped},
	{"phone", schema.TypePhone, isPhoneShaped},
	{"date", schema.TypeDate, isDateShaped},
	{"currency", schema.TypeDecimal, isCurrencyShaped},
	{"number", schema.TypeNumber, isNumberShaped},
}

// detectType классифицирует колонку по выборке значений.
// Возвращает тип, уверенность (доля совпавших значений) и теги паттернов.
func detectType(sample []string, distinctCount int) (schema.FieldType, float64, []string) {
	if len(sample) == 0 {
		return schema.TypeText, 0, nil
	}

	var patterns []string
	bestType := schema.TypeText
	bestRatio := 0.0

	for _, d := range detectors {
		matched := 0
		for _, v := range sample {
			if d.match(v) {
				matched++
			}
		}
		ratio := float64(matched) / float64(len(sample))
		if ratio >= 0.3 {
			patterns = append(patterns, d.tag)
		}
		// строго больше: при равенстве побеждает более специфичный (ранний) детектор
		if ratio > bestRatio {
			bestRatio = ratio
			bestType = d.typ
		}
	}

	// Для уверенной классификации нужно большинство значений
	if bestRatio < 0.6 {
		bestType = schema.TypeText
		bestRatio = 1.0 - bestRatio

		// Малое число повторяющихся значений — перечисление
		if distinctCount > 0 && distinctCount <= 10 && len(sample) >= distinctCount*3 {
			bestType = schema.TypeEnum
			patterns = append(patterns, "enum")
		}
	}

	return bestType, bestRatio, patterns
}

// countFormatViolations считает значения, не проходящие проверку формата типа
func countFormatViolations(t schema.FieldType, values []string) int {
	check := formatCheck(t)
	if check == nil {
		return 0
	}
	invalid := 0
	for _, v := range values {
		if !check(v) {
			invalid++
		}
	}
	return invalid
}

// formatCheck возвращает проверку формата для типа (nil — формат свободный)
func formatCheck(t schema.FieldType) func(string) bool {
	switch t {
	case schema.TypeEmail:
		return emailRegex.MatchString
	case schema.TypePhone:
		return isPhoneShaped
	case schema.TypePostalCode:
		return isPostalShaped
	case schema.TypeDate:
		return isDateShaped
	case schema.TypeNumber:
		return isNumberShaped
	case schema.TypeDecimal:
		return isCurrencyShaped
	case schema.TypeBoolean:
		return isBooleanValue
	default:
		return nil
	}
}

func isBooleanValue(v string) bool {
	switch strings.ToLower(v) {
	case "true", "false", "yes", "no", "y", "n":
		return true
	default:
		return false
	}
}

// isPhoneShaped проверяет телефон: 10-15 цифр после очистки.
// Длины 5 и 9 исключены явно — они совпадают с длинами почтовых
// индексов US и дают перекрестные ложные срабатывания.
func isPhoneShaped(v string) bool {
	digits := cleanDigits(v)
	n := len(digits)
	if n == 5 || n == 9 {
		return false
	}
	return n >= 10 && n <= 15
}

func isPostalShaped(v string) bool {
	return postalUSRegex.MatchString(v) || postalCARegex.MatchString(v) || postalUKRegex.MatchString(v)
}

func isDateShaped(v string) bool {
	_, ok := table.ParseDate(v)
	return ok
}

func isCurrencyShaped(v string) bool {
	if !currencyRegex.MatchString(v) {
		return false
	}
	// Обычные целые без $ и дробной части — number, не decimal
	return strings.ContainsAny(v, "$.,")
}

func isNumberShaped(v string) bool {
	s := strings.ReplaceAll(v, ",", "")
	_, err := strconv.ParseFloat(s, 64)
	return err == nil
}

// cleanDigits оставляет только цифры
func cleanDigits(v string) string {
	var b strings.Builder
	for _, r := range v {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func trimmed(v string) string {
	return strings.TrimSpace(v)
}
