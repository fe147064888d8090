package validation

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/ruslano69/caseimport/pkg/core/schema"
	"github.com/ruslano69/caseimport/pkg/core/table"
	"github.com/ruslano69/caseimport/pkg/mapping"
)

// Предкомпилированные шаблоны типовых контрактов
var (
	emailRegex    = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)
	postalUSRegex = regexp.MustCompile(`^\d{5}(-\d{4})?$`)
	postalCARegex = regexp.MustCompile(`^[A-Za-z]\d[A-Za-z] ?\d[A-Za-z]\d$`)
	postalUKRegex = regexp.MustCompile(`^[A-Za-z]{1,2}\d[A-Za-z\d]? ?\d[A-Za-z]{2}$`)
	currencyRegex = regexp.MustCompile(`^-?\$?-?\d{1,3}(,\d{3})*(\.\d{1,2})?$`)
	ssnRegex      = regexp.MustCompile(`^\d{3}-?\d{2}-?\d{4}$`)
	taxIDRegex    = regexp.MustCompile(`^\d{2}-?\d{7}$`)
)

// fieldValidator — контракт одного типа поля
type fieldValidator struct {
	name  string
	check func(string) bool
}

// validatorFor выбирает контракт для привязанного поля или nil,
// если соответствующий переключатель настроек выключен.
// Пропуск выключенных валидаторов — основной рычаг производительности.
func validatorFor(m *mapping.FieldMapping, s Settings) *fieldValidator {
	// SSN и tax-ID в целевой схеме хранятся текстом,
	// валидатор выбирается по имени поля
	fieldName := mapping.Normalize(m.TargetField)
	switch {
	case strings.Contains(fieldName, "ssn") || strings.Contains(fieldName, "socialsecurity"):
		if !s.ValidateSSN {
			return nil
		}
		return &fieldValidator{name: "ssn", check: isValidSSN}
	case strings.Contains(fieldName, "taxid") || strings.Contains(fieldName, "ein"):
		if !s.ValidateTaxID {
			return nil
		}
		return &fieldValidator{name: "tax_id", check: isValidTaxID}
	}

	switch m.TargetType {
	case schema.TypeEmail:
		if !s.ValidateEmails {
			return nil
		}
		return &fieldValidator{name: "email", check: isValidEmail}
	case schema.TypePhone:
		if !s.ValidatePhones {
			return nil
		}
		return &fieldValidator{name: "phone", check: isValidPhone}
	case schema.TypeDate:
		if !s.ValidateDates {
			return nil
		}
		return &fieldValidator{name: "date", check: isValidDate}
	case schema.TypePostalCode:
		if !s.ValidatePostalCodes {
			return nil
		}
		return &fieldValidator{name: "postal_code", check: isValidPostalCode}
	case schema.TypeDecimal, schema.TypeNumber:
		if !s.ValidateCurrency {
			return nil
		}
		return &fieldValidator{name: "currency", check: isValidCurrency}
	default:
		return nil
	}
}

// isValidEmail: local@domain.tld после trim
func isValidEmail(v string) bool {
	return emailRegex.MatchString(strings.TrimSpace(v))
}

// isValidPhone: 10-15 цифр; длины 5 и 9 исключены,
// чтобы не засчитывать почтовые индексы за телефоны
func isValidPhone(v string) bool {
	digits := 0
	for _, r := range v {
		if r >= '0' && r <= '9' {
			digits++
		}
	}
	if digits == 5 || digits == 9 {
		return false
	}
	return digits >= 10 && digits <= 15
}

func isValidDate(v string) bool {
	_, ok := table.ParseDate(strings.TrimSpace(v))
	return ok
}

func isValidPostalCode(v string) bool {
	v = strings.TrimSpace(v)
	return postalUSRegex.MatchString(v) || postalCARegex.MatchString(v) || postalUKRegex.MatchString(v)
}

func isValidCurrency(v string) bool {
	v = strings.TrimSpace(v)
	if currencyRegex.MatchString(v) {
		return true
	}
	_, err := strconv.ParseFloat(strings.ReplaceAll(v, ",", ""), 64)
	return err == nil
}

func isValidSSN(v string) bool {
	return ssnRegex.MatchString(strings.TrimSpace(v))
}

func isValidTaxID(v string) bool {
	return taxIDRegex.MatchString(strings.TrimSpace(v))
}
