package schema

import "fmt"

// FieldType представляет семантический тип поля целевой схемы.
// Тот же словарь использует профилировщик колонок.
type FieldType string

// Поддерживаемые семантические типы
const (
	TypeText        FieldType = "text"
	TypeNumber      FieldType = "number"
	TypeDate        FieldType = "date"
	TypeEmail       FieldType = "email"
	TypePhone       FieldType = "phone"
	TypePostalCode  FieldType = "postal_code"
	TypeReferenceID FieldType = "reference_id"
	TypeBoolean     FieldType = "boolean"
	TypeDecimal     FieldType = "decimal"
	TypeEnum        FieldType = "enum"
)

// IsValidType проверяет валидность семантического типа
func IsValidType(t FieldType) bool {
	switch t {
	case TypeText, TypeNumber, TypeDate, TypeEmail, TypePhone,
		TypePostalCode, TypeReferenceID, TypeBoolean, TypeDecimal, TypeEnum:
		return true
	default:
		return false
	}
}

// IsTextLike проверяет хранится ли тип как текст
func IsTextLike(t FieldType) bool {
	switch t {
	case TypeText, TypeEmail, TypePhone, TypePostalCode, TypeReferenceID, TypeEnum:
		return true
	default:
		return false
	}
}

// IsNumericType проверяет является ли тип числовым
func IsNumericType(t FieldType) bool {
	return t == TypeNumber || t == TypeDecimal
}

// Compatible проверяет совместимость типа исходной колонки с типом поля схемы.
// Text принимает всё; конкретные типы принимают себя и text
// (источник мог не дать уверенной классификации).
func Compatible(source, target FieldType) bool {
	if source == target || target == TypeText {
		return true
	}
	if source == TypeText && IsTextLike(target) {
		return true
	}
	if IsNumericType(source) && IsNumericType(target) {
		return true
	}
	return false
}

// MappingError — обязательное поле целевой схемы осталось без исходной колонки.
// Блокирует деплой.
type MappingError struct {
	Table string
	Field string
}

func (e *MappingError) Error() string {
	return fmt.Sprintf("required field %s.%s has no mapped source column", e.Table, e.Field)
}
