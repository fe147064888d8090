package validation

import "strings"

// normalizeValue применяет настройки нормализации к одному значению.
// Вызывается до всех остальных валидаторов и при построении
// ключей дубликатов.
func normalizeValue(s Settings, v string) string {
	if s.TrimWhitespace {
		v = strings.TrimSpace(v)
	}
	if s.IgnoreCase {
		v = strings.ToLower(v)
	}
	return v
}
