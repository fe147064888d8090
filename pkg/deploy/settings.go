package deploy

import "fmt"

// Settings - настройки деплоя валидированных данных
type Settings struct {
	// BackupBeforeWrite - снять снапшоты целевых таблиц перед записью
	BackupBeforeWrite bool `yaml:"backup_before_write"`

	// RollbackOnError - откатить весь прогон при сбое батча.
	// При false сбойный батч фиксируется в итоге, запись продолжается.
	RollbackOnError bool `yaml:"rollback_on_error"`

	// Revalidate - перепроверить данные непосредственно перед записью
	Revalidate bool `yaml:"revalidate"`

	// CheckDuplicates - отбросить строки-дубликаты по привязанным
	// колонкам непосредственно при записи (первая строка остается)
	CheckDuplicates bool `yaml:"check_duplicates"`

	// ReplaceExisting - заменить содержимое целевых таблиц вместо добавления
	ReplaceExisting bool `yaml:"replace_existing"`

	// BatchSize - размер батча записи
	BatchSize int `yaml:"batch_size"`

	// Notes - заметки оператора, попадают в отчет о деплое
	Notes string `yaml:"notes"`
}

// DefaultSettings - безопасные значения по умолчанию: бэкап и откат включены
func DefaultSettings() Settings {
	return Settings{
		BackupBeforeWrite: true,
		RollbackOnError:   true,
		BatchSize:         1000,
	}
}

// Validate проверяет корректность настроек
func (s *Settings) Validate() error {
	if s.BatchSize <= 0 {
		return fmt.Errorf("batch size must be positive, got %d", s.BatchSize)
	}
	// Замена без бэкапа при включенном откате не оставляет пути назад
	if s.ReplaceExisting && s.RollbackOnError && !s.BackupBeforeWrite {
		return fmt.Errorf("replace with rollback requires backup_before_write")
	}
	return nil
}

// Confirmations - явные подтверждения оператора перед деплоем.
// Деплой отклоняется, пока все флаги не выставлены.
type Confirmations struct {
	DataReviewed       bool `yaml:"data_reviewed"`
	MappingsVerified   bool `yaml:"mappings_verified"`
	SettingsConfirmed  bool `yaml:"settings_confirmed"`
	ImpactAcknowledged bool `yaml:"impact_acknowledged"`
}

// Complete проверяет что все подтверждения даны
func (c Confirmations) Complete() bool {
	return c.DataReviewed && c.MappingsVerified && c.SettingsConfirmed && c.ImpactAcknowledged
}

// Missing возвращает список недостающих подтверждений
func (c Confirmations) Missing() []string {
	var missing []string
	if !c.DataReviewed {
		missing = append(missing, "data reviewed")
	}
	if !c.MappingsVerified {
		missing = append(missing, "mappings verified")
	}
	if !c.SettingsConfirmed {
		missing = append(missing, "settings confirmed")
	}
	if !c.ImpactAcknowledged {
		missing = append(missing, "production impact acknowledged")
	}
	return missing
}
