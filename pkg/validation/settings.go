package validation

import "fmt"

// DuplicateMode — режим поиска дубликатов
type DuplicateMode string

const (
	// ModeExact — группировка по хеш-ключу нормализованных значений, один проход
	ModeExact DuplicateMode = "exact"
	// ModeFuzzy — попарное сравнение похожести, дорогой путь (квадратичный)
	ModeFuzzy DuplicateMode = "fuzzy"
	// ModeCustom — точное совпадение одного набора колонок И похожесть другого
	ModeCustom DuplicateMode = "custom"
)

// DuplicateAction — что делать с найденными группами дубликатов
type DuplicateAction string

const (
	ActionSkip  DuplicateAction = "skip"  // оставить первую строку группы
	ActionError DuplicateAction = "error" // дубликат = ошибка валидации, блокирует деплой
	ActionMerge DuplicateAction = "merge" // склеить группу в одну строку (с потерями)
	ActionFlag  DuplicateAction = "flag"  // оставить все строки, записать предупреждение
)

// MissingPolicy — политика обработки пустых значений в привязанных колонках
type MissingPolicy string

const (
	MissingSkip  MissingPolicy = "skip"
	MissingError MissingPolicy = "error"

	// MissingDefault подставляет DefaultValue только на время проверок:
	// валидаторы видят подставленное значение, источник не меняется,
	// в приемник уходят исходные пустые ячейки
	MissingDefault MissingPolicy = "default"

	MissingRemoveRow MissingPolicy = "remove_row"
)

// Settings — конфигурация одного запуска валидации.
// Неизменяема в течение запуска. Отключение неиспользуемых валидаторов —
// основной рычаг производительности на больших файлах.
type Settings struct {
	// Переключатели типовых валидаторов
	ValidateEmails      bool `yaml:"validate_emails"`
	ValidatePhones      bool `yaml:"validate_phones"`
	ValidateDates       bool `yaml:"validate_dates"`
	ValidatePostalCodes bool `yaml:"validate_postal_codes"`
	ValidateCurrency    bool `yaml:"validate_currency"`
	ValidateSSN         bool `yaml:"validate_ssn"`
	ValidateTaxID       bool `yaml:"validate_tax_id"`

	// Поиск дубликатов
	CheckDuplicates  bool            `yaml:"check_duplicates"`
	DuplicateMode    DuplicateMode   `yaml:"duplicate_mode"`
	DuplicateAction  DuplicateAction `yaml:"duplicate_action"`
	DuplicateColumns []string        `yaml:"duplicate_columns"` // пусто = все привязанные колонки
	ExactColumns     []string        `yaml:"exact_columns"`     // только для режима custom
	FuzzyThreshold   int             `yaml:"fuzzy_threshold"`   // проценты, по умолчанию 85

	// Пропуски и нормализация — применяются до всех остальных валидаторов
	MissingData    MissingPolicy `yaml:"missing_data"`
	DefaultValue   string        `yaml:"default_value"`
	TrimWhitespace bool          `yaml:"trim_whitespace"`
	IgnoreCase     bool          `yaml:"ignore_case"`

	// Strict включает проверки max-length и enum целевой схемы
	Strict bool `yaml:"strict"`

	BatchSize int `yaml:"batch_size"`
	MaxErrors int `yaml:"max_errors"` // circuit breaker: достигнув лимита, движок возвращает частичный результат

	// Выборочная валидация больших файлов
	SampleValidation bool `yaml:"sample_validation"`
	SamplePercent    int  `yaml:"sample_percent"`
}

// DefaultSettings возвращает настройки по умолчанию
func DefaultSettings() Settings {
	return Settings{
		ValidateEmails:      true,
		ValidatePhones:      true,
		ValidateDates:       true,
		ValidatePostalCodes: true,
		ValidateCurrency:    true,
		CheckDuplicates:     true,
		DuplicateMode:       ModeExact,
		DuplicateAction:     ActionFlag,
		FuzzyThreshold:      85,
		MissingData:         MissingSkip,
		TrimWhitespace:      true,
		BatchSize:           1000,
		MaxErrors:           1000,
		SamplePercent:       10,
	}
}

// Validate проверяет согласованность настроек
func (s *Settings) Validate() error {
	if s.CheckDuplicates {
		switch s.DuplicateMode {
		case ModeExact, ModeFuzzy, ModeCustom:
		default:
			return fmt.Errorf("unknown duplicate mode: %q", s.DuplicateMode)
		}
		switch s.DuplicateAction {
		case ActionSkip, ActionError, ActionMerge, ActionFlag:
		default:
			return fmt.Errorf("unknown duplicate action: %q", s.DuplicateAction)
		}
		if s.FuzzyThreshold < 1 || s.FuzzyThreshold > 100 {
			return fmt.Errorf("fuzzy threshold must be in 1..100, got %d", s.FuzzyThreshold)
		}
		if s.DuplicateMode == ModeCustom && len(s.ExactColumns) == 0 && len(s.DuplicateColumns) == 0 {
			return fmt.Errorf("custom duplicate mode requires exact_columns or duplicate_columns")
		}
	}

	switch s.MissingData {
	case MissingSkip, MissingError, MissingDefault, MissingRemoveRow, "":
	default:
		return fmt.Errorf("unknown missing data policy: %q", s.MissingData)
	}

	if s.BatchSize < 0 {
		return fmt.Errorf("batch size cannot be negative")
	}
	if s.MaxErrors < 0 {
		return fmt.Errorf("max errors cannot be negative")
	}
	if s.SampleValidation && (s.SamplePercent < 1 || s.SamplePercent > 100) {
		return fmt.Errorf("sample percent must be in 1..100, got %d", s.SamplePercent)
	}

	return nil
}

// ActiveValidators возвращает число включенных типовых валидаторов
func (s Settings) ActiveValidators() int {
	n := 0
	for _, enabled := range []bool{
		s.ValidateEmails, s.ValidatePhones, s.ValidateDates,
		s.ValidatePostalCodes, s.ValidateCurrency, s.ValidateSSN, s.ValidateTaxID,
	} {
		if enabled {
			n++
		}
	}
	return n
}
