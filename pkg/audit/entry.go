package audit

import (
	"encoding/json"
	"fmt"
	"time"
)

// Operation - тип операции импорта
type Operation string

const (
	OpUpload   Operation = "upload"
	OpProfile  Operation = "profile"
	OpMap      Operation = "map"
	OpValidate Operation = "validate"
	OpDeploy   Operation = "deploy"
	OpRollback Operation = "rollback"
	OpBackup   Operation = "backup"
)

// Status - статус выполнения операции
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailure Status = "failure"
	StatusPartial Status = "partial"
	StatusAborted Status = "aborted"
)

// Entry - запись в audit логе прогона импорта
type Entry struct {
	// ID - уникальный идентификатор записи
	ID string `json:"id"`

	// Timestamp - время операции
	Timestamp time.Time `json:"timestamp"`

	// RunID - идентификатор прогона импорта
	RunID string `json:"run_id,omitempty"`

	// Operation - тип операции
	Operation Operation `json:"operation"`

	// Status - статус выполнения
	Status Status `json:"status"`

	// User - оператор, выполнивший операцию
	User string `json:"user,omitempty"`

	// FileName - импортируемый файл
	FileName string `json:"file_name,omitempty"`

	// Target - целевая таблица или приемник
	Target string `json:"target,omitempty"`

	// RecordsAffected - количество затронутых записей
	RecordsAffected int64 `json:"records_affected,omitempty"`

	// Duration - длительность операции
	Duration time.Duration `json:"duration,omitempty"`

	// ErrorMessage - сообщение об ошибке
	ErrorMessage string `json:"error_message,omitempty"`

	// Metadata - дополнительные метаданные
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// NewEntry - создать новую audit запись
func NewEntry(operation Operation, status Status) *Entry {
	return &Entry{
		ID:        generateID(),
		Timestamp: time.Now(),
		Operation: operation,
		Status:    status,
	}
}

// WithRunID - установить идентификатор прогона
func (e *Entry) WithRunID(runID string) *Entry {
	e.RunID = runID
	return e
}

// WithUser - установить оператора
func (e *Entry) WithUser(user string) *Entry {
	e.User = user
	return e
}

// WithFileName - установить имя файла
func (e *Entry) WithFileName(name string) *Entry {
	e.FileName = name
	return e
}

// WithTarget - установить целевую таблицу
func (e *Entry) WithTarget(target string) *Entry {
	e.Target = target
	return e
}

// WithRecordsAffected - установить количество записей
func (e *Entry) WithRecordsAffected(count int64) *Entry {
	e.RecordsAffected = count
	return e
}

// WithDuration - установить длительность
func (e *Entry) WithDuration(duration time.Duration) *Entry {
	e.Duration = duration
	return e
}

// WithError - установить ошибку (переводит статус в failure)
func (e *Entry) WithError(err error) *Entry {
	if err != nil {
		e.ErrorMessage = err.Error()
		e.Status = StatusFailure
	}
	return e
}

// WithMetadata - добавить метаданные
func (e *Entry) WithMetadata(key string, value interface{}) *Entry {
	if e.Metadata == nil {
		e.Metadata = make(map[string]interface{})
	}
	e.Metadata[key] = value
	return e
}

// ToJSON - преобразовать в JSON
func (e *Entry) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// String - строковое представление
func (e *Entry) String() string {
	return fmt.Sprintf("[%s] %s %s run=%s target=%s records=%d duration=%v",
		e.Timestamp.Format(time.RFC3339),
		e.Operation,
		e.Status,
		e.RunID,
		e.Target,
		e.RecordsAffected,
		e.Duration,
	)
}

// generateID - генерация уникального ID
func generateID() string {
	return fmt.Sprintf("audit-%d", time.Now().UnixNano())
}
