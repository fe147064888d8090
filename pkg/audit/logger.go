package audit

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Logger - журнал операций импорта.
// Записи уходят во все appenders; сбой одного appender
// не останавливает запись в остальные.
type Logger struct {
	mu        sync.RWMutex
	appenders []Appender

	// DefaultUser подставляется в записи без оператора
	DefaultUser string

	// OnError - callback при ошибке записи
	OnError func(error)
}

// NewLogger - создать audit logger
func NewLogger(appenders ...Appender) *Logger {
	return &Logger{appenders: appenders}
}

// Log - записать audit entry
func (l *Logger) Log(ctx context.Context, entry *Entry) error {
	if entry == nil {
		return fmt.Errorf("entry is nil")
	}

	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}
	if entry.ID == "" {
		entry.ID = generateID()
	}
	if entry.User == "" && l.DefaultUser != "" {
		entry.User = l.DefaultUser
	}

	l.mu.RLock()
	appenders := l.appenders
	l.mu.RUnlock()

	var firstErr error
	for _, a := range appenders {
		if err := a.Append(ctx, entry); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			if l.OnError != nil {
				l.OnError(fmt.Errorf("appender failed: %w", err))
			}
		}
	}
	return firstErr
}

// LogSuccess - записать успешную операцию
func (l *Logger) LogSuccess(ctx context.Context, operation Operation) *Entry {
	entry := NewEntry(operation, StatusSuccess)
	if err := l.Log(ctx, entry); err != nil && l.OnError != nil {
		l.OnError(err)
	}
	return entry
}

// LogFailure - записать неудачную операцию
func (l *Logger) LogFailure(ctx context.Context, operation Operation, err error) *Entry {
	entry := NewEntry(operation, StatusFailure).WithError(err)
	if logErr := l.Log(ctx, entry); logErr != nil && l.OnError != nil {
		l.OnError(logErr)
	}
	return entry
}

// AddAppender - добавить appender
func (l *Logger) AddAppender(appender Appender) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.appenders = append(l.appenders, appender)
}

// Flush - сбросить буферы всех appenders, которые это поддерживают
func (l *Logger) Flush() error {
	l.mu.RLock()
	appenders := l.appenders
	l.mu.RUnlock()

	var firstErr error
	for _, a := range appenders {
		if flusher, ok := a.(interface{ Flush() error }); ok {
			if err := flusher.Flush(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// Close - закрыть все appenders
func (l *Logger) Close() error {
	l.Flush()

	l.mu.RLock()
	appenders := l.appenders
	l.mu.RUnlock()

	var firstErr error
	for _, a := range appenders {
		if err := a.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
