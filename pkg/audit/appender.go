package audit

import (
	"context"
)

// Appender — приемник записей аудита
type Appender interface {
	// Append записывает одну запись аудита
	Append(ctx context.Context, entry *Entry) error

	// Close закрывает appender
	Close() error
}

// MultiAppender пишет запись во все приемники.
// Ошибка одного приемника не останавливает запись в остальные.
type MultiAppender struct {
	appenders []Appender
}

// NewMultiAppender создает multi appender
func NewMultiAppender(appenders ...Appender) *MultiAppender {
	return &MultiAppender{
		appenders: appenders,
	}
}

// Append записывает во все приемники, возвращает первую ошибку
func (ma *MultiAppender) Append(ctx context.Context, entry *Entry) error {
	var firstErr error

	for _, appender := range ma.appenders {
		if err := appender.Append(ctx, entry); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	return firstErr
}

// Close закрывает все приемники
func (ma *MultiAppender) Close() error {
	var firstErr error

	for _, appender := range ma.appenders {
		if err := appender.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	return firstErr
}

// Add добавляет приемник
func (ma *MultiAppender) Add(appender Appender) {
	ma.appenders = append(ma.appenders, appender)
}
