// Package sqlbase содержит общую реализацию SQL-приемника поверх database/sql.
// Конкретные приемники (sqlite, postgres, mysql, mssql) поставляют только
// диалект: имя драйвера, плейсхолдеры и квотирование идентификаторов.
package sqlbase

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/ruslano69/caseimport/pkg/sink"
)

// RunColumn - служебная колонка с идентификатором прогона деплоя
const RunColumn = "_import_run"

// Dialect - различия SQL-диалектов, существенные для приемника
type Dialect interface {
	// DriverName - имя зарегистрированного database/sql драйвера
	DriverName() string

	// Placeholder возвращает плейсхолдер для n-го параметра (нумерация с 1)
	Placeholder(n int) string

	// QuoteIdent квотирует идентификатор таблицы или колонки
	QuoteIdent(name string) string

	// CreateTableSQL строит DDL создания таблицы, если ее нет.
	// Все колонки текстовые: типизация выполнена валидацией до деплоя.
	CreateTableSQL(table string, columns []string) string
}

// SQLSink - общая реализация sink.Sink поверх database/sql
type SQLSink struct {
	db       *sql.DB
	dialect  Dialect
	sinkType string
}

// NewSQLSink создает приемник с указанным диалектом
func NewSQLSink(sinkType string, dialect Dialect) *SQLSink {
	return &SQLSink{sinkType: sinkType, dialect: dialect}
}

// Connect устанавливает подключение к БД
func (s *SQLSink) Connect(ctx context.Context, cfg sink.Config) error {
	db, err := sql.Open(s.dialect.DriverName(), cfg.DSN)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	if cfg.MaxConns > 0 {
		db.SetMaxOpenConns(cfg.MaxConns)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	s.db = db
	return nil
}

// Close закрывает соединение с БД
func (s *SQLSink) Close(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Ping проверяет доступность БД
func (s *SQLSink) Ping(ctx context.Context) error {
	if s.db == nil {
		return fmt.Errorf("sink is not connected")
	}
	return s.db.PingContext(ctx)
}

// SinkType возвращает тип приемника
func (s *SQLSink) SinkType() string {
	return s.sinkType
}

// EnsureTable создает таблицу с пользовательскими колонками и служебной
// колонкой прогона, если таблицы еще нет
func (s *SQLSink) EnsureTable(ctx context.Context, table string, columns []string) error {
	if len(columns) == 0 {
		return fmt.Errorf("table %s: no columns specified", table)
	}

	all := append(append([]string(nil), columns...), RunColumn)
	ddl := s.dialect.CreateTableSQL(table, all)

	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("failed to create table %s: %w", table, err)
	}
	return nil
}

// WriteBatch записывает батч в одной транзакции.
// Частично записанный батч откатывается целиком.
func (s *SQLSink) WriteBatch(ctx context.Context, batch sink.Batch) error {
	if len(batch.Rows) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, s.insertSQL(batch.Table, batch.Columns))
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	args := make([]interface{}, len(batch.Columns)+1)
	for _, row := range batch.Rows {
		if len(row) != len(batch.Columns) {
			tx.Rollback()
			return fmt.Errorf("row has %d values, expected %d", len(row), len(batch.Columns))
		}
		for i, v := range row {
			args[i] = v
		}
		args[len(batch.Columns)] = batch.RunID

		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to insert row into %s: %w", batch.Table, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit batch: %w", err)
	}
	return nil
}

// DeleteRows удаляет строки, записанные указанным прогоном деплоя
func (s *SQLSink) DeleteRows(ctx context.Context, table string, runID string) error {
	query := fmt.Sprintf("DELETE FROM %s WHERE %s = %s",
		s.dialect.QuoteIdent(table),
		s.dialect.QuoteIdent(RunColumn),
		s.dialect.Placeholder(1))

	if _, err := s.db.ExecContext(ctx, query, runID); err != nil {
		return fmt.Errorf("failed to delete rows of run %s from %s: %w", runID, table, err)
	}
	return nil
}

// Truncate удаляет все строки таблицы
func (s *SQLSink) Truncate(ctx context.Context, table string) error {
	query := fmt.Sprintf("DELETE FROM %s", s.dialect.QuoteIdent(table))
	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to truncate table %s: %w", table, err)
	}
	return nil
}

// Backup снимает снапшот всей таблицы
func (s *SQLSink) Backup(ctx context.Context, table string) (*sink.Snapshot, error) {
	query := fmt.Sprintf("SELECT * FROM %s", s.dialect.QuoteIdent(table))

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to read table %s for backup: %w", table, err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to get columns of %s: %w", table, err)
	}

	var data [][]string
	scan := make([]sql.NullString, len(columns))
	ptrs := make([]interface{}, len(columns))
	for i := range scan {
		ptrs[i] = &scan[i]
	}

	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("failed to scan row of %s: %w", table, err)
		}
		row := make([]string, len(columns))
		for i, v := range scan {
			if v.Valid {
				row[i] = v.String
			}
		}
		data = append(data, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate rows of %s: %w", table, err)
	}

	return sink.NewSnapshot(table, columns, data)
}

// Restore полностью заменяет содержимое таблицы снапшотом
func (s *SQLSink) Restore(ctx context.Context, snap *sink.Snapshot) error {
	data, err := snap.Rows()
	if err != nil {
		return fmt.Errorf("failed to decode snapshot of %s: %w", snap.Table, err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin restore transaction: %w", err)
	}

	if _, err := tx.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s", s.dialect.QuoteIdent(snap.Table))); err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to clear table %s: %w", snap.Table, err)
	}

	if len(data) > 0 {
		stmt, err := tx.PrepareContext(ctx, s.restoreSQL(snap.Table, snap.Columns))
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to prepare restore insert: %w", err)
		}
		defer stmt.Close()

		args := make([]interface{}, len(snap.Columns))
		for _, row := range data {
			for i := range snap.Columns {
				if i < len(row) {
					args[i] = row[i]
				} else {
					args[i] = ""
				}
			}
			if _, err := stmt.ExecContext(ctx, args...); err != nil {
				tx.Rollback()
				return fmt.Errorf("failed to restore row into %s: %w", snap.Table, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit restore: %w", err)
	}
	return nil
}

// insertSQL строит INSERT для пользовательских колонок + колонки прогона
func (s *SQLSink) insertSQL(table string, columns []string) string {
	all := append(append([]string(nil), columns...), RunColumn)
	return s.restoreSQL(table, all)
}

func (s *SQLSink) restoreSQL(table string, columns []string) string {
	quoted := make([]string, len(columns))
	placeholders := make([]string, len(columns))
	for i, c := range columns {
		quoted[i] = s.dialect.QuoteIdent(c)
		placeholders[i] = s.dialect.Placeholder(i + 1)
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		s.dialect.QuoteIdent(table),
		strings.Join(quoted, ", "),
		strings.Join(placeholders, ", "))
}
