package sink

import (
	"context"
	"fmt"
	"sync"
)

// MemorySink - приемник в памяти для тестов и dry-run деплоев.
// Поддерживает инъекцию сбоев: FailOnBatch заставляет n-й вызов
// WriteBatch вернуть ошибку, что позволяет проверять откат.
type MemorySink struct {
	mu     sync.Mutex
	tables map[string]*memoryTable

	// FailOnBatch - номер вызова WriteBatch (с 1), который должен упасть.
	// 0 = не падать.
	FailOnBatch int

	writeCalls int
}

type memoryTable struct {
	columns []string
	rows    [][]string
	runIDs  []string
}

// Регистрация в глобальной фабрике: тип "memory" доступен наравне с СУБД
func init() {
	Register("memory", func() Sink {
		return NewMemorySink()
	})
}

// NewMemorySink создает пустой приемник в памяти
func NewMemorySink() *MemorySink {
	return &MemorySink{tables: make(map[string]*memoryTable)}
}

func (m *MemorySink) Connect(ctx context.Context, cfg Config) error { return nil }

func (m *MemorySink) Close(ctx context.Context) error { return nil }

func (m *MemorySink) Ping(ctx context.Context) error { return nil }

func (m *MemorySink) SinkType() string { return "memory" }

// EnsureTable создает таблицу, если ее нет
func (m *MemorySink) EnsureTable(ctx context.Context, table string, columns []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.tables[table]; !ok {
		m.tables[table] = &memoryTable{columns: append([]string(nil), columns...)}
	}
	return nil
}

// WriteBatch записывает батч целиком или не записывает вовсе
func (m *MemorySink) WriteBatch(ctx context.Context, batch Batch) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.writeCalls++
	if m.FailOnBatch > 0 && m.writeCalls == m.FailOnBatch {
		return fmt.Errorf("injected failure on batch %d", m.writeCalls)
	}

	t, ok := m.tables[batch.Table]
	if !ok {
		return fmt.Errorf("table %s does not exist", batch.Table)
	}

	for _, row := range batch.Rows {
		if len(row) != len(batch.Columns) {
			return fmt.Errorf("row has %d values, expected %d", len(row), len(batch.Columns))
		}
	}
	for _, row := range batch.Rows {
		t.rows = append(t.rows, append([]string(nil), row...))
		t.runIDs = append(t.runIDs, batch.RunID)
	}
	return nil
}

// DeleteRows удаляет строки указанного прогона
func (m *MemorySink) DeleteRows(ctx context.Context, table string, runID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.tables[table]
	if !ok {
		return fmt.Errorf("table %s does not exist", table)
	}

	var rows [][]string
	var runIDs []string
	for i, r := range t.rows {
		if t.runIDs[i] != runID {
			rows = append(rows, r)
			runIDs = append(runIDs, t.runIDs[i])
		}
	}
	t.rows = rows
	t.runIDs = runIDs
	return nil
}

// Truncate удаляет все строки таблицы
func (m *MemorySink) Truncate(ctx context.Context, table string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.tables[table]
	if !ok {
		return fmt.Errorf("table %s does not exist", table)
	}
	t.rows = nil
	t.runIDs = nil
	return nil
}

// Backup снимает снапшот таблицы
func (m *MemorySink) Backup(ctx context.Context, table string) (*Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.tables[table]
	if !ok {
		return NewSnapshot(table, nil, nil)
	}
	return NewSnapshot(table, t.columns, t.rows)
}

// Restore восстанавливает таблицу из снапшота
func (m *MemorySink) Restore(ctx context.Context, snap *Snapshot) error {
	rows, err := snap.Rows()
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	t := &memoryTable{columns: append([]string(nil), snap.Columns...)}
	for _, r := range rows {
		t.rows = append(t.rows, append([]string(nil), r...))
		t.runIDs = append(t.runIDs, "")
	}
	m.tables[snap.Table] = t
	return nil
}

// RowCount возвращает число строк в таблице (для проверок в тестах)
func (m *MemorySink) RowCount(table string) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.tables[table]
	if !ok {
		return 0
	}
	return len(t.rows)
}

// TableRows возвращает копию строк таблицы (для проверок в тестах)
func (m *MemorySink) TableRows(table string) [][]string {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.tables[table]
	if !ok {
		return nil
	}
	out := make([][]string, len(t.rows))
	for i, r := range t.rows {
		out[i] = append([]string(nil), r...)
	}
	return out
}
