package sink

import (
	"context"
	"testing"
)

func TestFactoryRegisterAndCreate(t *testing.T) {
	f := NewFactory()
	f.Register("memory", func() Sink { return NewMemorySink() })

	if !f.IsRegistered("memory") {
		t.Fatal("memory sink should be registered")
	}
	if f.IsRegistered("oracle") {
		t.Fatal("oracle sink should not be registered")
	}

	s, err := f.Create(context.Background(), Config{Type: "memory"})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if s.SinkType() != "memory" {
		t.Errorf("expected sink type memory, got %s", s.SinkType())
	}
}

func TestFactoryUnknownType(t *testing.T) {
	f := NewFactory()
	_, err := f.Create(context.Background(), Config{Type: "cassandra"})
	if err == nil {
		t.Fatal("expected error for unknown sink type")
	}
}

func TestGlobalFactoryHasMemory(t *testing.T) {
	if !IsRegistered("memory") {
		t.Fatal("memory sink must be registered in the global factory")
	}
}

func TestMemorySinkWriteAndDelete(t *testing.T) {
	ctx := context.Background()
	m := NewMemorySink()

	if err := m.EnsureTable(ctx, "cases", []string{"name", "email"}); err != nil {
		t.Fatalf("EnsureTable failed: %v", err)
	}

	batch := Batch{
		Table:   "cases",
		Columns: []string{"name", "email"},
		Rows: [][]string{
			{"John Smith", "john@example.com"},
			{"Jane Doe", "jane@example.com"},
		},
		RunID: "run-1",
	}
	if err := m.WriteBatch(ctx, batch); err != nil {
		t.Fatalf("WriteBatch failed: %v", err)
	}
	if got := m.RowCount("cases"); got != 2 {
		t.Errorf("expected 2 rows, got %d", got)
	}

	batch.RunID = "run-2"
	batch.Rows = [][]string{{"Bob Lee", "bob@example.com"}}
	if err := m.WriteBatch(ctx, batch); err != nil {
		t.Fatalf("WriteBatch failed: %v", err)
	}

	if err := m.DeleteRows(ctx, "cases", "run-1"); err != nil {
		t.Fatalf("DeleteRows failed: %v", err)
	}
	if got := m.RowCount("cases"); got != 1 {
		t.Errorf("expected 1 row after deleting run-1, got %d", got)
	}
}

func TestMemorySinkFailureInjection(t *testing.T) {
	ctx := context.Background()
	m := NewMemorySink()
	m.FailOnBatch = 2

	if err := m.EnsureTable(ctx, "cases", []string{"name"}); err != nil {
		t.Fatalf("EnsureTable failed: %v", err)
	}

	batch := Batch{Table: "cases", Columns: []string{"name"}, Rows: [][]string{{"a"}}, RunID: "r"}
	if err := m.WriteBatch(ctx, batch); err != nil {
		t.Fatalf("first batch should succeed: %v", err)
	}
	if err := m.WriteBatch(ctx, batch); err == nil {
		t.Fatal("second batch should fail")
	}
	if got := m.RowCount("cases"); got != 1 {
		t.Errorf("failed batch must not write rows, got %d", got)
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	rows := [][]string{
		{"John Smith", "555-123-4567"},
		{"Jane Doe", ""},
	}
	snap, err := NewSnapshot("cases", []string{"name", "phone"}, rows)
	if err != nil {
		t.Fatalf("NewSnapshot failed: %v", err)
	}
	if snap.RowCount != 2 {
		t.Errorf("expected RowCount 2, got %d", snap.RowCount)
	}
	if snap.CompressedSize() == 0 {
		t.Error("expected non-empty compressed payload")
	}

	got, err := snap.Rows()
	if err != nil {
		t.Fatalf("Rows failed: %v", err)
	}
	if len(got) != 2 || got[0][1] != "555-123-4567" || got[1][1] != "" {
		t.Errorf("unexpected snapshot rows: %v", got)
	}
}

func TestMemorySinkBackupRestore(t *testing.T) {
	ctx := context.Background()
	m := NewMemorySink()

	if err := m.EnsureTable(ctx, "cases", []string{"name"}); err != nil {
		t.Fatalf("EnsureTable failed: %v", err)
	}
	batch := Batch{Table: "cases", Columns: []string{"name"}, Rows: [][]string{{"original"}}, RunID: "r0"}
	if err := m.WriteBatch(ctx, batch); err != nil {
		t.Fatalf("WriteBatch failed: %v", err)
	}

	snap, err := m.Backup(ctx, "cases")
	if err != nil {
		t.Fatalf("Backup failed: %v", err)
	}

	batch.RunID = "r1"
	batch.Rows = [][]string{{"new-1"}, {"new-2"}}
	if err := m.WriteBatch(ctx, batch); err != nil {
		t.Fatalf("WriteBatch failed: %v", err)
	}
	if got := m.RowCount("cases"); got != 3 {
		t.Fatalf("expected 3 rows before restore, got %d", got)
	}

	if err := m.Restore(ctx, snap); err != nil {
		t.Fatalf("Restore failed: %v", err)
	}
	rows := m.TableRows("cases")
	if len(rows) != 1 || rows[0][0] != "original" {
		t.Errorf("restore must return table to snapshot state, got %v", rows)
	}
}
