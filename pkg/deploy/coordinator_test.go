package deploy

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"github.com/ruslano69/caseimport/pkg/core/table"
	"github.com/ruslano69/caseimport/pkg/mapping"
	"github.com/ruslano69/caseimport/pkg/retry"
	"github.com/ruslano69/caseimport/pkg/sink"
	"github.com/ruslano69/caseimport/pkg/validation"
)

var allConfirmed = Confirmations{
	DataReviewed:       true,
	MappingsVerified:   true,
	SettingsConfirmed:  true,
	ImpactAcknowledged: true,
}

func makeSource(t *testing.T, headers []string, raws [][]string) *table.Source {
	t.Helper()
	rows := make([][]table.Cell, len(raws))
	for i, raw := range raws {
		cells := make([]table.Cell, len(raw))
		for j, v := range raw {
			cells[j] = table.ParseCell(v)
		}
		rows[i] = cells
	}
	src, err := table.NewSource(headers, rows, table.Metadata{FileName: "test.csv"})
	if err != nil {
		t.Fatalf("NewSource failed: %v", err)
	}
	return src
}

func makeMappings(cols map[string]string) []mapping.FieldMapping {
	var ms []mapping.FieldMapping
	for col, field := range cols {
		ms = append(ms, mapping.FieldMapping{
			SourceColumn: col,
			TargetTable:  "cases",
			TargetField:  field,
		})
	}
	return ms
}

func noRetry() retry.Config {
	cfg := retry.DefaultConfig()
	cfg.Enabled = false
	return cfg
}

func TestDeployHappyPath(t *testing.T) {
	ctx := context.Background()
	m := sink.NewMemorySink()
	c, err := NewCoordinator(m, noRetry(), zerolog.Nop())
	if err != nil {
		t.Fatalf("NewCoordinator failed: %v", err)
	}

	src := makeSource(t, []string{"name", "email"}, [][]string{
		{"John Smith", "john@example.com"},
		{"Jane Doe", "jane@example.com"},
		{"Bob Lee", "bob@example.com"},
	})
	mappings := []mapping.FieldMapping{
		{SourceColumn: "name", TargetTable: "cases", TargetField: "claimant_name"},
		{SourceColumn: "email", TargetTable: "cases", TargetField: "email"},
	}

	outcome, err := c.Deploy(ctx, src, mappings, &validation.Report{}, DefaultSettings(), allConfirmed)
	if err != nil {
		t.Fatalf("Deploy failed: %v", err)
	}
	if !outcome.Success {
		t.Error("expected successful outcome")
	}
	if outcome.RecordsDeployed != 3 {
		t.Errorf("expected 3 records deployed, got %d", outcome.RecordsDeployed)
	}
	if outcome.RollbackTriggered {
		t.Error("rollback must not trigger on success")
	}
	if got := m.RowCount("cases"); got != 3 {
		t.Errorf("expected 3 rows in sink, got %d", got)
	}
	if c.Progress() != 100 {
		t.Errorf("expected progress 100, got %d", c.Progress())
	}
}

func TestDeployAbortsWithoutConfirmations(t *testing.T) {
	ctx := context.Background()
	m := sink.NewMemorySink()
	c, _ := NewCoordinator(m, noRetry(), zerolog.Nop())

	src := makeSource(t, []string{"name"}, [][]string{{"John"}})
	mappings := makeMappings(map[string]string{"name": "claimant_name"})

	conf := allConfirmed
	conf.ImpactAcknowledged = false

	_, err := c.Deploy(ctx, src, mappings, &validation.Report{}, DefaultSettings(), conf)
	var abort *AbortError
	if !errors.As(err, &abort) {
		t.Fatalf("expected AbortError, got %v", err)
	}
	if got := m.RowCount("cases"); got != 0 {
		t.Errorf("aborted deploy must not write, got %d rows", got)
	}
}

func TestDeployAbortsOnBlockingErrors(t *testing.T) {
	ctx := context.Background()
	m := sink.NewMemorySink()
	c, _ := NewCoordinator(m, noRetry(), zerolog.Nop())

	src := makeSource(t, []string{"name"}, [][]string{{"John"}})
	mappings := makeMappings(map[string]string{"name": "claimant_name"})

	report := &validation.Report{
		Results: []validation.Result{
			{Field: "email", Errors: []string{"2 invalid email addresses"}},
		},
	}

	_, err := c.Deploy(ctx, src, mappings, report, DefaultSettings(), allConfirmed)
	var abort *AbortError
	if !errors.As(err, &abort) {
		t.Fatalf("expected AbortError for blocking validation errors, got %v", err)
	}
}

func TestDeployAbortsWithoutValidation(t *testing.T) {
	ctx := context.Background()
	m := sink.NewMemorySink()
	c, _ := NewCoordinator(m, noRetry(), zerolog.Nop())

	src := makeSource(t, []string{"name"}, [][]string{{"John"}})
	mappings := makeMappings(map[string]string{"name": "claimant_name"})

	_, err := c.Deploy(ctx, src, mappings, nil, DefaultSettings(), allConfirmed)
	var abort *AbortError
	if !errors.As(err, &abort) {
		t.Fatalf("expected AbortError for missing validation report, got %v", err)
	}
}

func TestDeployRollbackOnBatchFailure(t *testing.T) {
	ctx := context.Background()
	m := sink.NewMemorySink()
	m.FailOnBatch = 2
	c, _ := NewCoordinator(m, noRetry(), zerolog.Nop())

	src := makeSource(t, []string{"name"}, [][]string{{"a"}, {"b"}, {"c"}})
	mappings := makeMappings(map[string]string{"name": "claimant_name"})

	settings := DefaultSettings()
	settings.BatchSize = 1

	outcome, err := c.Deploy(ctx, src, mappings, &validation.Report{}, settings, allConfirmed)
	if err != nil {
		t.Fatalf("Deploy returned unexpected error: %v", err)
	}
	if outcome.Success {
		t.Error("expected failed outcome")
	}
	if !outcome.RollbackTriggered {
		t.Error("expected rollback to trigger")
	}
	if outcome.RecordsDeployed != 0 {
		t.Errorf("rolled-back run must report 0 records, got %d", outcome.RecordsDeployed)
	}
	if len(outcome.Failures) != 1 || outcome.Failures[0].Batch != 2 {
		t.Errorf("expected failure on batch 2, got %+v", outcome.Failures)
	}
	// Атомарность: строки батчей до точки сбоя не остаются в приемнике
	if got := m.RowCount("cases"); got != 0 {
		t.Errorf("expected 0 rows after rollback, got %d", got)
	}
}

func TestDeployPartialWithoutRollback(t *testing.T) {
	ctx := context.Background()
	m := sink.NewMemorySink()
	m.FailOnBatch = 2
	c, _ := NewCoordinator(m, noRetry(), zerolog.Nop())

	src := makeSource(t, []string{"name"}, [][]string{{"a"}, {"b"}, {"c"}})
	mappings := makeMappings(map[string]string{"name": "claimant_name"})

	settings := DefaultSettings()
	settings.BatchSize = 1
	settings.RollbackOnError = false

	outcome, err := c.Deploy(ctx, src, mappings, &validation.Report{}, settings, allConfirmed)
	if err != nil {
		t.Fatalf("Deploy returned unexpected error: %v", err)
	}
	if outcome.Success {
		t.Error("partial outcome must not be marked successful")
	}
	if outcome.RollbackTriggered {
		t.Error("rollback must not trigger when disabled")
	}
	if outcome.RecordsDeployed != 2 {
		t.Errorf("expected 2 records past the failed batch, got %d", outcome.RecordsDeployed)
	}
	if len(outcome.Failures) != 1 {
		t.Errorf("expected 1 enumerated failure, got %d", len(outcome.Failures))
	}
	if got := m.RowCount("cases"); got != 2 {
		t.Errorf("expected 2 rows in sink, got %d", got)
	}
}

func TestDeployReplaceExisting(t *testing.T) {
	ctx := context.Background()
	m := sink.NewMemorySink()
	if err := m.EnsureTable(ctx, "cases", []string{"claimant_name"}); err != nil {
		t.Fatalf("EnsureTable failed: %v", err)
	}
	old := sink.Batch{Table: "cases", Columns: []string{"claimant_name"}, Rows: [][]string{{"stale"}}, RunID: "old"}
	if err := m.WriteBatch(ctx, old); err != nil {
		t.Fatalf("seed write failed: %v", err)
	}

	c, _ := NewCoordinator(m, noRetry(), zerolog.Nop())
	src := makeSource(t, []string{"name"}, [][]string{{"fresh"}})
	mappings := makeMappings(map[string]string{"name": "claimant_name"})

	settings := DefaultSettings()
	settings.ReplaceExisting = true

	outcome, err := c.Deploy(ctx, src, mappings, &validation.Report{}, settings, allConfirmed)
	if err != nil {
		t.Fatalf("Deploy failed: %v", err)
	}
	if !outcome.Success {
		t.Fatal("expected success")
	}
	rows := m.TableRows("cases")
	if len(rows) != 1 || rows[0][0] != "fresh" {
		t.Errorf("replace mode must leave only deployed rows, got %v", rows)
	}
}

func TestDeployDuplicateSkip(t *testing.T) {
	ctx := context.Background()
	m := sink.NewMemorySink()
	c, _ := NewCoordinator(m, noRetry(), zerolog.Nop())

	src := makeSource(t, []string{"name"}, [][]string{{"John"}, {"John"}, {"Jane"}})
	mappings := makeMappings(map[string]string{"name": "claimant_name"})

	settings := DefaultSettings()
	settings.CheckDuplicates = true

	outcome, err := c.Deploy(ctx, src, mappings, &validation.Report{}, settings, allConfirmed)
	if err != nil {
		t.Fatalf("Deploy failed: %v", err)
	}
	if outcome.DuplicatesSkipped != 1 {
		t.Errorf("expected 1 duplicate skipped, got %d", outcome.DuplicatesSkipped)
	}
	if outcome.RecordsDeployed != 2 {
		t.Errorf("expected 2 records deployed, got %d", outcome.RecordsDeployed)
	}
}

func TestDeployUsesMergedRows(t *testing.T) {
	ctx := context.Background()
	m := sink.NewMemorySink()
	c, _ := NewCoordinator(m, noRetry(), zerolog.Nop())

	src := makeSource(t, []string{"name", "phone"}, [][]string{
		{"John", ""},
		{"John", "555-123-4567"},
	})
	mappings := []mapping.FieldMapping{
		{SourceColumn: "name", TargetTable: "cases", TargetField: "claimant_name"},
		{SourceColumn: "phone", TargetTable: "cases", TargetField: "phone"},
	}

	// Отчет после действия merge: вторая строка склеена в первую
	report := &validation.Report{
		KeptRows:   []int{0},
		MergedRows: map[int][]string{0: {"John", "555-123-4567"}},
	}

	outcome, err := c.Deploy(ctx, src, mappings, report, DefaultSettings(), allConfirmed)
	if err != nil {
		t.Fatalf("Deploy failed: %v", err)
	}
	if outcome.RecordsDeployed != 1 {
		t.Fatalf("expected 1 record, got %d", outcome.RecordsDeployed)
	}
	rows := m.TableRows("cases")
	if len(rows) != 1 || rows[0][1] != "555-123-4567" {
		t.Errorf("merged values must be deployed, got %v", rows)
	}
}

func TestDeployKeepsSourceValuesVerbatim(t *testing.T) {
	ctx := context.Background()
	m := sink.NewMemorySink()
	c, _ := NewCoordinator(m, noRetry(), zerolog.Nop())

	src := makeSource(t, []string{"name", "phone"}, [][]string{
		{"John", ""},
	})
	mappings := []mapping.FieldMapping{
		{SourceColumn: "name", TargetTable: "cases", TargetField: "claimant_name"},
		{SourceColumn: "phone", TargetTable: "cases", TargetField: "phone"},
	}

	outcome, err := c.Deploy(ctx, src, mappings, &validation.Report{}, DefaultSettings(), allConfirmed)
	if err != nil {
		t.Fatalf("Deploy failed: %v", err)
	}
	if outcome.RecordsDeployed != 1 {
		t.Fatalf("expected 1 record, got %d", outcome.RecordsDeployed)
	}
	// Подстановка значений по умолчанию живет только внутри валидации:
	// в приемник уходят исходные ячейки, пустые остаются пустыми
	rows := m.TableRows("cases")
	if len(rows) != 1 || rows[0][1] != "" {
		t.Errorf("empty source cell must reach the sink unchanged, got %v", rows)
	}
}

type blockingSink struct {
	*sink.MemorySink
	entered chan struct{}
	release chan struct{}
}

func (b *blockingSink) WriteBatch(ctx context.Context, batch sink.Batch) error {
	b.entered <- struct{}{}
	<-b.release
	return b.MemorySink.WriteBatch(ctx, batch)
}

func TestDeploySecondRunRejected(t *testing.T) {
	ctx := context.Background()
	bs := &blockingSink{
		MemorySink: sink.NewMemorySink(),
		entered:    make(chan struct{}),
		release:    make(chan struct{}),
	}
	c, _ := NewCoordinator(bs, noRetry(), zerolog.Nop())

	src := makeSource(t, []string{"name"}, [][]string{{"John"}})
	mappings := makeMappings(map[string]string{"name": "claimant_name"})

	done := make(chan error, 1)
	go func() {
		_, err := c.Deploy(ctx, src, mappings, &validation.Report{}, DefaultSettings(), allConfirmed)
		done <- err
	}()

	<-bs.entered

	_, err := c.Deploy(ctx, src, mappings, &validation.Report{}, DefaultSettings(), allConfirmed)
	if !errors.Is(err, ErrRunInProgress) {
		t.Errorf("expected ErrRunInProgress, got %v", err)
	}

	close(bs.release)
	if err := <-done; err != nil {
		t.Fatalf("first deploy failed: %v", err)
	}
}
