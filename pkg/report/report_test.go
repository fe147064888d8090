package report

import (
	"bytes"
	"encoding/csv"
	"strings"
	"testing"
	"time"

	"github.com/ruslano69/caseimport/pkg/core/table"
	"github.com/ruslano69/caseimport/pkg/mapping"
	"github.com/ruslano69/caseimport/pkg/validation"
)

func testSource(t *testing.T) *table.Source {
	t.Helper()
	rows := [][]table.Cell{
		{table.ParseCell("John"), table.ParseCell("john@example.com")},
		{table.ParseCell("Jane"), table.ParseCell("jane@example.com")},
	}
	src, err := table.NewSource([]string{"name", "email"}, rows, table.Metadata{
		FileName:   "cases.csv",
		FileSize:   2048,
		UploadedAt: time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("NewSource failed: %v", err)
	}
	return src
}

func TestWriteReportFormat(t *testing.T) {
	src := testSource(t)
	mappings := []mapping.FieldMapping{
		{SourceColumn: "name", TargetTable: "cases", TargetField: "claimant_name", Confidence: 0.95},
		{SourceColumn: "email", TargetTable: "cases", TargetField: "email", Confidence: 1.0},
	}
	vr := &validation.Report{
		Results: []validation.Result{
			{Field: "claimant_name", Records: 2, ValidRecords: 2},
			{Field: "email", Records: 2, Errors: []string{"1 invalid email"}, ValidRecords: 1},
		},
		RowsExamined: 2,
	}

	var buf bytes.Buffer
	if err := Write(&buf, src, mappings, vr); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	out := buf.String()
	for _, want := range []string{
		"File Name,cases.csv",
		"Total Rows,2",
		"Source Column,Target Table,Target Field,Confidence",
		"name,cases,claimant_name,0.95",
		"Field,Records,Errors,Warnings",
		"email,2,1,0",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("report missing line %q\nreport:\n%s", want, out)
		}
	}

	// Весь отчет должен быть корректным CSV (строки разной ширины)
	r := csv.NewReader(strings.NewReader(out))
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		t.Fatalf("report is not parseable CSV: %v", err)
	}
	if len(records) < 8 {
		t.Errorf("expected at least 8 CSV records, got %d", len(records))
	}
}

func TestWriteReportWithoutValidation(t *testing.T) {
	src := testSource(t)
	mappings := []mapping.FieldMapping{
		{SourceColumn: "name"},
	}

	var buf bytes.Buffer
	if err := Write(&buf, src, mappings, nil); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	out := buf.String()
	if !strings.Contains(out, "Mapped Columns,0 of 1") {
		t.Errorf("unmapped column must be counted as unmapped:\n%s", out)
	}
	if !strings.Contains(out, "Field,Records,Errors,Warnings") {
		t.Error("validation header must be present even without results")
	}
}
