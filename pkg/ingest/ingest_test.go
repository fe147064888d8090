package ingest

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"

	"github.com/ruslano69/caseimport/pkg/core/table"
)

func TestFromCSV(t *testing.T) {
	csv := `case_number,claimant_name,zip_code,filed_date
CA-2024-001,John Smith,90210,2024-03-15
CA-2024-002,Jane Doe,00501,2024-04-01
`
	src, err := FromCSV(strings.NewReader(csv), table.Metadata{FileName: "cases.csv"})
	if err != nil {
		t.Fatalf("FromCSV failed: %v", err)
	}

	if src.TotalRows() != 2 {
		t.Errorf("TotalRows = %d, want 2", src.TotalRows())
	}
	headers := src.Headers()
	if len(headers) != 4 || headers[2] != "zip_code" {
		t.Errorf("unexpected headers: %v", headers)
	}

	// типизация происходит при загрузке
	row := src.Row(0)
	if row[0].Kind != table.KindText {
		t.Errorf("case_number kind = %v, want text", row[0].Kind)
	}
	if row[3].Kind != table.KindDate {
		t.Errorf("filed_date kind = %v, want date", row[3].Kind)
	}
	// ведущий ноль — текст, не число
	if src.Row(1)[2].Kind != table.KindText {
		t.Errorf("leading-zero zip kind = %v, want text", src.Row(1)[2].Kind)
	}
}

func TestFromCSVHeaderTrimmed(t *testing.T) {
	src, err := FromCSV(strings.NewReader(" name , email \na,b\n"), table.Metadata{})
	if err != nil {
		t.Fatalf("FromCSV failed: %v", err)
	}
	headers := src.Headers()
	if headers[0] != "name" || headers[1] != "email" {
		t.Errorf("headers must be trimmed, got %v", headers)
	}
}

func TestFromCSVArityMismatch(t *testing.T) {
	_, err := FromCSV(strings.NewReader("a,b\n1,2\n3\n"), table.Metadata{})
	if err == nil {
		t.Fatal("short row must be rejected")
	}
	if !strings.Contains(err.Error(), "row 3") {
		t.Errorf("error must name the offending row: %v", err)
	}
}

func TestFromCSVEmpty(t *testing.T) {
	if _, err := FromCSV(strings.NewReader(""), table.Metadata{}); err == nil {
		t.Error("empty file must be rejected")
	}
}

func TestFromCSVFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cases.csv")
	if err := os.WriteFile(path, []byte("name\nJohn\n"), 0o644); err != nil {
		t.Fatalf("write temp file: %v", err)
	}

	src, err := FromCSVFile(path)
	if err != nil {
		t.Fatalf("FromCSVFile failed: %v", err)
	}
	meta := src.Meta()
	if meta.FileName != "cases.csv" {
		t.Errorf("FileName = %q, want cases.csv", meta.FileName)
	}
	if meta.FileSize == 0 {
		t.Error("FileSize must be populated")
	}
	if meta.UploadedAt.IsZero() {
		t.Error("UploadedAt must be populated")
	}
}

func TestFromXLSX(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cases.xlsx")

	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	rows := [][]interface{}{
		{"case_number", "claimant_name", "email"},
		{"CA-2024-001", "John Smith", "john@example.com"},
		{"CA-2024-002", "Jane Doe", ""}, // хвостовая пустая ячейка
	}
	for i, row := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			t.Fatalf("SetSheetRow: %v", err)
		}
	}
	if err := f.SaveAs(path); err != nil {
		t.Fatalf("SaveAs: %v", err)
	}
	f.Close()

	src, err := FromXLSX(path, "")
	if err != nil {
		t.Fatalf("FromXLSX failed: %v", err)
	}
	if src.TotalRows() != 2 {
		t.Errorf("TotalRows = %d, want 2", src.TotalRows())
	}
	// обрезанный хвост дополняется до ширины заголовка
	if got := src.Row(1)[2]; got.Kind != table.KindNull {
		t.Errorf("padded cell kind = %v, want null", got.Kind)
	}
}

func TestFromFileDispatch(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cases.csv")
	if err := os.WriteFile(path, []byte("name\nJohn\n"), 0o644); err != nil {
		t.Fatalf("write temp file: %v", err)
	}

	src, err := FromFile(path)
	if err != nil {
		t.Fatalf("FromFile failed: %v", err)
	}
	if src.TotalRows() != 1 {
		t.Errorf("TotalRows = %d, want 1", src.TotalRows())
	}
}
