// Package ingest loads delimited text and spreadsheet files into a
// table.Source. The pipeline downstream only sees {headers, rows,
// totalRows} and does not care about the original file format.
package ingest

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/ruslano69/caseimport/pkg/core/table"
)

// FromFile определяет формат по расширению и загружает файл
func FromFile(path string) (*table.Source, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx", ".xlsm":
		return FromXLSX(path, "")
	default:
		return FromCSVFile(path)
	}
}

// FromCSVFile загружает CSV файл с диска
func FromCSVFile(path string) (*table.Source, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %q: %w", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat %q: %w", path, err)
	}

	return FromCSV(f, table.Metadata{
		FileName:   filepath.Base(path),
		FileSize:   info.Size(),
		UploadedAt: time.Now().UTC(),
	})
}

// FromCSV читает CSV из reader и строит типизированный источник
func FromCSV(r io.Reader, meta table.Metadata) (*table.Source, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1 // длину строк проверяем сами, с номером строки в ошибке

	header, err := reader.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("file is empty")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	headers := make([]string, len(header))
	for i, h := range header {
		headers[i] = strings.TrimSpace(h)
	}

	var rows [][]table.Cell
	line := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read row %d: %w", line, err)
		}
		line++

		if len(record) != len(headers) {
			return nil, fmt.Errorf("row %d has %d values, expected %d", line, len(record), len(headers))
		}

		row := make([]table.Cell, len(record))
		for i, raw := range record {
			row[i] = table.ParseCell(raw)
		}
		rows = append(rows, row)
	}

	return table.NewSource(headers, rows, meta)
}

// FromXLSX загружает лист Excel файла.
// Если sheet пустой — берется первый лист книги.
func FromXLSX(path string, sheet string) (*table.Source, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %q: %w", path, err)
	}
	defer f.Close()

	if sheet == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return nil, fmt.Errorf("workbook has no sheets")
		}
		sheet = sheets[0]
	}

	raw, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %q: %w", sheet, err)
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("sheet %q is empty", sheet)
	}

	headers := make([]string, len(raw[0]))
	for i, h := range raw[0] {
		headers[i] = strings.TrimSpace(h)
	}

	var size int64
	if info, err := os.Stat(path); err == nil {
		size = info.Size()
	}

	rows := make([][]table.Cell, 0, len(raw)-1)
	for _, record := range raw[1:] {
		row := make([]table.Cell, len(headers))
		for i := range headers {
			// GetRows обрезает хвостовые пустые ячейки — дополняем до ширины заголовка
			value := ""
			if i < len(record) {
				value = record[i]
			}
			row[i] = table.ParseCell(value)
		}
		rows = append(rows, row)
	}

	return table.NewSource(headers, rows, table.Metadata{
		FileName:   filepath.Base(path),
		FileSize:   size,
		UploadedAt: time.Now().UTC(),
	})
}
