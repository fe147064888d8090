// Package report формирует текстовый отчет прогона импорта:
// блок меток с метаданными файла, таблица привязок колонок
// и таблица результатов валидации. Отчет выгружается как CSV.
package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/ruslano69/caseimport/pkg/core/table"
	"github.com/ruslano69/caseimport/pkg/mapping"
	"github.com/ruslano69/caseimport/pkg/validation"
)

// Write выгружает отчет прогона в w.
// Формат: блок меток, затем заголовок
// "Source Column,Target Table,Target Field,Confidence" со строкой на
// привязку, затем "Field,Records,Errors,Warnings" со строкой на результат.
func Write(w io.Writer, src *table.Source, mappings []mapping.FieldMapping, vr *validation.Report) error {
	cw := csv.NewWriter(w)

	meta := src.Meta()
	labeled := [][]string{
		{"Import Report"},
		{"File Name", meta.FileName},
		{"File Size", fmt.Sprintf("%d", meta.FileSize)},
		{"Uploaded At", formatTime(meta.UploadedAt)},
		{"Total Rows", fmt.Sprintf("%d", src.TotalRows())},
		{"Mapped Columns", fmt.Sprintf("%d of %d", mapping.MappedCount(mappings), len(mappings))},
	}
	if vr != nil {
		labeled = append(labeled,
			[]string{"Rows Examined", fmt.Sprintf("%d", vr.RowsExamined)},
			[]string{"Blocking Errors", fmt.Sprintf("%d", vr.BlockingErrors())},
		)
		if vr.Sampled {
			labeled = append(labeled, []string{"Sampled", "yes"})
		}
		if vr.Cutoff {
			labeled = append(labeled, []string{"Error Cutoff Reached", "yes"})
		}
	}
	for _, line := range labeled {
		if err := cw.Write(line); err != nil {
			return fmt.Errorf("failed to write report line: %w", err)
		}
	}

	if err := cw.Write([]string{"Source Column", "Target Table", "Target Field", "Confidence"}); err != nil {
		return fmt.Errorf("failed to write mapping header: %w", err)
	}
	for _, m := range mappings {
		row := []string{m.SourceColumn, m.TargetTable, m.TargetField, fmt.Sprintf("%.2f", m.Confidence)}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("failed to write mapping row: %w", err)
		}
	}

	if err := cw.Write([]string{"Field", "Records", "Errors", "Warnings"}); err != nil {
		return fmt.Errorf("failed to write validation header: %w", err)
	}
	if vr != nil {
		for _, r := range vr.Results {
			row := []string{
				r.Field,
				fmt.Sprintf("%d", r.Records),
				fmt.Sprintf("%d", len(r.Errors)),
				fmt.Sprintf("%d", len(r.Warnings)),
			}
			if err := cw.Write(row); err != nil {
				return fmt.Errorf("failed to write validation row: %w", err)
			}
		}
	}

	cw.Flush()
	return cw.Error()
}

// WriteFile выгружает отчет в файл
func WriteFile(path string, src *table.Source, mappings []mapping.FieldMapping, vr *validation.Report) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create report file: %w", err)
	}
	if err := Write(f, src, mappings, vr); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.RFC3339)
}
