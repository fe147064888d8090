// Package sqlite - приемник деплоя на базе SQLite (драйвер modernc.org/sqlite, без cgo)
package sqlite

import (
	"fmt"
	"strings"

	"github.com/ruslano69/caseimport/pkg/sink"
	"github.com/ruslano69/caseimport/pkg/sink/sqlbase"
	_ "modernc.org/sqlite"
)

// Регистрация приемника в глобальной фабрике
func init() {
	sink.Register("sqlite", func() sink.Sink {
		return sqlbase.NewSQLSink("sqlite", dialect{})
	})
}

type dialect struct{}

func (dialect) DriverName() string { return "sqlite" }

func (dialect) Placeholder(n int) string { return "?" }

func (dialect) QuoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func (d dialect) CreateTableSQL(table string, columns []string) string {
	cols := make([]string, len(columns))
	for i, c := range columns {
		cols[i] = d.QuoteIdent(c) + " TEXT"
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)",
		d.QuoteIdent(table), strings.Join(cols, ", "))
}
