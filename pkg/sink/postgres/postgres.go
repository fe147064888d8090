// Package postgres - приемник деплоя на базе PostgreSQL (драйвер pgx через database/sql)
package postgres

import (
	"fmt"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/ruslano69/caseimport/pkg/sink"
	"github.com/ruslano69/caseimport/pkg/sink/sqlbase"
)

// Регистрация приемника в глобальной фабрике
func init() {
	sink.Register("postgres", func() sink.Sink {
		return sqlbase.NewSQLSink("postgres", dialect{})
	})
}

type dialect struct{}

func (dialect) DriverName() string { return "pgx" }

func (dialect) Placeholder(n int) string { return fmt.Sprintf("$%d", n) }

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
