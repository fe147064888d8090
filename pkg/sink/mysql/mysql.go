// Package mysql - приемник деплоя на базе MySQL/MariaDB
package mysql

import (
	"fmt"
	"strings"

	_ "github.com/go-sql-driver/mysql"
	"github.com/ruslano69/caseimport/pkg/sink"
	"github.com/ruslano69/caseimport/pkg/sink/sqlbase"
)

// Регистрация приемника в глобальной фабрике
func init() {
	sink.Register("mysql", func() sink.Sink {
		return sqlbase.NewSQLSink("mysql", dialect{})
	})
}

type dialect struct{}

func (dialect) DriverName() string { return "mysql" }

func (dialect) Placeholder(n int) string { return "?" }

func (dialect) QuoteIdent(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

func (d dialect) CreateTableSQL(table string, columns []string) string {
	cols := make([]string, len(columns))
	for i, c := range columns {
		cols[i] = d.QuoteIdent(c) + " TEXT"
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)",
		d.QuoteIdent(table), strings.Join(cols, ", "))
}
