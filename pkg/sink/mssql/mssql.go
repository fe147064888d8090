// Package mssql - приемник деплоя на базе MS SQL Server
package mssql

import (
	"fmt"
	"strings"

	_ "github.com/denisenkom/go-mssqldb"
	"github.com/ruslano69/caseimport/pkg/sink"
	"github.com/ruslano69/caseimport/pkg/sink/sqlbase"
)

// Регистрация приемника в глобальной фабрике
func init() {
	sink.Register("mssql", func() sink.Sink {
		return sqlbase.NewSQLSink("mssql", dialect{})
	})
}

type dialect struct{}

func (dialect) DriverName() string { return "sqlserver" }

func (dialect) Placeholder(n int) string { return fmt.Sprintf("@p%d", n) }

func (dialect) QuoteIdent(name string) string {
	return "[" + strings.ReplaceAll(name, "]", "]]") + "]"
}

// CreateTableSQL: в T-SQL нет CREATE TABLE IF NOT EXISTS,
// используется проверка через OBJECT_ID
func (d dialect) CreateTableSQL(table string, columns []string) string {
	cols := make([]string, len(columns))
	for i, c := range columns {
		cols[i] = d.QuoteIdent(c) + " NVARCHAR(MAX)"
	}
	return fmt.Sprintf("IF OBJECT_ID(N'%s', N'U') IS NULL CREATE TABLE %s (%s)",
		strings.ReplaceAll(table, "'", "''"),
		d.QuoteIdent(table), strings.Join(cols, ", "))
}
