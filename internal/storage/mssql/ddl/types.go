// Package ddl contains MSSQL-specific helpers for generating DDL.
//
// It maps logical column types into SQL Server types. Text maps to a bounded
// NVARCHAR so report group keys can sit under a UNIQUE constraint; SQL Server
// rejects index keys over NVARCHAR(MAX).
package ddl

import (
	"strings"

	"promoetl/internal/table"
)

// MapType maps a logical column type into a SQL Server column type.
func MapType(t table.Type) string {
	switch t {
	case table.Integer:
		return "BIGINT"
	case table.Real:
		return "FLOAT"
	case table.Boolean:
		return "BIT"
	case table.Timestamp:
		return "DATETIME2"
	default:
		return "NVARCHAR(400)"
	}
}

// ParseType maps an INFORMATION_SCHEMA.COLUMNS.DATA_TYPE value back onto a
// logical type. Unknown types are read as text.
func ParseType(dataType string) table.Type {
	switch strings.ToLower(strings.TrimSpace(dataType)) {
	case "tinyint", "smallint", "int", "bigint":
		return table.Integer
	case "float", "real", "decimal", "numeric", "money", "smallmoney":
		return table.Real
	case "bit":
		return table.Boolean
	case "date", "datetime", "datetime2", "smalldatetime", "datetimeoffset":
		return table.Timestamp
	default:
		return table.Text
	}
}
