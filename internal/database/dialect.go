package database

import (
	"fmt"
	"strings"

	"github.com/trinistocks/pipeline/internal/domain"
)

// Dialect selects the SQL flavour of the store.
type Dialect string

const (
	SQLite Dialect = "sqlite"
	MySQL  Dialect = "mysql"
)

// MaxBindParams caps the placeholders in one statement. SQLite allows
// 32766 and MySQL 65535; staying under both lets batches be sized once.
const MaxBindParams = 30000

// DialectFor maps a database/sql driver name to its dialect.
func DialectFor(driverName string) (Dialect, error) {
	switch driverName {
	case "sqlite", "sqlite3":
		return SQLite, nil
	case "mysql":
		return MySQL, nil
	}
	return "", fmt.Errorf("unsupported database driver %q", driverName)
}

// Quote quotes an identifier.
func (d Dialect) Quote(ident string) string {
	if d == MySQL {
		return "`" + ident + "`"
	}
	return `"` + ident + `"`
}

// UpsertSQL builds a named insert-or-update statement for a table. Named
// parameters match the columns, so sqlx can bind a record slice to it and
// expand the VALUES group once per record.
func (d Dialect) UpsertSQL(t domain.TableSpec) string {
	var b strings.Builder

	quoted := make([]string, len(t.Columns))
	named := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		quoted[i] = d.Quote(c)
		named[i] = ":" + c
	}

	fmt.Fprintf(&b, "INSERT INTO %s (%s) VALUES (%s)",
		d.Quote(t.Name), strings.Join(quoted, ", "), strings.Join(named, ", "))

	update := t.UpdateColumns()
	switch d {
	case MySQL:
		// keys re-assign themselves when there is nothing else to update
		if len(update) == 0 {
			update = t.Key
		}
		sets := make([]string, len(update))
		for i, c := range update {
			sets[i] = fmt.Sprintf("%s = new.%s", d.Quote(c), d.Quote(c))
		}
		fmt.Fprintf(&b, " AS new ON DUPLICATE KEY UPDATE %s", strings.Join(sets, ", "))
	default:
		keys := make([]string, len(t.Key))
		for i, k := range t.Key {
			keys[i] = d.Quote(k)
		}
		if len(update) == 0 {
			fmt.Fprintf(&b, " ON CONFLICT (%s) DO NOTHING", strings.Join(keys, ", "))
			break
		}
		sets := make([]string, len(update))
		for i, c := range update {
			sets[i] = fmt.Sprintf("%s = excluded.%s", d.Quote(c), d.Quote(c))
		}
		fmt.Fprintf(&b, " ON CONFLICT (%s) DO UPDATE SET %s", strings.Join(keys, ", "), strings.Join(sets, ", "))
	}
	return b.String()
}

// BatchSize returns how many rows of a table fit in one statement.
func BatchSize(t domain.TableSpec) int {
	if len(t.Columns) == 0 {
		return 1
	}
	n := MaxBindParams / len(t.Columns)
	if n < 1 {
		return 1
	}
	return n
}
