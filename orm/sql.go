package orm

import (
	"database/sql"
	"fmt"
	"strings"
)

// Statement building for the resolver's record queries. Statements are
// written with ? placeholders and rewritten per dialect before execution.

// quoteColumns joins column names with dialect-aware quoting.
func quoteColumns(d Dialect, cols []string) string {
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = d.QuoteIdent(c)
	}
	return strings.Join(quoted, ", ")
}

// selectStmt builds a SELECT over all of the table's columns. where and
// orderBy may be empty.
func selectStmt(d Dialect, table string, columns []string, where, orderBy string) string {
	var b strings.Builder
	b.WriteString("SELECT ")
	b.WriteString(quoteColumns(d, columns))
	b.WriteString(" FROM ")
	b.WriteString(d.QuoteIdent(table))
	if where != "" {
		b.WriteString(" WHERE ")
		b.WriteString(where)
	}
	if orderBy != "" {
		b.WriteString(" ORDER BY ")
		b.WriteString(orderBy)
	}
	return b.String()
}

// countStmt builds a SELECT COUNT(*). where may be empty.
func countStmt(d Dialect, table, where string) string {
	var b strings.Builder
	b.WriteString("SELECT COUNT(*) FROM ")
	b.WriteString(d.QuoteIdent(table))
	if where != "" {
		b.WriteString(" WHERE ")
		b.WriteString(where)
	}
	return b.String()
}

func insertStmt(d Dialect, table string, columns []string) string {
	placeholders := make([]string, len(columns))
	for i := range placeholders {
		placeholders[i] = "?"
	}
	return fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s)",
		d.QuoteIdent(table),
		quoteColumns(d, columns),
		strings.Join(placeholders, ", "),
	)
}

func updateStmt(d Dialect, table string, setCols []string, pk string) string {
	sets := make([]string, len(setCols))
	for i, col := range setCols {
		sets[i] = d.QuoteIdent(col) + " = ?"
	}
	return fmt.Sprintf(
		"UPDATE %s SET %s WHERE %s = ?",
		d.QuoteIdent(table),
		strings.Join(sets, ", "),
		d.QuoteIdent(pk),
	)
}

// inClause expands "col IN (?, ?, …)" for n values. n must be positive;
// callers short-circuit the empty case before building a statement.
func inClause(d Dialect, column string, n int) string {
	placeholders := make([]string, n)
	for i := range placeholders {
		placeholders[i] = "?"
	}
	return d.QuoteIdent(column) + " IN (" + strings.Join(placeholders, ", ") + ")"
}

// rewrite converts ? placeholders to dialect-specific placeholders.
// No-op for dialects that bind with ? (MySQL, SQLite); for PostgreSQL,
// ? becomes $1, $2, etc.
func rewrite(d Dialect, query string) string {
	if d.Placeholder(1) == "?" {
		return query
	}
	var b strings.Builder
	b.Grow(len(query))
	idx := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			b.WriteString(d.Placeholder(idx))
			idx++
		} else {
			b.WriteByte(query[i])
		}
	}
	return b.String()
}

// scanRecord scans the current row into a fresh persisted Record of typ,
// mapping columns positionally via rows.Columns. Driver []byte values are
// normalized to string so attribute comparisons behave across engines.
func scanRecord(typ *Type, rows *sql.Rows) (*Record, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err //nolint:wrapcheck // pass through
	}
	dest := make([]any, len(cols))
	for i := range dest {
		dest[i] = new(any)
	}
	if err := rows.Scan(dest...); err != nil {
		return nil, err //nolint:wrapcheck // pass through
	}
	values := make(map[string]any, len(cols))
	for i, col := range cols {
		v := *dest[i].(*any)
		if b, ok := v.([]byte); ok {
			v = string(b)
		}
		values[col] = v
	}
	return &Record{typ: typ, values: values, persisted: true}, nil
}
