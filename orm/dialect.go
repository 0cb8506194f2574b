package orm

import "fmt"

// Dialect abstracts SQL differences between database engines.
type Dialect interface {
	// Placeholder returns the bind parameter placeholder for the given
	// 1-based index. MySQL and SQLite return "?" regardless of index;
	// PostgreSQL returns "$1", "$2", etc.
	Placeholder(index int) string

	// QuoteIdent quotes an identifier (table name, column name) to safely
	// handle SQL reserved words. MySQL uses backticks; PostgreSQL and
	// SQLite use double quotes.
	QuoteIdent(name string) string

	// UseReturning reports whether INSERT should use a RETURNING clause
	// to retrieve the auto-generated primary key (PostgreSQL) rather
	// than relying on LastInsertId (MySQL, SQLite).
	UseReturning() bool

	// ReturningClause returns the RETURNING clause appended to INSERT
	// statements. Returns an empty string for dialects that do not
	// need it.
	ReturningClause(pk string) string

	// ColumnSQL renders a column definition for CREATE TABLE / ALTER
	// TABLE from an engine-neutral type name ("integer", "text",
	// "real", "boolean"). pk selects the auto-increment primary key
	// form.
	ColumnSQL(name, typ string, pk bool) string
}

// MySQL is the Dialect for MySQL / MariaDB.
var MySQL Dialect = mysqlDialect{}

// PostgreSQL is the Dialect for PostgreSQL.
var PostgreSQL Dialect = postgresDialect{}

// SQLite is the Dialect for SQLite.
var SQLite Dialect = sqliteDialect{}

type mysqlDialect struct{}

func (mysqlDialect) Placeholder(_ int) string        { return "?" }
func (mysqlDialect) QuoteIdent(name string) string   { return "`" + name + "`" }
func (mysqlDialect) UseReturning() bool              { return false }
func (mysqlDialect) ReturningClause(_ string) string { return "" }

func (d mysqlDialect) ColumnSQL(name, typ string, pk bool) string {
	if pk {
		return d.QuoteIdent(name) + " INT AUTO_INCREMENT PRIMARY KEY"
	}
	types := map[string]string{
		"integer": "INT",
		"text":    "VARCHAR(255)",
		"real":    "DOUBLE",
		"boolean": "TINYINT(1)",
	}
	return d.QuoteIdent(name) + " " + types[typ]
}

type postgresDialect struct{}

func (postgresDialect) Placeholder(index int) string     { return fmt.Sprintf("$%d", index) }
func (postgresDialect) QuoteIdent(name string) string    { return `"` + name + `"` }
func (postgresDialect) UseReturning() bool               { return true }
func (postgresDialect) ReturningClause(pk string) string { return ` RETURNING "` + pk + `"` }

func (d postgresDialect) ColumnSQL(name, typ string, pk bool) string {
	if pk {
		return d.QuoteIdent(name) + " SERIAL PRIMARY KEY"
	}
	types := map[string]string{
		"integer": "INTEGER",
		"text":    "TEXT",
		"real":    "DOUBLE PRECISION",
		"boolean": "BOOLEAN",
	}
	return d.QuoteIdent(name) + " " + types[typ]
}

type sqliteDialect struct{}

func (sqliteDialect) Placeholder(_ int) string        { return "?" }
func (sqliteDialect) QuoteIdent(name string) string   { return `"` + name + `"` }
func (sqliteDialect) UseReturning() bool              { return false }
func (sqliteDialect) ReturningClause(_ string) string { return "" }

func (d sqliteDialect) ColumnSQL(name, typ string, pk bool) string {
	if pk {
		return d.QuoteIdent(name) + " INTEGER PRIMARY KEY AUTOINCREMENT"
	}
	types := map[string]string{
		"integer": "INTEGER",
		"text":    "TEXT",
		"real":    "REAL",
		"boolean": "INTEGER",
	}
	return d.QuoteIdent(name) + " " + types[typ]
}
