// Package migrate applies versioned, forward-only schema migrations and
// tracks them in a ledger table so re-runs are idempotent. Schema changes
// are declared as data (Operation values) and rendered to dialect-specific
// SQL by a small interpreter; there are no down-migrations.
package migrate

import (
	"fmt"
	"strings"

	"github.com/tunelab/playlister/orm"
)

// ColumnType is an engine-neutral column type, mapped to concrete SQL by
// the dialect.
type ColumnType string

const (
	Integer ColumnType = "integer"
	Text    ColumnType = "text"
	Real    ColumnType = "real"
	Boolean ColumnType = "boolean"
)

// Column is one (name, type) pair of a table definition.
type Column struct {
	Name string
	Type ColumnType
}

// Migration is a single versioned schema change step. Versions determine
// apply order and must be strictly ascending across a migration set.
type Migration struct {
	Version int
	Name    string
	Ops     []Operation
}

// Operation is one declarative schema change. Variants: CreateTable,
// AddColumn, DropTable.
type Operation interface {
	// SQL renders the operation for the given dialect.
	SQL(d orm.Dialect) string

	// apply mutates the in-memory schema snapshot, failing on conflicts
	// (duplicate table, missing table, duplicate column).
	apply(s *Schema) error
}

// CreateTable creates a table. An auto-increment integer primary key
// column "id" is always added first; Columns lists the rest.
type CreateTable struct {
	Table   string
	Columns []Column
}

func (o CreateTable) SQL(d orm.Dialect) string {
	defs := make([]string, 0, len(o.Columns)+1)
	defs = append(defs, d.ColumnSQL("id", "integer", true))
	for _, c := range o.Columns {
		defs = append(defs, d.ColumnSQL(c.Name, string(c.Type), false))
	}
	return fmt.Sprintf("CREATE TABLE %s (%s)", d.QuoteIdent(o.Table), strings.Join(defs, ", "))
}

func (o CreateTable) apply(s *Schema) error {
	cols := append([]Column{{Name: "id", Type: Integer}}, o.Columns...)
	return s.createTable(o.Table, cols)
}

// AddColumn adds a single column to an existing table.
type AddColumn struct {
	Table  string
	Column Column
}

func (o AddColumn) SQL(d orm.Dialect) string {
	return fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s",
		d.QuoteIdent(o.Table),
		d.ColumnSQL(o.Column.Name, string(o.Column.Type), false),
	)
}

func (o AddColumn) apply(s *Schema) error {
	return s.addColumn(o.Table, o.Column)
}

// DropTable removes a table and its data.
type DropTable struct {
	Table string
}

func (o DropTable) SQL(d orm.Dialect) string {
	return "DROP TABLE " + d.QuoteIdent(o.Table)
}

func (o DropTable) apply(s *Schema) error {
	return s.dropTable(o.Table)
}
