package migrate

import (
	"fmt"
	"io"
)

// Schema is the in-memory snapshot of the table layout produced by
// interpreting applied migrations. It is mutated only through Operation
// application and implements orm.SchemaSource for the registry.
type Schema struct {
	tables map[string][]Column
	order  []string
}

// NewSchema returns an empty schema.
func NewSchema() *Schema {
	return &Schema{tables: make(map[string][]Column)}
}

// Apply interprets one operation against the snapshot, failing on
// conflicts (duplicate table, missing table, duplicate column).
func (s *Schema) Apply(op Operation) error {
	return op.apply(s)
}

// HasTable reports whether the schema contains the named table.
func (s *Schema) HasTable(table string) bool {
	_, ok := s.tables[table]
	return ok
}

// Columns returns the table's column names in definition order, or nil
// when the table does not exist.
func (s *Schema) Columns(table string) []string {
	cols, ok := s.tables[table]
	if !ok {
		return nil
	}
	names := make([]string, len(cols))
	for i, c := range cols {
		names[i] = c.Name
	}
	return names
}

// Tables returns table names in creation order.
func (s *Schema) Tables() []string {
	return append([]string(nil), s.order...)
}

// Dump writes a human-readable snapshot of the table/column layout.
// Purely informational; nothing consumes it.
func (s *Schema) Dump(w io.Writer) error {
	for i, table := range s.order {
		if i > 0 {
			if _, err := fmt.Fprintln(w); err != nil {
				return err //nolint:wrapcheck // pass through
			}
		}
		if _, err := fmt.Fprintf(w, "table %s\n", table); err != nil {
			return err //nolint:wrapcheck // pass through
		}
		width := 0
		for _, c := range s.tables[table] {
			if len(c.Name) > width {
				width = len(c.Name)
			}
		}
		for _, c := range s.tables[table] {
			if _, err := fmt.Fprintf(w, "  %-*s  %s\n", width, c.Name, c.Type); err != nil {
				return err //nolint:wrapcheck // pass through
			}
		}
	}
	return nil
}

func (s *Schema) createTable(table string, cols []Column) error {
	if s.HasTable(table) {
		return fmt.Errorf("table %q already exists", table)
	}
	s.tables[table] = append([]Column(nil), cols...)
	s.order = append(s.order, table)
	return nil
}

func (s *Schema) addColumn(table string, col Column) error {
	cols, ok := s.tables[table]
	if !ok {
		return fmt.Errorf("table %q does not exist", table)
	}
	for _, c := range cols {
		if c.Name == col.Name {
			return fmt.Errorf("column %q already exists on %q", col.Name, table)
		}
	}
	s.tables[table] = append(cols, col)
	return nil
}

func (s *Schema) dropTable(table string) error {
	if !s.HasTable(table) {
		return fmt.Errorf("table %q does not exist", table)
	}
	delete(s.tables, table)
	for i, name := range s.order {
		if name == table {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return nil
}
