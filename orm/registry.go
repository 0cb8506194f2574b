package orm

import (
	"fmt"

	"github.com/tunelab/playlister/internal/naming"
)

// SchemaSource exposes the table layout the registry binds record types to.
// Implemented by migrate.Schema. Must not change while a Registry built on
// it is in use.
type SchemaSource interface {
	HasTable(table string) bool
	Columns(table string) []string
}

// Registry maps record type names to their tables and declared
// associations. It is built once at startup and read-only thereafter;
// concurrent readers are safe as long as no migration is mutating the
// underlying schema.
type Registry struct {
	src   SchemaSource
	types map[string]*Type
}

// Type is a registered record type: a name, a table, a primary key and a
// set of declared associations.
type Type struct {
	Name  string
	Table string
	PK    string

	reg    *Registry
	assocs map[string]Association
}

// NewRegistry creates a Registry bound to the given schema.
func NewRegistry(src SchemaSource) *Registry {
	return &Registry{src: src, types: make(map[string]*Type)}
}

// TypeOption customizes a type registration.
type TypeOption func(*Type)

// WithTable overrides the conventionally derived table name.
func WithTable(table string) TypeOption {
	return func(t *Type) { t.Table = table }
}

// Register adds a record type. The table name is derived from the type
// name ("Song" → "songs") unless overridden with WithTable; the primary
// key is always "id".
func (r *Registry) Register(name string, opts ...TypeOption) (*Type, error) {
	if _, ok := r.types[name]; ok {
		return nil, fmt.Errorf("orm: type %q already registered", name)
	}
	t := &Type{
		Name:   name,
		Table:  naming.TableName(name),
		PK:     "id",
		reg:    r,
		assocs: make(map[string]Association),
	}
	for _, opt := range opts {
		opt(t)
	}
	r.types[name] = t
	return t, nil
}

// Type returns the registered type with the given name.
func (r *Registry) Type(name string) (*Type, bool) {
	t, ok := r.types[name]
	return t, ok
}

// Declare attaches associations to the type. Foreign key defaults that
// depend on the owning type are filled in here: a has-many foreign key
// defaults to <owner>_id, a belongs-to foreign key to <target>_id.
func (t *Type) Declare(assocs ...Association) error {
	for _, a := range assocs {
		if a.Name == "" {
			return fmt.Errorf("orm: association on %s has no name", t.Name)
		}
		if _, ok := t.assocs[a.Name]; ok {
			return fmt.Errorf("orm: association %q already declared on %s", a.Name, t.Name)
		}
		if a.ForeignKey == "" {
			switch a.Kind {
			case KindBelongsTo:
				a.ForeignKey = naming.ForeignKey(a.Target)
			case KindHasMany:
				a.ForeignKey = naming.ForeignKey(t.Name)
			}
		}
		t.assocs[a.Name] = a
	}
	return nil
}

// Association returns the declared association with the given name.
func (t *Type) Association(name string) (Association, bool) {
	a, ok := t.assocs[name]
	return a, ok
}

// New creates an unpersisted record of this type with the given attributes.
func (t *Type) New(attrs map[string]any) *Record {
	values := make(map[string]any, len(attrs))
	for k, v := range attrs {
		values[k] = v
	}
	return &Record{typ: t, values: values}
}

// hasTable reports whether the type's table exists in the bound schema.
func (t *Type) hasTable() bool {
	return t.reg.src != nil && t.reg.src.HasTable(t.Table)
}

// columns returns the table's column list from the schema, failing when
// the table is absent (the type was registered against a schema that
// never created it).
func (t *Type) columns() ([]string, error) {
	if !t.hasTable() {
		return nil, fmt.Errorf("orm: type %s has no table %q in schema", t.Name, t.Table)
	}
	return t.reg.src.Columns(t.Table), nil
}
