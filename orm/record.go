package orm

import "fmt"

// Record is a dynamically-typed row instance of a registered Type.
// Records are created through Type.New or loaded by the Resolver; they are
// owned by the caller and follow a normal CRUD lifetime.
type Record struct {
	typ       *Type
	values    map[string]any
	persisted bool
}

// Type returns the record's registered type.
func (rec *Record) Type() *Type { return rec.typ }

// Persisted reports whether the record has been written to the database.
func (rec *Record) Persisted() bool { return rec.persisted }

// Get returns the value of the given column, or nil when unset.
func (rec *Record) Get(column string) any { return rec.values[column] }

// Set assigns the value of the given column.
func (rec *Record) Set(column string, v any) {
	rec.values[column] = v
}

// ID returns the primary key value, or 0 when the record is new.
func (rec *Record) ID() int64 {
	id, _ := asInt64(rec.values[rec.typ.PK])
	return id
}

func (rec *Record) String() string {
	return fmt.Sprintf("%s(%d)", rec.typ.Name, rec.ID())
}

// asInt64 normalizes the integer representations drivers hand back.
func asInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	}
	return 0, false
}
