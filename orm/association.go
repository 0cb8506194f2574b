package orm

import "github.com/jinzhu/inflection"

// AssociationKind discriminates the Association variants.
type AssociationKind int

const (
	// KindBelongsTo: the owner holds the foreign key to a single target.
	KindBelongsTo AssociationKind = iota
	// KindHasMany: many source records hold a foreign key to the owner.
	KindHasMany
	// KindHasManyThrough: composed from a has-many on the owner and a
	// belongs-to on the join type. Read-only.
	KindHasManyThrough
)

func (k AssociationKind) String() string {
	switch k {
	case KindBelongsTo:
		return "belongs_to"
	case KindHasMany:
		return "has_many"
	case KindHasManyThrough:
		return "has_many_through"
	}
	return "unknown"
}

// Association declares a relationship between two record types. Values are
// built with the BelongsTo, HasMany and HasManyThrough constructors and
// attached to a Type via Declare. Defaults for foreign keys and through
// sources are filled in at declaration time, once the owning type is known.
type Association struct {
	Name string
	Kind AssociationKind

	// Target is the record type on the far side: the owner of the primary
	// key for BelongsTo, the holder of the foreign key for HasMany. Empty
	// for HasManyThrough, whose target comes from the composed chain.
	Target string

	// ForeignKey is the direct foreign key column: on the owner for
	// BelongsTo, on the target type for HasMany. Empty for HasManyThrough.
	ForeignKey string

	// Through names the has-many association on the owner whose records
	// are joined through. HasManyThrough only.
	Through string

	// Source names the belongs-to association on the join type that leads
	// to the final target. HasManyThrough only; defaults to the singular
	// of Name.
	Source string
}

// AssociationOption customizes an Association constructor.
type AssociationOption func(*Association)

// WithForeignKey overrides the conventionally derived foreign key column.
func WithForeignKey(column string) AssociationOption {
	return func(a *Association) { a.ForeignKey = column }
}

// WithSource overrides the belongs-to association name used on the join
// type of a has-many-through.
func WithSource(assocName string) AssociationOption {
	return func(a *Association) { a.Source = assocName }
}

// BelongsTo declares that the owner holds a foreign key to a single record
// of the target type. The foreign key defaults to <target>_id.
//
//	orm.BelongsTo("artist", "Artist")
func BelongsTo(name, target string, opts ...AssociationOption) Association {
	a := Association{Name: name, Kind: KindBelongsTo, Target: target}
	for _, opt := range opts {
		opt(&a)
	}
	return a
}

// HasMany declares that many records of the source type hold a foreign key
// to the owner. The foreign key defaults to <owner>_id and is filled in at
// declaration time.
//
//	orm.HasMany("songs", "Song")
func HasMany(name, source string, opts ...AssociationOption) Association {
	a := Association{Name: name, Kind: KindHasMany, Target: source}
	for _, opt := range opts {
		opt(&a)
	}
	return a
}

// HasManyThrough declares a derived association: the owner's has-many named
// by through yields join records, and each join record's belongs-to (the
// source) yields the final targets.
//
//	orm.HasManyThrough("genres", "songs")       // source inferred: "genre"
//	orm.HasManyThrough("genres", "songs", orm.WithSource("genre"))
func HasManyThrough(name, through string, opts ...AssociationOption) Association {
	a := Association{Name: name, Kind: KindHasManyThrough, Through: through}
	for _, opt := range opts {
		opt(&a)
	}
	if a.Source == "" {
		a.Source = inflection.Singular(name)
	}
	return a
}
