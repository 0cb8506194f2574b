package orm

import (
	"context"
	"errors"
	"fmt"
)

// Resolver loads and persists records and resolves their declared
// associations. It holds no per-call state; one Resolver is shared for the
// life of the process. All calls complete synchronously before returning.
type Resolver struct {
	db  Querier
	reg *Registry
}

// NewResolver creates a Resolver over the given database and registry.
func NewResolver(db Querier, reg *Registry) *Resolver {
	return &Resolver{db: db, reg: reg}
}

// Registry returns the registry the Resolver was built with.
func (r *Resolver) Registry() *Registry { return r.reg }

// --- Record CRUD ---

// Create inserts a new record and populates its primary key via RETURNING
// (PostgreSQL) or LastInsertId (MySQL, SQLite).
func (r *Resolver) Create(ctx context.Context, rec *Record) error {
	typ := rec.typ
	cols, err := typ.columns()
	if err != nil {
		return err
	}

	var insertCols []string
	var values []any
	for _, col := range cols {
		if col == typ.PK {
			continue
		}
		insertCols = append(insertCols, col)
		values = append(values, rec.values[col])
	}

	d := r.db.Dialect()
	query := insertStmt(d, typ.Table, insertCols)

	if d.UseReturning() {
		query += d.ReturningClause(typ.PK)
		rows, err := r.db.QueryContext(ctx, rewrite(d, query), values...)
		if err != nil {
			return err //nolint:wrapcheck // pass through
		}
		defer func() { _ = rows.Close() }()
		if !rows.Next() {
			return errors.New("orm: INSERT RETURNING returned no rows")
		}
		var id int64
		if err := rows.Scan(&id); err != nil {
			return err //nolint:wrapcheck // pass through
		}
		rec.values[typ.PK] = id
		rec.persisted = true
		return rows.Err() //nolint:wrapcheck // pass through
	}

	result, err := r.db.ExecContext(ctx, rewrite(d, query), values...)
	if err != nil {
		return err //nolint:wrapcheck // pass through
	}
	id, err := result.LastInsertId()
	if err != nil {
		return err //nolint:wrapcheck // pass through
	}
	rec.values[typ.PK] = id
	rec.persisted = true
	return nil
}

// Update writes all non-PK columns of the record identified by its
// primary key.
func (r *Resolver) Update(ctx context.Context, rec *Record) error {
	typ := rec.typ
	if rec.ID() == 0 {
		return fmt.Errorf("orm: primary key value is required to update %s", typ.Name)
	}
	cols, err := typ.columns()
	if err != nil {
		return err
	}

	var setCols []string
	var values []any
	for _, col := range cols {
		if col == typ.PK {
			continue
		}
		setCols = append(setCols, col)
		values = append(values, rec.values[col])
	}
	values = append(values, rec.ID())

	d := r.db.Dialect()
	query := updateStmt(d, typ.Table, setCols, typ.PK)
	if _, err := r.db.ExecContext(ctx, rewrite(d, query), values...); err != nil {
		return err //nolint:wrapcheck // pass through
	}
	rec.persisted = true
	return nil
}

// Save inserts the record if it is new, updates it otherwise.
func (r *Resolver) Save(ctx context.Context, rec *Record) error {
	if rec.persisted {
		return r.Update(ctx, rec)
	}
	return r.Create(ctx, rec)
}

// Find returns the record of the named type with the given primary key.
// Returns ErrNotFound when no row matches.
func (r *Resolver) Find(ctx context.Context, typeName string, id int64) (*Record, error) {
	typ, ok := r.reg.Type(typeName)
	if !ok {
		return nil, fmt.Errorf("orm: type %q is not registered", typeName)
	}
	d := r.db.Dialect()
	recs, err := r.queryRecords(ctx, typ, d.QuoteIdent(typ.PK)+" = ?", "", id)
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, ErrNotFound
	}
	return recs[0], nil
}

// AllOf returns every record of the named type in primary key order.
func (r *Resolver) AllOf(ctx context.Context, typeName string) ([]*Record, error) {
	typ, ok := r.reg.Type(typeName)
	if !ok {
		return nil, fmt.Errorf("orm: type %q is not registered", typeName)
	}
	d := r.db.Dialect()
	return r.queryRecords(ctx, typ, "", d.QuoteIdent(typ.PK))
}

// --- Association resolution ---

// Relation returns a lazy handle on the named association of owner.
// No query runs until a terminal method (One, All, Count) is called.
func (r *Resolver) Relation(owner *Record, name string) (*Relation, error) {
	a, ok := owner.typ.Association(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q on %s", ErrUnknownAssociation, name, owner.typ.Name)
	}
	return &Relation{r: r, owner: owner, assoc: a}, nil
}

// Relation is a pending association lookup bound to one owner record.
type Relation struct {
	r     *Resolver
	owner *Record
	assoc Association
}

// Association returns the declaration this Relation resolves.
func (rel *Relation) Association() Association { return rel.assoc }

// One resolves the association to a single record. For belongs-to this is
// the foreign key target, nil when the key is unset or no row matches.
// For collection associations it is the first record, nil when empty.
func (rel *Relation) One(ctx context.Context) (*Record, error) {
	if rel.assoc.Kind == KindBelongsTo {
		return rel.resolveBelongsTo(ctx)
	}
	recs, err := rel.All(ctx)
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, nil
	}
	return recs[0], nil
}

// All resolves the association to the full set of related records.
// Belongs-to yields zero or one record; has-many yields records in primary
// key order; has-many-through yields targets deduplicated by primary key
// in first-seen order. An empty result is never an error.
func (rel *Relation) All(ctx context.Context) ([]*Record, error) {
	switch rel.assoc.Kind {
	case KindBelongsTo:
		rec, err := rel.resolveBelongsTo(ctx)
		if err != nil {
			return nil, err
		}
		if rec == nil {
			return nil, nil
		}
		return []*Record{rec}, nil
	case KindHasMany:
		return rel.resolveHasMany(ctx)
	case KindHasManyThrough:
		return rel.resolveThrough(ctx)
	}
	return nil, fmt.Errorf("orm: unhandled association kind %v", rel.assoc.Kind)
}

// Count returns the number of related records without loading them where
// the association allows it.
func (rel *Relation) Count(ctx context.Context) (int64, error) {
	switch rel.assoc.Kind {
	case KindHasMany:
		typ, err := rel.r.targetType(rel.assoc.Target)
		if err != nil {
			return 0, err
		}
		d := rel.r.db.Dialect()
		query := countStmt(d, typ.Table, d.QuoteIdent(rel.assoc.ForeignKey)+" = ?")
		rows, err := rel.r.db.QueryContext(ctx, rewrite(d, query), rel.owner.ID())
		if err != nil {
			return 0, err //nolint:wrapcheck // pass through
		}
		defer func() { _ = rows.Close() }()
		if !rows.Next() {
			return 0, errors.New("orm: COUNT returned no rows")
		}
		var count int64
		if err := rows.Scan(&count); err != nil {
			return 0, err //nolint:wrapcheck // pass through
		}
		return count, rows.Err() //nolint:wrapcheck // pass through
	default:
		recs, err := rel.All(ctx)
		if err != nil {
			return 0, err
		}
		return int64(len(recs)), nil
	}
}

func (rel *Relation) resolveBelongsTo(ctx context.Context) (*Record, error) {
	typ, err := rel.r.targetType(rel.assoc.Target)
	if err != nil {
		return nil, err
	}
	fk, ok := asInt64(rel.owner.Get(rel.assoc.ForeignKey))
	if !ok || fk == 0 {
		return nil, nil
	}
	d := rel.r.db.Dialect()
	recs, err := rel.r.queryRecords(ctx, typ, d.QuoteIdent(typ.PK)+" = ?", "", fk)
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, nil
	}
	return recs[0], nil
}

func (rel *Relation) resolveHasMany(ctx context.Context) ([]*Record, error) {
	typ, err := rel.r.targetType(rel.assoc.Target)
	if err != nil {
		return nil, err
	}
	d := rel.r.db.Dialect()
	return rel.r.queryRecords(ctx, typ,
		d.QuoteIdent(rel.assoc.ForeignKey)+" = ?",
		d.QuoteIdent(typ.PK),
		rel.owner.ID(),
	)
}

// resolveThrough composes the owner's has-many with the join type's
// belongs-to: load the join records, collect their foreign keys in
// first-seen order, then fetch the targets with a single IN query.
func (rel *Relation) resolveThrough(ctx context.Context) ([]*Record, error) {
	through, ok := rel.owner.typ.Association(rel.assoc.Through)
	if !ok || through.Kind != KindHasMany {
		return nil, fmt.Errorf("%w: through %q on %s is not a declared has-many",
			ErrUnknownAssociation, rel.assoc.Through, rel.owner.typ.Name)
	}
	joinType, err := rel.r.targetType(through.Target)
	if err != nil {
		return nil, err
	}
	source, ok := joinType.Association(rel.assoc.Source)
	if !ok || source.Kind != KindBelongsTo {
		return nil, fmt.Errorf("%w: source %q on %s is not a declared belongs-to",
			ErrUnknownAssociation, rel.assoc.Source, joinType.Name)
	}
	targetType, err := rel.r.targetType(source.Target)
	if err != nil {
		return nil, err
	}

	joins, err := (&Relation{r: rel.r, owner: rel.owner, assoc: through}).All(ctx)
	if err != nil {
		return nil, err
	}

	// Deduplicate target keys preserving first-seen order.
	seen := make(map[int64]struct{}, len(joins))
	ids := make([]int64, 0, len(joins))
	for _, join := range joins {
		id, ok := asInt64(join.Get(source.ForeignKey))
		if !ok || id == 0 {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	d := rel.r.db.Dialect()
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	recs, err := rel.r.queryRecords(ctx, targetType,
		inClause(d, targetType.PK, len(ids)), "", args...)
	if err != nil {
		return nil, err
	}

	byID := make(map[int64]*Record, len(recs))
	for _, rec := range recs {
		byID[rec.ID()] = rec
	}
	ordered := make([]*Record, 0, len(ids))
	for _, id := range ids {
		if rec, ok := byID[id]; ok {
			ordered = append(ordered, rec)
		}
	}
	return ordered, nil
}

// --- Association mutation ---

// Build creates an unpersisted record on the source side of a has-many,
// with its foreign key pre-populated from the owner's primary key.
// Read-only associations return ErrUnsupportedMutation.
func (rel *Relation) Build(attrs map[string]any) (*Record, error) {
	if rel.assoc.Kind != KindHasMany {
		return nil, fmt.Errorf("%w: cannot build through %s %q",
			ErrUnsupportedMutation, rel.assoc.Kind, rel.assoc.Name)
	}
	typ, err := rel.r.targetType(rel.assoc.Target)
	if err != nil {
		return nil, err
	}
	if rel.owner.ID() == 0 {
		return nil, fmt.Errorf("orm: owner %s is not persisted", rel.owner.typ.Name)
	}
	rec := typ.New(attrs)
	rec.Set(rel.assoc.ForeignKey, rel.owner.ID())
	return rec, nil
}

// Create builds a record through the association and persists it.
func (rel *Relation) Create(ctx context.Context, attrs map[string]any) (*Record, error) {
	rec, err := rel.Build(attrs)
	if err != nil {
		return nil, err
	}
	if err := rel.r.Create(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// Append points each record's foreign key at the owner and persists it:
// an INSERT for new records, an UPDATE for already-persisted ones.
func (rel *Relation) Append(ctx context.Context, recs ...*Record) error {
	if rel.assoc.Kind != KindHasMany {
		return fmt.Errorf("%w: cannot append through %s %q",
			ErrUnsupportedMutation, rel.assoc.Kind, rel.assoc.Name)
	}
	typ, err := rel.r.targetType(rel.assoc.Target)
	if err != nil {
		return err
	}
	if rel.owner.ID() == 0 {
		return fmt.Errorf("orm: owner %s is not persisted", rel.owner.typ.Name)
	}
	for _, rec := range recs {
		if rec.typ != typ {
			return fmt.Errorf("orm: cannot append %s to %q (expects %s)",
				rec.typ.Name, rel.assoc.Name, typ.Name)
		}
		rec.Set(rel.assoc.ForeignKey, rel.owner.ID())
		if err := rel.r.Save(ctx, rec); err != nil {
			return err
		}
	}
	return nil
}

// --- Internal ---

// targetType looks up a registered type and verifies its table exists in
// the bound schema.
func (r *Resolver) targetType(name string) (*Type, error) {
	t, ok := r.reg.Type(name)
	if !ok {
		return nil, fmt.Errorf("%w: type %q is not registered", ErrUnknownAssociationTarget, name)
	}
	if !t.hasTable() {
		return nil, fmt.Errorf("%w: type %q has no table %q in schema",
			ErrUnknownAssociationTarget, name, t.Table)
	}
	return t, nil
}

func (r *Resolver) queryRecords(
	ctx context.Context, typ *Type, where, orderBy string, args ...any,
) ([]*Record, error) {
	cols, err := typ.columns()
	if err != nil {
		return nil, err
	}
	d := r.db.Dialect()
	query := rewrite(d, selectStmt(d, typ.Table, cols, where, orderBy))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err //nolint:wrapcheck // pass through
	}
	defer func() { _ = rows.Close() }()

	var result []*Record
	for rows.Next() {
		rec, err := scanRecord(typ, rows)
		if err != nil {
			return nil, err
		}
		result = append(result, rec)
	}
	return result, rows.Err() //nolint:wrapcheck // pass through
}
