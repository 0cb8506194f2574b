package migrate

import (
	"context"
	"fmt"
	"time"

	"github.com/tunelab/playlister/orm"
)

// DefaultLedgerTable is the table the Runner records applied versions in.
const DefaultLedgerTable = "schema_migrations"

// Runner applies pending migrations against a database. It assumes
// exclusive access to the schema and ledger for the duration of a run;
// callers must serialize concurrent migrators externally.
type Runner struct {
	db     *orm.DB
	ledger string
	logger orm.Logger
}

// RunnerOption customizes a Runner.
type RunnerOption func(*Runner)

// WithLedgerTable overrides the ledger table name.
func WithLedgerTable(name string) RunnerOption {
	return func(r *Runner) { r.ledger = name }
}

// WithLogger logs each executed schema statement.
func WithLogger(l orm.Logger) RunnerOption {
	return func(r *Runner) { r.logger = l }
}

// NewRunner creates a Runner over the given database.
func NewRunner(db *orm.DB, opts ...RunnerOption) *Runner {
	r := &Runner{db: db, ledger: DefaultLedgerTable}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Apply runs every migration whose version is greater than the highest
// already-applied version, in ascending order, and returns how many were
// applied. Each migration runs in its own transaction and is recorded in
// the ledger only after its operations succeed. On failure the run halts;
// migrations applied earlier in the run stay applied.
func (r *Runner) Apply(ctx context.Context, migrations []Migration) (int, error) {
	if err := validate(migrations); err != nil {
		return 0, err
	}
	if err := r.ensureLedger(ctx); err != nil {
		return 0, err
	}
	current, err := r.CurrentVersion(ctx)
	if err != nil {
		return 0, err
	}

	applied := 0
	for _, m := range migrations {
		if m.Version <= current {
			continue
		}
		if err := r.applyOne(ctx, m); err != nil {
			return applied, &MigrationError{Version: m.Version, Name: m.Name, Err: err}
		}
		applied++
	}
	return applied, nil
}

// Schema rebuilds the in-memory schema snapshot by interpreting the
// operations of already-applied migrations. No SQL is executed against
// table data; only the ledger is read.
func (r *Runner) Schema(ctx context.Context, migrations []Migration) (*Schema, error) {
	if err := validate(migrations); err != nil {
		return nil, err
	}
	if err := r.ensureLedger(ctx); err != nil {
		return nil, err
	}
	current, err := r.CurrentVersion(ctx)
	if err != nil {
		return nil, err
	}

	s := NewSchema()
	for _, m := range migrations {
		if m.Version > current {
			break
		}
		for _, op := range m.Ops {
			if err := s.Apply(op); err != nil {
				return nil, &MigrationError{Version: m.Version, Name: m.Name, Err: err}
			}
		}
	}
	return s, nil
}

// CurrentVersion returns the highest applied version, or 0 when no
// migration has been applied.
func (r *Runner) CurrentVersion(ctx context.Context) (int, error) {
	d := r.db.Dialect()
	query := fmt.Sprintf("SELECT COALESCE(MAX(%s), 0) FROM %s",
		d.QuoteIdent("version"), d.QuoteIdent(r.ledger))

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return 0, err //nolint:wrapcheck // pass through
	}
	defer func() { _ = rows.Close() }()
	if !rows.Next() {
		return 0, fmt.Errorf("migrate: ledger %q returned no rows", r.ledger)
	}
	var version int
	if err := rows.Scan(&version); err != nil {
		return 0, err //nolint:wrapcheck // pass through
	}
	return version, rows.Err() //nolint:wrapcheck // pass through
}

// Reset drops every table the migration set would ever create, plus the
// ledger. Discards all schema and data; there is no undo.
func (r *Runner) Reset(ctx context.Context, migrations []Migration) error {
	d := r.db.Dialect()
	var tables []string
	for _, m := range migrations {
		for _, op := range m.Ops {
			if ct, ok := op.(CreateTable); ok {
				tables = append(tables, ct.Table)
			}
		}
	}
	tables = append(tables, r.ledger)
	for i := len(tables) - 1; i >= 0; i-- {
		query := "DROP TABLE IF EXISTS " + d.QuoteIdent(tables[i])
		if r.logger != nil {
			r.logger.Log(ctx, query)
		}
		if _, err := r.db.ExecContext(ctx, query); err != nil {
			return err //nolint:wrapcheck // pass through
		}
	}
	return nil
}

func (r *Runner) applyOne(ctx context.Context, m Migration) error {
	return r.db.Transaction(ctx, func(tx *orm.Tx) error {
		d := tx.Dialect()
		for _, op := range m.Ops {
			query := op.SQL(d)
			if r.logger != nil {
				r.logger.Log(ctx, query)
			}
			if _, err := tx.ExecContext(ctx, query); err != nil {
				return err //nolint:wrapcheck // pass through
			}
		}
		return r.record(ctx, tx, m)
	})
}

// record marks the migration applied. Runs in the same transaction as the
// schema mutation where the engine allows transactional DDL.
func (r *Runner) record(ctx context.Context, tx *orm.Tx, m Migration) error {
	d := tx.Dialect()
	query := fmt.Sprintf("INSERT INTO %s (%s, %s, %s) VALUES (%s, %s, %s)",
		d.QuoteIdent(r.ledger),
		d.QuoteIdent("version"), d.QuoteIdent("name"), d.QuoteIdent("applied_at"),
		d.Placeholder(1), d.Placeholder(2), d.Placeholder(3),
	)
	appliedAt := orm.Now(ctx).UTC().Format(time.RFC3339)
	_, err := tx.ExecContext(ctx, query, m.Version, m.Name, appliedAt)
	return err //nolint:wrapcheck // pass through
}

func (r *Runner) ensureLedger(ctx context.Context) error {
	d := r.db.Dialect()
	query := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s INTEGER PRIMARY KEY, %s, %s)",
		d.QuoteIdent(r.ledger),
		d.QuoteIdent("version"),
		d.ColumnSQL("name", "text", false),
		d.ColumnSQL("applied_at", "text", false),
	)
	_, err := r.db.ExecContext(ctx, query)
	return err //nolint:wrapcheck // pass through
}

// validate rejects duplicate or out-of-order versions before anything
// executes.
func validate(migrations []Migration) error {
	last := 0
	for _, m := range migrations {
		switch {
		case m.Version <= 0:
			return fmt.Errorf("migrate: invalid version %d (%s)", m.Version, m.Name)
		case m.Version == last:
			return fmt.Errorf("%w: %d", ErrDuplicateVersion, m.Version)
		case m.Version < last:
			return fmt.Errorf("%w: %d after %d", ErrVersionOrder, m.Version, last)
		}
		last = m.Version
	}
	return nil
}
