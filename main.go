// Command playlister is a thin wrapper around the migration runner and
// the association registry for the music schema: it can migrate a
// database forward, print the schema snapshot, seed demo rows, and drop
// everything.
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log"
	"os"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"github.com/tunelab/playlister/migrate"
	"github.com/tunelab/playlister/orm"
	"github.com/tunelab/playlister/playlister"
)

func main() {
	dialect := flag.String("dialect", "sqlite", "database dialect (sqlite, mysql or postgres)")
	dsn := flag.String("dsn", "playlister.db", "database connection string")
	verbose := flag.Bool("v", false, "log every executed statement")
	flag.Parse()

	cmd := flag.Arg(0)
	if cmd == "" {
		fmt.Fprintln(os.Stderr, "usage: playlister [flags] migrate|schema|seed|drop")
		flag.PrintDefaults()
		os.Exit(2)
	}

	ctx := context.Background()
	db := openDB(*dialect, *dsn)
	defer func() { _ = db.Close() }()
	if *verbose {
		db = db.Debug(stderrLogger{})
	}

	var opts []migrate.RunnerOption
	if *verbose {
		opts = append(opts, migrate.WithLogger(stderrLogger{}))
	}
	runner := migrate.NewRunner(db, opts...)
	migrations := playlister.Migrations()

	switch cmd {
	case "migrate":
		applied, err := runner.Apply(ctx, migrations)
		if err != nil {
			log.Fatalf("migrate: %v", err)
		}
		fmt.Printf("applied %d migration(s)\n", applied)
		dumpSchema(ctx, runner, migrations)
	case "schema":
		dumpSchema(ctx, runner, migrations)
	case "seed":
		resolver, err := newResolver(ctx, db, runner, migrations)
		if err != nil {
			log.Fatalf("seed: %v", err)
		}
		if err := playlister.Seed(ctx, resolver); err != nil {
			log.Fatalf("seed: %v", err)
		}
		fmt.Println("seeded demo catalog")
	case "drop":
		if err := runner.Reset(ctx, migrations); err != nil {
			log.Fatalf("drop: %v", err)
		}
		fmt.Println("dropped all tables")
	default:
		log.Fatalf("unknown command %q (use migrate, schema, seed or drop)", cmd)
	}
}

func newResolver(ctx context.Context, db *orm.DB, runner *migrate.Runner, migrations []migrate.Migration) (*orm.Resolver, error) {
	schema, err := runner.Schema(ctx, migrations)
	if err != nil {
		return nil, err
	}
	reg, err := playlister.NewRegistry(schema)
	if err != nil {
		return nil, err
	}
	return orm.NewResolver(db, reg), nil
}

func dumpSchema(ctx context.Context, runner *migrate.Runner, migrations []migrate.Migration) {
	schema, err := runner.Schema(ctx, migrations)
	if err != nil {
		log.Fatalf("schema: %v", err)
	}
	if err := schema.Dump(os.Stdout); err != nil {
		log.Fatalf("schema: %v", err)
	}
}

func openDB(dialect, dsn string) *orm.DB {
	switch dialect {
	case "sqlite":
		sqlDB, err := sql.Open("sqlite", dsn)
		if err != nil {
			log.Fatalf("open sqlite: %v", err)
		}
		return orm.New(sqlDB, orm.SQLite)
	case "mysql":
		sqlDB, err := sql.Open("mysql", dsn)
		if err != nil {
			log.Fatalf("open mysql: %v", err)
		}
		return orm.New(sqlDB, orm.MySQL)
	case "postgres":
		sqlDB, err := sql.Open("pgx", dsn)
		if err != nil {
			log.Fatalf("open postgres: %v", err)
		}
		return orm.New(sqlDB, orm.PostgreSQL)
	default:
		log.Fatalf("unknown dialect: %s (use sqlite, mysql or postgres)", dialect)
		return nil
	}
}

type stderrLogger struct{}

func (stderrLogger) Log(_ context.Context, query string, args ...any) {
	if len(args) == 0 {
		fmt.Fprintf(os.Stderr, "sql> %s\n", query)
		return
	}
	fmt.Fprintf(os.Stderr, "sql> %s %v\n", query, args)
}
