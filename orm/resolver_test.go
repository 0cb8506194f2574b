package orm_test

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	_ "modernc.org/sqlite"

	"github.com/tunelab/playlister/orm"
)

// setupResolver opens an in-memory SQLite database with the book schema
// and returns a resolver over the book registry.
func setupResolver(t *testing.T) *orm.Resolver {
	t.Helper()

	sqlDB, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	ddl := []string{
		`CREATE TABLE authors (id INTEGER PRIMARY KEY AUTOINCREMENT, name TEXT)`,
		`CREATE TABLE publishers (id INTEGER PRIMARY KEY AUTOINCREMENT, name TEXT)`,
		`CREATE TABLE books (id INTEGER PRIMARY KEY AUTOINCREMENT, title TEXT, author_id INTEGER, publisher_id INTEGER)`,
	}
	for _, stmt := range ddl {
		if _, err := sqlDB.Exec(stmt); err != nil {
			t.Fatalf("create table: %v", err)
		}
	}

	return orm.NewResolver(orm.New(sqlDB, orm.SQLite), bookRegistry(t))
}

func mustCreate(t *testing.T, r *orm.Resolver, typeName string, attrs map[string]any) *orm.Record {
	t.Helper()

	typ, ok := r.Registry().Type(typeName)
	if !ok {
		t.Fatalf("type %s not registered", typeName)
	}
	rec := typ.New(attrs)
	if err := r.Create(context.Background(), rec); err != nil {
		t.Fatalf("create %s: %v", typeName, err)
	}
	return rec
}

func relation(t *testing.T, r *orm.Resolver, owner *orm.Record, name string) *orm.Relation {
	t.Helper()

	rel, err := r.Relation(owner, name)
	if err != nil {
		t.Fatalf("Relation(%s): %v", name, err)
	}
	return rel
}

func titles(recs []*orm.Record) []string {
	out := make([]string, len(recs))
	for i, rec := range recs {
		out[i], _ = rec.Get("title").(string)
	}
	return out
}

func names(recs []*orm.Record) []string {
	out := make([]string, len(recs))
	for i, rec := range recs {
		out[i], _ = rec.Get("name").(string)
	}
	return out
}

func TestBelongsToResolution(t *testing.T) {
	t.Parallel()

	r := setupResolver(t)
	ctx := context.Background()

	author := mustCreate(t, r, "Author", map[string]any{"name": "Herbert"})
	book := mustCreate(t, r, "Book", map[string]any{"title": "Dune", "author_id": author.ID()})

	got, err := relation(t, r, book, "author").One(ctx)
	if err != nil {
		t.Fatalf("One: %v", err)
	}
	if got == nil || got.ID() != author.ID() {
		t.Fatalf("One = %v, want author %d", got, author.ID())
	}
	if got.Get("name") != "Herbert" {
		t.Errorf("name = %v, want Herbert", got.Get("name"))
	}
}

func TestBelongsToNoMatch(t *testing.T) {
	t.Parallel()

	r := setupResolver(t)
	ctx := context.Background()

	book := mustCreate(t, r, "Book", map[string]any{"title": "Orphan", "author_id": int64(999)})

	got, err := relation(t, r, book, "author").One(ctx)
	if err != nil {
		t.Fatalf("One: %v", err)
	}
	if got != nil {
		t.Errorf("One = %v, want nil for dangling foreign key", got)
	}
}

func TestHasManyResolution(t *testing.T) {
	t.Parallel()

	r := setupResolver(t)
	ctx := context.Background()

	herbert := mustCreate(t, r, "Author", map[string]any{"name": "Herbert"})
	asimov := mustCreate(t, r, "Author", map[string]any{"name": "Asimov"})
	mustCreate(t, r, "Book", map[string]any{"title": "Dune", "author_id": herbert.ID()})
	mustCreate(t, r, "Book", map[string]any{"title": "Messiah", "author_id": herbert.ID()})
	mustCreate(t, r, "Book", map[string]any{"title": "Foundation", "author_id": asimov.ID()})

	books, err := relation(t, r, herbert, "books").All(ctx)
	if err != nil {
		t.Fatalf("All: %v", err)
	}
	got := titles(books)
	if len(got) != 2 || got[0] != "Dune" || got[1] != "Messiah" {
		t.Errorf("titles = %v, want [Dune Messiah]", got)
	}

	count, err := relation(t, r, herbert, "books").Count(ctx)
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if count != 2 {
		t.Errorf("Count = %d, want 2", count)
	}
}

func TestThroughResolution(t *testing.T) {
	t.Parallel()

	r := setupResolver(t)
	ctx := context.Background()

	herbert := mustCreate(t, r, "Author", map[string]any{"name": "Herbert"})
	chilton := mustCreate(t, r, "Publisher", map[string]any{"name": "Chilton"})
	ace := mustCreate(t, r, "Publisher", map[string]any{"name": "Ace"})

	// Two books at Chilton: the through resolution must deduplicate.
	mustCreate(t, r, "Book", map[string]any{
		"title": "Dune", "author_id": herbert.ID(), "publisher_id": chilton.ID(),
	})
	mustCreate(t, r, "Book", map[string]any{
		"title": "Messiah", "author_id": herbert.ID(), "publisher_id": chilton.ID(),
	})
	mustCreate(t, r, "Book", map[string]any{
		"title": "Children", "author_id": herbert.ID(), "publisher_id": ace.ID(),
	})

	publishers, err := relation(t, r, herbert, "publishers").All(ctx)
	if err != nil {
		t.Fatalf("All: %v", err)
	}
	got := names(publishers)
	if len(got) != 2 || got[0] != "Chilton" || got[1] != "Ace" {
		t.Errorf("publishers = %v, want [Chilton Ace] (deduplicated, first-seen order)", got)
	}

	// The reverse direction composes the same way.
	authors, err := relation(t, r, chilton, "authors").All(ctx)
	if err != nil {
		t.Fatalf("All reverse: %v", err)
	}
	if len(authors) != 1 || authors[0].ID() != herbert.ID() {
		t.Errorf("authors = %v, want [Herbert]", names(authors))
	}
}

func TestThroughEmpty(t *testing.T) {
	t.Parallel()

	r := setupResolver(t)
	ctx := context.Background()

	herbert := mustCreate(t, r, "Author", map[string]any{"name": "Herbert"})

	publishers, err := relation(t, r, herbert, "publishers").All(ctx)
	if err != nil {
		t.Fatalf("All: %v", err)
	}
	if len(publishers) != 0 {
		t.Errorf("publishers = %v, want empty", names(publishers))
	}
}

func TestThroughSkipsJoinRecordsWithoutForeignKey(t *testing.T) {
	t.Parallel()

	r := setupResolver(t)
	ctx := context.Background()

	herbert := mustCreate(t, r, "Author", map[string]any{"name": "Herbert"})
	mustCreate(t, r, "Book", map[string]any{"title": "Unplaced", "author_id": herbert.ID()})

	publishers, err := relation(t, r, herbert, "publishers").All(ctx)
	if err != nil {
		t.Fatalf("All: %v", err)
	}
	if len(publishers) != 0 {
		t.Errorf("publishers = %v, want empty", names(publishers))
	}
}

func TestRelationBuildAndCreate(t *testing.T) {
	t.Parallel()

	r := setupResolver(t)
	ctx := context.Background()

	herbert := mustCreate(t, r, "Author", map[string]any{"name": "Herbert"})

	built, err := relation(t, r, herbert, "books").Build(map[string]any{"title": "Dune"})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if built.Persisted() {
		t.Error("built record reports persisted")
	}
	if got, _ := built.Get("author_id").(int64); got != herbert.ID() {
		t.Errorf("author_id = %v, want %d (pre-populated before persistence)", built.Get("author_id"), herbert.ID())
	}

	created, err := relation(t, r, herbert, "books").Create(ctx, map[string]any{"title": "Messiah"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if !created.Persisted() || created.ID() == 0 {
		t.Errorf("created = %v, want persisted with primary key", created)
	}

	books, err := relation(t, r, herbert, "books").All(ctx)
	if err != nil {
		t.Fatalf("All: %v", err)
	}
	if got := titles(books); len(got) != 1 || got[0] != "Messiah" {
		t.Errorf("titles = %v, want [Messiah] (Build alone does not persist)", got)
	}
}

func TestRelationAppend(t *testing.T) {
	t.Parallel()

	r := setupResolver(t)
	ctx := context.Background()

	herbert := mustCreate(t, r, "Author", map[string]any{"name": "Herbert"})
	asimov := mustCreate(t, r, "Author", map[string]any{"name": "Asimov"})

	bookType, _ := r.Registry().Type("Book")
	dune := bookType.New(map[string]any{"title": "Dune"})
	foundation := mustCreate(t, r, "Book", map[string]any{"title": "Foundation", "author_id": asimov.ID()})

	// One new record, one existing record reassigned from another owner.
	if err := relation(t, r, herbert, "books").Append(ctx, dune, foundation); err != nil {
		t.Fatalf("Append: %v", err)
	}

	books, err := relation(t, r, herbert, "books").All(ctx)
	if err != nil {
		t.Fatalf("All: %v", err)
	}
	got := titles(books)
	if len(got) != 2 {
		t.Fatalf("titles = %v, want 2 books", got)
	}
	for _, rec := range books {
		if id, _ := rec.Get("author_id").(int64); id != herbert.ID() {
			t.Errorf("%v author_id = %v, want %d", rec.Get("title"), rec.Get("author_id"), herbert.ID())
		}
	}

	remaining, err := relation(t, r, asimov, "books").All(ctx)
	if err != nil {
		t.Fatalf("All: %v", err)
	}
	if len(remaining) != 0 {
		t.Errorf("asimov still has %v", titles(remaining))
	}
}

func TestFind(t *testing.T) {
	t.Parallel()

	r := setupResolver(t)
	ctx := context.Background()

	author := mustCreate(t, r, "Author", map[string]any{"name": "Herbert"})

	got, err := r.Find(ctx, "Author", author.ID())
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if got.Get("name") != "Herbert" {
		t.Errorf("name = %v", got.Get("name"))
	}

	if _, err := r.Find(ctx, "Author", 999); !errors.Is(err, orm.ErrNotFound) {
		t.Errorf("Find(999) err = %v, want ErrNotFound", err)
	}
}

func TestSave(t *testing.T) {
	t.Parallel()

	r := setupResolver(t)
	ctx := context.Background()

	author, _ := r.Registry().Type("Author")
	rec := author.New(map[string]any{"name": "Herbert"})

	// New record: Save inserts.
	if err := r.Save(ctx, rec); err != nil {
		t.Fatalf("Save (insert): %v", err)
	}
	if rec.ID() == 0 {
		t.Fatal("expected primary key after Save")
	}

	// Persisted record: Save updates in place.
	rec.Set("name", "Frank Herbert")
	if err := r.Save(ctx, rec); err != nil {
		t.Fatalf("Save (update): %v", err)
	}
	got, err := r.Find(ctx, "Author", rec.ID())
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if got.Get("name") != "Frank Herbert" {
		t.Errorf("name = %v, want Frank Herbert", got.Get("name"))
	}

	all, err := r.AllOf(ctx, "Author")
	if err != nil {
		t.Fatalf("AllOf: %v", err)
	}
	if len(all) != 1 {
		t.Errorf("AllOf = %v, want a single row", names(all))
	}
}

func TestConcurrentReaders(t *testing.T) {
	t.Parallel()

	r := setupResolver(t)

	herbert := mustCreate(t, r, "Author", map[string]any{"name": "Herbert"})
	mustCreate(t, r, "Book", map[string]any{"title": "Dune", "author_id": herbert.ID()})

	done := make(chan error, 4)
	for i := 0; i < 4; i++ {
		go func() {
			rel, err := r.Relation(herbert, "books")
			if err != nil {
				done <- err
				return
			}
			books, err := rel.All(context.Background())
			if err == nil && len(books) != 1 {
				err = errors.New("wrong book count")
			}
			done <- err
		}()
	}
	for i := 0; i < 4; i++ {
		if err := <-done; err != nil {
			t.Errorf("concurrent read: %v", err)
		}
	}
}
