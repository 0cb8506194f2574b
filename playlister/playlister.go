// Package playlister wires the music domain: the migration sequence that
// builds the songs/artists/genres tables and the registry declaring how
// the three record types relate.
package playlister

import (
	"context"

	"github.com/tunelab/playlister/migrate"
	"github.com/tunelab/playlister/orm"
)

// Migrations returns the ordered schema history. Foreign keys arrive in
// later migrations than the tables they point at, mirroring how the
// schema actually grew.
func Migrations() []migrate.Migration {
	return []migrate.Migration{
		{
			Version: 1,
			Name:    "create_songs",
			Ops: []migrate.Operation{
				migrate.CreateTable{Table: "songs", Columns: []migrate.Column{
					{Name: "name", Type: migrate.Text},
				}},
			},
		},
		{
			Version: 2,
			Name:    "create_artists",
			Ops: []migrate.Operation{
				migrate.CreateTable{Table: "artists", Columns: []migrate.Column{
					{Name: "name", Type: migrate.Text},
				}},
			},
		},
		{
			Version: 3,
			Name:    "create_genres",
			Ops: []migrate.Operation{
				migrate.CreateTable{Table: "genres", Columns: []migrate.Column{
					{Name: "name", Type: migrate.Text},
				}},
			},
		},
		{
			Version: 4,
			Name:    "add_artist_to_songs",
			Ops: []migrate.Operation{
				migrate.AddColumn{Table: "songs", Column: migrate.Column{Name: "artist_id", Type: migrate.Integer}},
			},
		},
		{
			Version: 5,
			Name:    "add_genre_to_songs",
			Ops: []migrate.Operation{
				migrate.AddColumn{Table: "songs", Column: migrate.Column{Name: "genre_id", Type: migrate.Integer}},
			},
		},
	}
}

// NewRegistry declares the Song, Artist and Genre types over the given
// schema. A song belongs to an artist and a genre; artists and genres
// reach each other through songs.
func NewRegistry(src orm.SchemaSource) (*orm.Registry, error) {
	reg := orm.NewRegistry(src)

	song, err := reg.Register("Song")
	if err != nil {
		return nil, err
	}
	artist, err := reg.Register("Artist")
	if err != nil {
		return nil, err
	}
	genre, err := reg.Register("Genre")
	if err != nil {
		return nil, err
	}

	if err := song.Declare(
		orm.BelongsTo("artist", "Artist"),
		orm.BelongsTo("genre", "Genre"),
	); err != nil {
		return nil, err
	}
	if err := artist.Declare(
		orm.HasMany("songs", "Song"),
		orm.HasManyThrough("genres", "songs"),
	); err != nil {
		return nil, err
	}
	if err := genre.Declare(
		orm.HasMany("songs", "Song"),
		orm.HasManyThrough("artists", "songs"),
	); err != nil {
		return nil, err
	}

	return reg, nil
}

// Seed inserts a small demo catalog. Idempotence is the caller's concern;
// running it twice duplicates the rows.
func Seed(ctx context.Context, r *orm.Resolver) error {
	reg := r.Registry()
	artistType, _ := reg.Type("Artist")
	genreType, _ := reg.Type("Genre")

	rock := genreType.New(map[string]any{"name": "Rock"})
	funk := genreType.New(map[string]any{"name": "Funk"})
	for _, g := range []*orm.Record{rock, funk} {
		if err := r.Create(ctx, g); err != nil {
			return err
		}
	}

	catalog := []struct {
		artist string
		songs  map[string]*orm.Record
	}{
		{"Prince", map[string]*orm.Record{"Purple Rain": rock, "Kiss": funk}},
		{"Queen", map[string]*orm.Record{"Bohemian Rhapsody": rock}},
	}
	for _, entry := range catalog {
		a := artistType.New(map[string]any{"name": entry.artist})
		if err := r.Create(ctx, a); err != nil {
			return err
		}
		songs, err := r.Relation(a, "songs")
		if err != nil {
			return err
		}
		for name, g := range entry.songs {
			if _, err := songs.Create(ctx, map[string]any{"name": name, "genre_id": g.ID()}); err != nil {
				return err
			}
		}
	}
	return nil
}
