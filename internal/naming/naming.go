// Package naming derives database identifiers from Go-style type names
// following the usual relational conventions: snake_case columns,
// pluralized table names, and <singular>_id foreign keys.
package naming

import (
	"strings"
	"unicode"

	"github.com/jinzhu/inflection"
)

// CamelToSnake converts a CamelCase string to snake_case.
// Consecutive uppercase letters (acronyms) are kept together:
// "ID" → "id", "ArtistID" → "artist_id", "HTTPServer" → "http_server".
func CamelToSnake(s string) string {
	runes := []rune(s)
	var b strings.Builder
	for i, r := range runes {
		if unicode.IsUpper(r) {
			if i > 0 {
				prev := runes[i-1]
				next := rune(0)
				if i+1 < len(runes) {
					next = runes[i+1]
				}
				if unicode.IsLower(prev) || (unicode.IsUpper(prev) && unicode.IsLower(next)) {
					b.WriteByte('_')
				}
			}
			b.WriteRune(unicode.ToLower(r))
		} else {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// TableName returns the conventional table name for a record type name.
// e.g. "Song" → "songs", "PlaylistEntry" → "playlist_entries"
func TableName(typeName string) string {
	return inflection.Plural(CamelToSnake(typeName))
}

// ForeignKey returns the conventional foreign key column pointing at the
// given record type. e.g. "Artist" → "artist_id"
func ForeignKey(typeName string) string {
	return inflection.Singular(CamelToSnake(typeName)) + "_id"
}
