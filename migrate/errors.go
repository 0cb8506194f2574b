package migrate

import (
	"errors"
	"fmt"
)

// ErrDuplicateVersion is returned when two migrations in a set share a
// version number.
var ErrDuplicateVersion = errors.New("migrate: duplicate migration version")

// ErrVersionOrder is returned when a migration set is not in strictly
// ascending version order.
var ErrVersionOrder = errors.New("migrate: migrations out of version order")

// MigrationError reports a failed schema mutation. The run halts at the
// failing migration; earlier migrations stay applied.
type MigrationError struct {
	Version int
	Name    string
	Err     error
}

func (e *MigrationError) Error() string {
	return fmt.Sprintf("migrate: migration %d (%s): %v", e.Version, e.Name, e.Err)
}

func (e *MigrationError) Unwrap() error { return e.Err }
