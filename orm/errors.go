package orm

import "errors"

// ErrNotFound is returned when a lookup expects exactly one record but
// finds none.
var ErrNotFound = errors.New("orm: record not found")

// ErrUnknownAssociation is returned when resolving an association name
// that was never declared on the owner's type.
var ErrUnknownAssociation = errors.New("orm: unknown association")

// ErrUnknownAssociationTarget is returned when a declared association
// points at a record type that is not registered or whose table is
// missing from the schema. A configuration error, never retried.
var ErrUnknownAssociationTarget = errors.New("orm: unknown association target")

// ErrUnsupportedMutation is returned when building or appending through
// an association that has no direct foreign key to set (has-many-through,
// belongs-to). Such associations are read-only.
var ErrUnsupportedMutation = errors.New("orm: association is read-only")
