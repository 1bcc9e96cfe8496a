package mapping

import "errors"

var (
	// ErrNotStruct is returned when a struct-backed entity is built from a non-struct type.
	ErrNotStruct = errors.New("entity type must be a struct")

	// ErrUnknownConverter is returned when a field names a converter that is not registered.
	ErrUnknownConverter = errors.New("unknown converter")

	// ErrDuplicateEntity is returned when a registry receives two entities with the same name.
	ErrDuplicateEntity = errors.New("duplicate entity")

	// ErrInvalidSchema is returned for malformed schema documents.
	ErrInvalidSchema = errors.New("invalid schema")

	// ErrConversion is returned when a value cannot be converted to or from its stored form.
	ErrConversion = errors.New("value conversion failed")

	// ErrTypeMismatch is returned when an entity of the wrong type is passed to a converter.
	ErrTypeMismatch = errors.New("entity type mismatch")
)
