package importer

import (
	"errors"

	"github.com/poiesic/reposit/storage"
)

var (
	// ErrInvalidMaxAttempts is returned when MaxRetries is <= 0
	ErrInvalidMaxAttempts = storage.ErrInvalidMaxAttempts

	// ErrCrudRequired is returned when no CRUD delegate is supplied
	ErrCrudRequired = errors.New("crud delegate is required")

	// ErrInvalidDocument is returned for documents that are not mappings
	ErrInvalidDocument = errors.New("invalid document")

	// ErrUnknownFormat is returned for file extensions with no decoder
	ErrUnknownFormat = errors.New("unknown document format")
)
