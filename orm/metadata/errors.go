package metadata

import "errors"

// Common metadata resolution error types
var (
	// ErrObjectTypeNotFound is returned when a type carries no object-type
	// descriptor or its name is empty
	ErrObjectTypeNotFound = errors.New("object type descriptor not found")

	// ErrReflectionFailure is returned when a type cannot be introspected
	ErrReflectionFailure = errors.New("entity type cannot be introspected")

	// ErrFieldNotFound is returned when a field lookup by name yields no match
	ErrFieldNotFound = errors.New("field not found")

	// ErrDuplicateMapping is returned when two fields map to the same external name
	ErrDuplicateMapping = errors.New("duplicate field mapping")

	// ErrInvalidTag is returned when a descriptor tag cannot be parsed
	ErrInvalidTag = errors.New("invalid descriptor tag")
)

// IsObjectTypeNotFound returns true if the error is ErrObjectTypeNotFound
func IsObjectTypeNotFound(err error) bool {
	return errors.Is(err, ErrObjectTypeNotFound)
}

// IsReflectionFailure returns true if the error is ErrReflectionFailure
func IsReflectionFailure(err error) bool {
	return errors.Is(err, ErrReflectionFailure)
}

// IsFieldNotFound returns true if the error is ErrFieldNotFound
func IsFieldNotFound(err error) bool {
	return errors.Is(err, ErrFieldNotFound)
}
