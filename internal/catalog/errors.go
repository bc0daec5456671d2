package catalog

import (
	"errors"
	"strings"
)

// Catalog errors. Callers match them with errors.Is.
var (
	ErrValidation = errors.New("book failed validation")
	ErrNotFound   = errors.New("book not found")
	ErrConflict   = errors.New("book already exists")
)

// ValidationError lists every rule a book broke.
type ValidationError struct {
	Violations []string
}

// Error joins the violations the way they are shown to API clients.
func (e *ValidationError) Error() string {
	return strings.Join(e.Violations, "; ")
}

// Is makes errors.Is(err, ErrValidation) true for any *ValidationError.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}
