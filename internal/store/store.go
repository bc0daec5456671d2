// Package store provides data storage interfaces and implementations.
package store

import (
	"context"
	"errors"

	"github.com/vyrodovalexey/bookstore/internal/model"
)

// Store errors.
var (
	ErrNotFound   = errors.New("book not found")
	ErrInvalidKey = errors.New("invalid ISBN")
	ErrNilBook    = errors.New("book cannot be nil")
	ErrCorrupt    = errors.New("book document is malformed")
)

// Store defines book persistence. Implementations serialize writers, so the
// caller never needs its own locking. Keys compare case-insensitively.
// Store does not enforce ISBN uniqueness; that is the caller's job.
type Store interface {
	// List returns all books in storage order.
	List(ctx context.Context) ([]model.Book, error)

	// Get retrieves a book by its ISBN.
	Get(ctx context.Context, isbn string) (*model.Book, error)

	// Create appends a new book.
	Create(ctx context.Context, book *model.Book) (*model.Book, error)

	// Update replaces every field of the book stored under isbn.
	Update(ctx context.Context, isbn string, book *model.Book) (*model.Book, error)

	// Delete removes the book stored under isbn.
	Delete(ctx context.Context, isbn string) error
}
