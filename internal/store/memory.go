package store

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/vyrodovalexey/bookstore/internal/model"
)

const backendMemory = "memory"

// MemoryStore implements Store in memory. It keeps insertion order.
type MemoryStore struct {
	mu    sync.RWMutex
	books []model.Book
}

// NewMemoryStore creates a new MemoryStore pre-populated with seed.
func NewMemoryStore(seed ...model.Book) *MemoryStore {
	books := make([]model.Book, 0, len(seed))
	for _, b := range seed {
		books = append(books, b.Clone())
	}
	return &MemoryStore{books: books}
}

// List returns all books from the store.
func (s *MemoryStore) List(ctx context.Context) (_ []model.Book, err error) {
	defer observe(backendMemory, "list", time.Now(), &err)

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("list books: %w", ctx.Err())
	default:
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	books := make([]model.Book, 0, len(s.books))
	for _, b := range s.books {
		books = append(books, b.Clone())
	}

	return books, nil
}

// Get retrieves a book by its ISBN.
func (s *MemoryStore) Get(ctx context.Context, isbn string) (_ *model.Book, err error) {
	defer observe(backendMemory, "get", time.Now(), &err)

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("get book: %w", ctx.Err())
	default:
	}

	if isbn == "" {
		return nil, ErrInvalidKey
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	i := s.indexOf(isbn)
	if i < 0 {
		return nil, ErrNotFound
	}

	book := s.books[i].Clone()
	return &book, nil
}

// Create appends a book to the store.
func (s *MemoryStore) Create(ctx context.Context, book *model.Book) (_ *model.Book, err error) {
	defer observe(backendMemory, "create", time.Now(), &err)

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("create book: %w", ctx.Err())
	default:
	}

	if book == nil {
		return nil, fmt.Errorf("create book: %w", ErrNilBook)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	created := book.Clone()
	created.ISBN = strings.TrimSpace(created.ISBN)
	s.books = append(s.books, created)

	out := created.Clone()
	return &out, nil
}

// Update replaces an existing book in the store.
func (s *MemoryStore) Update(ctx context.Context, isbn string, book *model.Book) (_ *model.Book, err error) {
	defer observe(backendMemory, "update", time.Now(), &err)

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("update book: %w", ctx.Err())
	default:
	}

	if isbn == "" {
		return nil, ErrInvalidKey
	}

	if book == nil {
		return nil, fmt.Errorf("update book: %w", ErrNilBook)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(isbn)
	if i < 0 {
		return nil, ErrNotFound
	}

	updated := book.Clone()
	updated.ISBN = strings.TrimSpace(updated.ISBN)
	if updated.ISBN == "" {
		updated.ISBN = s.books[i].ISBN
	}
	s.books[i] = updated

	out := updated.Clone()
	return &out, nil
}

// Delete removes a book from the store by its ISBN.
func (s *MemoryStore) Delete(ctx context.Context, isbn string) (err error) {
	defer observe(backendMemory, "delete", time.Now(), &err)

	select {
	case <-ctx.Done():
		return fmt.Errorf("delete book: %w", ctx.Err())
	default:
	}

	if isbn == "" {
		return ErrInvalidKey
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(isbn)
	if i < 0 {
		return ErrNotFound
	}

	s.books = append(s.books[:i], s.books[i+1:]...)

	return nil
}

// indexOf must be called with s.mu held.
func (s *MemoryStore) indexOf(isbn string) int {
	for i := range s.books {
		if s.books[i].HasISBN(isbn) {
			return i
		}
	}
	return -1
}
