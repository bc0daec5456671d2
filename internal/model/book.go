// Package model defines data structures used throughout the application.
package model

import (
	"strings"
	"time"
)

// AllCategories is the category filter value that disables category filtering.
const AllCategories = "All"

// Book represents a single catalog record identified by its ISBN.
type Book struct {
	ISBN     string   `json:"isbn"`
	Title    string   `json:"title"`
	Authors  []string `json:"authors"`
	Category string   `json:"category"`
	Year     int      `json:"year"`
	Price    float64  `json:"price"`
}

// Clone returns a deep copy of the book so callers can mutate it freely.
func (b Book) Clone() Book {
	out := b
	if b.Authors != nil {
		out.Authors = make([]string, len(b.Authors))
		copy(out.Authors, b.Authors)
	}
	return out
}

// AuthorList returns the authors joined the way they are displayed and searched.
func (b Book) AuthorList() string {
	return strings.Join(b.Authors, ", ")
}

// HasISBN reports whether the book is keyed by isbn. Keys compare
// case-insensitively and ignore surrounding whitespace.
func (b Book) HasISBN(isbn string) bool {
	return strings.EqualFold(strings.TrimSpace(b.ISBN), strings.TrimSpace(isbn))
}

// BookStats summarizes the catalog.
type BookStats struct {
	TotalBooks      int `json:"totalBooks"`
	TotalCategories int `json:"totalCategories"`
	TotalAuthors    int `json:"totalAuthors"`
}

// Page is one page of a filtered book listing.
type Page struct {
	TotalCount int    `json:"totalCount"`
	Items      []Book `json:"items"`
}

// ErrorResponse represents an error response structure.
type ErrorResponse struct {
	Code    int      `json:"code"`
	Message string   `json:"message"`
	Details []string `json:"details,omitempty"`
}

// Catalog event types.
const (
	EventBookCreated = "book_created"
	EventBookUpdated = "book_updated"
	EventBookDeleted = "book_deleted"
)

// CatalogEvent describes a committed change to the catalog.
type CatalogEvent struct {
	Type      string    `json:"type"`
	ISBN      string    `json:"isbn"`
	Book      *Book     `json:"book,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// NewCatalogEvent creates an event stamped with the current UTC time.
// The book is copied; pass nil for deletions.
func NewCatalogEvent(eventType, isbn string, book *Book) CatalogEvent {
	ev := CatalogEvent{
		Type:      eventType,
		ISBN:      isbn,
		Timestamp: time.Now().UTC(),
	}
	if book != nil {
		c := book.Clone()
		ev.Book = &c
	}
	return ev
}
