// Package validation holds the business rules a book must satisfy before it is stored.
package validation

import (
	"strings"
	"time"

	"github.com/vyrodovalexey/bookstore/internal/model"
)

// Violation messages, in the order they are reported.
const (
	MsgISBNRequired     = "ISBN is required."
	MsgTitleRequired    = "Title is required."
	MsgAuthorsRequired  = "At least one author is required and cannot be empty."
	MsgCategoryRequired = "Category is required."
	MsgInvalidYear      = "Invalid year."
	MsgNegativePrice    = "Price cannot be negative."
)

// MinYear is the earliest accepted publication year.
const MinYear = 1000

// Validator checks a candidate book and returns every rule it breaks.
// An empty result means the book is valid.
type Validator interface {
	Validate(book model.Book) []string
}

// Func adapts an ordinary function to the Validator interface.
type Func func(book model.Book) []string

// Validate calls f(book).
func (f Func) Validate(book model.Book) []string {
	return f(book)
}

// BookRules is the default rule set.
type BookRules struct {
	now func() time.Time
}

// NewBookRules creates the default rule set. now supplies the clock used for the
// upper year bound; nil means time.Now.
func NewBookRules(now func() time.Time) *BookRules {
	if now == nil {
		now = time.Now
	}
	return &BookRules{now: now}
}

// MaxYear returns the latest accepted publication year (next calendar year, UTC).
func (r *BookRules) MaxYear() int {
	return r.now().UTC().Year() + 1
}

// Validate returns the ordered list of violations for book.
func (r *BookRules) Validate(book model.Book) []string {
	var violations []string

	if isBlank(book.ISBN) {
		violations = append(violations, MsgISBNRequired)
	}

	if isBlank(book.Title) {
		violations = append(violations, MsgTitleRequired)
	}

	if !validAuthors(book.Authors) {
		violations = append(violations, MsgAuthorsRequired)
	}

	if isBlank(book.Category) {
		violations = append(violations, MsgCategoryRequired)
	}

	if book.Year < MinYear || book.Year > r.MaxYear() {
		violations = append(violations, MsgInvalidYear)
	}

	if book.Price < 0 {
		violations = append(violations, MsgNegativePrice)
	}

	return violations
}

func validAuthors(authors []string) bool {
	if len(authors) == 0 {
		return false
	}
	for _, a := range authors {
		if isBlank(a) {
			return false
		}
	}
	return true
}

func isBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}
