package validation

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/vyrodovalexey/bookstore/internal/model"
)

func fixedClock() time.Time {
	return time.Date(2025, time.June, 1, 12, 0, 0, 0, time.UTC)
}

func validBook() model.Book {
	return model.Book{
		ISBN:     "9780134190440",
		Title:    "The Go Programming Language",
		Authors:  []string{"Alan Donovan", "Brian Kernighan"},
		Category: "Programming",
		Year:     2015,
		Price:    39.99,
	}
}

func TestBookRules_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(b *model.Book)
		want   []string
	}{
		{
			name:   "valid book",
			mutate: func(_ *model.Book) {},
			want:   nil,
		},
		{
			name:   "zero price is allowed",
			mutate: func(b *model.Book) { b.Price = 0 },
			want:   nil,
		},
		{
			name:   "lower year bound inclusive",
			mutate: func(b *model.Book) { b.Year = MinYear },
			want:   nil,
		},
		{
			name:   "next year is allowed",
			mutate: func(b *model.Book) { b.Year = 2026 },
			want:   nil,
		},
		{
			name:   "blank isbn",
			mutate: func(b *model.Book) { b.ISBN = "  " },
			want:   []string{MsgISBNRequired},
		},
		{
			name:   "empty title",
			mutate: func(b *model.Book) { b.Title = "" },
			want:   []string{MsgTitleRequired},
		},
		{
			name:   "no authors",
			mutate: func(b *model.Book) { b.Authors = nil },
			want:   []string{MsgAuthorsRequired},
		},
		{
			name:   "empty authors slice",
			mutate: func(b *model.Book) { b.Authors = []string{} },
			want:   []string{MsgAuthorsRequired},
		},
		{
			name:   "whitespace author",
			mutate: func(b *model.Book) { b.Authors = []string{"Ann", " \t"} },
			want:   []string{MsgAuthorsRequired},
		},
		{
			name:   "missing category",
			mutate: func(b *model.Book) { b.Category = "" },
			want:   []string{MsgCategoryRequired},
		},
		{
			name:   "year too old",
			mutate: func(b *model.Book) { b.Year = 999 },
			want:   []string{MsgInvalidYear},
		},
		{
			name:   "year two years ahead",
			mutate: func(b *model.Book) { b.Year = 2027 },
			want:   []string{MsgInvalidYear},
		},
		{
			name:   "negative price",
			mutate: func(b *model.Book) { b.Price = -0.01 },
			want:   []string{MsgNegativePrice},
		},
		{
			name: "everything wrong keeps rule order",
			mutate: func(b *model.Book) {
				*b = model.Book{Price: math.Inf(-1)}
			},
			want: []string{
				MsgISBNRequired,
				MsgTitleRequired,
				MsgAuthorsRequired,
				MsgCategoryRequired,
				MsgInvalidYear,
				MsgNegativePrice,
			},
		},
	}

	rules := NewBookRules(fixedClock)

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			book := validBook()
			tt.mutate(&book)

			assert.Equal(t, tt.want, rules.Validate(book))
		})
	}
}

func TestBookRules_MaxYear(t *testing.T) {
	rules := NewBookRules(fixedClock)
	assert.Equal(t, 2026, rules.MaxYear())
}

func TestNewBookRules_DefaultClock(t *testing.T) {
	rules := NewBookRules(nil)
	assert.Equal(t, time.Now().UTC().Year()+1, rules.MaxYear())
}

func TestFunc_Validate(t *testing.T) {
	var called bool
	v := Func(func(b model.Book) []string {
		called = true
		return []string{"custom: " + b.ISBN}
	})

	got := v.Validate(model.Book{ISBN: "x"})

	assert.True(t, called)
	assert.Equal(t, []string{"custom: x"}, got)
}
