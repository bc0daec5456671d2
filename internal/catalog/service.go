// Package catalog implements the bookstore business rules on top of a book store:
// validation, ISBN uniqueness, cached listings and aggregates, and change events.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/vyrodovalexey/bookstore/internal/cache"
	"github.com/vyrodovalexey/bookstore/internal/model"
	"github.com/vyrodovalexey/bookstore/internal/store"
	"github.com/vyrodovalexey/bookstore/internal/validation"
)

// Cache keys.
const (
	KeyAllBooks   = "books_all"
	KeyCategories = "categories"
	KeyStats      = "book_stats"
)

// Default cache lifetimes.
const (
	DefaultListTTL      = 30 * time.Second
	DefaultAggregateTTL = 10 * time.Minute
)

// Publisher receives an event after every committed write.
type Publisher interface {
	Publish(event model.CatalogEvent)
}

// Query selects one page of the catalog.
type Query struct {
	Page     int
	PageSize int
	Search   string
	Category string
}

// Service is the catalog service.
type Service struct {
	store     store.Store
	cache     cache.Cache
	validator validation.Validator
	publisher Publisher
	logger    *zap.Logger

	listTTL      time.Duration
	aggregateTTL time.Duration

	// writeMu makes the existence check and the store write of one
	// mutation atomic with respect to other mutations.
	writeMu sync.Mutex

	// fence keeps reads that started before a write from caching what
	// they loaded after the write invalidated the cache.
	fence cache.Fence
}

// Option configures a Service.
type Option func(*Service)

// WithValidator replaces the default rule set.
func WithValidator(v validation.Validator) Option {
	return func(s *Service) {
		s.validator = v
	}
}

// WithTTLs sets the lifetime of the cached book list and of the derived aggregates.
func WithTTLs(list, aggregate time.Duration) Option {
	return func(s *Service) {
		s.listTTL = list
		s.aggregateTTL = aggregate
	}
}

// WithPublisher sets the sink for change events.
func WithPublisher(p Publisher) Option {
	return func(s *Service) {
		s.publisher = p
	}
}

// NewService creates a catalog service over st, caching reads in c.
func NewService(st store.Store, c cache.Cache, logger *zap.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Service{
		store:        st,
		cache:        c,
		validator:    validation.NewBookRules(nil),
		logger:       logger,
		listTTL:      DefaultListTTL,
		aggregateTTL: DefaultAggregateTTL,
	}
	for _, opt := range opts {
		opt(s)
	}

	return s
}

// List returns the whole catalog.
func (s *Service) List(ctx context.Context) ([]model.Book, error) {
	return s.cachedBooks(ctx)
}

// FindPage filters the catalog and returns the requested page together with
// the number of matching books. Pages are 1-based; a page past the end is empty.
func (s *Service) FindPage(ctx context.Context, q Query) (model.Page, error) {
	books, err := s.cachedBooks(ctx)
	if err != nil {
		return model.Page{}, err
	}

	matched := filterBooks(books, q.Search, q.Category)

	return model.Page{
		TotalCount: len(matched),
		Items:      paginate(matched, q.Page, q.PageSize),
	}, nil
}

// FindByISBN returns the book with the given ISBN.
func (s *Service) FindByISBN(ctx context.Context, isbn string) (*model.Book, error) {
	books, err := s.cachedBooks(ctx)
	if err != nil {
		return nil, err
	}

	for i := range books {
		if books[i].HasISBN(isbn) {
			return &books[i], nil
		}
	}

	return nil, fmt.Errorf("book with ISBN '%s': %w", isbn, ErrNotFound)
}

// DistinctCategories returns the category names, most populated first.
// Categories that differ only in case are merged under their first spelling.
func (s *Service) DistinctCategories(ctx context.Context) ([]string, error) {
	return cache.GetOrComputeFenced(ctx, s.cache, &s.fence, s.logger, KeyCategories, s.aggregateTTL,
		func(ctx context.Context) ([]string, error) {
			books, err := s.cachedBooks(ctx)
			if err != nil {
				return nil, err
			}
			return distinctCategories(books), nil
		})
}

// Stats returns catalog totals.
func (s *Service) Stats(ctx context.Context) (model.BookStats, error) {
	return cache.GetOrComputeFenced(ctx, s.cache, &s.fence, s.logger, KeyStats, s.aggregateTTL,
		func(ctx context.Context) (model.BookStats, error) {
			books, err := s.cachedBooks(ctx)
			if err != nil {
				return model.BookStats{}, err
			}
			return computeStats(books), nil
		})
}

// Create validates and stores a new book.
func (s *Service) Create(ctx context.Context, book model.Book) (_ *model.Book, err error) {
	defer func() { recordWrite("create", err) }()

	book.ISBN = strings.TrimSpace(book.ISBN)
	s.logger.Info("adding book", zap.String("isbn", book.ISBN))

	if err := s.validate(book); err != nil {
		return nil, err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	exists, err := s.exists(ctx, book.ISBN)
	if err != nil {
		return nil, err
	}
	if exists {
		s.logger.Warn("attempted to add duplicate book", zap.String("isbn", book.ISBN))
		return nil, fmt.Errorf("book with ISBN '%s': %w", book.ISBN, ErrConflict)
	}

	created, err := s.store.Create(ctx, &book)
	if err != nil {
		return nil, fmt.Errorf("storing book %s: %w", book.ISBN, err)
	}

	s.afterWrite(ctx, model.NewCatalogEvent(model.EventBookCreated, created.ISBN, created))
	s.logger.Info("added book", zap.String("isbn", created.ISBN))

	return created, nil
}

// Update replaces the book stored under isbn. The book may carry a new ISBN
// as long as no other book uses it.
func (s *Service) Update(ctx context.Context, isbn string, book model.Book) (_ *model.Book, err error) {
	defer func() { recordWrite("update", err) }()

	isbn = strings.TrimSpace(isbn)
	book.ISBN = strings.TrimSpace(book.ISBN)
	if err := s.validate(book); err != nil {
		return nil, err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	exists, err := s.exists(ctx, isbn)
	if err != nil {
		return nil, err
	}
	if !exists {
		s.logger.Warn("update of unknown book", zap.String("isbn", isbn))
		return nil, fmt.Errorf("book with ISBN '%s': %w", isbn, ErrNotFound)
	}

	if !strings.EqualFold(book.ISBN, isbn) {
		taken, err := s.exists(ctx, book.ISBN)
		if err != nil {
			return nil, err
		}
		if taken {
			s.logger.Warn("rename onto existing ISBN",
				zap.String("isbn", isbn), zap.String("new_isbn", book.ISBN))
			return nil, fmt.Errorf("book with ISBN '%s': %w", book.ISBN, ErrConflict)
		}
	}

	updated, err := s.store.Update(ctx, isbn, &book)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("book with ISBN '%s': %w", isbn, ErrNotFound)
		}
		return nil, fmt.Errorf("updating book %s: %w", isbn, err)
	}

	s.afterWrite(ctx, model.NewCatalogEvent(model.EventBookUpdated, isbn, updated))
	s.logger.Info("updated book", zap.String("isbn", isbn), zap.String("stored_isbn", updated.ISBN))

	return updated, nil
}

// Delete removes the book stored under isbn.
func (s *Service) Delete(ctx context.Context, isbn string) (err error) {
	defer func() { recordWrite("delete", err) }()

	isbn = strings.TrimSpace(isbn)

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	exists, err := s.exists(ctx, isbn)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("book with ISBN '%s': %w", isbn, ErrNotFound)
	}

	if err := s.store.Delete(ctx, isbn); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("book with ISBN '%s': %w", isbn, ErrNotFound)
		}
		return fmt.Errorf("deleting book %s: %w", isbn, err)
	}

	s.afterWrite(ctx, model.NewCatalogEvent(model.EventBookDeleted, isbn, nil))
	s.logger.Info("deleted book", zap.String("isbn", isbn))

	return nil
}

// Invalidate drops every cached listing and aggregate. Reads already in
// flight do not cache what they loaded.
func (s *Service) Invalidate(ctx context.Context) error {
	return s.fence.Advance(func() error {
		return cache.Invalidate(ctx, s.cache, KeyAllBooks, KeyCategories, KeyStats)
	})
}

func (s *Service) validate(book model.Book) error {
	violations := s.validator.Validate(book)
	if len(violations) == 0 {
		return nil
	}

	verr := &ValidationError{Violations: violations}
	s.logger.Warn("book validation failed",
		zap.String("isbn", book.ISBN), zap.String("violations", verr.Error()))
	return verr
}

// exists consults the store rather than the cache so that writes never act
// on a stale listing.
func (s *Service) exists(ctx context.Context, isbn string) (bool, error) {
	if strings.TrimSpace(isbn) == "" {
		return false, nil
	}

	_, err := s.store.Get(ctx, strings.TrimSpace(isbn))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, store.ErrNotFound):
		return false, nil
	default:
		return false, fmt.Errorf("looking up book %s: %w", isbn, err)
	}
}

func (s *Service) afterWrite(ctx context.Context, event model.CatalogEvent) {
	if err := s.Invalidate(ctx); err != nil {
		s.logger.Error("cache invalidation failed", zap.Error(err))
	}

	if s.publisher != nil {
		s.publisher.Publish(event)
	}
}

func (s *Service) cachedBooks(ctx context.Context) ([]model.Book, error) {
	return cache.GetOrComputeFenced(ctx, s.cache, &s.fence, s.logger, KeyAllBooks, s.listTTL,
		func(ctx context.Context) ([]model.Book, error) {
			books, err := s.store.List(ctx)
			if err != nil {
				return nil, fmt.Errorf("loading books: %w", err)
			}
			catalogBooks.Set(float64(len(books)))
			return books, nil
		})
}

func filterBooks(books []model.Book, search, category string) []model.Book {
	needle := strings.ToLower(strings.TrimSpace(search))
	category = strings.TrimSpace(category)
	filterCategory := category != "" && !strings.EqualFold(category, model.AllCategories)

	if needle == "" && !filterCategory {
		return books
	}

	out := make([]model.Book, 0, len(books))
	for _, b := range books {
		if needle != "" && !matchesSearch(b, needle) {
			continue
		}
		if filterCategory && !strings.EqualFold(b.Category, category) {
			continue
		}
		out = append(out, b)
	}
	return out
}

func matchesSearch(b model.Book, needle string) bool {
	return strings.Contains(strings.ToLower(b.Title), needle) ||
		strings.Contains(strings.ToLower(b.ISBN), needle) ||
		strings.Contains(strings.ToLower(b.AuthorList()), needle)
}

func paginate(books []model.Book, page, size int) []model.Book {
	if size <= 0 {
		return []model.Book{}
	}

	skip := (page - 1) * size
	if skip < 0 {
		skip = 0
	}
	if skip >= len(books) {
		return []model.Book{}
	}

	end := skip + size
	if end > len(books) {
		end = len(books)
	}

	out := make([]model.Book, end-skip)
	copy(out, books[skip:end])
	return out
}

func distinctCategories(books []model.Book) []string {
	type group struct {
		name  string
		count int
	}

	var groups []*group
	byKey := make(map[string]*group)

	for _, b := range books {
		if strings.TrimSpace(b.Category) == "" {
			continue
		}
		key := strings.ToLower(b.Category)
		g, ok := byKey[key]
		if !ok {
			g = &group{name: b.Category}
			byKey[key] = g
			groups = append(groups, g)
		}
		g.count++
	}

	sort.SliceStable(groups, func(i, j int) bool {
		return groups[i].count > groups[j].count
	})

	names := make([]string, len(groups))
	for i, g := range groups {
		names[i] = g.name
	}
	return names
}

func computeStats(books []model.Book) model.BookStats {
	categories := make(map[string]struct{})
	authors := make(map[string]struct{})

	for _, b := range books {
		if strings.TrimSpace(b.Category) != "" {
			categories[strings.ToLower(b.Category)] = struct{}{}
		}
		for _, a := range b.Authors {
			if strings.TrimSpace(a) == "" {
				continue
			}
			authors[strings.ToLower(a)] = struct{}{}
		}
	}

	return model.BookStats{
		TotalBooks:      len(books),
		TotalCategories: len(categories),
		TotalAuthors:    len(authors),
	}
}
