package store

import (
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/vyrodovalexey/bookstore/internal/model"
)

const backendXML = "xml"

// emptyDocument is written when the data file does not exist yet.
const emptyDocument = xml.Header + "<books></books>\n"

// xmlDocument mirrors the on-disk layout:
//
//	<books>
//	  <book category="...">
//	    <isbn/> <title/> <author/>... <year/> <price/>
//	  </book>
//	</books>
type xmlDocument struct {
	XMLName xml.Name  `xml:"books"`
	Books   []xmlBook `xml:"book"`
}

// xmlBook keeps year and price as text so a bad value in one record
// does not make the whole document unreadable.
type xmlBook struct {
	Category string   `xml:"category,attr"`
	ISBN     string   `xml:"isbn"`
	Title    string   `xml:"title"`
	Authors  []string `xml:"author"`
	Year     string   `xml:"year"`
	Price    string   `xml:"price"`
}

// XMLStore implements Store on top of a single XML document.
// Every operation reads the whole file; every write rewrites it.
type XMLStore struct {
	mu     sync.RWMutex
	path   string
	logger *zap.Logger
}

// XMLOption configures an XMLStore.
type XMLOption func(*XMLStore)

// WithLogger sets the logger used to report defaulted field values.
func WithLogger(logger *zap.Logger) XMLOption {
	return func(s *XMLStore) {
		s.logger = logger
	}
}

// NewXMLStore opens the document at path, creating an empty one
// (and its parent directories) when it does not exist.
func NewXMLStore(path string, opts ...XMLOption) (*XMLStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("xml store: path must not be empty")
	}

	s := &XMLStore{
		path:   path,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := ensureDocument(path); err != nil {
		return nil, fmt.Errorf("xml store: %w", err)
	}

	return s, nil
}

// Path returns the location of the backing document.
func (s *XMLStore) Path() string {
	return s.path
}

// List returns all books in document order.
func (s *XMLStore) List(ctx context.Context) (_ []model.Book, err error) {
	defer observe(backendXML, "list", time.Now(), &err)

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("list books: %w", ctx.Err())
	default:
	}

	books, err := s.readAll()
	if err != nil {
		return nil, fmt.Errorf("list books: %w", err)
	}
	return books, nil
}

// Get retrieves a book by its ISBN.
func (s *XMLStore) Get(ctx context.Context, isbn string) (_ *model.Book, err error) {
	defer observe(backendXML, "get", time.Now(), &err)

	if isbn == "" {
		return nil, ErrInvalidKey
	}

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("get book: %w", ctx.Err())
	default:
	}

	books, err := s.readAll()
	if err != nil {
		return nil, fmt.Errorf("get book: %w", err)
	}

	for i := range books {
		if books[i].HasISBN(isbn) {
			return &books[i], nil
		}
	}

	return nil, ErrNotFound
}

// Create appends a book to the document.
func (s *XMLStore) Create(ctx context.Context, book *model.Book) (_ *model.Book, err error) {
	defer observe(backendXML, "create", time.Now(), &err)

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

	doc, err := s.load()
	if err != nil {
		return nil, fmt.Errorf("create book: %w", err)
	}

	doc.Books = append(doc.Books, fromModel(book))

	if err := s.save(doc); err != nil {
		return nil, fmt.Errorf("create book: %w", err)
	}

	created := s.toModel(&doc.Books[len(doc.Books)-1])
	return &created, nil
}

// Update replaces every field of the book stored under isbn.
// An empty ISBN on book keeps the existing key.
func (s *XMLStore) Update(ctx context.Context, isbn string, book *model.Book) (_ *model.Book, err error) {
	defer observe(backendXML, "update", time.Now(), &err)

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

	doc, err := s.load()
	if err != nil {
		return nil, fmt.Errorf("update book: %w", err)
	}

	i := indexOfXML(doc.Books, isbn)
	if i < 0 {
		return nil, ErrNotFound
	}

	replacement := fromModel(book)
	if replacement.ISBN == "" {
		replacement.ISBN = doc.Books[i].ISBN
	}
	doc.Books[i] = replacement

	if err := s.save(doc); err != nil {
		return nil, fmt.Errorf("update book: %w", err)
	}

	updated := s.toModel(&doc.Books[i])
	return &updated, nil
}

// Delete removes the book stored under isbn.
func (s *XMLStore) Delete(ctx context.Context, isbn string) (err error) {
	defer observe(backendXML, "delete", time.Now(), &err)

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

	doc, err := s.load()
	if err != nil {
		return fmt.Errorf("delete book: %w", err)
	}

	i := indexOfXML(doc.Books, isbn)
	if i < 0 {
		return ErrNotFound
	}

	doc.Books = append(doc.Books[:i], doc.Books[i+1:]...)

	if err := s.save(doc); err != nil {
		return fmt.Errorf("delete book: %w", err)
	}

	return nil
}

// readAll loads the document under the read lock and converts every record.
func (s *XMLStore) readAll() ([]model.Book, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, err := s.load()
	if err != nil {
		return nil, err
	}

	books := make([]model.Book, 0, len(doc.Books))
	for i := range doc.Books {
		books = append(books, s.toModel(&doc.Books[i]))
	}
	return books, nil
}

// load reads and parses the whole document. Caller holds s.mu.
func (s *XMLStore) load() (*xmlDocument, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", s.path, err)
	}

	var doc xmlDocument
	if err := xml.Unmarshal(data, &doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: %s is empty", ErrCorrupt, s.path)
		}
		return nil, fmt.Errorf("%w: %s: %v", ErrCorrupt, s.path, err)
	}

	return &doc, nil
}

// save replaces the document on disk. The new content is written to a
// temporary file in the same directory and renamed over the original.
// Caller holds s.mu for writing.
func (s *XMLStore) save(doc *xmlDocument) error {
	var buf bytes.Buffer
	buf.WriteString(xml.Header)

	enc := xml.NewEncoder(&buf)
	enc.Indent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encoding document: %w", err)
	}
	buf.WriteByte('\n')

	return writeFileAtomic(s.path, buf.Bytes())
}

// toModel converts a parsed record, defaulting values that do not parse.
func (s *XMLStore) toModel(b *xmlBook) model.Book {
	book := model.Book{
		ISBN:     strings.TrimSpace(b.ISBN),
		Title:    b.Title,
		Category: b.Category,
	}

	if len(b.Authors) > 0 {
		book.Authors = make([]string, len(b.Authors))
		copy(book.Authors, b.Authors)
	}

	if v := strings.TrimSpace(b.Year); v != "" {
		year, err := strconv.Atoi(v)
		if err != nil {
			s.logger.Warn("defaulting unparseable year",
				zap.String("isbn", book.ISBN), zap.String("value", v))
		} else {
			book.Year = year
		}
	}

	if v := strings.TrimSpace(b.Price); v != "" {
		price, err := strconv.ParseFloat(v, 64)
		if err != nil {
			s.logger.Warn("defaulting unparseable price",
				zap.String("isbn", book.ISBN), zap.String("value", v))
		} else {
			book.Price = price
		}
	}

	return book
}

func fromModel(b *model.Book) xmlBook {
	out := xmlBook{
		Category: sanitize(b.Category),
		ISBN:     sanitize(strings.TrimSpace(b.ISBN)),
		Title:    sanitize(b.Title),
		Year:     strconv.Itoa(b.Year),
		Price:    strconv.FormatFloat(b.Price, 'f', -1, 64),
	}

	if len(b.Authors) > 0 {
		out.Authors = make([]string, len(b.Authors))
		for i, a := range b.Authors {
			out.Authors[i] = sanitize(a)
		}
	}

	return out
}

func indexOfXML(books []xmlBook, isbn string) int {
	key := strings.TrimSpace(isbn)
	for i := range books {
		if strings.EqualFold(strings.TrimSpace(books[i].ISBN), key) {
			return i
		}
	}
	return -1
}

// sanitize drops runes that are not legal XML 1.0 characters.
func sanitize(s string) string {
	clean := true
	for _, r := range s {
		if !isXMLChar(r) {
			clean = false
			break
		}
	}
	if clean {
		return s
	}

	var sb strings.Builder
	sb.Grow(len(s))
	for _, r := range s {
		if isXMLChar(r) {
			sb.WriteRune(r)
		}
	}
	return sb.String()
}

func isXMLChar(r rune) bool {
	switch {
	case r == 0x09, r == 0x0A, r == 0x0D:
		return true
	case r >= 0x20 && r <= 0xD7FF:
		return true
	case r >= 0xE000 && r <= 0xFFFD:
		return true
	case r >= 0x10000 && r <= 0x10FFFF:
		return true
	}
	return false
}

func ensureDocument(path string) error {
	_, err := os.Stat(path)
	if err == nil {
		return nil
	}
	if !os.IsNotExist(err) {
		return fmt.Errorf("stat %s: %w", path, err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}

	return writeFileAtomic(path, []byte(emptyDocument))
}

func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()

	cleanup := func() {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
	}

	if _, err := tmp.Write(data); err != nil {
		cleanup()
		return fmt.Errorf("writing temp file: %w", err)
	}

	if err := tmp.Sync(); err != nil {
		cleanup()
		return fmt.Errorf("syncing temp file: %w", err)
	}

	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("closing temp file: %w", err)
	}

	if err := os.Chmod(tmpName, 0o644); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("setting file mode: %w", err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("replacing %s: %w", path, err)
	}

	return nil
}
