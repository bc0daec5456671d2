package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/vyrodovalexey/bookstore/internal/catalog"
	"github.com/vyrodovalexey/bookstore/internal/middleware"
	"github.com/vyrodovalexey/bookstore/internal/model"
	"github.com/vyrodovalexey/bookstore/internal/report"
)

// Paging defaults.
const (
	DefaultPageSize    = 10
	DefaultMaxPageSize = 20
)

// BooksPath is the collection route.
const BooksPath = "/api/books"

// BookService is the catalog behaviour the handlers need.
type BookService interface {
	List(ctx context.Context) ([]model.Book, error)
	FindPage(ctx context.Context, q catalog.Query) (model.Page, error)
	FindByISBN(ctx context.Context, isbn string) (*model.Book, error)
	DistinctCategories(ctx context.Context) ([]string, error)
	Stats(ctx context.Context) (model.BookStats, error)
	Create(ctx context.Context, book model.Book) (*model.Book, error)
	Update(ctx context.Context, isbn string, book model.Book) (*model.Book, error)
	Delete(ctx context.Context, isbn string) error
}

// BookHandler serves the /api/books routes.
type BookHandler struct {
	service     BookService
	reports     *report.Generator
	logger      *zap.Logger
	maxPageSize int
}

// NewBookHandler creates a BookHandler. maxPageSize <= 0 means DefaultMaxPageSize.
func NewBookHandler(service BookService, reports *report.Generator, logger *zap.Logger, maxPageSize int) *BookHandler {
	if maxPageSize <= 0 {
		maxPageSize = DefaultMaxPageSize
	}
	if reports == nil {
		reports = report.NewGenerator(nil)
	}
	return &BookHandler{
		service:     service,
		reports:     reports,
		logger:      logger,
		maxPageSize: maxPageSize,
	}
}

// RegisterRoutes registers the book routes. Fixed sub-paths are registered
// before /{isbn} so they are not taken for keys.
func (h *BookHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc(BooksPath, h.ListBooks).Methods(http.MethodGet)
	router.HandleFunc(BooksPath, h.CreateBook).Methods(http.MethodPost)
	router.HandleFunc(BooksPath+"/categories", h.Categories).Methods(http.MethodGet)
	router.HandleFunc(BooksPath+"/stats", h.Stats).Methods(http.MethodGet)
	router.HandleFunc(BooksPath+"/report", h.HTMLReport).Methods(http.MethodGet)
	router.HandleFunc(BooksPath+"/report.xlsx", h.XLSXReport).Methods(http.MethodGet)
	router.HandleFunc(BooksPath+"/{isbn}", h.GetBook).Methods(http.MethodGet)
	router.HandleFunc(BooksPath+"/{isbn}", h.UpdateBook).Methods(http.MethodPut)
	router.HandleFunc(BooksPath+"/{isbn}", h.DeleteBook).Methods(http.MethodDelete)
}

// ListBooks handles GET /api/books.
func (h *BookHandler) ListBooks(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	page, err := intParam(q, "pageNumber", 1)
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	if page < 1 {
		middleware.WriteError(w, http.StatusBadRequest,
			fmt.Sprintf("Page number must be at least 1. Provided: %d", page))
		return
	}

	size, err := intParam(q, "pageSize", DefaultPageSize)
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	if size < 1 || size > h.maxPageSize {
		middleware.WriteError(w, http.StatusBadRequest,
			fmt.Sprintf("Page size must be between 1 and %d. Provided: %d", h.maxPageSize, size))
		return
	}

	result, err := h.service.FindPage(r.Context(), catalog.Query{
		Page:     page,
		PageSize: size,
		Search:   q.Get("search"),
		Category: q.Get("category"),
	})
	if err != nil {
		h.handleServiceError(w, r, err, "list books")
		return
	}

	writeJSON(w, h.logger, http.StatusOK, result)
}

// GetBook handles GET /api/books/{isbn}.
func (h *BookHandler) GetBook(w http.ResponseWriter, r *http.Request) {
	isbn, ok := isbnVar(w, r)
	if !ok {
		return
	}

	book, err := h.service.FindByISBN(r.Context(), isbn)
	if err != nil {
		h.handleServiceError(w, r, err, "get book")
		return
	}

	writeJSON(w, h.logger, http.StatusOK, book)
}

// CreateBook handles POST /api/books.
func (h *BookHandler) CreateBook(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeBook(w, r)
	if !ok {
		return
	}

	book, err := h.service.Create(r.Context(), req.Book())
	if err != nil {
		h.handleServiceError(w, r, err, "create book")
		return
	}

	w.Header().Set("Location", BooksPath+"/"+url.PathEscape(book.ISBN))
	writeJSON(w, h.logger, http.StatusCreated, book)
}

// UpdateBook handles PUT /api/books/{isbn}.
func (h *BookHandler) UpdateBook(w http.ResponseWriter, r *http.Request) {
	isbn, ok := isbnVar(w, r)
	if !ok {
		return
	}

	req, ok := h.decodeBook(w, r)
	if !ok {
		return
	}

	if _, err := h.service.Update(r.Context(), isbn, req.Book()); err != nil {
		h.handleServiceError(w, r, err, "update book")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// DeleteBook handles DELETE /api/books/{isbn}.
func (h *BookHandler) DeleteBook(w http.ResponseWriter, r *http.Request) {
	isbn, ok := isbnVar(w, r)
	if !ok {
		return
	}

	if err := h.service.Delete(r.Context(), isbn); err != nil {
		h.handleServiceError(w, r, err, "delete book")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Categories handles GET /api/books/categories.
func (h *BookHandler) Categories(w http.ResponseWriter, r *http.Request) {
	categories, err := h.service.DistinctCategories(r.Context())
	if err != nil {
		h.handleServiceError(w, r, err, "list categories")
		return
	}
	if categories == nil {
		categories = []string{}
	}

	writeJSON(w, h.logger, http.StatusOK, categories)
}

// Stats handles GET /api/books/stats.
func (h *BookHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.Stats(r.Context())
	if err != nil {
		h.handleServiceError(w, r, err, "book stats")
		return
	}

	writeJSON(w, h.logger, http.StatusOK, stats)
}

// HTMLReport handles GET /api/books/report.
func (h *BookHandler) HTMLReport(w http.ResponseWriter, r *http.Request) {
	h.writeReport(w, r, report.ContentTypeHTML, "", h.reports.WriteHTML)
}

// XLSXReport handles GET /api/books/report.xlsx.
func (h *BookHandler) XLSXReport(w http.ResponseWriter, r *http.Request) {
	h.writeReport(w, r, report.ContentTypeXLSX, `attachment; filename="books.xlsx"`, h.reports.WriteXLSX)
}

func (h *BookHandler) writeReport(
	w http.ResponseWriter,
	r *http.Request,
	contentType, disposition string,
	render func(io.Writer, []model.Book) error,
) {
	books, err := h.service.List(r.Context())
	if err != nil {
		h.handleServiceError(w, r, err, "report")
		return
	}

	// Render fully before writing so a failure can still become a 500.
	var buf bytes.Buffer
	if err := render(&buf, books); err != nil {
		h.handleServiceError(w, r, err, "render report")
		return
	}

	w.Header().Set("Content-Type", contentType)
	if disposition != "" {
		w.Header().Set("Content-Disposition", disposition)
	}
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	if _, err := buf.WriteTo(w); err != nil {
		h.logger.Debug("failed to write report", zap.Error(err))
	}
}

func (h *BookHandler) decodeBook(w http.ResponseWriter, r *http.Request) (BookRequest, bool) {
	var req BookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			middleware.WriteError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return req, false
		}
		h.logger.Warn("invalid request body", zap.Error(err))
		middleware.WriteError(w, http.StatusBadRequest, "invalid request body")
		return req, false
	}

	if details := req.fieldErrors(); len(details) > 0 {
		h.logger.Warn("request validation failed", zap.Strings("details", details))
		middleware.WriteError(w, http.StatusBadRequest, MsgInvalidRequest, details...)
		return req, false
	}

	return req, true
}

// handleServiceError maps catalog errors to responses. Unexpected errors are
// logged in full and answered with the generic message.
func (h *BookHandler) handleServiceError(w http.ResponseWriter, r *http.Request, err error, operation string) {
	var verr *catalog.ValidationError

	switch {
	case errors.As(err, &verr):
		middleware.WriteError(w, http.StatusBadRequest, verr.Error(), verr.Violations...)
	case errors.Is(err, catalog.ErrNotFound):
		middleware.WriteError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, catalog.ErrConflict):
		middleware.WriteError(w, http.StatusConflict, err.Error())
	default:
		h.logger.Error("request failed",
			zap.String("operation", operation),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("request_id", middleware.GetRequestID(r)),
			zap.Error(err),
		)
		middleware.WriteError(w, http.StatusInternalServerError, middleware.MsgInternalError)
	}
}

func isbnVar(w http.ResponseWriter, r *http.Request) (string, bool) {
	isbn := strings.TrimSpace(mux.Vars(r)["isbn"])
	if isbn == "" {
		middleware.WriteError(w, http.StatusBadRequest, "ISBN is required.")
		return "", false
	}
	return isbn, true
}

func intParam(q url.Values, name string, def int) (int, error) {
	raw := strings.TrimSpace(q.Get(name))
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer. Provided: %s", name, raw)
	}
	return v, nil
}
