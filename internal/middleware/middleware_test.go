package middleware

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/vyrodovalexey/bookstore/internal/model"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestResponseWriter_WriteHeaderOnlyOnce(t *testing.T) {
	// Arrange
	rec := httptest.NewRecorder()
	rw := newResponseWriter(rec)

	// Act
	rw.WriteHeader(http.StatusCreated)
	rw.WriteHeader(http.StatusBadRequest)

	// Assert
	if rw.statusCode != http.StatusCreated {
		t.Errorf("statusCode = %d, want %d", rw.statusCode, http.StatusCreated)
	}
	if rec.Code != http.StatusCreated {
		t.Errorf("recorder code = %d, want %d", rec.Code, http.StatusCreated)
	}
}

func TestResponseWriter_WriteDefaultsToOK(t *testing.T) {
	rw := newResponseWriter(httptest.NewRecorder())

	n, err := rw.Write([]byte("body"))

	if err != nil {
		t.Fatalf("Write() error: %v", err)
	}
	if n != 4 {
		t.Errorf("Write() = %d, want 4", n)
	}
	if !rw.written || rw.statusCode != http.StatusOK {
		t.Errorf("written = %v, statusCode = %d", rw.written, rw.statusCode)
	}
}

func TestResponseWriter_HijackUnsupported(t *testing.T) {
	rw := newResponseWriter(httptest.NewRecorder())

	_, _, err := rw.Hijack()

	if err != http.ErrNotSupported {
		t.Errorf("Hijack() error = %v, want ErrNotSupported", err)
	}
}

func TestChain_Order(t *testing.T) {
	// Arrange
	var order []string
	mark := func(name string) Middleware {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}

	// Act
	h := Chain(mark("outer"), mark("inner"))(okHandler())
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	// Assert
	if strings.Join(order, ",") != "outer,inner" {
		t.Errorf("order = %v", order)
	}
}

func TestLogging_Levels(t *testing.T) {
	tests := []struct {
		name   string
		path   string
		status int
		level  string
	}{
		{name: "api request", path: "/api/books", status: http.StatusOK, level: "info"},
		{name: "probe request", path: "/health", status: http.StatusOK, level: "debug"},
		{name: "server error", path: "/api/books", status: http.StatusInternalServerError, level: "warn"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Arrange
			core, logs := observer.New(zap.DebugLevel)
			h := Logging(zap.New(core))(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
			}))

			// Act
			h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, tt.path, nil))

			// Assert
			entries := logs.All()
			if len(entries) != 1 {
				t.Fatalf("got %d log entries, want 1", len(entries))
			}
			if entries[0].Level.String() != tt.level {
				t.Errorf("level = %s, want %s", entries[0].Level, tt.level)
			}
			if got := entries[0].ContextMap()["status"]; got != int64(tt.status) {
				t.Errorf("status field = %v, want %d", got, tt.status)
			}
		})
	}
}

func TestRecovery_WritesGenericError(t *testing.T) {
	// Arrange
	core, logs := observer.New(zap.ErrorLevel)
	h := Recovery(zap.New(core))(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()

	// Act
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/books", nil))

	// Assert
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
	var body model.ErrorResponse
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decoding body: %v", err)
	}
	if body.Code != http.StatusInternalServerError || body.Message != MsgInternalError {
		t.Errorf("body = %+v", body)
	}
	if logs.Len() != 1 {
		t.Errorf("expected one error log, got %d", logs.Len())
	}
}

func TestRecovery_PassesThrough(t *testing.T) {
	rec := httptest.NewRecorder()

	Recovery(zap.NewNop())(okHandler()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}

func TestRequestID(t *testing.T) {
	tests := []struct {
		name     string
		incoming string
		keep     bool
	}{
		{name: "generated when missing", incoming: "", keep: false},
		{name: "kept when present", incoming: "abc-123", keep: true},
		{name: "replaced when oversized", incoming: strings.Repeat("x", 200), keep: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Arrange
			var fromCtx string
			h := RequestID()(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
				fromCtx, _ = r.Context().Value(RequestIDKey).(string)
			}))
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.incoming != "" {
				req.Header.Set(RequestIDHeader, tt.incoming)
			}
			rec := httptest.NewRecorder()

			// Act
			h.ServeHTTP(rec, req)

			// Assert
			got := rec.Header().Get(RequestIDHeader)
			if got == "" {
				t.Fatal("response has no request ID")
			}
			if fromCtx != got {
				t.Errorf("context ID %q differs from header %q", fromCtx, got)
			}
			if (got == tt.incoming) != tt.keep {
				t.Errorf("ID = %q, incoming %q, keep %v", got, tt.incoming, tt.keep)
			}
		})
	}
}

func TestMetrics_UsesRouteTemplate(t *testing.T) {
	// Arrange
	r := mux.NewRouter()
	r.Use(mux.MiddlewareFunc(Metrics()))
	var route string
	r.HandleFunc("/api/books/{isbn}", func(w http.ResponseWriter, req *http.Request) {
		route = routeTemplate(req)
		w.WriteHeader(http.StatusNotFound)
	})
	rec := httptest.NewRecorder()

	// Act
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/books/978-1", nil))

	// Assert
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
	if route != "/api/books/{isbn}" {
		t.Errorf("route = %q", route)
	}
}

func TestRouteTemplate_Unmatched(t *testing.T) {
	if got := routeTemplate(httptest.NewRequest(http.MethodGet, "/x", nil)); got != "unmatched" {
		t.Errorf("routeTemplate() = %q", got)
	}
}

func TestCORS(t *testing.T) {
	methods := []string{http.MethodGet, http.MethodPost}
	headers := []string{"Content-Type"}

	tests := []struct {
		name            string
		allowed         []string
		origin          string
		method          string
		wantOrigin      string
		wantCredentials bool
		wantStatus      int
	}{
		{
			name:            "allowed origin",
			allowed:         []string{"http://localhost:4200"},
			origin:          "http://localhost:4200",
			method:          http.MethodGet,
			wantOrigin:      "http://localhost:4200",
			wantCredentials: true,
			wantStatus:      http.StatusOK,
		},
		{
			name:            "configured with trailing slash",
			allowed:         []string{"http://localhost:4200/"},
			origin:          "http://localhost:4200",
			method:          http.MethodGet,
			wantOrigin:      "http://localhost:4200",
			wantCredentials: true,
			wantStatus:      http.StatusOK,
		},
		{
			name:       "disallowed origin",
			allowed:    []string{"http://localhost:4200"},
			origin:     "http://evil.example",
			method:     http.MethodGet,
			wantStatus: http.StatusOK,
		},
		{
			name:       "wildcard",
			allowed:    []string{"*"},
			origin:     "http://any.example",
			method:     http.MethodGet,
			wantOrigin: "http://any.example",
			wantStatus: http.StatusOK,
		},
		{
			name:            "preflight",
			allowed:         []string{"http://localhost:4200"},
			origin:          "http://localhost:4200",
			method:          http.MethodOptions,
			wantOrigin:      "http://localhost:4200",
			wantCredentials: true,
			wantStatus:      http.StatusNoContent,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Arrange
			h := CORS(tt.allowed, methods, headers)(okHandler())
			req := httptest.NewRequest(tt.method, "/api/books", nil)
			req.Header.Set("Origin", tt.origin)
			rec := httptest.NewRecorder()

			// Act
			h.ServeHTTP(rec, req)

			// Assert
			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if got := rec.Header().Get("Access-Control-Allow-Origin"); got != tt.wantOrigin {
				t.Errorf("Allow-Origin = %q, want %q", got, tt.wantOrigin)
			}
			if got := rec.Header().Get("Access-Control-Allow-Credentials") == "true"; got != tt.wantCredentials {
				t.Errorf("Allow-Credentials = %v, want %v", got, tt.wantCredentials)
			}
			if got := rec.Header().Get("Access-Control-Allow-Methods"); got != "GET, POST" {
				t.Errorf("Allow-Methods = %q", got)
			}
		})
	}
}

func TestBodyLimit(t *testing.T) {
	// Arrange
	var readErr error
	h := BodyLimit(8)(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		_, readErr = io.ReadAll(r.Body)
	}))
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(strings.Repeat("a", 64)))

	// Act
	h.ServeHTTP(httptest.NewRecorder(), req)

	// Assert
	if readErr == nil {
		t.Error("expected read error for oversized body")
	}
}

func TestWriteError(t *testing.T) {
	rec := httptest.NewRecorder()

	WriteError(rec, http.StatusBadRequest, "bad", "a", "b")

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}
	var body model.ErrorResponse
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decoding body: %v", err)
	}
	if body.Message != "bad" || len(body.Details) != 2 {
		t.Errorf("body = %+v", body)
	}
}

func TestWriteError_OmitsEmptyDetails(t *testing.T) {
	rec := httptest.NewRecorder()

	WriteError(rec, http.StatusNotFound, "missing")

	if strings.Contains(rec.Body.String(), "details") {
		t.Errorf("body = %s", rec.Body.String())
	}
}
