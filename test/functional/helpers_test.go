//go:build functional

// Package functional runs the catalog server against a real XML data file and
// exercises it over HTTP and websockets.
package functional

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/vyrodovalexey/bookstore/internal/auth"
	"github.com/vyrodovalexey/bookstore/internal/cache"
	"github.com/vyrodovalexey/bookstore/internal/catalog"
	"github.com/vyrodovalexey/bookstore/internal/config"
	"github.com/vyrodovalexey/bookstore/internal/handler"
	"github.com/vyrodovalexey/bookstore/internal/model"
	"github.com/vyrodovalexey/bookstore/internal/server"
	"github.com/vyrodovalexey/bookstore/internal/store"
)

// Environment variable names for test configuration.
const (
	EnvTestServerHost    = "TEST_SERVER_HOST"
	EnvTestMetricsEnable = "TEST_METRICS_ENABLED"
)

const (
	DefaultTestHost        = "127.0.0.1"
	DefaultReadyTimeout    = 10 * time.Second
	DefaultRequestTimeout  = 5 * time.Second
	DefaultShutdownTimeout = 5 * time.Second
)

// TestAPIKey is accepted for writes when a test server is started with auth.
const TestAPIKey = "functional-test-key"

// TestServer is a running catalog server backed by a temporary XML file.
type TestServer struct {
	Server   *server.Server
	Store    *store.XMLStore
	DataFile string
	BaseURL  string
	WSURL    string

	errCh chan error
	t     *testing.T
}

// ServerOption adjusts the test server configuration.
type ServerOption func(*config.Config)

// WithAPIKeyAuth protects writes with TestAPIKey.
func WithAPIKeyAuth() ServerOption {
	return func(cfg *config.Config) {
		cfg.AuthMode = string(auth.ModeAPIKey)
		cfg.APIKeys = TestAPIKey + ":functional"
	}
}

// WithSeed writes content as the initial data file.
func WithSeed(content string) ServerOption {
	return func(cfg *config.Config) {
		if err := os.WriteFile(cfg.DataFile, []byte(content), 0o600); err != nil {
			panic(err)
		}
	}
}

// StartTestServer starts a server and stops it when the test ends.
func StartTestServer(t *testing.T, opts ...ServerOption) *TestServer {
	t.Helper()

	host := DefaultTestHost
	if v := os.Getenv(EnvTestServerHost); v != "" {
		host = v
	}
	metrics, _ := strconv.ParseBool(os.Getenv(EnvTestMetricsEnable))

	cfg := &config.Config{
		LogLevel:          "error",
		ShutdownTimeout:   DefaultShutdownTimeout,
		MetricsEnabled:    metrics,
		MaxPageSize:       config.DefaultMaxPageSize,
		AllowedOrigins:    []string{"*"},
		DataFile:          filepath.Join(t.TempDir(), "books.xml"),
		StoreBackend:      config.StoreXML,
		CacheBackend:      config.CacheMemory,
		CacheListTTL:      config.DefaultCacheListTTL,
		CacheAggregateTTL: config.DefaultCacheAggregateTTL,
		AuthMode:          string(auth.ModeNone),
	}
	for _, opt := range opts {
		opt(cfg)
	}

	logger := zap.NewNop()

	st, err := store.NewXMLStore(cfg.DataFile, store.WithLogger(logger))
	if err != nil {
		t.Fatalf("Failed to open data file: %v", err)
	}

	authenticator, err := auth.New(cfg.AuthSettings())
	if err != nil {
		t.Fatalf("Failed to create authenticator: %v", err)
	}

	hub := handler.NewEventHub(logger, cfg.AllowedOrigins)
	svc := catalog.NewService(st, cache.NewMemoryCache(nil), logger,
		catalog.WithTTLs(cfg.CacheListTTL, cfg.CacheAggregateTTL),
		catalog.WithPublisher(hub),
	)
	srv := server.New(cfg, logger, svc,
		server.WithAuthenticator(authenticator),
		server.WithEventHub(hub),
		server.WithReadiness(func(ctx context.Context) error {
			_, err := st.List(ctx)
			return err
		}),
	)

	listener, err := net.Listen("tcp", net.JoinHostPort(host, "0"))
	if err != nil {
		t.Fatalf("Failed to listen: %v", err)
	}
	addr := listener.Addr().String()

	ts := &TestServer{
		Server:   srv,
		Store:    st,
		DataFile: cfg.DataFile,
		BaseURL:  "http://" + addr,
		WSURL:    "ws://" + addr,
		errCh:    make(chan error, 1),
		t:        t,
	}

	go func() {
		ts.errCh <- srv.Serve(listener)
	}()
	t.Cleanup(ts.Stop)

	ts.waitForReady()
	return ts
}

func (ts *TestServer) waitForReady() {
	ctx, cancel := context.WithTimeout(context.Background(), DefaultReadyTimeout)
	defer cancel()

	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			ts.t.Fatalf("Server did not become ready within timeout")
		case <-ticker.C:
			resp, err := http.Get(ts.BaseURL + "/ready")
			if err == nil {
				resp.Body.Close()
				if resp.StatusCode == http.StatusOK {
					return
				}
			}
		}
	}
}

// Stop shuts the server down and reports a serve error, if any.
func (ts *TestServer) Stop() {
	ctx, cancel := context.WithTimeout(context.Background(), DefaultShutdownTimeout)
	defer cancel()

	if err := ts.Server.Shutdown(ctx); err != nil {
		ts.t.Logf("Server shutdown error: %v", err)
	}
	if err := <-ts.errCh; err != nil {
		ts.t.Errorf("Server error: %v", err)
	}
}

// Response is a fully read HTTP response.
type Response struct {
	StatusCode int
	Headers    http.Header
	Body       []byte
}

// Do sends a request with an optional JSON body.
func (ts *TestServer) Do(method, path string, body any, headers map[string]string) *Response {
	ts.t.Helper()

	var reader io.Reader
	if body != nil {
		switch v := body.(type) {
		case string:
			reader = bytes.NewBufferString(v)
		default:
			data, err := json.Marshal(v)
			if err != nil {
				ts.t.Fatalf("Failed to marshal request body: %v", err)
			}
			reader = bytes.NewBuffer(data)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), DefaultRequestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, ts.BaseURL+path, reader)
	if err != nil {
		ts.t.Fatalf("Failed to create request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		ts.t.Fatalf("%s %s failed: %v", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		ts.t.Fatalf("Failed to read response body: %v", err)
	}

	return &Response{StatusCode: resp.StatusCode, Headers: resp.Header, Body: data}
}

// Decode unmarshals the response body into v.
func (r *Response) Decode(t *testing.T, v any) {
	t.Helper()
	if err := json.Unmarshal(r.Body, v); err != nil {
		t.Fatalf("Failed to decode %q: %v", string(r.Body), err)
	}
}

// SampleBook returns a valid book keyed by isbn.
func SampleBook(isbn string) model.Book {
	return model.Book{
		ISBN:     isbn,
		Title:    "Book " + isbn,
		Authors:  []string{"Author " + isbn},
		Category: "Programming",
		Year:     2015,
		Price:    29.99,
	}
}

// BookPath returns the item URL for isbn.
func BookPath(isbn string) string {
	return fmt.Sprintf("%s/%s", handler.BooksPath, isbn)
}

// AssertStatusCode asserts that the response has the expected status code.
func AssertStatusCode(t *testing.T, resp *Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		t.Errorf("Expected status code %d, got %d. Body: %s", expected, resp.StatusCode, string(resp.Body))
	}
}

// AssertHeader asserts that the response has the expected header value.
func AssertHeader(t *testing.T, resp *Response, key, expected string) {
	t.Helper()
	if actual := resp.Headers.Get(key); actual != expected {
		t.Errorf("Expected header %s to be %q, got %q", key, expected, actual)
	}
}

// LogTestStart logs the start of a test.
func LogTestStart(t *testing.T, testID, testName string) {
	t.Helper()
	t.Logf("Starting test %s: %s", testID, testName)
}

// LogTestEnd logs the end of a test.
func LogTestEnd(t *testing.T, testID string) {
	t.Helper()
	t.Logf("Completed test %s", testID)
}
