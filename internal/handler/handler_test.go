package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

func TestProbeHandler_Health(t *testing.T) {
	// Arrange
	router := mux.NewRouter()
	NewProbeHandler(nil, zap.NewNop()).RegisterRoutes(router)
	rec := httptest.NewRecorder()

	// Act
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	// Assert
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body HealthResponse
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decoding body: %v", err)
	}
	if body.Status != "healthy" || body.Version != Version {
		t.Errorf("body = %+v", body)
	}
}

func TestProbeHandler_Ready(t *testing.T) {
	tests := []struct {
		name       string
		ready      ReadyFunc
		wantStatus int
		wantBody   string
		wantError  string
	}{
		{name: "no check", ready: nil, wantStatus: http.StatusOK, wantBody: "ready"},
		{
			name:       "check passes",
			ready:      func(context.Context) error { return nil },
			wantStatus: http.StatusOK,
			wantBody:   "ready",
		},
		{
			name:       "check fails",
			ready:      func(context.Context) error { return errors.New("/srv/data/books.xml: XML syntax error") },
			wantStatus: http.StatusServiceUnavailable,
			wantBody:   "not ready",
			wantError:  MsgNotReady,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewProbeHandler(tt.ready, zap.NewNop())
			rec := httptest.NewRecorder()

			h.Ready(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			var body ReadyResponse
			if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
				t.Fatalf("decoding body: %v", err)
			}
			if body.Status != tt.wantBody {
				t.Errorf("status field = %q, want %q", body.Status, tt.wantBody)
			}
			if body.Error != tt.wantError {
				t.Errorf("error field = %q, want %q", body.Error, tt.wantError)
			}
			if strings.Contains(rec.Body.String(), "books.xml") {
				t.Errorf("body leaks the check failure: %s", rec.Body.String())
			}
		})
	}
}
