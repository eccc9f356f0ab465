package middleware

import (
	"bufio"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/pliu/murmur/internal/apperr"
	"github.com/pliu/murmur/internal/ratelimit"
)

func TestRateLimit(t *testing.T) {
	nextHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	handler := RateLimit(ratelimit.New(2, time.Minute), false)(nextHandler)

	tests := []struct {
		name           string
		remoteAddr     string
		expectedStatus int
	}{
		{"First Request", "10.0.0.1:1111", http.StatusOK},
		{"Second Request Other Port", "10.0.0.1:2222", http.StatusOK},
		{"Third Request", "10.0.0.1:3333", http.StatusTooManyRequests},
		{"Other Address", "10.0.0.2:1111", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/api/users/x", nil)
			req.RemoteAddr = tt.remoteAddr
			rr := httptest.NewRecorder()

			handler.ServeHTTP(rr, req)

			if rr.Code != tt.expectedStatus {
				t.Errorf("handler returned wrong status code: got %v want %v",
					rr.Code, tt.expectedStatus)
			}
		})
	}

	req := httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = "10.0.0.1:4444"
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	var body apperr.Payload
	if err := json.NewDecoder(rr.Body).Decode(&body); err != nil {
		t.Fatalf("Failed to decode body: %v", err)
	}
	if body.Code != "rate_limited" {
		t.Errorf("Expected code rate_limited, got %q", body.Code)
	}
	if rr.Header().Get("Retry-After") != "60" {
		t.Errorf("Expected Retry-After 60, got %q", rr.Header().Get("Retry-After"))
	}
}

func TestClientAddr(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = "10.0.0.1:1234"
	req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")

	if got := ClientAddr(req, false); got != "10.0.0.1" {
		t.Errorf("Expected socket address when proxy is untrusted, got %s", got)
	}
	if got := ClientAddr(req, true); got != "203.0.113.7" {
		t.Errorf("Expected forwarded address, got %s", got)
	}

	req.Header.Del("X-Forwarded-For")
	if got := ClientAddr(req, true); got != "10.0.0.1" {
		t.Errorf("Expected fallback to socket address, got %s", got)
	}
}

func TestLoggingMiddleware(t *testing.T) {
	// Mock next handler that returns 404
	nextHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	core, logs := observer.New(zapcore.InfoLevel)
	req := httptest.NewRequest("GET", "/api/users/search/al?secret=1", nil)
	rr := httptest.NewRecorder()

	LoggingMiddleware(zap.New(core))(nextHandler).ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Errorf("handler returned wrong status code: got %v want %v",
			rr.Code, http.StatusNotFound)
	}
	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("Expected 1 log entry, got %d", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["status"] != int64(http.StatusNotFound) {
		t.Errorf("Expected status field 404, got %v", fields["status"])
	}
	if fields["path"] != "/api/users/search/al" {
		t.Errorf("Expected path without query, got %v", fields["path"])
	}
}

// MockHijacker implements http.Hijacker for testing
type MockHijacker struct {
	httptest.ResponseRecorder
}

func (m *MockHijacker) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	return nil, nil, nil
}

func TestLoggingMiddleware_Hijack(t *testing.T) {
	// Mock next handler that tries to hijack
	nextHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hijacker, ok := w.(http.Hijacker)
		if !ok {
			t.Error("ResponseWriter does not implement http.Hijacker")
			return
		}
		_, _, err := hijacker.Hijack()
		if err != nil {
			t.Errorf("Hijack failed: %v", err)
		}
	})

	req := httptest.NewRequest("GET", "/ws", nil)

	// The middleware wraps the writer passed to ServeHTTP, so the writer
	// handed in must itself support hijacking.
	mockWriter := &MockHijacker{ResponseRecorder: *httptest.NewRecorder()}

	LoggingMiddleware(zap.NewNop())(nextHandler).ServeHTTP(mockWriter, req)
}

func TestLoggingMiddleware_HijackUnsupported(t *testing.T) {
	nextHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, _, err := w.(http.Hijacker).Hijack(); err == nil {
			t.Error("Expected hijack to fail on a plain recorder")
		}
	})

	req := httptest.NewRequest("GET", "/ws", nil)
	LoggingMiddleware(zap.NewNop())(nextHandler).ServeHTTP(httptest.NewRecorder(), req)
}
