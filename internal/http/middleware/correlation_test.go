package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
)

func TestCorrelationGeneratesID(t *testing.T) {
	var seen string
	handler := Correlation(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = CorrelationID(r.Context())
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if seen == "" {
		t.Fatal("correlation id missing from context")
	}
	if _, err := uuid.Parse(seen); err != nil {
		t.Fatalf("generated id %q is not a uuid", seen)
	}
	if got := rec.Header().Get("X-Correlation-ID"); got != seen {
		t.Fatalf("response header = %q, context = %q", got, seen)
	}
}

func TestCorrelationEchoesCallerID(t *testing.T) {
	var seen string
	handler := Correlation(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = CorrelationID(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Correlation-ID", "corr-42")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if seen != "corr-42" {
		t.Fatalf("context id = %q, want corr-42", seen)
	}
	if got := rec.Header().Get("X-Correlation-ID"); got != "corr-42" {
		t.Fatalf("echo = %q", got)
	}
}
