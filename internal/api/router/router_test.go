package router

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/inkworks/booking-broker/internal/admin"
	"github.com/inkworks/booking-broker/internal/http/handlers"
	"github.com/inkworks/booking-broker/pkg/logging"
)

func TestHealthEndpoint(t *testing.T) {
	handler := New(&Config{Logger: logging.New("error")})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("code = %d", rec.Code)
	}
	if rec.Body.String() != `{"status":"ok"}` {
		t.Fatalf("body = %s", rec.Body.String())
	}
	if rec.Header().Get("X-Correlation-ID") == "" {
		t.Fatal("correlation id missing from response")
	}
}

func TestAdminRoutesRequireAuth(t *testing.T) {
	handler := New(&Config{
		Logger:      logging.New("error"),
		AdminAPIKey: "sekrit",
		AdminLeads:  handlers.NewAdminLeadHandler(admin.NewService(admin.ServiceConfig{}), logging.New("error")),
	})

	req := httptest.NewRequest(http.MethodPost, "/admin/leads/00000000-0000-0000-0000-000000000000/approve", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("code = %d, want 401", rec.Code)
	}
}
