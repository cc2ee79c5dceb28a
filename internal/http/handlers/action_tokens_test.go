package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/inkworks/booking-broker/internal/actiontokens"
	"github.com/inkworks/booking-broker/internal/admin"
	"github.com/inkworks/booking-broker/internal/leads"
	"github.com/inkworks/booking-broker/pkg/logging"
)

type fakeTokenService struct {
	preview *admin.TokenPreview
	lead    *leads.Lead
	action  string
	err     error
}

func (f *fakeTokenService) PreviewToken(ctx context.Context, token string) (*admin.TokenPreview, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.preview, nil
}

func (f *fakeTokenService) ExecuteToken(ctx context.Context, token string) (*leads.Lead, string, error) {
	if f.err != nil {
		return nil, "", f.err
	}
	return f.lead, f.action, nil
}

func tokenRouter(svc *fakeTokenService) http.Handler {
	h := NewActionTokenHandler(svc, logging.New("error"))
	r := chi.NewRouter()
	r.Get("/a/{token}", h.Preview)
	r.Post("/a/{token}", h.Execute)
	return r
}

func TestTokenPreviewRendersConfirmation(t *testing.T) {
	lead := &leads.Lead{ID: uuid.New(), Phone: "+447700900000", Status: leads.StatusPendingApproval}
	svc := &fakeTokenService{preview: &admin.TokenPreview{Action: "approve", Lead: lead}}
	router := tokenRouter(svc)

	req := httptest.NewRequest(http.MethodGet, "/a/tok_1", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("code = %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "approve") || !strings.Contains(body, lead.ID.String()) {
		t.Fatalf("body = %s", body)
	}
	if !strings.Contains(body, `action="/a/tok_1"`) {
		t.Fatalf("confirmation form must post back to the token: %s", body)
	}
}

func TestTokenExecuteRendersResult(t *testing.T) {
	lead := &leads.Lead{ID: uuid.New(), Status: leads.StatusAwaitingDeposit}
	svc := &fakeTokenService{lead: lead, action: "approve"}
	router := tokenRouter(svc)

	req := httptest.NewRequest(http.MethodPost, "/a/tok_1", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("code = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "AWAITING_DEPOSIT") {
		t.Fatalf("body = %s", rec.Body.String())
	}
}

func TestTokenErrorMapping(t *testing.T) {
	cases := []struct {
		name string
		err  error
		code int
	}{
		{"not found", actiontokens.ErrTokenNotFound, http.StatusNotFound},
		{"used", actiontokens.ErrTokenUsed, http.StatusConflict},
		{"expired", actiontokens.ErrTokenExpired, http.StatusGone},
		{"status mismatch", &actiontokens.StatusMismatchError{
			Required: leads.StatusPendingApproval, Current: leads.StatusAwaitingDeposit,
		}, http.StatusConflict},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			router := tokenRouter(&fakeTokenService{err: tc.err})
			req := httptest.NewRequest(http.MethodPost, "/a/tok_x", nil)
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)
			if rec.Code != tc.code {
				t.Fatalf("code = %d, want %d", rec.Code, tc.code)
			}
		})
	}
}
