package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/inkworks/booking-broker/internal/admin"
	"github.com/inkworks/booking-broker/internal/leads"
	"github.com/inkworks/booking-broker/pkg/logging"
)

type fakeAdminService struct {
	lead      *leads.Lead
	err       error
	lastSlots []leads.Slot
	lastCal   string
	calls     []string
}

func (f *fakeAdminService) result(call string) (*leads.Lead, error) {
	f.calls = append(f.calls, call)
	if f.err != nil {
		return nil, f.err
	}
	return f.lead, nil
}

func (f *fakeAdminService) Approve(ctx context.Context, id uuid.UUID) (*leads.Lead, error) {
	return f.result("approve")
}

func (f *fakeAdminService) Reject(ctx context.Context, id uuid.UUID) (*leads.Lead, error) {
	return f.result("reject")
}

func (f *fakeAdminService) SuggestSlots(ctx context.Context, id uuid.UUID, slots []leads.Slot) (*leads.Lead, error) {
	f.lastSlots = slots
	return f.result("suggest")
}

func (f *fakeAdminService) MarkBooked(ctx context.Context, id uuid.UUID, cal string) (*leads.Lead, error) {
	f.lastCal = cal
	return f.result("book")
}

func (f *fakeAdminService) Pause(ctx context.Context, id uuid.UUID) (*leads.Lead, error) {
	return f.result("pause")
}

func (f *fakeAdminService) Resume(ctx context.Context, id uuid.UUID) (*leads.Lead, error) {
	return f.result("resume")
}

func (f *fakeAdminService) IssueApprovalLinks(ctx context.Context, id uuid.UUID) (*admin.ApprovalLinks, error) {
	f.calls = append(f.calls, "tokens")
	if f.err != nil {
		return nil, f.err
	}
	return &admin.ApprovalLinks{ApproveURL: "https://x/a/t1", RejectURL: "https://x/a/t2"}, nil
}

func adminRouter(svc *fakeAdminService) http.Handler {
	h := NewAdminLeadHandler(svc, logging.New("error"))
	r := chi.NewRouter()
	r.Post("/admin/leads/{leadID}/approve", h.Approve)
	r.Post("/admin/leads/{leadID}/reject", h.Reject)
	r.Post("/admin/leads/{leadID}/slots", h.SuggestSlots)
	r.Post("/admin/leads/{leadID}/book", h.MarkBooked)
	r.Post("/admin/leads/{leadID}/pause", h.Pause)
	r.Post("/admin/leads/{leadID}/resume", h.Resume)
	r.Post("/admin/leads/{leadID}/tokens", h.IssueTokens)
	return r
}

func TestAdminApproveResponds(t *testing.T) {
	lead := &leads.Lead{ID: uuid.New(), Status: leads.StatusAwaitingDeposit}
	svc := &fakeAdminService{lead: lead}
	router := adminRouter(svc)

	req := httptest.NewRequest(http.MethodPost, "/admin/leads/"+lead.ID.String()+"/approve", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("code = %d: %s", rec.Code, rec.Body.String())
	}
	var resp map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp["status"] != "AWAITING_DEPOSIT" || resp["lead_id"] != lead.ID.String() {
		t.Fatalf("resp = %v", resp)
	}
}

func TestAdminInvalidLeadID(t *testing.T) {
	router := adminRouter(&fakeAdminService{})
	req := httptest.NewRequest(http.MethodPost, "/admin/leads/not-a-uuid/approve", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("code = %d, want 400", rec.Code)
	}
}

func TestAdminConflictSurfacesMessage(t *testing.T) {
	svc := &fakeAdminService{err: &admin.StatusConflictError{
		Action: "approve", Current: leads.StatusQualifying, Expected: leads.StatusPendingApproval,
	}}
	router := adminRouter(svc)

	req := httptest.NewRequest(http.MethodPost, "/admin/leads/"+uuid.NewString()+"/approve", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("code = %d, want 400", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "Cannot approve in status 'QUALIFYING'") {
		t.Fatalf("body = %s", rec.Body.String())
	}
}

func TestAdminUnknownLead(t *testing.T) {
	svc := &fakeAdminService{err: leads.ErrLeadNotFound}
	router := adminRouter(svc)

	req := httptest.NewRequest(http.MethodPost, "/admin/leads/"+uuid.NewString()+"/reject", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("code = %d, want 404", rec.Code)
	}
}

func TestAdminSuggestSlotsParsesBody(t *testing.T) {
	lead := &leads.Lead{ID: uuid.New(), Status: leads.StatusBookingPending}
	svc := &fakeAdminService{lead: lead}
	router := adminRouter(svc)

	body := `{"slots":[
		{"start":"2026-05-01T10:00:00Z","end":"2026-05-01T14:00:00Z"},
		{"start":"2026-05-02T10:00:00Z","end":"2026-05-02T14:00:00Z"}
	]}`
	req := httptest.NewRequest(http.MethodPost, "/admin/leads/"+lead.ID.String()+"/slots", strings.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("code = %d: %s", rec.Code, rec.Body.String())
	}
	if len(svc.lastSlots) != 2 {
		t.Fatalf("slots = %d", len(svc.lastSlots))
	}
}

func TestAdminSuggestSlotsRejectsInvertedSlot(t *testing.T) {
	router := adminRouter(&fakeAdminService{})
	body := `{"slots":[{"start":"2026-05-01T14:00:00Z","end":"2026-05-01T10:00:00Z"}]}`
	req := httptest.NewRequest(http.MethodPost, "/admin/leads/"+uuid.NewString()+"/slots", strings.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("code = %d, want 400", rec.Code)
	}
}

func TestAdminMarkBookedPassesCalendarID(t *testing.T) {
	lead := &leads.Lead{ID: uuid.New(), Status: leads.StatusBooked}
	svc := &fakeAdminService{lead: lead}
	router := adminRouter(svc)

	req := httptest.NewRequest(http.MethodPost, "/admin/leads/"+lead.ID.String()+"/book",
		strings.NewReader(`{"calendar_event_id":"cal_7"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("code = %d", rec.Code)
	}
	if svc.lastCal != "cal_7" {
		t.Fatalf("calendar id = %q", svc.lastCal)
	}
}

func TestAdminIssueTokens(t *testing.T) {
	svc := &fakeAdminService{}
	router := adminRouter(svc)

	req := httptest.NewRequest(http.MethodPost, "/admin/leads/"+uuid.NewString()+"/tokens", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("code = %d", rec.Code)
	}
	var resp map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp["approve_url"] != "https://x/a/t1" || resp["reject_url"] != "https://x/a/t2" {
		t.Fatalf("resp = %v", resp)
	}
}
