package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/inkworks/booking-broker/internal/admin"
	"github.com/inkworks/booking-broker/internal/leads"
	"github.com/inkworks/booking-broker/pkg/logging"
)

type adminService interface {
	Approve(ctx context.Context, leadID uuid.UUID) (*leads.Lead, error)
	Reject(ctx context.Context, leadID uuid.UUID) (*leads.Lead, error)
	SuggestSlots(ctx context.Context, leadID uuid.UUID, slots []leads.Slot) (*leads.Lead, error)
	MarkBooked(ctx context.Context, leadID uuid.UUID, calendarEventID string) (*leads.Lead, error)
	Pause(ctx context.Context, leadID uuid.UUID) (*leads.Lead, error)
	Resume(ctx context.Context, leadID uuid.UUID) (*leads.Lead, error)
	IssueApprovalLinks(ctx context.Context, leadID uuid.UUID) (*admin.ApprovalLinks, error)
}

// AdminLeadHandler exposes the operator actions over the authenticated admin
// API. Every endpoint addresses one lead by id; status preconditions surface
// as 400 with the action's conflict message.
type AdminLeadHandler struct {
	svc    adminService
	logger *logging.Logger
}

func NewAdminLeadHandler(svc adminService, logger *logging.Logger) *AdminLeadHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &AdminLeadHandler{svc: svc, logger: logger}
}

func (h *AdminLeadHandler) leadID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "leadID"))
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid lead id")
		return uuid.Nil, false
	}
	return id, true
}

func (h *AdminLeadHandler) Approve(w http.ResponseWriter, r *http.Request) {
	id, ok := h.leadID(w, r)
	if !ok {
		return
	}
	lead, err := h.svc.Approve(r.Context(), id)
	if err != nil {
		h.writeActionError(w, "approve", err)
		return
	}
	writeLeadJSON(w, lead)
}

func (h *AdminLeadHandler) Reject(w http.ResponseWriter, r *http.Request) {
	id, ok := h.leadID(w, r)
	if !ok {
		return
	}
	lead, err := h.svc.Reject(r.Context(), id)
	if err != nil {
		h.writeActionError(w, "reject", err)
		return
	}
	writeLeadJSON(w, lead)
}

type suggestSlotsRequest struct {
	Slots []struct {
		Start time.Time `json:"start"`
		End   time.Time `json:"end"`
	} `json:"slots"`
}

func (h *AdminLeadHandler) SuggestSlots(w http.ResponseWriter, r *http.Request) {
	id, ok := h.leadID(w, r)
	if !ok {
		return
	}
	var req suggestSlotsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid body")
		return
	}
	slots := make([]leads.Slot, 0, len(req.Slots))
	for _, s := range req.Slots {
		if s.End.Before(s.Start) {
			writeJSONError(w, http.StatusBadRequest, "slot end before start")
			return
		}
		slots = append(slots, leads.Slot{Start: s.Start, End: s.End})
	}
	lead, err := h.svc.SuggestSlots(r.Context(), id, slots)
	if err != nil {
		h.writeActionError(w, "suggest slots", err)
		return
	}
	writeLeadJSON(w, lead)
}

type markBookedRequest struct {
	CalendarEventID string `json:"calendar_event_id"`
}

func (h *AdminLeadHandler) MarkBooked(w http.ResponseWriter, r *http.Request) {
	id, ok := h.leadID(w, r)
	if !ok {
		return
	}
	var req markBookedRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSONError(w, http.StatusBadRequest, "invalid body")
			return
		}
	}
	lead, err := h.svc.MarkBooked(r.Context(), id, req.CalendarEventID)
	if err != nil {
		h.writeActionError(w, "mark booked", err)
		return
	}
	writeLeadJSON(w, lead)
}

func (h *AdminLeadHandler) Pause(w http.ResponseWriter, r *http.Request) {
	id, ok := h.leadID(w, r)
	if !ok {
		return
	}
	lead, err := h.svc.Pause(r.Context(), id)
	if err != nil {
		h.writeActionError(w, "pause", err)
		return
	}
	writeLeadJSON(w, lead)
}

func (h *AdminLeadHandler) Resume(w http.ResponseWriter, r *http.Request) {
	id, ok := h.leadID(w, r)
	if !ok {
		return
	}
	lead, err := h.svc.Resume(r.Context(), id)
	if err != nil {
		h.writeActionError(w, "resume", err)
		return
	}
	writeLeadJSON(w, lead)
}

func (h *AdminLeadHandler) IssueTokens(w http.ResponseWriter, r *http.Request) {
	id, ok := h.leadID(w, r)
	if !ok {
		return
	}
	links, err := h.svc.IssueApprovalLinks(r.Context(), id)
	if err != nil {
		h.writeActionError(w, "issue tokens", err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{
		"approve_url": links.ApproveURL,
		"reject_url":  links.RejectURL,
	})
}

func (h *AdminLeadHandler) writeActionError(w http.ResponseWriter, action string, err error) {
	var conflict *admin.StatusConflictError
	var invalid *leads.InvalidTransitionError
	switch {
	case errors.As(err, &conflict):
		writeJSONError(w, http.StatusBadRequest, conflict.Error())
	case errors.As(err, &invalid):
		writeJSONError(w, http.StatusBadRequest, invalid.Error())
	case errors.Is(err, leads.ErrLeadNotFound):
		writeJSONError(w, http.StatusNotFound, "lead not found")
	default:
		h.logger.Error("admin action failed", "action", action, "error", err)
		writeJSONError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeLeadJSON(w http.ResponseWriter, lead *leads.Lead) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"lead_id": lead.ID,
		"status":  lead.Status,
	})
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
