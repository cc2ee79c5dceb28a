package handlers

import (
	"context"
	"errors"
	"fmt"
	"html"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/inkworks/booking-broker/internal/actiontokens"
	"github.com/inkworks/booking-broker/internal/admin"
	"github.com/inkworks/booking-broker/internal/leads"
	"github.com/inkworks/booking-broker/pkg/logging"
)

type tokenService interface {
	PreviewToken(ctx context.Context, token string) (*admin.TokenPreview, error)
	ExecuteToken(ctx context.Context, token string) (*leads.Lead, string, error)
}

// ActionTokenHandler serves the out-of-band operator links (/a/{token}):
// GET renders a confirmation page, POST executes the action. The token is
// consumed on POST only, so previewing a link never burns it.
type ActionTokenHandler struct {
	svc    tokenService
	logger *logging.Logger
}

func NewActionTokenHandler(svc tokenService, logger *logging.Logger) *ActionTokenHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &ActionTokenHandler{svc: svc, logger: logger}
}

func (h *ActionTokenHandler) Preview(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")
	preview, err := h.svc.PreviewToken(r.Context(), token)
	if err != nil {
		h.writeTokenError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprintf(w, `<!doctype html>
<title>Confirm %[1]s</title>
<h1>Confirm: %[1]s lead</h1>
<p>Lead %[2]s (%[3]s) is currently <strong>%[4]s</strong>.</p>
<form method="post" action="/a/%[5]s"><button type="submit">Yes, %[1]s</button></form>
`,
		html.EscapeString(preview.Action),
		preview.Lead.ID,
		html.EscapeString(preview.Lead.Phone),
		preview.Lead.Status,
		html.EscapeString(token))
}

func (h *ActionTokenHandler) Execute(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")
	lead, action, err := h.svc.ExecuteToken(r.Context(), token)
	if err != nil {
		h.writeTokenError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprintf(w, `<!doctype html>
<title>Done</title>
<h1>Done</h1>
<p>Lead %s %sd. Status is now <strong>%s</strong>.</p>
`, lead.ID, html.EscapeString(action), lead.Status)
}

func (h *ActionTokenHandler) writeTokenError(w http.ResponseWriter, err error) {
	var mismatch *actiontokens.StatusMismatchError
	var conflict *admin.StatusConflictError
	status := http.StatusBadRequest
	msg := "This link is no longer valid."
	switch {
	case errors.Is(err, actiontokens.ErrTokenNotFound):
		status, msg = http.StatusNotFound, "Unknown link."
	case errors.Is(err, actiontokens.ErrTokenUsed):
		status, msg = http.StatusConflict, "This link was already used."
	case errors.Is(err, actiontokens.ErrTokenExpired):
		status, msg = http.StatusGone, "This link has expired."
	case errors.As(err, &mismatch):
		status = http.StatusConflict
		msg = fmt.Sprintf("The lead has moved on: it is now %s.", mismatch.Current)
	case errors.As(err, &conflict):
		status, msg = http.StatusBadRequest, conflict.Error()
	default:
		h.logger.Error("action token failed", "error", err)
		status, msg = http.StatusInternalServerError, "Something went wrong."
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	fmt.Fprintf(w, "<!doctype html>\n<title>Link problem</title>\n<h1>%s</h1>\n", html.EscapeString(msg))
}
