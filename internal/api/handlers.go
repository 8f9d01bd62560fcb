package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"transit-ticketing/internal/domain/ticket"
	"transit-ticketing/internal/usecase"

	"github.com/go-chi/chi/v5"
)

type ticketRequester interface {
	Execute(ctx context.Context, params usecase.RequestTicketParams) (string, error)
}

type ticketGetter interface {
	Execute(ctx context.Context, ticketID string) (*ticket.Ticket, error)
}

type ticketValidator interface {
	Execute(ctx context.Context, ticketID, vehicleID string) (*usecase.ValidationResult, error)
}

type ticketExpirer interface {
	Execute(ctx context.Context, ticketID string) (*ticket.Ticket, error)
}

type workflowGetter interface {
	Execute(ctx context.Context, ticketID string) (*usecase.WorkflowDTO, error)
}

type Handlers struct {
	requestTicketUC  ticketRequester
	getTicketUC      ticketGetter
	validateTicketUC ticketValidator
	expireTicketUC   ticketExpirer
	getWorkflowUC    workflowGetter
	logger           *slog.Logger
}

// NewHandlers wires the use cases. getWorkflowUC may be nil when the process
// has no postgres store; the route then answers 404.
func NewHandlers(
	requestTicketUC ticketRequester,
	getTicketUC ticketGetter,
	validateTicketUC ticketValidator,
	expireTicketUC ticketExpirer,
	getWorkflowUC workflowGetter,
	logger *slog.Logger,
) *Handlers {
	return &Handlers{
		requestTicketUC:  requestTicketUC,
		getTicketUC:      getTicketUC,
		validateTicketUC: validateTicketUC,
		expireTicketUC:   expireTicketUC,
		getWorkflowUC:    getWorkflowUC,
		logger:           logger,
	}
}

func (h *Handlers) CreateTicket(w http.ResponseWriter, r *http.Request) {
	var req usecase.RequestTicketParams
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	id, err := h.requestTicketUC.Execute(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{
		"status":    string(ticket.StatusCreated),
		"ticket_id": id,
	})
}

func (h *Handlers) GetTicket(w http.ResponseWriter, r *http.Request) {
	t, err := h.getTicketUC.Execute(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	writeJSON(w, http.StatusOK, t)
}

type validateRequest struct {
	VehicleID string `json:"vehicle_id"`
}

func (h *Handlers) ValidateTicket(w http.ResponseWriter, r *http.Request) {
	var req validateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.VehicleID == "" {
		writeJSONError(w, http.StatusBadRequest, "vehicle_id is required")
		return
	}

	res, err := h.validateTicketUC.Execute(r.Context(), chi.URLParam(r, "id"), req.VehicleID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, res)
}

func (h *Handlers) ExpireTicket(w http.ResponseWriter, r *http.Request) {
	t, err := h.expireTicketUC.Execute(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (h *Handlers) GetWorkflow(w http.ResponseWriter, r *http.Request) {
	if h.getWorkflowUC == nil {
		writeJSONError(w, http.StatusNotFound, "workflow history is not available")
		return
	}

	workflow, err := h.getWorkflowUC.Execute(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	writeJSON(w, http.StatusOK, workflow)
}

// statusFor maps domain errors onto HTTP statuses. Anything unrecognised is
// an infrastructure failure (store or bus) and is reported as unavailable.
func statusFor(err error) int {
	switch {
	case errors.Is(err, usecase.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, ticket.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ticket.ErrNotEligible),
		errors.Is(err, ticket.ErrExpired),
		errors.Is(err, ticket.ErrExhaustedUses):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ticket.ErrConflict):
		return http.StatusConflict
	default:
		return http.StatusServiceUnavailable
	}
}

func (h *Handlers) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusServiceUnavailable {
		h.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	}
	writeJSONError(w, status, err.Error())
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
