/*
handlers.go - HTTP API handlers for the leave engine

PURPOSE:
  Exposes the request orchestrator via REST API. Handles HTTP
  request/response, JSON serialization, and delegates to timeoff.

ENDPOINTS:
  Requests:
    POST   /api/requests               Submit a leave request
    GET    /api/requests/{id}          Request with its approval chain
    POST   /api/requests/{id}/approve  Approve the current level
    POST   /api/requests/{id}/reject   Reject the current level
    POST   /api/requests/{id}/cancel   Withdraw a pending request

  Caller:
    GET    /api/me/requests?status=    The caller's requests
    GET    /api/me/balances?year=      Balance summary per leave type

  Approvers:
    GET    /api/approvals/pending      Requests waiting on the caller
    GET    /api/teams/{id}/absences?from=&to=
                                       Team absence calendar

REQUEST FLOW:
  1. Resolve the actor from the verified token
  2. Decode and validate the body
  3. Call the orchestrator
  4. Serialize the result or map the error kind to a status

ERROR HANDLING:
  - 400: Malformed body or query parameters
  - 401: Missing or invalid token
  - 403: Forbidden
  - 404: Unknown or invisible resource
  - 409: Insufficient balance, wrong approver, invalid transition
  - 422: Admission rule violations, with every violation listed
  - 503: Persistence failure, safe to retry
  A decision or cancellation on a finalized request answers 200 with the
  current state.

SEE ALSO:
  - dto.go: Request/response data structures
  - errors.go: Kind to status mapping
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/warp/leave-engine/leave"
	"github.com/warp/leave-engine/logger"
	"github.com/warp/leave-engine/timeoff"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	svc      *timeoff.RequestService
	validate *validator.Validate
	log      *logger.Logger
}

// NewHandler creates a handler over the orchestrator.
func NewHandler(svc *timeoff.RequestService, log *logger.Logger) *Handler {
	if log == nil {
		log = logger.Nop()
	}
	return &Handler{
		svc:      svc,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		log:      log.Component("api"),
	}
}

// decode reads an optional JSON body into dst and validates it.
func (h *Handler) decode(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return h.validate.Struct(dst)
}

// =============================================================================
// REQUEST LIFECYCLE
// =============================================================================

// SubmitRequest creates a leave request for the caller.
// POST /api/requests
func (h *Handler) SubmitRequest(w http.ResponseWriter, r *http.Request) {
	var body SubmitLeaveRequest
	if err := h.decode(r, &body); err != nil {
		writeBadRequest(w, err)
		return
	}
	in, err := body.toInput(ActorID(r.Context()))
	if err != nil {
		writeBadRequest(w, err)
		return
	}

	detail, err := h.svc.Submit(r.Context(), in)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, detail)
}

// GetRequest returns a request and its approval chain.
// GET /api/requests/{id}
func (h *Handler) GetRequest(w http.ResponseWriter, r *http.Request) {
	detail, err := h.svc.GetRequest(r.Context(), ActorID(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

// ApproveRequest approves the current level.
// POST /api/requests/{id}/approve
func (h *Handler) ApproveRequest(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, leave.DecisionApprove)
}

// RejectRequest rejects the current level.
// POST /api/requests/{id}/reject
func (h *Handler) RejectRequest(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, leave.DecisionReject)
}

func (h *Handler) decide(w http.ResponseWriter, r *http.Request, decision leave.Decision) {
	var body DecisionRequest
	if err := h.decode(r, &body); err != nil {
		writeBadRequest(w, err)
		return
	}

	detail, err := h.svc.Decide(r.Context(), timeoff.DecideInput{
		RequestID:  chi.URLParam(r, "id"),
		ApproverID: ActorID(r.Context()),
		Decision:   decision,
		Comment:    body.Comment,
	})
	if errors.Is(err, leave.ErrAlreadyFinalized) {
		writeJSON(w, http.StatusOK, detail)
		return
	}
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

// CancelRequest withdraws the caller's pending request.
// POST /api/requests/{id}/cancel
func (h *Handler) CancelRequest(w http.ResponseWriter, r *http.Request) {
	detail, err := h.svc.Cancel(r.Context(), chi.URLParam(r, "id"), ActorID(r.Context()))
	if errors.Is(err, leave.ErrAlreadyFinalized) {
		writeJSON(w, http.StatusOK, detail)
		return
	}
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

// =============================================================================
// CALLER VIEWS
// =============================================================================

// ListMyRequests returns the caller's requests, optionally filtered by status.
// GET /api/me/requests?status=pending,approved
func (h *Handler) ListMyRequests(w http.ResponseWriter, r *http.Request) {
	statuses, err := parseStatuses(r.URL.Query()["status"])
	if err != nil {
		writeBadRequest(w, err)
		return
	}

	reqs, err := h.svc.ListRequests(r.Context(), ActorID(r.Context()), statuses...)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if reqs == nil {
		reqs = []leave.LeaveRequest{}
	}
	writeJSON(w, http.StatusOK, reqs)
}

// ListMyBalances returns one balance per active leave type for a fiscal
// year, the current one by default.
// GET /api/me/balances?year=2025
func (h *Handler) ListMyBalances(w http.ResponseWriter, r *http.Request) {
	year := 0
	if raw := r.URL.Query().Get("year"); raw != "" {
		y, err := strconv.Atoi(raw)
		if err != nil || y < 1900 || y > 9999 {
			writeBadRequest(w, fmt.Errorf("invalid year %q", raw))
			return
		}
		year = y
	}

	summary, err := h.svc.Balances(r.Context(), ActorID(r.Context()), year)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// ListPendingApprovals returns the requests whose current level the caller
// may decide.
// GET /api/approvals/pending
func (h *Handler) ListPendingApprovals(w http.ResponseWriter, r *http.Request) {
	pending, err := h.svc.PendingApprovals(r.Context(), ActorID(r.Context()))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if pending == nil {
		pending = []timeoff.RequestDetail{}
	}
	writeJSON(w, http.StatusOK, pending)
}

// GetTeamAbsences returns the team's absence calendar.
// GET /api/teams/{id}/absences?from=2025-03-01&to=2025-03-31
func (h *Handler) GetTeamAbsences(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	from, err := leave.ParseDate(q.Get("from"))
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	to, err := leave.ParseDate(q.Get("to"))
	if err != nil {
		writeBadRequest(w, err)
		return
	}

	days, err := h.svc.TeamAbsences(r.Context(), ActorID(r.Context()), chi.URLParam(r, "id"), from, to)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, days)
}

// =============================================================================
// HELPERS
// =============================================================================

// parseStatuses accepts repeated and comma separated status values.
func parseStatuses(values []string) ([]leave.RequestStatus, error) {
	var out []leave.RequestStatus
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			s := leave.RequestStatus(strings.TrimSpace(part))
			switch s {
			case "":
				continue
			case leave.StatusPending, leave.StatusApproved, leave.StatusRejected, leave.StatusCancelled:
				out = append(out, s)
			default:
				return nil, fmt.Errorf("unknown status %q", part)
			}
		}
	}
	return out, nil
}
