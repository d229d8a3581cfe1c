package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/warp/leave-engine/leave"
)

// statusFor maps an error kind to its HTTP status. AlreadyFinalized is not
// listed: handlers answer it with 200 and the current state.
func statusFor(kind leave.Kind) int {
	switch kind {
	case leave.KindValidation, leave.KindInvalidRange, leave.KindOverlap, leave.KindBlockedPeriod,
		leave.KindUnderstaffed, leave.KindAdvanceLimitExceeded, leave.KindInactiveLeaveType,
		leave.KindJustificationRequired:
		return http.StatusUnprocessableEntity
	case leave.KindInsufficientBalance, leave.KindWrongApprover, leave.KindInvalidTransition,
		leave.KindAlreadyFinalized:
		return http.StatusConflict
	case leave.KindForbidden:
		return http.StatusForbidden
	case leave.KindNotFound:
		return http.StatusNotFound
	case leave.KindPersistenceFailure, leave.KindConcurrentModification:
		return http.StatusServiceUnavailable
	case leave.KindCanceled:
		return http.StatusRequestTimeout
	}
	return http.StatusInternalServerError
}

// writeDomainError renders an engine error. Internal details are not leaked.
func writeDomainError(w http.ResponseWriter, err error) {
	kind := leave.KindOf(err)
	status := statusFor(kind)
	resp := ErrorResponse{Error: http.StatusText(status), Kind: string(kind)}

	var verr *leave.ValidationError
	var berr *leave.InsufficientBalanceError
	switch {
	case errors.As(err, &verr):
		resp.Violations = verr.Violations
	case errors.As(err, &berr):
		resp.Details = []string{berr.Error()}
	case status < http.StatusInternalServerError:
		resp.Details = []string{err.Error()}
	}
	writeJSON(w, status, resp)
}

// writeBadRequest renders a malformed or invalid body.
func writeBadRequest(w http.ResponseWriter, err error) {
	resp := ErrorResponse{Error: "Invalid request body", Kind: "bad_request"}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		for _, fe := range verrs {
			resp.Details = append(resp.Details, fe.Field()+" failed on "+fe.Tag())
		}
	} else if err != nil {
		resp.Details = []string{err.Error()}
	}
	writeJSON(w, http.StatusBadRequest, resp)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
