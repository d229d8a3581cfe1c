/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON bodies accepted by the API. Responses reuse the domain
  types, which already carry their JSON names.

NAMING CONVENTION:
  - *Request: Request body types from clients
  - *Response: Response wrappers

VALIDATION:
  Request bodies carry go-playground/validator tags. Shape checks (required
  fields, date layout, enumerations) happen here; business rules stay in
  the engine and come back as domain errors.

SEE ALSO:
  - handlers.go: Uses these types
  - errors.go: ErrorResponse mapping
*/
package api

import (
	"github.com/warp/leave-engine/leave"
	"github.com/warp/leave-engine/timeoff"
)

// SubmitLeaveRequest is the body of POST /api/requests.
type SubmitLeaveRequest struct {
	LeaveTypeID   string `json:"leave_type_id" validate:"required"`
	StartDate     string `json:"start_date" validate:"required,datetime=2006-01-02"`
	EndDate       string `json:"end_date" validate:"required,datetime=2006-01-02"`
	IsHalfDay     bool   `json:"is_half_day"`
	HalfDayPeriod string `json:"half_day_period" validate:"omitempty,oneof=morning afternoon"`
	Reason        string `json:"reason" validate:"max=1000"`
}

func (req SubmitLeaveRequest) toInput(userID string) (timeoff.SubmitInput, error) {
	start, err := leave.ParseDate(req.StartDate)
	if err != nil {
		return timeoff.SubmitInput{}, err
	}
	end, err := leave.ParseDate(req.EndDate)
	if err != nil {
		return timeoff.SubmitInput{}, err
	}
	return timeoff.SubmitInput{
		UserID:        userID,
		LeaveTypeID:   req.LeaveTypeID,
		StartDate:     start,
		EndDate:       end,
		IsHalfDay:     req.IsHalfDay,
		HalfDayPeriod: leave.HalfDayPeriod(req.HalfDayPeriod),
		Reason:        req.Reason,
	}, nil
}

// DecisionRequest is the optional body of approve and reject.
type DecisionRequest struct {
	Comment string `json:"comment" validate:"max=1000"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error      string            `json:"error"`
	Kind       string            `json:"kind,omitempty"`
	Details    []string          `json:"details,omitempty"`
	Violations []leave.Violation `json:"violations,omitempty"`
}
