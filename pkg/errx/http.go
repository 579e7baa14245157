package errx

import "errors"

// HTTPErrorResponse represents a standard HTTP error response
type HTTPErrorResponse struct {
	Error     string         `json:"error"`
	Code      string         `json:"code"`
	Type      string         `json:"type"`
	Status    int            `json:"status"`
	Details   map[string]any `json:"details,omitempty"`
	RequestID string         `json:"request_id,omitempty"`
}

// ToHTTPResponse converts an Error to an HTTPErrorResponse
func (e *Error) ToHTTPResponse(requestID string) HTTPErrorResponse {
	resp := HTTPErrorResponse{
		Error:     e.Message,
		Code:      e.Code,
		Type:      string(e.Type),
		Status:    e.HTTPStatus,
		RequestID: requestID,
	}
	if len(e.Details) > 0 {
		resp.Details = e.Details
	}
	return resp
}

// Public converts any error into the shape that may be shown to a caller.
// Known errors keep their code and details; assertions and unknown errors
// collapse into an opaque internal error.
func Public(err error) *Error {
	var e *Error
	if errors.As(err, &e) && !e.Type.IsServerFault() {
		return e
	}
	return &Error{
		Code:       "INTERNAL_ERROR",
		Message:    "An unexpected error occurred",
		Type:       TypeInternal,
		HTTPStatus: 500,
	}
}
