package errx

import "net/http"

// Type is the category of an error. It decides the fallback HTTP status and
// whether the error is shown to callers.
type Type string

const (
	TypeInternal Type = "INTERNAL"
	// TypeAssertion is a violated internal invariant: a bug, never a user mistake.
	TypeAssertion     Type = "ASSERTION"
	TypeValidation    Type = "VALIDATION"
	TypeAuthorization Type = "AUTHORIZATION"
	// TypeForbidden is an authenticated caller acting outside its project.
	TypeForbidden Type = "FORBIDDEN"
	TypeNotFound  Type = "NOT_FOUND"
	TypeConflict  Type = "CONFLICT"
	TypeBusiness  Type = "BUSINESS"
	// TypeExternal is a failure of a provider, SES, or another upstream.
	TypeExternal Type = "EXTERNAL"
)

var typeStatus = map[Type]int{
	TypeValidation:    http.StatusBadRequest,
	TypeAuthorization: http.StatusUnauthorized,
	TypeForbidden:     http.StatusForbidden,
	TypeNotFound:      http.StatusNotFound,
	TypeConflict:      http.StatusConflict,
	TypeBusiness:      http.StatusUnprocessableEntity,
	TypeExternal:      http.StatusBadGateway,
}

func (t Type) String() string { return string(t) }

// HTTPStatus is the status used when an error carries no registered one.
func (t Type) HTTPStatus() int {
	if s, ok := typeStatus[t]; ok {
		return s
	}
	return http.StatusInternalServerError
}

// IsServerFault reports whether errors of this type are our failure.
func (t Type) IsServerFault() bool {
	return t == TypeInternal || t == TypeAssertion
}
