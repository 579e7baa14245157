package errx

import (
	"fmt"
	"sync"
)

// ErrorCode is a registered code. Code is the full "PREFIX_NAME" string that
// reaches clients.
type ErrorCode struct {
	Code       string
	Type       Type
	HTTPStatus int
	Message    string
}

// Registry hands out the codes of one module under a common prefix.
type Registry struct {
	prefix string
}

// catalogue holds every code registered by any Registry in the process.
var catalogue = struct {
	sync.RWMutex
	codes map[string]*ErrorCode
}{codes: make(map[string]*ErrorCode)}

func NewRegistry(prefix string) *Registry {
	return &Registry{prefix: prefix}
}

// Register declares PREFIX_code. Codes are registered from package-level vars,
// so a duplicate is a programming error and panics at init.
func (r *Registry) Register(code string, errType Type, httpStatus int, message string) *ErrorCode {
	ec := &ErrorCode{
		Code:       r.prefix + "_" + code,
		Type:       errType,
		HTTPStatus: httpStatus,
		Message:    message,
	}

	catalogue.Lock()
	defer catalogue.Unlock()
	if _, dup := catalogue.codes[ec.Code]; dup {
		panic(fmt.Sprintf("errx: duplicate code %s", ec.Code))
	}
	catalogue.codes[ec.Code] = ec
	return ec
}

// Lookup finds a registered code by its full name.
func Lookup(code string) (*ErrorCode, bool) {
	catalogue.RLock()
	defer catalogue.RUnlock()
	ec, ok := catalogue.codes[code]
	return ec, ok
}

// IsRegistered reports whether err carries a code some Registry declared, as
// opposed to an ad hoc New or Wrap.
func IsRegistered(err error) bool {
	var e *Error
	if !As(err, &e) {
		return false
	}
	_, ok := Lookup(e.Code)
	return ok
}

func (r *Registry) New(code *ErrorCode) *Error {
	return &Error{
		Code:       code.Code,
		Message:    code.Message,
		Type:       code.Type,
		HTTPStatus: code.HTTPStatus,
		Details:    make(map[string]any),
	}
}

func (r *Registry) NewWithMessage(code *ErrorCode, message string) *Error {
	e := r.New(code)
	e.Message = message
	return e
}

func (r *Registry) NewWithCause(code *ErrorCode, cause error) *Error {
	e := r.New(code)
	e.Err = cause
	return e
}
