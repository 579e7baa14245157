package errx

// Internal and Forbidden build unregistered errors for call sites that have
// no module registry.
func Internal(message string) *Error  { return New(message, TypeInternal) }
func Forbidden(message string) *Error { return New(message, TypeForbidden) }

// CodeAssertionFailed is the code carried by every assertion error.
const CodeAssertionFailed = "ASSERTION_FAILED"

// Assertion reports a violated internal invariant. The boundary logs it with
// its details and renders an opaque internal error.
func Assertion(message string) *Error {
	e := New(message, TypeAssertion)
	e.Code = CodeAssertionFailed
	return e
}

// Assertionf is Assertion with an underlying cause.
func Assertionf(cause error, message string) *Error {
	return Assertion(message).WithCause(cause)
}

// IsAssertion reports whether err is (or wraps) an assertion error.
func IsAssertion(err error) bool {
	var e *Error
	if !As(err, &e) {
		return false
	}
	return e.Type == TypeAssertion || e.Code == CodeAssertionFailed
}
