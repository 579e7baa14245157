package apikey

import (
	"net/http"

	"github.com/Abraxas-365/gatekeeper/pkg/errx"
)

var ErrRegistry = errx.NewRegistry("APIKEY")

var (
	// CodeNotFound covers absent, expired and revoked keys alike.
	CodeNotFound       = ErrRegistry.Register("NOT_FOUND", errx.TypeAuthorization, http.StatusUnauthorized, "API key not found or no longer valid")
	CodeInvalidRequest = ErrRegistry.Register("INVALID_REQUEST", errx.TypeValidation, http.StatusBadRequest, "Invalid API key set request")
	CodeSetNotFound    = ErrRegistry.Register("SET_NOT_FOUND", errx.TypeNotFound, http.StatusNotFound, "API key set not found")
)

func ErrKeyNotFound() *errx.Error    { return ErrRegistry.New(CodeNotFound) }
func ErrInvalidRequest() *errx.Error { return ErrRegistry.New(CodeInvalidRequest) }
func ErrKeySetNotFound() *errx.Error { return ErrRegistry.New(CodeSetNotFound) }
