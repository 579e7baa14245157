package provider

import (
	"net/http"

	"github.com/Abraxas-365/gatekeeper/pkg/errx"
)

var ErrRegistry = errx.NewRegistry("PROVIDER")

var (
	CodeInvalidAuthorizationCode = ErrRegistry.Register("INVALID_AUTHORIZATION_CODE", errx.TypeValidation, http.StatusBadRequest, "The provider rejected the authorization code")
	CodeExchangeFailed           = ErrRegistry.Register("EXCHANGE_FAILED", errx.TypeExternal, http.StatusBadGateway, "Token exchange with the provider failed")
	CodeUserInfoFailed           = ErrRegistry.Register("USERINFO_FAILED", errx.TypeExternal, http.StatusBadGateway, "Could not fetch the profile from the provider")
	CodeUnsupportedType          = ErrRegistry.Register("UNSUPPORTED_TYPE", errx.TypeValidation, http.StatusBadRequest, "Unsupported provider type")
	CodeMisconfigured            = ErrRegistry.Register("MISCONFIGURED", errx.TypeInternal, http.StatusInternalServerError, "Provider is misconfigured")
)

func ErrInvalidAuthorizationCode() *errx.Error { return ErrRegistry.New(CodeInvalidAuthorizationCode) }
func ErrExchangeFailed() *errx.Error           { return ErrRegistry.New(CodeExchangeFailed) }
func ErrUserInfoFailed() *errx.Error           { return ErrRegistry.New(CodeUserInfoFailed) }
func ErrUnsupportedType() *errx.Error          { return ErrRegistry.New(CodeUnsupportedType) }
func ErrMisconfigured() *errx.Error            { return ErrRegistry.New(CodeMisconfigured) }
