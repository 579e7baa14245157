package jobxredis

import (
	"net/http"

	"github.com/Abraxas-365/gatekeeper/pkg/errx"
)

var redisErrors = errx.NewRegistry("JOBX_REDIS")

var (
	ErrBackend  = redisErrors.Register("BACKEND", errx.TypeExternal, http.StatusBadGateway, "Job queue backend failed")
	ErrCodec    = redisErrors.Register("CODEC", errx.TypeInternal, http.StatusInternalServerError, "Stored job could not be encoded or decoded")
	ErrNotFound = redisErrors.Register("NOT_FOUND", errx.TypeNotFound, http.StatusNotFound, "Job not found")
)

// backendErr tags a Redis failure with the queue operation that hit it.
func backendErr(op string, err error) *errx.Error {
	return redisErrors.NewWithCause(ErrBackend, err).WithDetail("op", op)
}
