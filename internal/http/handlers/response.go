package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/rfi-tracker/internal/http/middleware"
	"github.com/tbourn/rfi-tracker/internal/services"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	// Echo of X-Request-ID
	RequestID string `json:"request_id,omitempty" example:"123e4567-e89b-12d3-a456-426614174000"`
	// One of the ErrCode* constants
	Code    string `json:"code" example:"invalid_state"`
	Message string `json:"message" example:"invalid state: illegal transition from draft to closed (allowed: open, cancelled)"`
}

// fail aborts with an ErrorResponse. Server errors are logged on the
// request logger; client errors are left to the access log.
func fail(c *gin.Context, status int, code, msg string) {
	if status >= http.StatusInternalServerError {
		middleware.LoggerFrom(c).Error().
			Int("status", status).
			Str("code", code).
			Str("message", msg).
			Msg("api error")
	}
	c.AbortWithStatusJSON(status, ErrorResponse{
		RequestID: c.Writer.Header().Get("X-Request-ID"),
		Code:      code,
		Message:   msg,
	})
}

// Fail lets the router emit the same envelope for NoRoute and NoMethod.
func Fail(c *gin.Context, status int, code, msg string) { fail(c, status, code, msg) }

// errorMapping pairs a service sentinel with its HTTP status and code.
type errorMapping struct {
	target error
	status int
	code   string
}

// serviceErrors is checked in order; the first errors.Is match wins.
var serviceErrors = []errorMapping{
	{services.ErrValidation, http.StatusBadRequest, ErrCodeBadRequest},
	{services.ErrMalformedWebhook, http.StatusBadRequest, ErrCodeMalformedWebhook},
	{services.ErrRFINotFound, http.StatusNotFound, ErrCodeNotFound},
	{services.ErrProjectNotFound, http.StatusNotFound, ErrCodeNotFound},
	{services.ErrInvalidState, http.StatusBadRequest, ErrCodeInvalidState},
	{services.ErrConflict, http.StatusConflict, ErrCodeConflict},
	{services.ErrTransport, http.StatusBadGateway, ErrCodeTransport},
}

// writeError maps err onto an ErrorResponse. Known errors keep their wrapped
// detail as the message; anything else is a logged 500 with a generic
// message.
func writeError(c *gin.Context, err error) {
	for _, m := range serviceErrors {
		if errors.Is(err, m.target) {
			fail(c, m.status, m.code, err.Error())
			return
		}
	}
	middleware.LoggerFrom(c).Error().Err(err).Msg("unhandled service error")
	fail(c, http.StatusInternalServerError, ErrCodeInternal, "internal error")
}

func ok(c *gin.Context, status int, body any) {
	c.JSON(status, body)
}

func noContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}
