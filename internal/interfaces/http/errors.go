package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/garyjia/expense-approval/internal/application/service"
	"github.com/garyjia/expense-approval/internal/domain/workflow"
)

// statusFor maps service errors onto HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrMissingToken), errors.Is(err, ErrInvalidToken):
		return http.StatusUnauthorized
	case errors.Is(err, service.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, service.ErrNotFoundOrUnauthorized), errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrStepNotActive), errors.Is(err, workflow.ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, service.ErrDuplicateEmail):
		return http.StatusConflict
	case errors.Is(err, service.ErrInvalidAction),
		errors.Is(err, service.ErrMissingAmount),
		errors.Is(err, service.ErrInvalidAmount),
		errors.Is(err, service.ErrMissingFields),
		errors.Is(err, service.ErrInvalidRule),
		errors.Is(err, service.ErrInvalidApprover):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// publicMessage hides internal failures from clients
func publicMessage(err error, status int) string {
	switch {
	case status == http.StatusInternalServerError:
		return "internal error"
	case errors.Is(err, service.ErrNotFoundOrUnauthorized):
		return service.ErrNotFoundOrUnauthorized.Error()
	default:
		return err.Error()
	}
}

func (h *Handlers) fail(c *gin.Context, err error, msg string, keysAndValues ...interface{}) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		h.logger.Error(msg, append([]interface{}{"error", err}, keysAndValues...)...)
	} else {
		h.logger.Info(msg, append([]interface{}{"error", err.Error(), "status", status}, keysAndValues...)...)
	}
	c.AbortWithStatusJSON(status, Response{Success: false, Error: publicMessage(err, status)})
}

func badRequest(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, Response{Success: false, Error: msg})
}
