package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mybank/idalloc"
	"github.com/mybank/idalloc/ledger"
)

// Envelope wraps every JSON response body.
type Envelope[T any] struct {
	Code      string `json:"code"`
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	Data      T      `json:"data"`
	Timestamp string `json:"timestamp"`
}

// nowString is the current time in epoch milliseconds.
func nowString() string {
	return strconv.FormatInt(time.Now().UnixMilli(), 10)
}

func respond[T any](c *gin.Context, status int, msg string, data T) {
	c.JSON(status, Envelope[T]{
		Code:      strconv.Itoa(status),
		Success:   status < http.StatusBadRequest,
		Message:   msg,
		Data:      data,
		Timestamp: nowString(),
	})
}

// OK writes a 200 success envelope.
func OK[T any](c *gin.Context, msg string, data T) {
	respond(c, http.StatusOK, msg, data)
}

// Fail writes an error envelope with the given status.
func Fail(c *gin.Context, status int, msg string) {
	respond[any](c, status, msg, nil)
}

// statusFor maps domain errors to HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, ledger.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ledger.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ledger.ErrDuplicate):
		return http.StatusConflict
	case errors.Is(err, idalloc.ErrClockRegression):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeError logs err and writes the mapped envelope. Server-side failures
// are not echoed to the client.
func (s *Server) writeError(c *gin.Context, err error) {
	status := statusFor(err)
	fields := []zap.Field{zap.Error(err), zap.String("request_id", requestID(c))}

	var vErr *ledger.ValidationError
	switch {
	case errors.As(err, &vErr):
		s.logger.Warn("request rejected", fields...)
		respond(c, status, err.Error(), vErr.Fields)
	case status == http.StatusServiceUnavailable:
		s.logger.Error("id allocation unavailable", fields...)
		Fail(c, status, "id allocation temporarily unavailable: clock moved backwards")
	case status == http.StatusInternalServerError:
		s.logger.Error("request failed", fields...)
		Fail(c, status, "internal server error")
	default:
		s.logger.Warn("request rejected", fields...)
		Fail(c, status, err.Error())
	}
}
