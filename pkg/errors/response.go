package errors

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ErrorBody is the JSON body of every non-2xx API response.
type ErrorBody struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	CallID  string `json:"call_id,omitempty"`
	TraceID string `json:"trace_id,omitempty"`
}

// ErrorResponse writes an error body and aborts the chain
func ErrorResponse(c *gin.Context, status int, message, callID string) {
	traceID := c.GetString("trace_id")
	if traceID == "" {
		traceID = c.GetString("request_id")
	}

	c.AbortWithStatusJSON(status, ErrorBody{
		Success: false,
		Error:   message,
		CallID:  callID,
		TraceID: traceID,
	})
}

// InternalError logs and sends a 500 error
func InternalError(c *gin.Context, err error, message, callID string, logger *zap.Logger) {
	logger.Error("Internal server error",
		zap.Error(err),
		zap.String("path", c.Request.URL.Path),
		zap.String("method", c.Request.Method),
		zap.String("call_id", callID),
	)

	if message == "" {
		message = "An unexpected error occurred. Please try again later."
	}
	ErrorResponse(c, http.StatusInternalServerError, message, callID)
}

// BadGateway logs and sends a 502 error for failures of an upstream service
func BadGateway(c *gin.Context, err error, message, callID string, logger *zap.Logger) {
	logger.Error("Upstream service error",
		zap.Error(err),
		zap.String("path", c.Request.URL.Path),
		zap.String("call_id", callID),
	)
	ErrorResponse(c, http.StatusBadGateway, message, callID)
}

// BadRequest sends a 400 error
func BadRequest(c *gin.Context, message, callID string) {
	ErrorResponse(c, http.StatusBadRequest, message, callID)
}

// Forbidden sends a 403 error
func Forbidden(c *gin.Context, message string) {
	ErrorResponse(c, http.StatusForbidden, message, "")
}

// NotFound sends a 404 error
func NotFound(c *gin.Context, message string) {
	ErrorResponse(c, http.StatusNotFound, message, "")
}

// TooManyRequests sends a 429 error
func TooManyRequests(c *gin.Context, message string) {
	ErrorResponse(c, http.StatusTooManyRequests, message, "")
}

// RequestTooLarge sends a 413 error
func RequestTooLarge(c *gin.Context, message string) {
	ErrorResponse(c, http.StatusRequestEntityTooLarge, message, "")
}
