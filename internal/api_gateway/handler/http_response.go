package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/remitbridge-transfer-orchestrator/internal/api_gateway/middleware"
	"github.com/remitbridge-transfer-orchestrator/internal/domain/transfer"
)

// Response represents a standard API response
type Response struct {
	Data          interface{} `json:"data,omitempty"`
	Error         *ErrorInfo  `json:"error,omitempty"`
	CorrelationID string      `json:"correlation_id,omitempty"`
}

// ErrorInfo represents error information in a response
type ErrorInfo struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

// RespondWithData sends a JSON response with data
func RespondWithData(c *gin.Context, statusCode int, data interface{}) {
	c.JSON(statusCode, &Response{
		Data:          data,
		CorrelationID: middleware.GetCorrelationID(c),
	})
}

// RespondWithError sends a JSON response with an error
func RespondWithError(c *gin.Context, statusCode int, info ErrorInfo) {
	c.JSON(statusCode, &Response{
		Error:         &info,
		CorrelationID: middleware.GetCorrelationID(c),
	})
}

// RespondOK sends a 200 OK response with data
func RespondOK(c *gin.Context, data interface{}) {
	RespondWithData(c, http.StatusOK, data)
}

// RespondBadRequest sends a 400 Bad Request response with an error
func RespondBadRequest(c *gin.Context, message string) {
	RespondWithError(c, http.StatusBadRequest, ErrorInfo{Code: "BAD_REQUEST", Message: message})
}

// RespondValidationError sends a 400 naming the offending field
func RespondValidationError(c *gin.Context, err transfer.ValidationError) {
	RespondWithError(c, http.StatusBadRequest, ErrorInfo{
		Code:    "VALIDATION_ERROR",
		Message: err.Error(),
		Field:   err.Field,
	})
}

// RespondNotFound sends a 404 Not Found response with an error
func RespondNotFound(c *gin.Context, message string) {
	if message == "" {
		message = "Resource not found"
	}
	RespondWithError(c, http.StatusNotFound, ErrorInfo{Code: "NOT_FOUND", Message: message})
}

// RespondInternalError sends a 500 Internal Server Error response with an error
func RespondInternalError(c *gin.Context) {
	RespondWithError(c, http.StatusInternalServerError, ErrorInfo{
		Code:    "INTERNAL_SERVER_ERROR",
		Message: "An internal server error occurred",
	})
}

// RespondDomainError maps the transfer error taxonomy to a status code.
// It reports false for errors it does not know, leaving the 500 to the caller
// so it can log them first.
func RespondDomainError(c *gin.Context, err error) bool {
	var validation transfer.ValidationError
	if errors.As(err, &validation) {
		RespondValidationError(c, validation)
		return true
	}
	if errors.Is(err, transfer.NotFoundError{}) {
		RespondNotFound(c, err.Error())
		return true
	}
	return false
}
