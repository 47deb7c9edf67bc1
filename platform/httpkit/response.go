// Package httpkit holds the gin response and middleware helpers shared
// by every HTTP-facing module.
package httpkit

import (
	"net/http"

	"leadfunnel_backend/platform/apperr"

	"github.com/gin-gonic/gin"
)

// ErrorResponse is the wire shape for every error reply.
type ErrorResponse struct {
	Error   string      `json:"error"`
	Details interface{} `json:"details,omitempty"`
}

// JSON writes payload with the given status.
func JSON(c *gin.Context, status int, payload interface{}) {
	c.JSON(status, payload)
}

// Error writes an error reply with the given status.
func Error(c *gin.Context, status int, message string, details interface{}) {
	c.JSON(status, ErrorResponse{Error: message, Details: details})
}

// OK writes payload with 200.
func OK(c *gin.Context, payload interface{}) {
	c.JSON(http.StatusOK, payload)
}

// HandleError maps a domain error onto the response. Typed *apperr.Error
// values pick their status from the Kind, so webhook providers see 4xx
// for permanent failures and 5xx for retryable ones; anything untyped
// is treated as bad input. Returns false when err is nil.
func HandleError(c *gin.Context, err error) bool {
	if err == nil {
		return false
	}

	if domainErr, ok := err.(*apperr.Error); ok {
		c.JSON(domainErr.HTTPStatus(), ErrorResponse{
			Error:   domainErr.Message,
			Details: domainErr.Details,
		})
		return true
	}

	c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
	return true
}
