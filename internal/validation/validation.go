// Package validation provides input validation for the risk advisor API.
package validation

import (
	"net/http"
	"regexp"
	"strings"

	"github.com/gin-gonic/gin"
)

// MaxRequestSize is the maximum request body size (1MB)
const MaxRequestSize = 1 << 20 // 1MB

// MaxStringLength is the maximum length for string fields
const MaxStringLength = 10000

var (
	// objectIDRegex validates sandbox bank object IDs (24 hex chars)
	objectIDRegex = regexp.MustCompile(`^[a-fA-F0-9]{24}$`)
	// idRegex validates internal prefixed IDs (wf_..., txn_..., risk_...)
	idRegex = regexp.MustCompile(`^[a-z]+_[a-f0-9]{24}$`)
)

// RequestSizeMiddleware limits request body size
func RequestSizeMiddleware(maxSize int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxSize)
		c.Next()
	}
}

// IsValidObjectID checks if a string is a valid sandbox bank object ID
func IsValidObjectID(id string) bool {
	return objectIDRegex.MatchString(id)
}

// IsValidInternalID checks if a string is a valid prefixed internal ID
func IsValidInternalID(id string) bool {
	return idRegex.MatchString(id)
}

// SanitizeString removes dangerous characters and limits length
func SanitizeString(s string, maxLen int) string {
	// Trim whitespace
	s = strings.TrimSpace(s)

	// Limit length
	if len(s) > maxLen {
		s = s[:maxLen]
	}

	// Remove null bytes
	s = strings.ReplaceAll(s, "\x00", "")

	return s
}

// ValidationError represents a validation error
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "validation failed"
	}
	return e[0].Field + ": " + e[0].Message
}

// Validate validates a request and returns errors
func Validate(validators ...func() *ValidationError) ValidationErrors {
	var errors ValidationErrors
	for _, v := range validators {
		if err := v(); err != nil {
			errors = append(errors, *err)
		}
	}
	return errors
}

// Required checks if a field is non-empty
func Required(field, value string) func() *ValidationError {
	return func() *ValidationError {
		if strings.TrimSpace(value) == "" {
			return &ValidationError{Field: field, Message: "is required"}
		}
		return nil
	}
}

// MaxLength checks if a field exceeds max length
func MaxLength(field, value string, max int) func() *ValidationError {
	return func() *ValidationError {
		if len(value) > max {
			return &ValidationError{Field: field, Message: "exceeds maximum length"}
		}
		return nil
	}
}

// PositiveAmount checks that a purchase amount is positive and finite
func PositiveAmount(field string, value float64) func() *ValidationError {
	return func() *ValidationError {
		if value != value { // NaN
			return &ValidationError{Field: field, Message: "invalid amount"}
		}
		if value <= 0 {
			return &ValidationError{Field: field, Message: "amount must be greater than zero"}
		}
		if value > 1e9 {
			return &ValidationError{Field: field, Message: "amount exceeds supported range"}
		}
		return nil
	}
}

// AccountParamMiddleware validates the :accountId URL parameter on routes that
// use it. Apply to route groups that include account params to reject
// malformed IDs early.
func AccountParamMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("accountId")
		if id != "" && !IsValidObjectID(id) && !IsValidInternalID(id) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"error":   "invalid_account_id",
				"message": "account ID must be a 24-char hex object ID",
			})
			return
		}
		c.Next()
	}
}
