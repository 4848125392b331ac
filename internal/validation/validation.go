// Package validation provides input validation helpers for the Cordon API.
package validation

import (
	"fmt"
	"math/big"
	"net/http"
	"regexp"
	"strings"

	"github.com/gin-gonic/gin"
)

// MaxRequestSize is the maximum request body size (1MB).
const MaxRequestSize = 1 << 20

// MaxPayloadBytes bounds the call payload a submission may carry.
const MaxPayloadBytes = 64 << 10

var (
	addressRegex = regexp.MustCompile(`^0x[a-fA-F0-9]{40}$`)
	hashRegex    = regexp.MustCompile(`^0x[a-fA-F0-9]{64}$`)
	hexRegex     = regexp.MustCompile(`^(0x)?([a-fA-F0-9]{2})*$`)
)

// RequestSizeMiddleware limits request body size.
func RequestSizeMiddleware(maxSize int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxSize)
		c.Next()
	}
}

// IsValidAddress checks if a string is a valid 20-byte hex address.
func IsValidAddress(addr string) bool {
	return addressRegex.MatchString(addr)
}

// IsValidHash checks if a string is a valid 32-byte hex hash.
func IsValidHash(s string) bool {
	return hashRegex.MatchString(s)
}

// IsValidHex checks if a string is valid even-length hex.
func IsValidHex(s string) bool {
	return hexRegex.MatchString(s)
}

// SanitizeAddress normalizes an address to lowercase 0x-prefixed form.
func SanitizeAddress(addr string) string {
	addr = strings.ToLower(strings.TrimSpace(addr))
	if !strings.HasPrefix(addr, "0x") && len(addr) == 40 {
		addr = "0x" + addr
	}
	return addr
}

// Error represents a single field validation failure.
type Error struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Errors is a collection of validation failures.
type Errors []Error

// Error joins all failure messages.
func (e Errors) Error() string {
	parts := make([]string, len(e))
	for i, v := range e {
		parts[i] = fmt.Sprintf("%s: %s", v.Field, v.Message)
	}
	return strings.Join(parts, "; ")
}

// Check is a single named validation.
type Check func() *Error

// Validate runs all checks and collects failures.
func Validate(checks ...Check) Errors {
	var errs Errors
	for _, check := range checks {
		if e := check(); e != nil {
			errs = append(errs, *e)
		}
	}
	return errs
}

// ValidAddress validates a 20-byte hex address field.
func ValidAddress(field, value string) Check {
	return func() *Error {
		if !IsValidAddress(value) {
			return &Error{Field: field, Message: "must be a 0x-prefixed 40-hex-char address"}
		}
		return nil
	}
}

// ValidHexPayload validates an optional hex payload field.
func ValidHexPayload(field, value string) Check {
	return func() *Error {
		if value == "" {
			return nil
		}
		if !IsValidHex(value) {
			return &Error{Field: field, Message: "must be even-length hex"}
		}
		if len(strings.TrimPrefix(value, "0x"))/2 > MaxPayloadBytes {
			return &Error{Field: field, Message: "payload too large"}
		}
		return nil
	}
}

// ValidAmount validates a non-negative integer amount field.
func ValidAmount(field, value string) Check {
	return func() *Error {
		if value == "" {
			return nil
		}
		n, ok := new(big.Int).SetString(value, 10)
		if !ok || n.Sign() < 0 {
			return &Error{Field: field, Message: "must be a non-negative integer"}
		}
		return nil
	}
}

// ValidLevel validates a protection level field (1..5).
func ValidLevel(field string, level int) Check {
	return func() *Error {
		if level < 1 || level > 5 {
			return &Error{Field: field, Message: "must be between 1 and 5"}
		}
		return nil
	}
}
