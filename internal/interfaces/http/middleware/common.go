// Package middleware provides the gin middleware of the shipping API.
package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// RequestIDHeader carries the request ID in and out.
const RequestIDHeader = "X-Request-ID"

// MaxRequestIDLength is the maximum length accepted for a client supplied
// request ID.
const MaxRequestIDLength = 128

// RequestID assigns every request an ID, reusing a sane client supplied one.
// It must run before logger.GinMiddleware, which reads "request_id".
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(RequestIDHeader)
		if requestID == "" || len(requestID) > MaxRequestIDLength {
			requestID = uuid.NewString()
		}
		c.Set("request_id", requestID)
		c.Writer.Header().Set(RequestIDHeader, requestID)
		c.Next()
	}
}
