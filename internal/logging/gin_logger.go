// Copyright 2026 The translateLocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package logging

import (
	"fmt"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"github.com/traylinx/translateLocal/internal/util"
)

// RequestIDHeader carries the request ID in both directions.
const RequestIDHeader = "X-Request-ID"

const (
	requestIDContextKey = "request_id"
	maxRequestIDLength  = 128
)

// RequestIDMiddleware assigns every request an ID, reusing a well-formed inbound
// X-Request-ID, and echoes it on the response.
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := strings.TrimSpace(c.GetHeader(RequestIDHeader))
		if id == "" || len(id) > maxRequestIDLength || strings.ContainsAny(id, "\r\n") {
			id = uuid.NewString()
		}
		c.Set(requestIDContextKey, id)
		c.Header(RequestIDHeader, id)
		c.Next()
	}
}

// GetRequestID returns the request ID assigned by RequestIDMiddleware, or "".
func GetRequestID(c *gin.Context) string {
	if c == nil {
		return ""
	}
	return c.GetString(requestIDContextKey)
}

// WithRequest returns a log entry tagged with the short form of the request ID.
func WithRequest(c *gin.Context) *log.Entry {
	id := GetRequestID(c)
	if len(id) > 8 {
		id = id[:8]
	}
	if id == "" {
		return log.NewEntry(log.StandardLogger())
	}
	return log.WithField(RequestIDField, id)
}

// GinLogrusLogger writes one access log line per request through logrus.
// Server errors log at error level and client errors at warn level.
func GinLogrusLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		if raw := c.Request.URL.RawQuery; raw != "" {
			path = path + "?" + raw
		}

		c.Next()

		status := c.Writer.Status()
		latency := time.Since(start).Truncate(time.Microsecond)
		msg := fmt.Sprintf("%3d | %12v | %15s | %-7s %s", status, latency, c.ClientIP(), c.Request.Method, path)
		if errs := c.Errors.ByType(gin.ErrorTypePrivate).String(); errs != "" {
			msg = msg + " | " + strings.TrimSpace(errs)
		}

		entry := WithRequest(c)
		if log.IsLevelEnabled(log.DebugLevel) {
			entry.WithField("headers", maskedHeaders(c.Request.Header)).Debug("request headers")
		}
		switch {
		case status >= http.StatusInternalServerError:
			entry.Error(msg)
		case status >= http.StatusBadRequest:
			entry.Warn(msg)
		default:
			entry.Info(msg)
		}
	}
}

// maskedHeaders flattens h with credentials masked.
func maskedHeaders(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k, v := range h {
		out[k] = util.MaskSensitiveHeaderValue(k, strings.Join(v, ", "))
	}
	return out
}

// GinLogrusRecovery turns handler panics into a 500 response and logs the stack.
func GinLogrusRecovery() gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		WithRequest(c).Errorf("panic recovered: %v\n%s", recovered, debug.Stack())
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"detail": "internal server error"})
	})
}
