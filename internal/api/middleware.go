// Copyright 2026 The translateLocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package api

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/traylinx/translateLocal/internal/logging"
	"golang.org/x/time/rate"
)

var securityHeaders = map[string]string{
	"X-Content-Type-Options":    "nosniff",
	"X-Frame-Options":           "DENY",
	"X-XSS-Protection":          "1; mode=block",
	"Strict-Transport-Security": "max-age=31536000; includeSubDomains",
	"Content-Security-Policy":   "default-src 'self'",
}

// SecurityHeadersMiddleware sets the hardening headers on every response.
func SecurityHeadersMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.Writer.Header()
		for k, v := range securityHeaders {
			h.Set(k, v)
		}
		c.Next()
	}
}

// CORSMiddleware allows the given origins. "*" allows any origin.
func CORSMiddleware(origins []string) gin.HandlerFunc {
	cfg := cors.Config{
		AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "Authorization", logging.RequestIDHeader},
		ExposeHeaders: []string{logging.RequestIDHeader},
		MaxAge:        12 * time.Hour,
	}
	for _, origin := range origins {
		if origin == "*" {
			cfg.AllowAllOrigins = true
			break
		}
	}
	if !cfg.AllowAllOrigins {
		cfg.AllowOrigins = origins
		cfg.AllowCredentials = true
	}
	return cors.New(cfg)
}

// BodyLimitMiddleware caps request bodies at maxBytes.
func BodyLimitMiddleware(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.ContentLength > maxBytes {
			c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, gin.H{"detail": "request body too large"})
			return
		}
		if c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		}
		c.Next()
	}
}

// clientLimiters keeps one token bucket per client IP.
type clientLimiters struct {
	mu       sync.Mutex
	limit    rate.Limit
	burst    int
	clients  map[string]*clientLimiter
	lastScan time.Time
	idleTTL  time.Duration
	now      func() time.Time
}

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newClientLimiters(requestsPerMinute, burst int) *clientLimiters {
	if burst <= 0 {
		burst = 1
	}
	return &clientLimiters{
		limit:   rate.Limit(float64(requestsPerMinute) / 60.0),
		burst:   burst,
		clients: make(map[string]*clientLimiter),
		idleTTL: 10 * time.Minute,
		now:     time.Now,
	}
}

func (l *clientLimiters) get(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if now.Sub(l.lastScan) > l.idleTTL {
		for k, cl := range l.clients {
			if now.Sub(cl.lastSeen) > l.idleTTL {
				delete(l.clients, k)
			}
		}
		l.lastScan = now
	}

	cl, ok := l.clients[key]
	if !ok {
		cl = &clientLimiter{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.clients[key] = cl
	}
	cl.lastSeen = now
	return cl.limiter
}

// RateLimitMiddleware applies a per-client token bucket of requestsPerMinute
// with the given burst. Health and readiness checks are exempt.
func RateLimitMiddleware(requestsPerMinute, burst int) gin.HandlerFunc {
	limiters := newClientLimiters(requestsPerMinute, burst)
	return func(c *gin.Context) {
		switch c.Request.URL.Path {
		case "/health", "/ready":
			c.Next()
			return
		}
		limiter := limiters.get(c.ClientIP())
		if !limiter.Allow() {
			c.Header("Retry-After", retryAfterSeconds(limiter, time.Now()))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"detail": "rate limit exceeded"})
			return
		}
		c.Next()
	}
}

// retryAfterSeconds is the whole number of seconds, at least one, until
// limiter grants its next token. The reservation used to measure it is cancelled.
func retryAfterSeconds(limiter *rate.Limiter, now time.Time) string {
	r := limiter.ReserveN(now, 1)
	if !r.OK() {
		return "60"
	}
	delay := r.DelayFrom(now)
	r.CancelAt(now)
	return strconv.Itoa(max(int(math.Ceil(delay.Seconds())), 1))
}
