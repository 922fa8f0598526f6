// Copyright 2026 The translateLocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package api provides the HTTP server of the translation service: the gin
// engine, its middleware chain and the translation routes.
package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/klauspost/compress/gzhttp"
	log "github.com/sirupsen/logrus"
	"github.com/traylinx/translateLocal/internal/api/handlers/translate"
	"github.com/traylinx/translateLocal/internal/buildinfo"
	"github.com/traylinx/translateLocal/internal/config"
	"github.com/traylinx/translateLocal/internal/logging"
)

// ServerOption customises a Server.
type ServerOption func(*serverOptions)

type serverOptions struct {
	version       string
	engineConfigs []func(*gin.Engine)
	middleware    []gin.HandlerFunc
}

// WithVersion overrides the version reported by the banner.
func WithVersion(version string) ServerOption {
	return func(o *serverOptions) { o.version = version }
}

// WithEngineConfigurator lets callers add routes or settings to the engine.
func WithEngineConfigurator(fn func(*gin.Engine)) ServerOption {
	return func(o *serverOptions) {
		if fn != nil {
			o.engineConfigs = append(o.engineConfigs, fn)
		}
	}
}

// WithMiddleware appends middleware after the built-in chain.
func WithMiddleware(mw ...gin.HandlerFunc) ServerOption {
	return func(o *serverOptions) { o.middleware = append(o.middleware, mw...) }
}

// Server is the HTTP front of the service.
type Server struct {
	engine  *gin.Engine
	server  *http.Server
	handler *translate.Handler
	cfg     *config.Config
}

// NewServer builds the engine, middleware and routes for cfg.
func NewServer(cfg *config.Config, translator translate.Translator, catalog translate.Catalog, opts ...ServerOption) *Server {
	o := &serverOptions{version: buildinfo.Version}
	for _, opt := range opts {
		opt(o)
	}

	engine := gin.New()
	engine.Use(logging.RequestIDMiddleware())
	if cfg.RequestLog {
		engine.Use(logging.GinLogrusLogger())
	}
	engine.Use(logging.GinLogrusRecovery())
	if cfg.Security.Headers {
		engine.Use(SecurityHeadersMiddleware())
	}
	if len(cfg.Security.CORSAllowOrigins) > 0 {
		engine.Use(CORSMiddleware(cfg.Security.CORSAllowOrigins))
	}
	engine.Use(BodyLimitMiddleware(cfg.Security.MaxBodyBytes))
	if cfg.Security.RequestsPerMinute > 0 {
		engine.Use(RateLimitMiddleware(cfg.Security.RequestsPerMinute, cfg.Security.Burst))
	}
	engine.Use(o.middleware...)

	handler := translate.NewHandler(translator, catalog, o.version)
	handler.Register(engine)
	engine.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"detail": "Not Found"})
	})
	for _, fn := range o.engineConfigs {
		fn(engine)
	}

	var root http.Handler = engine
	if cfg.Security.Compress {
		root = gzhttp.GzipHandler(engine)
	}

	s := &Server{
		engine:  engine,
		handler: handler,
		cfg:     cfg,
		server: &http.Server{
			Addr:              net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
			Handler:           root,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
	return s
}

// Handler returns the root HTTP handler, including compression when enabled.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Addr returns the listen address.
func (s *Server) Addr() string {
	return s.server.Addr
}

// Start listens and serves until Stop. It returns nil after a graceful stop.
func (s *Server) Start() error {
	log.Infof("API server listening on %s", s.server.Addr)
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("api server: %w", err)
	}
	return nil
}

// Stop gracefully shuts the server down within ctx.
func (s *Server) Stop(ctx context.Context) error {
	log.Debug("stopping API server")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("api server shutdown: %w", err)
	}
	return nil
}
