// Copyright 2026 The translateLocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package service wires configuration, model runtime, registry, worker pool and
// HTTP server into one process with a start/shutdown lifecycle.
package service

import (
	"context"
	"errors"
	"sync"

	"github.com/traylinx/translateLocal/internal/api"
	"github.com/traylinx/translateLocal/internal/config"
	"github.com/traylinx/translateLocal/internal/hub"
	"github.com/traylinx/translateLocal/internal/registry"
	"github.com/traylinx/translateLocal/internal/runtime"
	"github.com/traylinx/translateLocal/internal/translation"
	"github.com/traylinx/translateLocal/internal/util"
	"github.com/traylinx/translateLocal/internal/watcher"
	"github.com/traylinx/translateLocal/internal/workerpool"
)

// ErrStopped is returned by Run on a service that was already shut down.
var ErrStopped = errors.New("service: already shut down")

// Service is a built translation server. Create it with NewBuilder.
type Service struct {
	cfgMu      sync.RWMutex
	cfg        *config.Config
	configPath string
	stateBox   *util.StateBox
	hooks      Hooks

	runtime  runtime.Runtime
	fetcher  *hub.Fetcher
	registry *registry.Registry
	pool     *workerpool.Pool
	executor *translation.Executor
	server   *api.Server

	// lifecycleMu guards the handles below between Run and Shutdown.
	lifecycleMu  sync.Mutex
	stopped      bool
	stopCh       chan struct{}
	watcher      *watcher.Watcher
	loadCancel   context.CancelFunc
	loadDone     chan struct{}
	shutdownOnce sync.Once
}

// Config returns the active configuration.
func (s *Service) Config() *config.Config {
	s.cfgMu.RLock()
	defer s.cfgMu.RUnlock()
	return s.cfg
}

// Registry exposes the model registry.
func (s *Service) Registry() *registry.Registry { return s.registry }

// Server exposes the HTTP server.
func (s *Service) Server() *api.Server { return s.server }

// IsReady reports whether every configured model is loaded.
func (s *Service) IsReady() bool { return s.registry.IsReady() }
