// Copyright 2026 The translateLocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package service

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"github.com/traylinx/translateLocal/internal/api"
	"github.com/traylinx/translateLocal/internal/config"
	"github.com/traylinx/translateLocal/internal/hub"
	"github.com/traylinx/translateLocal/internal/registry"
	"github.com/traylinx/translateLocal/internal/runtime"
	"github.com/traylinx/translateLocal/internal/runtime/onnx"
	"github.com/traylinx/translateLocal/internal/runtime/remote"
	"github.com/traylinx/translateLocal/internal/translation"
	"github.com/traylinx/translateLocal/internal/util"
	"github.com/traylinx/translateLocal/internal/workerpool"
)

// Hooks are optional lifecycle callbacks.
type Hooks struct {
	// OnBeforeStart runs before the HTTP server starts.
	OnBeforeStart func(*config.Config)
	// OnAfterStart runs once the HTTP server goroutine is running.
	OnAfterStart func(*Service)
	// OnModelsLoaded runs after every model loaded.
	OnModelsLoaded func(*Service)
}

// Builder assembles a Service.
type Builder struct {
	cfg           *config.Config
	configPath    string
	runtime       runtime.Runtime
	stateBox      *util.StateBox
	hooks         Hooks
	serverOptions []api.ServerOption
}

// NewBuilder returns an empty builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// WithConfig sets the configuration. Required.
func (b *Builder) WithConfig(cfg *config.Config) *Builder {
	b.cfg = cfg
	return b
}

// WithConfigPath enables hot reload of the given file.
func (b *Builder) WithConfigPath(path string) *Builder {
	b.configPath = path
	return b
}

// WithRuntime replaces the runtime selected by runtime.backend.
func (b *Builder) WithRuntime(rt runtime.Runtime) *Builder {
	b.runtime = rt
	return b
}

// WithStateBox sets the state directory. By default it comes from the environment.
func (b *Builder) WithStateBox(sb *util.StateBox) *Builder {
	b.stateBox = sb
	return b
}

// WithHooks sets lifecycle callbacks.
func (b *Builder) WithHooks(h Hooks) *Builder {
	b.hooks = h
	return b
}

// WithServerOptions appends API server options.
func (b *Builder) WithServerOptions(opts ...api.ServerOption) *Builder {
	b.serverOptions = append(b.serverOptions, opts...)
	return b
}

// Build validates the configuration and wires every component. Nothing is
// loaded and no port is opened until Run.
func (b *Builder) Build() (*Service, error) {
	if b.cfg == nil {
		return nil, fmt.Errorf("service: configuration is required")
	}
	cfg := b.cfg
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	sb := b.stateBox
	if sb == nil {
		var err error
		if sb, err = util.NewStateBox(); err != nil {
			return nil, fmt.Errorf("service: %w", err)
		}
	}

	if cfg.Debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Service{
		cfg:        cfg,
		configPath: b.configPath,
		stateBox:   sb,
		hooks:      b.hooks,
		stopCh:     make(chan struct{}),
	}

	rt := b.runtime
	if rt == nil {
		var err error
		if rt, err = s.newRuntime(); err != nil {
			return nil, err
		}
	}
	s.runtime = rt

	s.registry = registry.New(rt)
	entries := make([]registry.Entry, 0, len(cfg.Models))
	for _, m := range cfg.Models {
		entries = append(entries, registry.Entry{
			Language:    m.Language,
			ModelID:     m.ModelID,
			ArtifactID:  m.OnnxModelID,
			ArtifactDir: m.OnnxDir,
		})
	}
	if err := s.registry.Configure(entries); err != nil {
		return nil, fmt.Errorf("service: %w", err)
	}

	s.pool = workerpool.New(cfg.Inference.Workers, cfg.Inference.QueueSize)
	s.executor = translation.NewExecutor(s.registry, s.pool, translation.Options{
		MaxInputTokens: cfg.Inference.MaxInputTokens,
		MaxNewTokens:   cfg.Inference.MaxNewTokens,
		MaxBatchSize:   cfg.Inference.MaxBatchSize,
	})

	opts := append([]api.ServerOption{}, b.serverOptions...)
	ids := artifactIDs(cfg.Models)
	artifacts := func() []string { return ids }
	cacheDir := ""
	var modelDir api.ModelDirFunc
	if s.fetcher != nil {
		cacheDir = s.fetcher.CacheDir()
		modelDir = s.fetcher.ModelDir
	}
	opts = append(opts, api.WithEngineConfigurator(func(e *gin.Engine) {
		e.GET("/cache/status", api.CacheStatusHandler(sb, cacheDir, artifacts, modelDir))
	}))
	s.server = api.NewServer(cfg, s.executor, s.registry, opts...)
	return s, nil
}

func (s *Service) newRuntime() (runtime.Runtime, error) {
	cfg := s.cfg
	switch cfg.Runtime.Backend {
	case config.BackendRemote:
		log.Infof("using remote runtime at %s", cfg.RemoteEndpoint())
		return remote.New(remote.Config{
			Endpoint:        cfg.RemoteEndpoint(),
			Token:           cfg.Runtime.Remote.Token,
			Timeout:         cfg.RemoteTimeout(),
			BreakerFailures: cfg.Runtime.Remote.BreakerFailures,
			BreakerCooldown: 30 * time.Second,
		}), nil
	default:
		source, err := hub.NewSource(cfg)
		if err != nil {
			return nil, fmt.Errorf("service: %w", err)
		}
		s.fetcher = hub.NewFetcher(source, s.stateBox, cfg.Hub.CacheDir)
		libPath := onnx.SharedLibraryPath(cfg.Runtime.SharedLibraryPath, s.stateBox.RootPath())
		log.Infof("using onnx runtime; artifacts from %s cached in %s", source.Name(), s.fetcher.CacheDir())
		return onnx.New(s.fetcher, libPath), nil
	}
}

// artifactIDs lists the repositories the onnx backend caches, in model order.
func artifactIDs(models []config.ModelConfig) []string {
	out := make([]string, 0, len(models))
	for _, m := range models {
		out = append(out, m.ArtifactModelID())
	}
	return out
}
