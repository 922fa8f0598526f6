// Copyright 2026 The translateLocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/traylinx/translateLocal/internal/config"
	"github.com/traylinx/translateLocal/internal/logging"
	"github.com/traylinx/translateLocal/internal/util"
	"github.com/traylinx/translateLocal/internal/watcher"
)

const shutdownTimeout = 30 * time.Second

// Run starts the HTTP server, then loads every model in the background and
// blocks until ctx is cancelled, Shutdown is called or the server fails. When loading fails and
// startup.on-load-failure is "exit", Run returns the load error.
func (s *Service) Run(ctx context.Context) error {
	if s == nil {
		return fmt.Errorf("service: nil service")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.Shutdown(shutdownCtx); err != nil {
			log.Errorf("service shutdown returned error: %v", err)
		}
	}()

	cfg := s.Config()
	if s.hooks.OnBeforeStart != nil {
		s.hooks.OnBeforeStart(cfg)
	}

	serverErr := make(chan error, 1)
	loadErr := make(chan error, 1)
	if err := s.start(ctx, cfg, serverErr, loadErr); err != nil {
		return err
	}

	if s.hooks.OnAfterStart != nil {
		s.hooks.OnAfterStart(s)
	}

	select {
	case <-ctx.Done():
		log.Debugf("service context cancelled: %v", ctx.Err())
		return ctx.Err()
	case <-s.stopCh:
		return nil
	case err := <-serverErr:
		return err
	case err := <-loadErr:
		log.Errorf("model loading failed: %v", err)
		return err
	}
}

// start launches the server, the config watcher and the background loader.
// It runs under lifecycleMu so a concurrent Shutdown sees either nothing
// started or every handle it has to stop.
func (s *Service) start(ctx context.Context, cfg *config.Config, serverErr, loadErr chan<- error) error {
	s.lifecycleMu.Lock()
	defer s.lifecycleMu.Unlock()
	if s.stopped {
		return ErrStopped
	}

	go func() {
		if err := s.server.Start(); err != nil {
			serverErr <- err
		}
	}()
	log.Infof("translation service listening on %s (runtime %s)", s.server.Addr(), s.runtime.Name())

	if s.configPath != "" {
		w, err := watcher.NewWatcher(s.configPath, s.applyConfig)
		if err != nil {
			return fmt.Errorf("service: failed to create config watcher: %w", err)
		}
		w.SetConfig(cfg)
		if err = w.Start(ctx); err != nil {
			return fmt.Errorf("service: failed to start config watcher: %w", err)
		}
		s.watcher = w
		log.Debugf("watching %s for changes", s.configPath)
	}

	loadCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	s.loadCancel = cancel
	s.loadDone = done
	go func() {
		defer close(done)
		if err := s.loadModels(loadCtx, cfg.Startup); err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			if cfg.Startup.OnLoadFailure == config.OnLoadFailureStayUnready {
				log.Errorf("model loading failed, serving without readiness: %v", err)
				return
			}
			loadErr <- err
		}
	}()
	return nil
}

// loadModels calls LoadAll up to LoadAttempts times, sleeping LoadBackoff between attempts.
func (s *Service) loadModels(ctx context.Context, startup config.StartupConfig) error {
	attempts := startup.LoadAttempts
	if attempts < 1 {
		attempts = 1
	}
	backoff := time.Duration(startup.LoadBackoffSeconds) * time.Second

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		started := time.Now()
		if err = s.registry.LoadAll(ctx); err == nil {
			log.WithFields(log.Fields{
				"models":   len(s.registry.ModelIDs()),
				"duration": time.Since(started).Round(time.Millisecond),
			}).Info("all translation models loaded; service ready")
			if s.hooks.OnModelsLoaded != nil {
				s.hooks.OnModelsLoaded(s)
			}
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if attempt < attempts {
			log.Warnf("model load attempt %d/%d failed: %v; retrying in %s", attempt, attempts, err, backoff)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
		}
	}
	return err
}

// applyConfig is the hot-reload callback. Only logging settings take effect
// without a restart; the watcher warns about the rest.
func (s *Service) applyConfig(newCfg *config.Config) {
	if newCfg == nil {
		return
	}
	if err := newCfg.Validate(); err != nil {
		log.Errorf("ignoring invalid configuration: %v", err)
		return
	}
	if err := logging.ConfigureLogOutput(newCfg.LoggingToFile, newCfg.LogsMaxTotalSizeMB); err != nil {
		log.Errorf("failed to reconfigure log output: %v", err)
	}
	util.SetLogLevel(newCfg)

	s.cfgMu.Lock()
	s.cfg = newCfg
	s.cfgMu.Unlock()
}

// Shutdown stops the server, the watcher and any in-flight model load, then
// drains the worker pool and releases loaded models. It is safe to call more than once.
func (s *Service) Shutdown(ctx context.Context) error {
	if s == nil {
		return nil
	}
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		if ctx == nil {
			ctx = context.Background()
		}

		s.lifecycleMu.Lock()
		s.stopped = true
		w, loadCancel, loadDone := s.watcher, s.loadCancel, s.loadDone
		if s.stopCh != nil {
			close(s.stopCh)
		}
		s.lifecycleMu.Unlock()

		if s.server != nil {
			stopCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
			if err := s.server.Stop(stopCtx); err != nil {
				log.Errorf("failed to stop HTTP server: %v", err)
				shutdownErr = err
			}
			cancel()
		}

		if w != nil {
			if err := w.Stop(); err != nil {
				log.Errorf("failed to stop config watcher: %v", err)
				if shutdownErr == nil {
					shutdownErr = err
				}
			}
		}

		if loadCancel != nil {
			loadCancel()
			select {
			case <-loadDone:
			case <-ctx.Done():
			}
		}

		if s.pool != nil {
			if err := s.pool.Close(ctx); err != nil && shutdownErr == nil {
				shutdownErr = err
			}
		}

		if s.registry != nil {
			if err := s.registry.Close(); err != nil {
				log.Errorf("failed to release models: %v", err)
				if shutdownErr == nil {
					shutdownErr = err
				}
			}
		}
		log.Info("translation service stopped")
	})
	return shutdownErr
}
