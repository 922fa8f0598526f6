// Copyright 2026 The translateLocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package cmd starts the translation service from the command line.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/traylinx/translateLocal/internal/api"
	"github.com/traylinx/translateLocal/internal/buildinfo"
	"github.com/traylinx/translateLocal/internal/config"
	"github.com/traylinx/translateLocal/internal/service"
)

// StartService builds the translation service and runs it until SIGINT or
// SIGTERM. A non-nil error means the process should exit non-zero; a signal
// shutdown returns nil.
//
// Parameters:
//   - cfg: The application configuration
//   - configPath: The configuration file to watch; empty disables hot reload
func StartService(cfg *config.Config, configPath string) error {
	builder := service.NewBuilder().
		WithConfig(cfg).
		WithConfigPath(configPath).
		WithServerOptions(api.WithVersion(buildinfo.Version)).
		WithHooks(service.Hooks{
			OnModelsLoaded: func(s *service.Service) {
				log.Infof("serving languages: %v", s.Registry().Languages())
			},
		})

	ctxSignal, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	svc, err := builder.Build()
	if err != nil {
		return fmt.Errorf("failed to build translation service: %w", err)
	}

	err = svc.Run(ctxSignal)
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("translation service exited with error: %w", err)
	}
	return nil
}
