// Copyright 2026 The translateLocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package util provides utility functions for the translateLocal server.
package util

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/traylinx/translateLocal/internal/config"
)

// SetLogLevel applies the log level implied by the configuration.
// Debug mode enables debug logging; otherwise the level is info.
func SetLogLevel(cfg *config.Config) {
	currentLevel := log.GetLevel()
	newLevel := log.InfoLevel
	if cfg != nil && cfg.Debug {
		newLevel = log.DebugLevel
	}
	if currentLevel != newLevel {
		log.SetLevel(newLevel)
		log.Infof("log level changed from %s to %s (debug=%t)", currentLevel, newLevel, cfg != nil && cfg.Debug)
	}
}

// WritablePath returns the base directory for runtime-writable files such as logs.
// It honours TRANSLATE_WRITABLE_PATH and returns an empty string when unset,
// in which case callers fall back to paths relative to the working directory.
func WritablePath() string {
	for _, key := range []string{"TRANSLATE_WRITABLE_PATH", "translate_writable_path"} {
		if value, ok := os.LookupEnv(key); ok {
			trimmed := strings.TrimSpace(value)
			if trimmed != "" {
				return filepath.Clean(trimmed)
			}
		}
	}
	return ""
}

// ExpandPath expands a leading tilde to the user's home directory and cleans the result.
func ExpandPath(path string) (string, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return "", fmt.Errorf("path is empty")
	}
	if path == "~" || strings.HasPrefix(path, "~/") || strings.HasPrefix(path, `~\`) {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to resolve home directory: %w", err)
		}
		path = filepath.Join(home, path[1:])
	}
	return filepath.Clean(path), nil
}
