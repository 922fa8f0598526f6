// Copyright 2026 The translateLocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package main provides the entry point for the translateLocal server, an HTTP
// service that translates English text with locally loaded pretrained models.
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
	"github.com/traylinx/translateLocal/internal/buildinfo"
	"github.com/traylinx/translateLocal/internal/cmd"
	"github.com/traylinx/translateLocal/internal/config"
	"github.com/traylinx/translateLocal/internal/logging"
	"github.com/traylinx/translateLocal/internal/util"
)

var (
	Version           = "dev"
	Commit            = "none"
	BuildDate         = "unknown"
	DefaultConfigPath = "config.yaml"
)

// init initializes the shared logger setup.
func init() {
	logging.SetupBaseLogger()
	buildinfo.Version = Version
	buildinfo.Commit = Commit
	buildinfo.BuildDate = BuildDate
}

// checkFilePermissions reports a config file readable by group or others.
func checkFilePermissions(filePath string) error {
	fileInfo, err := os.Stat(filePath)
	if err != nil {
		return err
	}
	if fileInfo.Mode().Perm()&0077 != 0 {
		return fmt.Errorf("file %s has insecure permissions (should be 600 or more restrictive)", filePath)
	}
	return nil
}

// hasCredentials reports whether the configuration carries a token or object store key.
func hasCredentials(cfg *config.Config) bool {
	return cfg.Hub.Token != "" || cfg.Runtime.Remote.Token != "" || cfg.Hub.S3.SecretKey != ""
}

// resolveConfigPath returns an absolute config path. A relative path is resolved
// against the working directory.
func resolveConfigPath(wd, path string) string {
	path = strings.TrimSpace(path)
	if path == "" {
		return ""
	}
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(wd, path)
}

// main parses flags, loads configuration and runs the server until it is signalled.
func main() {
	os.Exit(run())
}

func run() int {
	var (
		configPath  string
		showVersion bool
		noWatch     bool
	)
	flag.StringVar(&configPath, "config", DefaultConfigPath, "Configure File Path")
	flag.BoolVar(&showVersion, "version", false, "Print version and exit")
	flag.BoolVar(&noWatch, "no-watch", false, "Disable configuration hot reload")
	flag.Parse()

	if showVersion {
		fmt.Println(buildinfo.String())
		return 0
	}

	wd, err := os.Getwd()
	if err != nil {
		log.Errorf("failed to get working directory: %v", err)
		return 1
	}

	// Load environment variables from .env if present.
	if errLoad := godotenv.Load(filepath.Join(wd, ".env")); errLoad != nil {
		if !errors.Is(errLoad, os.ErrNotExist) {
			log.WithError(errLoad).Warn("failed to load .env file")
		}
	}

	configFilePath := resolveConfigPath(wd, configPath)
	configExists := false
	if _, errStat := os.Stat(configFilePath); errStat == nil {
		configExists = true
	}

	// A missing default config file falls back to defaults; an explicit one must exist.
	optional := configPath == DefaultConfigPath
	cfg, err := config.LoadConfigOptional(configFilePath, optional)
	if err != nil {
		log.Errorf("failed to load config: %v", err)
		return 1
	}
	cfg.ApplyEnvironment(os.LookupEnv)
	if err = cfg.Validate(); err != nil {
		log.Errorf("invalid configuration: %v", err)
		return 1
	}

	if err = logging.ConfigureLogOutput(cfg.LoggingToFile, cfg.LogsMaxTotalSizeMB); err != nil {
		log.Errorf("failed to configure log output: %v", err)
		return 1
	}

	log.Infof("translateLocal %s", buildinfo.String())

	// Set the log level based on the configuration.
	util.SetLogLevel(cfg)

	if !configExists {
		log.Infof("no configuration file at %s; using defaults", configFilePath)
	} else if hasCredentials(cfg) {
		if errPerm := checkFilePermissions(configFilePath); errPerm != nil {
			log.Warnf("security warning for config file: %v", errPerm)
		}
	}

	watchPath := configFilePath
	if noWatch || !configExists {
		watchPath = ""
	}

	if err = cmd.StartService(cfg, watchPath); err != nil {
		log.Error(err)
		return 1
	}
	return 0
}
