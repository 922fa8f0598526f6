// Copyright 2026 The translateLocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package diff describes what changed between two configurations.
package diff

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"github.com/traylinx/translateLocal/internal/config"
	"github.com/traylinx/translateLocal/internal/util"
)

// ModelsHash returns a stable hash of the language to model mapping.
func ModelsHash(models []config.ModelConfig) string {
	if len(models) == 0 {
		return ""
	}
	pairs := make([]string, 0, len(models))
	for _, m := range models {
		pairs = append(pairs, strings.ToLower(strings.TrimSpace(m.Language))+"="+strings.TrimSpace(m.ModelID)+
			"@"+strings.TrimSpace(m.ArtifactModelID())+"/"+strings.TrimSpace(m.OnnxDir))
	}
	sort.Strings(pairs)
	sum := sha256.Sum256([]byte(strings.Join(pairs, "\n")))
	return hex.EncodeToString(sum[:])
}

// RequiresRestart reports whether the change touches settings that are fixed
// once the service has started: listen address, models, runtime or artifact source.
func RequiresRestart(oldCfg, newCfg *config.Config) bool {
	if oldCfg == nil || newCfg == nil {
		return false
	}
	return oldCfg.Host != newCfg.Host ||
		oldCfg.Port != newCfg.Port ||
		ModelsHash(oldCfg.Models) != ModelsHash(newCfg.Models) ||
		oldCfg.Runtime.Backend != newCfg.Runtime.Backend ||
		oldCfg.Hub.Source != newCfg.Hub.Source
}

// BuildConfigChangeDetails lists human readable changes. Secrets are masked.
func BuildConfigChangeDetails(oldCfg, newCfg *config.Config) []string {
	changes := make([]string, 0, 16)
	if oldCfg == nil || newCfg == nil {
		return changes
	}

	if oldCfg.Host != newCfg.Host {
		changes = append(changes, fmt.Sprintf("host: %q -> %q", oldCfg.Host, newCfg.Host))
	}
	if oldCfg.Port != newCfg.Port {
		changes = append(changes, fmt.Sprintf("port: %d -> %d", oldCfg.Port, newCfg.Port))
	}
	if oldCfg.Debug != newCfg.Debug {
		changes = append(changes, fmt.Sprintf("debug: %t -> %t", oldCfg.Debug, newCfg.Debug))
	}
	if oldCfg.LoggingToFile != newCfg.LoggingToFile {
		changes = append(changes, fmt.Sprintf("logging-to-file: %t -> %t", oldCfg.LoggingToFile, newCfg.LoggingToFile))
	}
	if oldCfg.LogsMaxTotalSizeMB != newCfg.LogsMaxTotalSizeMB {
		changes = append(changes, fmt.Sprintf("logs-max-total-size-mb: %d -> %d", oldCfg.LogsMaxTotalSizeMB, newCfg.LogsMaxTotalSizeMB))
	}
	if oldCfg.RequestLog != newCfg.RequestLog {
		changes = append(changes, fmt.Sprintf("request-log: %t -> %t", oldCfg.RequestLog, newCfg.RequestLog))
	}
	if ModelsHash(oldCfg.Models) != ModelsHash(newCfg.Models) {
		changes = append(changes, fmt.Sprintf("models: %s -> %s", strings.Join(oldCfg.Languages(), ","), strings.Join(newCfg.Languages(), ",")))
	}
	if oldCfg.Runtime.Backend != newCfg.Runtime.Backend {
		changes = append(changes, fmt.Sprintf("runtime.backend: %s -> %s", oldCfg.Runtime.Backend, newCfg.Runtime.Backend))
	}
	if oldCfg.Runtime.Remote.Token != newCfg.Runtime.Remote.Token {
		changes = append(changes, fmt.Sprintf("runtime.remote.token: %s -> %s",
			util.HideAPIKey(oldCfg.Runtime.Remote.Token), util.HideAPIKey(newCfg.Runtime.Remote.Token)))
	}
	if oldCfg.Hub.Source != newCfg.Hub.Source {
		changes = append(changes, fmt.Sprintf("hub.source: %s -> %s", oldCfg.Hub.Source, newCfg.Hub.Source))
	}
	if oldCfg.Hub.Token != newCfg.Hub.Token {
		changes = append(changes, fmt.Sprintf("hub.token: %s -> %s", util.HideAPIKey(oldCfg.Hub.Token), util.HideAPIKey(newCfg.Hub.Token)))
	}
	if oldCfg.Inference.Workers != newCfg.Inference.Workers {
		changes = append(changes, fmt.Sprintf("inference.workers: %d -> %d", oldCfg.Inference.Workers, newCfg.Inference.Workers))
	}
	if oldCfg.Startup.OnLoadFailure != newCfg.Startup.OnLoadFailure {
		changes = append(changes, fmt.Sprintf("startup.on-load-failure: %s -> %s", oldCfg.Startup.OnLoadFailure, newCfg.Startup.OnLoadFailure))
	}
	if oldCfg.Security.RequestsPerMinute != newCfg.Security.RequestsPerMinute {
		changes = append(changes, fmt.Sprintf("security.requests-per-minute: %d -> %d", oldCfg.Security.RequestsPerMinute, newCfg.Security.RequestsPerMinute))
	}
	if strings.Join(oldCfg.Security.CORSAllowOrigins, ",") != strings.Join(newCfg.Security.CORSAllowOrigins, ",") {
		changes = append(changes, fmt.Sprintf("security.cors-allow-origins: [%s] -> [%s]",
			strings.Join(oldCfg.Security.CORSAllowOrigins, ", "), strings.Join(newCfg.Security.CORSAllowOrigins, ", ")))
	}
	return changes
}
