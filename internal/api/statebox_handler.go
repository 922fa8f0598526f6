// Copyright 2026 The translateLocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package api

import (
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/traylinx/translateLocal/internal/hub"
	"github.com/traylinx/translateLocal/internal/util"
)

// CacheStatus describes the state directory and the model artifact cache.
type CacheStatus struct {
	RootPath         string             `json:"root_path"`
	ReadOnly         bool               `json:"read_only"`
	CacheDir         string             `json:"cache_dir,omitempty"`
	Models           []ModelCacheStatus `json:"models"`
	PermissionStatus string             `json:"permission_status"` // "ok", "warning", "error"
	Warnings         []string           `json:"warnings"`
	Errors           []string           `json:"errors"`
}

// ModelCacheStatus describes the cached artifacts of one model.
type ModelCacheStatus struct {
	ModelID  string      `json:"model_id"`
	Dir      *FileStatus `json:"dir"`
	Manifest *FileStatus `json:"manifest"`
}

// FileStatus represents the status of a file or directory.
type FileStatus struct {
	Path    string    `json:"path"`
	Exists  bool      `json:"exists"`
	Size    int64     `json:"size"`
	Mode    string    `json:"mode"`
	ModTime time.Time `json:"mod_time,omitempty"`
}

// ModelDirFunc maps a model id to its cache directory.
type ModelDirFunc func(modelID string) string

func getFileStatus(path string) *FileStatus {
	status := &FileStatus{Path: path}
	info, err := os.Stat(path)
	if err != nil {
		return status
	}
	status.Exists = true
	status.Size = info.Size()
	status.Mode = info.Mode().String()
	status.ModTime = info.ModTime()
	return status
}

// CacheStatusHandler returns a handler for GET /cache/status.
// modelDir may be nil when the runtime keeps no local artifacts.
func CacheStatusHandler(sb *util.StateBox, cacheDir string, modelIDs func() []string, modelDir ModelDirFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		if sb == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"detail": "state directory not initialized"})
			return
		}

		status := &CacheStatus{
			RootPath:         sb.RootPath(),
			ReadOnly:         sb.IsReadOnly(),
			CacheDir:         cacheDir,
			Models:           []ModelCacheStatus{},
			PermissionStatus: "ok",
			Warnings:         []string{},
			Errors:           []string{},
		}

		if _, err := os.Stat(sb.RootPath()); err != nil {
			if os.IsNotExist(err) {
				status.Warnings = append(status.Warnings, "state root directory does not exist")
				status.PermissionStatus = "warning"
			} else {
				status.Errors = append(status.Errors, "failed to access state root directory")
				status.PermissionStatus = "error"
			}
		}

		if modelDir != nil {
			for _, id := range modelIDs() {
				dir := modelDir(id)
				entry := ModelCacheStatus{
					ModelID:  id,
					Dir:      getFileStatus(dir),
					Manifest: getFileStatus(filepath.Join(dir, hub.ManifestFile)),
				}
				if !entry.Manifest.Exists {
					status.Warnings = append(status.Warnings, id+" has not been fetched")
					if status.PermissionStatus == "ok" {
						status.PermissionStatus = "warning"
					}
				}
				if entry.Dir.Exists {
					if info, err := os.Stat(dir); err == nil && info.Mode().Perm()&0007 != 0 {
						status.Warnings = append(status.Warnings, id+" cache directory is world accessible")
						if status.PermissionStatus == "ok" {
							status.PermissionStatus = "warning"
						}
					}
				}
				status.Models = append(status.Models, entry)
			}
		}

		c.JSON(http.StatusOK, status)
	}
}
