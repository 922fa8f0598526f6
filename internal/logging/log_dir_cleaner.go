// Copyright 2026 The translateLocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package logging

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
)

const logDirCleanInterval = time.Minute

var cleanerCancel context.CancelFunc

// configureLogDirCleanerLocked restarts the cleaner for the given directory. Caller holds writerMu.
func configureLogDirCleanerLocked(logDir string, maxTotalSizeMB int, protectedPath string) {
	stopLogDirCleanerLocked()
	if maxTotalSizeMB <= 0 {
		return
	}

	maxBytes := int64(maxTotalSizeMB) * 1024 * 1024
	ctx, cancel := context.WithCancel(context.Background())
	cleanerCancel = cancel

	go func() {
		ticker := time.NewTicker(logDirCleanInterval)
		defer ticker.Stop()
		for {
			if removed, err := enforceLogDirSizeLimit(logDir, maxBytes, protectedPath); err != nil {
				log.Debugf("log dir cleaner: %v", err)
			} else if removed > 0 {
				log.Debugf("log dir cleaner removed %d file(s) from %s", removed, logDir)
			}
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
}

// stopLogDirCleanerLocked stops a running cleaner. Caller holds writerMu.
func stopLogDirCleanerLocked() {
	if cleanerCancel != nil {
		cleanerCancel()
		cleanerCancel = nil
	}
}

type logFileInfo struct {
	path    string
	size    int64
	modTime time.Time
}

// enforceLogDirSizeLimit deletes the oldest log files in logDir until the total size is
// at most maxBytes. The active log file (protectedPath) is never removed.
func enforceLogDirSizeLimit(logDir string, maxBytes int64, protectedPath string) (int, error) {
	entries, err := os.ReadDir(logDir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}

	var files []logFileInfo
	var total int64
	for _, entry := range entries {
		if entry.IsDir() || !strings.Contains(entry.Name(), ".log") {
			continue
		}
		info, errInfo := entry.Info()
		if errInfo != nil {
			continue
		}
		files = append(files, logFileInfo{
			path:    filepath.Join(logDir, entry.Name()),
			size:    info.Size(),
			modTime: info.ModTime(),
		})
		total += info.Size()
	}

	sort.Slice(files, func(i, j int) bool {
		return files[i].modTime.Before(files[j].modTime)
	})

	protected := filepath.Clean(protectedPath)
	removed := 0
	for _, f := range files {
		if total <= maxBytes {
			break
		}
		if protectedPath != "" && filepath.Clean(f.path) == protected {
			continue
		}
		if errRemove := os.Remove(f.path); errRemove != nil {
			continue
		}
		total -= f.size
		removed++
	}
	return removed, nil
}
