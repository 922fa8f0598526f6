// Copyright 2026 The translateLocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package watcher reloads the configuration file when it changes on disk.
package watcher

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	log "github.com/sirupsen/logrus"
	"github.com/traylinx/translateLocal/internal/config"
	"github.com/traylinx/translateLocal/internal/watcher/diff"
)

const debounceDelay = 100 * time.Millisecond

// Watcher watches the configuration file and hands every successfully parsed
// new version to the reload callback.
type Watcher struct {
	configPath string
	reload     func(*config.Config)
	lookupEnv  func(string) (string, bool)

	mu       sync.Mutex
	cfg      *config.Config
	lastHash string

	fsw      *fsnotify.Watcher
	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// NewWatcher creates a watcher for configPath. reload is called from the
// watcher goroutine.
func NewWatcher(configPath string, reload func(*config.Config)) (*Watcher, error) {
	if configPath == "" {
		return nil, fmt.Errorf("watcher: config path is required")
	}
	abs, err := filepath.Abs(configPath)
	if err != nil {
		return nil, fmt.Errorf("watcher: resolve %s: %w", configPath, err)
	}
	return &Watcher{
		configPath: abs,
		reload:     reload,
		lookupEnv:  os.LookupEnv,
		stopCh:     make(chan struct{}),
		doneCh:     make(chan struct{}),
	}, nil
}

// SetConfig records the configuration currently in effect.
func (w *Watcher) SetConfig(cfg *config.Config) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.cfg = cfg
	if hash, err := hashFile(w.configPath); err == nil {
		w.lastHash = hash
	}
}

// Start begins watching. The directory is watched rather than the file so
// editors that replace the file by rename are noticed.
func (w *Watcher) Start(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("watcher: %w", err)
	}
	if err := fsw.Add(filepath.Dir(w.configPath)); err != nil {
		_ = fsw.Close()
		return fmt.Errorf("watcher: watch %s: %w", filepath.Dir(w.configPath), err)
	}
	w.fsw = fsw

	go w.loop(ctx)
	log.Debugf("watching %s for changes", w.configPath)
	return nil
}

func (w *Watcher) loop(ctx context.Context) {
	defer close(w.doneCh)

	var timer *time.Timer
	var timerC <-chan time.Time
	for {
		select {
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.configPath {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(debounceDelay)
			} else {
				timer.Reset(debounceDelay)
			}
			timerC = timer.C
		case <-timerC:
			timerC = nil
			w.reloadConfig()
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			log.Errorf("config watcher error: %v", err)
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		}
	}
}

func (w *Watcher) reloadConfig() {
	hash, err := hashFile(w.configPath)
	if err != nil {
		log.Warnf("config file unreadable, keeping current configuration: %v", err)
		return
	}

	w.mu.Lock()
	if hash == w.lastHash {
		w.mu.Unlock()
		log.Debug("config file touched without content change")
		return
	}
	oldCfg := w.cfg
	w.mu.Unlock()

	newCfg, err := config.LoadConfig(w.configPath)
	if err != nil {
		log.Errorf("failed to reload config, keeping current configuration: %v", err)
		return
	}
	newCfg.ApplyEnvironment(w.lookupEnv)
	if err = newCfg.Validate(); err != nil {
		log.Errorf("reloaded config is invalid, keeping current configuration: %v", err)
		return
	}

	for _, change := range diff.BuildConfigChangeDetails(oldCfg, newCfg) {
		log.Infof("config change: %s", change)
	}
	if diff.RequiresRestart(oldCfg, newCfg) {
		log.Warn("config changes to address, models, runtime or artifact source take effect after a restart")
	}

	w.mu.Lock()
	w.cfg = newCfg
	w.lastHash = hash
	w.mu.Unlock()

	if w.reload != nil {
		w.reload(newCfg)
	}
}

// Stop ends the watch loop and releases the fsnotify handle.
func (w *Watcher) Stop() error {
	var err error
	w.stopOnce.Do(func() {
		close(w.stopCh)
		if w.fsw != nil {
			err = w.fsw.Close()
			<-w.doneCh
		}
	})
	return err
}

func hashFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
