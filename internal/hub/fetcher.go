// Copyright 2026 The translateLocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package hub

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/traylinx/translateLocal/internal/util"
)

// ManifestFile records what was fetched into a model directory.
const ManifestFile = ".translatelocal-manifest.json"

// Manifest is written next to the artifacts after a successful fetch.
type Manifest struct {
	ModelID   string           `json:"model_id"`
	Source    string           `json:"source"`
	Files     map[string]int64 `json:"files"`
	FetchedAt time.Time        `json:"fetched_at"`
}

// Fetcher materialises model artifacts in the cache directory.
type Fetcher struct {
	source   Source
	sb       *util.StateBox
	cacheDir string

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewFetcher creates a fetcher. An empty cacheDir uses the state box models directory.
func NewFetcher(source Source, sb *util.StateBox, cacheDir string) *Fetcher {
	if cacheDir == "" {
		cacheDir = sb.ModelsDir()
	} else {
		cacheDir = sb.ResolvePath(cacheDir)
	}
	return &Fetcher{
		source:   source,
		sb:       sb,
		cacheDir: cacheDir,
		locks:    make(map[string]*sync.Mutex),
	}
}

// CacheDir returns the root of the artifact cache.
func (f *Fetcher) CacheDir() string { return f.cacheDir }

// ModelDir returns the cache directory of modelID, e.g. models--Helsinki-NLP--opus-mt-en-fr.
func (f *Fetcher) ModelDir(modelID string) string {
	name := "models--" + strings.ReplaceAll(strings.Trim(modelID, "/"), "/", "--")
	return filepath.Join(f.cacheDir, name)
}

func (f *Fetcher) modelLock(modelID string) *sync.Mutex {
	f.mu.Lock()
	defer f.mu.Unlock()
	l, ok := f.locks[modelID]
	if !ok {
		l = &sync.Mutex{}
		f.locks[modelID] = l
	}
	return l
}

// Ensure makes sure every file of modelID is present in the cache and returns
// the model directory. Files already present and non-empty are not fetched again.
func (f *Fetcher) Ensure(ctx context.Context, modelID string, files []string) (string, error) {
	if strings.TrimSpace(modelID) == "" {
		return "", fmt.Errorf("hub: model id is required")
	}
	lock := f.modelLock(modelID)
	lock.Lock()
	defer lock.Unlock()

	dir := f.ModelDir(modelID)
	missing := make([]string, 0, len(files))
	for _, file := range files {
		if !filepath.IsLocal(filepath.FromSlash(file)) {
			return "", fmt.Errorf("hub: artifact path %q escapes the model directory", file)
		}
		if !present(filepath.Join(dir, filepath.FromSlash(file))) {
			missing = append(missing, file)
		}
	}
	if len(missing) == 0 {
		log.Debugf("artifacts for %s already cached in %s", modelID, dir)
		return dir, nil
	}

	if err := f.sb.EnsureDir(dir); err != nil {
		return "", fmt.Errorf("hub: prepare %s: %w", dir, err)
	}

	sizes := make(map[string]int64, len(missing))
	for _, file := range missing {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		start := time.Now()
		n, err := f.fetch(ctx, modelID, file, filepath.Join(dir, filepath.FromSlash(file)))
		if err != nil {
			return "", err
		}
		sizes[file] = n
		log.WithFields(log.Fields{
			"model":  modelID,
			"file":   file,
			"bytes":  n,
			"source": f.source.Name(),
		}).Infof("fetched artifact in %s", time.Since(start).Round(time.Millisecond))
	}

	manifest := Manifest{ModelID: modelID, Source: f.source.Name(), Files: sizes, FetchedAt: time.Now().UTC()}
	if err := util.SecureWriteJSON(f.sb, filepath.Join(dir, ManifestFile), manifest, nil); err != nil {
		log.Warnf("failed to write manifest for %s: %v", modelID, err)
	}
	return dir, nil
}

func (f *Fetcher) fetch(ctx context.Context, modelID, file, dest string) (int64, error) {
	body, err := f.source.Open(ctx, modelID, file)
	if err != nil {
		return 0, fmt.Errorf("hub: fetch %s/%s from %s: %w", modelID, file, f.source.Name(), err)
	}
	defer body.Close()

	n, err := util.SecureWriteFrom(f.sb, dest, body, &util.SecureWriteOptions{Permissions: 0644})
	if err != nil {
		return n, fmt.Errorf("hub: store %s/%s: %w", modelID, file, err)
	}
	if n == 0 {
		_ = os.Remove(dest)
		return 0, fmt.Errorf("hub: %s/%s from %s is empty", modelID, file, f.source.Name())
	}
	return n, nil
}

func present(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular() && info.Size() > 0
}
