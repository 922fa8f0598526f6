// Copyright 2026 The translateLocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package util

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

const (
	// StateDirEnv overrides the state directory root.
	StateDirEnv = "TRANSLATE_STATE_DIR"
	// ReadOnlyEnv switches the state directory to read-only mode when set to "1".
	ReadOnlyEnv = "TRANSLATE_READONLY"

	defaultStateDir = "~/.translatelocal"
)

// StateBox manages the canonical state directory for translateLocal.
// All mutable data (the model artifact cache in particular) is resolved below its root.
type StateBox struct {
	rootPath string
	readOnly bool
	mu       sync.RWMutex
}

// NewStateBox creates a new StateBox instance.
// It reads TRANSLATE_STATE_DIR and TRANSLATE_READONLY from the environment.
// If TRANSLATE_STATE_DIR is not set, it defaults to ~/.translatelocal.
// In read-only mode every SecureWrite call fails with ErrReadOnlyMode, which
// means only artifacts already present in the cache can be used.
func NewStateBox() (*StateBox, error) {
	stateDir := os.Getenv(StateDirEnv)
	if strings.TrimSpace(stateDir) == "" {
		stateDir = defaultStateDir
	}

	resolvedPath, err := ExpandPath(stateDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve state directory: %w", err)
	}

	return &StateBox{
		rootPath: resolvedPath,
		readOnly: os.Getenv(ReadOnlyEnv) == "1",
	}, nil
}

// RootPath returns the resolved state root directory.
func (sb *StateBox) RootPath() string {
	sb.mu.RLock()
	defer sb.mu.RUnlock()
	return sb.rootPath
}

// IsReadOnly reports whether the StateBox is in read-only mode.
func (sb *StateBox) IsReadOnly() bool {
	sb.mu.RLock()
	defer sb.mu.RUnlock()
	return sb.readOnly
}

// ModelsDir returns the default model artifact cache directory.
func (sb *StateBox) ModelsDir() string {
	return filepath.Join(sb.RootPath(), "models")
}

// ResolvePath joins a relative path with the state root.
// Absolute paths and paths starting with a tilde are returned expanded and cleaned.
func (sb *StateBox) ResolvePath(relativePath string) string {
	if relativePath == "" {
		return sb.RootPath()
	}

	if strings.HasPrefix(relativePath, "~") || filepath.IsAbs(relativePath) {
		cleaned, err := ExpandPath(relativePath)
		if err != nil {
			return filepath.Clean(relativePath)
		}
		return cleaned
	}

	return filepath.Join(sb.RootPath(), relativePath)
}

// EnsureDir creates a directory with 0700 permissions if it doesn't exist,
// including all missing parents.
func (sb *StateBox) EnsureDir(path string) error {
	info, err := os.Stat(path)
	if err == nil {
		if !info.IsDir() {
			return fmt.Errorf("path exists but is not a directory: %s", path)
		}
		return nil
	}

	if !os.IsNotExist(err) {
		return fmt.Errorf("failed to stat directory %s: %w", path, err)
	}

	if sb != nil && sb.IsReadOnly() {
		return ErrReadOnlyMode
	}

	if err := os.MkdirAll(path, 0700); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", path, err)
	}

	return nil
}
