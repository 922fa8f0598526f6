// Copyright 2026 The translateLocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package util

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// ErrReadOnlyMode is returned when a write operation is attempted in read-only mode.
var ErrReadOnlyMode = errors.New("read-only environment: write operations disabled")

// SecureWriteOptions configures the secure write operation.
type SecureWriteOptions struct {
	// CreateBackup creates a .bak file before overwriting an existing file
	CreateBackup bool
	// Permissions sets the file permissions (default: 0600)
	Permissions os.FileMode
}

// DefaultSecureWriteOptions returns the default options for SecureWrite.
func DefaultSecureWriteOptions() *SecureWriteOptions {
	return &SecureWriteOptions{
		CreateBackup: false,
		Permissions:  0600,
	}
}

// SecureWrite atomically writes data to a file using the rename-swap pattern.
// See SecureWriteFrom for the guarantees.
func SecureWrite(sb *StateBox, path string, data []byte, opts *SecureWriteOptions) error {
	_, err := SecureWriteFrom(sb, path, bytes.NewReader(data), opts)
	return err
}

// SecureWriteFrom streams r into a temporary file next to path, calls fsync(),
// then atomically renames it to path. Readers never observe a partially written
// target, and a failed copy leaves any previous file untouched.
//
// If sb is in read-only mode, returns ErrReadOnlyMode without modifying any files.
// If opts is nil, default options are used (no backup, 0600 permissions).
// It returns the number of bytes written.
func SecureWriteFrom(sb *StateBox, path string, r io.Reader, opts *SecureWriteOptions) (int64, error) {
	if sb != nil && sb.IsReadOnly() {
		return 0, ErrReadOnlyMode
	}

	if opts == nil {
		opts = DefaultSecureWriteOptions()
	}
	perm := opts.Permissions
	if perm == 0 {
		perm = 0600
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return 0, fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	tempPath := fmt.Sprintf("%s.tmp.%s", path, uuid.New().String())

	tempFile, err := os.OpenFile(tempPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, perm)
	if err != nil {
		return 0, fmt.Errorf("failed to create temp file %s: %w", tempPath, err)
	}

	cleanupTemp := true
	defer func() {
		if cleanupTemp {
			_ = os.Remove(tempPath)
		}
	}()

	written, err := io.Copy(tempFile, r)
	if err != nil {
		_ = tempFile.Close()
		return written, fmt.Errorf("failed to write to temp file: %w", err)
	}

	if err := tempFile.Sync(); err != nil {
		_ = tempFile.Close()
		return written, fmt.Errorf("failed to fsync temp file: %w", err)
	}

	if err := tempFile.Close(); err != nil {
		return written, fmt.Errorf("failed to close temp file: %w", err)
	}

	if opts.CreateBackup {
		if _, err := os.Stat(path); err == nil {
			backupPath := path + ".bak"
			if err := copyFile(path, backupPath, perm); err != nil {
				fmt.Fprintf(os.Stderr, "warning: failed to create backup %s: %v\n", backupPath, err)
			}
		}
	}

	// rename(2) is atomic within one filesystem; the temp file lives in the target dir.
	if err := os.Rename(tempPath, path); err != nil {
		return written, fmt.Errorf("failed to rename temp file to target: %w", err)
	}
	cleanupTemp = false

	if err := syncDir(dir); err != nil {
		fmt.Fprintf(os.Stderr, "warning: failed to sync directory %s: %v\n", dir, err)
	}

	return written, nil
}

// copyFile copies a file from src to dst with the specified permissions.
func copyFile(src, dst string, perm os.FileMode) error {
	srcFile, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open source file: %w", err)
	}
	defer srcFile.Close()

	dstFile, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm)
	if err != nil {
		return fmt.Errorf("failed to create destination file: %w", err)
	}
	defer dstFile.Close()

	if _, err := io.Copy(dstFile, srcFile); err != nil {
		return fmt.Errorf("failed to copy file content: %w", err)
	}

	return dstFile.Sync()
}

// syncDir syncs a directory so the rename is durable. Best effort.
func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer d.Close()
	return d.Sync()
}

// SecureWriteJSON marshals v to indented JSON and writes it atomically.
func SecureWriteJSON(sb *StateBox, path string, v interface{}, opts *SecureWriteOptions) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}
	data = append(data, '\n')
	return SecureWrite(sb, path, data, opts)
}
