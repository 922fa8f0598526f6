// Copyright 2026 The translateLocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package onnx

import (
	"os"
	"path/filepath"
	goruntime "runtime"
)

// SharedLibraryEnv names the environment variable pointing at libonnxruntime.
const SharedLibraryEnv = "ONNXRUNTIME_LIB_PATH"

// SharedLibraryPath resolves the ONNX Runtime shared library.
// Order: the configured path, ONNXRUNTIME_LIB_PATH, then common install locations
// for the current OS (including <stateRoot>/lib). It returns the configured value
// unchanged, or "" when nothing is found, leaving the default loader search to onnxruntime_go.
func SharedLibraryPath(configured, stateRoot string) string {
	if configured != "" {
		return configured
	}

	if envPath := os.Getenv(SharedLibraryEnv); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}

	for _, path := range candidateLibraryPaths(goruntime.GOOS, stateRoot) {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

func candidateLibraryPaths(goos, stateRoot string) []string {
	var paths []string
	switch goos {
	case "darwin":
		paths = []string{
			"/usr/local/lib/libonnxruntime.dylib",
			"/opt/homebrew/lib/libonnxruntime.dylib",
		}
		if stateRoot != "" {
			paths = append(paths, filepath.Join(stateRoot, "lib", "libonnxruntime.dylib"))
		}
	case "linux":
		paths = []string{
			"/usr/local/lib/libonnxruntime.so",
			"/usr/lib/libonnxruntime.so",
			"/usr/lib/x86_64-linux-gnu/libonnxruntime.so",
			"/usr/lib/aarch64-linux-gnu/libonnxruntime.so",
		}
		if stateRoot != "" {
			paths = append(paths, filepath.Join(stateRoot, "lib", "libonnxruntime.so"))
		}
	case "windows":
		paths = []string{
			"C:\\Program Files\\onnxruntime\\lib\\onnxruntime.dll",
		}
		if stateRoot != "" {
			paths = append(paths, filepath.Join(stateRoot, "lib", "onnxruntime.dll"))
		}
	}
	return paths
}
