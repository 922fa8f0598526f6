// Copyright 2026 The translateLocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package runtime defines the contract between the translation service and the
// backends that actually run sequence-to-sequence models. A Runtime turns a
// ModelSpec into a loaded Pipeline; a Pipeline tokenizes, generates and decodes.
package runtime

import (
	"context"
	"errors"
)

// ErrClosed is returned by a Pipeline used after Close.
var ErrClosed = errors.New("runtime: pipeline closed")

// ModelSpec identifies a pretrained model to load.
type ModelSpec struct {
	// Language is the target language the model serves, e.g. "fr".
	Language string
	// ModelID is the hub identifier, e.g. "Helsinki-NLP/opus-mt-en-fr".
	ModelID string
	// ArtifactID is the repository holding exported weights for local backends.
	// Empty means ModelID.
	ArtifactID string
	// ArtifactDir is the folder of ArtifactID holding the model graphs; "" or "." is the root.
	ArtifactDir string
}

// Artifact returns the repository local backends download from.
func (s ModelSpec) Artifact() string {
	if s.ArtifactID != "" {
		return s.ArtifactID
	}
	return s.ModelID
}

// Options bound a single generation call.
type Options struct {
	// MaxInputTokens truncates longer inputs silently.
	MaxInputTokens int
	// MaxNewTokens caps the number of generated tokens per input.
	MaxNewTokens int
}

// DefaultOptions mirrors the limits the pretrained models were trained with.
func DefaultOptions() Options {
	return Options{MaxInputTokens: 512, MaxNewTokens: 512}
}

// Pipeline is a loaded tokenizer plus model.
//
// Translate returns exactly one output per input, in input order, with special
// tokens stripped. Decoding is deterministic: the same inputs produce the same outputs.
// Implementations must be safe for concurrent use.
type Pipeline interface {
	Translate(ctx context.Context, texts []string, opts Options) ([]string, error)
	Close() error
}

// Runtime loads pipelines.
type Runtime interface {
	// Name identifies the backend in logs.
	Name() string
	// Load prepares a pipeline for spec. It may download artifacts and is expected to be slow.
	Load(ctx context.Context, spec ModelSpec) (Pipeline, error)
}
