// Copyright 2026 The translateLocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package onnx runs Marian translation models locally through ONNX Runtime.
package onnx

import (
	"context"
	"fmt"
	"path/filepath"

	log "github.com/sirupsen/logrus"
	"github.com/traylinx/translateLocal/internal/runtime"
)

// ArtifactFetcher materialises model files in a local directory.
type ArtifactFetcher interface {
	Ensure(ctx context.Context, modelID string, files []string) (string, error)
}

// Runtime loads ONNX pipelines from fetched artifacts.
type Runtime struct {
	fetcher       ArtifactFetcher
	sharedLibPath string
}

// New creates an ONNX runtime. sharedLibPath may be empty to use the default loader search.
func New(fetcher ArtifactFetcher, sharedLibPath string) *Runtime {
	return &Runtime{fetcher: fetcher, sharedLibPath: sharedLibPath}
}

// Name implements runtime.Runtime.
func (r *Runtime) Name() string { return "onnx" }

// Load fetches the model artifacts and builds the tokenizer and model for spec.
func (r *Runtime) Load(ctx context.Context, spec runtime.ModelSpec) (runtime.Pipeline, error) {
	if r.fetcher == nil {
		return nil, fmt.Errorf("onnx runtime: no artifact fetcher configured")
	}

	artifact := spec.Artifact()
	dir, err := r.fetcher.Ensure(ctx, artifact, ArtifactFiles(spec.ArtifactDir))
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", artifact, err)
	}
	graphDir := filepath.Join(dir, filepath.FromSlash(spec.ArtifactDir))

	cfg, err := LoadModelConfig(filepath.Join(dir, ConfigFile))
	if err != nil {
		return nil, err
	}

	tokenizer, err := NewTokenizer(filepath.Join(dir, VocabFile))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tokenizer: %w", err)
	}
	if tokenizer.PadID() != cfg.PadTokenID || tokenizer.EOSID() != cfg.EOSTokenID {
		log.Warnf("tokenizer special ids (pad=%d eos=%d) differ from model config (pad=%d eos=%d) for %s",
			tokenizer.PadID(), tokenizer.EOSID(), cfg.PadTokenID, cfg.EOSTokenID, spec.ModelID)
	}

	if err := checkArtifacts(graphDir); err != nil {
		return nil, err
	}
	if err := initEnvironment(r.sharedLibPath); err != nil {
		return nil, err
	}

	model, err := NewModel(graphDir, cfg)
	if err != nil {
		return nil, err
	}
	model.name = artifact

	log.Infof("onnx pipeline ready for %s (%s from %s)", spec.Language, spec.ModelID, artifact)
	return &Pipeline{tokenizer: tokenizer, model: model}, nil
}

// Pipeline couples a tokenizer with its model.
type Pipeline struct {
	tokenizer *Tokenizer
	model     generator
}

// generator is the part of Model the pipeline depends on.
type generator interface {
	Generate(ctx context.Context, batch *TokenizedBatch, maxNewTokens int) ([][]int64, error)
	Close() error
}

// Translate implements runtime.Pipeline: tokenize, generate, decode.
func (p *Pipeline) Translate(ctx context.Context, texts []string, opts runtime.Options) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(texts) == 0 {
		return []string{}, nil
	}

	batch := p.tokenizer.EncodeBatch(texts, opts.MaxInputTokens)
	ids, err := p.model.Generate(ctx, batch, opts.MaxNewTokens)
	if err != nil {
		return nil, err
	}
	if len(ids) != len(texts) {
		return nil, fmt.Errorf("model returned %d sequences for %d inputs", len(ids), len(texts))
	}

	out := make([]string, len(ids))
	for i, row := range ids {
		out[i] = p.tokenizer.Decode(row)
	}
	return out, nil
}

// Close releases the model sessions.
func (p *Pipeline) Close() error {
	return p.model.Close()
}
