// Copyright 2026 The translateLocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package translation validates translation requests and runs them on the
// loaded models through the worker pool.
package translation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/traylinx/translateLocal/internal/registry"
	"github.com/traylinx/translateLocal/internal/runtime"
	"github.com/traylinx/translateLocal/internal/workerpool"
)

var (
	// ErrInvalidInput covers empty text, empty or oversized batches.
	ErrInvalidInput = errors.New("invalid input")
	// ErrUnsupportedLanguage is returned for a source other than English or an unconfigured target.
	ErrUnsupportedLanguage = errors.New("unsupported language")
	// ErrNotReady is returned while models are still loading.
	ErrNotReady = errors.New("translation service not ready")
	// ErrInferenceFailure wraps any runtime fault.
	ErrInferenceFailure = errors.New("inference failed")
)

// DefaultMaxBatchSize bounds TranslateBatch when no limit is configured.
const DefaultMaxBatchSize = 32

// ModelLookup is the part of the registry the executor needs.
type ModelLookup interface {
	Supports(lang string) bool
	IsReady() bool
	Lookup(lang string) (*registry.ModelEntry, error)
}

// Options tune the executor.
type Options struct {
	MaxInputTokens int
	MaxNewTokens   int
	MaxBatchSize   int
}

// Executor runs translations.
type Executor struct {
	models   ModelLookup
	pool     *workerpool.Pool
	genOpts  runtime.Options
	maxBatch int
}

// NewExecutor creates an executor. Zero option values fall back to the model limits.
func NewExecutor(models ModelLookup, pool *workerpool.Pool, opts Options) *Executor {
	genOpts := runtime.DefaultOptions()
	if opts.MaxInputTokens > 0 {
		genOpts.MaxInputTokens = opts.MaxInputTokens
	}
	if opts.MaxNewTokens > 0 {
		genOpts.MaxNewTokens = opts.MaxNewTokens
	}
	maxBatch := opts.MaxBatchSize
	if maxBatch <= 0 {
		maxBatch = DefaultMaxBatchSize
	}
	return &Executor{models: models, pool: pool, genOpts: genOpts, maxBatch: maxBatch}
}

// MaxBatchSize returns the largest accepted batch.
func (e *Executor) MaxBatchSize() int { return e.maxBatch }

// ResolveLanguages canonicalises and checks a language pair. It returns
// ErrUnsupportedLanguage whatever the readiness of the models.
func (e *Executor) ResolveLanguages(sourceLang, targetLang string) (string, string, error) {
	src, err := CanonicalLanguage(sourceLang)
	if err != nil {
		return "", "", err
	}
	if src != SourceLanguage {
		return "", "", fmt.Errorf("%w: only English source text is supported, got %q", ErrUnsupportedLanguage, sourceLang)
	}
	tgt, err := CanonicalLanguage(targetLang)
	if err != nil {
		return "", "", err
	}
	if !e.models.Supports(tgt) {
		return "", "", fmt.Errorf("%w: target language %q is not supported", ErrUnsupportedLanguage, targetLang)
	}
	return src, tgt, nil
}

// IsReady reports whether translations can run.
func (e *Executor) IsReady() bool {
	return e.models.IsReady()
}

// TranslateOne translates text from sourceLang to targetLang.
func (e *Executor) TranslateOne(ctx context.Context, text, sourceLang, targetLang string) (string, error) {
	out, err := e.translate(ctx, []string{text}, sourceLang, targetLang)
	if err != nil {
		return "", err
	}
	return out[0], nil
}

// TranslateBatch translates texts in a single runtime call. The result has the
// same length and order as texts. Any failure fails the whole batch.
func (e *Executor) TranslateBatch(ctx context.Context, texts []string, sourceLang, targetLang string) ([]string, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("%w: texts must not be empty", ErrInvalidInput)
	}
	if len(texts) > e.maxBatch {
		return nil, fmt.Errorf("%w: batch of %d texts exceeds the limit of %d", ErrInvalidInput, len(texts), e.maxBatch)
	}
	return e.translate(ctx, texts, sourceLang, targetLang)
}

func (e *Executor) translate(ctx context.Context, texts []string, sourceLang, targetLang string) ([]string, error) {
	_, tgt, err := e.ResolveLanguages(sourceLang, targetLang)
	if err != nil {
		return nil, err
	}
	for i, text := range texts {
		if strings.TrimSpace(text) == "" {
			if len(texts) == 1 {
				return nil, fmt.Errorf("%w: text must not be empty", ErrInvalidInput)
			}
			return nil, fmt.Errorf("%w: text %d must not be empty", ErrInvalidInput, i)
		}
	}
	if !e.models.IsReady() {
		return nil, ErrNotReady
	}

	model, err := e.models.Lookup(tgt)
	if err != nil {
		switch {
		case errors.Is(err, registry.ErrNotReady):
			return nil, ErrNotReady
		case errors.Is(err, registry.ErrNotFound):
			return nil, fmt.Errorf("%w: %v", ErrUnsupportedLanguage, err)
		default:
			return nil, fmt.Errorf("%w: %v", ErrInferenceFailure, err)
		}
	}

	start := time.Now()
	opts := e.genOpts
	out, err := workerpool.Do(ctx, e.pool, func(taskCtx context.Context) ([]string, error) {
		return model.Pipeline.Translate(taskCtx, texts, opts)
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%w: %s: %v", ErrInferenceFailure, model.ModelID, err)
	}
	if len(out) != len(texts) {
		return nil, fmt.Errorf("%w: %s returned %d outputs for %d inputs", ErrInferenceFailure, model.ModelID, len(out), len(texts))
	}

	log.WithFields(log.Fields{
		"target": tgt,
		"texts":  len(texts),
	}).Debugf("translated in %s", time.Since(start).Round(time.Millisecond))
	return out, nil
}
