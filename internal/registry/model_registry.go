// Copyright 2026 The translateLocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package registry maps target language codes to loaded translation pipelines.
// The registry is configured once, loaded once, and immutable afterwards: readiness
// moves from false to true a single time and is never reset.
package registry

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/traylinx/translateLocal/internal/langtag"
	"github.com/traylinx/translateLocal/internal/runtime"
	"golang.org/x/sync/errgroup"
)

var (
	// ErrNotFound is returned by Lookup for a language that is not configured.
	ErrNotFound = errors.New("registry: language not supported")
	// ErrNotReady is returned by Lookup while models are still loading.
	ErrNotReady = errors.New("registry: models not loaded")
	// ErrModelLoad wraps the first failure of LoadAll.
	ErrModelLoad = errors.New("registry: model load failed")
)

// Entry declares one supported target language and the model serving it.
type Entry struct {
	Language string
	ModelID  string
	// ArtifactID and ArtifactDir locate exported weights; see runtime.ModelSpec.
	ArtifactID  string
	ArtifactDir string
}

// ModelEntry is a loaded model.
type ModelEntry struct {
	Language string
	ModelID  string
	Pipeline runtime.Pipeline
	LoadedAt time.Time
}

type catalog struct {
	entries []Entry
	byLang  map[string]Entry
}

// Registry owns the model pipelines of the service.
type Registry struct {
	rt runtime.Runtime

	// mu serialises Configure, LoadAll and Close. Lookups never take it.
	mu      sync.Mutex
	catalog atomic.Pointer[catalog]
	models  atomic.Pointer[map[string]*ModelEntry]
	ready   atomic.Bool
}

// New creates an empty registry that loads models through rt.
func New(rt runtime.Runtime) *Registry {
	return &Registry{rt: rt}
}

// Configure declares the supported languages. Nothing is loaded.
// It fails after LoadAll has succeeded.
func (r *Registry) Configure(entries []Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.ready.Load() {
		return fmt.Errorf("registry: already loaded")
	}
	if len(entries) == 0 {
		return fmt.Errorf("registry: at least one model entry is required")
	}

	c := &catalog{
		entries: make([]Entry, 0, len(entries)),
		byLang:  make(map[string]Entry, len(entries)),
	}
	for i, e := range entries {
		e.ModelID = strings.TrimSpace(e.ModelID)
		if strings.TrimSpace(e.Language) == "" || e.ModelID == "" {
			return fmt.Errorf("registry: entry %d needs both a language and a model id", i)
		}
		lang, err := langtag.Canonical(e.Language)
		if err != nil {
			return fmt.Errorf("registry: entry %d: %w", i, err)
		}
		e.Language = lang
		if _, dup := c.byLang[e.Language]; dup {
			return fmt.Errorf("registry: duplicate language %q", e.Language)
		}
		c.byLang[e.Language] = e
		c.entries = append(c.entries, e)
	}
	r.catalog.Store(c)
	return nil
}

// LoadAll loads every configured model. The first failure cancels the
// remaining loads, closes what was already loaded and returns an error
// wrapping ErrModelLoad. Readiness is set only when every model loaded.
// After a successful call further calls are no-ops.
func (r *Registry) LoadAll(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.ready.Load() {
		return nil
	}
	c := r.catalog.Load()
	if c == nil {
		return fmt.Errorf("%w: registry is not configured", ErrModelLoad)
	}

	loaded := make([]*ModelEntry, len(c.entries))
	g, gctx := errgroup.WithContext(ctx)
	for i, e := range c.entries {
		i, e := i, e
		g.Go(func() error {
			start := time.Now()
			log.Infof("loading %s model %s via %s runtime", e.Language, e.ModelID, r.rt.Name())
			p, err := r.rt.Load(gctx, runtime.ModelSpec{
				Language:    e.Language,
				ModelID:     e.ModelID,
				ArtifactID:  e.ArtifactID,
				ArtifactDir: e.ArtifactDir,
			})
			if err != nil {
				return fmt.Errorf("%w: %s (%s): %v", ErrModelLoad, e.Language, e.ModelID, err)
			}
			loaded[i] = &ModelEntry{Language: e.Language, ModelID: e.ModelID, Pipeline: p, LoadedAt: time.Now()}
			log.Infof("loaded %s model %s in %s", e.Language, e.ModelID, time.Since(start).Round(time.Millisecond))
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		for _, m := range loaded {
			if m == nil {
				continue
			}
			if errClose := m.Pipeline.Close(); errClose != nil {
				log.Warnf("failed to release %s model after load failure: %v", m.Language, errClose)
			}
		}
		return err
	}

	models := make(map[string]*ModelEntry, len(loaded))
	for _, m := range loaded {
		models[m.Language] = m
	}
	r.models.Store(&models)
	r.ready.Store(true)
	return nil
}

// Lookup returns the loaded model for lang.
func (r *Registry) Lookup(lang string) (*ModelEntry, error) {
	lang = strings.ToLower(strings.TrimSpace(lang))
	if !r.Supports(lang) {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, lang)
	}
	if !r.ready.Load() {
		return nil, ErrNotReady
	}
	models := r.models.Load()
	if models == nil {
		return nil, ErrNotReady
	}
	m, ok := (*models)[lang]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, lang)
	}
	return m, nil
}

// Supports reports whether lang is a configured target language.
func (r *Registry) Supports(lang string) bool {
	c := r.catalog.Load()
	if c == nil {
		return false
	}
	_, ok := c.byLang[lang]
	return ok
}

// IsReady reports whether every configured model is loaded.
func (r *Registry) IsReady() bool {
	return r.ready.Load()
}

// Languages returns the configured target languages in configuration order.
func (r *Registry) Languages() []string {
	c := r.catalog.Load()
	if c == nil {
		return []string{}
	}
	out := make([]string, len(c.entries))
	for i, e := range c.entries {
		out[i] = e.Language
	}
	return out
}

// ModelIDs returns the configured model identifiers in configuration order.
func (r *Registry) ModelIDs() []string {
	c := r.catalog.Load()
	if c == nil {
		return []string{}
	}
	out := make([]string, len(c.entries))
	for i, e := range c.entries {
		out[i] = e.ModelID
	}
	return out
}

// Close releases every loaded pipeline. Readiness is left as is; pipelines
// used after Close report runtime.ErrClosed.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	models := r.models.Load()
	if models == nil {
		return nil
	}
	var errs []error
	for lang, m := range *models {
		if err := m.Pipeline.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", lang, err))
		}
	}
	return errors.Join(errs...)
}
