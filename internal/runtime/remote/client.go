// Copyright 2026 The translateLocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package remote runs translation models on a Hugging Face Inference compatible endpoint.
package remote

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-resty/resty/v2"
	log "github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
	"github.com/tidwall/gjson"
	"github.com/traylinx/translateLocal/internal/runtime"
	"github.com/traylinx/translateLocal/internal/util"
)

const (
	userAgent  = "translateLocal/1.0 (remote-runtime)"
	warmupText = "Hello"
)

// Config configures the remote runtime.
type Config struct {
	// Endpoint is the inference API base URL; models live under {Endpoint}/models/{id}.
	Endpoint string
	// Token is sent as a bearer token when non-empty.
	Token string
	// Timeout bounds each HTTP call.
	Timeout time.Duration
	// BreakerFailures is the number of consecutive faults that opens a model's circuit.
	BreakerFailures int
	// BreakerCooldown is how long an open circuit rejects calls before probing again.
	BreakerCooldown time.Duration
}

// StatusError is a non-2xx answer from the inference endpoint.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("inference endpoint returned status %d", e.Code)
	}
	return fmt.Sprintf("inference endpoint returned status %d: %s", e.Code, e.Message)
}

// Runtime creates pipelines that call the inference endpoint.
type Runtime struct {
	cfg       Config
	client    *resty.Client
	estimator *TokenEstimator
}

// New creates a remote runtime.
func New(cfg Config) *Runtime {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.BreakerFailures <= 0 {
		cfg.BreakerFailures = 5
	}
	if cfg.BreakerCooldown <= 0 {
		cfg.BreakerCooldown = 30 * time.Second
	}
	cfg.Endpoint = strings.TrimRight(cfg.Endpoint, "/")

	client := resty.New().
		SetTimeout(cfg.Timeout).
		SetHeader("User-Agent", userAgent).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")
	if cfg.Token != "" {
		client.SetAuthToken(cfg.Token)
	}

	log.Debugf("remote runtime: endpoint=%s token=%s", cfg.Endpoint, util.HideAPIKey(cfg.Token))
	return &Runtime{cfg: cfg, client: client, estimator: NewTokenEstimator()}
}

// Name implements runtime.Runtime.
func (r *Runtime) Name() string { return "remote" }

// Load returns a pipeline for spec after a warm-up call proves the model answers.
func (r *Runtime) Load(ctx context.Context, spec runtime.ModelSpec) (runtime.Pipeline, error) {
	if r.cfg.Endpoint == "" {
		return nil, fmt.Errorf("remote runtime: endpoint is not configured")
	}
	if strings.TrimSpace(spec.ModelID) == "" {
		return nil, fmt.Errorf("remote runtime: model id is required")
	}

	p := r.newPipeline(spec)
	opts := runtime.Options{MaxInputTokens: 512, MaxNewTokens: 16}
	if _, err := p.Translate(ctx, []string{warmupText}, opts); err != nil {
		return nil, fmt.Errorf("warm-up for %s failed: %w", spec.ModelID, err)
	}
	log.Infof("remote pipeline ready for %s (%s)", spec.Language, spec.ModelID)
	return p, nil
}

func (r *Runtime) newPipeline(spec runtime.ModelSpec) *Pipeline {
	p := &Pipeline{
		rt:      r,
		modelID: spec.ModelID,
		url:     r.cfg.Endpoint + "/models/" + strings.Trim(spec.ModelID, "/"),
	}
	failures := uint32(r.cfg.BreakerFailures)
	p.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "remote:" + spec.ModelID,
		MaxRequests: 1,
		Timeout:     r.cfg.BreakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !isRuntimeFault(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warnf("circuit %s changed from %s to %s", name, from, to)
		},
	})
	return p
}

// isRuntimeFault reports whether err says something about the endpoint's health.
// Caller cancellations and client errors (4xx) do not.
func isRuntimeFault(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Code >= http.StatusInternalServerError || statusErr.Code == http.StatusTooManyRequests
	}
	return true
}

// Pipeline translates through one remote model.
type Pipeline struct {
	rt      *Runtime
	modelID string
	url     string
	breaker *gobreaker.CircuitBreaker
	closed  atomic.Bool
}

// Translate implements runtime.Pipeline with a single endpoint call per batch.
func (p *Pipeline) Translate(ctx context.Context, texts []string, opts runtime.Options) ([]string, error) {
	if p.closed.Load() {
		return nil, runtime.ErrClosed
	}
	if len(texts) == 0 {
		return []string{}, nil
	}

	for i, text := range texts {
		if n := p.rt.estimator.EstimateTokens(text); opts.MaxInputTokens > 0 && n > opts.MaxInputTokens {
			log.Debugf("input %d for %s is about %d tokens; the model truncates at %d", i, p.modelID, n, opts.MaxInputTokens)
		}
	}

	result, err := p.breaker.Execute(func() (interface{}, error) {
		return p.call(ctx, texts, opts)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("remote model %s unavailable: %w", p.modelID, err)
		}
		return nil, err
	}
	return result.([]string), nil
}

func (p *Pipeline) call(ctx context.Context, texts []string, opts runtime.Options) ([]string, error) {
	maxNew := opts.MaxNewTokens
	if maxNew <= 0 {
		maxNew = 512
	}
	body := map[string]interface{}{
		"inputs": texts,
		"parameters": map[string]interface{}{
			"max_new_tokens": maxNew,
			"do_sample":      false,
		},
		"options": map[string]interface{}{
			"wait_for_model": true,
		},
	}

	resp, err := p.rt.client.R().SetContext(ctx).SetBody(body).Post(p.url)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("inference request failed: %w", err)
	}

	payload := resp.Body()
	if resp.IsError() {
		message := ""
		if gjson.ValidBytes(payload) {
			message = gjson.GetBytes(payload, "error").String()
		}
		if message == "" {
			message = strings.TrimSpace(resp.String())
		}
		return nil, &StatusError{Code: resp.StatusCode(), Message: message}
	}

	return parseTranslations(payload, len(texts))
}

// parseTranslations extracts translation_text fields, accepting both
// [{...}, ...] and the nested [[{...}], ...] shape some servers return.
func parseTranslations(payload []byte, want int) ([]string, error) {
	if !gjson.ValidBytes(payload) {
		return nil, fmt.Errorf("inference endpoint returned invalid JSON")
	}
	doc := gjson.ParseBytes(payload)
	if !doc.IsArray() {
		if msg := doc.Get("error").String(); msg != "" {
			return nil, fmt.Errorf("inference endpoint error: %s", msg)
		}
		return nil, fmt.Errorf("inference endpoint returned %s, expected an array", doc.Type)
	}

	items := doc.Array()
	if len(items) != want {
		return nil, fmt.Errorf("inference endpoint returned %d translations for %d inputs", len(items), want)
	}

	out := make([]string, len(items))
	for i, item := range items {
		if item.IsArray() {
			item = item.Get("0")
		}
		text := item.Get("translation_text")
		if !text.Exists() {
			text = item.Get("generated_text")
		}
		if !text.Exists() {
			return nil, fmt.Errorf("inference result %d has no translation_text", i)
		}
		out[i] = strings.TrimSpace(text.String())
	}
	return out, nil
}

// Close marks the pipeline unusable. The HTTP client is shared and stays open.
func (p *Pipeline) Close() error {
	p.closed.Store(true)
	return nil
}
