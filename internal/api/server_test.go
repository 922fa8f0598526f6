// Copyright 2026 The translateLocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	gin "github.com/gin-gonic/gin"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/traylinx/translateLocal/internal/api/handlers/translate"
	"github.com/traylinx/translateLocal/internal/config"
	"github.com/traylinx/translateLocal/internal/registry"
	"github.com/traylinx/translateLocal/internal/runtime"
	"github.com/traylinx/translateLocal/internal/translation"
	"github.com/traylinx/translateLocal/internal/workerpool"
	"golang.org/x/time/rate"
)

// tagPipeline prefixes every input with its language, e.g. "[fr] Hello".
type tagPipeline struct {
	lang  string
	calls *int32
	fail  bool
}

func (p *tagPipeline) Translate(ctx context.Context, texts []string, opts runtime.Options) ([]string, error) {
	atomic.AddInt32(p.calls, 1)
	if p.fail {
		return nil, errors.New("session exploded with secret detail")
	}
	out := make([]string, len(texts))
	for i, t := range texts {
		out[i] = "[" + p.lang + "] " + t
	}
	return out, nil
}

func (p *tagPipeline) Close() error { return nil }

type tagRuntime struct {
	calls int32
	fail  bool
}

func (r *tagRuntime) Name() string { return "tag" }

func (r *tagRuntime) Load(ctx context.Context, spec runtime.ModelSpec) (runtime.Pipeline, error) {
	return &tagPipeline{lang: spec.Language, calls: &r.calls, fail: r.fail}, nil
}

type testEnv struct {
	server   *Server
	registry *registry.Registry
	runtime  *tagRuntime
}

func newTestEnv(t *testing.T, ready bool, mutate func(*config.Config)) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := config.NewDefault()
	cfg.RequestLog = false
	cfg.Security.RequestsPerMinute = 0
	if mutate != nil {
		mutate(cfg)
	}

	rt := &tagRuntime{}
	reg := registry.New(rt)
	entries := make([]registry.Entry, 0, len(cfg.Models))
	for _, m := range cfg.Models {
		entries = append(entries, registry.Entry{Language: m.Language, ModelID: m.ModelID})
	}
	require.NoError(t, reg.Configure(entries))
	if ready {
		require.NoError(t, reg.LoadAll(context.Background()))
	}

	pool := workerpool.New(2, 8)
	t.Cleanup(func() { _ = pool.Close(context.Background()) })
	exec := translation.NewExecutor(reg, pool, translation.Options{MaxBatchSize: cfg.Inference.MaxBatchSize})

	return &testEnv{
		server:   NewServer(cfg, exec, reg, WithVersion("1.0.0")),
		registry: reg,
		runtime:  rt,
	}
}

func (e *testEnv) do(method, target string, body interface{}) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		raw, _ := json.Marshal(b)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(w, req)
	return w
}

func decodeDetail(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body translate.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body.Detail
}

func TestRootBanner(t *testing.T) {
	env := newTestEnv(t, false, nil)
	w := env.do(http.MethodGet, "/", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "1.0.0", body["version"])
	assert.Equal(t, []interface{}{"Helsinki-NLP/opus-mt-en-fr", "Helsinki-NLP/opus-mt-en-he"}, body["models"])
}

func TestHealthWhileLoading(t *testing.T) {
	env := newTestEnv(t, false, nil)
	w := env.do(http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var health translate.HealthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &health))
	assert.Equal(t, "healthy", health.Status)
	assert.False(t, health.ModelsLoaded)
	assert.Len(t, health.Models, 2)

	assert.Equal(t, http.StatusServiceUnavailable, env.do(http.MethodGet, "/ready", nil).Code)
}

func TestHealthWhenReady(t *testing.T) {
	env := newTestEnv(t, true, nil)
	var health translate.HealthResponse
	require.NoError(t, json.Unmarshal(env.do(http.MethodGet, "/health", nil).Body.Bytes(), &health))
	assert.True(t, health.ModelsLoaded)
	assert.Equal(t, http.StatusOK, env.do(http.MethodGet, "/ready", nil).Code)
}

func TestLanguages(t *testing.T) {
	env := newTestEnv(t, false, nil)
	w := env.do(http.MethodGet, "/languages", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var langs translate.LanguagesResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &langs))
	assert.Equal(t, []string{"en"}, langs.SupportedLanguages.Source)
	assert.Equal(t, []string{"fr", "he"}, langs.SupportedLanguages.Target)
	assert.Equal(t, "French", langs.Names["fr"])
	assert.Equal(t, "Hebrew", langs.Names["he"])
}

func TestTranslateScenarios(t *testing.T) {
	env := newTestEnv(t, true, nil)
	const text = "Hello, how are you today?"

	tests := []struct {
		name       string
		method     string
		target     string
		body       interface{}
		wantStatus int
		wantText   string
	}{
		{name: "post french", method: http.MethodPost, target: "/translate", body: translate.TranslationRequest{Text: text, SourceLang: "en", TargetLang: "fr"}, wantStatus: http.StatusOK, wantText: "[fr] " + text},
		{name: "post hebrew", method: http.MethodPost, target: "/translate", body: translate.TranslationRequest{Text: text, TargetLang: "he"}, wantStatus: http.StatusOK, wantText: "[he] " + text},
		{name: "post defaults to french", method: http.MethodPost, target: "/translate", body: map[string]string{"text": text}, wantStatus: http.StatusOK, wantText: "[fr] " + text},
		{name: "post german", method: http.MethodPost, target: "/translate", body: translate.TranslationRequest{Text: text, TargetLang: "de"}, wantStatus: http.StatusBadRequest},
		{name: "post german source", method: http.MethodPost, target: "/translate", body: translate.TranslationRequest{Text: text, SourceLang: "de", TargetLang: "fr"}, wantStatus: http.StatusBadRequest},
		{name: "post empty text", method: http.MethodPost, target: "/translate", body: translate.TranslationRequest{Text: ""}, wantStatus: http.StatusBadRequest},
		{name: "post malformed json", method: http.MethodPost, target: "/translate", body: `{"text":`, wantStatus: http.StatusBadRequest},
		{name: "get french", method: http.MethodGet, target: "/translate?text=" + url.QueryEscape(text) + "&target_lang=fr", wantStatus: http.StatusOK, wantText: "[fr] " + text},
		{name: "get without text", method: http.MethodGet, target: "/translate?target_lang=fr", wantStatus: http.StatusBadRequest},
		{name: "get region tag", method: http.MethodGet, target: "/translate?text=hi&source_lang=en-US&target_lang=fr-FR", wantStatus: http.StatusOK, wantText: "[fr] hi"},
		{name: "quick", method: http.MethodGet, target: "/translate/quick", wantStatus: http.StatusOK, wantText: "[fr] " + text},
		{name: "quick with target", method: http.MethodGet, target: "/translate/quick?target_lang=he", wantStatus: http.StatusOK, wantText: "[he] " + text},
		{name: "quick unsupported", method: http.MethodGet, target: "/translate/quick?target_lang=de", wantStatus: http.StatusBadRequest},
		{name: "quick hebrew", method: http.MethodGet, target: "/translate/quick/hebrew", wantStatus: http.StatusOK, wantText: "[he] " + text},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(tt.method, tt.target, tt.body)
			require.Equal(t, tt.wantStatus, w.Code, w.Body.String())
			if tt.wantStatus != http.StatusOK {
				assert.NotEmpty(t, decodeDetail(t, w))
				return
			}
			var result map[string]string
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
			assert.Equal(t, tt.wantText, result["translated_text"])
			assert.NotContains(t, result, "confidence")
		})
	}
}

func TestTranslateEchoesOriginalText(t *testing.T) {
	env := newTestEnv(t, true, nil)
	w := env.do(http.MethodPost, "/translate", translate.TranslationRequest{Text: "Good morning", SourceLang: "EN", TargetLang: "FR"})
	require.Equal(t, http.StatusOK, w.Code)

	var result translate.TranslationResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.Equal(t, "Good morning", result.OriginalText)
	assert.Equal(t, "en", result.SourceLang)
	assert.Equal(t, "fr", result.TargetLang)
	assert.Nil(t, result.Confidence)
}

func TestTranslateBeforeModelsLoaded(t *testing.T) {
	env := newTestEnv(t, false, nil)

	w := env.do(http.MethodPost, "/translate", translate.TranslationRequest{Text: "Hello", TargetLang: "fr"})
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "Translation service not ready", decodeDetail(t, w))

	assert.Equal(t, http.StatusServiceUnavailable, env.do(http.MethodGet, "/translate?text=Hello", nil).Code)
	assert.Equal(t, http.StatusServiceUnavailable, env.do(http.MethodGet, "/translate/quick", nil).Code)
	assert.Equal(t, http.StatusServiceUnavailable, env.do(http.MethodGet, "/translate/quick/hebrew", nil).Code)
	assert.Equal(t, http.StatusServiceUnavailable,
		env.do(http.MethodPost, "/translate/batch", translate.BatchTranslationRequest{Texts: []string{"a"}}).Code)

	// Unsupported languages are a client error whatever the readiness.
	assert.Equal(t, http.StatusBadRequest,
		env.do(http.MethodPost, "/translate", translate.TranslationRequest{Text: "Hello", TargetLang: "de"}).Code)
	assert.Zero(t, atomic.LoadInt32(&env.runtime.calls))
}

func TestTranslateInternalErrorIsGeneric(t *testing.T) {
	gin.SetMode(gin.TestMode)
	rt := &tagRuntime{fail: true}
	reg := registry.New(rt)
	require.NoError(t, reg.Configure([]registry.Entry{{Language: "fr", ModelID: "m/fr"}}))
	require.NoError(t, reg.LoadAll(context.Background()))
	pool := workerpool.New(1, 1)
	defer pool.Close(context.Background())

	cfg := config.NewDefault()
	cfg.RequestLog = false
	s := NewServer(cfg, translation.NewExecutor(reg, pool, translation.Options{}), reg)

	req := httptest.NewRequest(http.MethodPost, "/translate", strings.NewReader(`{"text":"Hello","target_lang":"fr"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)

	require.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, `{"detail":"translation failed"}`, w.Body.String())
	assert.NotContains(t, w.Body.String(), "secret detail")
}

func TestTranslateBatch(t *testing.T) {
	env := newTestEnv(t, true, nil)
	texts := []string{"The weather is beautiful today", "I love this application", "Thank you for your help"}
	w := env.do(http.MethodPost, "/translate/batch", translate.BatchTranslationRequest{Texts: texts, SourceLang: "en", TargetLang: "he"})
	require.Equal(t, http.StatusOK, w.Code)

	var resp translate.BatchTranslationResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Translations, len(texts))
	for i, tr := range resp.Translations {
		assert.Equal(t, texts[i], tr.OriginalText)
		assert.Equal(t, "[he] "+texts[i], tr.TranslatedText)
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&env.runtime.calls))
}

func TestTranslateBatchRejections(t *testing.T) {
	env := newTestEnv(t, true, func(cfg *config.Config) { cfg.Inference.MaxBatchSize = 2 })

	assert.Equal(t, http.StatusBadRequest, env.do(http.MethodPost, "/translate/batch", translate.BatchTranslationRequest{}).Code)
	assert.Equal(t, http.StatusBadRequest,
		env.do(http.MethodPost, "/translate/batch", translate.BatchTranslationRequest{Texts: []string{"a", "b", "c"}}).Code)
	assert.Equal(t, http.StatusBadRequest,
		env.do(http.MethodPost, "/translate/batch", translate.BatchTranslationRequest{Texts: []string{"a", " "}}).Code)
	assert.Equal(t, http.StatusBadRequest,
		env.do(http.MethodPost, "/translate/batch", translate.BatchTranslationRequest{Texts: []string{"a"}, TargetLang: "de"}).Code)
	assert.Equal(t, http.StatusBadRequest, env.do(http.MethodPost, "/translate/batch", `[1,2]`).Code)
}

func TestBatchPreservesOrderProperty(t *testing.T) {
	env := newTestEnv(t, true, nil)

	properties := gopter.NewProperties(nil)
	properties.Property("translations[i].original_text == texts[i]", prop.ForAll(
		func(texts []string) bool {
			for i := range texts {
				texts[i] = "t" + texts[i]
			}
			w := env.do(http.MethodPost, "/translate/batch", translate.BatchTranslationRequest{Texts: texts, TargetLang: "fr"})
			if w.Code != http.StatusOK {
				return false
			}
			var resp translate.BatchTranslationResponse
			if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil || len(resp.Translations) != len(texts) {
				return false
			}
			for i, tr := range resp.Translations {
				if tr.OriginalText != texts[i] || tr.TranslatedText != "[fr] "+texts[i] {
					return false
				}
			}
			return true
		},
		gen.SliceOfN(8, gen.AlphaString()).SuchThat(func(v []string) bool { return len(v) > 0 }),
	))
	properties.TestingRun(t)
}

func TestSecurityHeadersAndRequestID(t *testing.T) {
	env := newTestEnv(t, false, nil)
	w := env.do(http.MethodGet, "/health", nil)
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
	assert.Equal(t, "1; mode=block", w.Header().Get("X-XSS-Protection"))
	assert.Equal(t, "max-age=31536000; includeSubDomains", w.Header().Get("Strict-Transport-Security"))
	assert.Equal(t, "default-src 'self'", w.Header().Get("Content-Security-Policy"))
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

	noHeaders := newTestEnv(t, false, func(cfg *config.Config) { cfg.Security.Headers = false })
	assert.Empty(t, noHeaders.do(http.MethodGet, "/health", nil).Header().Get("X-Frame-Options"))
}

func TestCORS(t *testing.T) {
	env := newTestEnv(t, false, func(cfg *config.Config) {
		cfg.Security.CORSAllowOrigins = []string{"http://localhost:3000"}
	})

	req := httptest.NewRequest(http.MethodOptions, "/translate", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	w := httptest.NewRecorder()
	env.server.Handler().ServeHTTP(w, req)
	assert.Equal(t, "http://localhost:3000", w.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "http://evil.example")
	w = httptest.NewRecorder()
	env.server.Handler().ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestBodyLimit(t *testing.T) {
	env := newTestEnv(t, true, func(cfg *config.Config) { cfg.Security.MaxBodyBytes = 64 })
	big := translate.TranslationRequest{Text: strings.Repeat("a", 200), TargetLang: "fr"}
	w := env.do(http.MethodPost, "/translate", big)
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}

func TestRateLimit(t *testing.T) {
	env := newTestEnv(t, false, func(cfg *config.Config) {
		cfg.Security.RequestsPerMinute = 1
		cfg.Security.Burst = 2
	})

	assert.Equal(t, http.StatusOK, env.do(http.MethodGet, "/languages", nil).Code)
	assert.Equal(t, http.StatusOK, env.do(http.MethodGet, "/languages", nil).Code)
	w := env.do(http.MethodGet, "/languages", nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "60", w.Header().Get("Retry-After"))

	// Health checks are never throttled.
	assert.Equal(t, http.StatusOK, env.do(http.MethodGet, "/health", nil).Code)
}

func TestRateLimitRetryAfterAboveOnePerSecond(t *testing.T) {
	env := newTestEnv(t, false, func(cfg *config.Config) {
		cfg.Security.RequestsPerMinute = 600
		cfg.Security.Burst = 1
	})

	assert.Equal(t, http.StatusOK, env.do(http.MethodGet, "/languages", nil).Code)
	w := env.do(http.MethodGet, "/languages", nil)
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "1", w.Header().Get("Retry-After"))
}

func TestRetryAfterSeconds(t *testing.T) {
	now := time.Now()
	tests := []struct {
		perMinute float64
		want      string
	}{
		{perMinute: 6, want: "10"},
		{perMinute: 45, want: "2"},
		{perMinute: 120, want: "1"},
		{perMinute: 6000, want: "1"},
	}
	for _, tt := range tests {
		limiter := rate.NewLimiter(rate.Limit(tt.perMinute/60), 1)
		require.True(t, limiter.AllowN(now, 1))
		assert.Equal(t, tt.want, retryAfterSeconds(limiter, now), "rate %v/min", tt.perMinute)
		// Measuring the delay must not consume a token.
		assert.Equal(t, tt.want, retryAfterSeconds(limiter, now))
	}
}

func TestGzipCompression(t *testing.T) {
	env := newTestEnv(t, true, func(cfg *config.Config) { cfg.Security.Compress = true })
	texts := make([]string, 30)
	for i := range texts {
		texts[i] = strings.Repeat("compressible text ", 10)
	}
	raw, err := json.Marshal(translate.BatchTranslationRequest{Texts: texts, TargetLang: "fr"})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/translate/batch", bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept-Encoding", "gzip")
	w := httptest.NewRecorder()
	env.server.Handler().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "gzip", w.Header().Get("Content-Encoding"))
}

func TestNoRoute(t *testing.T) {
	env := newTestEnv(t, false, nil)
	w := env.do(http.MethodGet, "/nope", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "Not Found", decodeDetail(t, w))
}

func TestEngineConfigurator(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cfg := config.NewDefault()
	reg := registry.New(&tagRuntime{})
	require.NoError(t, reg.Configure([]registry.Entry{{Language: "fr", ModelID: "m/fr"}}))
	pool := workerpool.New(1, 1)
	defer pool.Close(context.Background())

	s := NewServer(cfg, translation.NewExecutor(reg, pool, translation.Options{}), reg,
		WithEngineConfigurator(func(e *gin.Engine) {
			e.GET("/extra", func(c *gin.Context) { c.String(http.StatusOK, "extra") })
		}))
	assert.Equal(t, ":8002", s.Addr())

	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/extra", nil))
	assert.Equal(t, "extra", w.Body.String())
}
