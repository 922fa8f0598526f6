// Copyright 2026 The translateLocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package remote

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/traylinx/translateLocal/internal/runtime"
)

type inferenceRequest struct {
	Inputs     []string `json:"inputs"`
	Parameters struct {
		MaxNewTokens int  `json:"max_new_tokens"`
		DoSample     bool `json:"do_sample"`
	} `json:"parameters"`
	Options struct {
		WaitForModel bool `json:"wait_for_model"`
	} `json:"options"`
}

// upperCaseServer answers every input with its upper-case form.
func upperCaseServer(t *testing.T, calls *int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(calls, 1)
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		var req inferenceRequest
		require.NoError(t, json.Unmarshal(body, &req))

		out := make([]map[string]string, len(req.Inputs))
		for i, in := range req.Inputs {
			out[i] = map[string]string{"translation_text": strings.ToUpper(in)}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(out)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestLoadPerformsWarmup(t *testing.T) {
	var calls int32
	srv := upperCaseServer(t, &calls)

	rt := New(Config{Endpoint: srv.URL})
	assert.Equal(t, "remote", rt.Name())

	p, err := rt.Load(context.Background(), runtime.ModelSpec{Language: "fr", ModelID: "Helsinki-NLP/opus-mt-en-fr"})
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestLoadRejectsMissingModelID(t *testing.T) {
	rt := New(Config{Endpoint: "http://127.0.0.1:1"})
	_, err := rt.Load(context.Background(), runtime.ModelSpec{Language: "fr"})
	require.Error(t, err)
}

func TestTranslateSendsExpectedRequest(t *testing.T) {
	var got inferenceRequest
	var gotPath, gotAuth, gotAgent string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		gotAgent = r.Header.Get("User-Agent")
		_ = json.NewDecoder(r.Body).Decode(&got)
		_, _ = w.Write([]byte(`[{"translation_text":" Bonjour "},{"translation_text":"Merci"}]`))
	}))
	defer srv.Close()

	rt := New(Config{Endpoint: srv.URL + "/", Token: "hf_secret"})
	p := rt.newPipeline(runtime.ModelSpec{Language: "fr", ModelID: "Helsinki-NLP/opus-mt-en-fr"})

	out, err := p.Translate(context.Background(), []string{"Hello", "Thanks"}, runtime.DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, []string{"Bonjour", "Merci"}, out)

	assert.Equal(t, "/models/Helsinki-NLP/opus-mt-en-fr", gotPath)
	assert.Equal(t, "Bearer hf_secret", gotAuth)
	assert.Equal(t, userAgent, gotAgent)
	assert.Equal(t, []string{"Hello", "Thanks"}, got.Inputs)
	assert.Equal(t, 512, got.Parameters.MaxNewTokens)
	assert.False(t, got.Parameters.DoSample)
	assert.True(t, got.Options.WaitForModel)
}

func TestTranslateEmptyInputSkipsCall(t *testing.T) {
	var calls int32
	srv := upperCaseServer(t, &calls)
	p := New(Config{Endpoint: srv.URL}).newPipeline(runtime.ModelSpec{Language: "fr", ModelID: "m"})

	out, err := p.Translate(context.Background(), nil, runtime.DefaultOptions())
	require.NoError(t, err)
	assert.Empty(t, out)
	assert.Zero(t, atomic.LoadInt32(&calls))
}

func TestTranslateStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error":"Model is currently loading"}`))
	}))
	defer srv.Close()

	p := New(Config{Endpoint: srv.URL}).newPipeline(runtime.ModelSpec{Language: "fr", ModelID: "m"})
	_, err := p.Translate(context.Background(), []string{"Hello"}, runtime.DefaultOptions())

	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusServiceUnavailable, statusErr.Code)
	assert.Equal(t, "Model is currently loading", statusErr.Message)
}

func TestBreakerOpensAfterConsecutiveFaults(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	p := New(Config{Endpoint: srv.URL, BreakerFailures: 2, BreakerCooldown: time.Hour}).
		newPipeline(runtime.ModelSpec{Language: "fr", ModelID: "m"})

	for i := 0; i < 2; i++ {
		_, err := p.Translate(context.Background(), []string{"Hello"}, runtime.DefaultOptions())
		require.Error(t, err)
	}
	_, err := p.Translate(context.Background(), []string{"Hello"}, runtime.DefaultOptions())
	require.Error(t, err)
	assert.True(t, errors.Is(err, gobreaker.ErrOpenState))
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestClientErrorsDoNotTripBreaker(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"bad input"}`))
	}))
	defer srv.Close()

	p := New(Config{Endpoint: srv.URL, BreakerFailures: 1, BreakerCooldown: time.Hour}).
		newPipeline(runtime.ModelSpec{Language: "fr", ModelID: "m"})

	for i := 0; i < 3; i++ {
		_, err := p.Translate(context.Background(), []string{"Hello"}, runtime.DefaultOptions())
		require.Error(t, err)
		assert.False(t, errors.Is(err, gobreaker.ErrOpenState))
	}
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestTranslateCountMismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"translation_text":"only one"}]`))
	}))
	defer srv.Close()

	p := New(Config{Endpoint: srv.URL}).newPipeline(runtime.ModelSpec{Language: "fr", ModelID: "m"})
	_, err := p.Translate(context.Background(), []string{"a", "b"}, runtime.DefaultOptions())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 translations for 2 inputs")
}

func TestTranslateAfterClose(t *testing.T) {
	p := New(Config{Endpoint: "http://127.0.0.1:1"}).newPipeline(runtime.ModelSpec{Language: "fr", ModelID: "m"})
	require.NoError(t, p.Close())
	_, err := p.Translate(context.Background(), []string{"Hello"}, runtime.DefaultOptions())
	assert.ErrorIs(t, err, runtime.ErrClosed)
}

func TestParseTranslations(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    []string
		wantErr bool
	}{
		{name: "flat", payload: `[{"translation_text":"a"},{"translation_text":"b"}]`, want: []string{"a", "b"}},
		{name: "nested", payload: `[[{"translation_text":"a"}],[{"translation_text":"b"}]]`, want: []string{"a", "b"}},
		{name: "generated text", payload: `[{"generated_text":"a"},{"generated_text":"b"}]`, want: []string{"a", "b"}},
		{name: "error object", payload: `{"error":"boom"}`, wantErr: true},
		{name: "invalid json", payload: `[{`, wantErr: true},
		{name: "missing field", payload: `[{"x":"a"},{"x":"b"}]`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseTranslations([]byte(tt.payload), 2)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTokenEstimator(t *testing.T) {
	te := NewTokenEstimator()
	assert.Zero(t, te.EstimateTokens(""))
	short := te.EstimateTokens("Hello")
	long := te.EstimateTokens(strings.Repeat("Hello, how are you today? ", 50))
	assert.Greater(t, short, 0)
	assert.Greater(t, long, short)
}

func TestSimpleEstimate(t *testing.T) {
	assert.Equal(t, 0, simpleEstimate("   "))
	assert.Equal(t, 3, simpleEstimate("one two\tthree"))
	assert.Equal(t, 13, simpleEstimate(strings.Repeat("w ", 10)))
}
