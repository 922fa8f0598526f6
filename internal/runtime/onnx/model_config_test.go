// Copyright 2026 The translateLocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package onnx

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeModelConfig(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, ConfigFile)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadModelConfig(t *testing.T) {
	path := writeModelConfig(t, t.TempDir(), `{
		"d_model": 512, "vocab_size": 59514,
		"pad_token_id": 59513, "eos_token_id": 0, "decoder_start_token_id": 59513,
		"architectures": ["MarianMTModel"]
	}`)

	cfg, err := LoadModelConfig(path)
	require.NoError(t, err)
	assert.Equal(t, ModelConfig{DModel: 512, VocabSize: 59514, DecoderStartTokenID: 59513, EOSTokenID: 0, PadTokenID: 59513}, cfg)
}

func TestLoadModelConfig_StartDefaultsToPad(t *testing.T) {
	path := writeModelConfig(t, t.TempDir(), `{"d_model": 8, "vocab_size": 10, "pad_token_id": 9, "eos_token_id": 0}`)

	cfg, err := LoadModelConfig(path)
	require.NoError(t, err)
	assert.Equal(t, int64(9), cfg.DecoderStartTokenID)
}

func TestLoadModelConfig_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"invalid json", `{`},
		{"missing d_model", `{"vocab_size": 10, "pad_token_id": 9, "eos_token_id": 0}`},
		{"missing vocab", `{"d_model": 8, "pad_token_id": 9, "eos_token_id": 0}`},
		{"missing pad", `{"d_model": 8, "vocab_size": 10, "eos_token_id": 0}`},
		{"eos outside vocab", `{"d_model": 8, "vocab_size": 10, "pad_token_id": 9, "eos_token_id": 10}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadModelConfig(writeModelConfig(t, t.TempDir(), tt.content))
			assert.Error(t, err)
		})
	}

	_, err := LoadModelConfig(filepath.Join(t.TempDir(), "absent.json"))
	assert.Error(t, err)
}
