// Copyright 2026 The translateLocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package onnx

import (
	"fmt"
	"os"
	"path"

	"github.com/tidwall/gjson"
)

// Artifact file names produced by exporting a Marian model to ONNX.
const (
	EncoderFile = "encoder_model.onnx"
	DecoderFile = "decoder_model.onnx"
	VocabFile   = "vocab.json"
	ConfigFile  = "config.json"
)

// ArtifactFiles lists the files a model repository must provide, as slash
// separated paths relative to its root. Exports keep the graphs in graphDir
// ("onnx" for optimum and transformers.js exports) and the tokenizer and
// model config at the root; "" or "." puts the graphs at the root too.
func ArtifactFiles(graphDir string) []string {
	return []string{
		path.Join(graphDir, EncoderFile),
		path.Join(graphDir, DecoderFile),
		VocabFile,
		ConfigFile,
	}
}

// ModelConfig holds the subset of config.json needed to drive generation.
type ModelConfig struct {
	DModel              int
	VocabSize           int
	DecoderStartTokenID int64
	EOSTokenID          int64
	PadTokenID          int64
}

// LoadModelConfig reads config.json from a model directory.
func LoadModelConfig(path string) (ModelConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return ModelConfig{}, fmt.Errorf("failed to read model config: %w", err)
	}
	if !gjson.ValidBytes(data) {
		return ModelConfig{}, fmt.Errorf("model config %s is not valid JSON", path)
	}
	return parseModelConfig(gjson.ParseBytes(data))
}

func parseModelConfig(doc gjson.Result) (ModelConfig, error) {
	cfg := ModelConfig{
		DModel:    int(doc.Get("d_model").Int()),
		VocabSize: int(doc.Get("vocab_size").Int()),
	}
	if cfg.DModel <= 0 {
		return ModelConfig{}, fmt.Errorf("model config: d_model must be positive")
	}
	if cfg.VocabSize <= 0 {
		return ModelConfig{}, fmt.Errorf("model config: vocab_size must be positive")
	}

	pad := doc.Get("pad_token_id")
	eos := doc.Get("eos_token_id")
	if !pad.Exists() || !eos.Exists() {
		return ModelConfig{}, fmt.Errorf("model config: pad_token_id and eos_token_id are required")
	}
	cfg.PadTokenID = pad.Int()
	cfg.EOSTokenID = eos.Int()

	// Marian starts decoding from the pad token unless told otherwise.
	cfg.DecoderStartTokenID = cfg.PadTokenID
	if start := doc.Get("decoder_start_token_id"); start.Exists() && start.Type == gjson.Number {
		cfg.DecoderStartTokenID = start.Int()
	}

	for name, id := range map[string]int64{"pad_token_id": cfg.PadTokenID, "eos_token_id": cfg.EOSTokenID, "decoder_start_token_id": cfg.DecoderStartTokenID} {
		if id < 0 || id >= int64(cfg.VocabSize) {
			return ModelConfig{}, fmt.Errorf("model config: %s %d outside vocabulary of %d", name, id, cfg.VocabSize)
		}
	}
	return cfg, nil
}
