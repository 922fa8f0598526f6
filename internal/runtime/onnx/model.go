// Copyright 2026 The translateLocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package onnx

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	log "github.com/sirupsen/logrus"
	ort "github.com/yalue/onnxruntime_go"
)

var (
	envOnce sync.Once
	envErr  error
)

// initEnvironment initialises the process-wide ONNX Runtime environment once.
// Every model shares it, so the shared library path of the first call wins.
func initEnvironment(sharedLibPath string) error {
	envOnce.Do(func() {
		if ort.IsInitialized() {
			return
		}
		if sharedLibPath != "" {
			ort.SetSharedLibraryPath(sharedLibPath)
		}
		if err := ort.InitializeEnvironment(); err != nil {
			envErr = fmt.Errorf("failed to initialize ONNX runtime: %w", err)
		}
	})
	return envErr
}

// Model runs a Marian encoder-decoder pair exported to ONNX.
type Model struct {
	// encoder maps input_ids and attention_mask to last_hidden_state
	encoder *ort.DynamicAdvancedSession

	// decoder maps the decoder prefix plus encoder state to logits
	decoder *ort.DynamicAdvancedSession

	cfg  ModelConfig
	name string

	// closed is set once by Close; mu guards it against in-flight Generate calls
	closed bool
	mu     sync.RWMutex
}

// checkArtifacts verifies the ONNX graphs exist before touching the runtime.
func checkArtifacts(dir string) error {
	for _, name := range []string{EncoderFile, DecoderFile} {
		path := filepath.Join(dir, name)
		info, err := os.Stat(path)
		if err != nil {
			return fmt.Errorf("model file not found: %s", path)
		}
		if info.Size() == 0 {
			return fmt.Errorf("model file is empty: %s", path)
		}
	}
	return nil
}

// NewModel creates encoder and decoder sessions from a model directory.
// The ONNX Runtime environment must already be initialised.
func NewModel(dir string, cfg ModelConfig) (*Model, error) {
	if err := checkArtifacts(dir); err != nil {
		return nil, err
	}

	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("failed to create session options: %w", err)
	}
	defer options.Destroy()

	encoder, err := ort.NewDynamicAdvancedSession(
		filepath.Join(dir, EncoderFile),
		[]string{"input_ids", "attention_mask"},
		[]string{"last_hidden_state"},
		options,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load encoder: %w", err)
	}

	decoder, err := ort.NewDynamicAdvancedSession(
		filepath.Join(dir, DecoderFile),
		[]string{"input_ids", "encoder_attention_mask", "encoder_hidden_states"},
		[]string{"logits"},
		options,
	)
	if err != nil {
		_ = encoder.Destroy()
		return nil, fmt.Errorf("failed to load decoder: %w", err)
	}

	log.Debugf("onnx model loaded from %s (d_model=%d, vocab=%d)", dir, cfg.DModel, cfg.VocabSize)
	return &Model{
		encoder: encoder,
		decoder: decoder,
		cfg:     cfg,
		name:    filepath.Base(dir),
	}, nil
}

// Generate greedily decodes every row of batch.
func (m *Model) Generate(ctx context.Context, batch *TokenizedBatch, maxNewTokens int) ([][]int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, fmt.Errorf("model %s is closed", m.name)
	}
	if batch == nil || batch.BatchSize == 0 {
		return [][]int64{}, nil
	}

	shape := ort.NewShape(int64(batch.BatchSize), int64(batch.SeqLen))
	inputIDs, err := ort.NewTensor(shape, batch.InputIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to create input_ids tensor: %w", err)
	}
	defer inputIDs.Destroy()

	attentionMask, err := ort.NewTensor(shape, batch.AttentionMask)
	if err != nil {
		return nil, fmt.Errorf("failed to create attention_mask tensor: %w", err)
	}
	defer attentionMask.Destroy()

	hidden, err := ort.NewEmptyTensor[float32](ort.NewShape(int64(batch.BatchSize), int64(batch.SeqLen), int64(m.cfg.DModel)))
	if err != nil {
		return nil, fmt.Errorf("failed to create encoder output tensor: %w", err)
	}
	defer hidden.Destroy()

	if err := m.encoder.Run(
		[]ort.ArbitraryTensor{inputIDs, attentionMask},
		[]ort.ArbitraryTensor{hidden},
	); err != nil {
		return nil, fmt.Errorf("encoder inference failed: %w", err)
	}

	step := func(ctx context.Context, prefixes []int64, rows, length int) ([][]float32, error) {
		return m.decoderStep(prefixes, rows, length, attentionMask, hidden)
	}

	return greedyDecode(ctx, batch.BatchSize, decodeParams{
		start:  m.cfg.DecoderStartTokenID,
		eos:    m.cfg.EOSTokenID,
		pad:    m.cfg.PadTokenID,
		maxNew: maxNewTokens,
	}, step)
}

// decoderStep runs the decoder once and copies out the last-position logits per row.
func (m *Model) decoderStep(prefixes []int64, rows, length int, mask *ort.Tensor[int64], hidden *ort.Tensor[float32]) ([][]float32, error) {
	decoderIDs, err := ort.NewTensor(ort.NewShape(int64(rows), int64(length)), prefixes)
	if err != nil {
		return nil, fmt.Errorf("failed to create decoder input tensor: %w", err)
	}
	defer decoderIDs.Destroy()

	vocab := m.cfg.VocabSize
	logits, err := ort.NewEmptyTensor[float32](ort.NewShape(int64(rows), int64(length), int64(vocab)))
	if err != nil {
		return nil, fmt.Errorf("failed to create logits tensor: %w", err)
	}
	defer logits.Destroy()

	if err := m.decoder.Run(
		[]ort.ArbitraryTensor{decoderIDs, mask, hidden},
		[]ort.ArbitraryTensor{logits},
	); err != nil {
		return nil, fmt.Errorf("decoder inference failed: %w", err)
	}

	data := logits.GetData()
	out := make([][]float32, rows)
	for b := 0; b < rows; b++ {
		offset := (b*length + length - 1) * vocab
		row := make([]float32, vocab)
		copy(row, data[offset:offset+vocab])
		out[b] = row
	}
	return out, nil
}

// Close releases both sessions. It waits for in-flight Generate calls.
func (m *Model) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}
	m.closed = true

	var firstErr error
	if m.encoder != nil {
		if err := m.encoder.Destroy(); err != nil {
			firstErr = err
		}
		m.encoder = nil
	}
	if m.decoder != nil {
		if err := m.decoder.Destroy(); err != nil && firstErr == nil {
			firstErr = err
		}
		m.decoder = nil
	}
	return firstErr
}
