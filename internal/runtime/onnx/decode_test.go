// Copyright 2026 The translateLocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package onnx

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testEOS   int64 = 0
	testPad   int64 = 3
	testVocab       = 5
)

// scriptedStep emits script[row][step] as the best token and gives the pad
// token an even higher score so the ban is exercised.
func scriptedStep(t *testing.T, script [][]int64, calls *int) stepFunc {
	return func(ctx context.Context, prefixes []int64, batch, length int) ([][]float32, error) {
		require.Len(t, prefixes, batch*length)
		*calls++
		out := make([][]float32, batch)
		for b := 0; b < batch; b++ {
			row := make([]float32, testVocab)
			target := testEOS
			if n := length - 1; n < len(script[b]) {
				target = script[b][n]
			}
			row[target] = 1
			row[testPad] = 5
			out[b] = row
		}
		return out, nil
	}
}

func TestGreedyDecode(t *testing.T) {
	calls := 0
	script := [][]int64{{1, 2, testEOS}, {2, testEOS}}

	out, err := greedyDecode(context.Background(), 2, decodeParams{start: testPad, eos: testEOS, pad: testPad, maxNew: 10}, scriptedStep(t, script, &calls))
	require.NoError(t, err)
	assert.Equal(t, [][]int64{{1, 2}, {2}}, out)
	assert.Equal(t, 3, calls, "decoding stops once every row emitted eos")
}

func TestGreedyDecode_MaxNewTokens(t *testing.T) {
	calls := 0
	script := [][]int64{{1, 2, 4, 1, testEOS}}

	out, err := greedyDecode(context.Background(), 1, decodeParams{start: testPad, eos: testEOS, pad: testPad, maxNew: 2}, scriptedStep(t, script, &calls))
	require.NoError(t, err)
	assert.Equal(t, [][]int64{{1, 2}}, out)
	assert.Equal(t, 2, calls)
}

func TestGreedyDecode_PrefixesGrow(t *testing.T) {
	var seen [][]int64
	step := func(ctx context.Context, prefixes []int64, batch, length int) ([][]float32, error) {
		seen = append(seen, append([]int64(nil), prefixes...))
		row := make([]float32, testVocab)
		if length == 1 {
			row[2] = 1
		} else {
			row[testEOS] = 1
		}
		return [][]float32{row}, nil
	}

	_, err := greedyDecode(context.Background(), 1, decodeParams{start: testPad, eos: testEOS, pad: testPad, maxNew: 5}, step)
	require.NoError(t, err)
	assert.Equal(t, [][]int64{{testPad}, {testPad, 2}}, seen)
}

func TestGreedyDecode_Errors(t *testing.T) {
	params := decodeParams{start: testPad, eos: testEOS, pad: testPad, maxNew: 5}

	t.Run("cancelled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		calls := 0
		_, err := greedyDecode(ctx, 1, params, scriptedStep(t, [][]int64{{1}}, &calls))
		assert.ErrorIs(t, err, context.Canceled)
		assert.Zero(t, calls)
	})

	t.Run("step failure", func(t *testing.T) {
		boom := errors.New("decoder exploded")
		_, err := greedyDecode(context.Background(), 1, params, func(context.Context, []int64, int, int) ([][]float32, error) {
			return nil, boom
		})
		assert.ErrorIs(t, err, boom)
	})

	t.Run("row count mismatch", func(t *testing.T) {
		_, err := greedyDecode(context.Background(), 2, params, func(context.Context, []int64, int, int) ([][]float32, error) {
			return [][]float32{{1}}, nil
		})
		assert.Error(t, err)
	})
}

func TestGreedyDecode_EmptyBatch(t *testing.T) {
	out, err := greedyDecode(context.Background(), 0, decodeParams{}, nil)
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestArgmaxExcluding(t *testing.T) {
	assert.Equal(t, int64(2), argmaxExcluding([]float32{0.1, 0.2, 0.9, 5}, 3, 0))
	assert.Equal(t, int64(7), argmaxExcluding(nil, 3, 7))
	assert.Equal(t, int64(0), argmaxExcluding([]float32{-1, -2}, 1, 9))
}
