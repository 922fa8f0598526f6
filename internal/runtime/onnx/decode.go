// Copyright 2026 The translateLocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package onnx

import (
	"context"
	"fmt"
)

// stepFunc runs the decoder over the current prefixes (batch rows of length
// tokens each, row-major) and returns the logits of the last position per row.
type stepFunc func(ctx context.Context, prefixes []int64, batch, length int) ([][]float32, error)

type decodeParams struct {
	start  int64
	eos    int64
	pad    int64
	maxNew int
}

// greedyDecode extends every row with its highest scoring token until all rows
// emitted EOS or maxNew tokens were produced. The pad token is never chosen.
// The context is checked between steps. Returned rows exclude the start token,
// the EOS token and any trailing padding.
func greedyDecode(ctx context.Context, batch int, p decodeParams, step stepFunc) ([][]int64, error) {
	if batch <= 0 {
		return [][]int64{}, nil
	}
	if p.maxNew <= 0 {
		p.maxNew = 512
	}

	seqs := make([][]int64, batch)
	for i := range seqs {
		seqs[i] = make([]int64, 1, p.maxNew+1)
		seqs[i][0] = p.start
	}
	finished := make([]bool, batch)
	remaining := batch

	for n := 0; n < p.maxNew && remaining > 0; n++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		length := len(seqs[0])
		prefixes := make([]int64, 0, batch*length)
		for _, s := range seqs {
			prefixes = append(prefixes, s...)
		}

		logits, err := step(ctx, prefixes, batch, length)
		if err != nil {
			return nil, err
		}
		if len(logits) != batch {
			return nil, fmt.Errorf("decoder returned %d rows for a batch of %d", len(logits), batch)
		}

		for b := 0; b < batch; b++ {
			next := p.pad
			if !finished[b] {
				next = argmaxExcluding(logits[b], p.pad, p.eos)
				if next == p.eos {
					finished[b] = true
					remaining--
				}
			}
			seqs[b] = append(seqs[b], next)
		}
	}

	out := make([][]int64, batch)
	for b, s := range seqs {
		row := make([]int64, 0, len(s)-1)
		for _, id := range s[1:] {
			if id == p.eos {
				break
			}
			row = append(row, id)
		}
		out[b] = row
	}
	return out, nil
}

// argmaxExcluding returns the index of the largest logit, skipping banned.
// An empty row yields fallback.
func argmaxExcluding(logits []float32, banned, fallback int64) int64 {
	best := fallback
	var bestScore float32
	found := false
	for i, v := range logits {
		if int64(i) == banned {
			continue
		}
		if !found || v > bestScore {
			best = int64(i)
			bestScore = v
			found = true
		}
	}
	return best
}
