// Copyright 2026 The translateLocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package remote

import (
	"sync"

	log "github.com/sirupsen/logrus"
	"github.com/tiktoken-go/tokenizer"
)

// TokenEstimator approximates how many model tokens a text occupies.
// The remote model's own tokenizer is not available locally, so cl100k_base
// counts stand in for it; when the codec cannot be loaded a words * 1.3
// approximation is used instead.
type TokenEstimator struct {
	once  sync.Once
	codec tokenizer.Codec
	err   error
}

// NewTokenEstimator returns an estimator that loads its codec lazily.
func NewTokenEstimator() *TokenEstimator {
	return &TokenEstimator{}
}

// EstimateTokens returns the estimated token count of content.
func (te *TokenEstimator) EstimateTokens(content string) int {
	if content == "" {
		return 0
	}
	te.once.Do(func() {
		te.codec, te.err = tokenizer.Get(tokenizer.Cl100kBase)
		if te.err != nil {
			log.Debugf("token estimator: tiktoken unavailable, using word approximation: %v", te.err)
		}
	})
	if te.err == nil && te.codec != nil {
		if ids, _, err := te.codec.Encode(content); err == nil {
			return len(ids)
		}
	}
	return simpleEstimate(content)
}

// simpleEstimate uses a word count * 1.3 approximation.
func simpleEstimate(content string) int {
	wordCount := 0
	inWord := false
	for _, r := range content {
		isSpace := r == ' ' || r == '\t' || r == '\n' || r == '\r'
		if isSpace {
			inWord = false
		} else if !inWord {
			wordCount++
			inWord = true
		}
	}
	return int(float64(wordCount) * 1.3)
}
