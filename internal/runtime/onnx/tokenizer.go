// Copyright 2026 The translateLocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package onnx

import (
	"fmt"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/tidwall/gjson"
	"golang.org/x/text/unicode/norm"
)

const (
	// wordMarker prefixes pieces that start a new word.
	wordMarker = "▁"

	eosToken = "</s>"
	unkToken = "<unk>"
	padToken = "<pad>"
)

// TokenizedBatch is a right-padded batch ready for the encoder.
type TokenizedBatch struct {
	// InputIDs holds BatchSize rows of SeqLen token IDs, row-major.
	InputIDs []int64
	// AttentionMask is 1 for real tokens and 0 for padding.
	AttentionMask []int64
	BatchSize     int
	SeqLen        int
}

// Tokenizer segments text into subword pieces from a Marian vocab.json.
//
// Segmentation picks, per whitespace-separated word, the split into the fewest
// vocabulary pieces (longest first piece on ties). This approximates the
// SentencePiece unigram model the vocabulary was built with; characters with no
// piece map to <unk>.
type Tokenizer struct {
	// vocab maps pieces to their IDs
	vocab map[string]int64

	// idToToken maps IDs back to pieces
	idToToken map[int64]string

	// maxPieceRunes is the length of the longest piece, bounding the search window
	maxPieceRunes int

	eosID int64
	unkID int64
	padID int64
}

// NewTokenizer loads a tokenizer from a vocab.json file mapping pieces to IDs.
func NewTokenizer(vocabPath string) (*Tokenizer, error) {
	data, err := os.ReadFile(vocabPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read vocabulary: %w", err)
	}
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("vocabulary %s is not valid JSON", vocabPath)
	}

	vocab := make(map[string]int64)
	var parseErr error
	gjson.ParseBytes(data).ForEach(func(key, value gjson.Result) bool {
		if value.Type != gjson.Number {
			parseErr = fmt.Errorf("vocabulary entry %q has non-numeric id", key.String())
			return false
		}
		vocab[key.String()] = value.Int()
		return true
	})
	if parseErr != nil {
		return nil, parseErr
	}
	return newTokenizerFromVocab(vocab)
}

func newTokenizerFromVocab(vocab map[string]int64) (*Tokenizer, error) {
	t := &Tokenizer{
		vocab:     vocab,
		idToToken: make(map[int64]string, len(vocab)),
	}
	for piece, id := range vocab {
		t.idToToken[id] = piece
		if n := utf8.RuneCountInString(piece); n > t.maxPieceRunes {
			t.maxPieceRunes = n
		}
	}

	var ok bool
	if t.eosID, ok = vocab[eosToken]; !ok {
		return nil, fmt.Errorf("vocabulary is missing %s", eosToken)
	}
	if t.unkID, ok = vocab[unkToken]; !ok {
		return nil, fmt.Errorf("vocabulary is missing %s", unkToken)
	}
	if t.padID, ok = vocab[padToken]; !ok {
		return nil, fmt.Errorf("vocabulary is missing %s", padToken)
	}
	return t, nil
}

// EOSID returns the end-of-sequence token ID.
func (t *Tokenizer) EOSID() int64 { return t.eosID }

// PadID returns the padding token ID.
func (t *Tokenizer) PadID() int64 { return t.padID }

// VocabSize returns the number of pieces.
func (t *Tokenizer) VocabSize() int { return len(t.vocab) }

// Encode tokenizes text and appends </s>. Inputs longer than maxTokens
// (including </s>) are truncated.
func (t *Tokenizer) Encode(text string, maxTokens int) []int64 {
	if maxTokens <= 1 {
		maxTokens = 512
	}
	text = norm.NFKC.String(text)

	ids := make([]int64, 0, len(text)/3+1)
	for _, word := range strings.Fields(text) {
		ids = append(ids, t.segment(wordMarker+word)...)
		if len(ids) >= maxTokens-1 {
			break
		}
	}
	if len(ids) > maxTokens-1 {
		ids = ids[:maxTokens-1]
	}
	return append(ids, t.eosID)
}

// EncodeBatch tokenizes texts and right-pads them to the longest row.
func (t *Tokenizer) EncodeBatch(texts []string, maxTokens int) *TokenizedBatch {
	rows := make([][]int64, len(texts))
	seqLen := 0
	for i, text := range texts {
		rows[i] = t.Encode(text, maxTokens)
		if len(rows[i]) > seqLen {
			seqLen = len(rows[i])
		}
	}

	batch := &TokenizedBatch{
		InputIDs:      make([]int64, len(texts)*seqLen),
		AttentionMask: make([]int64, len(texts)*seqLen),
		BatchSize:     len(texts),
		SeqLen:        seqLen,
	}
	for i, row := range rows {
		offset := i * seqLen
		for j := 0; j < seqLen; j++ {
			if j < len(row) {
				batch.InputIDs[offset+j] = row[j]
				batch.AttentionMask[offset+j] = 1
			} else {
				batch.InputIDs[offset+j] = t.padID
			}
		}
	}
	return batch
}

// Decode turns generated IDs back into text, dropping special tokens.
func (t *Tokenizer) Decode(ids []int64) string {
	var b strings.Builder
	for _, id := range ids {
		if id == t.padID || id == t.eosID || id == t.unkID {
			continue
		}
		if piece, ok := t.idToToken[id]; ok {
			b.WriteString(piece)
		}
	}
	return strings.TrimSpace(strings.ReplaceAll(b.String(), wordMarker, " "))
}

// segment splits one marked word into the fewest vocabulary pieces.
func (t *Tokenizer) segment(word string) []int64 {
	runes := []rune(word)
	n := len(runes)

	const inf = int(^uint(0) >> 1)
	cost := make([]int, n+1)
	back := make([]int, n+1)
	pieceID := make([]int64, n+1)
	for i := 1; i <= n; i++ {
		cost[i] = inf
	}

	for end := 1; end <= n; end++ {
		start := end - t.maxPieceRunes
		if start < 0 {
			start = 0
		}
		// Ascending start tries the longest piece first, so ties keep it.
		for s := start; s < end; s++ {
			if cost[s] == inf {
				continue
			}
			id, ok := t.vocab[string(runes[s:end])]
			if !ok {
				continue
			}
			if cost[s]+1 < cost[end] {
				cost[end] = cost[s] + 1
				back[end] = s
				pieceID[end] = id
			}
		}
		if cost[end] == inf && cost[end-1] != inf {
			// No piece ends here: consume one rune as <unk>.
			cost[end] = cost[end-1] + 1
			back[end] = end - 1
			pieceID[end] = t.unkID
		}
	}

	out := make([]int64, 0, cost[n])
	for pos := n; pos > 0; pos = back[pos] {
		out = append(out, pieceID[pos])
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return collapseUnknown(out, t.unkID)
}

// collapseUnknown merges runs of <unk> into one, as SentencePiece does.
func collapseUnknown(ids []int64, unkID int64) []int64 {
	out := ids[:0]
	for _, id := range ids {
		if id == unkID && len(out) > 0 && out[len(out)-1] == unkID {
			continue
		}
		out = append(out, id)
	}
	return out
}
