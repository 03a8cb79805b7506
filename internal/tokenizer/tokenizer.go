package tokenizer

import (
	"fmt"

	"github.com/pkoukk/tiktoken-go"

	"github.com/MimeLyc/longdoc-translator/pkg/log"
)

// DefaultEncoding is the byte-pair encoding used by the reference translator models.
const DefaultEncoding = "cl100k_base"

// Tokenizer counts tokens for chunk budgeting. Implementations must be
// safe for concurrent use.
type Tokenizer interface {
	Count(text string) int
}

// BPE counts tokens with a tiktoken byte-pair encoding.
type BPE struct {
	enc *tiktoken.Tiktoken
}

// NewBPE loads the named tiktoken encoding. An empty name selects DefaultEncoding.
func NewBPE(encoding string) (*BPE, error) {
	if encoding == "" {
		encoding = DefaultEncoding
	}
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, fmt.Errorf("load encoding %q: %w", encoding, err)
	}
	return &BPE{enc: enc}, nil
}

func (b *BPE) Count(text string) int {
	return len(b.enc.Encode(text, nil, nil))
}

// Heuristic estimates token counts without a vocabulary: roughly four
// characters per token for Latin text, one token per CJK rune.
type Heuristic struct{}

func (Heuristic) Count(text string) int {
	if text == "" {
		return 0
	}
	latin := 0
	tokens := 0
	for _, r := range text {
		if isCJK(r) {
			tokens++
			continue
		}
		latin++
	}
	tokens += (latin + 3) / 4
	return tokens
}

func isCJK(r rune) bool {
	switch {
	case r >= 0x4E00 && r <= 0x9FFF: // CJK unified ideographs
		return true
	case r >= 0x3000 && r <= 0x30FF: // CJK punctuation, kana
		return true
	case r >= 0xFF00 && r <= 0xFFEF: // fullwidth forms
		return true
	}
	return false
}

// Default returns the BPE tokenizer when its encoding can be loaded and
// falls back to the heuristic estimate otherwise.
func Default() Tokenizer {
	bpe, err := NewBPE(DefaultEncoding)
	if err != nil {
		log.Warn("BPE tokenizer unavailable, using heuristic estimate: %v", err)
		return Heuristic{}
	}
	return bpe
}
