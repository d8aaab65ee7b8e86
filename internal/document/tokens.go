package document

import (
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
)

var (
	encodingOnce sync.Once
	encoding     *tiktoken.Tiktoken
)

// EstimateTokens returns an approximate token count for text.
//
// Uses the cl100k_base BPE when available. The encoding data is fetched on
// first use; in fully offline environments that fetch can fail, so a
// character-based approximation (~4 chars per token for English prose)
// keeps estimation working without the encoder.
func EstimateTokens(text string) int {
	if text == "" {
		return 0
	}

	encodingOnce.Do(func() {
		enc, err := tiktoken.GetEncoding("cl100k_base")
		if err == nil {
			encoding = enc
		}
	})

	if encoding != nil {
		return len(encoding.Encode(text, nil, nil))
	}
	return approximateTokens(text)
}

func approximateTokens(text string) int {
	chars := utf8.RuneCountInString(text)
	words := len(strings.Fields(text))

	// Blend the two classic heuristics (chars/4 and words*4/3); pure
	// chars/4 undercounts code-heavy text, pure word count undercounts
	// punctuation-dense text.
	byChars := chars / 4
	byWords := words * 4 / 3
	est := (byChars + byWords) / 2
	if est < 1 {
		est = 1
	}
	return est
}
