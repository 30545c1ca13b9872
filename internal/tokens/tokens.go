// Package tokens estimates token counts for providers that omit usage data.
// The cl100k_base encoding is loaded on first use; when it cannot be loaded
// a character heuristic is used instead.
package tokens

import (
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

var (
	once     sync.Once
	encoding *tiktoken.Tiktoken
)

func initEncoding() {
	once.Do(func() {
		enc, err := tiktoken.GetEncoding("cl100k_base")
		if err == nil {
			encoding = enc
		}
	})
}

// Count returns the token count of text.
func Count(text string) int {
	if text == "" {
		return 0
	}
	initEncoding()
	if encoding != nil {
		return len(encoding.Encode(text, nil, nil))
	}
	return EstimateFast(text)
}

// CountAll sums Count over several texts.
func CountAll(texts ...string) int {
	n := 0
	for _, t := range texts {
		n += Count(t)
	}
	return n
}

// EstimateFast is max(runes/4, words), at least 1 for non-blank text.
func EstimateFast(text string) int {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return 0
	}
	runes := len([]rune(trimmed))
	words := len(strings.Fields(trimmed))
	estimate := runes / 4
	if estimate < words {
		estimate = words
	}
	if estimate == 0 {
		estimate = 1
	}
	return estimate
}
