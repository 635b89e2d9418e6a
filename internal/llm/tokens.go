package llm

import (
	"sync"

	"github.com/tiktoken-go/tokenizer"
)

var (
	encoderOnce sync.Once
	encoder     tokenizer.Codec
)

// EstimateTokens estimates the token count of text using the cl100k encoding.
// Falls back to a chars/4 heuristic when the tokenizer is unavailable; the
// estimate feeds analytics, not billing, so precision is not critical.
func EstimateTokens(text string) int64 {
	if text == "" {
		return 0
	}
	encoderOnce.Do(func() {
		codec, errGet := tokenizer.Get(tokenizer.Cl100kBase)
		if errGet == nil {
			encoder = codec
		}
	})
	if encoder != nil {
		ids, _, errEncode := encoder.Encode(text)
		if errEncode == nil {
			return int64(len(ids))
		}
	}
	return int64(len(text)+3) / 4
}
