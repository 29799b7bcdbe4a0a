package pipeline

import (
	"strings"
	"sync"

	"github.com/tiktoken-go/tokenizer"
)

var (
	codecOnce sync.Once
	codec     tokenizer.Codec
)

// countTokens returns the cl100k token count for text, falling back to a
// whitespace word count if the tokenizer cannot be constructed.
func countTokens(text string) int {
	codecOnce.Do(func() {
		c, err := tokenizer.Get(tokenizer.Cl100kBase)
		if err == nil {
			codec = c
		}
	})
	if codec == nil {
		return len(strings.Fields(text))
	}
	ids, _, err := codec.Encode(text)
	if err != nil {
		return len(strings.Fields(text))
	}
	return len(ids)
}
