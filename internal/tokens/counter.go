// Package tokens counts prompt tokens and trims conversation history to a
// budget before it is sent to the completion service.
package tokens

import (
	"fmt"
	"strings"
	"sync"

	"github.com/tiktoken-go/tokenizer"
)

// Counter counts tokens with tiktoken, falling back to a character estimate
// when no codec is available.
type Counter struct {
	encoding tokenizer.Encoding

	mu    sync.Mutex
	codec tokenizer.Codec
	err   error
	once  bool

	// CharsPerToken is used by the fallback estimate.
	CharsPerToken float64
}

// NewCounter creates a counter for the given model name.
func NewCounter(model string) *Counter {
	return &Counter{
		encoding:      modelToEncoding(model),
		CharsPerToken: 4.0,
	}
}

// getCodec loads the codec on first use.
func (c *Counter) getCodec() (tokenizer.Codec, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.once {
		c.codec, c.err = tokenizer.Get(c.encoding)
		if c.err != nil {
			c.err = fmt.Errorf("failed to get tokenizer encoding: %w", c.err)
		}
		c.once = true
	}
	return c.codec, c.err
}

// Count returns the number of tokens in text.
func (c *Counter) Count(text string) int {
	codec, err := c.getCodec()
	if err != nil {
		return c.estimate(text)
	}
	ids, _, err := codec.Encode(text)
	if err != nil {
		return c.estimate(text)
	}
	return len(ids)
}

func (c *Counter) estimate(text string) int {
	if text == "" {
		return 0
	}
	n := int(float64(len(text)) / c.CharsPerToken)
	if n == 0 {
		n = 1
	}
	return n
}

// modelToEncoding maps model names to tiktoken encodings.
//
// Encoding reference:
// - O200kBase: GPT-5, GPT-4.1, GPT-4o, o-series and unknown models
// - Cl100kBase: GPT-4, GPT-3.5-turbo
func modelToEncoding(model string) tokenizer.Encoding {
	model = strings.ToLower(model)

	switch {
	case strings.HasPrefix(model, "gpt-4o"), strings.HasPrefix(model, "gpt-4.1"), strings.HasPrefix(model, "gpt-5"):
		return tokenizer.O200kBase
	case strings.HasPrefix(model, "o1"), strings.HasPrefix(model, "o3"), strings.HasPrefix(model, "o4"):
		return tokenizer.O200kBase
	case strings.HasPrefix(model, "gpt-4"), strings.HasPrefix(model, "gpt-3.5"):
		return tokenizer.Cl100kBase
	default:
		// Claude and Gemini have no public tiktoken encoding; o200k is a close enough proxy.
		return tokenizer.O200kBase
	}
}
