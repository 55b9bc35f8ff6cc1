package providers

import (
	"fmt"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

var (
	encOnce sync.Once
	enc     *tiktoken.Tiktoken
	encErr  error
)

// TruncateTokens cuts text down to at most maxTokens tokens so embedding
// inputs never exceed the service limit. Over-long text is truncated, not
// rejected. Token counts use the cl100k_base encoding, which is close
// enough across providers for a safety bound.
func TruncateTokens(text string, maxTokens int) (string, error) {
	if maxTokens <= 0 {
		return text, nil
	}

	encOnce.Do(func() {
		enc, encErr = tiktoken.GetEncoding("cl100k_base")
	})
	if encErr != nil {
		return "", fmt.Errorf("failed to load token encoding: %w", encErr)
	}

	tokens := enc.Encode(text, nil, nil)
	if len(tokens) <= maxTokens {
		return text, nil
	}
	return enc.Decode(tokens[:maxTokens]), nil
}

// CountTokens returns the token count of text under the cl100k_base encoding
func CountTokens(text string) (int, error) {
	encOnce.Do(func() {
		enc, encErr = tiktoken.GetEncoding("cl100k_base")
	})
	if encErr != nil {
		return 0, fmt.Errorf("failed to load token encoding: %w", encErr)
	}
	return len(enc.Encode(text, nil, nil)), nil
}
