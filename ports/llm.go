package ports

import "context"

// LLMClient abstracts the chat-completion provider used for code
// generation fallback and error correction.
type LLMClient interface {
	ChatCompletion(ctx context.Context, model string, prompt string, maxTokens int) (string, error)
}
