package translate

import (
	"context"
	"fmt"
	"strings"

	"github.com/lokutor-ai/streamengine/pkg/engine"
	"github.com/lokutor-ai/streamengine/pkg/providers/llm"
)

// LLMSummarizer is the Summarizer capability (C11): it asks a chat
// completion provider for a short natural-language recap of the committed
// transcript, supplementing a feature present in the system this
// specification was distilled from but dropped from the initial
// distillation.
type LLMSummarizer struct {
	provider llmProvider
}

// NewLLMSummarizer builds an LLMSummarizer backed by provider.
func NewLLMSummarizer(provider llmProvider) *LLMSummarizer {
	return &LLMSummarizer{provider: provider}
}

// Summarize implements engine.Summarizer.
func (s *LLMSummarizer) Summarize(ctx context.Context, tokens []engine.Token) (string, error) {
	if len(tokens) == 0 {
		return "", nil
	}

	transcript := joinTokenText(tokens)
	messages := []llm.Message{
		{Role: "system", Content: "Summarize the following transcript in 2-3 sentences, covering the main points discussed."},
		{Role: "user", Content: transcript},
	}

	text, err := s.provider.Complete(ctx, messages)
	if err != nil {
		return "", fmt.Errorf("%s: %w", s.provider.Name(), err)
	}
	return strings.TrimSpace(text), nil
}
