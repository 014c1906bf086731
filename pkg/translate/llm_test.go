package translate

import (
	"context"
	"errors"
	"testing"

	"github.com/lokutor-ai/streamengine/pkg/engine"
	"github.com/lokutor-ai/streamengine/pkg/providers/llm"
)

type stubLLM struct {
	reply string
	err   error
	calls int
}

func (s *stubLLM) Complete(ctx context.Context, messages []llm.Message) (string, error) {
	s.calls++
	if s.err != nil {
		return "", s.err
	}
	return s.reply, nil
}

func (s *stubLLM) Name() string { return "stub" }

func TestLLMTranslatorFlushesAtMaxPendingTokens(t *testing.T) {
	provider := &stubLLM{reply: "hola mundo"}
	tr := NewLLMTranslator(provider, "en", "es", nil)

	for i := 0; i < maxPendingTokens-1; i++ {
		tr.InsertTokens(engine.Token{Text: "word", Start: float64(i), End: float64(i + 1)})
		committed, buffer := tr.Process(context.Background())
		if committed != nil {
			t.Fatalf("expected no flush before maxPendingTokens is reached, got %+v", committed)
		}
		if buffer == "" {
			t.Fatal("expected the untranslated pending text as the buffer tail before a flush")
		}
	}

	tr.InsertTokens(engine.Token{Text: "word", Start: 99, End: 100})
	committed, buffer := tr.Process(context.Background())
	if len(committed) != 1 || committed[0].Text != "hola mundo" {
		t.Fatalf("expected a flush once maxPendingTokens was reached, got %+v", committed)
	}
	if buffer != "" {
		t.Fatalf("expected an empty buffer tail immediately after a successful flush, got %q", buffer)
	}
	if provider.calls != 1 {
		t.Fatalf("expected exactly one model call, got %d", provider.calls)
	}
}

func TestLLMTranslatorValidateBufferAndResetForcesFlush(t *testing.T) {
	provider := &stubLLM{reply: "bonjour"}
	tr := NewLLMTranslator(provider, "en", "fr", nil)

	tr.InsertTokens(engine.Token{Text: "hello", Start: 0, End: 1})
	tr.ValidateBufferAndReset()

	if provider.calls != 1 {
		t.Fatalf("expected ValidateBufferAndReset to force exactly one flush, got %d calls", provider.calls)
	}

	// Pending must be cleared even though Process was never called.
	committed, buffer := tr.Process(context.Background())
	if committed != nil || buffer != "" {
		t.Fatalf("expected nothing pending after a forced flush, got committed=%+v buffer=%q", committed, buffer)
	}
}

func TestLLMTranslatorRetriesPendingSpanOnFlushFailure(t *testing.T) {
	provider := &stubLLM{err: errors.New("boom")}
	tr := NewLLMTranslator(provider, "en", "es", nil)

	for i := 0; i < maxPendingTokens; i++ {
		tr.InsertTokens(engine.Token{Text: "word", Start: float64(i), End: float64(i + 1)})
	}

	committed, buffer := tr.Process(context.Background())
	if committed != nil {
		t.Fatalf("expected no committed tokens on a failed flush, got %+v", committed)
	}
	if buffer == "" {
		t.Fatal("expected the pending span put back and returned as the buffer tail on failure")
	}
}

func TestLLMSummarizerReturnsEmptyForNoTokens(t *testing.T) {
	provider := &stubLLM{reply: "should not be called"}
	s := NewLLMSummarizer(provider)

	text, err := s.Summarize(context.Background(), nil)
	if err != nil || text != "" {
		t.Fatalf("expected an empty summary with no error for zero tokens, got %q / %v", text, err)
	}
	if provider.calls != 0 {
		t.Fatalf("expected no model call for an empty transcript, got %d", provider.calls)
	}
}

func TestLLMSummarizerSummarizesTranscript(t *testing.T) {
	provider := &stubLLM{reply: "  they discussed the roadmap.  "}
	s := NewLLMSummarizer(provider)

	text, err := s.Summarize(context.Background(), []engine.Token{{Text: "hello"}, {Text: "world"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != "they discussed the roadmap." {
		t.Fatalf("expected trimmed summary text, got %q", text)
	}
}
