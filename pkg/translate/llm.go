// Package translate provides engine.Translator capability providers.
package translate

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/lokutor-ai/streamengine/pkg/engine"
	"github.com/lokutor-ai/streamengine/pkg/providers/llm"
)

// maxPendingTokens bounds how much committed-transcript context accumulates
// before LLMTranslator forces a flush on its own, independent of the
// silence/speaker-change boundaries that normally trigger one.
const maxPendingTokens = 12

// flushTimeout bounds a single translation call issued from
// ValidateBufferAndReset, which the engine invokes synchronously from a
// worker's item loop with no caller-supplied context.
const flushTimeout = 8 * time.Second

// llmProvider is the duck-typed surface every pkg/providers/llm backend
// exposes; LLMTranslator depends on this instead of a concrete provider so
// any of them can be wired in by config.
type llmProvider interface {
	Complete(ctx context.Context, messages []llm.Message) (string, error)
	Name() string
}

// LLMTranslator is the Translator capability (§6), repurposing a chat
// completion provider as a sentence-level translator: it accumulates
// committed tokens and periodically asks the model to translate the
// accumulated span in one shot, rather than token by token, so word order
// differences between source and target languages don't fragment the
// output.
type LLMTranslator struct {
	provider   llmProvider
	sourceLang string
	targetLang string
	logger     engine.Logger

	mu      sync.Mutex
	pending []engine.Token
}

// NewLLMTranslator builds an LLMTranslator targeting targetLang, describing
// the source language as sourceLang in its prompt (empty means "detect
// it").
func NewLLMTranslator(provider llmProvider, sourceLang, targetLang string, logger engine.Logger) *LLMTranslator {
	if logger == nil {
		logger = &engine.NoOpLogger{}
	}
	return &LLMTranslator{provider: provider, sourceLang: sourceLang, targetLang: targetLang, logger: logger}
}

// InsertTokens implements engine.Translator: t is appended to the pending,
// not-yet-translated span.
func (l *LLMTranslator) InsertTokens(t engine.Token) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.pending = append(l.pending, t)
}

// InsertSilence implements engine.Translator. Silence itself isn't a commit
// boundary for translation (that's ValidateBufferAndReset, invoked
// separately on SilenceStarting); a long silence is logged since it often
// means the speaker changed topic mid-buffer.
func (l *LLMTranslator) InsertSilence(d float64) {
	if d > 0 {
		l.logger.Debug("translator observed silence", "duration_s", d)
	}
}

// ValidateBufferAndReset implements engine.Translator: it forces whatever
// is pending to be translated and committed immediately, using an internal
// bounded context since the interface offers no caller context at this
// boundary (§4.5's Protocol: flush on silence_start and new_speaker).
func (l *LLMTranslator) ValidateBufferAndReset() {
	l.mu.Lock()
	pending := l.pending
	l.pending = nil
	l.mu.Unlock()

	if len(pending) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
	defer cancel()

	if _, err := l.flush(ctx, pending); err != nil {
		l.logger.Warn("translator forced flush failed, context dropped", "error", err)
	}
}

// Process implements engine.Translator: it flushes the pending span through
// the model once maxPendingTokens have accumulated, else it returns the
// untranslated pending text as the unstable buffer tail so the client sees
// something before the model call completes.
func (l *LLMTranslator) Process(ctx context.Context) ([]engine.TranslatedToken, string) {
	l.mu.Lock()
	shouldFlush := len(l.pending) >= maxPendingTokens
	pending := l.pending
	if shouldFlush {
		l.pending = nil
	}
	l.mu.Unlock()

	if !shouldFlush {
		return nil, joinTokenText(pending)
	}

	committed, err := l.flush(ctx, pending)
	if err != nil {
		l.logger.Warn("translation flush failed", "error", err)
		// Put the span back so a later flush can retry it.
		l.mu.Lock()
		l.pending = append(pending, l.pending...)
		l.mu.Unlock()
		return nil, joinTokenText(pending)
	}
	return committed, ""
}

func (l *LLMTranslator) flush(ctx context.Context, pending []engine.Token) ([]engine.TranslatedToken, error) {
	if len(pending) == 0 {
		return nil, nil
	}

	source := joinTokenText(pending)
	messages := []llm.Message{
		{Role: "system", Content: l.systemPrompt()},
		{Role: "user", Content: source},
	}

	translated, err := l.provider.Complete(ctx, messages)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", l.provider.Name(), err)
	}

	return []engine.TranslatedToken{{
		Text:  strings.TrimSpace(translated),
		Start: pending[0].Start,
		End:   pending[len(pending)-1].End,
	}}, nil
}

func (l *LLMTranslator) systemPrompt() string {
	from := l.sourceLang
	if from == "" {
		from = "the source language"
	}
	return fmt.Sprintf(
		"You are translating a live speech transcript from %s to %s. "+
			"Reply with only the translation of the given text, no commentary.",
		from, l.targetLang,
	)
}

func joinTokenText(tokens []engine.Token) string {
	parts := make([]string, 0, len(tokens))
	for _, t := range tokens {
		if t.Text != "" {
			parts = append(parts, t.Text)
		}
	}
	return strings.Join(parts, " ")
}
