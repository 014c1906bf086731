// Command engine-server hosts the streaming transcription engine behind a
// WebSocket endpoint: one engine.Session per connection, wired to real STT
// and LLM-backed capability providers, with Prometheus metrics exposed
// alongside. Grounded on cmd/agent/main.go's provider-selection switches
// and .env loading, generalized from a single long-lived voice agent to a
// per-connection host accepting arbitrarily many sessions.
package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lokutor-ai/streamengine/internal/config"
	"github.com/lokutor-ai/streamengine/pkg/asr"
	"github.com/lokutor-ai/streamengine/pkg/diarize"
	"github.com/lokutor-ai/streamengine/pkg/engine"
	"github.com/lokutor-ai/streamengine/pkg/providers/llm"
	"github.com/lokutor-ai/streamengine/pkg/providers/stt"
	"github.com/lokutor-ai/streamengine/pkg/transport"
	"github.com/lokutor-ai/streamengine/pkg/translate"
	"github.com/lokutor-ai/streamengine/pkg/vad"
)

// sttBackend is the duck-typed surface pkg/asr.LocalAgreementASR expects
// from a batch transcription provider; every pkg/providers/stt backend
// already satisfies it.
type sttBackend interface {
	Transcribe(ctx context.Context, audioPCM []byte, lang string) (string, error)
	Name() string
}

// llmBackend is the duck-typed surface pkg/translate expects from a chat
// completion provider; every pkg/providers/llm backend already satisfies
// it.
type llmBackend interface {
	Complete(ctx context.Context, messages []llm.Message) (string, error)
	Name() string
}

func main() {
	cfg := config.Load()
	logger := engine.NewSlogLogger(slog.New(slog.NewTextHandler(os.Stdout, nil)))
	metrics := engine.NewPrometheusMetrics(prometheus.DefaultRegisterer)

	sttP := buildSTT(cfg)
	llmP := buildLLM(cfg)
	dispatcher := engine.NewModelDispatcher(8)

	host := transport.NewHost(func(r *http.Request) (*engine.Session, error) {
		sessionASR := asr.NewLocalAgreementASR(sttP, cfg.Engine.SampleRate, cfg.Engine.SourceLanguage, cfg.Engine.MinChunkSize, cfg.Engine.FlushContextOnSpeakerChange, logger)

		var diarizer engine.Diarizer
		if cfg.Engine.Diarization {
			diarizer = diarize.NewCorrelationDiarizer(cfg.Engine.SampleRate)
		}

		var translator engine.Translator
		if cfg.Engine.TargetLanguage != "" {
			translator = translate.NewLLMTranslator(llmP, cfg.Engine.SourceLanguage, cfg.Engine.TargetLanguage, logger)
		}

		var summarizer engine.Summarizer
		if cfg.Engine.EnableSummary {
			summarizer = translate.NewLLMSummarizer(llmP)
		}

		sessionVAD := vad.NewRMSVAD(cfg.Engine.SampleRate, 0.02, 500*time.Millisecond)

		return engine.NewSession(cfg.Engine, sessionASR, diarizer, translator, sessionVAD, summarizer, cfg.DecoderBinary, logger, metrics, dispatcher), nil
	}, logger)

	mux := http.NewServeMux()
	mux.Handle("/ws", host)
	mux.Handle("/metrics", promhttp.Handler())

	logger.Info("engine-server starting", "addr", cfg.ListenAddr, "stt_provider", cfg.ASRProvider, "llm_provider", cfg.LLMProvider)
	if err := http.ListenAndServe(cfg.ListenAddr, mux); err != nil {
		log.Fatalf("engine-server: %v", err)
	}
}

func buildSTT(cfg config.HostConfig) sttBackend {
	switch cfg.ASRProvider {
	case "openai":
		requireKey("OPENAI_API_KEY", cfg.Keys.OpenAI)
		return stt.NewOpenAISTT(cfg.Keys.OpenAI, "whisper-1")
	case "deepgram":
		requireKey("DEEPGRAM_API_KEY", cfg.Keys.Deepgram)
		return stt.NewDeepgramSTT(cfg.Keys.Deepgram)
	case "assemblyai":
		requireKey("ASSEMBLYAI_API_KEY", cfg.Keys.AssemblyAI)
		return stt.NewAssemblyAISTT(cfg.Keys.AssemblyAI)
	case "groq":
		fallthrough
	default:
		requireKey("GROQ_API_KEY", cfg.Keys.Groq)
		return stt.NewGroqSTT(cfg.Keys.Groq, "whisper-large-v3-turbo")
	}
}

func buildLLM(cfg config.HostConfig) llmBackend {
	switch cfg.LLMProvider {
	case "openai":
		requireKey("OPENAI_API_KEY", cfg.Keys.OpenAI)
		return llm.NewOpenAILLM(cfg.Keys.OpenAI, "gpt-4o")
	case "anthropic":
		requireKey("ANTHROPIC_API_KEY", cfg.Keys.Anthropic)
		return llm.NewAnthropicLLM(cfg.Keys.Anthropic, "claude-3-5-sonnet-20241022")
	case "google":
		requireKey("GOOGLE_API_KEY", cfg.Keys.Google)
		return llm.NewGoogleLLM(cfg.Keys.Google, "gemini-1.5-flash")
	case "groq":
		fallthrough
	default:
		requireKey("GROQ_API_KEY", cfg.Keys.Groq)
		return llm.NewGroqLLM(cfg.Keys.Groq, "llama-3.3-70b-versatile")
	}
}

func requireKey(name, value string) {
	if value == "" {
		log.Fatalf("engine-server: %s must be set for the selected provider", name)
	}
}
