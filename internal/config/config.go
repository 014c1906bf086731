// Package config loads process-level configuration for the engine host
// (C9), grounded on cmd/agent/main.go's .env + os.Getenv reading style and
// orchestrator.DefaultConfig()'s shape, generalized to the engine's
// recognized configuration enumeration (§6).
package config

import (
	"log"
	"os"
	"strconv"

	"github.com/joho/godotenv"

	"github.com/lokutor-ai/streamengine/pkg/engine"
)

// Keys holds the per-provider API keys the host may need, read the same
// way cmd/agent/main.go reads them: unconditionally from the environment,
// validated only once a provider that needs one is actually selected.
type Keys struct {
	Groq       string
	OpenAI     string
	Anthropic  string
	Google     string
	Deepgram   string
	AssemblyAI string
}

// HostConfig is everything the process entrypoint needs beyond the
// per-session EngineConfig: which concrete capability providers to wire up
// and where to listen.
type HostConfig struct {
	Engine engine.EngineConfig
	Keys   Keys

	ASRProvider   string // groq | openai | deepgram | assemblyai
	LLMProvider   string // groq | openai | anthropic | google
	DecoderBinary string // external decoder binary name (container mode)

	ListenAddr  string
	MetricsAddr string
}

// Load reads an optional .env file (exactly as cmd/agent/main.go does,
// logging rather than failing when it's absent) and then the process
// environment into a HostConfig seeded from DefaultEngineConfig.
func Load() HostConfig {
	if err := godotenv.Load(); err != nil {
		log.Println("config: no .env file found, using process environment")
	}

	cfg := HostConfig{
		Engine: engine.DefaultEngineConfig(),
		Keys: Keys{
			Groq:       os.Getenv("GROQ_API_KEY"),
			OpenAI:     os.Getenv("OPENAI_API_KEY"),
			Anthropic:  os.Getenv("ANTHROPIC_API_KEY"),
			Google:     os.Getenv("GOOGLE_API_KEY"),
			Deepgram:   os.Getenv("DEEPGRAM_API_KEY"),
			AssemblyAI: os.Getenv("ASSEMBLYAI_API_KEY"),
		},
		ASRProvider:   getenvDefault("STT_PROVIDER", "groq"),
		LLMProvider:   getenvDefault("LLM_PROVIDER", "groq"),
		DecoderBinary: getenvDefault("DECODER_BINARY", "ffmpeg"),
		ListenAddr:    getenvDefault("LISTEN_ADDR", ":8080"),
		MetricsAddr:   getenvDefault("METRICS_ADDR", ":9090"),
	}

	if v := os.Getenv("SOURCE_LANGUAGE"); v != "" {
		cfg.Engine.SourceLanguage = v
	}
	// TARGET_LANGUAGE empty means translation off, per §6 ("" = off): an
	// unset env var already defaults to "", so no special-casing needed.
	cfg.Engine.TargetLanguage = os.Getenv("TARGET_LANGUAGE")

	if v := os.Getenv("MODEL_SIZE"); v != "" {
		cfg.Engine.ModelSize = v
	}
	cfg.Engine.VAD = getenvBoolDefault("VAD_ENABLED", cfg.Engine.VAD)
	cfg.Engine.Diarization = getenvBoolDefault("DIARIZATION_ENABLED", cfg.Engine.Diarization)
	cfg.Engine.PCMInput = getenvBoolDefault("PCM_INPUT", cfg.Engine.PCMInput)
	cfg.Engine.EnableSummary = getenvBoolDefault("ENABLE_SUMMARY", cfg.Engine.EnableSummary)
	cfg.Engine.FlushContextOnSpeakerChange = getenvBoolDefault("FLUSH_CONTEXT_ON_SPEAKER_CHANGE", cfg.Engine.FlushContextOnSpeakerChange)

	if v := os.Getenv("MIN_CHUNK_SIZE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Engine.MinChunkSize = f
		}
	}
	if v := os.Getenv("BACKEND_POLICY"); v != "" {
		cfg.Engine.BackendPolicy = engine.BackendPolicy(v)
	}
	cfg.Engine.DiarizationBackend = getenvDefault("DIARIZATION_BACKEND", cfg.Engine.DiarizationBackend)

	return cfg
}

func getenvDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getenvBoolDefault(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}
