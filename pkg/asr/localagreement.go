// Package asr provides engine.ASR capability providers.
package asr

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/lokutor-ai/streamengine/pkg/audio"
	"github.com/lokutor-ai/streamengine/pkg/engine"
)

// transcribeTimeout bounds a single batch inference call.
const transcribeTimeout = 20 * time.Second

// sttProvider is the duck-typed surface every pkg/providers/stt backend
// exposes (batch transcription of one WAV-ready PCM buffer).
type sttProvider interface {
	Transcribe(ctx context.Context, audioPCM []byte, lang string) (string, error)
	Name() string
}

// LocalAgreementASR is an ASR capability provider (§6, BackendPolicy
// localagreement) that simulates streaming recognition on top of a batch
// HTTP transcription backend: it repeatedly re-transcribes its growing
// pending buffer and commits only the word-level prefix that agrees with
// the previous call's hypothesis, a policy grounded on whisper-streaming's
// local-agreement-2 and on the silence-triggered-flush structure of the
// whisper.cpp session in the pack (processLoop/doFlush).
type LocalAgreementASR struct {
	provider   sttProvider
	sampleRate int
	lang       string
	sep        string
	logger     engine.Logger

	minChunkSamples int
	flushOnSpeaker  bool

	mu             sync.Mutex
	buffer         []float32
	bufferStart    float64
	lastHypothesis string
	buf            engine.BufferText
}

// NewLocalAgreementASR builds a LocalAgreementASR wrapping provider.
// minChunkSeconds is the minimum amount of pending audio required before a
// ProcessIter call issues a model request (§6's min_chunk_size).
// flushOnSpeaker mirrors EngineConfig.FlushContextOnSpeakerChange.
func NewLocalAgreementASR(provider sttProvider, sampleRate int, lang string, minChunkSeconds float64, flushOnSpeaker bool, logger engine.Logger) *LocalAgreementASR {
	if logger == nil {
		logger = &engine.NoOpLogger{}
	}
	return &LocalAgreementASR{
		provider:        provider,
		sampleRate:      sampleRate,
		lang:            lang,
		sep:             " ",
		logger:          logger,
		minChunkSamples: int(minChunkSeconds * float64(sampleRate)),
		flushOnSpeaker:  flushOnSpeaker,
	}
}

func (a *LocalAgreementASR) SampleRate() int { return a.sampleRate }
func (a *LocalAgreementASR) Sep() string     { return a.sep }

// InsertAudioChunk implements engine.ASR: pcm is appended to the pending
// buffer, whose start time is derived from streamTimeEnd the first time
// the buffer goes from empty to non-empty.
func (a *LocalAgreementASR) InsertAudioChunk(pcm []float32, streamTimeEnd float64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.buffer) == 0 {
		a.bufferStart = streamTimeEnd - float64(len(pcm))/float64(a.sampleRate)
	}
	a.buffer = append(a.buffer, pcm...)
}

// ProcessIter implements engine.ASR: below minChunkSamples it returns no
// new tokens (amortizing model calls), otherwise it re-transcribes the
// pending buffer and commits the word-level prefix that agrees with the
// previous hypothesis, trimming that much audio out of the buffer.
func (a *LocalAgreementASR) ProcessIter() ([]engine.Token, float64) {
	a.mu.Lock()
	if len(a.buffer) < a.minChunkSamples {
		watermark := a.bufferStart + float64(len(a.buffer))/float64(a.sampleRate)
		a.mu.Unlock()
		return nil, watermark
	}
	pcm := append([]float32{}, a.buffer...)
	start := a.bufferStart
	a.mu.Unlock()

	hypothesis := a.transcribe(pcm)
	duration := float64(len(pcm)) / float64(a.sampleRate)
	end := start + duration
	if hypothesis == "" {
		return nil, end
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	newWords := strings.Fields(hypothesis)
	oldWords := strings.Fields(a.lastHypothesis)
	agree := commonPrefixLen(oldWords, newWords)
	if agree >= len(newWords) {
		agree = len(newWords) - 1 // always leave a trailing unstable word
	}
	if agree < 0 {
		agree = 0
	}

	committed := newWords[:agree]
	remainder := newWords[agree:]

	var tokens []engine.Token
	if len(committed) > 0 {
		wordDur := duration / float64(len(newWords))
		for i, w := range committed {
			tokens = append(tokens, engine.Token{
				Text:  w,
				Start: start + float64(i)*wordDur,
				End:   start + float64(i+1)*wordDur,
			})
		}
		trimSamples := int(float64(len(committed)) * wordDur * float64(a.sampleRate))
		if trimSamples > len(a.buffer) {
			trimSamples = len(a.buffer)
		}
		a.buffer = a.buffer[trimSamples:]
		a.bufferStart += float64(trimSamples) / float64(a.sampleRate)
	}

	a.lastHypothesis = strings.Join(remainder, a.sep)
	bufStart, bufEnd := start, end
	a.buf = engine.BufferText{Text: a.lastHypothesis, Start: &bufStart, End: &bufEnd}

	return tokens, end
}

// StartSilence implements engine.ASR: it commits every word still pending
// as a final token (there's no more audio coming to refine the hypothesis
// further) and clears the buffer.
func (a *LocalAgreementASR) StartSilence() ([]engine.Token, float64) {
	a.mu.Lock()
	if len(a.buffer) == 0 {
		end := a.bufferStart
		a.mu.Unlock()
		return nil, end
	}
	pcm := append([]float32{}, a.buffer...)
	start := a.bufferStart
	a.mu.Unlock()

	hypothesis := a.transcribe(pcm)
	duration := float64(len(pcm)) / float64(a.sampleRate)
	end := start + duration

	a.mu.Lock()
	defer a.mu.Unlock()

	var tokens []engine.Token
	words := strings.Fields(hypothesis)
	if len(words) > 0 {
		wordDur := duration / float64(len(words))
		for i, w := range words {
			tokens = append(tokens, engine.Token{
				Text:  w,
				Start: start + float64(i)*wordDur,
				End:   start + float64(i+1)*wordDur,
			})
		}
	}

	a.buffer = nil
	a.bufferStart = end
	a.lastHypothesis = ""
	a.buf = engine.BufferText{}

	return tokens, end
}

// EndSilence implements engine.ASR: the buffer is already empty after
// StartSilence, so this only advances the stream clock for free.
func (a *LocalAgreementASR) EndSilence(duration float64, lastTokenEnd float64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if lastTokenEnd > a.bufferStart {
		a.bufferStart = lastTokenEnd
	}
}

// GetBuffer implements engine.ASR.
func (a *LocalAgreementASR) GetBuffer() engine.BufferText {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.buf
}

// NewSpeaker implements engine.ASR. The agreement baseline is always reset
// (a new speaker invalidates the previous hypothesis as a prefix
// predictor); when flushOnSpeaker is set the heavier policy also discards
// whatever audio is still pending and unconfirmed, per
// EngineConfig.FlushContextOnSpeakerChange.
func (a *LocalAgreementASR) NewSpeaker(event engine.ChangeSpeakerEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.lastHypothesis = ""
	if a.flushOnSpeaker {
		a.buffer = nil
		a.buf = engine.BufferText{}
	}
}

func (a *LocalAgreementASR) transcribe(pcm []float32) string {
	ctx, cancel := context.WithTimeout(context.Background(), transcribeTimeout)
	defer cancel()

	text, err := a.provider.Transcribe(ctx, audio.Float32ToPCM16(pcm), a.lang)
	if err != nil {
		a.logger.Warn("asr transcription failed", "provider", a.provider.Name(), "error", err)
		return ""
	}
	return strings.TrimSpace(text)
}

func commonPrefixLen(a, b []string) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	i := 0
	for i < n && a[i] == b[i] {
		i++
	}
	return i
}
