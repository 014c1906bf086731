package engine

import "context"

// mockVAD is a scripted VAD: each call to Process pops the next
// transition off a queue, mirroring MockTTSProvider/MockLongRunningTTS's
// scripted-response style in the teacher's managed_stream_test.go.
type mockVAD struct {
	transitions []*VADTransition
	calls       int
}

func (m *mockVAD) Process(pcm []float32) (*VADTransition, error) {
	if m.calls >= len(m.transitions) {
		m.calls++
		return nil, nil
	}
	tr := m.transitions[m.calls]
	m.calls++
	return tr, nil
}

// mockASR commits one token per call to ProcessIter, timed from the call
// index (the i-th token spans [i, i+1)) and independent of the inserted
// audio, so tests can assert on deterministic timing.
type mockASR struct {
	sampleRate    int
	tokensEmitted int
	wordsPerCall  []string
	buffer        BufferText
	flushed       []ChangeSpeakerEvent
}

func (m *mockASR) InsertAudioChunk(pcm []float32, streamTimeEnd float64) {}

func (m *mockASR) ProcessIter() ([]Token, float64) {
	if m.tokensEmitted >= len(m.wordsPerCall) {
		return nil, 0
	}
	word := m.wordsPerCall[m.tokensEmitted]
	start := float64(m.tokensEmitted)
	end := start + 1
	m.tokensEmitted++
	return []Token{{Text: word, Start: start, End: end}}, end
}

func (m *mockASR) StartSilence() ([]Token, float64) { return nil, 0 }
func (m *mockASR) EndSilence(duration float64, lastTokenEnd float64) {}
func (m *mockASR) GetBuffer() BufferText { return m.buffer }
func (m *mockASR) NewSpeaker(event ChangeSpeakerEvent) { m.flushed = append(m.flushed, event) }
func (m *mockASR) Sep() string { return " " }
func (m *mockASR) SampleRate() int { return m.sampleRate }

// mockDiarizer always attributes audio to a single fixed speaker segment
// covering everything seen so far.
type mockDiarizer struct {
	speakerID int
	seenEnd   float64
	closed    bool
}

func (m *mockDiarizer) InsertAudioChunk(pcm []float32) { m.seenEnd += float64(len(pcm)) / 16000 }
func (m *mockDiarizer) InsertSilence(duration float64) { m.seenEnd += duration }
func (m *mockDiarizer) Diarize() []SpeakerSegment {
	return []SpeakerSegment{{SpeakerID: m.speakerID, Start: 0, End: m.seenEnd}}
}
func (m *mockDiarizer) Close() error { m.closed = true; return nil }

// mockTranslator echoes each inserted token's text with a fixed suffix.
type mockTranslator struct {
	pending []Token
}

func (m *mockTranslator) InsertTokens(t Token) { m.pending = append(m.pending, t) }
func (m *mockTranslator) InsertSilence(d float64) {}
func (m *mockTranslator) ValidateBufferAndReset() { m.pending = nil }
func (m *mockTranslator) Process(ctx context.Context) ([]TranslatedToken, string) {
	if len(m.pending) == 0 {
		return nil, ""
	}
	out := make([]TranslatedToken, len(m.pending))
	for i, t := range m.pending {
		out[i] = TranslatedToken{Text: t.Text + "_t", Start: t.Start, End: t.End}
	}
	m.pending = nil
	return out, ""
}

// mockSummarizer returns a fixed summary unless configured to fail.
type mockSummarizer struct {
	text string
	err  error
}

func (m *mockSummarizer) Summarize(ctx context.Context, tokens []Token) (string, error) {
	return m.text, m.err
}
