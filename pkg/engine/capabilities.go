package engine

import "context"

// ASR is the abstract speech-recognition capability provider (§6). Each
// session owns its own instance; instances are never shared across
// sessions since they hold mutable streaming state.
type ASR interface {
	// InsertAudioChunk hands normalized float32 PCM to the backend, advancing
	// its internal stream clock to streamTimeEnd.
	InsertAudioChunk(pcm []float32, streamTimeEnd float64)

	// ProcessIter runs one recognition step and returns newly committed
	// tokens plus the stream time processed up to.
	ProcessIter() (newTokens []Token, processedUpTo float64)

	// StartSilence flushes the backend's internal buffer to committed tokens
	// when a silence period begins.
	StartSilence() (newTokens []Token, end float64)

	// EndSilence informs the backend that a silence of the given duration has
	// ended, so its stream clock can advance without spending model time.
	EndSilence(duration float64, lastTokenEnd float64)

	// GetBuffer returns the current unstable recognition tail.
	GetBuffer() BufferText

	// NewSpeaker notifies the backend of a ChangeSpeaker event. Whether this
	// flushes committed context or only prompt state is controlled by
	// EngineConfig.FlushContextOnSpeakerChange (see DESIGN.md).
	NewSpeaker(event ChangeSpeakerEvent)

	// Sep is the word separator the backend uses when joining tokens into
	// buffer text (e.g. " " for most languages).
	Sep() string

	// SampleRate is the sample rate, in Hz, the backend expects PCM at.
	SampleRate() int
}

// Diarizer is the abstract speaker-diarization capability provider (§6).
type Diarizer interface {
	InsertAudioChunk(pcm []float32)
	InsertSilence(duration float64)

	// Diarize returns the current list of SpeakerSegments covering
	// everything processed so far. Speaker ids are assigned in first-seen
	// order starting at 0 and may be refined but not reshuffled arbitrarily.
	Diarize() []SpeakerSegment

	Close() error
}

// Translator is the abstract translation capability provider (§6).
type Translator interface {
	InsertTokens(t Token)
	InsertSilence(d float64)
	ValidateBufferAndReset()

	// Process returns newly committed translated tokens plus the current
	// unstable translation buffer text.
	Process(ctx context.Context) (committed []TranslatedToken, buffer string)
}

// VADTransition is the result of submitting a window of audio to a VAD: the
// sample index at which speech started and/or ended within that window.
type VADTransition struct {
	Start *int
	End   *int
}

// VAD is the abstract voice-activity-detection capability provider (§6): a
// callable over a fixed-size window of normalized float32 PCM.
type VAD interface {
	Process(pcm []float32) (*VADTransition, error)
}

// Summarizer is the optional post-session collaborator (C11) that produces
// a final natural-language recap of the committed transcript.
type Summarizer interface {
	Summarize(ctx context.Context, tokens []Token) (string, error)
}
