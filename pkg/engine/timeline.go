package engine

import (
	"sync"
	"time"
)

// TimelineState is the authoritative, lock-protected record of a single
// session: committed tokens, diarization segments, translations, and the
// processing watermarks derived from them (§3, §4.6). It generalizes the
// teacher's ConversationSession — a narrow-accessor struct guarded by a
// sync.RWMutex — from chat history to streaming transcription state.
type TimelineState struct {
	mu sync.RWMutex

	sessionStart time.Time

	tokens               []Token
	newTokens            []Token
	bufferTranscription  BufferText
	diarizationSegments  []SpeakerSegment
	translations         []TranslatedToken
	bufferTranslation    string
	endBuffer            float64
	endAttributedSpeaker float64
}

// NewTimelineState creates a fresh TimelineState anchored at the current
// wall-clock time. A new one is created per session and discarded at
// session end, per §3's Lifecycle.
func NewTimelineState() *TimelineState {
	return &TimelineState{sessionStart: time.Now()}
}

// CommitTokens is the atomic watermark update described in §4.3: under the
// lock, append newTokens, replace the buffer tail, and raise end_buffer to
// the maximum of its prior value and everything just observed.
func (t *TimelineState) CommitTokens(newTokens []Token, buffer BufferText, processedUpTo float64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.tokens = append(t.tokens, newTokens...)
	t.newTokens = append(t.newTokens, newTokens...)
	t.bufferTranscription = buffer

	candidate := processedUpTo
	if buffer.End != nil && *buffer.End > candidate {
		candidate = *buffer.End
	}
	if n := len(newTokens); n > 0 && newTokens[n-1].End > candidate {
		candidate = newTokens[n-1].End
	}
	if candidate > t.endBuffer {
		t.endBuffer = candidate
	}
}

// DrainNewTokens returns and clears the tokens committed since the last
// call, mirroring the TimelineState.new_tokens field in §3's data model.
func (t *TimelineState) DrainNewTokens() []Token {
	t.mu.Lock()
	defer t.mu.Unlock()
	drained := t.newTokens
	t.newTokens = nil
	return drained
}

// SetDiarization replaces the diarization segment list wholesale (segments
// are never patched in place — see §9's "weak alignment references") and
// raises end_attributed_speaker to the furthest segment end observed.
func (t *TimelineState) SetDiarization(segments []SpeakerSegment) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.diarizationSegments = segments
	for _, s := range segments {
		if s.End > t.endAttributedSpeaker {
			t.endAttributedSpeaker = s.End
		}
	}
}

// AdvanceDiarizationClock bumps end_attributed_speaker without adding a
// segment, used when a silence period advances the diarizer's clock for
// free (§4.4).
func (t *TimelineState) AdvanceDiarizationClock(to float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if to > t.endAttributedSpeaker {
		t.endAttributedSpeaker = to
	}
}

// AppendTranslations records newly committed translated tokens and the
// current unstable translation buffer tail.
func (t *TimelineState) AppendTranslations(committed []TranslatedToken, buffer string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.translations = append(t.translations, committed...)
	t.bufferTranslation = buffer
}

// AssignSpeaker enforces the "exactly one refinement" policy decided for
// spec.md's third Open Question: a token's speaker may move from unset to a
// concrete id (assignment 1), and optionally from that id to another
// exactly once more (assignment 2). A third attempted change is ignored
// (returns false) so the caller can log it instead of silently reshuffling
// an already-refined label.
func (t *TimelineState) AssignSpeaker(index int, speakerID int) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if index < 0 || index >= len(t.tokens) {
		return false
	}
	tok := &t.tokens[index]
	if tok.Speaker != nil && *tok.Speaker == speakerID {
		return true
	}
	if tok.SpeakerAssignments >= 2 {
		return false
	}
	id := speakerID
	tok.Speaker = &id
	tok.SpeakerAssignments++
	return true
}

// Snapshot is an immutable, deep-copied view of everything needed by the
// Formatter to materialize a Frame, plus the derived watermarks from §4.6.
type Snapshot struct {
	Tokens               []Token
	BufferTranscription  BufferText
	DiarizationSegments  []SpeakerSegment
	Translations         []TranslatedToken
	BufferTranslation    string
	LagTranscription     float64
	LagDiarization       float64
	RemainingTranscribe  float64
	RemainingDiarization float64
}

// Snapshot reads the current state under the read lock and computes
// lag_transcription = max(0, now - session_start - end_buffer) and
// lag_diarization = max(0, latest_token_end - end_attributed_speaker), per
// §4.6.
func (t *TimelineState) Snapshot() Snapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()

	tokens := make([]Token, len(t.tokens))
	copy(tokens, t.tokens)
	segments := make([]SpeakerSegment, len(t.diarizationSegments))
	copy(segments, t.diarizationSegments)
	translations := make([]TranslatedToken, len(t.translations))
	copy(translations, t.translations)

	now := time.Since(t.sessionStart).Seconds()
	lagTranscription := now - t.endBuffer
	if lagTranscription < 0 {
		lagTranscription = 0
	}

	latestTokenEnd := 0.0
	if n := len(tokens); n > 0 {
		latestTokenEnd = tokens[n-1].End
	}
	lagDiarization := latestTokenEnd - t.endAttributedSpeaker
	if lagDiarization < 0 {
		lagDiarization = 0
	}

	return Snapshot{
		Tokens:               tokens,
		BufferTranscription:  t.bufferTranscription,
		DiarizationSegments:  segments,
		Translations:         translations,
		BufferTranslation:    t.bufferTranslation,
		LagTranscription:     lagTranscription,
		LagDiarization:       lagDiarization,
		RemainingTranscribe:  lagTranscription,
		RemainingDiarization: lagDiarization,
	}
}
