package engine

import (
	"context"
	"fmt"
	"math"
	"reflect"
	"time"
)

// formatterTickInterval is the Formatter's materialization cadence (§4.7:
// "periodically (≈20 Hz)").
const formatterTickInterval = 50 * time.Millisecond

// Formatter is C7: it periodically re-aligns committed tokens against the
// current diarization segments, groups them into Lines, and emits a
// change-only Frame to the consumer. It also owns the ChangeSpeaker
// feedback loop into the transcription and translation queues.
type Formatter struct {
	timeline            *TimelineState
	transcriptFeedback  chan<- QueueItem
	translationFeedback chan<- QueueItem
	summarizer          Summarizer
	enableSummary       bool
	logger              Logger

	lastFrame     *Frame
	notifiedIndex int
	lastSpeaker   *int
}

// NewFormatter constructs a Formatter. transcriptFeedback/translationFeedback
// receive ChangeSpeaker notifications; either may be nil if that stage is
// disabled.
func NewFormatter(timeline *TimelineState, transcriptFeedback, translationFeedback chan<- QueueItem, summarizer Summarizer, enableSummary bool, logger Logger) *Formatter {
	if logger == nil {
		logger = &NoOpLogger{}
	}
	return &Formatter{
		timeline:            timeline,
		transcriptFeedback:  transcriptFeedback,
		translationFeedback: translationFeedback,
		summarizer:          summarizer,
		enableSummary:       enableSummary,
		logger:              logger,
	}
}

// Run ticks at formatterTickInterval until ctx is cancelled or allDone
// fires (all workers have terminated, per §4.7's state machine), emitting
// change-only frames to framesOut. It closes framesOut when it returns,
// signalling the transport layer to send the terminal ready_to_stop
// message (§6).
func (f *Formatter) Run(ctx context.Context, framesOut chan<- Frame, allDone <-chan struct{}) {
	defer close(framesOut)

	ticker := time.NewTicker(formatterTickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-allDone:
			f.finalize(framesOut)
			return
		case <-ticker.C:
			if frame, changed := f.tick(); changed {
				framesOut <- frame
			}
		}
	}
}

func (f *Formatter) finalize(framesOut chan<- Frame) {
	if frame, changed := f.tick(); changed {
		framesOut <- frame
	}

	if !f.enableSummary || f.summarizer == nil {
		return
	}

	snap := f.timeline.Snapshot()
	text, err := f.summarizer.Summarize(context.Background(), snap.Tokens)
	if err != nil {
		// summary_failure policy (§7): skip, never affect transcript delivery.
		f.logger.Warn("summary generation failed", "error", err)
		return
	}
	framesOut <- Frame{Status: StatusSummary, Summary: &Summary{Text: text}}
}

// tick materializes a Frame from the current Timeline State and reports
// whether it differs structurally from the last one emitted (§4.7's
// Emission rule).
func (f *Formatter) tick() (Frame, bool) {
	snap := f.timeline.Snapshot()

	f.align(snap.Tokens)
	f.detectSpeakerChanges(snap.Tokens)

	lines := buildLines(snap.Tokens)

	status := StatusActiveTranscription
	if len(snap.Tokens) == 0 && snap.BufferTranscription.Text == "" {
		status = StatusNoAudioDetected
	}

	frame := Frame{
		Status:                     status,
		Lines:                      lines,
		BufferTranscription:        snap.BufferTranscription.Text,
		BufferDiarization:          diarizationTail(snap.DiarizationSegments),
		BufferTranslation:          snap.BufferTranslation,
		RemainingTimeTranscription: snap.RemainingTranscribe,
		RemainingTimeDiarization:   snap.RemainingDiarization,
	}

	if f.lastFrame != nil && reflect.DeepEqual(*f.lastFrame, frame) {
		return frame, false
	}
	f.lastFrame = &frame
	return frame, true
}

// align runs the token <-> speaker overlap algorithm from §4.7 and writes
// any new assignment back into Timeline State (subject to the "exactly one
// refinement" policy enforced by TimelineState.AssignSpeaker). It also
// updates the local snapshot slice in place so the same tick's Line
// grouping reflects the fresh assignment.
func (f *Formatter) align(tokens []Token) {
	for i := range tokens {
		tok := &tokens[i]
		if tok.IsSilence {
			continue
		}
		speakerID, ok := alignToken(*tok, snapshotSpeakerSegments(f.timeline))
		if !ok {
			continue
		}
		if tok.Speaker != nil && *tok.Speaker == speakerID {
			continue
		}
		if f.timeline.AssignSpeaker(i, speakerID) {
			id := speakerID
			tok.Speaker = &id
		}
	}
}

func snapshotSpeakerSegments(t *TimelineState) []SpeakerSegment {
	return t.Snapshot().DiarizationSegments
}

// alignToken finds the SpeakerSegment maximizing time overlap with tok and
// assigns its speaker id when overlap exceeds half the token's duration
// (§4.7's alignment algorithm). Silence segments never label a token.
func alignToken(tok Token, segments []SpeakerSegment) (int, bool) {
	best := 0.0
	bestID := 0
	found := false

	for _, s := range segments {
		if s.SpeakerID == SilenceSpeakerID {
			continue
		}
		ov := overlap(tok.Start, tok.End, s.Start, s.End)
		if ov > best {
			best = ov
			bestID = s.SpeakerID
			found = true
		}
	}

	duration := tok.End - tok.Start
	if found && duration > 0 && best > 0.5*duration {
		return bestID, true
	}
	return 0, false
}

func overlap(tStart, tEnd, sStart, sEnd float64) float64 {
	lo := math.Max(tStart, sStart)
	hi := math.Min(tEnd, sEnd)
	if hi < lo {
		return 0
	}
	return hi - lo
}

// detectSpeakerChanges scans tokens not yet examined for a change of
// speaker relative to the previous token and emits the Formatter's
// ChangeSpeaker feedback message onto the transcription and translation
// queues (§4.7, §9's "Cyclic feedback" note).
func (f *Formatter) detectSpeakerChanges(tokens []Token) {
	for i := f.notifiedIndex; i < len(tokens); i++ {
		tok := tokens[i]
		if tok.IsSilence {
			continue
		}
		if tok.Speaker != nil && f.lastSpeaker != nil && *tok.Speaker != *f.lastSpeaker {
			f.emitChangeSpeaker(tok.Start)
		}
		if tok.Speaker != nil {
			f.lastSpeaker = tok.Speaker
		}
	}
	f.notifiedIndex = len(tokens)
}

func (f *Formatter) emitChangeSpeaker(at float64) {
	ev := ChangeSpeakerEvent{AtTime: at}
	item := NewChangeSpeakerItem(ev)
	if f.transcriptFeedback != nil {
		select {
		case f.transcriptFeedback <- item:
		default:
			f.logger.Warn("dropped change_speaker feedback to transcription", "at", at)
		}
	}
	if f.translationFeedback != nil {
		select {
		case f.translationFeedback <- item:
		default:
			f.logger.Warn("dropped change_speaker feedback to translation", "at", at)
		}
	}
}

// buildLines groups contiguous, same-speaker tokens into Lines. A silence
// placeholder breaks the current line and becomes its own Line marked
// IsSilence (§4.7's Line grouping).
func buildLines(tokens []Token) []Line {
	var lines []Line
	var current *Line

	flush := func() {
		if current != nil {
			lines = append(lines, *current)
			current = nil
		}
	}

	for _, tok := range tokens {
		if tok.IsSilence {
			flush()
			lines = append(lines, Line{IsSilence: true, Start: tok.Start, End: tok.End})
			continue
		}

		if current == nil {
			current = &Line{Speaker: tok.Speaker, Start: tok.Start, End: tok.End, Text: tok.Text}
			continue
		}

		if sameSpeaker(current.Speaker, tok.Speaker) {
			if current.Text != "" && tok.Text != "" {
				current.Text = fmt.Sprintf("%s %s", current.Text, tok.Text)
			} else {
				current.Text += tok.Text
			}
			current.End = tok.End
			continue
		}

		flush()
		current = &Line{Speaker: tok.Speaker, Start: tok.Start, End: tok.End, Text: tok.Text}
	}
	flush()

	return lines
}

func sameSpeaker(a, b *int) bool {
	if a == nil && b == nil {
		return true
	}
	if a == nil || b == nil {
		return false
	}
	return *a == *b
}

func diarizationTail(segments []SpeakerSegment) string {
	if len(segments) == 0 {
		return ""
	}
	last := segments[len(segments)-1]
	if last.SpeakerID == SilenceSpeakerID {
		return "silence"
	}
	return fmt.Sprintf("speaker %d", last.SpeakerID)
}
