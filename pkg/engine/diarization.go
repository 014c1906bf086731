package engine

import "context"

// DiarizationWorker is C4: it consumes the same audio chunks and silence
// events as the Transcription Worker (fanned out to it once, independently,
// by the Gate — no shared mutable buffer between the two) and produces
// speaker-labeled time segments covering everything processed so far.
type DiarizationWorker struct {
	diarizer   Diarizer
	timeline   *TimelineState
	logger     Logger
	dispatcher *ModelDispatcher
}

// NewDiarizationWorker constructs a DiarizationWorker bound to diarizer and
// timeline. dispatcher bounds concurrent diarizer inference calls (§5); a
// nil dispatcher gets an unshared one of limit 1.
func NewDiarizationWorker(diarizer Diarizer, timeline *TimelineState, logger Logger, dispatcher *ModelDispatcher) *DiarizationWorker {
	if logger == nil {
		logger = &NoOpLogger{}
	}
	if dispatcher == nil {
		dispatcher = NewModelDispatcher(1)
	}
	return &DiarizationWorker{diarizer: diarizer, timeline: timeline, logger: logger, dispatcher: dispatcher}
}

// Run drains in until it closes or an EndOfStream item arrives, updating
// Timeline State after every audio chunk and advancing the diarizer's clock
// for free on every silence-ended event, per §4.4's Protocol.
func (w *DiarizationWorker) Run(ctx context.Context, in <-chan QueueItem) {
	defer func() {
		if w.diarizer != nil {
			if err := w.diarizer.Close(); err != nil {
				w.logger.Warn("diarizer close failed", "error", err)
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case item, ok := <-in:
			if !ok {
				return
			}
			if !w.handle(item) {
				return
			}
		}
	}
}

// handle processes one item, returning false when the worker should stop.
func (w *DiarizationWorker) handle(item QueueItem) (cont bool) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("diarization worker item exception", "error", r)
			cont = true
		}
	}()

	switch item.Kind {
	case EndOfStreamItem:
		return false

	case AudioChunkItem:
		var segments []SpeakerSegment
		w.dispatcher.Call(func() {
			w.diarizer.InsertAudioChunk(item.Audio)
			segments = w.diarizer.Diarize()
		})
		w.timeline.SetDiarization(segments)

	case SilenceEventItem:
		if item.Silence.Phase == SilenceEnded && item.Silence.Duration != nil {
			w.diarizer.InsertSilence(*item.Silence.Duration)
			if item.Silence.End != nil {
				w.timeline.AdvanceDiarizationClock(*item.Silence.End)
			}
		}
	}

	return true
}
