package engine

import "context"

// TranscriptionWorker is C3: it consumes audio chunks and silence events
// from the gate, produces committed tokens and a rolling BufferText via an
// ASR capability provider, and hands each committed token onward to the
// translation queue in order.
type TranscriptionWorker struct {
	asr        ASR
	timeline   *TimelineState
	config     EngineConfig
	logger     Logger
	dispatcher *ModelDispatcher
}

// NewTranscriptionWorker constructs a TranscriptionWorker bound to asr and
// timeline. dispatcher bounds concurrent ASR inference calls (§5); a nil
// dispatcher gets an unshared one of limit 1.
func NewTranscriptionWorker(asr ASR, timeline *TimelineState, config EngineConfig, logger Logger, dispatcher *ModelDispatcher) *TranscriptionWorker {
	if logger == nil {
		logger = &NoOpLogger{}
	}
	if dispatcher == nil {
		dispatcher = NewModelDispatcher(1)
	}
	return &TranscriptionWorker{asr: asr, timeline: timeline, config: config, logger: logger, dispatcher: dispatcher}
}

// Run drains in until it closes or an EndOfStream item arrives, batching
// consecutive audio chunks (drain-all-available, stopping at sentinels or
// silences) to amortize each ASR invocation, per §4.3's Protocol. It
// forwards every committed token to translationOut in order, and an
// EndOfStream sentinel once the worker itself exits.
func (w *TranscriptionWorker) Run(ctx context.Context, in <-chan QueueItem, translationOut chan<- QueueItem) {
	defer func() {
		if translationOut != nil {
			translationOut <- EndOfStream()
		}
	}()

	var pending *QueueItem

	for {
		var item QueueItem
		if pending != nil {
			item = *pending
			pending = nil
		} else {
			select {
			case <-ctx.Done():
				return
			case next, ok := <-in:
				if !ok {
					return
				}
				item = next
			}
		}

		switch item.Kind {
		case EndOfStreamItem:
			return

		case ChangeSpeakerItem:
			func() {
				defer w.recoverBatch("new_speaker")
				w.asr.NewSpeaker(item.ChangeSpeaker)
			}()

		case SilenceEventItem:
			w.handleSilence(item.Silence, translationOut)

		case AudioChunkItem:
			batch := append([]float32{}, item.Audio...)
			lastEnd := item.StreamTimeEnd
			stopAfter := false

		drainLoop:
			for {
				select {
				case next, ok := <-in:
					if !ok {
						stopAfter = true
						break drainLoop
					}
					if next.Kind == AudioChunkItem {
						batch = append(batch, next.Audio...)
						lastEnd = next.StreamTimeEnd
						continue
					}
					p := next
					pending = &p
					break drainLoop
				default:
					break drainLoop
				}
			}

			w.processBatch(batch, lastEnd, translationOut)
			if stopAfter {
				return
			}
		}
	}
}

// recoverBatch implements §4.3's error policy: exceptions during a batch
// are logged but do not kill the worker.
func (w *TranscriptionWorker) recoverBatch(stage string) {
	if r := recover(); r != nil {
		w.logger.Error("transcription worker item exception", "stage", stage, "error", r)
	}
}

func (w *TranscriptionWorker) processBatch(pcm []float32, streamTimeEnd float64, translationOut chan<- QueueItem) {
	defer w.recoverBatch("process_iter")

	var newTokens []Token
	var processedUpTo float64
	w.dispatcher.Call(func() {
		w.asr.InsertAudioChunk(pcm, streamTimeEnd)
		newTokens, processedUpTo = w.asr.ProcessIter()
	})
	buffer := w.dedupBuffer(newTokens)

	w.timeline.CommitTokens(newTokens, buffer, processedUpTo)

	if translationOut != nil {
		for _, t := range newTokens {
			translationOut <- NewTokenItem(t)
		}
	}
}

func (w *TranscriptionWorker) handleSilence(ev SilenceEvent, translationOut chan<- QueueItem) {
	defer w.recoverBatch("silence")

	switch ev.Phase {
	case SilenceStarting:
		newTokens, _ := w.asr.StartSilence()
		buffer := w.dedupBuffer(newTokens)
		w.timeline.CommitTokens(newTokens, buffer, ev.Start)
		if translationOut != nil {
			for _, t := range newTokens {
				translationOut <- NewTokenItem(t)
			}
			translationOut <- NewSilenceItem(ev)
		}
	case SilenceEnded:
		duration := 0.0
		if ev.Duration != nil {
			duration = *ev.Duration
		}
		lastEnd := 0.0
		snap := w.timeline.Snapshot()
		if n := len(snap.Tokens); n > 0 {
			lastEnd = snap.Tokens[n-1].End
		}
		w.asr.EndSilence(duration, lastEnd)

		if ev.Duration != nil && *ev.Duration >= longSilenceThreshold.Seconds() && ev.End != nil {
			placeholder := Token{IsSilence: true, Start: ev.Start, End: *ev.End}
			w.timeline.CommitTokens([]Token{placeholder}, w.asr.GetBuffer(), *ev.End)
		}

		if translationOut != nil {
			translationOut <- NewSilenceItem(ev)
		}
	}
}

// dedupBuffer implements §4.3's dedup/stability rule: recompute BufferText
// from the ASR and, if its textual prefix equals the concatenation of just
// committed tokens, strip that prefix so already-committed text never
// leaks into the unstable tail.
func (w *TranscriptionWorker) dedupBuffer(newTokens []Token) BufferText {
	buffer := w.asr.GetBuffer()
	if len(newTokens) == 0 || buffer.Text == "" {
		return buffer
	}

	sep := w.asr.Sep()
	committed := ""
	for i, t := range newTokens {
		if i > 0 {
			committed += sep
		}
		committed += t.Text
	}

	if len(buffer.Text) >= len(committed) && buffer.Text[:len(committed)] == committed {
		buffer.Text = buffer.Text[len(committed):]
		if len(buffer.Text) >= len(sep) && buffer.Text[:len(sep)] == sep {
			buffer.Text = buffer.Text[len(sep):]
		}
	}
	return buffer
}
