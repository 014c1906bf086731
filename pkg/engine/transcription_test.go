package engine

import (
	"context"
	"testing"
)

func newTestTranscriptionWorker(asr *mockASR, timeline *TimelineState) *TranscriptionWorker {
	return NewTranscriptionWorker(asr, timeline, DefaultEngineConfig(), nil, NewModelDispatcher(1))
}

func TestTranscriptionWorkerBatchesConsecutiveAudioChunks(t *testing.T) {
	timeline := NewTimelineState()
	asr := &mockASR{sampleRate: 16000, wordsPerCall: []string{"hello"}}
	w := newTestTranscriptionWorker(asr, timeline)

	in := make(chan QueueItem, 4)
	translationOut := make(chan QueueItem, 4)

	in <- NewAudioItem([]float32{0.1, 0.2}, 1)
	in <- NewAudioItem([]float32{0.3, 0.4}, 2)
	close(in)

	w.Run(context.Background(), in, translationOut)

	// Both chunks must have been folded into a single ProcessIter call: the
	// mock emits exactly one token per call, so seeing one token committed
	// (not two) proves the batching in §4.3's Protocol.
	snap := timeline.Snapshot()
	if len(snap.Tokens) != 1 {
		t.Fatalf("expected exactly one committed token from one batched ProcessIter call, got %d: %+v", len(snap.Tokens), snap.Tokens)
	}

	first := <-translationOut
	if first.Kind != TokenItem || first.Token.Text != "hello" {
		t.Fatalf("expected the committed token forwarded to translation, got %+v", first)
	}
	second := <-translationOut
	if second.Kind != EndOfStreamItem {
		t.Fatalf("expected EndOfStream once the worker exits, got %+v", second)
	}
}

func TestTranscriptionWorkerMaterializesLongSilencePlaceholder(t *testing.T) {
	timeline := NewTimelineState()
	asr := &mockASR{sampleRate: 16000}
	w := newTestTranscriptionWorker(asr, timeline)

	in := make(chan QueueItem, 4)
	translationOut := make(chan QueueItem, 4)

	duration := longSilenceThreshold.Seconds() + 1
	end := 10.0
	in <- NewSilenceItem(SilenceEvent{Start: 0, Phase: SilenceStarting})
	in <- NewSilenceItem(SilenceEvent{Start: 0, End: &end, Phase: SilenceEnded, Duration: &duration})
	close(in)

	w.Run(context.Background(), in, translationOut)

	snap := timeline.Snapshot()
	found := false
	for _, tok := range snap.Tokens {
		if tok.IsSilence {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a silence placeholder token for a silence above threshold, got %+v", snap.Tokens)
	}
}

func TestTranscriptionWorkerDoesNotMaterializeShortSilence(t *testing.T) {
	timeline := NewTimelineState()
	asr := &mockASR{sampleRate: 16000}
	w := newTestTranscriptionWorker(asr, timeline)

	in := make(chan QueueItem, 4)
	translationOut := make(chan QueueItem, 4)

	duration := 1.0 // well under longSilenceThreshold
	end := 1.0
	in <- NewSilenceItem(SilenceEvent{Start: 0, Phase: SilenceStarting})
	in <- NewSilenceItem(SilenceEvent{Start: 0, End: &end, Phase: SilenceEnded, Duration: &duration})
	close(in)

	w.Run(context.Background(), in, translationOut)

	snap := timeline.Snapshot()
	for _, tok := range snap.Tokens {
		if tok.IsSilence {
			t.Fatalf("a short silence must not be materialized into a placeholder token, got %+v", snap.Tokens)
		}
	}
}

func TestDedupBufferStripsCommittedPrefix(t *testing.T) {
	timeline := NewTimelineState()
	asr := &mockASR{sampleRate: 16000, buffer: BufferText{Text: "hello world"}}
	w := newTestTranscriptionWorker(asr, timeline)

	buffer := w.dedupBuffer([]Token{{Text: "hello"}})
	if buffer.Text != "world" {
		t.Fatalf("expected committed prefix and its separator stripped, got %q", buffer.Text)
	}
}

func TestDedupBufferLeavesUnrelatedBufferAlone(t *testing.T) {
	timeline := NewTimelineState()
	asr := &mockASR{sampleRate: 16000, buffer: BufferText{Text: "something else"}}
	w := newTestTranscriptionWorker(asr, timeline)

	buffer := w.dedupBuffer([]Token{{Text: "hello"}})
	if buffer.Text != "something else" {
		t.Fatalf("buffer text with no matching committed prefix must be left untouched, got %q", buffer.Text)
	}
}
