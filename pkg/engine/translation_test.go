package engine

import (
	"context"
	"testing"
)

func TestTranslationWorkerAppendsTranslatedTokens(t *testing.T) {
	timeline := NewTimelineState()
	translator := &mockTranslator{}
	w := NewTranslationWorker(translator, timeline, nil, NewModelDispatcher(1))

	in := make(chan QueueItem, 4)
	in <- NewTokenItem(Token{Text: "hola", Start: 0, End: 1})
	in <- EndOfStream()
	close(in)

	w.Run(context.Background(), in)

	snap := timeline.Snapshot()
	if len(snap.Translations) != 1 || snap.Translations[0].Text != "hola_t" {
		t.Fatalf("expected one translated token with the mock suffix, got %+v", snap.Translations)
	}
}

func TestTranslationWorkerResetsBufferOnSpeakerChange(t *testing.T) {
	timeline := NewTimelineState()
	translator := &mockTranslator{}
	w := NewTranslationWorker(translator, timeline, nil, NewModelDispatcher(1))

	translator.InsertTokens(Token{Text: "pending"})
	if !w.handle(context.Background(), NewChangeSpeakerItem(ChangeSpeakerEvent{AtTime: 1})) {
		t.Fatal("handle must continue after a ChangeSpeaker item")
	}
	if len(translator.pending) != 0 {
		t.Fatalf("expected ChangeSpeaker to flush the pending buffer, got %+v", translator.pending)
	}
}

func TestTranslationWorkerStopsOnEndOfStream(t *testing.T) {
	timeline := NewTimelineState()
	translator := &mockTranslator{}
	w := NewTranslationWorker(translator, timeline, nil, NewModelDispatcher(1))

	if w.handle(context.Background(), EndOfStream()) {
		t.Fatal("handle must signal the caller to stop on EndOfStream")
	}
}
