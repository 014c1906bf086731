package engine

import "testing"

func TestCommitTokensRaisesEndBuffer(t *testing.T) {
	tl := NewTimelineState()

	tl.CommitTokens([]Token{{Text: "hello", Start: 0, End: 1}}, BufferText{}, 1)
	snap := tl.Snapshot()
	if len(snap.Tokens) != 1 || snap.Tokens[0].Text != "hello" {
		t.Fatalf("expected one committed token, got %+v", snap.Tokens)
	}

	// A later commit with a smaller processedUpTo must never lower
	// end_buffer (§3 invariant 2: end_buffer >= max observed so far).
	tl.CommitTokens(nil, BufferText{}, 0.5)
	if tl.endBuffer != 1 {
		t.Errorf("expected end_buffer to stay at 1 after a smaller processedUpTo, got %f", tl.endBuffer)
	}
	tl.CommitTokens([]Token{{Text: "world", Start: 1, End: 2}}, BufferText{}, 2)
	if tl.endBuffer != 2 {
		t.Errorf("expected end_buffer raised to 2, got %f", tl.endBuffer)
	}

	snap = tl.Snapshot()
	if len(snap.Tokens) != 2 {
		t.Fatalf("expected two committed tokens, got %d", len(snap.Tokens))
	}
	if snap.Tokens[0].End > snap.Tokens[1].Start+1e-9 {
		t.Errorf("tokens not monotonic: %+v", snap.Tokens)
	}
}

func TestDrainNewTokensClearsBuffer(t *testing.T) {
	tl := NewTimelineState()
	tl.CommitTokens([]Token{{Text: "a", Start: 0, End: 1}}, BufferText{}, 1)

	drained := tl.DrainNewTokens()
	if len(drained) != 1 {
		t.Fatalf("expected 1 drained token, got %d", len(drained))
	}
	if drained := tl.DrainNewTokens(); len(drained) != 0 {
		t.Fatalf("expected drain to be empty after first call, got %d", len(drained))
	}
}

func TestAssignSpeakerExactlyOneRefinement(t *testing.T) {
	tl := NewTimelineState()
	tl.CommitTokens([]Token{{Text: "hi", Start: 0, End: 1}}, BufferText{}, 1)

	if !tl.AssignSpeaker(0, 0) {
		t.Fatal("first assignment should succeed")
	}
	if !tl.AssignSpeaker(0, 1) {
		t.Fatal("one refinement should be permitted")
	}
	if tl.AssignSpeaker(0, 2) {
		t.Fatal("a second refinement must be rejected")
	}

	snap := tl.Snapshot()
	if snap.Tokens[0].Speaker == nil || *snap.Tokens[0].Speaker != 1 {
		t.Fatalf("expected speaker to settle at the refined id 1, got %+v", snap.Tokens[0].Speaker)
	}
}

func TestAssignSpeakerSameIDIsNotARefinement(t *testing.T) {
	tl := NewTimelineState()
	tl.CommitTokens([]Token{{Text: "hi", Start: 0, End: 1}}, BufferText{}, 1)

	tl.AssignSpeaker(0, 0)
	tl.AssignSpeaker(0, 0) // re-confirming the same id must not consume the refinement budget
	if !tl.AssignSpeaker(0, 1) {
		t.Fatal("refinement budget should still be available after repeated identical assignments")
	}
}

func TestAdvanceDiarizationClockNeverGoesBackwards(t *testing.T) {
	tl := NewTimelineState()
	tl.SetDiarization([]SpeakerSegment{{SpeakerID: 0, Start: 0, End: 3}})
	tl.AdvanceDiarizationClock(1) // lower than the segment end already observed

	tl.CommitTokens([]Token{{Text: "hi", Start: 0, End: 3}}, BufferText{}, 3)
	snap := tl.Snapshot()
	if snap.LagDiarization < 0 {
		t.Errorf("lag must never be negative, got %f", snap.LagDiarization)
	}
	// latest token end (3) minus end_attributed_speaker (still 3, unaffected
	// by the lower AdvanceDiarizationClock call) should be zero.
	if snap.LagDiarization != 0 {
		t.Errorf("expected zero diarization lag, got %f", snap.LagDiarization)
	}
}
