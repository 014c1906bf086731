// Package vad provides voice-activity-detection capability providers for
// the engine (engine.VAD).
package vad

import (
	"math"
	"time"

	"github.com/lokutor-ai/streamengine/pkg/engine"
)

// RMSVAD is a lightweight, no-model VAD generalized from the orchestrator's
// RMSVAD: instead of emitting a single speaking/not-speaking event per
// chunk against a wall-clock silence timer, it scans a window in small
// sub-frames and reports the sample index of the first confirmed
// start-or-end transition it finds, per engine.VADTransition's contract.
type RMSVAD struct {
	sampleRate   int
	frameSamples int
	threshold    float64
	minConfirmed int
	silenceFrames int

	isSpeaking        bool
	consecutiveFrames int
	silentRun         int
	lastRMS           float64
}

// NewRMSVAD builds an RMSVAD for PCM at sampleRate Hz. threshold is the
// normalized (0..1) RMS energy level above which a frame counts as speech;
// silenceLimit is how long energy must stay below threshold before a
// SpeechEnd transition fires.
func NewRMSVAD(sampleRate int, threshold float64, silenceLimit time.Duration) *RMSVAD {
	const frameDuration = 10 * time.Millisecond
	frameSamples := int(float64(sampleRate) * frameDuration.Seconds())
	if frameSamples < 1 {
		frameSamples = 1
	}
	silenceFrames := int(silenceLimit / frameDuration)
	if silenceFrames < 1 {
		silenceFrames = 1
	}
	return &RMSVAD{
		sampleRate:    sampleRate,
		frameSamples:  frameSamples,
		threshold:     threshold,
		minConfirmed:  7, // ~70ms of continuous sound to confirm speech start
		silenceFrames: silenceFrames,
	}
}

// SetMinConfirmed overrides the number of consecutive frames needed to
// confirm a speech start.
func (v *RMSVAD) SetMinConfirmed(count int) {
	v.minConfirmed = count
}

// LastRMS returns the RMS of the most recently scanned sub-frame.
func (v *RMSVAD) LastRMS() float64 {
	return v.lastRMS
}

// IsSpeaking reports the VAD's current confirmed state.
func (v *RMSVAD) IsSpeaking() bool {
	return v.isSpeaking
}

// Process implements engine.VAD. It walks pcm in frameSamples-sized
// sub-frames and returns at most one transition: the first confirmed
// start or end boundary it crosses within this window. Sub-frames after a
// returned transition are not scanned, and a trailing partial sub-frame is
// ignored; when no transition is found, every full sub-frame has updated
// the running hysteresis counters.
func (v *RMSVAD) Process(pcm []float32) (*engine.VADTransition, error) {
	for offset := 0; offset+v.frameSamples <= len(pcm); offset += v.frameSamples {
		frame := pcm[offset : offset+v.frameSamples]
		rms := calculateRMS(frame)
		v.lastRMS = rms

		if rms > v.threshold {
			v.silentRun = 0
			v.consecutiveFrames++
			if !v.isSpeaking && v.consecutiveFrames >= v.minConfirmed {
				v.isSpeaking = true
				idx := offset
				return &engine.VADTransition{Start: &idx}, nil
			}
			continue
		}

		v.consecutiveFrames = 0
		if v.isSpeaking {
			v.silentRun++
			if v.silentRun >= v.silenceFrames {
				v.isSpeaking = false
				idx := offset
				return &engine.VADTransition{End: &idx}, nil
			}
		}
	}
	return nil, nil
}

func calculateRMS(frame []float32) float64 {
	if len(frame) == 0 {
		return 0
	}
	var sum float64
	for _, s := range frame {
		f := float64(s)
		sum += f * f
	}
	return math.Sqrt(sum / float64(len(frame)))
}
