// Package diarize provides engine.Diarizer capability providers.
package diarize

import (
	"math"
	"sync"

	"github.com/lokutor-ai/streamengine/pkg/engine"
)

// maxProfileSamples bounds how much recent audio each speaker profile keeps
// as its correlation reference, the same rolling-buffer discipline the
// correlation-based echo suppressor uses for played audio.
const maxProfileSamples = 16000 * 3 // ~3s at 16kHz

// defaultMatchThreshold is the normalized-correlation floor above which an
// incoming chunk is attributed to an existing speaker profile rather than a
// new one.
const defaultMatchThreshold = 0.55

// speakerProfile is a speaker's rolling voice reference: the same role the
// echo suppressor's playedAudioBuf plays for the played-audio signal, kept
// per speaker instead of per output channel.
type speakerProfile struct {
	id     int
	buf    []float64
	energy float64
}

// CorrelationDiarizer is an online, reference-free Diarizer (C4): it
// attributes each incoming audio chunk to a first-seen speaker profile
// using normalized cross-correlation (falling back to envelope correlation
// for mismatched-phase cases), the same two-stage matching the
// orchestrator's echo suppressor uses to decide "is this chunk a copy of
// something we've already seen."
type CorrelationDiarizer struct {
	sampleRate int
	threshold  float64

	mu       sync.Mutex
	profiles []*speakerProfile
	segments []engine.SpeakerSegment
	position float64 // seconds of audio processed so far
}

// NewCorrelationDiarizer builds a CorrelationDiarizer for PCM at sampleRate
// Hz.
func NewCorrelationDiarizer(sampleRate int) *CorrelationDiarizer {
	return &CorrelationDiarizer{sampleRate: sampleRate, threshold: defaultMatchThreshold}
}

// SetThreshold overrides the correlation floor used for speaker matching.
func (d *CorrelationDiarizer) SetThreshold(threshold float64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.threshold = threshold
}

// InsertAudioChunk implements engine.Diarizer: it matches pcm against every
// known speaker profile, attributing it to the best match above threshold
// or minting a new first-seen speaker id, then extends or appends the
// current SpeakerSegment.
func (d *CorrelationDiarizer) InsertAudioChunk(pcm []float32) {
	if len(pcm) == 0 {
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	samples := make([]float64, len(pcm))
	for i, s := range pcm {
		samples[i] = float64(s)
	}

	speakerID := d.matchOrCreateProfile(samples)

	start := d.position
	duration := float64(len(pcm)) / float64(d.sampleRate)
	end := start + duration
	d.position = end

	d.appendSegment(speakerID, start, end)
}

// InsertSilence implements engine.Diarizer: silence is recorded as its own
// segment, attributed to engine.SilenceSpeakerID, and advances position
// without touching any speaker profile.
func (d *CorrelationDiarizer) InsertSilence(duration float64) {
	if duration <= 0 {
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	start := d.position
	end := start + duration
	d.position = end

	d.appendSegment(engine.SilenceSpeakerID, start, end)
}

// appendSegment extends the last segment if it shares the same speaker id,
// otherwise appends a new one. Must be called with d.mu held.
func (d *CorrelationDiarizer) appendSegment(speakerID int, start, end float64) {
	if n := len(d.segments); n > 0 && d.segments[n-1].SpeakerID == speakerID {
		d.segments[n-1].End = end
		return
	}
	d.segments = append(d.segments, engine.SpeakerSegment{SpeakerID: speakerID, Start: start, End: end})
}

// matchOrCreateProfile finds the best-correlating existing profile, creates
// a new first-seen one if none clears threshold, and folds samples into
// the chosen profile's rolling reference. Must be called with d.mu held.
func (d *CorrelationDiarizer) matchOrCreateProfile(samples []float64) int {
	energy := calculateEnergy(samples)

	bestID := -1
	bestCorr := 0.0
	var best *speakerProfile

	if energy > 0 {
		for _, p := range d.profiles {
			corr := correlate(samples, p.buf, energy, p.energy)
			if corr < d.threshold {
				corr = envelopeCorrelate(samples, p.buf, 8)
			}
			if corr > bestCorr {
				bestCorr = corr
				bestID = p.id
				best = p
			}
		}
	}

	if best == nil || bestCorr < d.threshold {
		best = &speakerProfile{id: len(d.profiles)}
		d.profiles = append(d.profiles, best)
		bestID = best.id
	}

	best.buf = append(best.buf, samples...)
	if over := len(best.buf) - maxProfileSamples; over > 0 {
		best.buf = best.buf[over:]
	}
	best.energy = calculateEnergy(best.buf)

	return bestID
}

// Diarize implements engine.Diarizer: returns a snapshot of every segment
// attributed so far.
func (d *CorrelationDiarizer) Diarize() []engine.SpeakerSegment {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]engine.SpeakerSegment, len(d.segments))
	copy(out, d.segments)
	return out
}

// Close implements engine.Diarizer. CorrelationDiarizer holds no external
// resources.
func (d *CorrelationDiarizer) Close() error { return nil }

func correlate(input, reference []float64, inputEnergy, refEnergy float64) float64 {
	if len(input) == 0 || len(reference) == 0 || inputEnergy == 0 || refEnergy == 0 {
		return 0
	}

	compareLen := len(input)
	if compareLen > len(reference) {
		compareLen = len(reference)
	}
	refStart := len(reference) - compareLen
	refCompare := reference[refStart:]

	refCompareEnergy := calculateEnergy(refCompare)
	if refCompareEnergy == 0 {
		return 0
	}

	dot := 0.0
	for i := 0; i < compareLen; i++ {
		dot += input[i] * refCompare[i]
	}

	normFactor := math.Sqrt(inputEnergy * refCompareEnergy)
	if normFactor == 0 {
		return 0
	}

	corr := dot / normFactor
	if corr < 0 {
		return 0
	}
	if corr > 1 {
		return 1
	}
	return corr
}

func calculateEnergy(samples []float64) float64 {
	energy := 0.0
	for _, s := range samples {
		energy += s * s
	}
	return energy
}

// envelopeCorrelate compares the absolute-value, decimated energy envelope
// of input against reference, catching phase-shifted matches plain
// cross-correlation misses (the orchestrator's maxEnvelopeCorrelation).
func envelopeCorrelate(input, reference []float64, decimation int) float64 {
	if len(input) == 0 || len(reference) == 0 {
		return 0
	}

	envelope := func(samples []float64) []float64 {
		n := len(samples) / decimation
		env := make([]float64, n)
		for i := 0; i < n; i++ {
			sum := 0.0
			for j := 0; j < decimation; j++ {
				sum += math.Abs(samples[i*decimation+j])
			}
			env[i] = sum
		}
		return env
	}

	inEnv := envelope(input)
	refEnv := envelope(reference)

	compareLen := len(inEnv)
	if compareLen > len(refEnv) {
		compareLen = len(refEnv)
	}
	if compareLen == 0 {
		return 0
	}

	refStart := len(refEnv) - compareLen
	refEnv = refEnv[refStart:]
	inEnv = inEnv[:compareLen]

	inMean, refMean := mean(inEnv), mean(refEnv)

	dot, inVar, refVar := 0.0, 0.0, 0.0
	for i := 0; i < compareLen; i++ {
		a := inEnv[i] - inMean
		b := refEnv[i] - refMean
		dot += a * b
		inVar += a * a
		refVar += b * b
	}

	if inVar <= 0 || refVar <= 0 {
		return 0
	}
	return dot / math.Sqrt(inVar*refVar)
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sum := 0.0
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}
